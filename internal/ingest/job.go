package ingest

import (
	"context"
	"sync"
)

// Settings are the user choices of one job.
type Settings struct {
	// Context names the execution context the settings were loaded for.
	Context            string
	Templates          []Template
	Pipelines          PipelineConfig
	ProcessUnallocated bool
	// Filter selects files, nil analyzes all of them.
	Filter FileFilter
}

// PipelineModules lists the module names of the pipelines of a job.
type PipelineModules struct {
	HighPriorityDataSource []string
	LowPriorityDataSource  []string
	File                   []string
	DataArtifact           []string
}

// Job is one request to analyze a data source.
type Job struct {
	id       int64
	mode     Mode
	ds       DataSource
	files    []*File
	settings Settings
	exec     *JobExecutor
	onDone   func(*Job)

	mu     sync.Mutex
	status JobStatus
	done   chan struct{}
}

func newJob(id int64, mode Mode, ds DataSource, settings Settings, files []*File) *Job {
	return &Job{
		id:       id,
		mode:     mode,
		ds:       ds,
		files:    files,
		settings: settings,
		status:   StatusPending,
		done:     make(chan struct{}),
	}
}

func (j *Job) ID() int64 {
	return j.id
}

func (j *Job) DataSource() DataSource {
	return j.ds
}

func (j *Job) Mode() Mode {
	return j.mode
}

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Done is closed when the job reached its final stage.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finished or ctx is done.
func (j *Job) Wait(ctx context.Context) (JobStatus, error) {
	select {
	case <-ctx.Done():
		return j.Status(), ctx.Err()
	case <-j.done:
		return j.Status(), nil
	}
}

// Cancel cancels the whole job. Analysis already done is kept.
func (j *Job) Cancel(reason CancelReason) {
	j.exec.Cancel(reason)
}

// CancelCurrentDataSourceModule asks the running data source module to
// stop. The job continues with the next module.
func (j *Job) CancelCurrentDataSourceModule() {
	j.exec.CancelCurrentDataSourceModule()
}

func (j *Job) Snapshot(withTasks bool) Snapshot {
	return j.exec.Snapshot(withTasks)
}

// Errors returns the module errors recorded so far.
func (j *Job) Errors() []TaskError {
	return j.exec.Errors()
}

// Stages returns the stages the job went through.
func (j *Job) Stages() []Stage {
	return j.exec.Stages()
}

func (j *Job) Modules() PipelineModules {
	return j.exec.modules()
}

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *Job) finish(s JobStatus) {
	j.mu.Lock()
	select {
	case <-j.done:
		j.mu.Unlock()
		return
	default:
	}
	j.status = s
	close(j.done)
	j.mu.Unlock()
	if j.onDone != nil {
		j.onDone(j)
	}
}

// Stream feeds files of a streaming job. Close signals that the producer
// added the whole data source.
type Stream struct {
	job *Job

	mu     sync.Mutex
	closed bool
}

func (s *Stream) Job() *Job {
	return s.job
}

func (s *Stream) AddFiles(ids ...int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	return s.job.exec.AddStreamedFiles(ids)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	return s.job.exec.AddStreamedDataSource()
}
