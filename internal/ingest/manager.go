package ingest

import (
	"cmp"
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	// FileWorkers is the number of goroutines analyzing files. It also is
	// the number of file pipelines of every job.
	FileWorkers         int
	DataArtifactWorkers int
}

type Option func(*Manager)

// WithClassifier sets how module factories are ordered in pipelines.
func WithClassifier(c Classifier) Option {
	return func(m *Manager) {
		m.classify = c
	}
}

// Manager runs the workers shared by all jobs and creates jobs.
type Manager struct {
	cfg      Config
	svc      Services
	classify Classifier
	sched    *Scheduler
	nextID   atomic.Int64

	mu      sync.Mutex
	closed  bool
	jobs    map[int64]*Job
	streams map[int64]*Stream
	wg      sync.WaitGroup
}

func NewManager(cfg Config, svc Services, opts ...Option) *Manager {
	cfg.FileWorkers = max(cfg.FileWorkers, 1)
	cfg.DataArtifactWorkers = max(cfg.DataArtifactWorkers, 1)
	m := &Manager{
		cfg:      cfg,
		svc:      svc,
		classify: defaultClassifier,
		sched:    NewScheduler(),
		jobs:     make(map[int64]*Job),
		streams:  make(map[int64]*Stream),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run serves tasks until ctx is done. It then cancels the running jobs,
// closes open streams and returns once every job finished.
func (m *Manager) Run(ctx context.Context) error {
	wctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	defer stop()

	g, gctx := errgroup.WithContext(wctx)
	g.Go(func() error {
		return m.worker(gctx, DataSourceTask)
	})
	for range m.cfg.FileWorkers {
		g.Go(func() error {
			return m.worker(gctx, FileTask)
		})
	}
	for range m.cfg.DataArtifactWorkers {
		g.Go(func() error {
			return m.worker(gctx, DataArtifactTask)
		})
	}
	slog.DebugContext(ctx, "ingest workers started",
		"file", m.cfg.FileWorkers,
		"data_artifact", m.cfg.DataArtifactWorkers,
	)

	<-ctx.Done()
	m.shutDown(wctx)
	stop()
	return g.Wait()
}

func (m *Manager) worker(ctx context.Context, kind TaskKind) error {
	for {
		t, err := m.sched.Take(ctx, kind)
		if err != nil {
			return nil
		}
		m.execute(ctx, t)
	}
}

func (m *Manager) execute(ctx context.Context, t *Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "ingest task panicked",
				"kind", t.Kind().String(),
				"job_id", t.JobID(),
				"panic", r,
			)
		}
	}()
	t.Execute()
}

func (m *Manager) shutDown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	jobs := slices.Collect(maps.Values(m.jobs))
	streams := slices.Collect(maps.Values(m.streams))
	m.mu.Unlock()

	for _, j := range jobs {
		j.Cancel(ServicesDown)
	}
	for _, s := range streams {
		_ = s.Close()
	}
	if len(jobs) > 0 {
		slog.InfoContext(ctx, "waiting for ingest jobs to finish", "jobs", len(jobs))
	}
	m.wg.Wait()
}

// StartJob starts a batch job for ds. Without files the whole data source
// is analyzed.
func (m *Manager) StartJob(ctx context.Context, ds DataSource, settings Settings, files ...*File) (*Job, error) {
	job, _, err := m.startJob(ctx, ModeBatch, ds, settings, files)
	return job, err
}

// OpenStream starts a streaming job. Files are added through the stream as
// they become available.
func (m *Manager) OpenStream(ctx context.Context, ds DataSource, settings Settings) (*Stream, error) {
	_, s, err := m.startJob(ctx, ModeStreaming, ds, settings, nil)
	return s, err
}

// startJob registers the job, and the stream of a streaming job, in one
// critical section so that shutDown always sees both.
func (m *Manager) startJob(ctx context.Context, mode Mode, ds DataSource, settings Settings, files []*File) (*Job, *Stream, error) {
	job := newJob(m.nextID.Add(1), mode, ds, settings, files)
	exec, err := newJobExecutor(ctx, job, m.sched, m.svc, m.classify, m.cfg.FileWorkers)
	if err != nil {
		return nil, nil, err
	}
	if !exec.hasHighPriorityDataSourceModules() && !exec.hasLowPriorityDataSourceModules() &&
		!exec.hasFileModules() && !exec.hasDataArtifactModules() {
		exec.cancelCtx()
		return nil, nil, ErrNoIngestModules
	}
	job.exec = exec
	job.onDone = m.jobDone

	var stream *Stream
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		exec.cancelCtx()
		return nil, nil, ErrManagerClosed
	}
	m.jobs[job.id] = job
	if mode == ModeStreaming {
		stream = &Stream{job: job}
		m.streams[job.id] = stream
	}
	m.wg.Add(1)
	m.mu.Unlock()

	slog.InfoContext(exec.ctx, "ingest job starting", "mode", mode.String())
	if err := exec.startUp(); err != nil {
		return nil, nil, err
	}
	return job, stream, nil
}

func (m *Manager) jobDone(j *Job) {
	m.mu.Lock()
	delete(m.jobs, j.id)
	delete(m.streams, j.id)
	m.mu.Unlock()
	m.wg.Done()
}

func (m *Manager) Job(id int64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// Jobs returns the running jobs ordered by id.
func (m *Manager) Jobs() []*Job {
	m.mu.Lock()
	jobs := slices.Collect(maps.Values(m.jobs))
	m.mu.Unlock()
	slices.SortFunc(jobs, func(a, b *Job) int {
		return cmp.Compare(a.id, b.id)
	})
	return jobs
}

func (m *Manager) Snapshots(withTasks bool) []Snapshot {
	jobs := m.Jobs()
	ret := make([]Snapshot, len(jobs))
	for i, j := range jobs {
		ret[i] = j.Snapshot(withTasks)
	}
	return ret
}

func (m *Manager) CancelAll(reason CancelReason) {
	for _, j := range m.Jobs() {
		j.Cancel(reason)
	}
}
