package ingest

import (
	"context"
	"io"
	"time"
)

// JobContext is the view modules have of the job they run in.
type JobContext struct {
	e *JobExecutor
}

func (c *JobContext) JobID() int64 {
	return c.e.job.id
}

func (c *JobContext) DataSource() DataSource {
	return c.e.job.ds
}

func (c *JobContext) ExecutionContext() string {
	return c.e.job.settings.Context
}

func (c *JobContext) ProcessUnallocated() bool {
	return c.e.job.settings.ProcessUnallocated
}

func (c *JobContext) IsCancelled() bool {
	return c.e.IsCancelled()
}

// DataSourceModuleCancelled reports whether the running data source module
// was asked to stop.
func (c *JobContext) DataSourceModuleCancelled() bool {
	return c.e.dataSourceModuleCancelled()
}

// Open returns the content of f.
func (c *JobContext) Open(ctx context.Context, f *File) (io.ReadCloser, error) {
	return c.e.svc.Content.Open(ctx, f)
}

// AddFiles adds files derived during analysis to the job. They are
// analyzed before files queued earlier.
func (c *JobContext) AddFiles(files ...*File) error {
	if c.e.shuttingDown.Load() {
		return ErrJobShuttingDown
	}
	return c.e.AddFiles(files)
}

// PostArtifacts stores artifacts on the blackboard and queues them for the
// data artifact pipeline.
func (c *JobContext) PostArtifacts(ctx context.Context, artifacts ...DataArtifact) ([]DataArtifact, error) {
	if c.e.shuttingDown.Load() {
		return nil, ErrJobShuttingDown
	}
	for i := range artifacts {
		if artifacts[i].DataSourceID == 0 {
			artifacts[i].DataSourceID = c.e.job.ds.ID()
		}
	}
	posted, err := c.e.svc.Blackboard.PostArtifacts(ctx, artifacts)
	if err != nil {
		return nil, err
	}
	return posted, c.e.AddDataArtifacts(posted)
}

// Pause sleeps for d. It returns early with an error when ctx is done or
// the job is cancelled, ErrJobCancelled in the latter case.
func (c *JobContext) Pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.e.cancelCh:
		return ErrJobCancelled
	}
}

// SwitchToDeterminate makes the data source progress bar count to total.
func (c *JobContext) SwitchToDeterminate(total int64) {
	c.e.progress.determinate(BarDataSource, total)
}

func (c *JobContext) SwitchToIndeterminate() {
	c.e.progress.indeterminate(BarDataSource)
}

// Progress reports data source module progress. A negative done keeps the
// last count.
func (c *JobContext) Progress(message string, done int64) {
	c.e.progress.progress(BarDataSource, message, done)
}
