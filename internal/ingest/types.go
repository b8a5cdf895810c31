// Package ingest implements the ingest execution engine: module pipelines
// built from templates, a task scheduler shared by all running jobs and a
// per-job executor driving the analysis stages.
package ingest

import (
	"context"
	"io"
	"time"
)

// DataSource is the top-level subject of an ingest job.
type DataSource interface {
	ID() int64
	Name() string
}

// File is a file of a data source known to the case. Derived files carry
// the id of the file they were extracted from.
type File struct {
	ID           int64
	DataSourceID int64
	ParentID     int64
	Path         string
	Size         int64
	Unallocated  bool
	Derived      bool
}

// DataArtifact is a structured result posted by a module.
type DataArtifact struct {
	ID           int64
	DataSourceID int64
	FileID       int64
	Type         string
	Attributes   map[string]string
}

// ContentAccessor resolves files of a data source.
type ContentAccessor interface {
	File(ctx context.Context, id int64) (*File, error)
	Files(ctx context.Context, dataSourceID int64) ([]*File, error)
	CountFiles(ctx context.Context, dataSourceID int64) (int64, error)
	Open(ctx context.Context, f *File) (io.ReadCloser, error)
}

// Blackboard stores data artifacts. PostArtifacts returns the stored
// artifacts with their ids assigned.
type Blackboard interface {
	Artifacts(ctx context.Context, dataSourceID int64) ([]DataArtifact, error)
	PostArtifacts(ctx context.Context, artifacts []DataArtifact) ([]DataArtifact, error)
}

// ModuleInfo describes one module recorded for a job.
type ModuleInfo struct {
	Name    string
	Version string
	Type    ModuleType
}

// JobInfo is recorded when a job starts.
type JobInfo struct {
	ID           int64
	DataSourceID int64
	Context      string
	Modules      []ModuleInfo
}

// JobRecorder persists job bookkeeping. Failures are logged and never stop
// the job.
type JobRecorder interface {
	RecordJobStart(ctx context.Context, info JobInfo, start time.Time) error
	RecordJobEnd(ctx context.Context, jobID int64, status JobStatus, end time.Time) error
}

// Services are the collaborators shared by every job of a Manager. Content
// and Blackboard are required, the rest is optional.
type Services struct {
	Content    ContentAccessor
	Blackboard Blackboard
	Recorder   JobRecorder
	// Progress creates a progress sink for a job. Nil means headless.
	Progress func(title string) ProgressSink
}
