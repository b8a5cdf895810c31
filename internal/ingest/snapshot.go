package ingest

import (
	"log/slog"
	"time"
)

// Snapshot is a point in time view of a job.
type Snapshot struct {
	JobID                        int64
	DataSource                   string
	Mode                         Mode
	Stage                        Stage
	CreateTime                   time.Time
	SnapshotTime                 time.Time
	CurrentDataSourceModule      string
	CurrentDataSourceModuleStart time.Time
	FileIngestRunning            bool
	FileIngestStartTime          time.Time
	Cancelled                    bool
	CancelReason                 CancelReason
	CancelledDataSourceModules   []string
	ProcessedFiles               int64
	EstimatedFiles               int64
	Errors                       int
	Tasks                        *TasksSnapshot
}

// FilesPerSecond is the file throughput since file ingest started.
func (s Snapshot) FilesPerSecond() float64 {
	if s.FileIngestStartTime.IsZero() {
		return 0
	}
	elapsed := s.SnapshotTime.Sub(s.FileIngestStartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.ProcessedFiles) / elapsed
}

func (s Snapshot) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("job_id", s.JobID),
		slog.String("data_source", s.DataSource),
		slog.String("stage", s.Stage.String()),
		slog.Int64("processed", s.ProcessedFiles),
		slog.Int64("estimated", s.EstimatedFiles),
		slog.Int("errors", s.Errors),
	}
	if s.CurrentDataSourceModule != "" {
		attrs = append(attrs,
			slog.String("data_source_module", s.CurrentDataSourceModule),
			slog.Duration("data_source_module_elapsed", s.SnapshotTime.Sub(s.CurrentDataSourceModuleStart)),
		)
	}
	if s.FileIngestRunning {
		attrs = append(attrs, slog.Float64("files_per_second", s.FilesPerSecond()))
	}
	if s.Cancelled {
		attrs = append(attrs, slog.String("cancel_reason", s.CancelReason.String()))
	}
	if len(s.CancelledDataSourceModules) > 0 {
		attrs = append(attrs, slog.Any("cancelled_modules", s.CancelledDataSourceModules))
	}
	if s.Tasks != nil {
		attrs = append(attrs, slog.Group("tasks",
			slog.Int("data_source_queued", s.Tasks.DataSourceQueued),
			slog.Int("data_source_running", s.Tasks.DataSourceRunning),
			slog.Int("file_queued", s.Tasks.FileQueued),
			slog.Int("file_running", s.Tasks.FileRunning),
			slog.Int("data_artifact_queued", s.Tasks.DataArtifactQueued),
			slog.Int("data_artifact_running", s.Tasks.DataArtifactRunning),
		))
	}
	return slog.GroupValue(attrs...)
}
