package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	"github.com/CZERTAINLY/Ingestor/internal/model"
)

// SnapshotSource lists snapshots of the running jobs.
type SnapshotSource interface {
	Snapshots(withTasks bool) []ingest.Snapshot
}

// Monitor periodically logs a snapshot of every running job.
type Monitor struct {
	scheduler gocron.Scheduler
}

// NewMonitor returns a Monitor taking snapshots of src on the schedule
// given by cfg.
func NewMonitor(ctx context.Context, cfg model.Snapshot, src SnapshotSource) (*Monitor, error) {
	s, err := newScheduler(ctx, cfg, func() { logSnapshots(ctx, src) })
	if err != nil {
		return nil, err
	}
	return &Monitor{scheduler: s}, nil
}

func (m *Monitor) Start() {
	m.scheduler.Start()
}

// Stop waits for a running snapshot and stops the schedule.
func (m *Monitor) Stop(ctx context.Context) {
	if err := m.scheduler.Shutdown(); err != nil {
		slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
	}
}

func logSnapshots(ctx context.Context, src SnapshotSource) {
	for _, s := range src.Snapshots(true) {
		attrs := []any{
			"job_id", s.JobID,
			"data_source", s.DataSource,
			"stage", s.Stage.String(),
			"processed_files", s.ProcessedFiles,
			"estimated_files", s.EstimatedFiles,
			"errors", s.Errors,
		}
		if s.CurrentDataSourceModule != "" {
			attrs = append(attrs, "data_source_module", s.CurrentDataSourceModule)
		}
		if s.FileIngestRunning {
			attrs = append(attrs, "files_per_second", s.FilesPerSecond())
		}
		if s.Cancelled {
			attrs = append(attrs, "cancel_reason", s.CancelReason.String())
		}
		if s.Tasks != nil {
			attrs = append(attrs, "tasks", s.Tasks)
		}
		slog.InfoContext(ctx, "ingest snapshot", attrs...)
	}
}

func newScheduler(ctx context.Context, cfg model.Snapshot, task func()) (gocron.Scheduler, error) {
	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "" && cfg.Duration != "":
		return nil, errors.New("ingest.snapshot: cron and duration are mutually exclusive")
	case cfg.Cron != "":
		if _, err := model.ParseCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing ingest.snapshot.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Cron)
	case cfg.Duration != "":
		d, err := model.ParseISODuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing ingest.snapshot.duration: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("ingest.snapshot.duration must be positive: %s", cfg.Duration)
		}
		slog.DebugContext(ctx, "successfully parsed", "duration", d.String())
		job = gocron.DurationJob(d)
	default:
		return nil, errors.New("both cron and duration are empty")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		job,
		gocron.NewTask(task),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
