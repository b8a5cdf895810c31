package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/Ingestor/internal/bom"
	"github.com/CZERTAINLY/Ingestor/internal/datasource"
	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	"github.com/CZERTAINLY/Ingestor/internal/log"
	"github.com/CZERTAINLY/Ingestor/internal/model"
	"github.com/CZERTAINLY/Ingestor/internal/modules"
	"github.com/CZERTAINLY/Ingestor/internal/store"
)

const (
	chunkSize        = 256
	progressInterval = 5 * time.Second
)

// Result is the outcome of the job of one data source.
type Result struct {
	DataSource string
	JobID      int64
	Status     ingest.JobStatus
	Errors     []ingest.TaskError
}

// Service ingests the configured data sources into a case.
type Service struct {
	cfg       model.Config
	store     *store.Store
	sources   []datasource.Source
	uploaders []model.Uploader
	filter    ingest.FileFilter
	manager   *ingest.Manager
}

// New opens the case and the data sources. The returned Service must be
// closed.
func New(ctx context.Context, cfg model.Config) (*Service, error) {
	filter, err := ingest.NewGlobFilter(cfg.Ingest.Filter.Include, cfg.Ingest.Filter.Exclude, cfg.Ingest.Filter.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("ingest.filter: %w", err)
	}

	if err := os.MkdirAll(cfg.Case.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating case directory: %w", err)
	}
	st, err := store.Open(ctx, cfg.Case.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening case: %w", err)
	}

	s := &Service{
		cfg:    cfg,
		store:  st,
		filter: filter,
	}
	for _, dsCfg := range cfg.DataSources {
		src, err := datasource.Open(ctx, dsCfg)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("opening data source %s: %w", dsCfg, err)
		}
		s.sources = append(s.sources, src)
	}

	s.uploaders, err = uploaders(cfg.Service)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.manager = ingest.NewManager(
		ingest.Config{
			FileWorkers:         cfg.Ingest.Threads.File,
			DataArtifactWorkers: cfg.Ingest.Threads.Artifact,
		},
		ingest.Services{
			Content:    st,
			Blackboard: st,
			Recorder:   st,
			Progress:   newLogProgress(ctx, progressInterval),
		},
		ingest.WithClassifier(modules.Classifier),
	)
	return s, nil
}

// Manager returns the ingest manager the jobs run on.
func (s *Service) Manager() *ingest.Manager {
	return s.manager
}

// Do ingests all data sources and returns when every job finished. When
// ctx is cancelled the running jobs are cancelled and Do returns the
// results collected so far.
func (s *Service) Do(ctx context.Context) ([]Result, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if s.cfg.Ingest.Snapshot != nil {
		mon, err := NewMonitor(runCtx, *s.cfg.Ingest.Snapshot, s.manager)
		if err != nil {
			return nil, err
		}
		mon.Start()
		defer mon.Stop(ctx)
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return s.manager.Run(gctx)
	})
	g.Go(func() error {
		defer stop()
		var errs []error
		var wg sync.WaitGroup
		for i, src := range s.sources {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := s.ingest(gctx, s.cfg.DataSources[i], src)
				mu.Lock()
				defer mu.Unlock()
				if res.JobID != 0 {
					results = append(results, res)
				}
				if err != nil {
					errs = append(errs, err)
				}
			}()
		}
		wg.Wait()
		return errors.Join(errs...)
	})
	err := g.Wait()
	return results, err
}

func (s *Service) ingest(ctx context.Context, cfg model.DataSource, src datasource.Source) (Result, error) {
	ctx = log.ContextAttrs(ctx, slog.String("data_source", src.Name()))
	ds, err := s.store.AddDataSource(ctx, src.Name(), src)
	if err != nil {
		return Result{}, fmt.Errorf("registering data source %s: %w", cfg, err)
	}

	settings := s.settings()
	var job *ingest.Job
	switch s.cfg.Ingest.Mode {
	case model.ModeStreaming:
		job, err = s.stream(ctx, ds, src, settings)
	default:
		job, err = s.batch(ctx, ds, src, settings)
	}
	if err != nil {
		return Result{}, fmt.Errorf("ingesting data source %s: %w", cfg, err)
	}

	// the manager cancels jobs when ctx is done, so waiting for them never
	// blocks the shutdown
	status, err := job.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return Result{}, err
	}
	res := Result{
		DataSource: src.Name(),
		JobID:      job.ID(),
		Status:     status,
		Errors:     job.Errors(),
	}
	slog.InfoContext(ctx, "ingest job finished", "job_id", res.JobID, "status", status.String(), "errors", len(res.Errors))
	for _, e := range res.Errors {
		slog.WarnContext(ctx, "ingest module failed", "job_id", res.JobID, "error", e.Error())
	}
	if status == ingest.StatusCancelled {
		return res, fmt.Errorf("ingest job %d of %s: %s", res.JobID, cfg, job.Snapshot(false).CancelReason)
	}
	return res, nil
}

func (s *Service) batch(ctx context.Context, ds store.DataSource, src datasource.Source, settings ingest.Settings) (*ingest.Job, error) {
	var n int
	err := walkChunks(ctx, src, func(entries []datasource.Entry) error {
		_, err := s.store.AddFiles(ctx, ds.ID(), entries)
		n += len(entries)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "data source walked", "files", n)
	return s.manager.StartJob(ctx, ds, settings)
}

func (s *Service) stream(ctx context.Context, ds store.DataSource, src datasource.Source, settings ingest.Settings) (*ingest.Job, error) {
	stream, err := s.manager.OpenStream(ctx, ds, settings)
	if err != nil {
		return nil, err
	}
	err = walkChunks(ctx, src, func(entries []datasource.Entry) error {
		files, err := s.store.AddFiles(ctx, ds.ID(), entries)
		if err != nil {
			return err
		}
		ids := make([]int64, len(files))
		for i, f := range files {
			ids[i] = f.ID
		}
		return stream.AddFiles(ids...)
	})
	if err != nil {
		// a cancelled stream only finishes once it is closed
		stream.Job().Cancel(ingest.ServicesDown)
		_ = stream.Close()
		<-stream.Job().Done()
		return nil, err
	}
	if err := stream.Close(); err != nil {
		return nil, err
	}
	return stream.Job(), nil
}

// walkChunks passes the entries of src to fn in chunks. Entries the walk
// fails on are logged and skipped, only the end of ctx stops it.
func walkChunks(ctx context.Context, src datasource.Source, fn func([]datasource.Entry) error) error {
	chunk := make([]datasource.Entry, 0, chunkSize)
	for entry, err := range src.Walk(ctx) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.WarnContext(ctx, "walking data source entry failed", "path", entry.Path, "error", err)
			continue
		}
		chunk = append(chunk, entry)
		if len(chunk) < chunkSize {
			continue
		}
		if err := fn(chunk); err != nil {
			return err
		}
		chunk = chunk[:0]
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(chunk) == 0 {
		return nil
	}
	return fn(chunk)
}

func (s *Service) settings() ingest.Settings {
	cfg := s.cfg.Ingest
	templates := modules.Templates(cfg, modules.Deps{
		Catalog:   s.store,
		Builder:   bom.NewBuilder(),
		Uploaders: s.uploaders,
	})
	return ingest.Settings{
		Context:   "ingestor",
		Templates: templates,
		Pipelines: ingest.PipelineConfig{
			HighPriorityDataSource: cfg.Pipelines.HighPriorityDataSource,
			LowPriorityDataSource:  cfg.Pipelines.LowPriorityDataSource,
			File:                   cfg.Pipelines.File,
		},
		ProcessUnallocated: cfg.ProcessUnallocated == nil || *cfg.ProcessUnallocated,
		Filter:             s.filter,
	}
}

// Close releases the data sources, the uploaders and the case.
func (s *Service) Close() error {
	var errs []error
	for _, src := range s.sources {
		errs = append(errs, src.Close())
	}
	for _, u := range s.uploaders {
		if c, ok := u.(model.UploadCloser); ok {
			errs = append(errs, c.Close())
		}
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}
