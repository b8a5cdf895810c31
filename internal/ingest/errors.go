package ingest

import "errors"

var (
	ErrModulePanic     = errors.New("module panicked")
	ErrNoIngestModules = errors.New("no ingest modules enabled")
	ErrJobNotFound     = errors.New("ingest job not found")
	ErrStreamClosed    = errors.New("file stream already closed")
	ErrUnexpectedStage = errors.New("operation not supported in current stage")
	ErrManagerClosed   = errors.New("ingest manager closed")
	ErrJobShuttingDown = errors.New("ingest job is shutting down")
	ErrJobCancelled    = errors.New("ingest job cancelled")
)
