package model

import "context"

// Uploader publishes a named report produced by an ingest job.
type Uploader interface {
	Upload(ctx context.Context, name string, raw []byte) error
}

type UploadCloser interface {
	Uploader
	Close() error
}
