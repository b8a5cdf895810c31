// Package datasource exposes the files of an evidence source: a local
// directory tree or the squashed file system of a container image.
package datasource

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/CZERTAINLY/Ingestor/internal/model"
)

// Entry is a regular file found by Walk. Path is absolute within the
// data source and uses forward slashes.
type Entry struct {
	Path string
	Size int64
}

// Source is a data source whose files can be listed and read.
type Source interface {
	// Name identifies the source, a directory path or an image reference.
	Name() string
	// Walk yields every regular file. Symbolic links are not followed.
	// An error for a single entry does not stop the walk.
	Walk(ctx context.Context) iter.Seq2[Entry, error]
	Open(path string) (io.ReadCloser, error)
	Close() error
}

// Open returns the Source described by cfg.
func Open(ctx context.Context, cfg model.DataSource) (Source, error) {
	switch cfg.Type {
	case model.DataSourceLocal:
		return OpenDir(cfg.Path)
	case model.DataSourceImage:
		return OpenImage(ctx, cfg.Image)
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedDataSource, cfg.Type)
	}
}
