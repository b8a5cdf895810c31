package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/CZERTAINLY/Ingestor/internal/model"
)

func uploaders(cfg model.Service) ([]model.Uploader, error) {
	if cfg.Dir == "" {
		return []model.Uploader{NewWriteUploader(os.Stdout)}, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	u, err := NewOSRootUploader(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return []model.Uploader{u}, nil
}

// WriteUploader writes reports one after another to w.
type WriteUploader struct {
	mu *sync.Mutex
	w  io.Writer
}

func NewWriteUploader(w io.Writer) WriteUploader {
	return WriteUploader{mu: &sync.Mutex{}, w: w}
}

func (u WriteUploader) Upload(_ context.Context, _ string, raw []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, err := u.w.Write(raw)
	return err
}

// OSRootUploader stores every report as a file in a directory.
type OSRootUploader struct {
	mu   sync.Mutex
	root *os.Root
}

func NewOSRootUploader(path string) (*OSRootUploader, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &OSRootUploader{root: root}, nil
}

func (u *OSRootUploader) Upload(ctx context.Context, name string, b []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.root == nil {
		return errors.New("root already closed")
	}

	f, err := u.root.Create(name)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	_, err = f.Write(b)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("saving report: %w", err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	slog.InfoContext(ctx, "bom saved", "path", name)
	return nil
}

func (u *OSRootUploader) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.root == nil {
		return errors.New("uploader already closed")
	}
	err := u.root.Close()
	u.root = nil
	return err
}
