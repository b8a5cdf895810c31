package modules

import (
	"context"
	"crypto/md5" //nolint:gosec // md5 is a forensic identifier, not a security control
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	"github.com/CZERTAINLY/Ingestor/internal/store"
)

type hashesFactory struct {
	factory
	deps Deps
}

func (f hashesFactory) NewFileModule() (ingest.FileModule, error) {
	return &hashes{catalog: f.deps.Catalog}, nil
}

// hashes stores MD5 and SHA-256 digests of every file.
type hashes struct {
	base
	catalog Catalog
}

func (m *hashes) Process(ctx context.Context, f *ingest.File) error {
	r, err := m.jc.Open(ctx, f)
	if err != nil {
		return err
	}
	defer r.Close()

	m5 := md5.New() //nolint:gosec
	s256 := sha256.New()
	if _, err := io.Copy(io.MultiWriter(m5, s256), ctxReader{ctx: ctx, r: r}); err != nil {
		return fmt.Errorf("reading %s: %w", f.Path, err)
	}
	return m.catalog.SetFileHashes(ctx, f.ID, store.Hashes{
		MD5:    hex.EncodeToString(m5.Sum(nil)),
		SHA256: hex.EncodeToString(s256.Sum(nil)),
	})
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
