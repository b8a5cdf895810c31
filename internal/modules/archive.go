package modules

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	"github.com/CZERTAINLY/Ingestor/internal/model"
)

const (
	maxArchiveSize = 64 << 20
	maxMemberSize  = 64 << 20
	maxMembers     = 10_000
	maxNesting     = 3
)

var zipMagic = []byte("PK\x03\x04")

type archiveFactory struct {
	factory
	deps Deps
}

func (f archiveFactory) NewFileModule() (ingest.FileModule, error) {
	return &archive{catalog: f.deps.Catalog}, nil
}

// archive extracts the members of zip files (jar, apk, docx, ...) and adds
// them to the job as derived files.
type archive struct {
	base
	catalog Catalog
}

func (m *archive) Process(ctx context.Context, f *ingest.File) error {
	if f.Size > maxArchiveSize || strings.Count(f.Path, "!/") >= maxNesting {
		return nil
	}
	b, err := readAll(ctx, m.jc, f, maxArchiveSize)
	switch {
	case errors.Is(err, model.ErrTooBig):
		return nil
	case err != nil:
		return err
	case !bytes.HasPrefix(b, zipMagic):
		return nil
	}

	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		slog.DebugContext(ctx, "not a zip archive", "err", err)
		return nil
	}

	var derived []*ingest.File
	var errs []error
	for i, zf := range zr.File {
		if i >= maxMembers {
			errs = append(errs, fmt.Errorf("%s: more than %d members", f.Path, maxMembers))
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !zf.Mode().IsRegular() || zf.UncompressedSize64 > maxMemberSize {
			continue
		}
		d, err := m.extract(ctx, f, zf)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		derived = append(derived, d)
	}

	if len(derived) > 0 {
		if err := m.jc.AddFiles(derived...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *archive) extract(ctx context.Context, parent *ingest.File, zf *zip.File) (*ingest.File, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", zf.Name, err)
	}
	defer rc.Close()
	// members are addressed as archive.zip!/member
	p := parent.Path + "!/" + strings.TrimPrefix(path.Clean("/"+zf.Name), "/")
	return m.catalog.AddDerivedFile(ctx, parent, p, io.LimitReader(rc, maxMemberSize))
}

// readAll reads the content of f, failing with model.ErrTooBig when it
// exceeds limit bytes.
func readAll(ctx context.Context, jc *ingest.JobContext, f *ingest.File, limit int64) ([]byte, error) {
	r, err := jc.Open(ctx, f)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := io.ReadAll(io.LimitReader(ctxReader{ctx: ctx, r: r}, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, model.ErrTooBig
	}
	return b, nil
}
