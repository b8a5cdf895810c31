// Package modules holds the built-in ingest modules and the registry
// turning the configuration into module templates.
package modules

import (
	"context"
	"io"
	"runtime/debug"

	"github.com/CZERTAINLY/Ingestor/internal/bom"
	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	"github.com/CZERTAINLY/Ingestor/internal/model"
	"github.com/CZERTAINLY/Ingestor/internal/store"
)

const (
	Inventory    = "inventory"
	Hashes       = "hashes"
	Archive      = "archive"
	Certificates = "certificates"
	CBOM         = "cbom"
	Report       = "report"
)

var version = "devel"

func init() {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
}

// Catalog is the part of the case the built-in modules write to.
type Catalog interface {
	Files(ctx context.Context, dataSourceID int64) ([]*ingest.File, error)
	AddDerivedFile(ctx context.Context, parent *ingest.File, path string, r io.Reader) (*ingest.File, error)
	SetFileHashes(ctx context.Context, fileID int64, h store.Hashes) error
}

// Deps are the collaborators of the built-in modules. Builder collects the
// CycloneDX components of one data source and is shared by the cbom and
// report modules.
type Deps struct {
	Catalog   Catalog
	Builder   *bom.Builder
	Uploaders []model.Uploader
}

type factory struct {
	name string
}

func (f factory) Name() string    { return f.name }
func (f factory) Version() string { return version }

// Templates returns the templates of all built-in modules, enabled as
// configured.
func Templates(cfg model.Ingest, deps Deps) []ingest.Template {
	factories := []ingest.Factory{
		inventoryFactory{factory{Inventory}, deps},
		hashesFactory{factory{Hashes}, deps},
		archiveFactory{factory{Archive}, deps},
		certificatesFactory{factory{Certificates}},
		cbomFactory{factory{CBOM}, deps},
		reportFactory{factory{Report}, deps},
	}
	ret := make([]ingest.Template, len(factories))
	for i, f := range factories {
		ret[i] = ingest.Template{Factory: f, Enabled: cfg.ModuleEnabled(f.Name())}
	}
	return ret
}

// Classifier marks the built-in modules as core ones.
func Classifier(f ingest.Factory) ingest.ModuleClass {
	switch f.Name() {
	case Inventory, Hashes, Archive, Certificates, CBOM, Report:
		return ingest.ModuleClass{Core: true}
	default:
		return ingest.ModuleClass{}
	}
}

// base is embedded by modules without start up or shut down work.
type base struct {
	jc *ingest.JobContext
}

func (b *base) StartUp(_ context.Context, jc *ingest.JobContext) error {
	b.jc = jc
	return nil
}

func (b *base) ShutDown(context.Context) error {
	return nil
}
