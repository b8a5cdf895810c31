package modules

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
)

const (
	ArtifactInventory = "inventory"
	topExtensions     = 5
)

type inventoryFactory struct {
	factory
	deps Deps
}

func (f inventoryFactory) NewDataSourceModule() (ingest.DataSourceModule, error) {
	return &inventory{catalog: f.deps.Catalog}, nil
}

// inventory summarizes the file catalog of a data source.
type inventory struct {
	base
	catalog Catalog
}

func (m *inventory) Process(ctx context.Context, ds ingest.DataSource) error {
	files, err := m.catalog.Files(ctx, ds.ID())
	if err != nil {
		return fmt.Errorf("listing files: %w", err)
	}
	m.jc.SwitchToDeterminate(int64(len(files)))

	var size, derived int64
	byExt := make(map[string]int)
	for i, f := range files {
		if ctx.Err() != nil || m.jc.IsCancelled() || m.jc.DataSourceModuleCancelled() {
			slog.DebugContext(ctx, "inventory interrupted", "files", i)
			return nil
		}
		size += f.Size
		if f.Derived {
			derived++
		}
		ext := strings.ToLower(path.Ext(f.Path))
		if ext == "" {
			ext = "none"
		}
		byExt[ext]++
		m.jc.Progress(f.Path, int64(i+1))
	}

	exts := slices.SortedFunc(maps.Keys(byExt), func(a, b string) int {
		if c := cmp.Compare(byExt[b], byExt[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if len(exts) > topExtensions {
		exts = exts[:topExtensions]
	}
	top := make([]string, len(exts))
	for i, e := range exts {
		top[i] = e + "=" + strconv.Itoa(byExt[e])
	}

	_, err = m.jc.PostArtifacts(ctx, ingest.DataArtifact{
		Type: ArtifactInventory,
		Attributes: map[string]string{
			"files":          strconv.Itoa(len(files)),
			"derived_files":  strconv.FormatInt(derived, 10),
			"bytes":          strconv.FormatInt(size, 10),
			"top_extensions": strings.Join(top, ","),
		},
	})
	return err
}
