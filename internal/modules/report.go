package modules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	cdx "github.com/CycloneDX/cyclonedx-go"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type reportFactory struct {
	factory
	deps Deps
}

func (f reportFactory) NewDataSourceModule() (ingest.DataSourceModule, error) {
	return &report{deps: f.deps}, nil
}

// report writes the CycloneDX BOM collected for a data source through the
// configured uploaders.
type report struct {
	base
	deps Deps
}

func (m *report) Process(ctx context.Context, ds ingest.DataSource) error {
	if len(m.deps.Uploaders) == 0 {
		return nil
	}
	m.jc.SwitchToIndeterminate()
	m.jc.Progress("writing report", -1)

	m.deps.Builder.AppendProperties(
		cdx.Property{Name: PropDataSource, Value: ds.Name()},
		cdx.Property{Name: "czertainly:ingest:job_id", Value: strconv.FormatInt(m.jc.JobID(), 10)},
	)
	var buf bytes.Buffer
	if err := m.deps.Builder.AsJSON(&buf); err != nil {
		return fmt.Errorf("encoding bom: %w", err)
	}

	name := ReportName(ds, m.jc.JobID())
	var errs []error
	for _, u := range m.deps.Uploaders {
		if m.jc.DataSourceModuleCancelled() {
			break
		}
		if err := u.Upload(ctx, name, buf.Bytes()); err != nil {
			errs = append(errs, fmt.Errorf("uploading %s: %w", name, err))
		}
	}
	slog.InfoContext(ctx, "report written", "name", name, "components", m.deps.Builder.Len())
	return errors.Join(errs...)
}

// ReportName is the name a report of a data source is uploaded under.
func ReportName(ds ingest.DataSource, jobID int64) string {
	base := strings.Trim(unsafeName.ReplaceAllString(ds.Name(), "_"), "_.")
	if base == "" {
		base = "data-source"
	}
	return fmt.Sprintf("%s-%d.cbom.json", base, jobID)
}
