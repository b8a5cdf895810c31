package modules_test

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/CZERTAINLY/Ingestor/internal/bom"
	"github.com/CZERTAINLY/Ingestor/internal/datasource"
	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	"github.com/CZERTAINLY/Ingestor/internal/model"
	"github.com/CZERTAINLY/Ingestor/internal/modules"
	"github.com/CZERTAINLY/Ingestor/internal/store"
	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T, cn string, serial int64) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2035, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func zipOf(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type memUploader struct {
	mu      sync.Mutex
	reports map[string][]byte
}

func (u *memUploader) Upload(_ context.Context, name string, raw []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.reports == nil {
		u.reports = make(map[string][]byte)
	}
	u.reports[name] = bytes.Clone(raw)
	return nil
}

type fixture struct {
	store    *store.Store
	ds       store.DataSource
	files    []*ingest.File
	uploader *memUploader
	builder  *bom.Builder
	manager  *ingest.Manager
}

func newFixture(t *testing.T, evidence map[string][]byte) *fixture {
	t.Helper()
	ctx := t.Context()
	root := t.TempDir()
	for name, content := range evidence {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, content, 0o644))
	}
	src, err := datasource.OpenDir(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	s, err := store.Open(ctx, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ds, err := s.AddDataSource(ctx, "evidence", src)
	require.NoError(t, err)
	var entries []datasource.Entry
	for e, err := range src.Walk(ctx) {
		require.NoError(t, err)
		entries = append(entries, e)
	}
	files, err := s.AddFiles(ctx, ds.ID(), entries)
	require.NoError(t, err)

	m := ingest.NewManager(ingest.Config{FileWorkers: 2, DataArtifactWorkers: 1}, ingest.Services{
		Content:    s,
		Blackboard: s,
		Recorder:   s,
	}, ingest.WithClassifier(modules.Classifier))
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	return &fixture{
		store:    s,
		ds:       ds,
		files:    files,
		uploader: &memUploader{},
		builder:  bom.NewBuilder(),
		manager:  m,
	}
}

func (f *fixture) run(t *testing.T, cfg model.Ingest) ingest.JobStatus {
	t.Helper()
	templates := modules.Templates(cfg, modules.Deps{
		Catalog:   f.store,
		Builder:   f.builder,
		Uploaders: []model.Uploader{f.uploader},
	})
	job, err := f.manager.StartJob(t.Context(), f.ds, ingest.Settings{
		Context:   "test",
		Templates: templates,
		Pipelines: ingest.PipelineConfig{
			HighPriorityDataSource: []string{modules.Inventory},
			LowPriorityDataSource:  []string{modules.Report},
		},
	})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Second)
	defer cancel()
	status, err := job.Wait(ctx)
	require.NoError(t, err)
	return status
}

func TestBuiltinModules(t *testing.T) {
	t.Parallel()
	cert := selfSigned(t, "leaf.example.net", 1)
	inner := selfSigned(t, "inner.example.net", 2)
	f := newFixture(t, map[string][]byte{
		"etc/ssl/leaf.pem": pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert}),
		"app/app.jar":      zipOf(t, map[string][]byte{"META-INF/cert.der": inner, "README": []byte("hi")}),
		"notes.txt":        []byte("nothing to see"),
	})

	require.Equal(t, ingest.StatusCompleted, f.run(t, model.Ingest{}))
	ctx := t.Context()

	all, err := f.store.Files(ctx, f.ds.ID())
	require.NoError(t, err)
	var paths []string
	for _, file := range all {
		paths = append(paths, file.Path)
		h, err := f.store.FileHashes(ctx, file.ID)
		require.NoError(t, err)
		require.Len(t, h.SHA256, 64, file.Path)
		require.Len(t, h.MD5, 32, file.Path)
	}
	require.ElementsMatch(t, []string{
		"/app/app.jar",
		"/app/app.jar!/META-INF/cert.der",
		"/app/app.jar!/README",
		"/etc/ssl/leaf.pem",
		"/notes.txt",
	}, paths)

	arts, err := f.store.Artifacts(ctx, f.ds.ID())
	require.NoError(t, err)
	var subjects []string
	var inventories int
	for _, a := range arts {
		switch a.Type {
		case modules.ArtifactCertificate:
			subjects = append(subjects, a.Attributes[modules.AttrSubject])
			require.Equal(t, "crypto/key/ecdsa-p256@1.2.840.10045.3.1.7", a.Attributes[modules.AttrPublicKey])
			require.Equal(t, "crypto/algorithm/sha-256-ecdsa@1.2.840.10045.4.3.2", a.Attributes[modules.AttrSignatureAlgorithm])
		case modules.ArtifactInventory:
			inventories++
		}
	}
	require.ElementsMatch(t, []string{"CN=leaf.example.net", "CN=inner.example.net"}, subjects)
	require.Equal(t, 1, inventories)

	name := modules.ReportName(f.ds, 1)
	require.Contains(t, f.uploader.reports, name)
	var doc cdx.BOM
	require.NoError(t, json.Unmarshal(f.uploader.reports[name], &doc))
	require.NotNil(t, doc.Components)
	var certs, algorithms int
	for _, c := range *doc.Components {
		switch c.CryptoProperties.AssetType {
		case cdx.CryptoAssetTypeCertificate:
			certs++
		case cdx.CryptoAssetTypeAlgorithm:
			algorithms++
		}
	}
	require.Equal(t, 2, certs)
	require.Equal(t, 1, algorithms)

	jobs, err := f.store.Jobs(ctx, f.ds.ID())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, ingest.StatusCompleted.String(), jobs[0].Status)
	var names []string
	for _, m := range jobs[0].Modules {
		names = append(names, m.Name)
	}
	require.True(t, slices.Contains(names, modules.Archive))
}

func TestDisabledModules(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string][]byte{
		"a.jar": zipOf(t, map[string][]byte{"b.txt": []byte("b")}),
	})
	off := false
	status := f.run(t, model.Ingest{Modules: []model.ModuleToggle{
		{Name: modules.Archive, Enabled: &off},
		{Name: modules.Report, Enabled: &off},
	}})
	require.Equal(t, ingest.StatusCompleted, status)

	n, err := f.store.CountFiles(t.Context(), f.ds.ID())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Empty(t, f.uploader.reports)
}

func TestReportName(t *testing.T) {
	t.Parallel()
	s, err := store.Open(t.Context(), t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	ds, err := s.AddDataSource(t.Context(), "docker:alpine:latest", nil)
	require.NoError(t, err)
	require.Equal(t, "docker_alpine_latest-3.cbom.json", modules.ReportName(ds, 3))
	ds, err = s.AddDataSource(t.Context(), "/", nil)
	require.NoError(t, err)
	require.Equal(t, "data-source-1.cbom.json", modules.ReportName(ds, 1))
}
