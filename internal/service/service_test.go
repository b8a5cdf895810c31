package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	"github.com/CZERTAINLY/Ingestor/internal/model"
	"github.com/CZERTAINLY/Ingestor/internal/service"
	"github.com/CZERTAINLY/Ingestor/internal/store"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/stretchr/testify/require"
)

func evidence(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string][]byte{
		"etc/ssl/leaf.pem": pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: selfSigned(t)}),
		"notes.txt":        []byte("nothing to see"),
		"var/log/app.log":  []byte("started\n"),
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, content, 0o644))
	}
	return root
}

func config(t *testing.T, mode string) model.Config {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Case.Dir = filepath.Join(t.TempDir(), "case")
	cfg.Ingest.Mode = mode
	cfg.Ingest.Snapshot = &model.Snapshot{Duration: "PT0.05S"}
	cfg.DataSources = []model.DataSource{{Type: model.DataSourceLocal, Path: evidence(t)}}
	cfg.Service.Dir = filepath.Join(t.TempDir(), "reports")
	return cfg
}

func TestService(t *testing.T) {
	t.Parallel()
	for _, mode := range []string{model.ModeBatch, model.ModeStreaming} {
		t.Run(mode, func(t *testing.T) {
			t.Parallel()
			cfg := config(t, mode)
			ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
			defer cancel()

			s, err := service.New(ctx, cfg)
			require.NoError(t, err)
			results, err := s.Do(ctx)
			require.NoError(t, err)
			require.NoError(t, s.Close())

			require.Len(t, results, 1)
			require.Equal(t, ingest.StatusCompleted, results[0].Status)
			require.Empty(t, results[0].Errors)

			entries, err := os.ReadDir(cfg.Service.Dir)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			require.True(t, strings.HasSuffix(entries[0].Name(), "-1.cbom.json"), entries[0].Name())

			raw, err := os.ReadFile(filepath.Join(cfg.Service.Dir, entries[0].Name()))
			require.NoError(t, err)
			var bom cdx.BOM
			require.NoError(t, json.Unmarshal(raw, &bom))
			require.NotNil(t, bom.Components)
			var certs int
			for _, c := range *bom.Components {
				if c.CryptoProperties != nil && c.CryptoProperties.AssetType == cdx.CryptoAssetTypeCertificate {
					certs++
				}
			}
			require.Equal(t, 1, certs)

			st, err := store.Open(ctx, cfg.Case.Dir)
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			n, err := st.CountFiles(ctx, 1)
			require.NoError(t, err)
			require.EqualValues(t, 3, n)
			jobs, err := st.Jobs(ctx, 1)
			require.NoError(t, err)
			require.Len(t, jobs, 1)
			require.Equal(t, ingest.StatusCompleted.String(), jobs[0].Status)
			require.NotNil(t, jobs[0].End)
		})
	}
}

func TestServiceCancel(t *testing.T) {
	t.Parallel()
	cfg := config(t, model.ModeBatch)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	s, err := service.New(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err = s.Do(ctx)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}
	require.Error(t, err)
}

func TestServiceNew(t *testing.T) {
	t.Parallel()
	cfg := config(t, model.ModeBatch)
	cfg.DataSources = append(cfg.DataSources, model.DataSource{Type: "tape"})
	_, err := service.New(t.Context(), cfg)
	require.ErrorIs(t, err, model.ErrUnsupportedDataSource)

	cfg = config(t, model.ModeBatch)
	cfg.Ingest.Filter.Include = []string{"[a-"}
	_, err = service.New(t.Context(), cfg)
	require.Error(t, err)
}

func TestUploaders(t *testing.T) {
	t.Parallel()

	t.Run("writer", func(t *testing.T) {
		var buf bytes.Buffer
		u := service.NewWriteUploader(&buf)
		require.NoError(t, u.Upload(t.Context(), "a.json", []byte("{}\n")))
		require.NoError(t, u.Upload(t.Context(), "b.json", []byte("[]\n")))
		require.Equal(t, "{}\n[]\n", buf.String())
	})

	t.Run("os root", func(t *testing.T) {
		dir := t.TempDir()
		u, err := service.NewOSRootUploader(dir)
		require.NoError(t, err)
		require.NoError(t, u.Upload(t.Context(), "ds-1.cbom.json", []byte("{}")))
		raw, err := os.ReadFile(filepath.Join(dir, "ds-1.cbom.json"))
		require.NoError(t, err)
		require.Equal(t, "{}", string(raw))

		require.Error(t, u.Upload(t.Context(), "../escape.json", []byte("{}")))
		require.NoError(t, u.Close())
		require.Error(t, u.Close())
		require.Error(t, u.Upload(t.Context(), "x.json", nil))
	})
}
