package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/Ingestor/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
case:
  dir: /var/lib/ingestor/case
ingest:
  mode: streaming
  threads:
    file: 8
  filter:
    include: ["**/*.pem"]
    max_size: 1048576
  modules:
    - name: archive
      enabled: false
  pipelines:
    file: [certificates, hashes]
  snapshot:
    duration: PT1M
data_sources:
  - type: local
    path: /evidence
  - type: image
    image: docker:alpine:latest
service:
  log: discard
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "/var/lib/ingestor/case", cfg.Case.Dir)
	require.Equal(t, model.ModeStreaming, cfg.Ingest.Mode)
	require.Equal(t, 8, cfg.Ingest.Threads.File)
	require.Equal(t, model.DefaultArtifactThreads, cfg.Ingest.Threads.Artifact)
	require.NotNil(t, cfg.Ingest.ProcessUnallocated)
	require.True(t, *cfg.Ingest.ProcessUnallocated)
	require.Equal(t, []string{"**/*.pem"}, cfg.Ingest.Filter.Include)
	require.EqualValues(t, 1048576, cfg.Ingest.Filter.MaxSize)
	require.False(t, cfg.Ingest.ModuleEnabled("archive"))
	require.True(t, cfg.Ingest.ModuleEnabled("hashes"))
	require.Equal(t, []string{"certificates", "hashes"}, cfg.Ingest.Pipelines.File)
	require.NotNil(t, cfg.Ingest.Snapshot)
	interval, err := cfg.Ingest.Snapshot.Interval()
	require.NoError(t, err)
	require.Equal(t, time.Minute, interval)
	require.Len(t, cfg.DataSources, 2)
	require.Equal(t, "/evidence", cfg.DataSources[0].String())
	require.Equal(t, model.DataSourceImage, cfg.DataSources[1].Type)
	require.Equal(t, model.LogDiscard, cfg.Service.Log)
}

func TestLoadConfig_Defaults(t *testing.T) {
	yml := `
version: 0
case:
  dir: case
data_sources:
  - type: local
    path: .
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, model.ModeBatch, cfg.Ingest.Mode)
	require.Equal(t, model.DefaultFileThreads, cfg.Ingest.Threads.File)
	require.Equal(t, model.LogStderr, cfg.Service.Log)
	require.Nil(t, cfg.Ingest.Snapshot)
}

func TestLoadConfig_Fail(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    string
		path     string
	}{
		{
			scenario: "local source without path",
			given: `
version: 0
case: {dir: case}
data_sources:
  - type: local
`,
			path: "data_sources.0",
		},
		{
			scenario: "unknown mode",
			given: `
version: 0
case: {dir: case}
ingest: {mode: realtime}
data_sources: [{type: local, path: .}]
`,
			path: "ingest.mode",
		},
		{
			scenario: "unknown field",
			given: `
version: 0
case: {dir: case}
data_sources: [{type: local, path: .}]
ports: {enabled: true}
`,
			path: "ports",
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := model.LoadConfig(strings.NewReader(tt.given))
			require.Error(t, err)
			details := model.CueErrDetails(err)
			require.NotEmpty(t, details)
			var paths []string
			for _, d := range details {
				paths = append(paths, d.Path)
				require.NotEmpty(t, d.Message)
			}
			require.Condition(t, func() bool {
				for _, p := range paths {
					if strings.HasPrefix(p, tt.path) {
						return true
					}
				}
				return false
			}, "paths %v", paths)
		})
	}
}

func TestSnapshotInterval(t *testing.T) {
	t.Parallel()
	_, err := model.Snapshot{Duration: "PT1S", Cron: "* * * * *"}.Interval()
	require.Error(t, err)
	_, err = model.Snapshot{}.Interval()
	require.Error(t, err)

	d, err := model.Snapshot{Cron: "*/5 * * * *"}.Interval()
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, d)

	d, err = model.Snapshot{Cron: "@hourly"}.Interval()
	require.NoError(t, err)
	require.Equal(t, time.Hour, d)
}

func TestParseISODuration(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		given string
		then  time.Duration
		err   bool
	}{
		{"PT30S", 30 * time.Second, false},
		{"P1DT2H", 26 * time.Hour, false},
		{"PT1H30M", 90 * time.Minute, false},
		{"PT0.5S", 500 * time.Millisecond, false},
		{"PT1,25S", 1250 * time.Millisecond, false},
		{"P2D", 48 * time.Hour, false},
		{"", 0, true},
		{"P", 0, true},
		{"PT", 0, true},
		{"P1DT", 0, true},
		{"P1M", 0, true},
		{"30s", 0, true},
	}
	for _, tt := range testCases {
		t.Run(tt.given, func(t *testing.T) {
			t.Parallel()
			d, err := model.ParseISODuration(tt.given)
			if tt.err {
				require.ErrorIs(t, err, model.ErrISOFormat)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.then, d)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := model.DefaultConfig()
	require.Equal(t, model.ModeBatch, cfg.Ingest.Mode)
	require.Equal(t, []string{"inventory"}, cfg.Ingest.Pipelines.HighPriorityDataSource)
	require.Len(t, cfg.DataSources, 1)
}
