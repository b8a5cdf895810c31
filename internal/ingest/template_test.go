package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type factory struct {
	name string
}

func (f factory) Name() string    { return f.name }
func (f factory) Version() string { return "0.1.0" }

type dsOnly struct{ factory }

func (dsOnly) NewDataSourceModule() (DataSourceModule, error) { return nil, nil }

type fileOnly struct{ factory }

func (fileOnly) NewFileModule() (FileModule, error) { return nil, nil }

type artifactOnly struct{ factory }

func (artifactOnly) NewDataArtifactModule() (DataArtifactModule, error) { return nil, nil }

type dsAndFile struct{ factory }

func (dsAndFile) NewDataSourceModule() (DataSourceModule, error) { return nil, nil }
func (dsAndFile) NewFileModule() (FileModule, error)             { return nil, nil }

func enabled(fs ...Factory) []Template {
	ret := make([]Template, len(fs))
	for i, f := range fs {
		ret[i] = Template{Factory: f, Enabled: true}
	}
	return ret
}

func TestSortTemplates(t *testing.T) {
	t.Parallel()

	classify := func(f Factory) ModuleClass {
		name := f.Name()
		return ModuleClass{
			Core:     name[0] == 'c',
			External: len(name) > 1 && name[1] == 'x',
		}
	}

	type then struct {
		high, low, file, artifact []string
	}
	var testCases = []struct {
		scenario  string
		templates []Template
		cfg       PipelineConfig
		then      then
	}{
		{
			scenario:  "core before third party, native before external",
			templates: enabled(fileOnly{factory{"tx1"}}, fileOnly{factory{"cx1"}}, fileOnly{factory{"t1"}}, fileOnly{factory{"c1"}}),
			then:      then{file: []string{"c1", "cx1", "t1", "tx1"}},
		},
		{
			scenario:  "configured first in configuration order",
			templates: enabled(fileOnly{factory{"c1"}}, fileOnly{factory{"c2"}}, fileOnly{factory{"t1"}}),
			cfg:       PipelineConfig{File: []string{"t1", "missing", "c2"}},
			then:      then{file: []string{"t1", "c2", "c1"}},
		},
		{
			scenario: "unlisted data source modules run in high priority",
			templates: enabled(
				dsOnly{factory{"t1"}}, dsOnly{factory{"c1"}}, dsOnly{factory{"c2"}}, dsOnly{factory{"c3"}},
			),
			cfg:  PipelineConfig{HighPriorityDataSource: []string{"c3"}, LowPriorityDataSource: []string{"c2"}},
			then: then{high: []string{"c3", "c1", "t1"}, low: []string{"c2"}},
		},
		{
			scenario:  "template in several pipelines",
			templates: enabled(dsAndFile{factory{"c1"}}, artifactOnly{factory{"t2"}}, artifactOnly{factory{"c2"}}),
			then:      then{high: []string{"c1"}, file: []string{"c1"}, artifact: []string{"c2", "t2"}},
		},
		{
			scenario:  "disabled templates are skipped",
			templates: append(enabled(fileOnly{factory{"c1"}}), Template{Factory: fileOnly{factory{"c2"}}}),
			then:      then{file: []string{"c1"}},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			got := sortTemplates(tt.templates, tt.cfg, classify)
			require.Equal(t, tt.then.high, nilIfEmpty(templateNames(got.highPriorityDataSource)))
			require.Equal(t, tt.then.low, nilIfEmpty(templateNames(got.lowPriorityDataSource)))
			require.Equal(t, tt.then.file, nilIfEmpty(templateNames(got.file)))
			require.Equal(t, tt.then.artifact, nilIfEmpty(templateNames(got.dataArtifact)))
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestTemplateType(t *testing.T) {
	t.Parallel()
	require.Equal(t, ModuleTypeDataSource, Template{Factory: dsOnly{}}.Type())
	require.Equal(t, ModuleTypeFile, Template{Factory: fileOnly{}}.Type())
	require.Equal(t, ModuleTypeDataArtifact, Template{Factory: artifactOnly{}}.Type())
	require.Equal(t, ModuleTypeMultiple, Template{Factory: dsAndFile{}}.Type())
	require.Equal(t, "multiple", ModuleTypeMultiple.String())
}

func TestPrefixClassifier(t *testing.T) {
	t.Parallel()
	classify := PrefixClassifier("core.")
	require.True(t, classify(factory{"core.hashes"}).Core)
	require.False(t, classify(factory{"vendor.yara"}).Core)
	require.False(t, classify(factory{"core.hashes"}).External)
}

func TestStageTransitions(t *testing.T) {
	t.Parallel()
	require.True(t, isValidTransition(StagePipelinesStartUp, StageStreamedFileAnalysisOnly))
	require.True(t, isValidTransition(StageStreamedFileAnalysisOnly, StageFileAndHighPriorityDataSourceAnalysis))
	require.True(t, isValidTransition(StageFileAndHighPriorityDataSourceAnalysis, StageLowPriorityDataSourceAnalysis))
	require.True(t, isValidTransition(StageLowPriorityDataSourceAnalysis, StagePipelinesShutDown))
	require.False(t, isValidTransition(StageLowPriorityDataSourceAnalysis, StageFileAndHighPriorityDataSourceAnalysis))
	require.False(t, isValidTransition(StageStreamedFileAnalysisOnly, StagePipelinesShutDown))
	require.False(t, isValidTransition(StagePipelinesShutDown, StagePipelinesShutDown))
}
