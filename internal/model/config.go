package model

import (
	"errors"
	"fmt"
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ModeBatch     = "batch"
	ModeStreaming = "streaming"

	DataSourceLocal = "local"
	DataSourceImage = "image"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	DefaultFileThreads     = 4
	DefaultArtifactThreads = 1
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx      *cue.Context
	definitions cue.Value
	schema      cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}
	definitions = compiled

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version     int          `json:"version" yaml:"version"` // fixed 0 for now
	Case        Case         `json:"case" yaml:"case"`
	Ingest      Ingest       `json:"ingest" yaml:"ingest"`
	DataSources []DataSource `json:"data_sources" yaml:"data_sources"`
	Service     Service      `json:"service" yaml:"service"`
}

// Case is the directory holding the case database and derived files.
type Case struct {
	Dir string `json:"dir" yaml:"dir"`
}

type Ingest struct {
	Mode               string         `json:"mode,omitempty" yaml:"mode,omitempty"` // "batch" | "streaming"
	Threads            Threads        `json:"threads" yaml:"threads"`
	ProcessUnallocated *bool          `json:"process_unallocated,omitempty" yaml:"process_unallocated,omitempty"`
	Filter             Filter         `json:"filter" yaml:"filter"`
	Modules            []ModuleToggle `json:"modules,omitempty" yaml:"modules,omitempty"`
	Pipelines          Pipelines      `json:"pipelines" yaml:"pipelines"`
	Snapshot           *Snapshot      `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
}

type Threads struct {
	File     int `json:"file,omitempty" yaml:"file,omitempty"`
	Artifact int `json:"artifact,omitempty" yaml:"artifact,omitempty"`
}

// Filter selects the files of a data source which enter the file pipeline.
type Filter struct {
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	MaxSize int64    `json:"max_size,omitempty" yaml:"max_size,omitempty"` // 0 means no limit
}

type ModuleToggle struct {
	Name    string `json:"name" yaml:"name"`
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// Pipelines lists module names in the order they run. Modules not listed
// are appended after the listed ones.
type Pipelines struct {
	HighPriorityDataSource []string `json:"high_priority_data_source,omitempty" yaml:"high_priority_data_source,omitempty"`
	LowPriorityDataSource  []string `json:"low_priority_data_source,omitempty" yaml:"low_priority_data_source,omitempty"`
	File                   []string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Snapshot is a tagged union: an ISO 8601 duration or a cron expression.
type Snapshot struct {
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
}

// Interval returns how often snapshots are taken.
func (s Snapshot) Interval() (time.Duration, error) {
	switch {
	case s.Duration != "" && s.Cron != "":
		return 0, errors.New("snapshot: duration and cron are mutually exclusive")
	case s.Duration != "":
		return ParseISODuration(s.Duration)
	case s.Cron != "":
		return ParseCron(s.Cron)
	default:
		return 0, errors.New("snapshot: duration or cron is required")
	}
}

// DataSource is a tagged union discriminated by Type.
type DataSource struct {
	Type  string `json:"type" yaml:"type"`                       // "local" | "image"
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`   // required for local
	Image string `json:"image,omitempty" yaml:"image,omitempty"` // required for image
}

func (d DataSource) String() string {
	switch d.Type {
	case DataSourceLocal:
		return d.Path
	case DataSourceImage:
		return d.Image
	default:
		return d.Type
	}
}

type Service struct {
	Verbose bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Log     string `json:"log,omitempty" yaml:"log,omitempty"` // "stderr"|"stdout"|"discard"|path
	Dir     string `json:"dir,omitempty" yaml:"dir,omitempty"` // report directory, stdout if empty
}

// ModuleEnabled reports whether the module name is not switched off.
func (i Ingest) ModuleEnabled(name string) bool {
	for _, m := range i.Modules {
		if m.Name == name && m.Enabled != nil {
			return *m.Enabled
		}
	}
	return true
}

func (c *Config) applyDefaults() {
	if c.Ingest.Mode == "" {
		c.Ingest.Mode = ModeBatch
	}
	if c.Ingest.Threads.File == 0 {
		c.Ingest.Threads.File = DefaultFileThreads
	}
	if c.Ingest.Threads.Artifact == 0 {
		c.Ingest.Threads.Artifact = DefaultArtifactThreads
	}
	if c.Ingest.ProcessUnallocated == nil {
		t := true
		c.Ingest.ProcessUnallocated = &t
	}
	if c.Service.Log == "" {
		c.Service.Log = LogStderr
	}
}

// DefaultConfig analyzes the current directory in batch mode.
func DefaultConfig() Config {
	cfg := Config{
		Version: 0,
		Case:    Case{Dir: "case"},
		Ingest: Ingest{
			Pipelines: Pipelines{
				HighPriorityDataSource: []string{"inventory"},
				LowPriorityDataSource:  []string{"report"},
				File:                   []string{"hashes", "archive", "certificates"},
			},
			Snapshot: &Snapshot{Duration: "PT30S"},
		},
		DataSources: []DataSource{{Type: DataSourceLocal, Path: "."}},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}
	out.applyDefaults()

	if out.Ingest.Snapshot != nil {
		if _, err := out.Ingest.Snapshot.Interval(); err != nil {
			return nil, fmt.Errorf("ingest.%w", err)
		}
	}

	return &out, nil
}
