package ingest

import (
	"context"
	"strings"
)

// Module is the lifecycle shared by every ingest module. StartUp is called
// once per pipeline instance before any payload is processed, ShutDown once
// after the last one. Neither may add files or artifacts to the job.
type Module interface {
	StartUp(ctx context.Context, jc *JobContext) error
	ShutDown(ctx context.Context) error
}

// Processor is a module processing payloads of type P. Process observes
// ctx, which is cancelled when the job is cancelled.
type Processor[P any] interface {
	Module
	Process(ctx context.Context, payload P) error
}

type (
	DataSourceModule   = Processor[DataSource]
	FileModule         = Processor[*File]
	DataArtifactModule = Processor[DataArtifact]
)

// Factory creates module instances. A factory declares its capabilities by
// implementing one or more of the capability interfaces below.
type Factory interface {
	Name() string
	Version() string
}

type DataSourceModuleFactory interface {
	Factory
	NewDataSourceModule() (DataSourceModule, error)
}

type FileModuleFactory interface {
	Factory
	NewFileModule() (FileModule, error)
}

type DataArtifactModuleFactory interface {
	Factory
	NewDataArtifactModule() (DataArtifactModule, error)
}

// ModuleType is the granularity of a module as recorded for a job.
type ModuleType int

const (
	ModuleTypeDataSource ModuleType = iota + 1
	ModuleTypeFile
	ModuleTypeDataArtifact
	ModuleTypeMultiple
)

func (t ModuleType) String() string {
	switch t {
	case ModuleTypeDataSource:
		return "data_source"
	case ModuleTypeFile:
		return "file"
	case ModuleTypeDataArtifact:
		return "data_artifact"
	case ModuleTypeMultiple:
		return "multiple"
	default:
		return "unknown"
	}
}

// ParseModuleType is the inverse of ModuleType.String. Unknown names
// return zero.
func ParseModuleType(s string) ModuleType {
	for t := ModuleTypeDataSource; t <= ModuleTypeMultiple; t++ {
		if t.String() == s {
			return t
		}
	}
	return 0
}

// Template is a module factory with its enabled flag.
type Template struct {
	Factory Factory
	Enabled bool
}

func (t Template) Name() string {
	return t.Factory.Name()
}

func (t Template) IsDataSourceModuleTemplate() bool {
	_, ok := t.Factory.(DataSourceModuleFactory)
	return ok
}

func (t Template) IsFileModuleTemplate() bool {
	_, ok := t.Factory.(FileModuleFactory)
	return ok
}

func (t Template) IsDataArtifactModuleTemplate() bool {
	_, ok := t.Factory.(DataArtifactModuleFactory)
	return ok
}

func (t Template) Type() ModuleType {
	var n int
	var typ ModuleType
	if t.IsDataSourceModuleTemplate() {
		n++
		typ = ModuleTypeDataSource
	}
	if t.IsFileModuleTemplate() {
		n++
		typ = ModuleTypeFile
	}
	if t.IsDataArtifactModuleTemplate() {
		n++
		typ = ModuleTypeDataArtifact
	}
	if n > 1 {
		return ModuleTypeMultiple
	}
	return typ
}

// ModuleClass is what a Classifier knows about a factory.
type ModuleClass struct {
	// External modules run outside of the process, e.g. scripted ones.
	External bool
	// Core modules ship with the toolset and are ordered first.
	Core bool
}

// Classifier classifies module factories for pipeline ordering.
type Classifier func(Factory) ModuleClass

// PrefixClassifier treats factories whose name starts with prefix as core.
func PrefixClassifier(prefix string) Classifier {
	return func(f Factory) ModuleClass {
		return ModuleClass{Core: strings.HasPrefix(f.Name(), prefix)}
	}
}

func defaultClassifier(Factory) ModuleClass {
	return ModuleClass{Core: true}
}
