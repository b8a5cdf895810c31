package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ModuleError is a failure of one module. It never stops the pipeline.
type ModuleError struct {
	Module string
	Err    error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e ModuleError) Unwrap() error {
	return e.Err
}

type pipelineModule[P any] struct {
	name    string
	module  Processor[P]
	started bool
}

// moduleScope is called around every module invocation of a data source
// pipeline. It returns the context for the module and a func called once the
// module returned.
type moduleScope func(ctx context.Context, module string) (context.Context, func())

// Pipeline is an ordered, immutable list of modules over payload P.
type Pipeline[P any] struct {
	name      string
	jc        *JobContext
	modules   []*pipelineModule[P]
	cancelled func() bool
	scope     moduleScope

	mu           sync.Mutex
	running      bool
	startTime    time.Time
	current      string
	currentStart time.Time
}

type namedModule[P any] struct {
	name   string
	module Processor[P]
}

func newPipeline[P any](name string, jc *JobContext, modules []namedModule[P], cancelled func() bool) *Pipeline[P] {
	p := &Pipeline[P]{
		name:      name,
		jc:        jc,
		cancelled: cancelled,
		modules:   make([]*pipelineModule[P], 0, len(modules)),
	}
	if p.cancelled == nil {
		p.cancelled = func() bool { return false }
	}
	for _, m := range modules {
		p.modules = append(p.modules, &pipelineModule[P]{name: m.name, module: m.module})
	}
	return p
}

func (p *Pipeline[P]) Name() string {
	return p.name
}

func (p *Pipeline[P]) IsEmpty() bool {
	return len(p.modules) == 0
}

func (p *Pipeline[P]) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// StartTime is the time the pipeline was started, zero when it is not
// running.
func (p *Pipeline[P]) StartTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startTime
}

// CurrentModule returns the name of the module processing a payload and
// since when.
func (p *Pipeline[P]) CurrentModule() (string, time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.currentStart, p.current != ""
}

func (p *Pipeline[P]) ModuleNames() []string {
	ret := make([]string, len(p.modules))
	for i, m := range p.modules {
		ret[i] = m.name
	}
	return ret
}

// StartUp starts the modules in order and stops at the first failure.
func (p *Pipeline[P]) StartUp(ctx context.Context) []error {
	for _, m := range p.modules {
		err := safeCall(func() error {
			return m.module.StartUp(ctx, p.jc)
		})
		if err != nil {
			return []error{ModuleError{Module: m.name, Err: err}}
		}
		m.started = true
	}
	p.mu.Lock()
	p.running = true
	p.startTime = time.Now()
	p.mu.Unlock()
	return nil
}

// PerformTask runs every module against payload. Module failures are
// collected and the next module runs. Remaining modules are skipped once the
// job is cancelled.
func (p *Pipeline[P]) PerformTask(ctx context.Context, payload P) []error {
	var errs []error
	for _, m := range p.modules {
		if p.cancelled() {
			break
		}
		mctx, done := ctx, func() {}
		if p.scope != nil {
			mctx, done = p.scope(ctx, m.name)
		}
		p.setCurrent(m.name)
		err := safeCall(func() error {
			return m.module.Process(mctx, payload)
		})
		p.setCurrent("")
		done()
		if err != nil {
			errs = append(errs, ModuleError{Module: m.name, Err: err})
		}
	}
	return errs
}

// ShutDown shuts down every started module. It is safe to call more than
// once.
func (p *Pipeline[P]) ShutDown(ctx context.Context) []error {
	var errs []error
	for _, m := range p.modules {
		if !m.started {
			continue
		}
		m.started = false
		err := safeCall(func() error {
			return m.module.ShutDown(ctx)
		})
		if err != nil {
			errs = append(errs, ModuleError{Module: m.name, Err: err})
		}
	}
	p.mu.Lock()
	p.running = false
	p.startTime = time.Time{}
	p.mu.Unlock()
	for _, err := range errs {
		slog.WarnContext(ctx, "module shut down failed", "pipeline", p.name, "error", err)
	}
	return errs
}

func (p *Pipeline[P]) setCurrent(name string) {
	p.mu.Lock()
	p.current = name
	if name != "" {
		p.currentStart = time.Now()
	} else {
		p.currentStart = time.Time{}
	}
	p.mu.Unlock()
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrModulePanic, r, debug.Stack())
		}
	}()
	return fn()
}

// StartUpError carries every module start up failure of a job.
type StartUpError struct {
	Errs []error
}

func (e *StartUpError) Error() string {
	return "ingest modules failed to start: " + errors.Join(e.Errs...).Error()
}

func (e *StartUpError) Unwrap() []error {
	return e.Errs
}
