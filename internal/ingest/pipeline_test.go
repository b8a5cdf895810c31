package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type stepModule struct {
	name     string
	log      *[]string
	startErr error
	err      error
	panics   bool
	onRun    func(ctx context.Context)
}

func (m *stepModule) StartUp(context.Context, *JobContext) error {
	*m.log = append(*m.log, "start "+m.name)
	return m.startErr
}

func (m *stepModule) Process(ctx context.Context, payload string) error {
	*m.log = append(*m.log, m.name+" "+payload)
	if m.onRun != nil {
		m.onRun(ctx)
	}
	if m.panics {
		panic("corrupt input")
	}
	return m.err
}

func (m *stepModule) ShutDown(context.Context) error {
	*m.log = append(*m.log, "stop "+m.name)
	return nil
}

func steps(mods ...*stepModule) []namedModule[string] {
	ret := make([]namedModule[string], len(mods))
	for i, m := range mods {
		ret[i] = namedModule[string]{name: m.name, module: m}
	}
	return ret
}

func TestPipelinePerformTask(t *testing.T) {
	t.Parallel()
	var log []string
	errParse := errors.New("parse error")
	p := newPipeline("test", nil, steps(
		&stepModule{name: "a", log: &log, err: errParse},
		&stepModule{name: "b", log: &log, panics: true},
		&stepModule{name: "c", log: &log},
	), nil)

	require.Empty(t, p.StartUp(t.Context()))
	require.True(t, p.IsRunning())
	require.False(t, p.StartTime().IsZero())
	errs := p.PerformTask(t.Context(), "f1")
	require.Len(t, errs, 2)

	var me ModuleError
	require.ErrorAs(t, errs[0], &me)
	require.Equal(t, "a", me.Module)
	require.ErrorIs(t, errs[0], errParse)
	require.ErrorIs(t, errs[1], ErrModulePanic)
	require.Equal(t, []string{"start a", "start b", "start c", "a f1", "b f1", "c f1"}, log)

	_, _, running := p.CurrentModule()
	require.False(t, running)
	require.Equal(t, []string{"a", "b", "c"}, p.ModuleNames())
}

func TestPipelineStartUpStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	var log []string
	errStart := errors.New("no license")
	p := newPipeline("test", nil, steps(
		&stepModule{name: "a", log: &log},
		&stepModule{name: "b", log: &log, startErr: errStart},
		&stepModule{name: "c", log: &log},
	), nil)

	errs := p.StartUp(t.Context())
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], errStart)
	require.False(t, p.IsRunning())

	require.Empty(t, p.ShutDown(t.Context()))
	require.Empty(t, p.ShutDown(t.Context()))
	require.Equal(t, []string{"start a", "start b", "stop a"}, log)
}

func TestPipelineCancellation(t *testing.T) {
	t.Parallel()
	var log []string
	var cancelled atomic.Bool
	p := newPipeline("test", nil, steps(
		&stepModule{name: "a", log: &log, onRun: func(context.Context) { cancelled.Store(true) }},
		&stepModule{name: "b", log: &log},
	), cancelled.Load)

	require.Empty(t, p.StartUp(t.Context()))
	require.Empty(t, p.PerformTask(t.Context(), "f1"))
	require.Empty(t, p.PerformTask(t.Context(), "f2"))
	require.Equal(t, []string{"start a", "start b", "a f1"}, log)
}

func TestPipelineModuleScope(t *testing.T) {
	t.Parallel()
	var log []string
	var scoped []string
	type key struct{}
	p := newPipeline("test", nil, steps(
		&stepModule{name: "a", log: &log, onRun: func(ctx context.Context) {
			scoped = append(scoped, ctx.Value(key{}).(string))
		}},
		&stepModule{name: "b", log: &log},
	), nil)
	p.scope = func(ctx context.Context, module string) (context.Context, func()) {
		return context.WithValue(ctx, key{}, module), func() { scoped = append(scoped, "done "+module) }
	}

	require.Empty(t, p.PerformTask(t.Context(), "ds"))
	require.Equal(t, []string{"a", "done a", "done b"}, scoped)
}

func TestEmptyPipeline(t *testing.T) {
	t.Parallel()
	p := newPipeline[string]("empty", nil, nil, nil)
	require.True(t, p.IsEmpty())
	require.Empty(t, p.StartUp(t.Context()))
	require.Empty(t, p.PerformTask(t.Context(), "x"))
	require.Empty(t, p.ShutDown(t.Context()))
}
