package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipelinePool(t *testing.T) {
	t.Parallel()
	var log []string
	pipelines := []*Pipeline[string]{
		newPipeline("p1", nil, steps(&stepModule{name: "a", log: &log}), nil),
		newPipeline("p2", nil, steps(&stepModule{name: "a", log: &log}), nil),
	}
	pool := newPipelinePool(pipelines)
	require.Equal(t, 2, pool.size())
	require.False(t, pool.isEmpty())

	p1, release1, err := pool.borrow(t.Context())
	require.NoError(t, err)
	p2, release2, err := pool.borrow(t.Context())
	require.NoError(t, err)
	require.NotSame(t, p1, p2)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, _, err = pool.borrow(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release1()
	release1()
	p3, release3, err := pool.borrow(t.Context())
	require.NoError(t, err)
	require.Same(t, p1, p3)

	ctx, cancel = context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, _, err = pool.borrow(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "double release must not grow the pool")

	release2()
	release3()
}

func TestEmptyPipelinePool(t *testing.T) {
	t.Parallel()
	pool := newPipelinePool([]*Pipeline[string]{newPipeline[string]("p", nil, nil, nil)})
	require.True(t, pool.isEmpty())
}
