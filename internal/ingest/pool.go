package ingest

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// pipelinePool hands out each pipeline to at most one borrower at a time.
type pipelinePool[P any] struct {
	sem  *semaphore.Weighted
	mu   sync.Mutex
	free []*Pipeline[P]
	all  []*Pipeline[P]
}

func newPipelinePool[P any](pipelines []*Pipeline[P]) *pipelinePool[P] {
	free := make([]*Pipeline[P], len(pipelines))
	copy(free, pipelines)
	return &pipelinePool[P]{
		sem:  semaphore.NewWeighted(int64(len(pipelines))),
		free: free,
		all:  pipelines,
	}
}

// borrow blocks until a pipeline is free. The returned release func puts
// the pipeline back and may be called any number of times.
func (p *pipelinePool[P]) borrow(ctx context.Context) (*Pipeline[P], func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	p.mu.Lock()
	pl := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			p.mu.Lock()
			p.free = append(p.free, pl)
			p.mu.Unlock()
			p.sem.Release(1)
		})
	}
	return pl, release, nil
}

func (p *pipelinePool[P]) pipelines() []*Pipeline[P] {
	return p.all
}

func (p *pipelinePool[P]) size() int {
	return len(p.all)
}

func (p *pipelinePool[P]) isEmpty() bool {
	return len(p.all) == 0 || p.all[0].IsEmpty()
}
