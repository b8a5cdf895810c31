package ingest_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
	"github.com/stretchr/testify/require"
)

type dataSource struct {
	id   int64
	name string
}

func (d dataSource) ID() int64    { return d.id }
func (d dataSource) Name() string { return d.name }

var testDS = dataSource{id: 1, name: "evidence"}

// memCase is an in memory content accessor and blackboard.
type memCase struct {
	mu        sync.Mutex
	nextID    int64
	files     map[int64]*ingest.File
	order     []int64
	artifacts []ingest.DataArtifact
	broken    map[int64]bool
}

func newMemCase(n int) *memCase {
	c := &memCase{
		files:  make(map[int64]*ingest.File),
		broken: make(map[int64]bool),
	}
	for i := range n {
		c.add(&ingest.File{
			DataSourceID: testDS.id,
			Path:         fmt.Sprintf("dir/file%03d.txt", i),
			Size:         int64(i),
		})
	}
	return c
}

func (c *memCase) add(f *ingest.File) *ingest.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	f.ID = c.nextID
	c.files[f.ID] = f
	c.order = append(c.order, f.ID)
	return f
}

func (c *memCase) derive(parent *ingest.File, name string) *ingest.File {
	return c.add(&ingest.File{
		DataSourceID: parent.DataSourceID,
		ParentID:     parent.ID,
		Path:         parent.Path + "/" + name,
		Derived:      true,
	})
}

func (c *memCase) ids() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.order...)
}

func (c *memCase) File(_ context.Context, id int64) (*ingest.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken[id] {
		return nil, fmt.Errorf("file %d not durable yet", id)
	}
	f, ok := c.files[id]
	if !ok {
		return nil, fmt.Errorf("file %d not found", id)
	}
	return f, nil
}

func (c *memCase) Files(_ context.Context, dsID int64) ([]*ingest.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ret []*ingest.File
	for _, id := range c.order {
		if f := c.files[id]; f.DataSourceID == dsID {
			ret = append(ret, f)
		}
	}
	return ret, nil
}

func (c *memCase) CountFiles(ctx context.Context, dsID int64) (int64, error) {
	files, err := c.Files(ctx, dsID)
	return int64(len(files)), err
}

func (c *memCase) Open(_ context.Context, f *ingest.File) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.Path)), nil
}

func (c *memCase) Artifacts(_ context.Context, dsID int64) ([]ingest.DataArtifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ret []ingest.DataArtifact
	for _, a := range c.artifacts {
		if a.DataSourceID == dsID {
			ret = append(ret, a)
		}
	}
	return ret, nil
}

func (c *memCase) PostArtifacts(_ context.Context, artifacts []ingest.DataArtifact) ([]ingest.DataArtifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]ingest.DataArtifact, len(artifacts))
	for i, a := range artifacts {
		a.ID = int64(len(c.artifacts) + 1)
		c.artifacts = append(c.artifacts, a)
		ret[i] = a
	}
	return ret, nil
}

func (c *memCase) services() ingest.Services {
	return ingest.Services{Content: c, Blackboard: c}
}

// module is a configurable module of any kind.
type module[P any] struct {
	startErr error
	startUp  func()
	process  func(ctx context.Context, jc *ingest.JobContext, p P) error
	shutDown func()

	jc *ingest.JobContext
}

func (m *module[P]) StartUp(_ context.Context, jc *ingest.JobContext) error {
	m.jc = jc
	if m.startUp != nil {
		m.startUp()
	}
	return m.startErr
}

func (m *module[P]) Process(ctx context.Context, p P) error {
	if m.process == nil {
		return nil
	}
	return m.process(ctx, m.jc, p)
}

func (m *module[P]) ShutDown(context.Context) error {
	if m.shutDown != nil {
		m.shutDown()
	}
	return nil
}

type dsFactory struct {
	name     string
	startErr error
	process  func(ctx context.Context, jc *ingest.JobContext, ds ingest.DataSource) error
	shutDown func()
}

func (f dsFactory) Name() string    { return f.name }
func (f dsFactory) Version() string { return "1.0.0" }
func (f dsFactory) NewDataSourceModule() (ingest.DataSourceModule, error) {
	return &module[ingest.DataSource]{startErr: f.startErr, process: f.process, shutDown: f.shutDown}, nil
}

type fileFactory struct {
	name     string
	startErr error
	startUp  func()
	process  func(ctx context.Context, jc *ingest.JobContext, f *ingest.File) error
}

func (f fileFactory) Name() string    { return f.name }
func (f fileFactory) Version() string { return "1.0.0" }
func (f fileFactory) NewFileModule() (ingest.FileModule, error) {
	return &module[*ingest.File]{startErr: f.startErr, startUp: f.startUp, process: f.process}, nil
}

type artifactFactory struct {
	name    string
	process func(ctx context.Context, jc *ingest.JobContext, a ingest.DataArtifact) error
}

func (f artifactFactory) Name() string    { return f.name }
func (f artifactFactory) Version() string { return "1.0.0" }
func (f artifactFactory) NewDataArtifactModule() (ingest.DataArtifactModule, error) {
	return &module[ingest.DataArtifact]{process: f.process}, nil
}

func templates(factories ...ingest.Factory) []ingest.Template {
	ret := make([]ingest.Template, len(factories))
	for i, f := range factories {
		ret[i] = ingest.Template{Factory: f, Enabled: true}
	}
	return ret
}

// paths records file paths seen by a module.
type paths struct {
	mu   sync.Mutex
	seen []string
}

func (p *paths) add(s string) {
	p.mu.Lock()
	p.seen = append(p.seen, s)
	p.mu.Unlock()
}

func (p *paths) list() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func (p *paths) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func startManager(t *testing.T, cfg ingest.Config, svc ingest.Services, opts ...ingest.Option) *ingest.Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := ingest.NewManager(cfg, svc, opts...)
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return m
}

func wait(t *testing.T, job *ingest.Job) ingest.JobStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	status, err := job.Wait(ctx)
	require.NoError(t, err, "job did not finish")
	return status
}

// sink records progress calls.
type sink struct {
	mu       sync.Mutex
	started  map[ingest.Bar]int
	finished map[ingest.Bar]int
	totals   map[ingest.Bar]int64
	messages []string
	cancel   map[ingest.Bar]func()
}

func (s *sink) Start(bar ingest.Bar, _ string, cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started == nil {
		s.started = map[ingest.Bar]int{}
		s.cancel = map[ingest.Bar]func(){}
	}
	s.started[bar]++
	s.cancel[bar] = cancel
}

func (s *sink) SwitchToDeterminate(bar ingest.Bar, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totals == nil {
		s.totals = map[ingest.Bar]int64{}
	}
	s.totals[bar] = total
}

func (s *sink) SwitchToIndeterminate(ingest.Bar) {}

func (s *sink) Progress(_ ingest.Bar, message string, _ int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
}

func (s *sink) Finish(bar ingest.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished == nil {
		s.finished = map[ingest.Bar]int{}
	}
	s.finished[bar]++
}
