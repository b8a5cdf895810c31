package ingest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	calls []string
}

func (s *recordingSink) Start(bar Bar, title string, _ func()) {
	s.calls = append(s.calls, fmt.Sprintf("start %d %s", bar, title))
}

func (s *recordingSink) SwitchToDeterminate(bar Bar, total int64) {
	s.calls = append(s.calls, fmt.Sprintf("determinate %d %d", bar, total))
}

func (s *recordingSink) SwitchToIndeterminate(bar Bar) {
	s.calls = append(s.calls, fmt.Sprintf("indeterminate %d", bar))
}

func (s *recordingSink) Progress(bar Bar, message string, done int64) {
	s.calls = append(s.calls, fmt.Sprintf("progress %d %s %d", bar, message, done))
}

func (s *recordingSink) Finish(bar Bar) {
	s.calls = append(s.calls, fmt.Sprintf("finish %d", bar))
}

func TestProgressReporter(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	r := newProgressReporter(sink)

	r.progress(BarFile, "ignored before start", 1)
	r.start(BarFile, "files", nil)
	r.start(BarFile, "files again", nil)
	r.determinate(BarFile, 2)
	r.fileStarted("a", 1, 2)
	r.fileStarted("b", 2, 2)
	r.fileFinished("a")
	r.fileStarted("c", 3, 2)
	r.fileFinished("b")
	r.fileFinished("c")
	r.start(BarDataSource, "data source", nil)
	r.cancelling(UserCancelled)
	r.finish(BarDataSource)
	r.close()
	r.close()
	r.fileStarted("late", 4, 2)

	require.Equal(t, []string{
		"start 1 files",
		"determinate 1 2",
		"progress 1 a 1",
		"progress 1 a 2",
		"progress 1 b 2",
		"progress 1 b 2",
		"progress 1 c 2",
		"start 0 data source",
		"progress 0 cancelling (user_cancelled) 0",
		"progress 1 cancelling (user_cancelled) 2",
		"finish 0",
		"finish 1",
	}, sink.calls)
}

func TestNilProgressReporter(t *testing.T) {
	t.Parallel()
	r := newProgressReporter(nil)
	require.Nil(t, r)
	r.start(BarFile, "files", nil)
	r.fileStarted("a", 1, 1)
	r.close()
}
