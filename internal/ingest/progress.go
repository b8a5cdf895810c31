package ingest

import (
	"slices"
	"sync"
)

// Bar identifies one progress indicator of a job.
type Bar int

const (
	BarDataSource Bar = iota
	BarFile
	BarDataArtifact
)

func (b Bar) String() string {
	switch b {
	case BarDataSource:
		return "data_source"
	case BarFile:
		return "file"
	case BarDataArtifact:
		return "data_artifact"
	default:
		return "unknown"
	}
}

// ProgressSink displays job progress. All calls of one job come from a
// single goroutine. cancel passed to Start may be invoked by the sink at
// any time.
type ProgressSink interface {
	Start(bar Bar, title string, cancel func())
	SwitchToDeterminate(bar Bar, total int64)
	SwitchToIndeterminate(bar Bar)
	Progress(bar Bar, message string, done int64)
	Finish(bar Bar)
}

type progressState struct {
	sink     ProgressSink
	started  [3]bool
	done     [3]int64
	inFlight []string
}

func (s *progressState) start(bar Bar, title string, cancel func()) {
	if s.started[bar] {
		return
	}
	s.started[bar] = true
	s.sink.Start(bar, title, cancel)
}

func (s *progressState) finish(bar Bar) {
	if !s.started[bar] {
		return
	}
	s.started[bar] = false
	s.sink.Finish(bar)
}

// progressReporter owns the progress state of a job. The executor talks to
// it by messages only. A nil reporter discards everything.
type progressReporter struct {
	msgs chan func(*progressState)
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newProgressReporter(sink ProgressSink) *progressReporter {
	if sink == nil {
		return nil
	}
	r := &progressReporter{
		msgs: make(chan func(*progressState), 256),
		done: make(chan struct{}),
	}
	go r.loop(&progressState{sink: sink})
	return r
}

func (r *progressReporter) loop(s *progressState) {
	defer close(r.done)
	for msg := range r.msgs {
		msg(s)
	}
	for bar := range s.started {
		s.finish(Bar(bar))
	}
}

func (r *progressReporter) send(msg func(*progressState)) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.msgs <- msg
}

func (r *progressReporter) start(bar Bar, title string, cancel func()) {
	r.send(func(s *progressState) { s.start(bar, title, cancel) })
}

func (r *progressReporter) determinate(bar Bar, total int64) {
	r.send(func(s *progressState) {
		if s.started[bar] {
			s.sink.SwitchToDeterminate(bar, total)
		}
	})
}

func (r *progressReporter) indeterminate(bar Bar) {
	r.send(func(s *progressState) {
		if s.started[bar] {
			s.sink.SwitchToIndeterminate(bar)
		}
	})
}

func (r *progressReporter) progress(bar Bar, message string, done int64) {
	r.send(func(s *progressState) {
		if !s.started[bar] {
			return
		}
		if done >= 0 {
			s.done[bar] = done
		}
		s.sink.Progress(bar, message, s.done[bar])
	})
}

// fileStarted reports a file entering a file pipeline. done is clamped to
// estimated.
func (r *progressReporter) fileStarted(name string, done, estimated int64) {
	r.send(func(s *progressState) {
		s.inFlight = append(s.inFlight, name)
		if done <= estimated {
			s.done[BarFile] = done
		}
		if s.started[BarFile] {
			s.sink.Progress(BarFile, s.inFlight[0], s.done[BarFile])
		}
	})
}

func (r *progressReporter) fileFinished(name string) {
	r.send(func(s *progressState) {
		if i := slices.Index(s.inFlight, name); i >= 0 {
			s.inFlight = slices.Delete(s.inFlight, i, i+1)
		}
		if len(s.inFlight) > 0 && s.started[BarFile] {
			s.sink.Progress(BarFile, s.inFlight[0], s.done[BarFile])
		}
	})
}

func (r *progressReporter) cancelling(reason CancelReason) {
	r.send(func(s *progressState) {
		for bar, ok := range s.started {
			if ok {
				s.sink.Progress(Bar(bar), "cancelling ("+reason.String()+")", s.done[bar])
			}
		}
	})
}

func (r *progressReporter) finish(bar Bar) {
	r.send(func(s *progressState) { s.finish(bar) })
}

// close finishes all bars and waits for the reporter to drain.
func (r *progressReporter) close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.msgs)
	r.mu.Unlock()
	<-r.done
}
