package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/CZERTAINLY/Ingestor/internal/ingest"
)

// logProgress is an ingest.ProgressSink writing progress to slog. Progress
// messages of a bar are rate limited to one per interval.
type logProgress struct {
	ctx      context.Context
	title    string
	interval time.Duration

	mu     sync.Mutex
	totals [3]int64
	last   [3]time.Time
}

func newLogProgress(ctx context.Context, interval time.Duration) func(title string) ingest.ProgressSink {
	return func(title string) ingest.ProgressSink {
		return &logProgress{ctx: ctx, title: title, interval: interval}
	}
}

func (p *logProgress) Start(bar ingest.Bar, title string, _ func()) {
	p.mu.Lock()
	p.totals[bar] = -1
	p.mu.Unlock()
	slog.DebugContext(p.ctx, "progress started", "job", p.title, "bar", bar.String(), "title", title)
}

func (p *logProgress) SwitchToDeterminate(bar ingest.Bar, total int64) {
	p.mu.Lock()
	p.totals[bar] = total
	p.mu.Unlock()
}

func (p *logProgress) SwitchToIndeterminate(bar ingest.Bar) {
	p.mu.Lock()
	p.totals[bar] = -1
	p.mu.Unlock()
}

func (p *logProgress) Progress(bar ingest.Bar, message string, done int64) {
	p.mu.Lock()
	now := time.Now()
	if now.Sub(p.last[bar]) < p.interval {
		p.mu.Unlock()
		return
	}
	p.last[bar] = now
	total := p.totals[bar]
	p.mu.Unlock()

	attrs := []any{"job", p.title, "bar", bar.String(), "message", message, "done", done}
	if total >= 0 {
		attrs = append(attrs, "total", total)
	}
	slog.InfoContext(p.ctx, "progress", attrs...)
}

func (p *logProgress) Finish(bar ingest.Bar) {
	slog.DebugContext(p.ctx, "progress finished", "job", p.title, "bar", bar.String())
}
