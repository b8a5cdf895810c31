package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
)

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler adds the attributes stored in the context by ContextAttrs
// to every record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// ContextAttrs returns a context carrying attrs in addition to the ones
// already stored in ctx.
func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, _ := ctx.Value(slogKey).([]slog.Attr)
	return context.WithValue(ctx, slogKey, append(slices.Clip(a), attrs...))
}

func Attrs(ctx context.Context) []slog.Attr {
	a, _ := ctx.Value(slogKey).([]slog.Attr)
	return slices.Clone(a)
}

func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})
	return slog.New(NewContextHandler(base))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open resolves a log target: stderr, stdout, discard or a file path the
// logs are appended to.
func Open(target string) (io.Writer, io.Closer, error) {
	switch target {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	case "discard":
		return io.Discard, nopCloser{}, nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}
