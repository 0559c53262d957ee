// Package logging builds the engine's structured loggers. It follows the
// teacher's convention (runtime/app.go, main.go) of a JSON handler in
// production and a text handler for local/CLI use, both over log/slog so
// that any context.Context implementing Fielder can be passed to *Context
// logging calls and have its fields picked up automatically.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Fielder is implemented by any context carrying structured log fields to
// attach automatically (run ID, step index, suite name), in the way the
// teacher's Execution embeds context.Context (runtime/execution.go).
type Fielder interface {
	LogFields() []any
}

// New builds a logger. json selects the production JSON handler; otherwise a
// human-readable text handler is used (teacher: main.go uses text, app.go
// uses JSON for the served process).
func New(json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(&fielderHandler{Handler: handler})
}

// fielderHandler augments every record with fields contributed by a Fielder
// context, so call sites can just do logger.InfoContext(execCtx, "message").
type fielderHandler struct {
	slog.Handler
}

func (h *fielderHandler) Handle(ctx context.Context, r slog.Record) error {
	if f, ok := ctx.(Fielder); ok {
		r.Add(f.LogFields()...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *fielderHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fielderHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *fielderHandler) WithGroup(name string) slog.Handler {
	return &fielderHandler{Handler: h.Handler.WithGroup(name)}
}
