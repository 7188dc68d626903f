package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler sends each record to every member that accepts its level.
type teeHandler []slog.Handler

func newTeeHandler(handlers ...slog.Handler) slog.Handler {
	var members teeHandler
	for _, h := range handlers {
		if h != nil {
			members = append(members, h)
		}
	}
	switch len(members) {
	case 0:
		return NoopHandler{}
	case 1:
		return members[0]
	}
	return members
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = fn(h)
	}
	return out
}
