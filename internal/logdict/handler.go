package logdict

import (
	"context"
	"log/slog"
)

// handler is one configured handler: a level gate, ordered filters and a
// formatter wrapped around a sink. It doubles as a slog.Handler so sinks
// built here compose with plain slog use.
type handler struct {
	id       string
	level    slog.Level
	hasLevel bool
	filters  []Filter
	fmtr     Formatter
	sink     Sink

	// onError receives sink write failures. The record is dropped either
	// way; emission never fails the logging caller.
	onError func(id string, err error)
}

// emit runs the gate chain and writes one formatted line to the sink.
func (h *handler) emit(e Entry) {
	if h.hasLevel && e.Level < h.level {
		return
	}
	for _, f := range h.filters {
		if !f.Allow(e) {
			return
		}
	}
	line := append(h.fmtr.Format(e), '\n')
	if _, err := h.sink.WriteLevel(e.Level, line); err != nil && h.onError != nil {
		h.onError(h.id, err)
	}
}

func (h *handler) Close() error { return h.sink.Close() }

func (h *handler) Enabled(_ context.Context, lvl slog.Level) bool {
	return !h.hasLevel || lvl >= h.level
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	h.emit(recordEntry(r, ""))
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &withAttrs{base: h, attrs: attrs}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &withGroup{base: h, group: name}
}

// withAttrs and withGroup carry WithAttrs/WithGroup state for any of the
// package's handlers. Groups flatten into dotted keys.

type withAttrs struct {
	base  slog.Handler
	attrs []slog.Attr
}

func (w *withAttrs) Enabled(ctx context.Context, lvl slog.Level) bool {
	return w.base.Enabled(ctx, lvl)
}

func (w *withAttrs) Handle(ctx context.Context, r slog.Record) error {
	r2 := r.Clone()
	r2.AddAttrs(w.attrs...)
	return w.base.Handle(ctx, r2)
}

func (w *withAttrs) WithAttrs(attrs []slog.Attr) slog.Handler {
	all := make([]slog.Attr, 0, len(w.attrs)+len(attrs))
	all = append(all, w.attrs...)
	all = append(all, attrs...)
	return &withAttrs{base: w.base, attrs: all}
}

func (w *withAttrs) WithGroup(name string) slog.Handler {
	return &withGroup{base: w, group: name}
}

type withGroup struct {
	base  slog.Handler
	group string
}

func (w *withGroup) Enabled(ctx context.Context, lvl slog.Level) bool {
	return w.base.Enabled(ctx, lvl)
}

func (w *withGroup) Handle(ctx context.Context, r slog.Record) error {
	if w.group == "" {
		return w.base.Handle(ctx, r)
	}
	r2 := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		r2.AddAttrs(slog.Attr{Key: w.group + "." + a.Key, Value: a.Value})
		return true
	})
	return w.base.Handle(ctx, r2)
}

func (w *withGroup) WithAttrs(attrs []slog.Attr) slog.Handler {
	qualified := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		qualified[i] = slog.Attr{Key: w.group + "." + a.Key, Value: a.Value}
	}
	return &withGroup{base: &withAttrs{base: w.base, attrs: qualified}, group: w.group}
}

func (w *withGroup) WithGroup(name string) slog.Handler {
	if w.group == "" {
		return &withGroup{base: w.base, group: name}
	}
	return &withGroup{base: w.base, group: w.group + "." + name}
}
