package logdict

import (
	"log/slog"
	"runtime"
	"strings"
	"time"
)

// Entry is one log record as seen by formatters, filters and sinks.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Logger  string
	Message string

	// PC is the program counter of the call site as captured by slog.
	// Zero when unknown.
	PC uintptr

	Attrs []slog.Attr
}

// recordEntry converts a slog record into an Entry attributed to logger.
func recordEntry(r slog.Record, logger string) Entry {
	e := Entry{
		Time:    r.Time,
		Level:   r.Level,
		Logger:  logger,
		Message: r.Message,
		PC:      r.PC,
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if r.NumAttrs() > 0 {
		e.Attrs = make([]slog.Attr, 0, r.NumAttrs())
		r.Attrs(func(a slog.Attr) bool {
			e.Attrs = append(e.Attrs, a)
			return true
		})
	}
	return e
}

// source resolves the call site function and line from the record PC.
func (e Entry) source() (fn string, line int) {
	if e.PC == 0 {
		return "???", 0
	}
	frames := runtime.CallersFrames([]uintptr{e.PC})
	f, _ := frames.Next()
	fn = f.Function
	if i := strings.LastIndexByte(fn, '/'); i >= 0 {
		fn = fn[i+1:]
	}
	if fn == "" {
		fn = "???"
	}
	return fn, f.Line
}
