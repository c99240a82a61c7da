package logdict

import "log/slog"

// Formatter renders one entry as a single line without the trailing
// newline. Rendering must not fail; anything fallible belongs in the
// factory that builds the formatter.
type Formatter interface {
	Format(e Entry) []byte
}

// Filter decides whether a handler keeps an entry. Filters run after the
// handler's level gate, in declaration order; the first refusal drops the
// record for that handler only.
type Filter interface {
	Allow(e Entry) bool
}

// Sink is the destination side of a handler. WriteLevel receives one
// formatted line per record, newline included, and may be called from any
// goroutine. Close releases sink resources; stream sinks treat it as a
// no-op.
type Sink interface {
	WriteLevel(level slog.Level, p []byte) (n int, err error)
	Close() error
}

// filePather is implemented by file-backed sinks so the manager can report
// which paths are currently open (retention sweeps must skip them).
type filePather interface {
	Path() string
}
