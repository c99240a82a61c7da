package logdict

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelCritical sits one band above slog.LevelError and corresponds to the
// CRITICAL severity of logging documents.
const LevelCritical = slog.LevelError + 4

var levelByName = map[string]slog.Level{
	"DEBUG":    slog.LevelDebug,
	"INFO":     slog.LevelInfo,
	"WARNING":  slog.LevelWarn,
	"ERROR":    slog.LevelError,
	"CRITICAL": LevelCritical,
}

// ParseLevel resolves a document level name. Matching is case-insensitive
// and WARN is accepted as an alias for WARNING.
func ParseLevel(name string) (slog.Level, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	if s == "WARN" {
		s = "WARNING"
	}
	if lvl, ok := levelByName[s]; ok {
		return lvl, nil
	}
	return 0, fmt.Errorf("unknown level %q", name)
}

// LevelName renders a slog level using document spelling. Levels between
// the named bands collapse onto the band below, mirroring slog itself.
func LevelName(l slog.Level) string {
	switch {
	case l >= LevelCritical:
		return "CRITICAL"
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
