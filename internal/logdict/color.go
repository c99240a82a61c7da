package logdict

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// SGR prefixes per level band, ordered high to low. Everything is
// italicized; CRITICAL is bold red, the rest use 256-color foregrounds.
var colorByLevel = []struct {
	level  slog.Level
	prefix string
}{
	{LevelCritical, "\x1b[31;1m\x1b[3m"},
	{slog.LevelError, "\x1b[38;5;196m\x1b[3m"},
	{slog.LevelWarn, "\x1b[38;5;226m\x1b[3m"},
	{slog.LevelInfo, "\x1b[38;5;39m\x1b[3m"},
	{slog.LevelDebug, "\x1b[0;32m\x1b[3m"},
}

const colorReset = "\x1b[0m"

// colorFormatter wraps a template formatter in per-level SGR color. Built
// by the "color" factory.
type colorFormatter struct {
	inner Formatter
}

func newColorFormatter(spec FormatterSpec) (Formatter, error) {
	inner, err := newTemplateFormatter(spec)
	if err != nil {
		return nil, err
	}
	switch spec.Color {
	case "always":
	case "never":
		return inner, nil
	default:
		// auto: color only a real terminal, and honor NO_COLOR.
		if !colorTerminal() {
			return inner, nil
		}
	}
	return &colorFormatter{inner: inner}, nil
}

func colorTerminal() bool {
	if _, off := os.LookupEnv("NO_COLOR"); off {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (f *colorFormatter) Format(e Entry) []byte {
	line := f.inner.Format(e)
	b := make([]byte, 0, len(line)+16)
	b = append(b, levelColor(e.Level)...)
	b = append(b, line...)
	b = append(b, colorReset...)
	return b
}

func levelColor(l slog.Level) string {
	for _, c := range colorByLevel {
		if l >= c.level {
			return c.prefix
		}
	}
	return colorByLevel[len(colorByLevel)-1].prefix
}
