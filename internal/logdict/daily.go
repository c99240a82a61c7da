package logdict

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// dailyDateLayout prefixes daily_file names, e.g. 08.25.2026_error.log.
const dailyDateLayout = "01.02.2006"

// DailyFilePattern matches everything dailyPath produces, current files and
// their numbered rotation backups. Retention sweeps use it as the
// RetentionTarget pattern.
const DailyFilePattern = "??.??.????_*"

const dailyPad = 10

// dailySink is the "daily_file" factory sink: a size-rotating file whose
// real name is date-prefixed when the sink is built, with decorated record
// framing. INFO records are centered in a space pad under a # banner of
// the same width; other records get a dash underline as wide as their
// first line. Records are separated by blank lines. Widths count runes,
// not bytes.
type dailySink struct {
	rw *rotatingSink
}

func newDailySink(spec HandlerSpec) (Sink, error) {
	if spec.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	rw, err := newRotatingSink(dailyPath(spec.Filename, time.Now()), spec.Mode, spec.MaxBytes, spec.BackupCount)
	if err != nil {
		return nil, err
	}
	return &dailySink{rw: rw}, nil
}

// dailyPath prefixes the base name with the date, keeping the directory:
// logs/error becomes logs/08.25.2026_error.log.
func dailyPath(filename string, now time.Time) string {
	base := now.Format(dailyDateLayout) + "_" + filepath.Base(filename) + ".log"
	return filepath.Join(filepath.Dir(filename), base)
}

func (s *dailySink) WriteLevel(level slog.Level, p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	var b strings.Builder
	if level == slog.LevelInfo {
		pad := strings.Repeat(" ", dailyPad)
		padded := pad + msg + pad
		b.WriteString(strings.Repeat("#", utf8.RuneCountInString(padded)))
		b.WriteString("\n\n")
		b.WriteString(padded)
		b.WriteString("\n\n")
	} else {
		first := msg
		if i := strings.IndexByte(first, '\n'); i >= 0 {
			first = first[:i]
		}
		b.WriteString(msg)
		b.WriteString("\n\n")
		b.WriteString(strings.Repeat("-", utf8.RuneCountInString(first)))
		b.WriteString("\n\n")
	}
	return s.rw.WriteLevel(level, []byte(b.String()))
}

func (s *dailySink) Close() error { return s.rw.Close() }

func (s *dailySink) Path() string { return s.rw.Path() }
