package logdict

import (
	"log/slog"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// archiveSink delegates rotation to lumberjack: size and age based, with
// timestamped backups and optional gzip compression of rotated files.
type archiveSink struct {
	l *lumberjack.Logger
}

func newArchiveSink(spec HandlerSpec) *archiveSink {
	// lumberjack sizes are whole megabytes; zero keeps its defaults.
	maxSize := int(spec.MaxBytes / (1 << 20))
	if spec.MaxBytes > 0 && maxSize == 0 {
		maxSize = 1
	}
	return &archiveSink{l: &lumberjack.Logger{
		Filename:   spec.Filename,
		MaxSize:    maxSize,
		MaxBackups: spec.BackupCount,
		MaxAge:     spec.MaxAgeDays,
		Compress:   spec.Compress,
	}}
}

func (s *archiveSink) WriteLevel(_ slog.Level, p []byte) (int, error) {
	return s.l.Write(p)
}

func (s *archiveSink) Close() error { return s.l.Close() }

func (s *archiveSink) Path() string { return s.l.Filename }
