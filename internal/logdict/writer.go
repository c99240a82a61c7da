package logdict

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// streamSink writes to a standard stream. Close is a no-op so handler
// teardown never closes os.Stdout or os.Stderr.
type streamSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newStreamSink(w io.Writer) *streamSink { return &streamSink{w: w} }

func (s *streamSink) WriteLevel(_ slog.Level, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *streamSink) Close() error { return nil }

// fileSink writes to a single file without rotation.
type fileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func newFileSink(path, mode string) (*fileSink, error) {
	f, err := openLogFile(path, mode)
	if err != nil {
		return nil, err
	}
	return &fileSink{path: path, f: f}, nil
}

func (s *fileSink) WriteLevel(_ slog.Level, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, os.ErrClosed
	}
	return s.f.Write(p)
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileSink) Path() string { return s.path }

// rotatingSink rotates on size with numbered generations: when a write
// would reach maxBytes the live file becomes path.1, path.1 becomes path.2
// and so on, and generation backups is discarded. backups == 0 truncates
// the live file instead. maxBytes == 0 never rotates.
type rotatingSink struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	backups  int
	f        *os.File
	size     int64
	closed   bool
}

func newRotatingSink(path, mode string, maxBytes int64, backups int) (*rotatingSink, error) {
	s := &rotatingSink{path: path, maxBytes: maxBytes, backups: backups}
	if err := s.open(mode); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *rotatingSink) open(mode string) error {
	f, err := openLogFile(s.path, mode)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	s.f = f
	s.size = st.Size()
	return nil
}

func (s *rotatingSink) WriteLevel(_ slog.Level, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, os.ErrClosed
	}
	if s.f == nil {
		// A previous rotation failed mid-way; try to resume appending.
		if err := s.open("a"); err != nil {
			return 0, err
		}
	}
	if s.maxBytes > 0 && s.size+int64(len(p)) >= s.maxBytes {
		if err := s.rotate(); err != nil {
			return 0, fmt.Errorf("rotate %s: %w", s.path, err)
		}
	}
	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

func (s *rotatingSink) rotate() error {
	if err := s.f.Close(); err != nil {
		s.f = nil
		return err
	}
	s.f = nil
	if s.backups > 0 {
		for i := s.backups - 1; i >= 1; i-- {
			src := fmt.Sprintf("%s.%d", s.path, i)
			dst := fmt.Sprintf("%s.%d", s.path, i+1)
			if _, err := os.Stat(src); err != nil {
				continue
			}
			_ = os.Remove(dst)
			if err := os.Rename(src, dst); err != nil {
				return err
			}
		}
		dst := s.path + ".1"
		_ = os.Remove(dst)
		if err := os.Rename(s.path, dst); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return s.open("w")
}

func (s *rotatingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *rotatingSink) Path() string { return s.path }

func openLogFile(path, mode string) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if mode == "w" {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	return os.OpenFile(path, flags, 0o644)
}
