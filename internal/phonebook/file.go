package phonebook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "rksokd/pkg/logx"
)

// fileStore keeps one file per name under a directory, phones joined with
// CRLF. This is the original RKSOK layout and the default driver.
type fileStore struct {
	dir string
	log logx.Logger

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{dir: dir, log: log}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Get(ctx context.Context, name string) ([]string, error) {
	_ = ctx
	n, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(s.dir, n))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return splitPhones(string(b)), nil
}

func (s *fileStore) Put(ctx context.Context, name string, phones []string) error {
	_ = ctx
	n, err := sanitizeName(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to a scratch file first so a crash never leaves a half record.
	// Scratch names are dot-prefixed and therefore can't collide with a
	// record name.
	f, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.WriteString(strings.Join(phones, "\r\n")); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, n)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.log.Debug("phonebook record written", logx.String("name", n), logx.Int("phones", len(phones)))
	return nil
}

func (s *fileStore) Delete(ctx context.Context, name string) error {
	_ = ctx
	n, err := sanitizeName(name)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.dir, n))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.log.Debug("phonebook record removed", logx.String("name", n))
	return nil
}

func (s *fileStore) List(ctx context.Context) ([]Entry, error) {
	_ = ctx
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ents))
	for _, de := range ents {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, de.Name()))
		if errors.Is(err, os.ErrNotExist) {
			// Raced with a concurrent delete.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Name: de.Name(), Phones: splitPhones(string(b))})
	}
	return out, nil
}
