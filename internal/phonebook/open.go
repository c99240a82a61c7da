package phonebook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	logx "rksokd/pkg/logx"
)

// Store is the phonebook persistence API used by the server.
type Store interface {
	Get(ctx context.Context, name string) ([]string, error)
	Put(ctx context.Context, name string, phones []string) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// Open initializes the configured store. An empty driver selects "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown phonebook driver: " + driver)
	}
}

// sanitizeName normalizes a record name to NFC so the same Cyrillic name in
// different Unicode compositions maps to one record, and rejects names that
// cannot safely address a file. Both drivers share the rules so switching
// drivers never changes which names exist.
func sanitizeName(name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	if n == "" {
		return "", fmt.Errorf("%w: empty", ErrBadName)
	}
	if strings.HasPrefix(n, ".") {
		return "", fmt.Errorf("%w: dot-prefixed", ErrBadName)
	}
	if strings.ContainsAny(n, "/\\\x00") {
		return "", fmt.Errorf("%w: path separator", ErrBadName)
	}
	return n, nil
}

// splitPhones turns a stored record body back into phone lines. Lines are
// trimmed and empties dropped, so both CRLF and LF bodies read the same.
func splitPhones(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
