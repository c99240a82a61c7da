package phonebook

import (
	"errors"
	"time"
)

var (
	// ErrNotFound reports that no record exists for the name.
	ErrNotFound = errors.New("phonebook: record not found")

	// ErrBadName reports a name the store refuses to address: empty after
	// trimming, dot-prefixed, or containing path separators. The server
	// answers such requests with НИПОНЯЛ.
	ErrBadName = errors.New("phonebook: unusable name")
)

// DefaultDir is the file-driver directory when Config.Path is empty.
const DefaultDir = "./rksok_phonebook"

// Config configures the phonebook store.
//
// Driver values:
//   - "file": one file per name, phones joined with CRLF (the default)
//   - "sqlite": single-file SQLite database
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry is one named record, as returned by List.
type Entry struct {
	Name   string
	Phones []string
}
