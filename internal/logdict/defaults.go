package logdict

import _ "embed"

//go:embed logger_config.yml
var defaultDocumentYAML []byte

// DefaultLoggerName is the logger the shipped document configures and the
// daemon logs through.
const DefaultLoggerName = "RKSOK_Logger"

// DefaultDocument returns the logging document the daemon ships with: a
// colored stdout console at DEBUG plus two daily files, one for errors and
// one for below-error traffic, rotated at 10 MiB with ten backups, all
// attached to RKSOK_Logger.
func DefaultDocument() (*Document, error) {
	return DecodeDocument(defaultDocumentYAML, ".yml")
}

// DefaultDocumentBytes returns the embedded YAML source of the default
// document, for seeding a starter file next to the daemon config.
func DefaultDocumentBytes() []byte {
	out := make([]byte, len(defaultDocumentYAML))
	copy(out, defaultDocumentYAML)
	return out
}
