package logdict

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaVersion is the only document version this package understands.
const SchemaVersion = 1

// Builtin handler classes. Anything else must come from a registered
// handler factory.
const (
	ClassConsole      = "console"
	ClassFile         = "file"
	ClassRotatingFile = "rotating_file"
	ClassArchiveFile  = "archive_file"
)

// Document is the root of a declarative logging configuration. Formatters,
// filters and handlers are declared once under an id and referenced by name
// from the logger tree, dictConfig style.
type Document struct {
	Version int `json:"version"`

	// DisableExistingLoggers silences manager handles that are not named
	// by this document when it is applied.
	DisableExistingLoggers bool `json:"disable_existing_loggers,omitempty"`

	Formatters map[string]FormatterSpec `json:"formatters,omitempty"`
	Filters    map[string]FilterSpec    `json:"filters,omitempty"`
	Handlers   map[string]HandlerSpec   `json:"handlers,omitempty"`
	Loggers    map[string]LoggerSpec    `json:"loggers,omitempty"`

	// Root configures the root logger. The names "root" and "" under
	// loggers are accepted as aliases; defining more than one is an error.
	Root *LoggerSpec `json:"root,omitempty"`
}

// FormatterSpec declares a formatter, either as a compiled template or via
// a registered factory.
//
// Template placeholders: time, logger, level, message, func, line.
// Style selects the placeholder syntax: "{" (brace, default) or "%"
// (percent, %(field)s). Datefmt is a Go time layout; when omitted the
// timestamp renders as RFC 3339.
//
// Color applies to factory formatters that colorize output: "auto"
// (default; only when stdout is a terminal and NO_COLOR is unset),
// "always", or "never".
type FormatterSpec struct {
	Format  string `json:"format,omitempty"`
	Datefmt string `json:"datefmt,omitempty"`
	Style   string `json:"style,omitempty"`
	Factory string `json:"factory,omitempty"`
	Color   string `json:"color,omitempty"`
}

// FilterSpec declares a filter built by a registered factory.
//
// Builtin factories and their parameters:
//   - below_error: admits records strictly below ERROR
//   - exact_level: admits records at exactly Level
//   - rate_limit: token bucket of Rate records/second with Burst capacity
type FilterSpec struct {
	Factory string  `json:"factory"`
	Level   string  `json:"level,omitempty"`
	Rate    float64 `json:"rate,omitempty"`
	Burst   int     `json:"burst,omitempty"`
}

// HandlerSpec declares a handler: a sink plus its level gate, filters and
// formatter. Exactly one of Class (builtin) or Factory (registered) picks
// the sink.
//
// Level omitted admits every record. Formatter omitted renders the bare
// message. Mode applies to file-backed sinks: "a" (append, default) or "w"
// (truncate on open). Encoding accepts only UTF-8 spellings; files are
// always written as UTF-8.
type HandlerSpec struct {
	Class     string   `json:"class,omitempty"`
	Factory   string   `json:"factory,omitempty"`
	Level     string   `json:"level,omitempty"`
	Formatter string   `json:"formatter,omitempty"`
	Filters   []string `json:"filters,omitempty"`

	// Stream selects the console target: "stdout" or "stderr" (default).
	Stream string `json:"stream,omitempty"`

	Filename    string `json:"filename,omitempty"`
	MaxBytes    int64  `json:"max_bytes,omitempty"`
	BackupCount int    `json:"backup_count,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	Mode        string `json:"mode,omitempty"`

	// Archive extras (class archive_file only).
	MaxAgeDays int  `json:"max_age_days,omitempty"`
	Compress   bool `json:"compress,omitempty"`
}

// LoggerSpec configures one named logger.
//
// Level omitted inherits from the nearest configured ancestor (the root
// defaults to WARNING). Propagate is a pointer so an omitted value can
// default to true.
type LoggerSpec struct {
	Level     string   `json:"level,omitempty"`
	Handlers  []string `json:"handlers,omitempty"`
	Propagate *bool    `json:"propagate,omitempty"`
}

func (s LoggerSpec) propagates() bool {
	return s.Propagate == nil || *s.Propagate
}

// rootSpec resolves the root logger definition, honoring the "root" and ""
// aliases under loggers. Returns nil when the document leaves the root
// unconfigured. Validate guarantees at most one definition exists.
func (d *Document) rootSpec() *LoggerSpec {
	if d.Root != nil {
		return d.Root
	}
	if s, ok := d.Loggers["root"]; ok {
		return &s
	}
	if s, ok := d.Loggers[""]; ok {
		return &s
	}
	return nil
}

// Validate checks the document shape: version, reference resolution, level
// names, template placeholders and file sink parameters. It does not touch
// the filesystem and does not resolve factories; both happen on Apply.
func (d *Document) Validate() error {
	if d.Version != SchemaVersion {
		return fmt.Errorf("version: got %d, want %d", d.Version, SchemaVersion)
	}

	for _, id := range sortedKeys(d.Formatters) {
		if err := d.Formatters[id].validate(); err != nil {
			return fmt.Errorf("formatter %q: %w", id, err)
		}
	}
	for _, id := range sortedKeys(d.Filters) {
		if err := d.Filters[id].validate(); err != nil {
			return fmt.Errorf("filter %q: %w", id, err)
		}
	}
	for _, id := range sortedKeys(d.Handlers) {
		if err := d.handlerOK(d.Handlers[id]); err != nil {
			return fmt.Errorf("handler %q: %w", id, err)
		}
	}

	roots := 0
	if d.Root != nil {
		roots++
	}
	for _, name := range []string{"root", ""} {
		if _, ok := d.Loggers[name]; ok {
			roots++
		}
	}
	if roots > 1 {
		return fmt.Errorf("root logger defined more than once")
	}

	for _, name := range sortedKeys(d.Loggers) {
		if err := d.loggerOK(d.Loggers[name]); err != nil {
			return fmt.Errorf("logger %q: %w", name, err)
		}
	}
	if d.Root != nil {
		if err := d.loggerOK(*d.Root); err != nil {
			return fmt.Errorf("logger \"root\": %w", err)
		}
	}
	return nil
}

func (s FormatterSpec) validate() error {
	switch s.Color {
	case "", "auto", "always", "never":
	default:
		return fmt.Errorf("color: got %q, want auto, always or never", s.Color)
	}
	if s.Factory != "" {
		return nil
	}
	if _, err := compileTemplate(s.Format, s.Style); err != nil {
		return err
	}
	return nil
}

func (s FilterSpec) validate() error {
	if s.Factory == "" {
		return fmt.Errorf("factory is required")
	}
	if s.Level != "" {
		if _, err := ParseLevel(s.Level); err != nil {
			return err
		}
	}
	if s.Rate < 0 {
		return fmt.Errorf("rate: must not be negative")
	}
	if s.Burst < 0 {
		return fmt.Errorf("burst: must not be negative")
	}
	return nil
}

func (d *Document) handlerOK(s HandlerSpec) error {
	if (s.Class == "") == (s.Factory == "") {
		return fmt.Errorf("exactly one of class and factory must be set")
	}
	if s.Level != "" {
		if _, err := ParseLevel(s.Level); err != nil {
			return err
		}
	}
	if s.Formatter != "" {
		if _, ok := d.Formatters[s.Formatter]; !ok {
			return fmt.Errorf("formatter %q is not declared", s.Formatter)
		}
	}
	for _, id := range s.Filters {
		if _, ok := d.Filters[id]; !ok {
			return fmt.Errorf("filter %q is not declared", id)
		}
	}
	switch enc := strings.ToLower(s.Encoding); enc {
	case "", "utf-8", "utf8":
	default:
		return fmt.Errorf("encoding: got %q, only utf-8 is supported", s.Encoding)
	}
	switch s.Mode {
	case "", "a", "w":
	default:
		return fmt.Errorf("mode: got %q, want a or w", s.Mode)
	}
	if s.MaxBytes < 0 {
		return fmt.Errorf("max_bytes: must not be negative")
	}
	if s.BackupCount < 0 {
		return fmt.Errorf("backup_count: must not be negative")
	}

	switch s.Class {
	case "":
		// Factory sinks interpret the remaining fields themselves.
	case ClassConsole:
		switch s.Stream {
		case "", "stdout", "stderr":
		default:
			return fmt.Errorf("stream: got %q, want stdout or stderr", s.Stream)
		}
	case ClassFile, ClassRotatingFile, ClassArchiveFile:
		if s.Filename == "" {
			return fmt.Errorf("filename is required")
		}
	default:
		return fmt.Errorf("unknown class %q", s.Class)
	}
	return nil
}

func (d *Document) loggerOK(s LoggerSpec) error {
	if s.Level != "" {
		if _, err := ParseLevel(s.Level); err != nil {
			return err
		}
	}
	for _, id := range s.Handlers {
		if _, ok := d.Handlers[id]; !ok {
			return fmt.Errorf("handler %q is not declared", id)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
