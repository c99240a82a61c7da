package config

// Config is the root of the daemon configuration file (config.yml).
//
// Durations throughout are Go duration strings (e.g. "500ms", "5s", "1m").
// Omitted fields fall back to the defaults documented per section; the
// defaults reproduce the original RKSOK server behavior.
type Config struct {
	// DataDir is where runtime state lives (instance lock, default store
	// location). Default: ".".
	DataDir string `json:"data_dir,omitempty"`

	Server    ServerConfig    `json:"server"`
	Approval  ApprovalConfig  `json:"approval"`
	Phonebook PhonebookConfig `json:"phonebook"`
	Logging   LoggingConfig   `json:"logging"`
	Diag      DiagConfig      `json:"diag,omitempty"`
}

// ServerConfig controls the RKSOK TCP listener.
//
// Defaults (when fields are omitted/zero):
//   - listen: "0.0.0.0:8888"
//   - read_timeout: "5s" (per-read deadline while collecting a request)
//   - shutdown_timeout: "10s" (drain window for in-flight connections)
//   - max_request_bytes: 4194304 (4 MiB)
//   - max_conns: 0 (unlimited)
type ServerConfig struct {
	Listen          string `json:"listen,omitempty"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	MaxRequestBytes int64  `json:"max_request_bytes,omitempty"`
	MaxConns        int    `json:"max_conns,omitempty"`
}

// ApprovalConfig points at the validation server that every request must be
// cleared with before it touches the phonebook.
//
// Addr is required ("host:port", e.g. "vragi-vezde.to.digital:51624").
// Timeout covers the whole exchange (dial + write + read); default "5s".
type ApprovalConfig struct {
	Addr    string `json:"addr"`
	Timeout string `json:"timeout,omitempty"`
}

// PhonebookConfig controls the phonebook persistence layer.
//
// Example:
//
//	"phonebook": { "driver": "file", "path": "./rksok_phonebook" }
//
// Driver is "file" (default) or "sqlite". Path defaults to
// "./rksok_phonebook" for the file driver and "<data_dir>/rksok.db" for
// sqlite. BusyTimeout applies to sqlite only.
type PhonebookConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// LoggingConfig points the daemon at its logging document and controls the
// document's upkeep.
//
// Config is the path to the declarative logging document
// (e.g. "logger_config.yml"); when empty the built-in document is applied.
// When Watch is true the document file is watched and re-applied on change.
type LoggingConfig struct {
	Config    string          `json:"config,omitempty"`
	Watch     bool            `json:"watch,omitempty"`
	Retention RetentionConfig `json:"retention,omitempty"`
}

// RetentionConfig schedules the sweep that prunes dated log files.
//
// MaxAgeDays <= 0 disables the sweep. Schedule is a standard 5-field cron
// spec; default "0 3 * * *".
type RetentionConfig struct {
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Schedule   string `json:"schedule,omitempty"`
}

// DiagConfig controls the optional debug HTTP server (pprof + metrics).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
//
// Pprof and Metrics are pointers so "omitted" (default true) can be told
// apart from an explicit false.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         *bool  `json:"pprof,omitempty"`
	Metrics       *bool  `json:"metrics,omitempty"`

	// Server timeouts. WriteTimeout defaults to 0 (disabled) so
	// /debug/pprof/profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}

// PprofEnabled reports whether the pprof handlers should be mounted.
func (d DiagConfig) PprofEnabled() bool {
	return d.Pprof == nil || *d.Pprof
}

// MetricsEnabled reports whether /metrics should be mounted.
func (d DiagConfig) MetricsEnabled() bool {
	return d.Metrics == nil || *d.Metrics
}
