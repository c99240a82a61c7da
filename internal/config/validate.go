package config

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate checks cross-field invariants that strict decoding cannot express.
// It is installed on the ConfigManager as its validator hook, so a reload that
// fails here never reaches subscribers.
func Validate(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if err := validateListenAddr("server.listen", cfg.Server.Listen); err != nil {
		return err
	}
	if _, err := ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("server.shutdown_timeout", cfg.Server.ShutdownTimeout); err != nil {
		return err
	}
	if cfg.Server.MaxRequestBytes < 0 {
		return fmt.Errorf("server.max_request_bytes: must be >= 0")
	}
	if cfg.Server.MaxConns < 0 {
		return fmt.Errorf("server.max_conns: must be >= 0")
	}

	if err := validateDialAddr("approval.addr", cfg.Approval.Addr); err != nil {
		return err
	}
	if _, err := ParseDurationField("approval.timeout", cfg.Approval.Timeout); err != nil {
		return err
	}

	switch strings.TrimSpace(cfg.Phonebook.Driver) {
	case "", "file", "sqlite":
	default:
		return fmt.Errorf("phonebook.driver: unknown driver %q (want file or sqlite)", cfg.Phonebook.Driver)
	}
	if _, err := ParseDurationField("phonebook.busy_timeout", cfg.Phonebook.BusyTimeout); err != nil {
		return err
	}

	if cfg.Logging.Retention.MaxAgeDays < 0 {
		return fmt.Errorf("logging.retention.max_age_days: must be >= 0")
	}
	if s := strings.TrimSpace(cfg.Logging.Retention.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("logging.retention.schedule: invalid cron spec %q: %w", s, err)
		}
	}

	if err := validateListenAddr("diag.addr", cfg.Diag.Addr); err != nil {
		return err
	}
	for _, f := range []struct {
		path, raw string
	}{
		{"diag.read_timeout", cfg.Diag.ReadTimeout},
		{"diag.write_timeout", cfg.Diag.WriteTimeout},
		{"diag.idle_timeout", cfg.Diag.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.Diag.MutexProfileFraction < 0 || cfg.Diag.BlockProfileRate < 0 || cfg.Diag.MemProfileRate < 0 {
		return fmt.Errorf("diag: profiling rates must be >= 0")
	}

	return nil
}

// validateListenAddr accepts empty (use the default) or "host:port" where the
// host part may be empty (all interfaces).
func validateListenAddr(path, raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("%s: invalid address %q: %w", path, raw, err)
	}
	if port == "" {
		return fmt.Errorf("%s: missing port in %q", path, raw)
	}
	return nil
}

// validateDialAddr requires a non-empty "host:port" with both parts present.
func validateDialAddr(path, raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return fmt.Errorf("%s: required", path)
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("%s: invalid address %q: %w", path, raw, err)
	}
	if host == "" || port == "" {
		return fmt.Errorf("%s: want host:port, got %q", path, raw)
	}
	return nil
}
