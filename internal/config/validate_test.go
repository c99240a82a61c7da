package config

import (
	"context"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          "0.0.0.0:8888",
			ReadTimeout:     "5s",
			ShutdownTimeout: "10s",
			MaxRequestBytes: 4 << 20,
		},
		Approval:  ApprovalConfig{Addr: "vragi-vezde.to.digital:51624", Timeout: "5s"},
		Phonebook: PhonebookConfig{Driver: "file", Path: "./rksok_phonebook"},
		Logging: LoggingConfig{
			Config:    "logger_config.yml",
			Retention: RetentionConfig{MaxAgeDays: 14, Schedule: "0 3 * * *"},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"full config", func(c *Config) {}},
		{"minimal config", func(c *Config) {
			*c = Config{Approval: ApprovalConfig{Addr: "127.0.0.1:51624"}}
		}},
		{"listen without host", func(c *Config) { c.Server.Listen = ":8888" }},
		{"sqlite driver", func(c *Config) {
			c.Phonebook = PhonebookConfig{Driver: "sqlite", Path: "rksok.db", BusyTimeout: "5s"}
		}},
		{"diag section", func(c *Config) {
			c.Diag = DiagConfig{Enabled: true, Addr: "127.0.0.1:6060", ReadTimeout: "5s"}
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			if err := Validate(context.Background(), cfg); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing approval addr", func(c *Config) { c.Approval.Addr = "" }},
		{"approval addr without port", func(c *Config) { c.Approval.Addr = "vragi-vezde.to.digital" }},
		{"approval addr without host", func(c *Config) { c.Approval.Addr = ":51624" }},
		{"bad approval timeout", func(c *Config) { c.Approval.Timeout = "soon" }},
		{"listen without port", func(c *Config) { c.Server.Listen = "8888" }},
		{"negative read timeout", func(c *Config) { c.Server.ReadTimeout = "-5s" }},
		{"garbage shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = "ten seconds" }},
		{"negative max request bytes", func(c *Config) { c.Server.MaxRequestBytes = -1 }},
		{"negative max conns", func(c *Config) { c.Server.MaxConns = -1 }},
		{"unknown phonebook driver", func(c *Config) { c.Phonebook.Driver = "redis" }},
		{"bad busy timeout", func(c *Config) { c.Phonebook.BusyTimeout = "5 seconds" }},
		{"negative retention age", func(c *Config) { c.Logging.Retention.MaxAgeDays = -1 }},
		{"bad cron spec", func(c *Config) { c.Logging.Retention.Schedule = "every day at 3" }},
		{"bad diag addr", func(c *Config) { c.Diag.Addr = "localhost" }},
		{"bad diag write timeout", func(c *Config) { c.Diag.WriteTimeout = "-1s" }},
		{"negative mem profile rate", func(c *Config) { c.Diag.MemProfileRate = -1 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			if err := Validate(context.Background(), cfg); err == nil {
				t.Fatal("Validate() accepted an invalid config")
			}
		})
	}

	if err := Validate(context.Background(), nil); err == nil {
		t.Fatal("Validate(nil) did not fail")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", "  250ms "); err != nil || d != 250*time.Millisecond {
		t.Fatalf("ParseDurationField(250ms) = %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("ParseDurationField(empty) = %v, %v, want 0", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "nope"); err == nil {
		t.Fatal("invalid duration accepted")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("x", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("ParseDurationOrDefault(empty) = %v, %v, want 5s", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "0s", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("ParseDurationOrDefault(0s) = %v, %v, want 5s", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "2s", 5*time.Second); err != nil || d != 2*time.Second {
		t.Fatalf("ParseDurationOrDefault(2s) = %v, %v, want 2s", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "later", 5*time.Second); err == nil {
		t.Fatal("invalid duration accepted")
	}
}

func TestDiagTogglesDefaultTrue(t *testing.T) {
	t.Parallel()

	var d DiagConfig
	if !d.PprofEnabled() || !d.MetricsEnabled() {
		t.Fatal("omitted toggles should default to enabled")
	}
	f := false
	d.Pprof = &f
	d.Metrics = &f
	if d.PprofEnabled() || d.MetricsEnabled() {
		t.Fatal("explicit false not honored")
	}
}
