package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "rksokd/pkg/logx"
)

const yamlConfig = `data_dir: /var/lib/rksokd
server:
  listen: "0.0.0.0:8888"
  read_timeout: 5s
  max_request_bytes: 4194304
approval:
  addr: vragi-vezde.to.digital:51624
phonebook:
  driver: file
  path: ./rksok_phonebook
logging:
  config: logger_config.yml
  watch: true
  retention:
    max_age_days: 14
    schedule: "0 3 * * *"
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeConfig(t, "config.yml", yamlConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/var/lib/rksokd" {
		t.Fatalf("DataDir = %q, want /var/lib/rksokd", cfg.DataDir)
	}
	if cfg.Server.Listen != "0.0.0.0:8888" {
		t.Fatalf("Server.Listen = %q, want 0.0.0.0:8888", cfg.Server.Listen)
	}
	if cfg.Server.MaxRequestBytes != 4194304 {
		t.Fatalf("Server.MaxRequestBytes = %d, want 4194304", cfg.Server.MaxRequestBytes)
	}
	if cfg.Approval.Addr != "vragi-vezde.to.digital:51624" {
		t.Fatalf("Approval.Addr = %q", cfg.Approval.Addr)
	}
	if !cfg.Logging.Watch {
		t.Fatal("Logging.Watch = false, want true")
	}
	if cfg.Logging.Retention.MaxAgeDays != 14 {
		t.Fatalf("Retention.MaxAgeDays = %d, want 14", cfg.Logging.Retention.MaxAgeDays)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return the committed config")
	}
}

func TestLoadTOML(t *testing.T) {
	t.Parallel()

	const body = `data_dir = "/var/lib/rksokd"

[server]
listen = "0.0.0.0:8888"

[approval]
addr = "127.0.0.1:51624"
timeout = "2s"

[phonebook]
driver = "sqlite"
path = "rksok.db"
busy_timeout = "5s"
`
	m := NewConfigManager(writeConfig(t, "config.toml", body))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Phonebook.Driver != "sqlite" {
		t.Fatalf("Phonebook.Driver = %q, want sqlite", cfg.Phonebook.Driver)
	}
	if cfg.Approval.Timeout != "2s" {
		t.Fatalf("Approval.Timeout = %q, want 2s", cfg.Approval.Timeout)
	}
}

func TestParseRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		body string
	}{
		{"unknown key", "config.yml", "server:\n  lsiten: \"0.0.0.0:8888\"\n"},
		{"unknown section", "config.yml", "telegram:\n  token: x\n"},
		{"trailing data", "config.json", `{"server":{"listen":":8888"}}{"extra":1}`},
		{"broken yaml", "config.yml", "server: [\n"},
		{"broken toml", "config.toml", "[server\nlisten = 1\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeConfig(t, tt.file, tt.body))
			if _, err := m.Parse(); err == nil {
				t.Fatal("Parse() accepted an invalid config")
			}
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(filepath.Join(t.TempDir(), "nope.yml"))
	if _, err := m.Parse(); !os.IsNotExist(err) {
		t.Fatalf("Parse() error = %v, want not-exist", err)
	}
}

func TestReloadPublishesChanges(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yml", yamlConfig)
	m := NewConfigManager(path)
	m.SetValidator(Validate)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// Same content on disk: nothing to publish.
	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	select {
	case <-sub:
		t.Fatal("publish for unchanged config")
	default:
	}

	updated := strings.Replace(yamlConfig, "max_age_days: 14", "max_age_days: 7", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	select {
	case cfg := <-sub:
		if cfg.Logging.Retention.MaxAgeDays != 7 {
			t.Fatalf("published MaxAgeDays = %d, want 7", cfg.Logging.Retention.MaxAgeDays)
		}
	default:
		t.Fatal("no config published after change")
	}
}

func TestReloadRejectedKeepsOldConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yml", yamlConfig)
	m := NewConfigManager(path)
	m.SetValidator(Validate)
	old, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// Drop the required approval addr: validator must refuse the reload.
	updated := strings.Replace(yamlConfig, "addr: vragi-vezde.to.digital:51624", `addr: ""`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := m.Reload(context.Background()); err == nil {
		t.Fatal("Reload() accepted a config the validator rejects")
	}
	if got := m.Get(); got != old {
		t.Fatal("rejected reload replaced the committed config")
	}
	select {
	case <-sub:
		t.Fatal("rejected config was published")
	default:
	}
}

func TestPublishDropsOldest(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused")
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	first := &Config{DataDir: "a"}
	second := &Config{DataDir: "b"}
	m.publish(first)
	m.publish(second)

	got := <-sub
	if got != second {
		t.Fatalf("subscriber got DataDir %q, want newest %q", got.DataDir, second.DataDir)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused")
	sub := m.Subscribe(1)
	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	// Double unsubscribe is a no-op.
	m.Unsubscribe(sub)
	m.Unsubscribe(nil)
}

func TestWatchPublishesOnFileChange(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yml", yamlConfig)
	m := NewConfigManager(path)
	m.SetValidator(Validate)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Let the watcher install before touching the file.
	time.Sleep(300 * time.Millisecond)

	updated := strings.Replace(yamlConfig, "watch: true", "watch: false", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Watch {
			t.Fatal("published config still has watch enabled")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published after file change")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchFileInvokesReload(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "logger_config.yml", "version: 1\n")
	reloaded := make(chan struct{}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = WatchFile(ctx, logx.Nop(), path, func() { reloaded <- struct{}{} })
	}()

	time.Sleep(300 * time.Millisecond)
	if err := os.WriteFile(path, []byte("version: 1\nformatters: {}\n"), 0o644); err != nil {
		t.Fatalf("rewrite document: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload not invoked after write")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchFile did not return after cancel")
	}
}
