package logdict

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"rksokd/pkg/logx"
)

// captureSink records formatted lines in memory. Tests register it as the
// "capture" handler factory, keyed by the spec's stream field.
type captureSink struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureSink) WriteLevel(_ slog.Level, p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func (c *captureSink) Close() error { return nil }

func (c *captureSink) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func captures(t *testing.T, names ...string) (*Registry, map[string]*captureSink) {
	t.Helper()
	sinks := make(map[string]*captureSink, len(names))
	for _, n := range names {
		sinks[n] = &captureSink{}
	}
	reg := DefaultRegistry()
	err := reg.RegisterHandler("capture", func(spec HandlerSpec) (Sink, error) {
		c, ok := sinks[spec.Stream]
		if !ok {
			return nil, fmt.Errorf("no capture sink %q", spec.Stream)
		}
		return c, nil
	})
	if err != nil {
		t.Fatalf("register capture: %v", err)
	}
	return reg, sinks
}

// rksokDoc mirrors the shipped document's wiring with capture sinks in
// place of the console and the two daily files.
func rksokDoc() *Document {
	return &Document{
		Version: 1,
		Formatters: map[string]FormatterSpec{
			"std": {Format: "{level} {message}"},
		},
		Filters: map[string]FilterSpec{
			"no_errors": {Factory: "below_error"},
		},
		Handlers: map[string]HandlerSpec{
			"console":    {Factory: "capture", Stream: "console", Level: "DEBUG", Formatter: "std"},
			"error_file": {Factory: "capture", Stream: "error_file", Level: "ERROR", Formatter: "std"},
			"debug_file": {Factory: "capture", Stream: "debug_file", Level: "DEBUG", Formatter: "std", Filters: []string{"no_errors"}},
		},
		Loggers: map[string]LoggerSpec{
			"RKSOK_Logger": {Level: "DEBUG", Handlers: []string{"console", "error_file", "debug_file"}},
		},
	}
}

func TestShippedDocumentShape(t *testing.T) {
	t.Parallel()
	doc, err := DefaultDocument()
	if err != nil {
		t.Fatalf("DefaultDocument error: %v", err)
	}
	dir := t.TempDir()
	for id, h := range doc.Handlers {
		if h.Filename != "" {
			h.Filename = filepath.Join(dir, h.Filename)
			doc.Handlers[id] = h
		}
	}

	m := NewManager()
	if err := m.Apply(doc); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	names := m.LoggerNames()
	if len(names) != 1 || names[0] != DefaultLoggerName {
		t.Fatalf("LoggerNames = %v, want exactly [%s]", names, DefaultLoggerName)
	}
	ids, ok := m.HandlerNames(DefaultLoggerName)
	if !ok || len(ids) != 3 {
		t.Fatalf("HandlerNames = %v (%v), want three handlers", ids, ok)
	}
	if files := m.ActiveFiles(); len(files) != 2 {
		t.Fatalf("ActiveFiles = %v, want the two daily files", files)
	}
}

func TestErrorRouting(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "console", "error_file", "debug_file")
	m := NewManager(WithRegistry(reg))
	if err := m.Apply(rksokDoc()); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	m.Logger("RKSOK_Logger").Error("запрос не понят")

	if got := sinks["console"].snapshot(); len(got) != 1 || got[0] != "ERROR запрос не понят" {
		t.Fatalf("console = %v", got)
	}
	if got := sinks["error_file"].snapshot(); len(got) != 1 {
		t.Fatalf("error_file = %v, want one record", got)
	}
	if got := sinks["debug_file"].snapshot(); len(got) != 0 {
		t.Fatalf("debug_file = %v, want no error records", got)
	}
}

func TestDebugRouting(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "console", "error_file", "debug_file")
	m := NewManager(WithRegistry(reg))
	if err := m.Apply(rksokDoc()); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	m.Logger("RKSOK_Logger").Debug("получен запрос")

	if got := sinks["console"].snapshot(); len(got) != 1 || got[0] != "DEBUG получен запрос" {
		t.Fatalf("console = %v", got)
	}
	if got := sinks["debug_file"].snapshot(); len(got) != 1 {
		t.Fatalf("debug_file = %v, want one record", got)
	}
	if got := sinks["error_file"].snapshot(); len(got) != 0 {
		t.Fatalf("error_file = %v, want no debug records", got)
	}
}

func TestPropagationToRootHandlers(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "rootcap")
	m := NewManager(WithRegistry(reg))
	doc := &Document{
		Version:  1,
		Handlers: map[string]HandlerSpec{"rootcap": {Factory: "capture", Stream: "rootcap"}},
		Loggers:  map[string]LoggerSpec{"RKSOK_Logger": {Level: "DEBUG"}},
		Root:     &LoggerSpec{Handlers: []string{"rootcap"}},
	}
	if err := m.Apply(doc); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	// The root level stays at its WARNING default, but ancestor levels
	// are not rechecked during propagation.
	m.Logger("RKSOK_Logger").Info("сервер запущен")

	if got := sinks["rootcap"].snapshot(); len(got) != 1 || got[0] != "сервер запущен" {
		t.Fatalf("root capture = %v", got)
	}
}

func TestPropagateFalseStopsAtLogger(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "own", "rootcap")
	m := NewManager(WithRegistry(reg))
	off := false
	doc := &Document{
		Version: 1,
		Handlers: map[string]HandlerSpec{
			"own":     {Factory: "capture", Stream: "own"},
			"rootcap": {Factory: "capture", Stream: "rootcap"},
		},
		Loggers: map[string]LoggerSpec{
			"RKSOK_Logger": {Level: "DEBUG", Handlers: []string{"own"}, Propagate: &off},
		},
		Root: &LoggerSpec{Handlers: []string{"rootcap"}},
	}
	if err := m.Apply(doc); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	m.Logger("RKSOK_Logger").Info("тихо")

	if got := sinks["own"].snapshot(); len(got) != 1 {
		t.Fatalf("own = %v, want one record", got)
	}
	if got := sinks["rootcap"].snapshot(); len(got) != 0 {
		t.Fatalf("root capture = %v, want nothing", got)
	}
}

func TestEffectiveLevelInheritance(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "app")
	m := NewManager(WithRegistry(reg))
	doc := &Document{
		Version:  1,
		Handlers: map[string]HandlerSpec{"app": {Factory: "capture", Stream: "app"}},
		Loggers:  map[string]LoggerSpec{"app": {Level: "WARNING", Handlers: []string{"app"}}},
	}
	if err := m.Apply(doc); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	l := m.Logger("app.db.conn")
	if l.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("descendant should inherit WARNING")
	}
	l.Info("ignored")
	l.Warn("kept")

	if got := sinks["app"].snapshot(); len(got) != 1 || got[0] != "kept" {
		t.Fatalf("app = %v, want only the warning", got)
	}
}

func TestRootDefaultLevelIsWarning(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "rootcap")
	m := NewManager(WithRegistry(reg))
	doc := &Document{
		Version:  1,
		Handlers: map[string]HandlerSpec{"rootcap": {Factory: "capture", Stream: "rootcap"}},
		Root:     &LoggerSpec{Handlers: []string{"rootcap"}},
	}
	if err := m.Apply(doc); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	l := m.Logger("misc")
	l.Info("dropped")
	l.Warn("delivered")

	if got := sinks["rootcap"].snapshot(); len(got) != 1 || got[0] != "delivered" {
		t.Fatalf("root capture = %v", got)
	}
}

func TestReapplyIsIdempotent(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "console", "error_file", "debug_file")
	m := NewManager(WithRegistry(reg))
	if err := m.Apply(rksokDoc()); err != nil {
		t.Fatalf("first Apply error: %v", err)
	}
	if err := m.Apply(rksokDoc()); err != nil {
		t.Fatalf("second Apply error: %v", err)
	}
	defer m.Close()

	m.Logger("RKSOK_Logger").Debug("once")

	if got := sinks["console"].snapshot(); len(got) != 1 {
		t.Fatalf("console = %v, want exactly one record after reapply", got)
	}
	names := m.LoggerNames()
	if len(names) != 1 || names[0] != "RKSOK_Logger" {
		t.Fatalf("LoggerNames = %v", names)
	}
	if ids, ok := m.HandlerNames("RKSOK_Logger"); !ok || len(ids) != 3 {
		t.Fatalf("HandlerNames = %v (%v)", ids, ok)
	}
}

func TestDisableExistingLoggers(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "own", "rootcap")
	m := NewManager(WithRegistry(reg))

	legacy := m.Logger("legacy.worker")

	doc := &Document{
		Version:                1,
		DisableExistingLoggers: true,
		Handlers: map[string]HandlerSpec{
			"own":     {Factory: "capture", Stream: "own"},
			"rootcap": {Factory: "capture", Stream: "rootcap"},
		},
		Loggers: map[string]LoggerSpec{"RKSOK_Logger": {Level: "DEBUG", Handlers: []string{"own"}}},
		Root:    &LoggerSpec{Handlers: []string{"rootcap"}},
	}
	if err := m.Apply(doc); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	legacy.Error("silenced")
	if got := sinks["rootcap"].snapshot(); len(got) != 0 {
		t.Fatalf("rootcap = %v, want the legacy handle silenced", got)
	}
	if legacy.Enabled(context.Background(), LevelCritical) {
		t.Fatal("silenced handle should report disabled")
	}

	m.Logger("RKSOK_Logger").Debug("alive")
	if got := sinks["own"].snapshot(); len(got) != 1 {
		t.Fatalf("own = %v, want the configured logger to work", got)
	}

	// Handles created after Apply are not silenced.
	m.Logger("fresh").Error("delivered")
	if got := sinks["rootcap"].snapshot(); len(got) != 2 {
		t.Fatalf("rootcap = %v, want alive plus delivered", got)
	}
}

func TestApplyFailureKeepsCurrentGraph(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "console", "error_file", "debug_file")
	m := NewManager(WithRegistry(reg))
	if err := m.Apply(rksokDoc()); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	bad := rksokDoc()
	h := bad.Handlers["console"]
	h.Stream = "missing"
	bad.Handlers["console"] = h
	if err := m.Apply(bad); err == nil {
		t.Fatal("Apply should fail for an unknown capture sink")
	}

	m.Logger("RKSOK_Logger").Debug("still wired")
	if got := sinks["console"].snapshot(); len(got) != 1 {
		t.Fatalf("console = %v, want the old graph still live", got)
	}
}

type failSink struct{}

func (failSink) WriteLevel(slog.Level, []byte) (int, error) { return 0, errors.New("disk gone") }
func (failSink) Close() error                               { return nil }

func TestSinkErrorsReportedAndDropped(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry()
	if err := reg.RegisterHandler("boom", func(HandlerSpec) (Sink, error) { return failSink{}, nil }); err != nil {
		t.Fatalf("register boom: %v", err)
	}
	var buf bytes.Buffer
	m := NewManager(WithRegistry(reg), WithDiagnostics(logx.New(&buf, "debug")))
	doc := &Document{
		Version:  1,
		Handlers: map[string]HandlerSpec{"bad": {Factory: "boom"}},
		Loggers:  map[string]LoggerSpec{"x": {Level: "DEBUG", Handlers: []string{"bad"}}},
	}
	if err := m.Apply(doc); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	m.Logger("x").Info("hi")

	if !strings.Contains(buf.String(), "log sink write failed") {
		t.Fatalf("diagnostics = %q, want a sink failure report", buf.String())
	}
}

func TestCloseDropsRecords(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "console", "error_file", "debug_file")
	m := NewManager(WithRegistry(reg))
	if err := m.Apply(rksokDoc()); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	l := m.Logger("RKSOK_Logger")
	if err := m.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	l.Error("after close")
	if got := sinks["console"].snapshot(); len(got) != 0 {
		t.Fatalf("console = %v, want nothing after Close", got)
	}
	if l.Enabled(context.Background(), LevelCritical) {
		t.Fatal("handle should report disabled after Close")
	}
}

func TestLoggerHandlesAreCached(t *testing.T) {
	t.Parallel()
	m := NewManager()
	if m.Logger("a.b") != m.Logger("a.b") {
		t.Fatal("Logger should return the same handle for a name")
	}
	if m.Root() != m.Logger("") {
		t.Fatal("Root should alias the empty name")
	}
}

func TestFileHandlerThroughGraph(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "rksok.log")
	m := NewManager()
	doc := &Document{
		Version:    1,
		Formatters: map[string]FormatterSpec{"std": {Format: "{level} - {message}"}},
		Handlers: map[string]HandlerSpec{
			"file": {Class: ClassRotatingFile, Filename: path, Formatter: "std", Level: "DEBUG"},
		},
		Loggers: map[string]LoggerSpec{"RKSOK_Logger": {Level: "DEBUG", Handlers: []string{"file"}}},
	}
	if err := m.Apply(doc); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	m.Logger("RKSOK_Logger").Info("сервер запущен")
	if err := m.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if got := readFile(t, path); got != "INFO - сервер запущен\n" {
		t.Fatalf("file = %q", got)
	}
}

func TestHandleAttrsAndGroups(t *testing.T) {
	t.Parallel()
	reg, sinks := captures(t, "console", "error_file", "debug_file")
	m := NewManager(WithRegistry(reg))
	if err := m.Apply(rksokDoc()); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	defer m.Close()

	log := m.Logger("RKSOK_Logger").With(slog.String("conn", "abc")).WithGroup("req")
	log.Info("parsed", slog.String("verb", "GET"))

	want := `INFO parsed req.verb="GET" conn="abc"`
	if got := sinks["console"].snapshot(); len(got) != 1 || got[0] != want {
		t.Fatalf("console = %v, want [%s]", got, want)
	}
}
