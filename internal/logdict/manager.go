package logdict

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"rksokd/pkg/logx"
)

// Manager owns the live logging graph and the handles pointing at it.
//
// Apply builds a complete new graph from a document and swaps it in under
// the write lock. Emission runs under the read lock, so records never see
// a half-built graph and replaced file sinks are closed only after
// in-flight writes drain.
type Manager struct {
	reg  *Registry
	diag logx.Logger

	// diagLimit throttles sink failure reports so a broken disk cannot
	// flood the diagnostics stream.
	diagLimit *rate.Limiter

	mu      sync.RWMutex
	cur     *graph
	handles map[string]*slog.Logger
}

type ManagerOption func(*Manager)

// WithRegistry supplies the factory registry consulted by Apply. Defaults
// to DefaultRegistry.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.reg = r
		}
	}
}

// WithDiagnostics routes the pipeline's own failures, such as sink write
// and rotation errors, to log. Defaults to a no-op logger.
func WithDiagnostics(log logx.Logger) ManagerOption {
	return func(m *Manager) { m.diag = log }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		reg:       DefaultRegistry(),
		diag:      logx.Nop(),
		diagLimit: rate.NewLimiter(rate.Every(10*time.Second), 3),
		handles:   make(map[string]*slog.Logger),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Apply builds doc into a live graph and swaps it in. On error the current
// graph stays untouched. Previously issued handles keep working; with
// disable_existing_loggers set, handles whose names the document does not
// configure are silenced until a later Apply configures them again.
func (m *Manager) Apply(doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	g, err := m.build(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.cur
	m.cur = g
	if doc.DisableExistingLoggers {
		for name := range m.handles {
			if _, ok := g.nodes[name]; !ok {
				g.silenced[name] = true
			}
		}
	}
	m.mu.Unlock()

	if old != nil {
		if err := old.close(); err != nil {
			m.diag.Warn("closing replaced log sinks", logx.Err(err))
		}
	}
	return nil
}

// Logger returns the handle for a dotted logger name, creating it on first
// use. Repeated calls return the same *slog.Logger, and every handle keeps
// working across Apply.
func (m *Manager) Logger(name string) *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.handles[name]; ok {
		return l
	}
	l := slog.New(&dispatcher{m: m, name: name})
	m.handles[name] = l
	return l
}

// Root returns the root logger handle.
func (m *Manager) Root() *slog.Logger { return m.Logger("") }

// LoggerNames lists the non-root loggers configured by the active
// document, sorted.
func (m *Manager) LoggerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return nil
	}
	var names []string
	for _, name := range sortedKeys(m.cur.nodes) {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// HandlerNames lists the handler ids attached to a configured logger in
// declaration order; the root is addressed as "". ok reports whether the
// active document configures that logger.
func (m *Manager) HandlerNames(logger string) (ids []string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return nil, false
	}
	n, ok := m.cur.nodes[logger]
	if !ok {
		return nil, false
	}
	for _, h := range n.handlers {
		ids = append(ids, h.id)
	}
	return ids, true
}

// ActiveFiles lists the file paths currently held open by the active
// graph. Retention sweeps use it to skip live logs.
func (m *Manager) ActiveFiles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return nil
	}
	return m.cur.activeFiles()
}

// Close tears down the active graph and closes its sinks. Handles remain
// safe to use and drop every record until a new document is applied.
func (m *Manager) Close() error {
	m.mu.Lock()
	old := m.cur
	m.cur = nil
	m.mu.Unlock()
	if old == nil {
		return nil
	}
	return old.close()
}

func (m *Manager) dispatch(e Entry) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return
	}
	m.cur.dispatch(e)
}

func (m *Manager) enabled(name string, lvl slog.Level) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return false
	}
	if m.cur.silenced[name] {
		return false
	}
	return lvl >= m.cur.effectiveLevel(name)
}

func (m *Manager) reportSinkError(id string, err error) {
	if !m.diagLimit.Allow() {
		return
	}
	m.diag.Error("log sink write failed", logx.String("handler", id), logx.Err(err))
}

// messageOnly renders the bare message. Handlers without a formatter
// reference fall back to it.
var messageOnly = func() Formatter {
	f, err := newTemplateFormatter(FormatterSpec{})
	if err != nil {
		panic(err)
	}
	return f
}()

// build turns a validated document into a graph, constructing formatters,
// filters, handlers and logger nodes in that order. Any failure closes the
// sinks opened so far and leaves no new state behind.
func (m *Manager) build(doc *Document) (*graph, error) {
	g := &graph{
		handlers: make(map[string]*handler, len(doc.Handlers)),
		nodes:    make(map[string]*node, len(doc.Loggers)+1),
		silenced: make(map[string]bool),
	}
	fail := func(err error) (*graph, error) {
		_ = g.close()
		return nil, err
	}

	formatters := make(map[string]Formatter, len(doc.Formatters))
	for _, id := range sortedKeys(doc.Formatters) {
		f, err := m.buildFormatter(doc.Formatters[id])
		if err != nil {
			return fail(fmt.Errorf("formatter %q: %w", id, err))
		}
		formatters[id] = f
	}

	filters := make(map[string]Filter, len(doc.Filters))
	for _, id := range sortedKeys(doc.Filters) {
		spec := doc.Filters[id]
		factory, ok := m.reg.filterFactory(spec.Factory)
		if !ok {
			return fail(fmt.Errorf("filter %q: no factory %q registered", id, spec.Factory))
		}
		fl, err := factory(spec)
		if err != nil {
			return fail(fmt.Errorf("filter %q: %w", id, err))
		}
		filters[id] = fl
	}

	for _, id := range sortedKeys(doc.Handlers) {
		h, err := m.buildHandler(id, doc.Handlers[id], formatters, filters)
		if err != nil {
			return fail(fmt.Errorf("handler %q: %w", id, err))
		}
		g.handlers[id] = h
	}

	for _, name := range sortedKeys(doc.Loggers) {
		if name == "" || name == "root" {
			continue
		}
		g.nodes[name] = buildNode(doc.Loggers[name], g)
	}
	root := &node{propagate: true}
	if spec := doc.rootSpec(); spec != nil {
		root = buildNode(*spec, g)
	}
	g.nodes[""] = root
	return g, nil
}

func (m *Manager) buildFormatter(spec FormatterSpec) (Formatter, error) {
	if spec.Factory == "" {
		return newTemplateFormatter(spec)
	}
	factory, ok := m.reg.formatterFactory(spec.Factory)
	if !ok {
		return nil, fmt.Errorf("no factory %q registered", spec.Factory)
	}
	return factory(spec)
}

func (m *Manager) buildHandler(id string, spec HandlerSpec, formatters map[string]Formatter, filters map[string]Filter) (*handler, error) {
	sink, err := m.buildSink(spec)
	if err != nil {
		return nil, err
	}

	h := &handler{id: id, fmtr: messageOnly, sink: sink, onError: m.reportSinkError}
	if spec.Level != "" {
		lvl, _ := ParseLevel(spec.Level)
		h.level, h.hasLevel = lvl, true
	}
	if spec.Formatter != "" {
		h.fmtr = formatters[spec.Formatter]
	}
	for _, fid := range spec.Filters {
		h.filters = append(h.filters, filters[fid])
	}
	return h, nil
}

func (m *Manager) buildSink(spec HandlerSpec) (Sink, error) {
	if spec.Factory != "" {
		factory, ok := m.reg.handlerFactory(spec.Factory)
		if !ok {
			return nil, fmt.Errorf("no factory %q registered", spec.Factory)
		}
		return factory(spec)
	}
	switch spec.Class {
	case ClassConsole:
		if spec.Stream == "stdout" {
			return newStreamSink(os.Stdout), nil
		}
		return newStreamSink(os.Stderr), nil
	case ClassFile:
		return newFileSink(spec.Filename, spec.Mode)
	case ClassRotatingFile:
		return newRotatingSink(spec.Filename, spec.Mode, spec.MaxBytes, spec.BackupCount)
	case ClassArchiveFile:
		return newArchiveSink(spec), nil
	default:
		return nil, fmt.Errorf("unknown class %q", spec.Class)
	}
}

// buildNode assumes the spec passed Validate: levels parse and handler
// references resolve.
func buildNode(spec LoggerSpec, g *graph) *node {
	n := &node{propagate: spec.propagates()}
	if spec.Level != "" {
		lvl, _ := ParseLevel(spec.Level)
		n.level, n.hasLevel = lvl, true
	}
	for _, id := range spec.Handlers {
		n.handlers = append(n.handlers, g.handlers[id])
	}
	return n
}
