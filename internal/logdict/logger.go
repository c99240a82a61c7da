package logdict

import (
	"context"
	"log/slog"
	"strings"
)

// defaultRootLevel applies when the document leaves the root logger level
// unset.
const defaultRootLevel = slog.LevelWarn

// node is one configured logger in a built graph.
type node struct {
	level     slog.Level
	hasLevel  bool
	handlers  []*handler
	propagate bool
}

// graph holds everything derived from one applied document. It is
// immutable after build; the manager swaps whole graphs on Apply. The
// root logger lives under the name "".
type graph struct {
	handlers map[string]*handler
	nodes    map[string]*node

	// silenced marks manager handles disabled by
	// disable_existing_loggers.
	silenced map[string]bool
}

// effectiveLevel walks from name toward the root and returns the nearest
// configured level. Unconfigured names are transparent.
func (g *graph) effectiveLevel(name string) slog.Level {
	for n := name; ; n = parentName(n) {
		if node, ok := g.nodes[n]; ok && node.hasLevel {
			return node.level
		}
		if n == "" {
			return defaultRootLevel
		}
	}
}

// dispatch offers an entry to the originating logger's handlers and then,
// while propagate holds, to each configured ancestor's handlers up to the
// root. Ancestor logger levels are not rechecked; every handler applies
// its own gate and filters.
func (g *graph) dispatch(e Entry) {
	if g.silenced[e.Logger] {
		return
	}
	if e.Level < g.effectiveLevel(e.Logger) {
		return
	}
	for name := e.Logger; ; name = parentName(name) {
		if n, ok := g.nodes[name]; ok {
			for _, h := range n.handlers {
				h.emit(e)
			}
			if !n.propagate {
				return
			}
		}
		if name == "" {
			return
		}
	}
}

func (g *graph) close() error {
	var firstErr error
	for _, id := range sortedKeys(g.handlers) {
		if err := g.handlers[id].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// activeFiles returns the file paths held open by this graph's sinks.
func (g *graph) activeFiles() []string {
	var paths []string
	for _, id := range sortedKeys(g.handlers) {
		if p, ok := g.handlers[id].sink.(filePather); ok {
			paths = append(paths, p.Path())
		}
	}
	return paths
}

func parentName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// dispatcher is the slog.Handler behind every manager handle. It holds no
// graph state of its own, so handles stay valid across Apply.
type dispatcher struct {
	m    *Manager
	name string
}

func (d *dispatcher) Enabled(_ context.Context, lvl slog.Level) bool {
	return d.m.enabled(d.name, lvl)
}

func (d *dispatcher) Handle(_ context.Context, r slog.Record) error {
	d.m.dispatch(recordEntry(r, d.name))
	return nil
}

func (d *dispatcher) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &withAttrs{base: d, attrs: attrs}
}

func (d *dispatcher) WithGroup(name string) slog.Handler {
	return &withGroup{base: d, group: name}
}
