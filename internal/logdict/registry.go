package logdict

import (
	"fmt"
	"sync"
)

// Factory funcs build derived objects from their validated specs. They run
// once per Apply.
type (
	FormatterFactory func(spec FormatterSpec) (Formatter, error)
	FilterFactory    func(spec FilterSpec) (Filter, error)
	HandlerFactory   func(spec HandlerSpec) (Sink, error)
)

// Registry maps factory names to constructors. Documents reference
// factories by these names; nothing is resolved from type names at
// runtime. Registration is safe for concurrent use but normally happens
// before the first Apply.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]FormatterFactory
	filters    map[string]FilterFactory
	handlers   map[string]HandlerFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		formatters: make(map[string]FormatterFactory),
		filters:    make(map[string]FilterFactory),
		handlers:   make(map[string]HandlerFactory),
	}
}

// DefaultRegistry returns a registry preloaded with the builtin factories:
// the "color" formatter, the "daily_file" handler and the "below_error",
// "exact_level" and "rate_limit" filters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	must(r.RegisterFormatter("color", newColorFormatter))
	must(r.RegisterHandler("daily_file", newDailySink))
	must(r.RegisterFilter("below_error", newBelowErrorFilter))
	must(r.RegisterFilter("exact_level", newExactLevelFilter))
	must(r.RegisterFilter("rate_limit", newRateLimitFilter))
	return r
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func (r *Registry) RegisterFormatter(name string, f FormatterFactory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register formatter: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.formatters[name]; dup {
		return fmt.Errorf("formatter factory %q already registered", name)
	}
	r.formatters[name] = f
	return nil
}

func (r *Registry) RegisterFilter(name string, f FilterFactory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register filter: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.filters[name]; dup {
		return fmt.Errorf("filter factory %q already registered", name)
	}
	r.filters[name] = f
	return nil
}

func (r *Registry) RegisterHandler(name string, f HandlerFactory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register handler: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[name]; dup {
		return fmt.Errorf("handler factory %q already registered", name)
	}
	r.handlers[name] = f
	return nil
}

func (r *Registry) formatterFactory(name string) (FormatterFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formatters[name]
	return f, ok
}

func (r *Registry) filterFactory(name string) (FilterFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.filters[name]
	return f, ok
}

func (r *Registry) handlerFactory(name string) (HandlerFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.handlers[name]
	return f, ok
}
