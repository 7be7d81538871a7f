package routes

import (
	"context"
	"sort"
	"sync"

	"github.com/atrilabs/atri-runtime/pkg/state"
)

// Hook is a lifecycle hook of a route. It reads and mutates the session
// state through h; a returned error or a panic marks the invocation as
// failed. ctx is cancelled when the invocation times out.
type Hook func(ctx context.Context, h *state.Handle) error

// Route is an immutable route definition.
type Route struct {
	// Path is the canonical route path.
	Path string

	// Init runs once per session, before the first snapshot is sent.
	Init Hook

	// Event runs once per client event.
	Event Hook

	// Defaults seeds the state of new sessions before Init runs.
	Defaults state.Map
}

// Noop is the hook used for routes that leave a hook unimplemented.
func Noop(context.Context, *state.Handle) error { return nil }

// Registry maps canonical paths to routes. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	routes  map[string]*Route
	version uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]*Route)}
}

// Register adds a route with the given hooks. Nil hooks become Noop.
func (r *Registry) Register(path string, initHook, eventHook Hook) error {
	return r.RegisterRoute(Route{Path: path, Init: initHook, Event: eventHook})
}

// RegisterRoute adds rt. It returns a *DuplicateRouteError when the
// canonical path is already taken and a *PathError when it is invalid.
func (r *Registry) RegisterRoute(rt Route) error {
	def, err := normalize(rt)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[def.Path]; exists {
		return &DuplicateRouteError{Path: def.Path}
	}
	r.routes[def.Path] = def
	r.version++
	return nil
}

// Resolve returns the route registered for path. It returns an
// *UnknownRouteError when there is none.
func (r *Registry) Resolve(path string) (*Route, error) {
	canonical, err := Canonical(path)
	if err != nil {
		return nil, &UnknownRouteError{Path: path}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[canonical]
	if !ok {
		return nil, &UnknownRouteError{Path: path}
	}
	return rt, nil
}

// Replace swaps the complete mapping for defs. The new mapping is built and
// validated first; on error the current mapping stays active. Sessions that
// already resolved a route keep it.
func (r *Registry) Replace(defs []Route) error {
	next := make(map[string]*Route, len(defs))
	for _, rt := range defs {
		def, err := normalize(rt)
		if err != nil {
			return err
		}
		if _, exists := next[def.Path]; exists {
			return &DuplicateRouteError{Path: def.Path}
		}
		next[def.Path] = def
	}

	r.mu.Lock()
	r.routes = next
	r.version++
	r.mu.Unlock()
	return nil
}

// Paths returns the registered paths in lexicographic order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.routes))
	for p := range r.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of registered routes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Version increases each time the mapping changes.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func normalize(rt Route) (*Route, error) {
	canonical, err := Canonical(rt.Path)
	if err != nil {
		return nil, &PathError{Path: rt.Path, Err: err}
	}
	def := &Route{
		Path:     canonical,
		Init:     rt.Init,
		Event:    rt.Event,
		Defaults: rt.Defaults.Clone(),
	}
	if def.Init == nil {
		def.Init = Noop
	}
	if def.Event == nil {
		def.Event = Noop
	}
	return def, nil
}
