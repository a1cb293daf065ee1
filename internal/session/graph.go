package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// UnknownModuleError reports a module id the graph does not know.
type UnknownModuleError struct {
	ID string
}

func (e *UnknownModuleError) Error() string {
	return "unknown module " + e.ID
}

// CycleError reports a dependency edge that would close a cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "module dependency cycle: " + strings.Join(e.Path, " -> ")
}

// Graph owns the sessions of a workspace and the dependency edges between
// them. Its lock covers edge updates and invalidation bookkeeping only;
// resolution never holds it.
type Graph struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	edges    map[string][]string

	builder  Builder
	builtins symbols.Index
	logger   zerolog.Logger
}

type Option func(*Graph) *Graph

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Graph) *Graph {
		g.logger = logger
		return g
	}
}

// WithBuiltins replaces the builtin declarations every module sees.
func WithBuiltins(index symbols.Index) Option {
	return func(g *Graph) *Graph {
		g.builtins = index
		return g
	}
}

func NewGraph(builder Builder, options ...Option) *Graph {
	g := &Graph{
		sessions: make(map[string]*Session),
		edges:    make(map[string][]string),
		builder:  builder,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		g = opt(g)
	}
	if g.builtins == nil {
		g.builtins = symbols.Builtins()
	}
	return g
}

// AddModule creates the session of a new module. Its dependencies must
// already be in the graph.
func (g *Graph) AddModule(id string, deps ...string) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[id]; ok {
		return nil, fmt.Errorf("module %s already exists", id)
	}
	sessions, err := g.resolveDeps(id, deps)
	if err != nil {
		return nil, err
	}
	s := newSession(id, sessions, g.builtins, g.logger)
	g.sessions[id] = s
	g.order = append(g.order, id)
	g.edges[id] = slices.Clone(deps)
	g.logger.Debug().Str("module", id).Strs("depends", deps).Msg("module added")
	return s, nil
}

// SetDependencies replaces the dependency edges of a module. The module
// and everything depending on it must be rebuilt.
func (g *Graph) SetDependencies(id string, deps ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return &UnknownModuleError{ID: id}
	}
	sessions, err := g.resolveDeps(id, deps)
	if err != nil {
		return err
	}
	for _, d := range deps {
		if path := g.pathLocked(d, id); path != nil {
			return &CycleError{Path: append([]string{id}, path...)}
		}
	}
	s.setDependencies(sessions)
	g.edges[id] = slices.Clone(deps)
	g.invalidateLocked(s, nil, true)
	return nil
}

func (g *Graph) resolveDeps(id string, deps []string) ([]*Session, error) {
	var sessions []*Session
	for _, d := range deps {
		if d == id {
			return nil, &CycleError{Path: []string{id, id}}
		}
		ds, ok := g.sessions[d]
		if !ok {
			return nil, &UnknownModuleError{ID: d}
		}
		sessions = append(sessions, ds)
	}
	return sessions, nil
}

// pathLocked finds a dependency path from -> ... -> to.
func (g *Graph) pathLocked(from, to string) []string {
	if from == to {
		return []string{to}
	}
	for _, d := range g.edges[from] {
		if rest := g.pathLocked(d, to); rest != nil {
			return append([]string{from}, rest...)
		}
	}
	return nil
}

// RemoveModule drops a module nothing depends on.
func (g *Graph) RemoveModule(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[id]; !ok {
		return &UnknownModuleError{ID: id}
	}
	if dependents := g.dependentsLocked(id); len(dependents) > 0 {
		return fmt.Errorf("module %s is required by %s", id, strings.Join(dependents, ", "))
	}
	g.sessions[id].setDependencies(nil)
	delete(g.sessions, id)
	delete(g.edges, id)
	g.order = slices.DeleteFunc(g.order, func(m string) bool { return m == id })
	return nil
}

// Session returns the session of a module without building it.
func (g *Graph) Session(id string) (*Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	return s, ok
}

// Modules lists the module ids in the order they were added.
func (g *Graph) Modules() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.order)
}

// GetSession returns the session of a module, building it and its
// dependencies first when they are unbuilt or stale.
func (g *Graph) GetSession(ctx context.Context, id string) (*Session, error) {
	s, ok := g.Session(id)
	if !ok {
		return nil, &UnknownModuleError{ID: id}
	}
	if err := g.ensure(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadSession builds the session of module id and returns it with its
// read lock held, together with the function releasing it. A session
// invalidated between its build and the lock is built again.
func (g *Graph) ReadSession(ctx context.Context, id string) (*Session, func(), error) {
	for {
		s, err := g.GetSession(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		release := s.Read()
		if s.State() == Resolved {
			return s, release, nil
		}
		release()
		g.logger.Debug().Str("module", id).Str("state", s.State().String()).Msg("invalidated before read, rebuilding")
		if err := diagnostics.CheckCancelled(ctx); err != nil {
			return nil, nil, err
		}
	}
}

func (g *Graph) ensure(ctx context.Context, s *Session) error {
	if s.State() == Resolved {
		return nil
	}
	eg, egctx := errgroup.WithContext(ctx)
	for d := range s.Dependencies() {
		eg.Go(func() error { return g.ensure(egctx, d) })
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return s.build(ctx, g.builder)
}

// Invalidate applies edits to a module. The module is marked stale and
// will re-index the changed files on next access; every module depending
// on it, directly or not, drops its cached results and is re-indexed in
// full on next access, since its inferred header types may have come from
// the changed declarations.
// Without changes the whole module is re-indexed. It returns the affected
// modules.
func (g *Graph) Invalidate(id string, changes ...Change) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return nil, &UnknownModuleError{ID: id}
	}
	return g.invalidateLocked(s, changes, len(changes) == 0), nil
}

func (g *Graph) invalidateLocked(s *Session, changes []Change, full bool) []string {
	s.invalidate(changes, full)
	affected := []string{s.id}
	for _, d := range g.dependentsLocked(s.id) {
		g.sessions[d].invalidate(nil, true)
		affected = append(affected, d)
	}
	g.logger.Debug().Str("module", s.id).Strs("affected", affected).Msg("invalidated")
	return affected
}

// Dependents lists the modules that depend on id directly or
// transitively, in the order they were added.
func (g *Graph) Dependents(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dependentsLocked(id)
}

func (g *Graph) dependentsLocked(id string) []string {
	reached := map[string]bool{id: true}
	changed := true
	for changed {
		changed = false
		for _, m := range g.order {
			if reached[m] {
				continue
			}
			for _, d := range g.edges[m] {
				if reached[d] {
					reached[m] = true
					changed = true
					break
				}
			}
		}
	}
	var result []string
	for _, m := range g.order {
		if m != id && reached[m] {
			result = append(result, m)
		}
	}
	return result
}
