package session

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/rs/zerolog"
)

// State is the build state of a session.
type State int32

const (
	Unbuilt State = iota
	Building
	Resolved
	Stale
)

func (s State) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case Building:
		return "building"
	case Resolved:
		return "resolved"
	case Stale:
		return "stale"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Change is an edit to one source file of a module. A nil Tree removes
// the file.
type Change struct {
	File string
	Tree *ast.Node
}

// Builder indexes the declarations of the given files of a session into
// its table. It runs with the session's write lock held.
type Builder interface {
	Index(ctx context.Context, s *Session, files []string) error
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, s *Session, files []string) error

func (f BuilderFunc) Index(ctx context.Context, s *Session, files []string) error {
	return f(ctx, s, files)
}

// Session owns one module: its symbol table, sources, cache and state.
// Dependencies are held through weak pointers; the Graph owns every
// session.
type Session struct {
	mu sync.RWMutex // read: resolution, write: (re)building

	id        string
	table     *symbols.Table
	sources   map[string]*ast.Node
	libraries []symbols.Index
	builtins  symbols.Index
	deps      atomic.Pointer[dependencies]
	cache     *Cache
	state     atomic.Int32
	logger    zerolog.Logger

	pendMu  sync.Mutex
	pending []Change
	full    bool // rebuild everything, not only the pending files
	dirty   bool // invalidated while building
}

func newSession(id string, deps []*Session, builtins symbols.Index, logger zerolog.Logger) *Session {
	s := &Session{
		id:       id,
		table:    symbols.NewTable(id, symbols.WithLogger(logger)),
		sources:  make(map[string]*ast.Node),
		builtins: builtins,
		cache:    NewCache(),
		logger:   logger.With().Str("module", id).Logger(),
	}
	s.setDependencies(deps)
	return s
}

type dependencies struct {
	ptrs []weak.Pointer[Session]
	ids  []string
	// unregister the cache listeners on the dependency tables
	cancels []func()
}

// setDependencies replaces the dependencies of s. Listeners registered for
// the previous set are removed.
func (s *Session) setDependencies(deps []*Session) {
	next := &dependencies{}
	for _, d := range deps {
		next.ptrs = append(next.ptrs, weak.Make(d))
		next.ids = append(next.ids, d.id)
		cache := s.cache
		next.cancels = append(next.cancels, d.table.OnDeclare(func(sym *symbols.Symbol) {
			cache.Forget(sym.Qualified)
		}))
	}
	if prev := s.deps.Swap(next); prev != nil {
		for _, cancel := range prev.cancels {
			cancel()
		}
	}
}

func (s *Session) ID() string { return s.id }

// Table is the module's own symbol table.
func (s *Session) Table() *symbols.Table { return s.table }

func (s *Session) Cache() *Cache { return s.cache }

func (s *Session) State() State { return State(s.state.Load()) }

// DependencyIDs lists the direct dependencies in declaration order.
func (s *Session) DependencyIDs() []string { return slices.Clone(s.deps.Load().ids) }

// Dependencies yields the live dependency sessions.
func (s *Session) Dependencies() iter.Seq[*Session] {
	return func(yield func(*Session) bool) {
		for _, p := range s.deps.Load().ptrs {
			d := p.Value()
			if d == nil {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// AddSource sets the tree of file. It is meant for loading a module
// before its first build; later edits go through Graph.Invalidate.
func (s *Session) AddSource(file string, tree *ast.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[file] = tree
}

// AddLibrary makes the declarations of a foreign library visible to the
// module.
func (s *Session) AddLibrary(index symbols.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libraries = append(s.libraries, index)
}

// Source returns the tree of file.
func (s *Session) Source(file string) (*ast.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SourceLocked(file)
}

// SourceLocked is Source for callers that already hold the session lock,
// such as a Builder.
func (s *Session) SourceLocked(file string) (*ast.Node, bool) {
	n, ok := s.sources[file]
	return n, ok
}

// Owns reports whether file belongs to the module, counting edits that
// are queued but not built yet.
func (s *Session) Owns(file string) bool {
	s.pendMu.Lock()
	for i := len(s.pending) - 1; i >= 0; i-- {
		if s.pending[i].File == file {
			added := s.pending[i].Tree != nil
			s.pendMu.Unlock()
			return added
		}
	}
	s.pendMu.Unlock()
	defer s.Read()()
	_, ok := s.sources[file]
	return ok
}

// Files lists the module's source files in sorted order.
func (s *Session) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files()
}

func (s *Session) files() []string {
	return slices.Sorted(maps.Keys(s.sources))
}

// Read takes the read side of the session lock for the duration of a
// resolution and returns the function that releases it.
func (s *Session) Read() (release func()) {
	s.mu.RLock()
	return s.mu.RUnlock
}

// Index is what resolution inside the module sees: its own declarations,
// then those of its direct dependencies, its libraries and the builtins.
func (s *Session) Index() symbols.Index { return moduleIndex{s} }

// Checker returns a type checker over the module's index.
func (s *Session) Checker() *typesystem.Checker {
	return typesystem.NewChecker(s.Index())
}

// build brings the session up to date. Unbuilt sessions, and sessions
// whose dependencies changed, index every file; stale sessions only
// re-index the changed files.
func (s *Session) build(ctx context.Context, builder Builder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.State()
	if prev == Resolved {
		return nil
	}
	if err := diagnostics.CheckCancelled(ctx); err != nil {
		return err
	}
	s.state.Store(int32(Building))
	// results stored by readers that raced with the invalidation
	s.cache.Clear()

	s.pendMu.Lock()
	changes, full := s.pending, s.full || prev == Unbuilt
	s.pending, s.full, s.dirty = nil, false, false
	s.pendMu.Unlock()

	var files []string
	if full {
		for _, f := range s.table.Files() {
			s.table.RemoveFile(f)
		}
	}
	for _, c := range changes {
		if !full {
			s.table.RemoveFile(c.File)
		}
		if c.Tree == nil {
			delete(s.sources, c.File)
			continue
		}
		s.sources[c.File] = c.Tree
		if !full {
			files = append(files, c.File)
		}
	}
	if full {
		files = s.files()
	}
	slices.Sort(files)
	files = slices.Compact(files)

	s.logger.Debug().Str("from", prev.String()).Int("files", len(files)).Bool("full", full).Msg("building session")
	if builder != nil && len(files) > 0 {
		if err := builder.Index(ctx, s, files); err != nil {
			// leave everything to be redone on the next access
			s.pendMu.Lock()
			s.full = true
			s.pendMu.Unlock()
			if prev == Unbuilt {
				s.state.Store(int32(Unbuilt))
			} else {
				s.state.Store(int32(Stale))
			}
			return fmt.Errorf("building module %s: %w", s.id, err)
		}
	}

	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	if s.dirty {
		s.state.Store(int32(Stale))
	} else {
		s.state.Store(int32(Resolved))
	}
	return nil
}

// invalidate queues changes and marks the session stale. No changes means
// the whole module must be re-indexed.
func (s *Session) invalidate(changes []Change, full bool) {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	s.pending = append(s.pending, changes...)
	s.full = s.full || full
	s.dirty = true
	s.state.CompareAndSwap(int32(Resolved), int32(Stale))
	s.cache.Clear()
}

type moduleIndex struct{ s *Session }

var _ symbols.Index = moduleIndex{}

func (m moduleIndex) union() symbols.Union {
	u := symbols.Union{m.s.table}
	for d := range m.s.Dependencies() {
		u = append(u, lockedIndex{d})
	}
	u = append(u, m.s.libraries...)
	if m.s.builtins != nil {
		u = append(u, m.s.builtins)
	}
	return u
}

// Qualified answers from the module's own table directly and from its
// dependencies through the cache.
func (m moduleIndex) Qualified(qualified string) []*symbols.Symbol {
	s := m.s
	result := s.table.Qualified(qualified)
	external, ok := s.cache.Lookup(qualified)
	if !ok {
		for d := range s.Dependencies() {
			external = append(external, lockedIndex{d}.Qualified(qualified)...)
		}
		s.cache.PutLookup(qualified, external)
	}
	result = append(result, external...)
	for _, lib := range s.libraries {
		result = append(result, lib.Qualified(qualified)...)
	}
	if s.builtins != nil {
		result = append(result, s.builtins.Qualified(qualified)...)
	}
	return result
}

func (m moduleIndex) Package(pkg string) []*symbols.Symbol { return m.union().Package(pkg) }

func (m moduleIndex) HasPackage(pkg string) bool { return m.union().HasPackage(pkg) }

func (m moduleIndex) Members(owner string) []*symbols.Symbol { return m.union().Members(owner) }

func (m moduleIndex) Class(qualified string) (*symbols.Symbol, bool) {
	return m.union().Class(qualified)
}

func (m moduleIndex) ClassInfo(name string) (*typesystem.ClassInfo, bool) {
	return m.union().ClassInfo(name)
}

// lockedIndex reads a dependency's table under its read lock, so a lookup
// waits while the dependency is being rebuilt.
type lockedIndex struct{ s *Session }

func (l lockedIndex) Qualified(qualified string) []*symbols.Symbol {
	defer l.s.Read()()
	return l.s.table.Qualified(qualified)
}

func (l lockedIndex) Package(pkg string) []*symbols.Symbol {
	defer l.s.Read()()
	return l.s.table.Package(pkg)
}

func (l lockedIndex) HasPackage(pkg string) bool {
	defer l.s.Read()()
	return l.s.table.HasPackage(pkg)
}

func (l lockedIndex) Members(owner string) []*symbols.Symbol {
	defer l.s.Read()()
	return l.s.table.Members(owner)
}

func (l lockedIndex) Class(qualified string) (*symbols.Symbol, bool) {
	defer l.s.Read()()
	return l.s.table.Class(qualified)
}

func (l lockedIndex) ClassInfo(name string) (*typesystem.ClassInfo, bool) {
	defer l.s.Read()()
	return l.s.table.ClassInfo(name)
}
