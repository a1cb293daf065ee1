package symbols

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/dghubble/trie"
	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DuplicateDeclarationError rejects a declaration that clashes with an
// existing one in the same owner scope.
type DuplicateDeclarationError struct {
	Name     string
	Owner    string
	Kind     SymbolKind
	Existing *Symbol
}

func (e *DuplicateDeclarationError) Error() string {
	where := e.Owner
	if where == "" {
		where = "<root>"
	}
	if e.Kind == e.Existing.Kind {
		return fmt.Sprintf("conflicting overloads: %s is already declared in %s at %s", e.Existing, where, e.Existing.Location())
	}
	return fmt.Sprintf("%s %s conflicts with %s declared in %s at %s", e.Kind, e.Name, e.Existing, where, e.Existing.Location())
}

// Table stores the declarations of one module. It follows a single writer,
// multiple reader discipline.
type Table struct {
	mu       sync.RWMutex
	module   string
	symbols  map[SymbolID]*Symbol
	order    []SymbolID
	byName   map[string][]SymbolID
	byOwner  map[string][]SymbolID
	byFile   map[string][]SymbolID
	index    *trie.PathTrie // qualified name -> []SymbolID
	packages map[string]int

	observers []*observer
	logger    zerolog.Logger
}

type TableOption func(*Table) *Table

func WithLogger(logger zerolog.Logger) TableOption {
	return func(t *Table) *Table {
		t.logger = logger
		return t
	}
}

func NewTable(module string, options ...TableOption) *Table {
	t := &Table{
		module:   module,
		symbols:  make(map[SymbolID]*Symbol),
		byName:   make(map[string][]SymbolID),
		byOwner:  make(map[string][]SymbolID),
		byFile:   make(map[string][]SymbolID),
		index:    trie.NewPathTrieWithConfig(&trie.PathTrieConfig{Segmenter: qualifiedSegmenter}),
		packages: make(map[string]int),
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		t = opt(t)
	}
	return t
}

// qualifiedSegmenter splits "a.b.c" into "a", ".b", ".c".
func qualifiedSegmenter(path string, start int) (segment string, next int) {
	if len(path) == 0 || start < 0 || start > len(path)-1 {
		return "", -1
	}
	end := strings.IndexRune(path[start+1:], '.')
	if end == -1 {
		return path[start:], -1
	}
	return path[start : start+end+1], start + end + 1
}

func (t *Table) Module() string { return t.module }

type observer struct {
	fn func(*Symbol)
}

// OnDeclare registers a callback invoked after every successful Declare.
// The returned function unregisters it.
func (t *Table) OnDeclare(fn func(*Symbol)) (cancel func()) {
	o := &observer{fn: fn}
	t.mu.Lock()
	defer t.mu.Unlock()
	// Declare runs a snapshot of the slice outside the lock, so it is
	// replaced, never edited in place.
	t.observers = append(slices.Clip(t.observers), o)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.observers = slices.DeleteFunc(slices.Clone(t.observers), func(x *observer) bool { return x == o })
	}
}

// Observers reports how many OnDeclare callbacks are registered.
func (t *Table) Observers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.observers)
}

// DeclareOption sets optional fields of a declared symbol.
type DeclareOption func(*Symbol)

// InPackage declares a top-level symbol of pkg.
func InPackage(pkg string) DeclareOption {
	return func(s *Symbol) { s.Owner, s.Member = pkg, false }
}

// InClass declares a member of the class with the given qualified name.
func InClass(class string) DeclareOption {
	return func(s *Symbol) { s.Owner, s.Member = class, true }
}

func InFile(file string, pos ast.Position) DeclareOption {
	return func(s *Symbol) { s.File, s.Pos = file, pos }
}

func WithVisibility(v Visibility) DeclareOption {
	return func(s *Symbol) { s.Visibility = v }
}

func WithOrigin(o Origin) DeclareOption {
	return func(s *Symbol) { s.Origin = o }
}

func AsMutable() DeclareOption {
	return func(s *Symbol) { s.Mutable = true }
}

func AsInfix() DeclareOption {
	return func(s *Symbol) { s.Infix = true }
}

// Declare adds a symbol. Within one owner, a declaration whose signature
// key equals an existing one with the same name is rejected, whether the
// kinds differ or not; overloads with distinct signatures are fine.
func (t *Table) Declare(name string, kind SymbolKind, sig Signature, options ...DeclareOption) (SymbolID, error) {
	sym := &Symbol{
		ID:        uuid.New(),
		Name:      name,
		Kind:      kind,
		Module:    t.module,
		Signature: sig,
	}
	for _, opt := range options {
		opt(sym)
	}
	if sym.Owner == "" {
		sym.Qualified = name
	} else {
		sym.Qualified = sym.Owner + "." + name
	}
	if kind == ClassSymbol && sym.Signature.Return == nil {
		sym.Signature.Return = sym.ClassInfo().Type()
	}

	t.mu.Lock()
	key := declarationKey(sym)
	for _, id := range t.byOwner[sym.Owner] {
		existing := t.symbols[id]
		if existing.Name != name || existing.Member != sym.Member {
			continue
		}
		if declarationKey(existing) == key {
			t.mu.Unlock()
			return uuid.Nil, &DuplicateDeclarationError{Name: name, Owner: sym.Owner, Kind: kind, Existing: existing}
		}
	}
	t.insert(sym)
	observers := t.observers
	t.mu.Unlock()

	t.logger.Debug().Str("module", t.module).Str("symbol", sym.Qualified).Str("kind", kind.String()).Msg("declared")
	for _, o := range observers {
		o.fn(sym)
	}
	return sym.ID, nil
}

// declarationKey is the overload-distinguishing part of a declaration.
// Classes and properties have none.
func declarationKey(s *Symbol) string {
	if s.Kind != FunctionSymbol {
		if s.Signature.Receiver != nil {
			return typesystem.Key(s.Signature.Receiver) + "."
		}
		return ""
	}
	return s.Signature.Key()
}

func (t *Table) insert(sym *Symbol) {
	t.symbols[sym.ID] = sym
	t.order = append(t.order, sym.ID)
	t.byName[sym.Name] = append(t.byName[sym.Name], sym.ID)
	t.byOwner[sym.Owner] = append(t.byOwner[sym.Owner], sym.ID)
	if sym.File != "" {
		t.byFile[sym.File] = append(t.byFile[sym.File], sym.ID)
	}
	var ids []SymbolID
	if v := t.index.Get(sym.Qualified); v != nil {
		ids = v.([]SymbolID)
	}
	t.index.Put(sym.Qualified, append(ids, sym.ID))
	if !sym.Member {
		t.addPackage(sym.Owner, 1)
	}
}

func (t *Table) addPackage(pkg string, delta int) {
	for pkg != "" {
		t.packages[pkg] += delta
		if t.packages[pkg] <= 0 {
			delete(t.packages, pkg)
		}
		i := strings.LastIndexByte(pkg, '.')
		if i < 0 {
			return
		}
		pkg = pkg[:i]
	}
}

// Lookup returns the IDs of every symbol with the given simple name in
// declaration order.
func (t *Table) Lookup(name string) []SymbolID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]SymbolID(nil), t.byName[name]...)
}

// LookupQualified returns the IDs of every symbol with the given qualified
// name; overloads share one.
func (t *Table) LookupQualified(qualified string) []SymbolID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v := t.index.Get(qualified)
	if v == nil {
		return nil
	}
	return append([]SymbolID(nil), v.([]SymbolID)...)
}

// LongestPrefix returns the longest dotted prefix of name that is a
// declared qualified name.
func (t *Table) LongestPrefix(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var last string
	t.index.WalkPath(name, func(key string, value interface{}) error {
		if value != nil {
			last = key
		}
		return nil
	})
	return last, last != ""
}

func (t *Table) Get(id SymbolID) (*Symbol, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.symbols[id]
	return s, ok
}

// Resolve maps IDs to symbols, skipping unknown ones.
func (t *Table) Resolve(ids []SymbolID) []*Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]*Symbol, 0, len(ids))
	for _, id := range ids {
		if s, ok := t.symbols[id]; ok {
			result = append(result, s)
		}
	}
	return result
}

// Named returns the symbols with the given simple name.
func (t *Table) Named(name string) []*Symbol {
	return t.Resolve(t.Lookup(name))
}

// Qualified returns the symbols with the given qualified name.
func (t *Table) Qualified(qualified string) []*Symbol {
	return t.Resolve(t.LookupQualified(qualified))
}

// Members returns the symbols declared in a class body.
func (t *Table) Members(owner string) []*Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var result []*Symbol
	for _, id := range t.byOwner[owner] {
		if s := t.symbols[id]; s.Member {
			result = append(result, s)
		}
	}
	return result
}

// Package returns the top-level symbols of a package.
func (t *Table) Package(pkg string) []*Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var result []*Symbol
	for _, id := range t.byOwner[pkg] {
		if s := t.symbols[id]; !s.Member {
			result = append(result, s)
		}
	}
	return result
}

// HasPackage reports whether pkg or one of its subpackages declares
// anything.
func (t *Table) HasPackage(pkg string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.packages[pkg] > 0
}

// Class returns the class symbol with the given qualified name.
func (t *Table) Class(qualified string) (*Symbol, bool) {
	for _, s := range t.Qualified(qualified) {
		if s.Kind == ClassSymbol {
			return s, true
		}
	}
	return nil, false
}

// ClassInfo implements typesystem.ClassResolver.
func (t *Table) ClassInfo(name string) (*typesystem.ClassInfo, bool) {
	s, ok := t.Class(name)
	if !ok {
		return nil, false
	}
	return s.ClassInfo(), true
}

// FileSymbols returns the symbols declared in one file.
func (t *Table) FileSymbols(file string) []*Symbol {
	t.mu.RLock()
	ids := append([]SymbolID(nil), t.byFile[file]...)
	t.mu.RUnlock()
	return t.Resolve(ids)
}

// RemoveFile drops every symbol declared in file and returns them.
func (t *Table) RemoveFile(file string) []*Symbol {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := t.removeLocked(t.byFile[file])
	delete(t.byFile, file)
	if len(result) > 0 {
		t.logger.Debug().Str("module", t.module).Str("file", file).Int("removed", len(result)).Msg("removed file symbols")
	}
	return result
}

// Remove drops the given symbols. Unknown IDs are ignored.
func (t *Table) Remove(ids ...SymbolID) []*Symbol {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(ids)
}

func (t *Table) removeLocked(ids []SymbolID) []*Symbol {
	removed := make(map[SymbolID]bool, len(ids))
	var result []*Symbol
	for _, id := range ids {
		s, ok := t.symbols[id]
		if !ok {
			continue
		}
		removed[id] = true
		result = append(result, s)
		delete(t.symbols, id)
		if !s.Member {
			t.addPackage(s.Owner, -1)
		}
	}
	if len(result) == 0 {
		return nil
	}
	for _, s := range result {
		t.byName[s.Name] = without(t.byName[s.Name], removed)
		t.byOwner[s.Owner] = without(t.byOwner[s.Owner], removed)
		if s.File != "" {
			t.byFile[s.File] = without(t.byFile[s.File], removed)
		}
		if v := t.index.Get(s.Qualified); v != nil {
			if rest := without(v.([]SymbolID), removed); len(rest) > 0 {
				t.index.Put(s.Qualified, rest)
			} else {
				t.index.Delete(s.Qualified)
			}
		}
	}
	t.order = without(t.order, removed)
	return result
}

func without(ids []SymbolID, removed map[SymbolID]bool) []SymbolID {
	result := ids[:0:0]
	for _, id := range ids {
		if !removed[id] {
			result = append(result, id)
		}
	}
	return result
}

// All returns every symbol in declaration order.
func (t *Table) All() []*Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]*Symbol, 0, len(t.order))
	for _, id := range t.order {
		result = append(result, t.symbols[id])
	}
	return result
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.symbols)
}

// Files lists the files that declared symbols, sorted.
func (t *Table) Files() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	files := make([]string, 0, len(t.byFile))
	for f := range t.byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
