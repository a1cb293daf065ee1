package scopes

import (
	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/rs/zerolog"
)

type LayerKind int

const (
	LocalLayer LayerKind = iota
	ClassLayer
	ExplicitImportLayer
	PackageLayer
	StarImportLayer
	DefaultImportLayer
)

func (k LayerKind) String() string {
	switch k {
	case LocalLayer:
		return "local"
	case ClassLayer:
		return "class"
	case ExplicitImportLayer:
		return "import"
	case PackageLayer:
		return "package"
	case StarImportLayer:
		return "star import"
	case DefaultImportLayer:
		return "default import"
	}
	return "unknown"
}

// Import is one import directive of a file.
type Import struct {
	Path  string
	Alias string
	Star  bool
}

// Name is the simple name an explicit import binds.
func (i Import) Name() string {
	if i.Alias != "" {
		return i.Alias
	}
	return typesystem.SimpleName(i.Path)
}

// Layer is one level of the chain. Only local layers are mutable, and only
// by the analysis that pushed them.
type Layer struct {
	Kind LayerKind

	locals map[string][]*symbols.Symbol

	// ClassLayer: the class and the type of its implicit receiver. Class
	// is nil for the receiver of an extension.
	Class    *symbols.Symbol
	Receiver typesystem.Type

	// PackageLayer
	Package string

	// import layers; default imports are star imports of packages
	Imports []Import
}

// Declare adds a local to a local layer.
func (l *Layer) Declare(sym *symbols.Symbol) {
	if l.locals == nil {
		l.locals = make(map[string][]*symbols.Symbol)
	}
	l.locals[sym.Name] = append(l.locals[sym.Name], sym)
}

// Viewpoint is where a lookup happens, for visibility checks.
type Viewpoint struct {
	Module  string
	File    string
	Package string
	Class   string
}

// Chain is an immutable linked list of layers, innermost first. Pushing a
// layer returns a new chain that shares its outer part.
type Chain struct {
	layer  *Layer
	outer  *Chain
	index  symbols.Index
	view   Viewpoint
	logger zerolog.Logger
}

type Option func(*Chain) *Chain

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Chain) *Chain {
		c.logger = logger
		return c
	}
}

// New creates the empty chain over index as seen from view.
func New(index symbols.Index, view Viewpoint, options ...Option) *Chain {
	c := &Chain{index: index, view: view, logger: zerolog.Nop()}
	for _, opt := range options {
		c = opt(c)
	}
	return c
}

// ForFile builds the file-level chain: default imports outermost, then
// star imports, the package and explicit imports.
func ForFile(index symbols.Index, view Viewpoint, imports []Import, defaults []string, options ...Option) *Chain {
	c := New(index, view, options...)
	var defaultImports []Import
	for _, pkg := range defaults {
		defaultImports = append(defaultImports, Import{Path: pkg, Star: true})
	}
	c = c.push(&Layer{Kind: DefaultImportLayer, Imports: defaultImports})
	var star, explicit []Import
	for _, imp := range imports {
		if imp.Star {
			star = append(star, imp)
		} else {
			explicit = append(explicit, imp)
		}
	}
	c = c.push(&Layer{Kind: StarImportLayer, Imports: star})
	c = c.push(&Layer{Kind: PackageLayer, Package: view.Package})
	return c.push(&Layer{Kind: ExplicitImportLayer, Imports: explicit})
}

func (c *Chain) push(l *Layer) *Chain {
	return &Chain{layer: l, outer: c, index: c.index, view: c.view, logger: c.logger}
}

// PushLocal opens a new local layer.
func (c *Chain) PushLocal() *Chain {
	return c.push(&Layer{Kind: LocalLayer})
}

// PushClass enters the body of class with receiver as the implicit this.
func (c *Chain) PushClass(class *symbols.Symbol, receiver typesystem.Type) *Chain {
	n := c.push(&Layer{Kind: ClassLayer, Class: class, Receiver: receiver})
	n.view.Class = class.Qualified
	return n
}

// PushReceiver enters the body of an extension: receiver becomes the
// implicit this, but the viewpoint stays that of the enclosing code.
func (c *Chain) PushReceiver(receiver typesystem.Type) *Chain {
	return c.push(&Layer{Kind: ClassLayer, Receiver: receiver})
}

// Declare adds sym to the innermost layer, which must be local.
func (c *Chain) Declare(sym *symbols.Symbol) {
	if c.layer == nil || c.layer.Kind != LocalLayer {
		panic("scopes: Declare outside of a local layer")
	}
	c.layer.Declare(sym)
}

func (c *Chain) Index() symbols.Index { return c.index }

func (c *Chain) View() Viewpoint { return c.view }

// Checker returns a type checker that sees the classes of the index.
func (c *Chain) Checker() *typesystem.Checker {
	return typesystem.NewChecker(c.index)
}

// ImplicitReceiver returns the innermost class receiver.
func (c *Chain) ImplicitReceiver() (typesystem.Type, *symbols.Symbol, bool) {
	for cur := c; cur != nil && cur.layer != nil; cur = cur.outer {
		if cur.layer.Kind == ClassLayer {
			return cur.layer.Receiver, cur.layer.Class, true
		}
	}
	return nil, nil, false
}

// Depth counts the layers of the chain.
func (c *Chain) Depth() int {
	n := 0
	for cur := c; cur != nil && cur.layer != nil; cur = cur.outer {
		n++
	}
	return n
}

// Found is one candidate produced by a lookup.
type Found struct {
	Symbol *symbols.Symbol
	Layer  LayerKind
	// Depth is the distance from the innermost layer; members of an
	// explicit receiver are at depth 0.
	Depth int
	// Receiver is the dispatch receiver of a member (the class instance
	// it was found on) or the implicit receiver offered to an extension.
	Receiver  typesystem.Type
	Member    bool
	Extension bool
	Invisible bool
}

func found(sym *symbols.Symbol, kind LayerKind, depth int) Found {
	return Found{
		Symbol:    sym,
		Layer:     kind,
		Depth:     depth,
		Member:    sym.Member,
		Extension: sym.IsExtension(),
	}
}

// visibleAt reports whether a local declared at sym.Pos can be seen from.
func visibleAt(sym *symbols.Symbol, from ast.Position) bool {
	if !from.IsValid() || !sym.Pos.IsValid() {
		return true
	}
	return sym.Pos.Before(from)
}

var noPosition ast.Position
