package analyzer

import (
	"context"
	"errors"
	"strings"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/scopes"
	"github.com/funvibe/fir/internal/session"
	"github.com/funvibe/fir/internal/symbols"
)

// fileContext is what every declaration of a file shares.
type fileContext struct {
	path    string
	pkg     string
	imports []scopes.Import
}

func newFileContext(path string, tree *ast.Node) *fileContext {
	fc := &fileContext{path: path, pkg: tree.Value}
	for _, imp := range tree.ChildrenOf(ast.KindImport) {
		i := scopes.Import{Path: imp.Name, Alias: imp.Value}
		if p, ok := strings.CutSuffix(imp.Name, ".*"); ok {
			i.Path, i.Star = p, true
		}
		fc.imports = append(fc.imports, i)
	}
	return fc
}

// declaration is one class, function or property found by the naming
// pass. Primary constructor parameters marked val or var are property
// declarations too.
type declaration struct {
	node  *ast.Node
	kind  symbols.SymbolKind
	file  *fileContext
	outer *declaration // enclosing class
	// symbol is the skeleton of a class after naming and the declared
	// symbol after the header pass; nil when the declaration was rejected.
	symbol *symbols.Symbol
}

// owner is the qualified name of the enclosing class, or the package.
func (d *declaration) owner() string {
	if d.outer != nil {
		return d.outer.qualified()
	}
	return d.file.pkg
}

func (d *declaration) qualified() string {
	return qualify(d.owner(), d.node.Name)
}

func (d *declaration) ownerOption() symbols.DeclareOption {
	if d.outer != nil {
		return symbols.InClass(d.owner())
	}
	return symbols.InPackage(d.file.pkg)
}

// Declarations is what the naming pass found, in source order.
type Declarations struct {
	// skeleton holds the classes by name only, so that headers can refer
	// to classes declared further down or in another file of the batch.
	skeleton *symbols.Table
	items    []*declaration
}

func (d *Declarations) Len() int { return len(d.items) }

// AnalyzeNaming collects the declarations of the given files of s. Class
// names clashing within the batch are reported here; everything else is
// checked when the headers are declared.
func (a *Analyzer) AnalyzeNaming(ctx context.Context, s *session.Session, files ...string) (*Declarations, error) {
	a.declarations.Clear(files...)
	decls := &Declarations{skeleton: symbols.NewTable(s.ID())}
	for _, f := range files {
		if err := diagnostics.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		tree, ok := s.SourceLocked(f)
		if !ok {
			continue
		}
		if tree.Kind != ast.KindFile {
			a.declarations.Reportf(diagnostics.ErrMalformedTree, location(f, tree), "expected a file, got %s", tree.Kind)
			continue
		}
		ast.Number(tree)
		decls.collect(a.declarations, newFileContext(f, tree), tree.Children, nil)
	}
	a.logger.Debug().Str("module", s.ID()).Int("files", len(files)).Int("declarations", decls.Len()).Msg("naming done")
	return decls, nil
}

func (d *Declarations) add(n *ast.Node, kind symbols.SymbolKind, fc *fileContext, outer *declaration) *declaration {
	decl := &declaration{node: n, kind: kind, file: fc, outer: outer}
	d.items = append(d.items, decl)
	return decl
}

func (d *Declarations) collect(r *diagnostics.Reporter, fc *fileContext, nodes []*ast.Node, outer *declaration) {
	for _, n := range nodes {
		switch n.Kind {
		case ast.KindImport:
			if outer != nil {
				r.Reportf(diagnostics.ErrMalformedTree, location(fc.path, n), "import inside a class")
			}
		case ast.KindClass:
			decl := d.add(n, symbols.ClassSymbol, fc, outer)
			id, err := d.skeleton.Declare(n.Name, symbols.ClassSymbol, symbols.Signature{},
				decl.ownerOption(), symbols.InFile(fc.path, n.Pos))
			var dup *symbols.DuplicateDeclarationError
			if errors.As(err, &dup) {
				r.Reportf(diagnostics.ErrDuplicateDeclaration, location(fc.path, n), "redeclaration: class %s", decl.qualified())
				continue
			}
			decl.symbol, _ = d.skeleton.Get(id)
			for _, p := range n.ChildrenOf(ast.KindParameter) {
				if p.HasModifier("val") || p.HasModifier("var") {
					d.add(p, symbols.PropertySymbol, fc, decl)
				}
			}
			d.collect(r, fc, classMembers(n), decl)
		case ast.KindFunction:
			d.add(n, symbols.FunctionSymbol, fc, outer)
		case ast.KindProperty:
			d.add(n, symbols.PropertySymbol, fc, outer)
		default:
			r.Reportf(diagnostics.ErrMalformedTree, location(fc.path, n), "unexpected %s among declarations", n.Kind)
		}
	}
}

// classMembers returns the children of a class after its header.
func classMembers(n *ast.Node) []*ast.Node {
	var result []*ast.Node
	for _, c := range n.Children {
		switch c.Kind {
		case ast.KindTypeParameter, ast.KindTypeRef, ast.KindParameter:
		default:
			result = append(result, c)
		}
	}
	return result
}

func location(file string, n *ast.Node) diagnostics.Location {
	return diagnostics.Location{File: file, Line: n.Pos.Line, Column: n.Pos.Column}
}

func qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
