package analyzer

import (
	"context"
	"fmt"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/scopes"
	"github.com/funvibe/fir/internal/session"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
)

// bodyPass resolves the bodies of one file against the symbols the header
// pass declared for it.
type bodyPass struct {
	w       *walker
	symbols map[string]*symbols.Symbol
}

func symbolKey(kind symbols.SymbolKind, pos ast.Position, name string) string {
	return fmt.Sprintf("%s@%s:%s", kind, pos, name)
}

// AnalyzeBodies resolves every expression of tree against s. The caller
// holds the read lock of s. Problems are reported as diagnostics; the
// error is a cancellation.
func (a *Analyzer) AnalyzeBodies(ctx context.Context, s *session.Session, tree *ast.Node) (*AnnotatedTree, error) {
	file := tree.Name
	a.bodies.Clear(file)
	at := newAnnotatedTree(file, tree)
	at.Diagnostics = a.declarations.ForFile(file)
	w := a.newWalker(s, file, a.bodies, at)
	if tree.Kind != ast.KindFile {
		w.malformed(tree, "expected a file, got %s", tree.Kind)
		return at, nil
	}
	ast.Number(tree)

	b := &bodyPass{w: w, symbols: make(map[string]*symbols.Symbol)}
	for _, sym := range s.Table().FileSymbols(file) {
		b.symbols[symbolKey(sym.Kind, sym.Pos, sym.Name)] = sym
	}
	chain := a.fileChain(s.Index(), s.ID(), newFileContext(file, tree))
	for _, n := range tree.Children {
		if err := b.declaration(ctx, chain, n); err != nil {
			return nil, err
		}
	}
	a.logger.Debug().Str("module", s.ID()).Str("file", file).
		Int("types", len(at.TypeMap)).Int("diagnostics", len(at.Diagnostics)).Msg("bodies resolved")
	return at, nil
}

func (b *bodyPass) lookup(n *ast.Node, kind symbols.SymbolKind) *symbols.Symbol {
	return b.symbols[symbolKey(kind, n.Pos, n.Name)]
}

func (b *bodyPass) declaration(ctx context.Context, chain *scopes.Chain, n *ast.Node) error {
	if err := diagnostics.CheckCancelled(ctx); err != nil {
		return err
	}
	switch n.Kind {
	case ast.KindClass:
		return b.class(ctx, chain, n)
	case ast.KindFunction:
		return b.function(ctx, chain, n)
	case ast.KindProperty:
		return b.property(ctx, chain, n)
	}
	// imports need nothing; anything else was reported by the naming pass
	return nil
}

func (b *bodyPass) class(ctx context.Context, chain *scopes.Chain, n *ast.Node) error {
	w := b.w
	sym := b.lookup(n, symbols.ClassSymbol)
	if sym == nil {
		// a redeclaration; its members were never declared
		return nil
	}
	w.declared(n, sym)
	w.typed(n, sym.ClassInfo().Type())
	inner := classScope(chain, sym)
	ctor := w.constructorScope(inner, n, sym)

	for i, p := range n.ChildrenOf(ast.KindParameter) {
		if prop := b.lookup(p, symbols.PropertySymbol); prop != nil {
			w.declared(p, prop)
		}
		def := p.Child(0)
		if def == nil || i >= len(sym.Signature.Params) {
			continue
		}
		want := sym.Signature.Params[i].Type
		t, err := w.expr(ctx, ctor, def, want)
		if err != nil {
			return err
		}
		w.expect(def, t, want)
	}

	for _, m := range classMembers(n) {
		var err error
		switch m.Kind {
		case ast.KindProperty:
			err = b.property(ctx, ctor, m)
		default:
			err = b.declaration(ctx, inner, m)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// quietSignature resolves the header of a declaration the header pass
// rejected, without reporting its problems a second time.
func (b *bodyPass) quietSignature(ctx context.Context, chain *scopes.Chain, n *ast.Node) (symbols.Signature, error) {
	quiet := *b.w
	quiet.reporter = nil
	sig, _, err := quiet.signature(ctx, chain, n, n.Name)
	return sig, err
}

func (b *bodyPass) function(ctx context.Context, chain *scopes.Chain, n *ast.Node) error {
	w := b.w
	sym := b.lookup(n, symbols.FunctionSymbol)
	var sig symbols.Signature
	owner := n.Name
	if sym != nil {
		sig, owner = sym.Signature, sym.Qualified
		w.declared(n, sym)
		w.typed(n, sig.Return)
	} else {
		var err error
		if sig, err = b.quietSignature(ctx, chain, n); err != nil {
			return err
		}
	}
	return w.functionBody(ctx, chain, n, sig, owner)
}

// functionBody resolves the default values and the body of a function
// whose header is sig.
func (w *walker) functionBody(ctx context.Context, chain *scopes.Chain, n *ast.Node, sig symbols.Signature, owner string) error {
	scope := w.bodyScope(chain, n, sig, owner)
	for i, p := range n.ChildrenOf(ast.KindParameter) {
		def := p.Child(0)
		if def == nil || i >= len(sig.Params) {
			continue
		}
		t, err := w.expr(ctx, scope, def, sig.Params[i].Type)
		if err != nil {
			return err
		}
		w.expect(def, t, sig.Params[i].Type)
	}

	body := n.Body()
	if body == nil {
		return nil
	}
	outer := w.fn
	defer func() { w.fn = outer }()
	if body.Kind == ast.KindBlock {
		w.fn = &function{name: owner, declared: sig.Return}
		_, err := w.block(ctx, scope, body, nil)
		return err
	}
	w.fn = &function{name: owner}
	var want typesystem.Type
	if n.Type != "" {
		want = sig.Return
	}
	t, err := w.expr(ctx, scope, body, want)
	if err != nil {
		return err
	}
	w.expect(body, t, want)
	return nil
}

func (b *bodyPass) property(ctx context.Context, chain *scopes.Chain, n *ast.Node) error {
	w := b.w
	sym := b.lookup(n, symbols.PropertySymbol)
	var sig symbols.Signature
	if sym != nil {
		sig = sym.Signature
		w.declared(n, sym)
		w.typed(n, sym.Type())
	} else {
		var err error
		if sig, err = b.quietSignature(ctx, chain, n); err != nil {
			return err
		}
	}
	init := n.Child(0)
	if init == nil {
		return nil
	}
	if sig.Receiver != nil {
		chain = chain.PushReceiver(sig.Receiver)
	}
	chain = withTypeParams(chain, sig.TypeParams, n.Name)
	var want typesystem.Type
	if n.Type != "" {
		want = sig.Return
	}
	t, err := w.expr(ctx, chain, init, want)
	if err != nil {
		return err
	}
	w.expect(init, t, want)
	return nil
}
