package analyzer

import (
	"context"
	"errors"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/scopes"
	"github.com/funvibe/fir/internal/session"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
)

// implicit is a declaration whose type comes from its expression body or
// initializer.
type implicit struct {
	d     *declaration
	sig   symbols.Signature
	chain *scopes.Chain
}

// AnalyzeHeaders resolves the type references of every declaration's
// header and declares it in the session's table. Classes go first, then
// declarations with explicit types, then those whose type is inferred, in
// dependency order.
func (a *Analyzer) AnalyzeHeaders(ctx context.Context, s *session.Session, decls *Declarations) error {
	index := symbols.Union{s.Index(), decls.skeleton}
	for _, d := range decls.items {
		if d.kind != symbols.ClassSymbol || d.symbol == nil || rejected(d) {
			continue
		}
		if err := a.classHeader(ctx, s, index, d); err != nil {
			return err
		}
	}

	var pending []*implicit
	for _, d := range decls.items {
		if err := diagnostics.CheckCancelled(ctx); err != nil {
			return err
		}
		if d.kind == symbols.ClassSymbol || rejected(d) {
			continue
		}
		w := a.newWalker(s, d.file.path, a.declarations, nil)
		chain := a.headerChain(index, s, d)
		if d.node.Kind == ast.KindParameter {
			if err := a.constructorProperty(ctx, w, s, chain, d); err != nil {
				return err
			}
			continue
		}
		sig, inner, err := w.signature(ctx, chain, d.node, d.qualified())
		if err != nil {
			return err
		}
		if sig.Return == nil {
			if d.kind == symbols.PropertySymbol && d.node.Child(0) == nil {
				w.report(d.node, diagnostics.ErrUnresolvedType, "property %s must have a type or an initializer", d.node.Name)
				sig.Return = typesystem.TError{Reason: "no type for " + d.node.Name}
			} else {
				pending = append(pending, &implicit{d: d, sig: sig, chain: inner})
				continue
			}
		}
		d.symbol = a.declare(w, s, d, sig)
	}
	return a.inferHeaders(ctx, s, pending)
}

// headerChain is the scope a declaration's header is resolved in: the
// file, then the bodies of the enclosing classes.
func (a *Analyzer) headerChain(index symbols.Index, s *session.Session, d *declaration) *scopes.Chain {
	chain := a.fileChain(index, s.ID(), d.file)
	var outers []*declaration
	for o := d.outer; o != nil; o = o.outer {
		outers = append([]*declaration{o}, outers...)
	}
	for _, o := range outers {
		chain = classScope(chain, o.symbol)
	}
	return chain
}

func (a *Analyzer) classHeader(ctx context.Context, s *session.Session, index symbols.Index, d *declaration) error {
	w := a.newWalker(s, d.file.path, a.declarations, nil)
	n := d.node
	tps, inner, err := w.typeParameters(ctx, a.headerChain(index, s, d), n.ChildrenOf(ast.KindTypeParameter), d.qualified())
	if err != nil {
		return err
	}
	sig := symbols.Signature{TypeParams: tps}
	for _, ref := range n.ChildrenOf(ast.KindTypeRef) {
		st, err := w.resolveType(ctx, inner, ref, ref.Type)
		if err != nil {
			return err
		}
		if _, isClass := st.(typesystem.TClass); !isClass && !typesystem.IsError(st) {
			w.report(ref, diagnostics.ErrUnresolvedType, "%s cannot be a supertype", st)
			continue
		}
		sig.Supertypes = append(sig.Supertypes, st)
	}
	if sig.Params, err = w.parameters(ctx, inner, n.ChildrenOf(ast.KindParameter)); err != nil {
		return err
	}
	d.symbol = a.declare(w, s, d, sig)
	return nil
}

// rejected reports whether an enclosing class of d was not declared; its
// members are skipped rather than merged into the class it clashed with.
func rejected(d *declaration) bool {
	for o := d.outer; o != nil; o = o.outer {
		if o.symbol == nil {
			return true
		}
	}
	return false
}

func (a *Analyzer) constructorProperty(ctx context.Context, w *walker, s *session.Session, chain *scopes.Chain, d *declaration) error {
	var t typesystem.Type = typesystem.TError{Reason: "no type for " + d.node.Name}
	if d.node.Type != "" {
		var err error
		if t, err = w.resolveType(ctx, chain, d.node, d.node.Type); err != nil {
			return err
		}
	}
	d.symbol = a.declare(w, s, d, symbols.Signature{Return: t})
	return nil
}

// inferHeaders declares the implicitly typed declarations. Each round
// types the bodies of those left; a body that needs another pending
// declaration waits for the next round. When a round makes no progress
// the rest depend on each other and are declared with error types.
func (a *Analyzer) inferHeaders(ctx context.Context, s *session.Session, pending []*implicit) error {
	for len(pending) > 0 {
		names := make(map[string]bool, len(pending))
		for _, p := range pending {
			names[p.d.node.Name] = true
		}
		var waiting []*implicit
		for _, p := range pending {
			w := a.newWalker(s, p.d.file.path, nil, nil)
			t, err := w.implicitType(ctx, p)
			if err != nil {
				return err
			}
			if typesystem.ContainsError(t) && w.waitsFor(names) {
				waiting = append(waiting, p)
				continue
			}
			p.sig.Return = t
			p.d.symbol = a.declare(a.newWalker(s, p.d.file.path, a.declarations, nil), s, p.d, p.sig)
		}
		if len(waiting) == len(pending) {
			for _, p := range waiting {
				w := a.newWalker(s, p.d.file.path, a.declarations, nil)
				w.report(p.d.node, diagnostics.ErrUnresolvedType, "cannot infer a type for %s: it depends on itself", p.d.node.Name)
				p.sig.Return = typesystem.TError{Reason: "recursive type of " + p.d.node.Name}
				p.d.symbol = a.declare(w, s, p.d, p.sig)
			}
			return nil
		}
		pending = waiting
	}
	return nil
}

// implicitType types the expression body or initializer of p.
func (w *walker) implicitType(ctx context.Context, p *implicit) (typesystem.Type, error) {
	n := p.d.node
	if n.Kind == ast.KindFunction {
		scope := w.bodyScope(p.chain, n, p.sig, p.d.qualified())
		w.fn = &function{name: n.Name}
		return w.expr(ctx, scope, n.Body(), nil)
	}
	chain := p.chain
	if p.sig.Receiver != nil {
		chain = chain.PushReceiver(p.sig.Receiver)
	}
	if outer := p.d.outer; outer != nil {
		chain = w.constructorScope(chain, outer.node, outer.symbol)
	}
	return w.expr(ctx, chain, n.Child(0), nil)
}

func (w *walker) waitsFor(names map[string]bool) bool {
	for name := range w.missing {
		if names[name] {
			return true
		}
	}
	return false
}

// declare adds d to the session's table, reporting clashes.
func (a *Analyzer) declare(w *walker, s *session.Session, d *declaration, sig symbols.Signature) *symbols.Symbol {
	n := d.node
	options := []symbols.DeclareOption{
		d.ownerOption(),
		symbols.InFile(d.file.path, n.Pos),
		symbols.WithVisibility(symbols.VisibilityOf(n.Modifiers)),
	}
	if n.HasModifier("var") {
		options = append(options, symbols.AsMutable())
	}
	if n.HasModifier("infix") {
		options = append(options, symbols.AsInfix())
	}
	id, err := s.Table().Declare(n.Name, d.kind, sig, options...)
	var dup *symbols.DuplicateDeclarationError
	switch {
	case errors.As(err, &dup):
		w.report(n, diagnostics.ErrDuplicateDeclaration, "%v", err)
		return nil
	case err != nil:
		w.report(n, diagnostics.ErrMalformedTree, "%v", err)
		return nil
	}
	sym, _ := s.Table().Get(id)
	return sym
}
