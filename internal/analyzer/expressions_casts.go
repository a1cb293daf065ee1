package analyzer

import (
	"context"
	"maps"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/scopes"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
)

// equality types left == right and left != right. Any two operands may be
// compared.
func (w *walker) equality(ctx context.Context, chain *scopes.Chain, n *ast.Node) (typesystem.Type, error) {
	if len(n.Children) != 2 || (n.Value != "==" && n.Value != "!=") {
		return w.malformed(n, "equality needs two operands and == or !="), nil
	}
	for _, operand := range n.Children {
		if _, err := w.expr(ctx, chain, operand, nil); err != nil {
			return nil, err
		}
	}
	return w.typed(n, typesystem.Boolean), nil
}

// nullCheck recognizes x == null and x != null, in either operand order,
// where x is a val or parameter of the enclosing code. It returns the
// symbol of x and its type without null, and whether the check is !=.
func (w *walker) nullCheck(ctx context.Context, chain *scopes.Chain, cond *ast.Node) (*symbols.Symbol, typesystem.Type, bool, bool) {
	if cond.Kind != ast.KindEquality || len(cond.Children) != 2 {
		return nil, nil, false, false
	}
	ref, other := cond.Children[0], cond.Children[1]
	if ref.Kind != ast.KindReference {
		ref, other = other, ref
	}
	if ref.Kind != ast.KindReference || other.Kind != ast.KindLiteral || other.Literal != ast.LitNull {
		return nil, nil, false, false
	}
	found, err := chain.ResolveName(ctx, ref.Name, ref.Pos)
	if err != nil || len(found) == 0 {
		return nil, nil, false, false
	}
	nearest := found[0]
	for _, f := range found[1:] {
		if f.Depth < nearest.Depth {
			nearest = f
		}
	}
	sym := nearest.Symbol
	if !stable(sym) || nearest.Invisible {
		return nil, nil, false, false
	}
	t := w.castOf(sym)
	if t == nil || !w.checker.MayBeNull(t) {
		return nil, nil, false, false
	}
	return sym, t.WithNullability(false), cond.Value == "!=", true
}

// stable reports whether a symbol's value cannot change between a check
// and a later use: a local val or a parameter.
func stable(sym *symbols.Symbol) bool {
	if sym == nil || sym.Mutable {
		return false
	}
	return sym.Kind == symbols.LocalSymbol || sym.Kind == symbols.ParameterSymbol
}

// castOf is the type of sym under the smart casts in effect.
func (w *walker) castOf(sym *symbols.Symbol) typesystem.Type {
	if t, ok := w.casts[sym]; ok {
		return t
	}
	return sym.Signature.Return
}

// withCast runs f with sym narrowed to t. The map is replaced rather than
// edited, so speculating copies of the walker keep a consistent view.
func (w *walker) withCast(sym *symbols.Symbol, t typesystem.Type, f func() (typesystem.Type, error)) (typesystem.Type, error) {
	if sym == nil {
		return f()
	}
	outer := w.casts
	next := maps.Clone(outer)
	if next == nil {
		next = make(map[*symbols.Symbol]typesystem.Type, 1)
	}
	next[sym] = t
	w.casts = next
	defer func() { w.casts = outer }()
	return f()
}
