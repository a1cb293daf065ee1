package analyzer

import (
	"context"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/scopes"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
)

// expr types an expression. expected is the type the context wants, nil
// when it has no preference; it steers inference but mismatches are
// reported by the caller. The error is a cancellation.
func (w *walker) expr(ctx context.Context, chain *scopes.Chain, n *ast.Node, expected typesystem.Type) (typesystem.Type, error) {
	if n == nil {
		return typesystem.TError{Reason: "missing expression"}, nil
	}
	if err := diagnostics.CheckCancelled(ctx); err != nil {
		return nil, err
	}
	switch n.Kind {
	case ast.KindLiteral:
		return w.literal(n, expected), nil
	case ast.KindReference:
		found, err := chain.ResolveName(ctx, n.Name, n.Pos)
		if err != nil {
			return nil, err
		}
		return w.call(ctx, chain, n, found, nil, false, expected)
	case ast.KindCall:
		found, err := chain.ResolveName(ctx, n.Name, n.Pos)
		if err != nil {
			return nil, err
		}
		return w.call(ctx, chain, n, found, nil, false, expected)
	case ast.KindQualified:
		return w.qualified(ctx, chain, n, expected)
	case ast.KindThis:
		recv, _, ok := chain.ImplicitReceiver()
		if !ok {
			w.report(n, diagnostics.ErrUnresolvedReference, "'this' is not defined in this context")
			return w.typed(n, typesystem.TError{Reason: "no this"}), nil
		}
		return w.typed(n, recv), nil
	case ast.KindSuper:
		return w.malformed(n, "'super' is not an expression, it can only be used as a receiver"), nil
	case ast.KindLambda:
		return w.lambdaExpr(ctx, chain, n, expected)
	case ast.KindBlock:
		return w.block(ctx, chain, n, expected)
	case ast.KindIf:
		return w.ifExpr(ctx, chain, n, expected)
	case ast.KindEquality:
		return w.equality(ctx, chain, n)
	case ast.KindReturn:
		return w.returnExpr(ctx, chain, n)
	case ast.KindProperty, ast.KindFunction, ast.KindClass:
		return w.malformed(n, "%s declaration used as an expression", n.Kind), nil
	default:
		return w.malformed(n, "unexpected %s in an expression", n.Kind), nil
	}
}

func (w *walker) literal(n *ast.Node, expected typesystem.Type) typesystem.Type {
	var t typesystem.Type
	switch n.Literal {
	case ast.LitInt:
		t = typesystem.Int
		// an integer literal takes the integral type the context expects
		if c, ok := expected.(typesystem.TClass); ok && len(c.Args) == 0 {
			switch c.Name {
			case typesystem.LongName, typesystem.ShortName, typesystem.ByteName:
				t = typesystem.TClass{Name: c.Name}
			}
		}
	case ast.LitLong:
		t = typesystem.Long
	case ast.LitDouble:
		t = typesystem.Double
	case ast.LitFloat:
		t = typesystem.Float
	case ast.LitString:
		t = typesystem.String
	case ast.LitChar:
		t = typesystem.Char
	case ast.LitBoolean:
		t = typesystem.Boolean
	case ast.LitNull:
		t = typesystem.NullType
	default:
		return w.malformed(n, "literal without a kind")
	}
	return w.typed(n, t)
}

// block types the statements of a block in a new local scope. Its type is
// that of the last statement, Unit when that is a declaration.
func (w *walker) block(ctx context.Context, chain *scopes.Chain, n *ast.Node, expected typesystem.Type) (typesystem.Type, error) {
	scope := chain.PushLocal()
	var t typesystem.Type = typesystem.Unit
	for i, st := range n.Children {
		var want typesystem.Type
		if i == len(n.Children)-1 {
			want = expected
		}
		var err error
		switch st.Kind {
		case ast.KindProperty:
			err = w.local(ctx, scope, st)
			t = typesystem.Unit
		case ast.KindFunction:
			err = w.localFunction(ctx, scope, st)
			t = typesystem.Unit
		case ast.KindClass:
			w.malformed(st, "local classes are not supported")
			t = typesystem.Unit
		default:
			t, err = w.expr(ctx, scope, st, want)
		}
		if err != nil {
			return nil, err
		}
	}
	return w.typed(n, t), nil
}

// local declares a val or var of a block.
func (w *walker) local(ctx context.Context, chain *scopes.Chain, n *ast.Node) error {
	var declared typesystem.Type
	if n.Type != "" {
		var err error
		if declared, err = w.resolveType(ctx, chain, n, n.Type); err != nil {
			return err
		}
	}
	t := declared
	if init := n.Child(0); init != nil {
		it, err := w.expr(ctx, chain, init, declared)
		if err != nil {
			return err
		}
		w.expect(init, it, declared)
		if t == nil {
			t = it
		}
	} else if declared == nil {
		w.report(n, diagnostics.ErrUnresolvedType, "variable %s must have a type or an initializer", n.Name)
		t = typesystem.TError{Reason: "no type for " + n.Name}
	}
	sym := symbols.NewLocal(n.Name, symbols.LocalSymbol, t, w.owner(), n.Pos)
	sym.File = w.file
	sym.Mutable = n.HasModifier("var")
	chain.Declare(sym)
	w.declared(n, sym)
	w.typed(n, t)
	return nil
}

// localFunction declares a function inside a block. It is visible in its
// own body, unless its return type must be inferred from that body.
func (w *walker) localFunction(ctx context.Context, chain *scopes.Chain, n *ast.Node) error {
	owner := qualify(w.owner(), n.Name)
	sig, _, err := w.signature(ctx, chain, n, owner)
	if err != nil {
		return err
	}
	sym := symbols.NewLocal(n.Name, symbols.FunctionSymbol, nil, w.owner(), n.Pos)
	sym.File = w.file
	if sig.Return != nil {
		sym.Signature = sig
		chain.Declare(sym)
		w.declared(n, sym)
		w.typed(n, sig.Return)
		return w.functionBody(ctx, chain, n, sig, owner)
	}
	scope := w.bodyScope(chain, n, sig, owner)
	outer := w.fn
	w.fn = &function{name: owner}
	t, err := w.expr(ctx, scope, n.Body(), nil)
	w.fn = outer
	if err != nil {
		return err
	}
	sig.Return = t
	sym.Signature = sig
	chain.Declare(sym)
	w.declared(n, sym)
	w.typed(n, t)
	return nil
}

func (w *walker) owner() string {
	if w.fn != nil {
		return w.fn.name
	}
	return ""
}

func (w *walker) ifExpr(ctx context.Context, chain *scopes.Chain, n *ast.Node, expected typesystem.Type) (typesystem.Type, error) {
	if len(n.Children) < 2 {
		return w.malformed(n, "if without a branch"), nil
	}
	cond := n.Children[0]
	ct, err := w.expr(ctx, chain, cond, typesystem.Boolean)
	if err != nil {
		return nil, err
	}
	w.expect(cond, ct, typesystem.Boolean)
	// x != null narrows x in the then branch, x == null in the else branch
	var thenCast, elseCast *symbols.Symbol
	sym, nonNull, notEqual, ok := w.nullCheck(ctx, chain, cond)
	switch {
	case ok && notEqual:
		thenCast = sym
	case ok:
		elseCast = sym
	}
	els := n.Child(2)
	if els == nil {
		if _, err := w.withCast(thenCast, nonNull, func() (typesystem.Type, error) {
			return w.expr(ctx, chain, n.Children[1], nil)
		}); err != nil {
			return nil, err
		}
		return w.typed(n, typesystem.Unit), nil
	}
	tt, err := w.withCast(thenCast, nonNull, func() (typesystem.Type, error) {
		return w.expr(ctx, chain, n.Children[1], expected)
	})
	if err != nil {
		return nil, err
	}
	et, err := w.withCast(elseCast, nonNull, func() (typesystem.Type, error) {
		return w.expr(ctx, chain, els, expected)
	})
	if err != nil {
		return nil, err
	}
	return w.typed(n, w.checker.LeastUpperBound(tt, et)), nil
}

func (w *walker) returnExpr(ctx context.Context, chain *scopes.Chain, n *ast.Node) (typesystem.Type, error) {
	if w.fn == nil {
		return w.malformed(n, "'return' is not allowed here"), nil
	}
	var t typesystem.Type = typesystem.Unit
	at := n
	if value := n.Child(0); value != nil {
		var err error
		if t, err = w.expr(ctx, chain, value, w.fn.declared); err != nil {
			return nil, err
		}
		at = value
	}
	w.expect(at, t, w.fn.declared)
	w.fn.returns = append(w.fn.returns, t)
	return w.typed(n, typesystem.Nothing), nil
}

// lambdaExpr types a lambda that is not a call argument. Parameter types
// come from the declaration or from the expected function type.
func (w *walker) lambdaExpr(ctx context.Context, chain *scopes.Chain, n *ast.Node, expected typesystem.Type) (typesystem.Type, error) {
	declared, err := w.lambdaParams(ctx, chain, n)
	if err != nil {
		return nil, err
	}
	wantParams, wantReturn, isFunction := typesystem.FunctionParts(expected)
	nodes := n.ChildrenOf(ast.KindParameter)
	var params []typesystem.Type
	switch {
	case len(nodes) == 0 && isFunction:
		params = wantParams
		if len(params) > 1 {
			w.report(n, diagnostics.ErrTypeMismatch, "expected %d lambda parameters, got none", len(params))
		}
	default:
		params = make([]typesystem.Type, len(nodes))
		for i, p := range declared {
			switch {
			case p != nil:
				params[i] = p
			case isFunction && i < len(wantParams):
				params[i] = wantParams[i]
			default:
				w.report(nodes[i], diagnostics.ErrUnresolvedType, "cannot infer a type for parameter %s", nodes[i].Name)
				params[i] = typesystem.TError{Reason: "no type for " + nodes[i].Name}
			}
		}
	}
	ret, err := w.lambdaBody(ctx, chain, n, params, wantReturn)
	if err != nil {
		return nil, err
	}
	return w.typed(n, typesystem.FunctionType(ret, params...)), nil
}

// lambdaParams resolves the declared parameter types of a lambda, nil for
// parameters declared without one.
func (w *walker) lambdaParams(ctx context.Context, chain *scopes.Chain, n *ast.Node) ([]typesystem.Type, error) {
	nodes := n.ChildrenOf(ast.KindParameter)
	result := make([]typesystem.Type, len(nodes))
	for i, p := range nodes {
		if p.Type == "" {
			continue
		}
		t, err := w.resolveType(ctx, chain, p, p.Type)
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// lambdaBody types the body of a lambda whose parameters have the given
// types. Without declared parameters a single parameter is called it.
func (w *walker) lambdaBody(ctx context.Context, chain *scopes.Chain, n *ast.Node, params []typesystem.Type, expected typesystem.Type) (typesystem.Type, error) {
	scope := chain.PushLocal()
	nodes := n.ChildrenOf(ast.KindParameter)
	if len(nodes) == 0 && len(params) == 1 {
		it := symbols.NewLocal("it", symbols.ParameterSymbol, params[0], w.owner(), n.Pos)
		it.File = w.file
		scope.Declare(it)
	}
	for i, p := range nodes {
		var t typesystem.Type = typesystem.TError{Reason: "no type for " + p.Name}
		if i < len(params) {
			t = params[i]
		}
		sym := symbols.NewLocal(p.Name, symbols.ParameterSymbol, t, w.owner(), p.Pos)
		sym.File = w.file
		scope.Declare(sym)
		w.declared(p, sym)
		w.typed(p, t)
	}
	body := n.Child(len(n.Children) - 1)
	if body == nil || body.Kind != ast.KindBlock {
		return w.malformed(n, "lambda without a body"), nil
	}
	if expected != nil && (typesystem.IsUnit(expected) || typesystem.HasTypeVariables(expected)) {
		expected = nil
	}
	return w.block(ctx, scope, body, expected)
}
