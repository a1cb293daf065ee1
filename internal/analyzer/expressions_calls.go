package analyzer

import (
	"context"
	"errors"
	"strings"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/calls"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/scopes"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
)

// call resolves a reference or call node n among found. receiver is the
// type of an explicit receiver, nil when there is none.
func (w *walker) call(ctx context.Context, chain *scopes.Chain, n *ast.Node, found []scopes.Found, receiver typesystem.Type, safe bool, expected typesystem.Type) (typesystem.Type, error) {
	if n.Name == "" {
		return w.malformed(n, "%s without a name", n.Kind), nil
	}
	call := calls.Call{
		Name:     n.Name,
		Receiver: receiver,
		SafeCall: safe,
		Expected: expected,
		Property: n.Kind == ast.KindReference,
		Pos:      n.Pos,
	}
	args, values, err := w.arguments(ctx, chain, n)
	if err != nil {
		return nil, err
	}
	call.Args = args
	for _, text := range n.TypeArgs {
		t, err := w.resolveType(ctx, chain, n, text)
		if err != nil {
			return nil, err
		}
		call.TypeArgs = append(call.TypeArgs, t)
	}

	result, err := w.resolver.ResolveCallDetailed(ctx, found, call)
	if err != nil {
		return nil, err
	}
	if result.Winner == nil {
		w.callFailed(n, call, result.Err)
		if err := w.settleLambdas(ctx, chain, values, args, nil); err != nil {
			return nil, err
		}
		return w.typed(n, typesystem.TError{Reason: result.Err.Error()}), nil
	}
	winner := result.Winner
	w.resolved(n, winner)
	if err := w.settleLambdas(ctx, chain, values, args, winner); err != nil {
		return nil, err
	}
	if t, ok := w.casts[winner.Symbol]; ok && call.Property && receiver == nil {
		return w.typed(n, t), nil
	}
	return w.typed(n, winner.Return), nil
}

// arguments types the value arguments of a call node. Lambdas are not
// typed here; the resolver analyzes them once per candidate. values holds
// the argument expressions in the order of args.
func (w *walker) arguments(ctx context.Context, chain *scopes.Chain, n *ast.Node) ([]calls.Argument, []*ast.Node, error) {
	if n.Kind != ast.KindCall {
		return nil, nil, nil
	}
	var args []calls.Argument
	var values []*ast.Node
	for _, a := range n.Children {
		if a.Kind != ast.KindArgument {
			w.malformed(a, "unexpected %s among call arguments", a.Kind)
			continue
		}
		arg := calls.Argument{Name: a.Name, Trailing: a.HasModifier("trailing"), Pos: a.Pos}
		value := a.Child(0)
		switch {
		case value == nil:
			arg.Type = w.malformed(a, "argument without a value")
		case value.Kind == ast.KindLambda:
			declared, err := w.lambdaParams(ctx, chain, value)
			if err != nil {
				return nil, nil, err
			}
			l := &calls.Lambda{Params: declared}
			if len(declared) == 0 {
				l.Params, l.Implicit = nil, true
			}
			l.Analyze = func(ctx context.Context, params []typesystem.Type) (typesystem.Type, error) {
				return w.speculate().lambdaBody(ctx, chain, value, params, nil)
			}
			arg.Lambda = l
		default:
			t, err := w.expr(ctx, chain, value, nil)
			if err != nil {
				return nil, nil, err
			}
			arg.Type = t
		}
		args = append(args, arg)
		values = append(values, value)
	}
	return args, values, nil
}

// settleLambdas analyzes the lambda arguments for real: with the
// parameter types the winner fixed, or with the declared ones when the
// call did not resolve.
func (w *walker) settleLambdas(ctx context.Context, chain *scopes.Chain, values []*ast.Node, args []calls.Argument, winner *calls.Candidate) error {
	for i, arg := range args {
		if arg.Lambda == nil {
			continue
		}
		var params []typesystem.Type
		if winner != nil && winner.Lambdas[i] != nil && winner.Lambdas[i].FixedParams != nil {
			params = winner.Lambdas[i].FixedParams
		} else {
			params = unknownParams(arg.Lambda)
		}
		ret, err := w.lambdaBody(ctx, chain, values[i], params, nil)
		if err != nil {
			return err
		}
		w.typed(values[i], typesystem.FunctionType(ret, params...))
	}
	return nil
}

// unknownParams stands in for the parameters of a lambda whose call did
// not resolve. Undeclared ones get error types so that uses of them do not
// cascade.
func unknownParams(l *calls.Lambda) []typesystem.Type {
	if l.Implicit {
		return []typesystem.Type{typesystem.TError{Reason: "unknown lambda parameter"}}
	}
	params := make([]typesystem.Type, len(l.Params))
	for i, p := range l.Params {
		if p == nil {
			p = typesystem.TError{Reason: "unknown lambda parameter"}
		}
		params[i] = p
	}
	return params
}

// callFailed reports a call that has no winner.
func (w *walker) callFailed(n *ast.Node, call calls.Call, err error) {
	w.failed(n, err)
	var ambiguity *calls.AmbiguityError
	if errors.As(err, &ambiguity) {
		if !hasErrorArgument(call.Args) {
			w.report(n, diagnostics.ErrAmbiguity, "%v", err)
		}
		return
	}
	var unresolved *calls.UnresolvedError
	if !errors.As(err, &unresolved) {
		w.report(n, diagnostics.ErrUnresolvedReference, "%v", err)
		return
	}
	cs := unresolved.Candidates
	switch {
	case len(cs) == 0:
		w.missing[call.Name] = true
		w.report(n, diagnostics.ErrUnresolvedReference, "unresolved reference: %s", call.Name)
	case unresolved.Invisible():
		w.warn(n, diagnostics.ErrInvisibleReference, unresolved.Error())
	case len(cs) == 1 && cs[0].Status == calls.Mismatch:
		w.report(n, diagnostics.ErrTypeMismatch, "type mismatch in %s: %s", cs[0].Symbol, cs[0].Reason())
	case allContradictions(cs):
		w.report(n, diagnostics.ErrConstraintContradiction, "%v", err)
	default:
		w.report(n, diagnostics.ErrUnresolvedReference, "%v", err)
	}
}

func allContradictions(cs []*calls.Candidate) bool {
	for _, c := range cs {
		if c.Status != calls.Contradiction {
			return false
		}
	}
	return true
}

func hasErrorArgument(args []calls.Argument) bool {
	for _, a := range args {
		if a.Type != nil && typesystem.ContainsError(a.Type) {
			return true
		}
	}
	return false
}

// qualified types receiver.selector and receiver?.selector.
func (w *walker) qualified(ctx context.Context, chain *scopes.Chain, n *ast.Node, expected typesystem.Type) (typesystem.Type, error) {
	recv, sel := n.Child(0), n.Child(1)
	if recv == nil || sel == nil || (sel.Kind != ast.KindReference && sel.Kind != ast.KindCall) {
		return w.malformed(n, "qualified expression needs a receiver and a reference or call"), nil
	}
	safe := n.HasModifier("safe")

	if recv.Kind == ast.KindSuper {
		self, class, ok := chain.ImplicitReceiver()
		if !ok || class == nil {
			w.report(recv, diagnostics.ErrUnresolvedReference, "'super' is not allowed here")
			return w.absorb(ctx, chain, n, sel)
		}
		w.typed(recv, self)
		found, err := chain.ResolveSuper(ctx, class, sel.Name)
		if err != nil {
			return nil, err
		}
		t, err := w.call(ctx, chain, sel, found, nil, false, expected)
		if err != nil {
			return nil, err
		}
		return w.typed(n, t), nil
	}

	qualifier, class, ok, err := w.qualifier(ctx, chain, recv)
	if err != nil {
		return nil, err
	}
	if ok {
		w.declared(recv, class)
		found, err := chain.ResolveQualified(ctx, qualifier, sel.Name)
		if err != nil {
			return nil, err
		}
		t, err := w.call(ctx, chain, sel, found, nil, false, expected)
		if err != nil {
			return nil, err
		}
		return w.typed(n, t), nil
	}

	rt, err := w.expr(ctx, chain, recv, nil)
	if err != nil {
		return nil, err
	}
	if typesystem.IsError(rt) {
		// already reported where the receiver failed
		return w.absorb(ctx, chain, n, sel)
	}
	found, err := chain.ResolveMember(ctx, rt, sel.Name)
	if err != nil {
		return nil, err
	}
	t, err := w.call(ctx, chain, sel, found, rt, safe, expected)
	if err != nil {
		return nil, err
	}
	return w.typed(n, t), nil
}

// absorb analyzes the arguments of a selector whose receiver has no type,
// without resolving the selector itself.
func (w *walker) absorb(ctx context.Context, chain *scopes.Chain, n, sel *ast.Node) (typesystem.Type, error) {
	args, values, err := w.arguments(ctx, chain, sel)
	if err != nil {
		return nil, err
	}
	if err := w.settleLambdas(ctx, chain, values, args, nil); err != nil {
		return nil, err
	}
	t := typesystem.TError{Reason: "receiver has no type"}
	w.typed(sel, t)
	return w.typed(n, t), nil
}

// qualifier reports whether the receiver n names a package or a class
// rather than a value. A value in scope wins over a package or class of
// the same name. class is set for class qualifiers.
func (w *walker) qualifier(ctx context.Context, chain *scopes.Chain, n *ast.Node) (string, *symbols.Symbol, bool, error) {
	name, head, ok := dottedName(n)
	if !ok {
		return "", nil, false, nil
	}
	found, err := chain.ResolveName(ctx, head.Name, head.Pos)
	if err != nil {
		return "", nil, false, err
	}
	for _, f := range found {
		if f.Symbol.Kind.IsValue() {
			return "", nil, false, nil
		}
	}
	if chain.IsPackage(name) {
		return name, nil, true, nil
	}
	t, ok, err := w.classifier(ctx, chain, name)
	if err != nil || !ok {
		return "", nil, false, err
	}
	c, isClass := t.(typesystem.TClass)
	if !isClass {
		return "", nil, false, nil
	}
	sym, _ := chain.Index().Class(c.Name)
	return c.Name, sym, true, nil
}

// dottedName renders a chain of plain references a.b.c. head is the
// leftmost reference.
func dottedName(n *ast.Node) (string, *ast.Node, bool) {
	switch n.Kind {
	case ast.KindReference:
		return n.Name, n, n.Name != ""
	case ast.KindQualified:
		if n.HasModifier("safe") {
			return "", nil, false
		}
		sel := n.Child(1)
		if sel == nil || sel.Kind != ast.KindReference {
			return "", nil, false
		}
		prefix, head, ok := dottedName(n.Child(0))
		if !ok {
			return "", nil, false
		}
		return strings.Join([]string{prefix, sel.Name}, "."), head, true
	}
	return "", nil, false
}
