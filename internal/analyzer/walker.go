package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/calls"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/scopes"
	"github.com/funvibe/fir/internal/session"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/rs/zerolog"
)

// walker analyzes the declarations and expressions of one file. A walker
// without a reporter is speculating: it types code, for instance a lambda
// body on behalf of one overload candidate, without reporting or
// annotating anything.
type walker struct {
	a        *Analyzer
	file     string
	module   string
	checker  *typesystem.Checker
	resolver *calls.Resolver
	reporter *diagnostics.Reporter
	tree     *AnnotatedTree
	fn       *function
	// missing collects names that did not resolve at all, so the header
	// pass can tell a declaration waiting for another one from a broken
	// one.
	missing map[string]bool
	// casts holds the smart-cast types of stable values inside the branch
	// being analyzed.
	casts  map[*symbols.Symbol]typesystem.Type
	logger zerolog.Logger
}

// function is the innermost function whose return statements are checked.
type function struct {
	name     string
	declared typesystem.Type // nil while the return type is inferred
	returns  []typesystem.Type
}

func (a *Analyzer) newWalker(s *session.Session, file string, reporter *diagnostics.Reporter, tree *AnnotatedTree) *walker {
	checker := s.Checker()
	return &walker{
		a:        a,
		file:     file,
		module:   s.ID(),
		checker:  checker,
		resolver: calls.NewResolver(checker, calls.WithMaxIterations(a.maxIterations), calls.WithLogger(a.logger)),
		reporter: reporter,
		tree:     tree,
		missing:  make(map[string]bool),
		logger:   a.logger,
	}
}

func (w *walker) speculate() *walker {
	trial := *w
	trial.reporter, trial.tree = nil, nil
	if w.fn != nil {
		fn := *w.fn
		trial.fn = &fn
	}
	return &trial
}

func (w *walker) speculating() bool { return w.reporter == nil }

func (w *walker) report(n *ast.Node, code diagnostics.ErrorCode, format string, args ...interface{}) {
	if w.reporter == nil {
		return
	}
	d := w.reporter.Reportf(code, location(w.file, n), format, args...)
	if w.tree != nil {
		w.tree.Diagnostics = append(w.tree.Diagnostics, d)
	}
}

func (w *walker) warn(n *ast.Node, code diagnostics.ErrorCode, message string) {
	if w.reporter == nil {
		return
	}
	d := w.reporter.Report(code, location(w.file, n), diagnostics.SeverityWarning, message)
	if w.tree != nil {
		w.tree.Diagnostics = append(w.tree.Diagnostics, d)
	}
}

func (w *walker) typed(n *ast.Node, t typesystem.Type) typesystem.Type {
	if w.tree != nil {
		w.tree.TypeMap[n] = t
	}
	return t
}

func (w *walker) resolved(n *ast.Node, c *calls.Candidate) {
	if w.tree != nil {
		w.tree.ResolutionMap[n] = c
	}
}

func (w *walker) failed(n *ast.Node, err error) {
	if w.tree != nil {
		w.tree.ErrorMap[n] = err
	}
}

func (w *walker) declared(n *ast.Node, sym *symbols.Symbol) {
	if w.tree != nil && sym != nil {
		w.tree.DeclarationMap[n] = sym
	}
}

// expect reports a type mismatch unless actual conforms to want. Error
// types conform to everything.
func (w *walker) expect(n *ast.Node, actual, want typesystem.Type) bool {
	if want == nil || actual == nil || w.checker.IsSubtypeOf(actual, want) {
		return true
	}
	w.report(n, diagnostics.ErrTypeMismatch, "type mismatch: inferred type is %s but %s was expected", actual, want)
	return false
}

// fileChain is the scope of a file's top level.
func (a *Analyzer) fileChain(index symbols.Index, module string, fc *fileContext) *scopes.Chain {
	view := scopes.Viewpoint{Module: module, File: fc.path, Package: fc.pkg}
	return scopes.ForFile(index, view, fc.imports, a.defaults, scopes.WithLogger(a.logger))
}

// classScope enters the body of class: its members through the implicit
// receiver, then its type parameters.
func classScope(chain *scopes.Chain, class *symbols.Symbol) *scopes.Chain {
	inner := chain.PushClass(class, class.ClassInfo().Type())
	return withTypeParams(inner, class.Signature.TypeParams, class.Qualified)
}

func withTypeParams(chain *scopes.Chain, params []typesystem.TypeParam, owner string) *scopes.Chain {
	if len(params) == 0 {
		return chain
	}
	inner := chain.PushLocal()
	for _, p := range params {
		inner.Declare(symbols.NewLocal(p.Name, symbols.TypeParameterSymbol, p.Ref(), owner, ast.Position{}))
	}
	return inner
}

// bodyScope opens the scope of a function body: the extension receiver,
// the type parameters and the value parameters.
func (w *walker) bodyScope(chain *scopes.Chain, n *ast.Node, sig symbols.Signature, owner string) *scopes.Chain {
	if sig.Receiver != nil {
		chain = chain.PushReceiver(sig.Receiver)
	}
	chain = withTypeParams(chain, sig.TypeParams, owner)
	scope := chain.PushLocal()
	nodes := n.ChildrenOf(ast.KindParameter)
	for i, p := range sig.Params {
		var pos ast.Position
		var node *ast.Node
		if i < len(nodes) {
			node = nodes[i]
			pos = node.Pos
		}
		sym := symbols.NewLocal(p.Name, symbols.ParameterSymbol, parameterType(p), owner, pos)
		sym.File = w.file
		scope.Declare(sym)
		if node != nil {
			w.declared(node, sym)
			w.typed(node, sym.Signature.Return)
		}
	}
	return scope
}

// constructorScope makes the primary constructor parameters of class
// visible, as they are in property initializers.
func (w *walker) constructorScope(chain *scopes.Chain, node *ast.Node, class *symbols.Symbol) *scopes.Chain {
	return w.bodyScope(chain, node, symbols.Signature{Params: class.Signature.Params}, class.Qualified)
}

// parameterType is the type of a parameter inside the body; a vararg of
// T is an Array<out T>.
func parameterType(p symbols.Param) typesystem.Type {
	if !p.Vararg {
		return p.Type
	}
	return typesystem.TClass{Name: typesystem.ArrayName, Args: []typesystem.TypeArg{typesystem.OutArg(p.Type)}}
}

// resolveType parses type notation written at n against the classifiers
// visible from chain. Unresolved names are reported and become error
// types; the error is a cancellation.
func (w *walker) resolveType(ctx context.Context, chain *scopes.Chain, n *ast.Node, text string) (typesystem.Type, error) {
	var cancelled error
	resolve := func(name string) (typesystem.Type, bool) {
		t, ok, err := w.classifier(ctx, chain, name)
		if err != nil {
			cancelled = err
		}
		return t, ok
	}
	t, err := typesystem.ParseType(text, resolve)
	if cancelled != nil {
		return nil, cancelled
	}
	var unresolved *typesystem.UnresolvedTypeError
	switch {
	case err == nil:
		return t, nil
	case errors.As(err, &unresolved):
		w.report(n, diagnostics.ErrUnresolvedType, "unresolved type %s", strings.Join(unresolved.Names, ", "))
		if t == nil {
			t = typesystem.TError{Reason: err.Error()}
		}
		return t, nil
	default:
		w.report(n, diagnostics.ErrMalformedTree, "%v", err)
		return typesystem.TError{Reason: err.Error()}, nil
	}
}

// classifier resolves one name of type notation: a type parameter or a
// class, possibly written as Outer.Inner or fully qualified.
func (w *walker) classifier(ctx context.Context, chain *scopes.Chain, name string) (typesystem.Type, bool, error) {
	if head, rest, dotted := strings.Cut(name, "."); dotted {
		if sym, ok := chain.Index().Class(name); ok {
			return typesystem.TClass{Name: sym.Qualified}, true, nil
		}
		outer, ok, err := w.classifier(ctx, chain, head)
		if err != nil || !ok {
			return nil, false, err
		}
		if c, isClass := outer.(typesystem.TClass); isClass {
			if sym, ok := chain.Index().Class(c.Name + "." + rest); ok {
				return typesystem.TClass{Name: sym.Qualified}, true, nil
			}
		}
		return nil, false, nil
	}
	syms, err := chain.ResolveClassifier(ctx, name)
	if err != nil {
		return nil, false, err
	}
	for _, s := range syms {
		if s.Kind == symbols.TypeParameterSymbol {
			return s.Signature.Return, true, nil
		}
		return typesystem.TClass{Name: s.Qualified}, true, nil
	}
	return nil, false, nil
}

// typeParameters resolves a type parameter list. Bounds may refer to any
// parameter of the list. The returned chain has the parameters in scope.
func (w *walker) typeParameters(ctx context.Context, chain *scopes.Chain, nodes []*ast.Node, owner string) ([]typesystem.TypeParam, *scopes.Chain, error) {
	if len(nodes) == 0 {
		return nil, chain, nil
	}
	params := make([]typesystem.TypeParam, len(nodes))
	draft := chain.PushLocal()
	for i, n := range nodes {
		params[i] = typesystem.TypeParam{Name: n.Name, Variance: varianceOf(n)}
		draft.Declare(symbols.NewLocal(n.Name, symbols.TypeParameterSymbol, params[i].Ref(), owner, n.Pos))
	}
	for i, n := range nodes {
		if n.Type == "" {
			continue
		}
		b, err := w.resolveType(ctx, draft, n, n.Type)
		if err != nil {
			return nil, nil, err
		}
		params[i].Bounds = []typesystem.Type{b}
	}
	return params, withTypeParams(chain, params, owner), nil
}

func varianceOf(n *ast.Node) typesystem.Variance {
	switch {
	case n.HasModifier("out"):
		return typesystem.Covariant
	case n.HasModifier("in"):
		return typesystem.Contravariant
	}
	return typesystem.Invariant
}

func (w *walker) parameters(ctx context.Context, chain *scopes.Chain, nodes []*ast.Node) ([]symbols.Param, error) {
	params := make([]symbols.Param, 0, len(nodes))
	for _, n := range nodes {
		p := symbols.Param{Name: n.Name, HasDefault: len(n.Children) > 0, Vararg: n.HasModifier("vararg")}
		if n.Type == "" {
			w.report(n, diagnostics.ErrUnresolvedType, "parameter %s has no type", n.Name)
			p.Type = typesystem.TError{Reason: "no type for " + n.Name}
		} else {
			t, err := w.resolveType(ctx, chain, n, n.Type)
			if err != nil {
				return nil, err
			}
			p.Type = t
		}
		params = append(params, p)
	}
	return params, nil
}

// signature resolves the header of a function or property. The return
// type stays nil when it must be inferred from an expression body or an
// initializer. The returned chain has the type parameters in scope.
func (w *walker) signature(ctx context.Context, chain *scopes.Chain, n *ast.Node, owner string) (symbols.Signature, *scopes.Chain, error) {
	var sig symbols.Signature
	tps, inner, err := w.typeParameters(ctx, chain, n.ChildrenOf(ast.KindTypeParameter), owner)
	if err != nil {
		return sig, nil, err
	}
	sig.TypeParams = tps
	if n.Receiver != "" {
		if sig.Receiver, err = w.resolveType(ctx, inner, n, n.Receiver); err != nil {
			return sig, nil, err
		}
	}
	if n.Kind == ast.KindFunction {
		if sig.Params, err = w.parameters(ctx, inner, n.ChildrenOf(ast.KindParameter)); err != nil {
			return sig, nil, err
		}
	}
	switch {
	case n.Type != "":
		if sig.Return, err = w.resolveType(ctx, inner, n, n.Type); err != nil {
			return sig, nil, err
		}
	case n.Kind == ast.KindFunction && !hasExpressionBody(n):
		sig.Return = typesystem.Unit
	}
	return sig, inner, nil
}

func hasExpressionBody(n *ast.Node) bool {
	body := n.Body()
	return body != nil && body.Kind != ast.KindBlock
}

// malformed reports a node whose shape does not match its kind.
func (w *walker) malformed(n *ast.Node, format string, args ...interface{}) typesystem.Type {
	msg := fmt.Sprintf(format, args...)
	w.report(n, diagnostics.ErrMalformedTree, "%s", msg)
	return w.typed(n, typesystem.TError{Reason: msg})
}
