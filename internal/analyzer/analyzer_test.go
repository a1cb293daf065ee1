package analyzer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/session"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// project sets up one module "main" holding files.
func project(t *testing.T, files ...*ast.Node) *Analyzer {
	t.Helper()
	a := New()
	s, err := a.Graph().AddModule("main")
	require.NoError(t, err)
	for _, f := range files {
		s.AddSource(f.Name, f)
	}
	return a
}

func resolve(t *testing.T, a *Analyzer, tree *ast.Node) *AnnotatedTree {
	t.Helper()
	at, err := a.ResolveFile(context.Background(), tree)
	require.NoError(t, err)
	return at
}

func codes(diags []*diagnostics.Diagnostic) []diagnostics.ErrorCode {
	var result []diagnostics.ErrorCode
	for _, d := range diags {
		result = append(result, d.Code)
	}
	return result
}

func typeOf(t *testing.T, at *AnnotatedTree, n *ast.Node) string {
	t.Helper()
	typ, ok := at.TypeOf(n)
	require.True(t, ok, "no type for %s", n)
	return typ.String()
}

func TestOverloadByArgumentType(t *testing.T) {
	callInt, callString, callNull := ast.Call("f", ast.Int(1)), ast.Call("f", ast.Str("s")), ast.Call("f", ast.Null())
	file := ast.File("a.kt", "app",
		ast.Fun("f", "String", ast.Param("x", "Int"), ast.Str("int")),
		ast.Fun("f", "Int", ast.Param("x", "String"), ast.Int(1)),
		ast.Val("a", "", callInt),
		ast.Val("b", "", callString),
		ast.Val("c", "", callNull),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Equal(t, "String", typeOf(t, at, callInt))
	assert.Equal(t, "Int", typeOf(t, at, callString))
	c, ok := at.Resolution(callInt)
	require.True(t, ok)
	assert.Equal(t, "function app.f(Int)", c.Symbol.String())

	assert.Equal(t, "String", typeOf(t, at, file.Children[2]), "the property takes the type of its initializer")

	_, ok = at.Resolution(callNull)
	assert.False(t, ok)
	assert.Error(t, at.Err(callNull))
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrUnresolvedReference}, codes(at.Diagnostics))
}

func TestListOfInfersCommonSupertype(t *testing.T) {
	call := ast.Call("listOf", ast.Int(1), ast.Str("a"))
	file := ast.File("a.kt", "app", ast.Val("xs", "", call))
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Empty(t, at.Diagnostics)
	assert.Equal(t, "List<Comparable<*> & Serializable>", typeOf(t, at, call))
	c, _ := at.Resolution(call)
	assert.Equal(t, "Comparable<*> & Serializable", c.Subst["T"].String())
}

func TestErrorArgumentsDoNotCascade(t *testing.T) {
	list, overloaded := ast.Call("listOf", ast.Ref("missing")), ast.Call("f", ast.Ref("missing"))
	file := ast.File("a.kt", "app",
		ast.Fun("f", "Int", ast.Param("x", "Int"), ast.Int(1)),
		ast.Fun("f", "String", ast.Param("x", "String"), ast.Str("s")),
		ast.Val("xs", "", list),
		ast.Val("y", "", overloaded),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrUnresolvedReference, diagnostics.ErrUnresolvedReference}, codes(at.Diagnostics))
	typ, ok := at.TypeOf(list)
	require.True(t, ok)
	assert.True(t, typesystem.ContainsError(typ), "listOf(<error>) is %s", typ)
	typ, ok = at.TypeOf(overloaded)
	require.True(t, ok)
	assert.True(t, typesystem.IsError(typ))
}

func TestAmbiguousImports(t *testing.T) {
	call := ast.Call("g", ast.Int(1))
	a1 := ast.File("a.kt", "a", ast.Fun("g", "Unit", ast.Param("x", "Int"), ast.Block()))
	b1 := ast.File("b.kt", "b", ast.Fun("g", "Unit", ast.Param("x", "Int"), ast.Block()))
	main := ast.File("main.kt", "app", ast.Import("a.*"), ast.Import("b.*"),
		ast.Fun("main", "", ast.Block(call)))
	a := project(t, a1, b1, main)
	at := resolve(t, a, main)

	require.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrAmbiguity}, codes(at.Diagnostics))
	assert.Contains(t, at.Diagnostics[0].Message, "a.g(Int)")
	assert.Contains(t, at.Diagnostics[0].Message, "b.g(Int)")
}

func TestExplicitImportBeatsStarImport(t *testing.T) {
	call := ast.Call("g", ast.Int(1))
	a1 := ast.File("a.kt", "a", ast.Fun("g", "Unit", ast.Param("x", "Int"), ast.Block()))
	b1 := ast.File("b.kt", "b", ast.Fun("g", "Unit", ast.Param("x", "Int"), ast.Block()))
	main := ast.File("main.kt", "app", ast.Import("a.*"), ast.Import("b.g"),
		ast.Fun("main", "", ast.Block(call)))
	a := project(t, a1, b1, main)
	at := resolve(t, a, main)

	assert.Empty(t, at.Diagnostics)
	c, ok := at.Resolution(call)
	require.True(t, ok)
	assert.Equal(t, "b.g", c.Symbol.Qualified)
}

func TestLocalShadowsTopLevel(t *testing.T) {
	use := ast.Ref("x")
	local := ast.Val("x", "Int", ast.Int(1))
	file := ast.File("a.kt", "app",
		ast.Val("x", "String", ast.Str("s")),
		ast.Fun("g", "Int", ast.Block(local, ast.Return(use))),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Empty(t, at.Diagnostics)
	c, ok := at.Resolution(use)
	require.True(t, ok)
	assert.Equal(t, symbols.LocalSymbol, c.Symbol.Kind)
	sym, ok := at.Declaration(local)
	require.True(t, ok)
	assert.Same(t, sym, c.Symbol)
	assert.Equal(t, "Int", typeOf(t, at, use))
}

func TestLambdaTwoPhaseInference(t *testing.T) {
	// listOf(1).map { it.toString() }
	it := ast.Ref("it")
	lambda := ast.Lambda(ast.Member(it, ast.Call("toString")))
	mapCall := ast.Call("map", ast.Trailing(lambda))
	expr := ast.Member(ast.Call("listOf", ast.Int(1)), mapCall)
	file := ast.File("a.kt", "app", ast.Val("names", "", expr))
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Empty(t, at.Diagnostics)
	assert.Equal(t, "List<String>", typeOf(t, at, expr))
	assert.Equal(t, "Int", typeOf(t, at, it))
	assert.Equal(t, "(Int) -> String", typeOf(t, at, lambda))
	c, ok := at.Resolution(mapCall)
	require.True(t, ok)
	assert.Equal(t, "kotlin.map", c.Symbol.Qualified)
}

func TestLambdaWithDeclaredParameter(t *testing.T) {
	lambda := ast.Lambda(ast.Member(ast.Ref("n"), ast.Call("plus", ast.Int(1))), ast.Param("n", ""))
	expr := ast.Member(ast.Call("listOf", ast.Int(1)), ast.Call("map", ast.Trailing(lambda)))
	file := ast.File("a.kt", "app", ast.Val("next", "List<Int>", expr))
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Empty(t, at.Diagnostics)
	assert.Equal(t, "(Int) -> Int", typeOf(t, at, lambda))
}

func TestSafeCall(t *testing.T) {
	safe := ast.SafeMember(ast.Ref("s"), ast.Ref("length"))
	unsafe := ast.Member(ast.Ref("s"), ast.Ref("length"))
	file := ast.File("a.kt", "app",
		ast.Fun("h", "Int?", ast.Param("s", "String?"), safe),
		ast.Fun("k", "", ast.Param("s", "String?"), unsafe),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Equal(t, "Int?", typeOf(t, at, safe))
	require.Error(t, at.Err(unsafe.Children[1]))
	assert.Contains(t, at.Err(unsafe.Children[1]).Error(), "only safe (?.) calls are allowed")
	assert.True(t, at.HasErrors())
}

func TestSmartCastAfterNullCheck(t *testing.T) {
	inThen := ast.Member(ast.Ref("s"), ast.Ref("length"))
	inElse := ast.Member(ast.Ref("s"), ast.Ref("length"))
	afterElse := ast.Ref("s")
	mutable := ast.Member(ast.Ref("v"), ast.Ref("length"))
	file := ast.File("a.kt", "app",
		ast.Fun("f", "Int", ast.Param("s", "String?"), ast.If(ast.NotEq(ast.Ref("s"), ast.Null()), inThen, ast.Int(0))),
		ast.Fun("g", "Int", ast.Param("s", "String?"), ast.If(ast.Eq(ast.Null(), ast.Ref("s")), ast.Int(0), inElse)),
		ast.Fun("h", "String?", ast.Param("s", "String?"), ast.Block(
			ast.If(ast.NotEq(ast.Ref("s"), ast.Null()), ast.Block(), nil),
			ast.Return(afterElse),
		)),
		ast.Fun("k", "Unit", ast.Param("s", "String?"), ast.Block(
			ast.Var("v", "String?", ast.Ref("s")),
			ast.If(ast.NotEq(ast.Ref("v"), ast.Null()), mutable, nil),
		)),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Equal(t, "Int", typeOf(t, at, inThen))
	assert.Equal(t, "String", typeOf(t, at, inThen.Children[0]))
	assert.Equal(t, "Int", typeOf(t, at, inElse))
	assert.Equal(t, "String?", typeOf(t, at, afterElse), "the cast ends with the branch")
	require.Error(t, at.Err(mutable.Children[1]), "a var is not smart cast")
	assert.Contains(t, at.Err(mutable.Children[1]).Error(), "only safe (?.) calls are allowed")
	assert.Len(t, at.Diagnostics, 1)
}

func TestSuperCall(t *testing.T) {
	sel := ast.Call("greet")
	file := ast.File("a.kt", "app",
		ast.Class("Base", ast.Fun("greet", "String", ast.Str("base")).With("open")).With("open"),
		ast.Class("Derived", ast.Supertype("Base"),
			ast.Fun("greet", "String", ast.Member(ast.Super(), sel)).With("override")),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Empty(t, at.Diagnostics)
	c, ok := at.Resolution(sel)
	require.True(t, ok)
	assert.Equal(t, "app.Base.greet", c.Symbol.Qualified)
}

func TestSuperOutsideClass(t *testing.T) {
	file := ast.File("a.kt", "app", ast.Fun("f", "", ast.Block(ast.Member(ast.Super(), ast.Call("greet")))))
	a := project(t, file)
	at := resolve(t, a, file)
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrUnresolvedReference}, codes(at.Diagnostics))
}

func TestMembersThroughImplicitReceiver(t *testing.T) {
	use := ast.Ref("count")
	file := ast.File("a.kt", "app",
		ast.Class("Counter",
			ast.Param("start", "Int").With("val"),
			ast.Val("count", "", ast.Ref("start")),
			ast.Fun("next", "Int", ast.Member(use, ast.Call("plus", ast.Int(1)))),
		),
		ast.Val("c", "", ast.Call("Counter", ast.Int(1))),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Empty(t, at.Diagnostics)
	c, ok := at.Resolution(use)
	require.True(t, ok)
	assert.Equal(t, "app.Counter.count", c.Symbol.Qualified)
	assert.Equal(t, "Counter", typeOf(t, at, file.Children[1]))
}

func TestPackageQualifiedCall(t *testing.T) {
	sel := ast.Call("shout", ast.Str("a"))
	expr := ast.Member(ast.Ref("util"), sel)
	util := ast.File("util.kt", "util", ast.Fun("shout", "String", ast.Param("s", "String"), ast.Ref("s")))
	main := ast.File("main.kt", "app", ast.Val("r", "", expr))
	a := project(t, util, main)
	at := resolve(t, a, main)

	assert.Empty(t, at.Diagnostics)
	c, ok := at.Resolution(sel)
	require.True(t, ok)
	assert.Equal(t, "util.shout", c.Symbol.Qualified)
	assert.Equal(t, "String", typeOf(t, at, expr))
}

func TestDuplicateDeclaration(t *testing.T) {
	file := ast.File("a.kt", "app",
		ast.Val("v", "Int", ast.Int(1)),
		ast.Val("v", "Int", ast.Int(2)),
		ast.Fun("f", "Unit", ast.Param("x", "Int"), ast.Block()),
		ast.Fun("f", "Unit", ast.Param("x", "String"), ast.Block()),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrDuplicateDeclaration}, codes(at.Diagnostics))
	assert.Equal(t, codes(at.Diagnostics), codes(a.Diagnostics("a.kt")))
	s, _ := a.Graph().Session("main")
	assert.Len(t, s.Table().Qualified("app.f"), 2, "overloads with distinct signatures are kept")
}

func TestImplicitTypesAcrossDeclarations(t *testing.T) {
	file := ast.File("a.kt", "app",
		ast.Val("a", "", ast.Ref("b")),
		ast.Val("b", "", ast.Call("two")),
		ast.Fun("two", "", ast.Int(2)),
	)
	other := ast.File("b.kt", "app", ast.Val("c", "", ast.Ref("a")))
	a := project(t, file, other)
	at := resolve(t, a, file)

	assert.Empty(t, at.Diagnostics)
	assert.Equal(t, "Int", typeOf(t, at, file.Children[0]))
	at = resolve(t, a, other)
	assert.Equal(t, "Int", typeOf(t, at, other.Children[0]))
}

func TestRecursiveImplicitType(t *testing.T) {
	file := ast.File("a.kt", "app",
		ast.Fun("loop", "", ast.Call("loop")),
		ast.Fun("fine", "", ast.Int(1)),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	require.Contains(t, codes(at.Diagnostics), diagnostics.ErrUnresolvedType)
	for _, d := range at.Diagnostics {
		if d.Code == diagnostics.ErrUnresolvedType {
			assert.Contains(t, d.Message, "cannot infer a type for loop")
		}
	}
	assert.Equal(t, "Int", typeOf(t, at, file.Children[1]))
}

func TestTypeMismatchOnInitializer(t *testing.T) {
	file := ast.File("a.kt", "app",
		ast.Val("s", "String", ast.Int(1)),
		ast.Val("l", "Long", ast.Int(1)),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	require.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrTypeMismatch}, codes(at.Diagnostics))
	assert.Contains(t, at.Diagnostics[0].Message, "inferred type is Int but String was expected")
}

func TestUnresolvedType(t *testing.T) {
	file := ast.File("a.kt", "app", ast.Fun("f", "Missing", ast.Param("x", "Int"), ast.Block()))
	a := project(t, file)
	at := resolve(t, a, file)
	assert.Contains(t, codes(at.Diagnostics), diagnostics.ErrUnresolvedType)
}

func TestInvisibleReference(t *testing.T) {
	call := ast.Call("secret")
	hidden := ast.File("a.kt", "app", ast.Fun("secret", "Unit", ast.Block()).With("private"))
	user := ast.File("b.kt", "app", ast.Fun("use", "Unit", ast.Block(call)))
	a := project(t, hidden, user)
	at := resolve(t, a, user)

	require.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrInvisibleReference}, codes(at.Diagnostics))
	assert.Equal(t, diagnostics.SeverityWarning, at.Diagnostics[0].Severity)
	assert.False(t, at.HasErrors())
	assert.Error(t, at.Err(call))
}

func TestIfAndReturn(t *testing.T) {
	cond := ast.If(ast.Bool(true), ast.Int(1), ast.Str("a"))
	file := ast.File("a.kt", "app",
		ast.Val("v", "", cond),
		ast.Fun("f", "Int", ast.Block(ast.Return(ast.Str("no")))),
		ast.Val("w", "", ast.If(ast.Int(1), ast.Int(1), ast.Int(2))),
	)
	a := project(t, file)
	at := resolve(t, a, file)

	assert.Equal(t, "Comparable<*> & Serializable", typeOf(t, at, cond))
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrTypeMismatch, diagnostics.ErrTypeMismatch}, codes(at.Diagnostics))
}

func TestMalformedTree(t *testing.T) {
	file := ast.File("a.kt", "app", ast.Fun("f", "", ast.Block(ast.Class("Local"))))
	a := project(t, file)
	at := resolve(t, a, file)
	assert.Equal(t, []diagnostics.ErrorCode{diagnostics.ErrMalformedTree}, codes(at.Diagnostics))
}

func TestResolveFilesConcurrently(t *testing.T) {
	const n = 24
	var trees []*ast.Node
	for i := range n {
		trees = append(trees, ast.File(fmt.Sprintf("f%02d.kt", i), "app",
			ast.Fun(fmt.Sprintf("f%d", i), "", ast.Int(i)),
			ast.Val(fmt.Sprintf("v%d", i), "", ast.Call("listOf", ast.Call(fmt.Sprintf("f%d", (i+1)%n)))),
		))
	}
	a := New(WithWorkers(4))
	s, err := a.Graph().AddModule("main")
	require.NoError(t, err)
	for _, tree := range trees {
		s.AddSource(tree.Name, tree)
	}

	results, err := a.ResolveFiles(context.Background(), trees)
	require.NoError(t, err)
	require.Len(t, results, n)
	for i, at := range results {
		require.NotNil(t, at)
		assert.Equal(t, trees[i], at.Root)
		assert.Empty(t, at.Diagnostics)
		assert.Equal(t, "List<Int>", typeOf(t, at, trees[i].Children[1]))
	}

	var wg sync.WaitGroup
	for _, tree := range trees {
		wg.Add(1)
		go func() {
			defer wg.Done()
			at, err := a.ResolveFile(context.Background(), tree)
			assert.NoError(t, err)
			assert.NotNil(t, at)
		}()
	}
	wg.Wait()
}

func TestResultsAreCached(t *testing.T) {
	file := ast.File("a.kt", "app", ast.Val("x", "", ast.Int(1)))
	a := project(t, file)
	first := resolve(t, a, file)
	second := resolve(t, a, file)
	assert.Same(t, first, second)

	s, _ := a.Graph().Session("main")
	assert.Positive(t, s.Cache().Stats().Hits)
}

func TestStalenessAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	a := New()
	lib, err := a.Graph().AddModule("lib")
	require.NoError(t, err)
	libFile := ast.File("lib.kt", "lib", ast.Fun("v", "Int", ast.Int(1)))
	lib.AddSource("lib.kt", libFile)
	app, err := a.Graph().AddModule("app", "lib")
	require.NoError(t, err)
	call := ast.Call("v")
	main := ast.File("main.kt", "app", ast.Import("lib.v"), ast.Val("x", "", call))
	app.AddSource("main.kt", main)

	at := resolve(t, a, main)
	before, ok := at.Resolution(call)
	require.True(t, ok)
	assert.Equal(t, "Int", typeOf(t, at, main.Children[1]))

	changed := ast.File("lib.kt", "lib", ast.Fun("v", "String", ast.Str("s")))
	affected, err := a.Graph().Invalidate("lib", session.Change{File: "lib.kt", Tree: changed})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "app"}, affected)
	assert.Equal(t, session.Stale, app.State())

	at2, err := a.ResolveFile(ctx, main)
	require.NoError(t, err)
	assert.NotSame(t, at, at2)
	after, ok := at2.Resolution(call)
	require.True(t, ok)
	assert.NotSame(t, before.Symbol, after.Symbol)
	assert.NotEqual(t, before.Symbol.ID, after.Symbol.ID)
	assert.Equal(t, "String", typeOf(t, at2, main.Children[1]))
}

func TestCancellation(t *testing.T) {
	file := ast.File("a.kt", "app", ast.Val("x", "", ast.Int(1)))
	a := project(t, file)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.ResolveFile(ctx, file)
	require.Error(t, err)
	assert.True(t, diagnostics.IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)

	// the module was left unbuilt and builds on the next request
	at := resolve(t, a, file)
	assert.Empty(t, at.Diagnostics)
}

func TestUnknownFile(t *testing.T) {
	a := project(t)
	_, err := a.ResolveFile(context.Background(), ast.File("nowhere.kt", "app"))
	var unknown *UnknownFileError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nowhere.kt", unknown.File)
}

func TestForget(t *testing.T) {
	file := ast.File("a.kt", "app", ast.Val("s", "String", ast.Int(1)))
	a := project(t, file)
	resolve(t, a, file)
	assert.Equal(t, []string{"a.kt"}, a.Files())
	a.Forget("a.kt")
	assert.Empty(t, a.Diagnostics("a.kt"))
	assert.Empty(t, a.Files())
}
