package scopes

import (
	"context"
	"testing"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func declare(t *testing.T, table *symbols.Table, text string, opts ...symbols.DeclareOption) *symbols.Symbol {
	t.Helper()
	d, err := symbols.ParseDeclaration(text, nil, nil)
	require.NoError(t, err)
	id, err := table.Declare(d.Name, d.Kind, d.Signature, d.Options(opts...)...)
	require.NoError(t, err)
	s, _ := table.Get(id)
	return s
}

func at(line int) ast.Position { return ast.Position{Line: line, Column: 1} }

func names(found []Found) []string {
	var result []string
	for _, f := range found {
		result = append(result, f.Symbol.String())
	}
	return result
}

func TestLocalShadowing(t *testing.T) {
	table := symbols.NewTable("app")
	declare(t, table, "val x: String", symbols.InPackage("app"))
	index := symbols.Union{table, symbols.Builtins()}
	chain := ForFile(index, Viewpoint{Module: "app", Package: "app", File: "a.kt"}, nil, []string{"kotlin"})

	local := chain.PushLocal()
	local.Declare(symbols.NewLocal("x", symbols.LocalSymbol, typesystem.Int, "app.main", at(5)))

	found, err := local.ResolveName(context.Background(), "x", at(6))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, LocalLayer, found[0].Layer)
	assert.Equal(t, "Int", found[0].Symbol.Type().String())

	// before its declaration the local is not visible
	found, err = local.ResolveName(context.Background(), "x", at(4))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, PackageLayer, found[0].Layer)
	assert.Equal(t, "String", found[0].Symbol.Type().String())
}

func TestExtensionsCollectedFromAllLayers(t *testing.T) {
	table := symbols.NewTable("app")
	declare(t, table, "fun f(x: Int): Unit", symbols.InPackage("app"))
	declare(t, table, "fun Int.f(): Unit", symbols.InPackage("lib"))
	declare(t, table, "fun f(x: String): Unit", symbols.InPackage("lib"))
	index := symbols.Union{table, symbols.Builtins()}
	chain := ForFile(index, Viewpoint{Module: "app", Package: "app"}, []Import{{Path: "lib", Star: true}}, []string{"kotlin"})

	found, err := chain.ResolveName(context.Background(), "f", noPosition)
	require.NoError(t, err)
	assert.Equal(t, []string{"function app.f(Int)", "function Int.lib.f()"}, names(found))
	assert.Equal(t, PackageLayer, found[0].Layer)
	assert.True(t, found[1].Extension)
	assert.Greater(t, found[1].Depth, found[0].Depth)
}

func TestSameNameFromTwoImports(t *testing.T) {
	table := symbols.NewTable("app")
	declare(t, table, "fun g(): Unit", symbols.InPackage("a"))
	declare(t, table, "fun g(): Unit", symbols.InPackage("b"))
	chain := ForFile(table, Viewpoint{Module: "app", Package: "app"}, []Import{{Path: "a.g"}, {Path: "b.g"}}, nil)

	found, err := chain.ResolveName(context.Background(), "g", noPosition)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, found[0].Depth, found[1].Depth)
	assert.Equal(t, ExplicitImportLayer, found[0].Layer)
}

func TestImportAlias(t *testing.T) {
	table := symbols.NewTable("app")
	declare(t, table, "fun long(): Unit", symbols.InPackage("a"))
	chain := ForFile(table, Viewpoint{Package: "app"}, []Import{{Path: "a.long", Alias: "short"}}, nil)
	found, err := chain.ResolveName(context.Background(), "short", noPosition)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a.long", found[0].Symbol.Qualified)
}

func TestVisibility(t *testing.T) {
	table := symbols.NewTable("lib")
	declare(t, table, "fun hidden(): Unit", symbols.InPackage("lib"), symbols.WithVisibility(symbols.Internal))
	declare(t, table, "fun secret(): Unit", symbols.InPackage("lib"), symbols.WithVisibility(symbols.Private), symbols.InFile("lib.kt", at(1)))

	other := ForFile(table, Viewpoint{Module: "app", File: "app.kt", Package: "app"}, []Import{{Path: "lib", Star: true}}, nil)
	found, err := other.ResolveName(context.Background(), "hidden", noPosition)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].Invisible)

	same := ForFile(table, Viewpoint{Module: "lib", File: "lib.kt", Package: "lib"}, nil, nil)
	found, err = same.ResolveName(context.Background(), "hidden", noPosition)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.False(t, found[0].Invisible)

	found, err = other.ResolveName(context.Background(), "secret", noPosition)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].Invisible)
}

func TestMembersAndSuper(t *testing.T) {
	table := symbols.NewTable("app")
	_, err := table.Declare("Base", symbols.ClassSymbol, symbols.Signature{}, symbols.InPackage("app"))
	require.NoError(t, err)
	_, err = table.Declare("Derived", symbols.ClassSymbol, symbols.Signature{
		Supertypes: []typesystem.Type{typesystem.TClass{Name: "app.Base"}},
	}, symbols.InPackage("app"))
	require.NoError(t, err)
	declare(t, table, "fun greet(): String", symbols.InClass("app.Base"))
	declare(t, table, "fun greet(): String", symbols.InClass("app.Derived"))
	declare(t, table, "fun only(): Int", symbols.InClass("app.Base"))
	index := symbols.Union{table, symbols.Builtins()}
	chain := ForFile(index, Viewpoint{Module: "app", Package: "app"}, nil, []string{"kotlin"})
	ctx := context.Background()

	derived := typesystem.TClass{Name: "app.Derived"}
	found, err := chain.ResolveMember(ctx, derived, "greet")
	require.NoError(t, err)
	require.Len(t, found, 1, "the override hides the inherited member")
	assert.Equal(t, "app.Derived", found[0].Symbol.Owner)

	found, err = chain.ResolveMember(ctx, derived, "only")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "app.Base", found[0].Receiver.(typesystem.TClass).Name)

	found, err = chain.ResolveMember(ctx, derived, "toString")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "kotlin.Any", found[0].Symbol.Owner)

	cls, _ := table.Class("app.Derived")
	found, err = chain.ResolveSuper(ctx, cls, "greet")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "app.Base", found[0].Symbol.Owner)

	// inside the class body members are found through the implicit receiver
	inside := chain.PushClass(cls, derived)
	found, err = inside.ResolveName(ctx, "only", noPosition)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ClassLayer, found[0].Layer)
}

func TestExtensionMembersOnReceiver(t *testing.T) {
	table := symbols.NewTable("app")
	declare(t, table, "fun String.shout(): String", symbols.InPackage("app"))
	index := symbols.Union{table, symbols.Builtins()}
	chain := ForFile(index, Viewpoint{Package: "app"}, nil, []string{"kotlin"})

	found, err := chain.ResolveMember(context.Background(), typesystem.String, "shout")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].Extension)
	assert.Equal(t, typesystem.String, found[0].Receiver)

	found, err = chain.ResolveMember(context.Background(), typesystem.String, "let")
	require.NoError(t, err)
	require.Len(t, found, 1, "builtin extensions come from default imports")
}

func TestQualifiedAndClassifiers(t *testing.T) {
	table := symbols.NewTable("app")
	declare(t, table, "fun util(): Unit", symbols.InPackage("app.tools"))
	_, err := table.Declare("Box", symbols.ClassSymbol, symbols.Signature{}, symbols.InPackage("app"))
	require.NoError(t, err)
	index := symbols.Union{table, symbols.Builtins()}
	chain := ForFile(index, Viewpoint{Package: "app"}, nil, []string{"kotlin"})
	ctx := context.Background()

	assert.True(t, chain.IsPackage("app.tools"))
	found, err := chain.ResolveQualified(ctx, "app.tools", "util")
	require.NoError(t, err)
	require.Len(t, found, 1)

	classes, err := chain.ResolveClassifier(ctx, "Box")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "app.Box", classes[0].Qualified)

	classes, err = chain.ResolveClassifier(ctx, "List")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, "kotlin.List", classes[0].Qualified)

	inner := chain.PushLocal()
	inner.Declare(symbols.NewLocal("List", symbols.TypeParameterSymbol, typesystem.TParam{Name: "List"}, "app.f", noPosition))
	classes, err = inner.ResolveClassifier(ctx, "List")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, symbols.TypeParameterSymbol, classes[0].Kind)
}

func TestWalkIsLazyAndCancellable(t *testing.T) {
	index := symbols.Union{symbols.Builtins()}
	chain := ForFile(index, Viewpoint{}, nil, []string{"kotlin"})

	n := 0
	for _, err := range chain.Walk(context.Background(), "maxOf", noPosition) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
	// restartable: a second walk sees all overloads
	all, err := chain.ResolveName(context.Background(), "maxOf", noPosition)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = chain.ResolveName(ctx, "maxOf", noPosition)
	assert.True(t, diagnostics.IsCancelled(err))
}
