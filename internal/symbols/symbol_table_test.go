package symbols

import (
	"errors"
	"sync"
	"testing"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fun(t *testing.T, text string) *Declaration {
	t.Helper()
	d, err := ParseDeclaration(text, nil, nil)
	require.NoError(t, err)
	return d
}

func TestDeclareAndLookup(t *testing.T) {
	table := NewTable("app")
	d := fun(t, "fun f(x: Int): Int")
	id, err := table.Declare(d.Name, d.Kind, d.Signature, InPackage("app.util"), InFile("a.kt", ast.Position{Line: 3, Column: 1}))
	require.NoError(t, err)

	sym, ok := table.Get(id)
	require.True(t, ok)
	assert.Equal(t, "app.util.f", sym.Qualified)
	assert.Equal(t, "app", sym.Module)
	assert.Equal(t, []SymbolID{id}, table.Lookup("f"))
	assert.Equal(t, []SymbolID{id}, table.LookupQualified("app.util.f"))
	assert.Empty(t, table.LookupQualified("app.f"))
	assert.True(t, table.HasPackage("app.util"))
	assert.True(t, table.HasPackage("app"))
	assert.False(t, table.HasPackage("other"))
	assert.Len(t, table.Package("app.util"), 1)
}

func TestOverloadsShareQualifiedName(t *testing.T) {
	table := NewTable("app")
	for _, text := range []string{"fun f(x: Int): Unit", "fun f(x: String): Unit", "fun f(): Unit"} {
		d := fun(t, text)
		_, err := table.Declare(d.Name, d.Kind, d.Signature, InPackage("app"))
		require.NoError(t, err, text)
	}
	assert.Len(t, table.Qualified("app.f"), 3)
}

func TestDuplicateDeclaration(t *testing.T) {
	table := NewTable("app")
	d := fun(t, "fun f(x: Int): Unit")
	first, err := table.Declare(d.Name, d.Kind, d.Signature, InPackage("app"))
	require.NoError(t, err)

	// same parameter types, different return type
	again := fun(t, "fun f(y: Int): String")
	_, err = table.Declare(again.Name, again.Kind, again.Signature, InPackage("app"))
	var dup *DuplicateDeclarationError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first, dup.Existing.ID)

	// generic signatures that differ only by type parameter names clash
	g1 := fun(t, "fun <T> g(x: T): T")
	g2 := fun(t, "fun <U> g(x: U): U")
	_, err = table.Declare(g1.Name, g1.Kind, g1.Signature, InPackage("app"))
	require.NoError(t, err)
	_, err = table.Declare(g2.Name, g2.Kind, g2.Signature, InPackage("app"))
	assert.Error(t, err)

	// a property and a class with the same name clash across kinds
	_, err = table.Declare("X", ClassSymbol, Signature{}, InPackage("app"))
	require.NoError(t, err)
	_, err = table.Declare("X", PropertySymbol, Signature{Return: typesystem.Int}, InPackage("app"))
	assert.ErrorAs(t, err, &dup)

	// the same name in another package is fine
	_, err = table.Declare(d.Name, d.Kind, d.Signature, InPackage("other"))
	assert.NoError(t, err)
	assert.Len(t, table.Lookup("f"), 2)
}

func TestMembersAndClasses(t *testing.T) {
	table := NewTable("app")
	_, err := table.Declare("Box", ClassSymbol, Signature{
		TypeParams: []typesystem.TypeParam{{Name: "T", Variance: typesystem.Covariant}},
	}, InPackage("app"))
	require.NoError(t, err)
	tps := []typesystem.TypeParam{{Name: "T"}}
	get, err := ParseDeclaration("fun get(): T", tps, nil)
	require.NoError(t, err)
	_, err = table.Declare(get.Name, get.Kind, get.Signature, InClass("app.Box"))
	require.NoError(t, err)

	members := table.Members("app.Box")
	require.Len(t, members, 1)
	assert.Equal(t, "app.Box.get", members[0].Qualified)
	assert.True(t, members[0].Member)
	assert.Empty(t, table.Package("app.Box"), "members are not package level")

	ci, ok := table.ClassInfo("app.Box")
	require.True(t, ok)
	assert.Equal(t, "Box<T>", ci.Type().String())

	prefix, ok := table.LongestPrefix("app.Box.get.extra")
	assert.True(t, ok)
	assert.Equal(t, "app.Box.get", prefix)
}

func TestRemoveFile(t *testing.T) {
	table := NewTable("app")
	_, err := table.Declare("a", PropertySymbol, Signature{Return: typesystem.Int}, InPackage("app.x"), InFile("a.kt", ast.Position{Line: 1, Column: 1}))
	require.NoError(t, err)
	keep, err := table.Declare("b", PropertySymbol, Signature{Return: typesystem.Int}, InPackage("app.x"), InFile("b.kt", ast.Position{Line: 1, Column: 1}))
	require.NoError(t, err)

	removed := table.RemoveFile("a.kt")
	require.Len(t, removed, 1)
	assert.Equal(t, "a", removed[0].Name)
	assert.Empty(t, table.LookupQualified("app.x.a"))
	assert.Equal(t, []SymbolID{keep}, table.LookupQualified("app.x.b"))
	assert.True(t, table.HasPackage("app.x"))

	table.RemoveFile("b.kt")
	assert.False(t, table.HasPackage("app.x"))
	assert.Equal(t, 0, table.Len())

	// redeclaring gets a new identity
	again, err := table.Declare("b", PropertySymbol, Signature{Return: typesystem.Int}, InPackage("app.x"), InFile("b.kt", ast.Position{Line: 1, Column: 1}))
	require.NoError(t, err)
	assert.NotEqual(t, keep, again)
}

func TestOnDeclare(t *testing.T) {
	table := NewTable("app")
	var seen []string
	table.OnDeclare(func(s *Symbol) { seen = append(seen, s.Qualified) })
	_, err := table.Declare("a", PropertySymbol, Signature{Return: typesystem.Int}, InPackage("p"))
	require.NoError(t, err)
	_, _ = table.Declare("a", PropertySymbol, Signature{Return: typesystem.Int}, InPackage("p"))
	assert.Equal(t, []string{"p.a"}, seen, "rejected declarations are not announced")
}

func TestOnDeclareCancel(t *testing.T) {
	table := NewTable("app")
	var first, second int
	cancel := table.OnDeclare(func(*Symbol) { first++ })
	table.OnDeclare(func(*Symbol) { second++ })
	require.Equal(t, 2, table.Observers())

	_, err := table.Declare("a", PropertySymbol, Signature{Return: typesystem.Int}, InPackage("p"))
	require.NoError(t, err)
	cancel()
	cancel()
	assert.Equal(t, 1, table.Observers())
	_, err = table.Declare("b", PropertySymbol, Signature{Return: typesystem.Int}, InPackage("p"))
	require.NoError(t, err)
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestConcurrentReaders(t *testing.T) {
	table := Builtins()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NotEmpty(t, table.Lookup("listOf"))
				_, ok := table.Class("kotlin.List")
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()
}

func TestParseDeclaration(t *testing.T) {
	tests := []struct {
		text     string
		name     string
		kind     SymbolKind
		receiver string
		params   []string
		ret      string
	}{
		{"fun f(): Unit", "f", FunctionSymbol, "", nil, "Unit"},
		{"fun g(x: Int, y: String = \"\")", "g", FunctionSymbol, "", []string{"Int", "String"}, "Unit"},
		{"fun <T, R> Iterable<T>.map(transform: (T) -> R): List<R>", "map", FunctionSymbol, "Iterable<T>", []string{"(T) -> R"}, "List<R>"},
		{"infix fun <A, B> A.to(that: B): Pair<A, B>", "to", FunctionSymbol, "A", []string{"B"}, "Pair<A, B>"},
		{"fun <T> listOf(vararg elements: T): List<T>", "listOf", FunctionSymbol, "", []string{"T"}, "List<T>"},
		{"val size: Int", "size", PropertySymbol, "", nil, "Int"},
		{"var name: String?", "name", PropertySymbol, "", nil, "String?"},
		{"val <T> List<T>.lastIndex: Int", "lastIndex", PropertySymbol, "List<T>", nil, "Int"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d := fun(t, tt.text)
			assert.Equal(t, tt.name, d.Name)
			assert.Equal(t, tt.kind, d.Kind)
			if tt.receiver == "" {
				assert.Nil(t, d.Signature.Receiver)
			} else {
				require.NotNil(t, d.Signature.Receiver)
				assert.Equal(t, tt.receiver, d.Signature.Receiver.String())
			}
			var params []string
			for _, p := range d.Signature.Params {
				params = append(params, p.Type.String())
			}
			assert.Equal(t, tt.params, params)
			assert.Equal(t, tt.ret, d.Signature.Return.String())
		})
	}

	d := fun(t, "fun g(x: Int, y: String = \"\")")
	assert.True(t, d.Signature.Params[1].HasDefault)
	assert.True(t, fun(t, "fun <T> listOf(vararg elements: T): List<T>").Signature.Params[0].Vararg)
	assert.True(t, fun(t, "infix fun <A, B> A.to(that: B): Pair<A, B>").Infix)
	assert.True(t, fun(t, "var name: String?").Mutable)

	bounded := fun(t, "fun <T : Comparable<T>> maxOf(a: T, b: T): T")
	require.Len(t, bounded.Signature.TypeParams, 1)
	assert.Equal(t, "Comparable<T>", bounded.Signature.TypeParams[0].Bounds[0].String())
}

func TestParseDeclarationErrors(t *testing.T) {
	for _, text := range []string{
		"class Foo",
		"fun f",
		"fun f(x): Int",
		"fun <T f(): T",
		"val x",
		"fun f(x: Banana): Unit",
	} {
		_, err := ParseDeclaration(text, nil, nil)
		assert.Error(t, err, text)
	}
}

func TestBuiltins(t *testing.T) {
	table := Builtins()
	list, ok := table.Class("kotlin.List")
	require.True(t, ok)
	assert.Equal(t, BuiltinOrigin, list.Origin)
	assert.Equal(t, BuiltinModule, list.Module)

	assert.Len(t, table.Qualified("kotlin.maxOf"), 4)
	assert.NotEmpty(t, table.Members("kotlin.Any"))

	pair, ok := table.Class("kotlin.Pair")
	require.True(t, ok)
	require.Len(t, pair.Signature.Params, 2)
	assert.Equal(t, "A", pair.Signature.Params[0].Type.String())

	to := table.Qualified("kotlin.to")
	require.Len(t, to, 1)
	assert.True(t, to[0].Infix)
	assert.True(t, to[0].IsExtension())
	assert.Equal(t, Builtins(), table, "builtins are a singleton")
}
