package library

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func sample() Contents {
	return Contents{
		Classes: []Class{
			{
				Package:     "java.util",
				Name:        "ArrayList",
				TypeParams:  "E",
				Supertypes:  "List<E>",
				Constructor: ptr(""),
				Members:     []string{"fun add(element: E): Boolean", "fun clear()"},
			},
			{
				Package:    "java.util",
				Name:       "Objects",
				Members:    []string{"val EMPTY: String"},
				Supertypes: "",
			},
		},
		Functions: []Function{
			{Package: "java.util", Declaration: "fun <T> copy(list: ArrayList<T>): ArrayList<T>"},
		},
	}
}

func TestCreateAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jdk.firlib")
	require.NoError(t, Create(path, sample()))

	lib, err := Open(path)
	require.NoError(t, err)
	defer lib.Close()

	table := symbols.NewTable("lib")
	n, err := lib.Load(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	class, ok := table.Class("java.util.ArrayList")
	require.True(t, ok)
	assert.Equal(t, symbols.LibraryOrigin, class.Origin)
	require.Len(t, class.Signature.Supertypes, 1)
	assert.Equal(t, "kotlin.List", class.Signature.Supertypes[0].(typesystem.TClass).Name)
	assert.Empty(t, class.Signature.Params)

	_, ok = table.Class("java.util.Objects")
	assert.True(t, ok)

	add := table.Qualified("java.util.ArrayList.add")
	require.Len(t, add, 1)
	assert.True(t, add[0].Member)
	_, flexible := add[0].Signature.Params[0].Type.(typesystem.TFlexible)
	assert.True(t, flexible, "parameter types of foreign members are platform types")
	_, flexible = add[0].Signature.Return.(typesystem.TFlexible)
	assert.True(t, flexible)

	clearFn := table.Qualified("java.util.ArrayList.clear")
	require.Len(t, clearFn, 1)
	assert.True(t, typesystem.IsUnit(clearFn[0].Signature.Return), "Unit stays Unit")

	copyFn := table.Qualified("java.util.copy")
	require.Len(t, copyFn, 1)
	assert.False(t, copyFn[0].Member)
	ret, ok := copyFn[0].Signature.Return.(typesystem.TFlexible)
	require.True(t, ok)
	assert.Equal(t, "java.util.ArrayList", ret.Lower.(typesystem.TClass).Name)
}

func TestPlatformTypesAcceptNull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jdk.firlib")
	require.NoError(t, Create(path, sample()))
	table, err := Load(context.Background(), path)
	require.NoError(t, err)

	copyFn := table.Qualified("java.util.copy")
	require.Len(t, copyFn, 1)
	checker := typesystem.NewChecker(symbols.Union{table, symbols.Builtins()})
	param := copyFn[0].Signature.Params[0].Type
	assert.True(t, checker.IsSubtypeOf(typesystem.NullType, param))
	assert.True(t, checker.IsSubtypeOf(param, typesystem.NullableAny))
}

func TestReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jdk.firlib")
	require.NoError(t, Create(path, sample()))
	lib, err := Open(path)
	require.NoError(t, err)
	defer lib.Close()

	contents, err := lib.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, contents.Classes, 2)
	assert.Equal(t, []string{"fun add(element: E): Boolean", "fun clear()"}, contents.Classes[0].Members)
	require.NotNil(t, contents.Classes[0].Constructor)
	assert.Nil(t, contents.Classes[1].Constructor)
	assert.Len(t, contents.Functions, 1)
}

func TestOpenRejectsOtherFiles(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.firlib"))
	assert.Error(t, err)
}

func TestBadDeclarationNamesTheLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.firlib")
	require.NoError(t, Create(path, Contents{
		Functions: []Function{{Package: "p", Declaration: "class Nope"}},
	}))
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.firlib")
}
