package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, text string, subst typesystem.Subst) typesystem.Type {
	t.Helper()
	typ, err := typesystem.ParseType(text, func(name string) (typesystem.Type, bool) {
		if v, ok := subst[name]; ok {
			return v, true
		}
		return typesystem.ResolveBuiltins(name)
	})
	require.NoError(t, err)
	return typ
}

func TestLowerBoundsJoin(t *testing.T) {
	// listOf(1, "a")
	s := NewSystem(nil)
	subst, vars := s.Fresh([]typesystem.TypeParam{{Name: "T"}})
	s.AddSubtype(typesystem.Int, vars[0], "argument")
	s.AddSubtype(typesystem.String, vars[0], "argument")
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	ret := parse(t, "List<T>", subst).Apply(result)
	assert.Equal(t, "List<Comparable<*> & Serializable>", ret.String())
}

func TestUpperBoundFromExpectedType(t *testing.T) {
	// val xs: List<String> = emptyList()
	s := NewSystem(nil)
	subst, _ := s.Fresh([]typesystem.TypeParam{{Name: "T"}})
	s.AddSubtype(parse(t, "List<T>", subst), parse(t, "List<String>", nil), "expected type")
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "List<String>", parse(t, "List<T>", subst).Apply(result).String())
}

func TestUnconstrainedDefaultsToNothing(t *testing.T) {
	s := NewSystem(nil)
	subst, _ := s.Fresh([]typesystem.TypeParam{{Name: "T"}})
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "List<Nothing>", parse(t, "List<T>", subst).Apply(result).String())
}

func TestErrorBoundFixesToError(t *testing.T) {
	// listOf(<unresolved>)
	s := NewSystem(nil)
	subst, vars := s.Fresh([]typesystem.TypeParam{{Name: "T"}})
	s.AddSubtype(typesystem.TError{Reason: "unresolved reference: x"}, vars[0], "argument")
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.True(t, typesystem.IsError(vars[0].Apply(result)))
	assert.True(t, typesystem.ContainsError(parse(t, "List<T>", subst).Apply(result)))

	// the error wins over a proper bound and flows along variable chains
	s = NewSystem(nil)
	_, vars = s.Fresh([]typesystem.TypeParam{{Name: "A"}, {Name: "B"}})
	s.AddSubtype(vars[0], vars[1], "chain")
	s.AddSubtype(typesystem.Int, vars[0], "a")
	s.AddSubtype(typesystem.TError{}, vars[0], "a")
	result, err = s.Solve(context.Background())
	require.NoError(t, err)
	assert.True(t, typesystem.IsError(vars[0].Apply(result)))
	assert.True(t, typesystem.IsError(vars[1].Apply(result)))

	// an error upper bound
	s = NewSystem(nil)
	subst, _ = s.Fresh([]typesystem.TypeParam{{Name: "T"}})
	s.AddSubtype(parse(t, "List<T>", subst), typesystem.TError{}, "expected type")
	result, err = s.Solve(context.Background())
	require.NoError(t, err)
	assert.True(t, typesystem.ContainsError(parse(t, "List<T>", subst).Apply(result)))
}

func TestDeclaredBound(t *testing.T) {
	params, err := typesystem.ParseTypeParams("T: Comparable<T>", nil)
	require.NoError(t, err)

	s := NewSystem(nil)
	_, vars := s.Fresh(params)
	s.AddSubtype(typesystem.Int, vars[0], "argument")
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Int", vars[0].Apply(result).String())

	// Any is not Comparable<Any>
	s = NewSystem(nil)
	_, vars = s.Fresh(params)
	s.AddSubtype(typesystem.Any, vars[0], "argument")
	_, err = s.Solve(context.Background())
	var contradiction *ContradictionError
	assert.ErrorAs(t, err, &contradiction)
}

func TestContradiction(t *testing.T) {
	// fun <T> both(a: MutableList<T>, b: MutableList<T>) with Int and String lists
	s := NewSystem(nil)
	subst, _ := s.Fresh([]typesystem.TypeParam{{Name: "T"}})
	s.AddSubtype(parse(t, "MutableList<Int>", nil), parse(t, "MutableList<T>", subst), "a")
	s.AddSubtype(parse(t, "MutableList<String>", nil), parse(t, "MutableList<T>", subst), "b")
	_, err := s.Solve(context.Background())
	var contradiction *ContradictionError
	require.ErrorAs(t, err, &contradiction)
	assert.Contains(t, err.Error(), "is not a subtype of")
}

func TestNullability(t *testing.T) {
	// fun <T : Any> requireNotNull(value: T?): T with an Int? argument
	params, err := typesystem.ParseTypeParams("T: Any", nil)
	require.NoError(t, err)
	s := NewSystem(nil)
	subst, vars := s.Fresh(params)
	s.AddSubtype(parse(t, "Int?", nil), parse(t, "T?", subst), "value")
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Int", vars[0].Apply(result).String())

	// null into a non-null type parameter position
	s = NewSystem(nil)
	subst, _ = s.Fresh(params)
	s.AddSubtype(typesystem.NullType, parse(t, "T", subst), "value")
	_, err = s.Solve(context.Background())
	assert.Error(t, err)
}

func TestVariableChains(t *testing.T) {
	// A <: B, Int <: A, B <: Number
	s := NewSystem(nil)
	_, vars := s.Fresh([]typesystem.TypeParam{{Name: "A"}, {Name: "B"}})
	s.AddSubtype(vars[0], vars[1], "chain")
	s.AddSubtype(typesystem.Int, vars[0], "arg")
	s.AddSubtype(vars[1], parse(t, "Number", nil), "bound")
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Int", vars[0].Apply(result).String())
	assert.Equal(t, "Int", vars[1].Apply(result).String())
}

func TestPendingLambda(t *testing.T) {
	// listOf(1).map { it.toString() }
	s := NewSystem(nil)
	subst, _ := s.Fresh([]typesystem.TypeParam{{Name: "T"}, {Name: "R"}})
	s.AddSubtype(parse(t, "List<Int>", nil), parse(t, "Iterable<T>", subst), "receiver")
	var seen []typesystem.Type
	lambda := &PendingLambda{
		Params: []typesystem.Type{parse(t, "T", subst)},
		Return: parse(t, "R", subst),
		Analyze: func(ctx context.Context, params []typesystem.Type) (typesystem.Type, error) {
			seen = params
			return typesystem.String, nil
		},
	}
	s.AddLambda(lambda)
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "Int", seen[0].String(), "the parameter is fixed before the body is analyzed")
	assert.Equal(t, "List<String>", parse(t, "List<R>", subst).Apply(result).String())
	assert.Equal(t, typesystem.String, lambda.Result)
}

func TestLambdaReturningUnit(t *testing.T) {
	// forEach { x -> x + 1 }: the result is discarded
	s := NewSystem(nil)
	s.AddLambda(&PendingLambda{
		Params: []typesystem.Type{typesystem.Int},
		Return: typesystem.Unit,
		Analyze: func(context.Context, []typesystem.Type) (typesystem.Type, error) {
			return typesystem.Int, nil
		},
	})
	_, err := s.Solve(context.Background())
	assert.NoError(t, err)
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSystem(nil)
	_, vars := s.Fresh([]typesystem.TypeParam{{Name: "T"}})
	s.AddSubtype(typesystem.Int, vars[0], "arg")
	_, err := s.Solve(ctx)
	assert.True(t, diagnostics.IsCancelled(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIterationLimit(t *testing.T) {
	s := NewSystem(nil, WithMaxIterations(1))
	_, vars := s.Fresh([]typesystem.TypeParam{{Name: "A"}, {Name: "B"}})
	s.AddSubtype(typesystem.Int, vars[0], "a")
	s.AddSubtype(vars[0], vars[1], "b")
	_, err := s.Solve(context.Background())
	var limit *IterationLimitError
	assert.ErrorAs(t, err, &limit)
}

func TestFlexibleArguments(t *testing.T) {
	s := NewSystem(nil)
	subst, vars := s.Fresh([]typesystem.TypeParam{{Name: "T"}})
	s.AddSubtype(parse(t, "String!", nil), parse(t, "T", subst), "platform")
	result, err := s.Solve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "String!", vars[0].Apply(result).String())
}
