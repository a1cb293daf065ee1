package typesystem

import (
	"errors"
	"testing"
)

func TestParseTypeRoundTrip(t *testing.T) {
	tests := []string{
		"Int",
		"String?",
		"List<out Number>",
		"MutableList<in Int>",
		"Map<String, List<Int>?>",
		"Comparable<*>",
		"(Int, String) -> Boolean",
		"((Int) -> Unit)?",
		"() -> String",
		"Comparable<*> & Serializable",
		"Int!",
	}
	for _, text := range tests {
		typ, err := ParseType(text, nil)
		if err != nil {
			t.Errorf("ParseType(%q): %v", text, err)
			continue
		}
		if typ.String() != text {
			t.Errorf("ParseType(%q).String() = %q", text, typ.String())
		}
	}
}

func TestParseTypeErrors(t *testing.T) {
	for _, text := range []string{"", "List<", "(Int, String)", "Int>", "<Int>"} {
		if _, err := ParseType(text, nil); err == nil {
			t.Errorf("ParseType(%q) succeeded", text)
		}
	}

	typ, err := ParseType("List<Banana>", nil)
	var unresolved *UnresolvedTypeError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected *UnresolvedTypeError, got %v", err)
	}
	if len(unresolved.Names) != 1 || unresolved.Names[0] != "Banana" {
		t.Errorf("unresolved names = %v", unresolved.Names)
	}
	if !ContainsError(typ) {
		t.Errorf("partial type %s should contain an error type", typ)
	}
}

func TestParseTypeWithResolver(t *testing.T) {
	resolve := func(name string) (Type, bool) {
		switch name {
		case "T":
			return TParam{Name: "T"}, true
		case "Box", "app.Box":
			return TClass{Name: "app.Box"}, true
		}
		return ResolveBuiltins(name)
	}
	typ, err := ParseType("Box<T?>", resolve)
	if err != nil {
		t.Fatal(err)
	}
	c, ok := typ.(TClass)
	if !ok || c.Name != "app.Box" {
		t.Fatalf("got %#v", typ)
	}
	if p, ok := c.Args[0].Type.(TParam); !ok || !p.Nullable {
		t.Errorf("argument = %#v, want nullable T", c.Args[0].Type)
	}
}

func TestIdentitySubstitution(t *testing.T) {
	for _, text := range []string{"Map<String, List<Int>?>", "(Int) -> Comparable<*>", "Int!", "Comparable<Int> & Serializable"} {
		typ := mustParse(t, text)
		if got := typ.Apply(Subst{}); !Equal(got, typ) {
			t.Errorf("identity substitution changed %s into %s", typ, got)
		}
	}
}

func TestSubstitution(t *testing.T) {
	list := TClass{Name: ListName, Args: []TypeArg{Arg(TParam{Name: "T"})}}
	got := list.Apply(Subst{"T": String})
	if got.String() != "List<String>" {
		t.Errorf("got %s", got)
	}

	nullableT := TParam{Name: "T", Nullable: true}
	if got := nullableT.Apply(Subst{"T": Int}); got.String() != "Int?" {
		t.Errorf("T? with T := Int gave %s", got)
	}

	// chained replacements are followed, self references are not
	chain := Subst{"a": TVar{Name: "b"}, "b": Int}
	if got := (TVar{Name: "a"}).Apply(chain); !Equal(got, Int) {
		t.Errorf("chain gave %s", got)
	}
	cycle := Subst{"a": TClass{Name: ListName, Args: []TypeArg{Arg(TVar{Name: "a"})}}}
	if got := (TVar{Name: "a"}).Apply(cycle); got.String() != "List<a>" {
		t.Errorf("cycle gave %s", got)
	}
}

func TestCompose(t *testing.T) {
	s1 := Subst{"b": Int}
	s2 := Subst{"a": TClass{Name: ListName, Args: []TypeArg{Arg(TVar{Name: "b"})}}}
	composed := s1.Compose(s2)
	if got := composed["a"].String(); got != "List<Int>" {
		t.Errorf("composed a = %s", got)
	}
	if got := composed["b"]; !Equal(got, Int) {
		t.Errorf("composed b = %s", got)
	}
}

func TestIntersectionNormalization(t *testing.T) {
	a := NewIntersection(String, Int, String)
	b := NewIntersection(NewIntersection(Int), String)
	if !Equal(a, b) {
		t.Errorf("%s and %s should be equal", a, b)
	}
	if got := NewIntersection(Int); !Equal(got, Int) {
		t.Errorf("single member intersection = %s", got)
	}
	if got := NewIntersection(Int, TError{}); !IsError(got) {
		t.Errorf("intersection with error = %s", got)
	}
	if got := NewFlexible(Int, Int); !Equal(got, Int) {
		t.Errorf("flexible with equal bounds = %s", got)
	}
}

func TestFreeTypeVariables(t *testing.T) {
	typ := TClass{Name: "kotlin.Map", Args: []TypeArg{Arg(TVar{Name: "K"}), Arg(TClass{Name: ListName, Args: []TypeArg{Arg(TVar{Name: "K"})}})}}
	vars := typ.FreeTypeVariables()
	if len(vars) != 1 || vars[0].Name != "K" {
		t.Errorf("free variables = %v", vars)
	}
	if HasTypeVariables(Int) {
		t.Error("Int has no variables")
	}
}

func TestFunctionParts(t *testing.T) {
	fn := mustParse(t, "(Int, String) -> Boolean")
	params, ret, ok := FunctionParts(fn)
	if !ok || len(params) != 2 || !Equal(ret, Boolean) {
		t.Fatalf("FunctionParts = %v, %v, %v", params, ret, ok)
	}
	if _, _, ok := FunctionParts(Int); ok {
		t.Error("Int is not a function type")
	}
}

func TestPlatform(t *testing.T) {
	got := Platform(mustParse(t, "List<String>"))
	if got.String() != "(List<String!>..List<String!>?)" && got.String() != "List<String!>!" {
		t.Errorf("Platform(List<String>) = %s", got)
	}
	c := NewChecker(nil)
	if !c.IsSubtypeOf(got, mustParse(t, "List<String?>")) || !c.IsSubtypeOf(mustParse(t, "List<String>?"), got) {
		t.Errorf("platform list should accept both nullabilities")
	}
}
