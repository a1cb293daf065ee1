package typesystem

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// BuiltinPackage holds the builtin classes and functions.
const BuiltinPackage = "kotlin"

// Qualified names of the classes the type core reasons about directly.
const (
	AnyName          = "kotlin.Any"
	NothingName      = "kotlin.Nothing"
	UnitName         = "kotlin.Unit"
	BooleanName      = "kotlin.Boolean"
	NumberName       = "kotlin.Number"
	IntName          = "kotlin.Int"
	LongName         = "kotlin.Long"
	ShortName        = "kotlin.Short"
	ByteName         = "kotlin.Byte"
	DoubleName       = "kotlin.Double"
	FloatName        = "kotlin.Float"
	CharName         = "kotlin.Char"
	StringName       = "kotlin.String"
	ComparableName   = "kotlin.Comparable"
	SerializableName = "kotlin.Serializable"
	ListName         = "kotlin.List"
	ArrayName        = "kotlin.Array"
	functionPrefix   = "kotlin.Function"
)

var (
	Any         Type = TClass{Name: AnyName}
	NullableAny Type = TClass{Name: AnyName, Nullable: true}
	Nothing     Type = TClass{Name: NothingName}
	// NullType is the type of the null literal.
	NullType Type = TClass{Name: NothingName, Nullable: true}
	Unit     Type = TClass{Name: UnitName}
	Boolean  Type = TClass{Name: BooleanName}
	Int      Type = TClass{Name: IntName}
	Long     Type = TClass{Name: LongName}
	Double   Type = TClass{Name: DoubleName}
	Float    Type = TClass{Name: FloatName}
	Char     Type = TClass{Name: CharName}
	String   Type = TClass{Name: StringName}
)

// TypeParam describes a declared type parameter of a class or function.
type TypeParam struct {
	Name     string
	Variance Variance
	Bounds   []Type
}

// Ref returns the type that refers to this parameter.
func (p TypeParam) Ref() TParam {
	return TParam{Name: p.Name, Bounds: p.Bounds}
}

// ClassInfo is what the type core needs to know about a classifier.
// Supertypes may mention the class's own type parameters.
type ClassInfo struct {
	Name       string
	TypeParams []TypeParam
	Supertypes []Type
}

// Type returns the class type applied to its own type parameters.
func (ci *ClassInfo) Type() TClass {
	t := TClass{Name: ci.Name}
	for _, p := range ci.TypeParams {
		t.Args = append(t.Args, Arg(p.Ref()))
	}
	return t
}

// ClassResolver looks classes up by qualified name.
type ClassResolver interface {
	ClassInfo(name string) (*ClassInfo, bool)
}

// ClassResolverFunc adapts a function to ClassResolver.
type ClassResolverFunc func(name string) (*ClassInfo, bool)

func (f ClassResolverFunc) ClassInfo(name string) (*ClassInfo, bool) { return f(name) }

// ClassTable is a fixed map based ClassResolver.
type ClassTable map[string]*ClassInfo

func (t ClassTable) ClassInfo(name string) (*ClassInfo, bool) {
	ci, ok := t[name]
	return ci, ok
}

// FunctionType builds (params) -> ret.
func FunctionType(ret Type, params ...Type) TClass {
	t := TClass{Name: functionPrefix + strconv.Itoa(len(params))}
	for _, p := range params {
		t.Args = append(t.Args, Arg(p))
	}
	t.Args = append(t.Args, Arg(ret))
	return t
}

// FunctionParts splits a function type into parameter and return types.
func FunctionParts(t Type) (params []Type, ret Type, ok bool) {
	c, isClass := t.(TClass)
	if !isClass {
		if f, isFlex := t.(TFlexible); isFlex {
			return FunctionParts(f.Lower)
		}
		return nil, nil, false
	}
	n, isFunc := functionArity(c.Name)
	if !isFunc || len(c.Args) != n+1 {
		return nil, nil, false
	}
	for _, a := range c.Args[:n] {
		params = append(params, argOrAny(a))
	}
	return params, argOrAny(c.Args[n]), true
}

func argOrAny(a TypeArg) Type {
	if a.IsStar() {
		return NullableAny
	}
	return a.Type
}

func functionArity(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, functionPrefix)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// MaxFunctionArity is the largest FunctionN class among the builtins.
const MaxFunctionArity = 3

var builtinDecls = []struct {
	name       string
	params     string
	supertypes string
}{
	{"Any", "", ""},
	{"Nothing", "", ""},
	{"Unit", "", ""},
	{"Comparable", "in T", ""},
	{"Serializable", "", ""},
	{"CharSequence", "", ""},
	{"Boolean", "", "Comparable<Boolean>, Serializable"},
	{"Number", "", "Serializable"},
	{"Int", "", "Number, Comparable<Int>"},
	{"Long", "", "Number, Comparable<Long>"},
	{"Short", "", "Number, Comparable<Short>"},
	{"Byte", "", "Number, Comparable<Byte>"},
	{"Double", "", "Number, Comparable<Double>"},
	{"Float", "", "Number, Comparable<Float>"},
	{"Char", "", "Comparable<Char>, Serializable"},
	{"String", "", "Comparable<String>, CharSequence, Serializable"},
	{"Throwable", "", "Serializable"},
	{"Iterable", "out T", ""},
	{"Collection", "out E", "Iterable<E>"},
	{"List", "out E", "Collection<E>"},
	{"MutableList", "E", "List<E>"},
	{"Set", "out E", "Collection<E>"},
	{"Array", "T", "Serializable"},
	{"Map", "K, out V", ""},
	{"Pair", "out A, out B", "Serializable"},
	{"Function0", "out R", ""},
	{"Function1", "in P1, out R", ""},
	{"Function2", "in P1, in P2, out R", ""},
	{"Function3", "in P1, in P2, in P3, out R", ""},
}

var (
	builtinTable ClassTable
	builtinOnce  sync.Once
)

// Builtins returns the singleton table of builtin classes.
func Builtins() ClassTable {
	builtinOnce.Do(func() {
		builtinTable = make(ClassTable, len(builtinDecls))
		for _, d := range builtinDecls {
			ci, err := parseClassHeader(BuiltinPackage+"."+d.name, d.params, d.supertypes)
			if err != nil {
				panic(fmt.Sprintf("builtin %s: %v", d.name, err))
			}
			builtinTable[ci.Name] = ci
		}
	})
	return builtinTable
}

// BuiltinClassNames lists the qualified builtin class names in
// declaration order.
func BuiltinClassNames() []string {
	names := make([]string, 0, len(builtinDecls))
	for _, d := range builtinDecls {
		names = append(names, BuiltinPackage+"."+d.name)
	}
	return names
}

// BuiltinClassName qualifies a simple builtin class name.
func BuiltinClassName(simple string) (string, bool) {
	q := BuiltinPackage + "." + simple
	_, ok := Builtins()[q]
	return q, ok
}

// ParseTypeParams parses "in T, out R, K: Comparable<K>". Bounds may refer to
// any parameter of the list; other names go through resolve.
func ParseTypeParams(text string, resolve NameResolver) ([]TypeParam, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var params []TypeParam
	var bounds []string
	for _, part := range SplitTopLevel(text, ',') {
		part = strings.TrimSpace(part)
		var p TypeParam
		if rest, ok := strings.CutPrefix(part, "in "); ok {
			p.Variance, part = Contravariant, rest
		} else if rest, ok := strings.CutPrefix(part, "out "); ok {
			p.Variance, part = Covariant, rest
		}
		name, bound, _ := strings.Cut(part, ":")
		p.Name = strings.TrimSpace(name)
		if p.Name == "" {
			return nil, fmt.Errorf("empty type parameter in %q", text)
		}
		params = append(params, p)
		bounds = append(bounds, strings.TrimSpace(bound))
	}
	scope := func(name string) (Type, bool) {
		for _, p := range params {
			if p.Name == name {
				return TParam{Name: p.Name}, true
			}
		}
		if resolve != nil {
			return resolve(name)
		}
		return resolveBuiltin(name)
	}
	for i, text := range bounds {
		if text == "" {
			continue
		}
		b, err := ParseType(text, scope)
		if err != nil {
			return nil, err
		}
		params[i].Bounds = []Type{b}
	}
	return params, nil
}

func parseClassHeader(name, params, supertypes string) (*ClassInfo, error) {
	return ParseClassHeader(name, params, supertypes, resolveBuiltin)
}

// ParseClassHeader builds a ClassInfo from its type parameter list and
// comma separated supertypes, both in type notation.
func ParseClassHeader(name, params, supertypes string, resolve NameResolver) (*ClassInfo, error) {
	if resolve == nil {
		resolve = resolveBuiltin
	}
	tps, err := ParseTypeParams(params, resolve)
	if err != nil {
		return nil, err
	}
	ci := &ClassInfo{Name: name, TypeParams: tps}
	scope := func(n string) (Type, bool) {
		for _, p := range tps {
			if p.Name == n {
				return p.Ref(), true
			}
		}
		return resolve(n)
	}
	if strings.TrimSpace(supertypes) == "" {
		return ci, nil
	}
	for _, s := range SplitTopLevel(supertypes, ',') {
		st, err := ParseType(s, scope)
		if err != nil {
			return nil, err
		}
		ci.Supertypes = append(ci.Supertypes, st)
	}
	return ci, nil
}

// SplitTopLevel splits on sep outside of angle brackets and parentheses.
// The arrow of a function type does not close a bracket.
func SplitTopLevel(s string, sep rune) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<', '(':
			depth++
		case '>':
			if i == 0 || s[i-1] != '-' {
				depth--
			}
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// IsNumeric reports whether t is one of the builtin numeric classes.
func IsNumeric(t Type) bool {
	c, ok := t.(TClass)
	if !ok || c.Nullable {
		return false
	}
	switch c.Name {
	case IntName, LongName, ShortName, ByteName, DoubleName, FloatName:
		return true
	}
	return false
}

// NumericallyMoreSpecific orders the builtin numeric types for overload
// ranking: Int before Long, Short and Byte; Short before Byte; Double
// before Float.
func NumericallyMoreSpecific(specific, general Type) bool {
	s, ok1 := specific.(TClass)
	g, ok2 := general.(TClass)
	if !ok1 || !ok2 || s.Nullable || g.Nullable {
		return false
	}
	switch s.Name {
	case IntName:
		return g.Name == LongName || g.Name == ShortName || g.Name == ByteName
	case ShortName:
		return g.Name == ByteName
	case DoubleName:
		return g.Name == FloatName
	}
	return false
}

func isNothing(t Type) bool {
	c, ok := t.(TClass)
	return ok && c.Name == NothingName
}

func isAny(t Type) bool {
	c, ok := t.(TClass)
	return ok && c.Name == AnyName
}

// IsNothing reports whether t is Nothing or Nothing?.
func IsNothing(t Type) bool { return isNothing(t) }

// IsUnit reports whether t is Unit.
func IsUnit(t Type) bool {
	c, ok := t.(TClass)
	return ok && c.Name == UnitName && !c.Nullable
}
