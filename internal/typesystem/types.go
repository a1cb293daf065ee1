package typesystem

import (
	"sort"
	"strings"
)

// Type is the interface for all types in our system.
// Types are immutable values; every operation returns a new type.
type Type interface {
	String() string
	Apply(Subst) Type
	FreeTypeVariables() []TVar
	IsNullable() bool
	WithNullability(nullable bool) Type
}

// Variance of a declared type parameter or of a use-site projection.
type Variance int

const (
	Invariant Variance = iota
	Covariant
	Contravariant
)

func (v Variance) String() string {
	switch v {
	case Covariant:
		return "out"
	case Contravariant:
		return "in"
	default:
		return ""
	}
}

// Flip swaps in and out.
func (v Variance) Flip() Variance {
	switch v {
	case Covariant:
		return Contravariant
	case Contravariant:
		return Covariant
	default:
		return Invariant
	}
}

// TypeArg is one argument of a class type. A nil Type is the star
// projection.
type TypeArg struct {
	Type       Type
	Projection Variance
}

func StarArg() TypeArg { return TypeArg{} }

func Arg(t Type) TypeArg { return TypeArg{Type: t} }

func OutArg(t Type) TypeArg { return TypeArg{Type: t, Projection: Covariant} }

func InArg(t Type) TypeArg { return TypeArg{Type: t, Projection: Contravariant} }

func (a TypeArg) IsStar() bool { return a.Type == nil }

func (a TypeArg) String() string {
	if a.IsStar() {
		return "*"
	}
	if a.Projection != Invariant {
		return a.Projection.String() + " " + a.Type.String()
	}
	return a.Type.String()
}

func (a TypeArg) apply(s Subst, visited map[string]bool) TypeArg {
	if a.IsStar() {
		return a
	}
	return TypeArg{Type: applyWithCycleCheck(a.Type, s, visited), Projection: a.Projection}
}

// TClass is a classifier type such as List<String>?. Name is the qualified
// class name.
type TClass struct {
	Name     string
	Args     []TypeArg
	Nullable bool
}

func (t TClass) String() string {
	var sb strings.Builder
	if n, ok := functionArity(t.Name); ok && len(t.Args) == n+1 {
		if t.Nullable {
			sb.WriteString("(")
		}
		sb.WriteString("(")
		for i := 0; i < n; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(argTypeString(t.Args[i]))
		}
		sb.WriteString(") -> ")
		sb.WriteString(argTypeString(t.Args[n]))
		if t.Nullable {
			sb.WriteString(")?")
		}
		return sb.String()
	}
	sb.WriteString(SimpleName(t.Name))
	if len(t.Args) > 0 {
		sb.WriteString("<")
		for i, a := range t.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.String())
		}
		sb.WriteString(">")
	}
	if t.Nullable {
		sb.WriteString("?")
	}
	return sb.String()
}

func argTypeString(a TypeArg) string {
	if a.IsStar() {
		return "*"
	}
	return a.Type.String()
}

func (t TClass) Apply(s Subst) Type { return applyWithCycleCheck(t, s, make(map[string]bool)) }

func (t TClass) FreeTypeVariables() []TVar {
	var vars []TVar
	for _, a := range t.Args {
		if !a.IsStar() {
			vars = append(vars, a.Type.FreeTypeVariables()...)
		}
	}
	return uniqueTVars(vars)
}

func (t TClass) IsNullable() bool { return t.Nullable }

func (t TClass) WithNullability(nullable bool) Type {
	t.Nullable = nullable
	return t
}

// TParam is a reference to a declared type parameter. Bounds are the
// declared upper bounds; no bounds means Any?.
type TParam struct {
	Name     string
	Bounds   []Type
	Nullable bool
}

func (t TParam) String() string {
	if t.Nullable {
		return t.Name + "?"
	}
	return t.Name
}

func (t TParam) Apply(s Subst) Type { return applyWithCycleCheck(t, s, make(map[string]bool)) }

func (t TParam) FreeTypeVariables() []TVar { return nil }

func (t TParam) IsNullable() bool { return t.Nullable }

func (t TParam) WithNullability(nullable bool) Type {
	t.Nullable = nullable
	return t
}

// TVar is an inference variable owned by one constraint system.
type TVar struct {
	Name     string
	Nullable bool
}

func (t TVar) String() string {
	if t.Nullable {
		return t.Name + "?"
	}
	return t.Name
}

func (t TVar) Apply(s Subst) Type { return applyWithCycleCheck(t, s, make(map[string]bool)) }

func (t TVar) FreeTypeVariables() []TVar { return []TVar{{Name: t.Name}} }

func (t TVar) IsNullable() bool { return t.Nullable }

func (t TVar) WithNullability(nullable bool) Type {
	t.Nullable = nullable
	return t
}

// TIntersection is A & B & ... Members are kept flattened, de-duplicated and
// sorted; build values with NewIntersection.
type TIntersection struct {
	Types []Type
}

func (t TIntersection) String() string {
	parts := make([]string, len(t.Types))
	for i, m := range t.Types {
		parts[i] = m.String()
	}
	return strings.Join(parts, " & ")
}

func (t TIntersection) Apply(s Subst) Type { return applyWithCycleCheck(t, s, make(map[string]bool)) }

func (t TIntersection) FreeTypeVariables() []TVar {
	var vars []TVar
	for _, m := range t.Types {
		vars = append(vars, m.FreeTypeVariables()...)
	}
	return uniqueTVars(vars)
}

// IsNullable holds when every member admits null.
func (t TIntersection) IsNullable() bool {
	for _, m := range t.Types {
		if !m.IsNullable() {
			return false
		}
	}
	return len(t.Types) > 0
}

func (t TIntersection) WithNullability(nullable bool) Type {
	members := make([]Type, len(t.Types))
	for i, m := range t.Types {
		members[i] = m.WithNullability(nullable)
	}
	return TIntersection{Types: members}
}

// TError is the type of an erroneous expression. It is compatible with
// everything so one mistake yields one diagnostic.
type TError struct {
	Reason string
}

func (t TError) String() string {
	if t.Reason == "" {
		return "<error>"
	}
	return "<error: " + t.Reason + ">"
}

func (t TError) Apply(Subst) Type { return t }
func (t TError) FreeTypeVariables() []TVar { return nil }
func (t TError) IsNullable() bool { return false }
func (t TError) WithNullability(bool) Type { return t }

// TFlexible is a platform type whose nullability is unknown: any type
// between Lower and Upper. Build values with NewFlexible.
type TFlexible struct {
	Lower Type
	Upper Type
}

func (t TFlexible) String() string {
	if Equal(t.Lower.WithNullability(true), t.Upper) {
		return t.Lower.String() + "!"
	}
	return "(" + t.Lower.String() + ".." + t.Upper.String() + ")"
}

func (t TFlexible) Apply(s Subst) Type { return applyWithCycleCheck(t, s, make(map[string]bool)) }

func (t TFlexible) FreeTypeVariables() []TVar {
	return uniqueTVars(append(t.Lower.FreeTypeVariables(), t.Upper.FreeTypeVariables()...))
}

func (t TFlexible) IsNullable() bool { return t.Lower.IsNullable() }

func (t TFlexible) WithNullability(nullable bool) Type {
	if nullable {
		return t.Upper.WithNullability(true)
	}
	return NewFlexible(t.Lower.WithNullability(false), t.Upper.WithNullability(false))
}

// Subst maps type parameter and inference variable names to types.
type Subst map[string]Type

// Compose returns a substitution equivalent to applying s2 and then s1.
func (s1 Subst) Compose(s2 Subst) Subst {
	result := make(Subst, len(s1)+len(s2))
	for k, v := range s2 {
		result[k] = v.Apply(s1)
	}
	for k, v := range s1 {
		if _, ok := result[k]; !ok {
			result[k] = v
		}
	}
	return result
}

// Substitute is t.Apply(s) that tolerates a nil type.
func Substitute(t Type, s Subst) Type {
	if t == nil || len(s) == 0 {
		return t
	}
	return t.Apply(s)
}

// applyWithCycleCheck applies substitution with cycle detection: a name being
// expanded is left as-is when it is reached again through its own
// replacement.
func applyWithCycleCheck(t Type, s Subst, visited map[string]bool) Type {
	switch typ := t.(type) {
	case nil:
		return nil
	case TVar:
		return replaceName(typ, typ.Name, typ.Nullable, s, visited)
	case TParam:
		if _, ok := s[typ.Name]; ok {
			return replaceName(typ, typ.Name, typ.Nullable, s, visited)
		}
		if len(typ.Bounds) == 0 {
			return typ
		}
		bounds := make([]Type, len(typ.Bounds))
		visited[typ.Name] = true
		for i, b := range typ.Bounds {
			bounds[i] = applyWithCycleCheck(b, s, visited)
		}
		delete(visited, typ.Name)
		typ.Bounds = bounds
		return typ
	case TClass:
		if len(typ.Args) == 0 {
			return typ
		}
		args := make([]TypeArg, len(typ.Args))
		for i, a := range typ.Args {
			args[i] = a.apply(s, visited)
		}
		typ.Args = args
		return typ
	case TIntersection:
		members := make([]Type, len(typ.Types))
		for i, m := range typ.Types {
			members[i] = applyWithCycleCheck(m, s, visited)
		}
		return NewIntersection(members...)
	case TFlexible:
		return NewFlexible(applyWithCycleCheck(typ.Lower, s, visited), applyWithCycleCheck(typ.Upper, s, visited))
	default:
		return t
	}
}

func replaceName(t Type, name string, nullable bool, s Subst, visited map[string]bool) Type {
	if visited[name] {
		return t
	}
	replacement, ok := s[name]
	if !ok {
		return t
	}
	switch r := replacement.(type) {
	case TVar:
		if r.Name == name {
			return t
		}
	case TParam:
		if r.Name == name {
			return t
		}
	}
	visited[name] = true
	result := applyWithCycleCheck(replacement, s, visited)
	delete(visited, name)
	if nullable {
		return result.WithNullability(true)
	}
	return result
}

func uniqueTVars(vars []TVar) []TVar {
	if len(vars) < 2 {
		return vars
	}
	seen := make(map[string]bool, len(vars))
	result := make([]TVar, 0, len(vars))
	for _, v := range vars {
		if !seen[v.Name] {
			seen[v.Name] = true
			result = append(result, v)
		}
	}
	return result
}

// HasTypeVariables reports whether t mentions an inference variable.
func HasTypeVariables(t Type) bool {
	return t != nil && len(t.FreeTypeVariables()) > 0
}

// TypeParams returns the names of declared type parameters mentioned in t,
// in first-occurrence order.
func TypeParams(t Type) []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(Type)
	walk = func(t Type) {
		switch typ := t.(type) {
		case TParam:
			if !seen[typ.Name] {
				seen[typ.Name] = true
				names = append(names, typ.Name)
			}
		case TClass:
			for _, a := range typ.Args {
				if !a.IsStar() {
					walk(a.Type)
				}
			}
		case TIntersection:
			for _, m := range typ.Types {
				walk(m)
			}
		case TFlexible:
			walk(typ.Lower)
			walk(typ.Upper)
		}
	}
	walk(t)
	return names
}

// NewIntersection flattens nested intersections, drops duplicates and sorts
// the members. A single member is returned as is; no members yields Any?.
// Any error member makes the whole result an error.
func NewIntersection(types ...Type) Type {
	var flat []Type
	for _, t := range types {
		switch typ := t.(type) {
		case TError:
			return typ
		case TIntersection:
			flat = append(flat, typ.Types...)
		case nil:
		default:
			flat = append(flat, typ)
		}
	}
	seen := make(map[string]bool, len(flat))
	members := make([]Type, 0, len(flat))
	for _, m := range flat {
		k := Key(m)
		if seen[k] {
			continue
		}
		seen[k] = true
		members = append(members, m)
	}
	switch len(members) {
	case 0:
		return NullableAny
	case 1:
		return members[0]
	}
	sort.Slice(members, func(i, j int) bool { return Key(members[i]) < Key(members[j]) })
	return TIntersection{Types: members}
}

// NewFlexible builds (lower..upper), collapsing equal bounds and nested
// flexible types.
func NewFlexible(lower, upper Type) Type {
	if f, ok := lower.(TFlexible); ok {
		lower = f.Lower
	}
	if f, ok := upper.(TFlexible); ok {
		upper = f.Upper
	}
	if _, ok := lower.(TError); ok {
		return lower
	}
	if _, ok := upper.(TError); ok {
		return upper
	}
	if Equal(lower, upper) {
		return lower
	}
	return TFlexible{Lower: lower, Upper: upper}
}

// Platform turns a type coming from foreign code into a flexible type whose
// nullability is unknown, recursively through type arguments.
func Platform(t Type) Type {
	switch typ := t.(type) {
	case TClass:
		if len(typ.Args) > 0 {
			args := make([]TypeArg, len(typ.Args))
			for i, a := range typ.Args {
				if a.IsStar() {
					args[i] = a
					continue
				}
				args[i] = TypeArg{Type: Platform(a.Type), Projection: a.Projection}
			}
			typ.Args = args
		}
		return NewFlexible(typ.WithNullability(false), typ.WithNullability(true))
	case TParam:
		return NewFlexible(typ.WithNullability(false), typ.WithNullability(true))
	default:
		return t
	}
}

// Key is a canonical, unique rendering of t used for equality and ordering.
// Unlike String it keeps qualified names.
func Key(t Type) string {
	var sb strings.Builder
	writeKey(&sb, t)
	return sb.String()
}

func writeKey(sb *strings.Builder, t Type) {
	switch typ := t.(type) {
	case nil:
		sb.WriteString("<nil>")
	case TClass:
		sb.WriteString(typ.Name)
		if len(typ.Args) > 0 {
			sb.WriteString("<")
			for i, a := range typ.Args {
				if i > 0 {
					sb.WriteString(",")
				}
				if a.IsStar() {
					sb.WriteString("*")
					continue
				}
				if a.Projection != Invariant {
					sb.WriteString(a.Projection.String())
					sb.WriteString(" ")
				}
				writeKey(sb, a.Type)
			}
			sb.WriteString(">")
		}
		if typ.Nullable {
			sb.WriteString("?")
		}
	case TParam:
		sb.WriteString("'")
		sb.WriteString(typ.Name)
		if typ.Nullable {
			sb.WriteString("?")
		}
	case TVar:
		sb.WriteString("$")
		sb.WriteString(typ.Name)
		if typ.Nullable {
			sb.WriteString("?")
		}
	case TIntersection:
		sb.WriteString("{")
		for i, m := range typ.Types {
			if i > 0 {
				sb.WriteString("&")
			}
			writeKey(sb, m)
		}
		sb.WriteString("}")
	case TFlexible:
		sb.WriteString("(")
		writeKey(sb, typ.Lower)
		sb.WriteString("..")
		writeKey(sb, typ.Upper)
		sb.WriteString(")")
	case TError:
		sb.WriteString("!error")
	default:
		sb.WriteString(t.String())
	}
}

// Equal is structural equality of normalized types. Error types are equal
// to each other regardless of their reason.
func Equal(a, b Type) bool {
	return Key(a) == Key(b)
}

// Normalize rebuilds composite types through their constructors so that
// intersections are flattened and sorted and trivial flexible types
// collapse.
func Normalize(t Type) Type {
	switch typ := t.(type) {
	case TClass:
		if len(typ.Args) == 0 {
			return typ
		}
		args := make([]TypeArg, len(typ.Args))
		for i, a := range typ.Args {
			if a.IsStar() {
				args[i] = a
				continue
			}
			args[i] = TypeArg{Type: Normalize(a.Type), Projection: a.Projection}
		}
		typ.Args = args
		return typ
	case TIntersection:
		members := make([]Type, len(typ.Types))
		for i, m := range typ.Types {
			members[i] = Normalize(m)
		}
		return NewIntersection(members...)
	case TFlexible:
		return NewFlexible(Normalize(typ.Lower), Normalize(typ.Upper))
	default:
		return t
	}
}

// IsError reports whether t is or contains an error type at the top level.
func IsError(t Type) bool {
	switch typ := t.(type) {
	case TError:
		return true
	case TFlexible:
		return IsError(typ.Lower) || IsError(typ.Upper)
	default:
		return false
	}
}

// ContainsError reports whether an error type occurs anywhere inside t.
func ContainsError(t Type) bool {
	switch typ := t.(type) {
	case TError:
		return true
	case TClass:
		for _, a := range typ.Args {
			if !a.IsStar() && ContainsError(a.Type) {
				return true
			}
		}
	case TIntersection:
		for _, m := range typ.Types {
			if ContainsError(m) {
				return true
			}
		}
	case TFlexible:
		return ContainsError(typ.Lower) || ContainsError(typ.Upper)
	case TParam:
		for _, b := range typ.Bounds {
			if ContainsError(b) {
				return true
			}
		}
	}
	return false
}

// SimpleName strips the package and outer class prefix of a qualified name.
func SimpleName(qualified string) string {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}
