package typesystem

// maxDepth bounds recursion through type arguments and supertype chains.
// Exceeding it is treated as success, the co-inductive reading of recursive
// bounds such as T : Comparable<T>.
const maxDepth = 32

// Checker answers subtyping questions. It is stateless apart from its class
// resolver and safe for concurrent use when the resolver is.
type Checker struct {
	classes ClassResolver
}

// NewChecker returns a checker that looks classes up in classes first and in
// the builtins second. classes may be nil.
func NewChecker(classes ClassResolver) *Checker {
	return &Checker{classes: classes}
}

func (c *Checker) ClassInfo(name string) (*ClassInfo, bool) {
	if c.classes != nil {
		if ci, ok := c.classes.ClassInfo(name); ok {
			return ci, true
		}
	}
	return Builtins().ClassInfo(name)
}

// IsSubtypeOf reports whether sub <: super. Error types are compatible with
// everything.
func (c *Checker) IsSubtypeOf(sub, super Type) bool {
	return c.isSubtype(sub, super, 0)
}

// Equivalent reports mutual subtyping. For a flexible side (L..U) this is
// L <: other <: U.
func (c *Checker) Equivalent(a, b Type) bool {
	return c.isSubtype(a, b, 0) && c.isSubtype(b, a, 0)
}

func (c *Checker) isSubtype(a, b Type, depth int) bool {
	if depth > maxDepth {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if IsError(a) || IsError(b) {
		return true
	}
	if f, ok := b.(TFlexible); ok {
		return c.isSubtype(a, f.Upper, depth)
	}
	if f, ok := a.(TFlexible); ok {
		return c.isSubtype(f.Lower, b, depth)
	}

	switch at := a.(type) {
	case TParam:
		if bt, ok := b.(TParam); ok && bt.Name == at.Name {
			return !at.Nullable || bt.Nullable
		}
	case TVar:
		if bt, ok := b.(TVar); ok && bt.Name == at.Name {
			return !at.Nullable || bt.Nullable
		}
	}

	if c.MayBeNull(a) && !b.IsNullable() {
		// null reaches b only through a nullable type
		if !c.nullableIntersectionMember(a, b, depth) {
			return false
		}
	}
	a0, b0 := a.WithNullability(false), b.WithNullability(false)

	if isNothing(a0) || isAny(b0) {
		return true
	}
	if bt, ok := b0.(TIntersection); ok {
		for _, m := range bt.Types {
			if !c.isSubtype(a, m.WithNullability(b.IsNullable()), depth+1) {
				return false
			}
		}
		return true
	}

	switch at := a0.(type) {
	case TIntersection:
		for _, m := range at.Types {
			if c.isSubtype(m, b0, depth+1) {
				return true
			}
		}
		return false
	case TParam:
		if bt, ok := b0.(TParam); ok && bt.Name == at.Name {
			return true
		}
		for _, bound := range at.Bounds {
			if c.isSubtype(bound.WithNullability(false), b0, depth+1) {
				return true
			}
		}
		return false
	case TVar:
		bt, ok := b0.(TVar)
		return ok && bt.Name == at.Name
	case TClass:
		bt, ok := b0.(TClass)
		if !ok {
			return false
		}
		sup, found := c.supertypeAs(at, bt.Name, depth)
		if !found {
			return false
		}
		return c.argsSubtype(sup, bt, depth)
	}
	return false
}

// nullableIntersectionMember handles A? & B <: B style checks where a member
// already excludes null.
func (c *Checker) nullableIntersectionMember(a, b Type, depth int) bool {
	at, ok := a.(TIntersection)
	if !ok {
		return false
	}
	for _, m := range at.Types {
		if !c.MayBeNull(m) && c.isSubtype(m, b, depth+1) {
			return true
		}
	}
	return false
}

// MayBeNull reports whether a value of type t can be null. A type parameter
// without a non-null bound may be instantiated with a nullable type.
func (c *Checker) MayBeNull(t Type) bool {
	switch typ := t.(type) {
	case TParam:
		if typ.Nullable {
			return true
		}
		if len(typ.Bounds) == 0 {
			return true
		}
		for _, b := range typ.Bounds {
			if !c.MayBeNull(b) {
				return false
			}
		}
		return true
	case TIntersection:
		for _, m := range typ.Types {
			if !c.MayBeNull(m) {
				return false
			}
		}
		return true
	case TFlexible:
		return c.MayBeNull(typ.Lower)
	case nil:
		return false
	default:
		return t.IsNullable()
	}
}

func (c *Checker) argsSubtype(sub, super TClass, depth int) bool {
	ci, _ := c.ClassInfo(super.Name)
	for i, bArg := range super.Args {
		if bArg.IsStar() {
			continue
		}
		if i >= len(sub.Args) {
			continue
		}
		aArg := sub.Args[i]
		declared := Invariant
		var bounds []Type
		if ci != nil && i < len(ci.TypeParams) {
			declared = ci.TypeParams[i].Variance
			bounds = ci.TypeParams[i].Bounds
		}
		pos, ok := effectiveVariance(declared, bArg.Projection)
		if !ok {
			continue // conflicting projection reads as a star
		}
		if aArg.IsStar() {
			if pos != Covariant {
				return false
			}
			upper := NullableAny
			if len(bounds) > 0 {
				upper = bounds[0]
			}
			if !c.isSubtype(upper, bArg.Type, depth+1) {
				return false
			}
			continue
		}
		aPos, _ := effectiveVariance(declared, aArg.Projection)
		if aPos != Invariant && aPos != pos {
			return false
		}
		switch pos {
		case Covariant:
			if !c.isSubtype(aArg.Type, bArg.Type, depth+1) {
				return false
			}
		case Contravariant:
			if !c.isSubtype(bArg.Type, aArg.Type, depth+1) {
				return false
			}
		default:
			if !c.isSubtype(aArg.Type, bArg.Type, depth+1) || !c.isSubtype(bArg.Type, aArg.Type, depth+1) {
				return false
			}
		}
	}
	return true
}

// effectiveVariance combines declaration-site and use-site variance. ok is
// false when they contradict each other.
func effectiveVariance(declared, projection Variance) (Variance, bool) {
	if projection == Invariant {
		return declared, true
	}
	if declared != Invariant && declared != projection {
		return Invariant, false
	}
	return projection, true
}

// Supertype returns t viewed as an instance of the class named name, with
// type arguments substituted along the way.
func (c *Checker) Supertype(t Type, name string) (TClass, bool) {
	switch typ := t.(type) {
	case TClass:
		return c.supertypeAs(typ, name, 0)
	case TFlexible:
		return c.Supertype(typ.Lower, name)
	case TParam:
		for _, b := range typ.Bounds {
			if s, ok := c.Supertype(b, name); ok {
				return s, true
			}
		}
	case TIntersection:
		for _, m := range typ.Types {
			if s, ok := c.Supertype(m, name); ok {
				return s, true
			}
		}
	}
	if name == AnyName {
		return TClass{Name: AnyName}, true
	}
	return TClass{}, false
}

func (c *Checker) supertypeAs(t TClass, name string, depth int) (TClass, bool) {
	if t.Name == name {
		return t, true
	}
	if name == AnyName {
		return TClass{Name: AnyName, Nullable: t.Nullable}, true
	}
	if depth > maxDepth {
		return TClass{}, false
	}
	for _, st := range c.directSupertypes(t) {
		if s, ok := c.supertypeAs(st, name, depth+1); ok {
			return s, true
		}
	}
	return TClass{}, false
}

// directSupertypes returns the declared supertypes of t's class with t's
// type arguments substituted for the class parameters.
func (c *Checker) directSupertypes(t TClass) []TClass {
	ci, ok := c.ClassInfo(t.Name)
	if !ok {
		return nil
	}
	var result []TClass
	for _, st := range ci.Supertypes {
		sc, ok := substituteClassArgs(st, ci.TypeParams, t.Args).(TClass)
		if !ok {
			continue
		}
		sc.Nullable = t.Nullable
		result = append(result, sc)
	}
	return result
}

// substituteClassArgs replaces the class parameters params by args inside a
// supertype. A parameter standing alone as an argument takes over the
// argument's projection; nested occurrences use the projected type.
func substituteClassArgs(st Type, params []TypeParam, args []TypeArg) Type {
	if len(params) == 0 {
		return st
	}
	byName := make(map[string]TypeArg, len(params))
	plain := make(Subst, len(params))
	for i, p := range params {
		a := StarArg()
		if i < len(args) {
			a = args[i]
		}
		byName[p.Name] = a
		if a.IsStar() {
			if len(p.Bounds) > 0 {
				plain[p.Name] = p.Bounds[0]
			} else {
				plain[p.Name] = NullableAny
			}
		} else {
			plain[p.Name] = a.Type
		}
	}
	sc, ok := st.(TClass)
	if !ok {
		return st.Apply(plain)
	}
	newArgs := make([]TypeArg, len(sc.Args))
	for i, a := range sc.Args {
		if a.IsStar() {
			newArgs[i] = a
			continue
		}
		if tp, isParam := a.Type.(TParam); isParam {
			if repl, found := byName[tp.Name]; found {
				switch {
				case repl.IsStar():
					newArgs[i] = repl
				case tp.Nullable:
					newArgs[i] = TypeArg{Type: repl.Type.WithNullability(true), Projection: mergeProjection(a.Projection, repl.Projection)}
				default:
					newArgs[i] = TypeArg{Type: repl.Type, Projection: mergeProjection(a.Projection, repl.Projection)}
				}
				if newArgs[i].Projection == -1 {
					newArgs[i] = StarArg()
				}
				continue
			}
		}
		newArgs[i] = TypeArg{Type: a.Type.Apply(plain), Projection: a.Projection}
	}
	sc.Args = newArgs
	return sc
}

// mergeProjection returns -1 when the projections contradict.
func mergeProjection(outer, inner Variance) Variance {
	switch {
	case outer == Invariant:
		return inner
	case inner == Invariant || inner == outer:
		return outer
	default:
		return -1
	}
}

// Superclasses lists the classes of t and all its supertypes in
// breadth-first order without duplicates.
func (c *Checker) Superclasses(t Type) []TClass {
	var start []TClass
	switch typ := t.(type) {
	case TClass:
		start = []TClass{typ}
	case TFlexible:
		return c.Superclasses(typ.Lower)
	case TParam:
		if len(typ.Bounds) == 0 {
			return []TClass{{Name: AnyName}}
		}
		for _, b := range typ.Bounds {
			start = append(start, c.Superclasses(b)...)
		}
	case TIntersection:
		for _, m := range typ.Types {
			start = append(start, c.Superclasses(m)...)
		}
	default:
		return []TClass{{Name: AnyName}}
	}
	seen := make(map[string]bool)
	var result []TClass
	queue := start
	for len(queue) > 0 && len(result) < 256 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur.Name] {
			continue
		}
		seen[cur.Name] = true
		cur.Nullable = false
		result = append(result, cur)
		queue = append(queue, c.directSupertypes(cur)...)
	}
	if !seen[AnyName] {
		result = append(result, TClass{Name: AnyName})
	}
	return result
}

// IsSubclass reports whether class sub inherits from class super by name.
func (c *Checker) IsSubclass(sub, super string) bool {
	_, ok := c.supertypeAs(TClass{Name: sub}, super, 0)
	return ok
}
