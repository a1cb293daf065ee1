package typesystem

// maxLubDepth limits how deep LeastUpperBound recurses into covariant type
// arguments before falling back to a star projection.
const maxLubDepth = 3

// LeastUpperBound computes the most specific common supertype. Several
// incomparable minimal common supertypes form an intersection, so
// lub(Int, String) is Comparable<*> & Serializable.
func (c *Checker) LeastUpperBound(types ...Type) Type {
	return c.lub(types, 0)
}

func (c *Checker) lub(types []Type, depth int) Type {
	if len(types) == 0 {
		return Nothing
	}
	for _, t := range types {
		if IsError(t) {
			return t
		}
	}
	for _, t := range types {
		if _, ok := t.(TFlexible); ok {
			lowers := make([]Type, len(types))
			uppers := make([]Type, len(types))
			for i, t := range types {
				if f, ok := t.(TFlexible); ok {
					lowers[i], uppers[i] = f.Lower, f.Upper
				} else {
					lowers[i], uppers[i] = t, t
				}
			}
			return NewFlexible(c.lub(lowers, depth), c.lub(uppers, depth))
		}
	}

	nullable := false
	var rest []Type
	seen := make(map[string]bool)
	for _, t := range types {
		if t.IsNullable() {
			nullable = true
		}
		t0 := t.WithNullability(false)
		if isNothing(t0) {
			continue
		}
		if k := Key(t0); !seen[k] {
			seen[k] = true
			rest = append(rest, t0)
		}
	}
	if len(rest) == 0 {
		return Nothing.WithNullability(nullable)
	}
	for _, cand := range rest {
		all := true
		for _, other := range rest {
			if !c.isSubtype(other, cand, 0) {
				all = false
				break
			}
		}
		if all {
			return cand.WithNullability(nullable)
		}
	}

	closures := make([][]TClass, len(rest))
	for i, t := range rest {
		closures[i] = c.Superclasses(t)
	}
	var common []string
	for _, sc := range closures[0] {
		inAll := true
		for _, other := range closures[1:] {
			if _, ok := findClass(other, sc.Name); !ok {
				inAll = false
				break
			}
		}
		if inAll {
			common = append(common, sc.Name)
		}
	}

	var minimal []string
	for _, n := range common {
		dominated := false
		for _, m := range common {
			if m != n && c.IsSubclass(m, n) {
				dominated = true
				break
			}
		}
		if !dominated {
			minimal = append(minimal, n)
		}
	}

	var members []Type
	for _, name := range minimal {
		members = append(members, c.commonInstance(name, closures, depth))
	}
	if len(members) == 0 {
		return Any.WithNullability(nullable)
	}
	return NewIntersection(members...).WithNullability(nullable)
}

func findClass(list []TClass, name string) (TClass, bool) {
	for _, c := range list {
		if c.Name == name {
			return c, true
		}
	}
	return TClass{}, false
}

// commonInstance merges the instances of class name found in every closure.
// Equal arguments are kept; covariant ones are merged recursively; anything
// else becomes a star projection.
func (c *Checker) commonInstance(name string, closures [][]TClass, depth int) Type {
	ci, _ := c.ClassInfo(name)
	first, _ := findClass(closures[0], name)
	if ci == nil || len(ci.TypeParams) == 0 {
		return TClass{Name: name}
	}
	result := TClass{Name: name, Args: make([]TypeArg, len(ci.TypeParams))}
	for p, param := range ci.TypeParams {
		var args []TypeArg
		for _, closure := range closures {
			inst, _ := findClass(closure, name)
			if p < len(inst.Args) {
				args = append(args, inst.Args[p])
			} else {
				args = append(args, StarArg())
			}
		}
		result.Args[p] = c.mergeArgs(param, args, depth)
	}
	if len(first.Args) == 0 && len(ci.TypeParams) > 0 {
		// raw reference to a generic class
		for i := range result.Args {
			result.Args[i] = StarArg()
		}
	}
	return result
}

func (c *Checker) mergeArgs(param TypeParam, args []TypeArg, depth int) TypeArg {
	allEqual := true
	for _, a := range args {
		if a.IsStar() {
			return StarArg()
		}
		if a.Projection != args[0].Projection || !Equal(a.Type, args[0].Type) {
			allEqual = false
		}
	}
	if allEqual {
		return args[0]
	}
	covariant := param.Variance == Covariant
	if !covariant {
		covariant = true
		for _, a := range args {
			if a.Projection != Covariant {
				covariant = false
				break
			}
		}
	}
	if !covariant || depth >= maxLubDepth {
		return StarArg()
	}
	types := make([]Type, len(args))
	for i, a := range args {
		types[i] = a.Type
	}
	merged := c.lub(types, depth+1)
	if param.Variance == Covariant {
		return Arg(merged)
	}
	return OutArg(merged)
}

// Intersect computes the greatest lower bound: members that are supertypes
// of other members are dropped, Any is dropped, Nothing absorbs.
func (c *Checker) Intersect(types ...Type) Type {
	if len(types) == 0 {
		return NullableAny
	}
	nullable := true
	var flat []Type
	for _, t := range types {
		if IsError(t) {
			return t
		}
		if !t.IsNullable() {
			nullable = false
		}
		if it, ok := t.(TIntersection); ok {
			flat = append(flat, it.Types...)
			continue
		}
		flat = append(flat, t)
	}
	var members []Type
	for i, t := range flat {
		t0 := t.WithNullability(false)
		if isNothing(t0) {
			return Nothing.WithNullability(nullable)
		}
		if isAny(t0) {
			continue
		}
		redundant := false
		for j, other := range flat {
			if i == j {
				continue
			}
			o0 := other.WithNullability(false)
			if isAny(o0) || !c.isSubtype(o0, t0, 0) {
				continue
			}
			// keep the first of two equivalent members
			if c.isSubtype(t0, o0, 0) && i < j {
				continue
			}
			redundant = true
			break
		}
		if !redundant {
			members = append(members, t0)
		}
	}
	if len(members) == 0 {
		return Any.WithNullability(nullable)
	}
	return NewIntersection(members...).WithNullability(nullable)
}

// GreatestLowerBound is Intersect.
func (c *Checker) GreatestLowerBound(types ...Type) Type {
	return c.Intersect(types...)
}
