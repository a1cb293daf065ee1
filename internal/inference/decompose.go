package inference

import (
	"github.com/funvibe/fir/internal/typesystem"
)

// absorb records an error operand as a bound of every open variable on the
// other side, so the variable is fixed to an error instead of Nothing.
func (s *System) absorb(sub, super typesystem.Type, reason string) {
	if typesystem.IsError(sub) {
		for _, tv := range super.FreeTypeVariables() {
			if v, ok := s.variable(tv.WithNullability(false)); ok {
				s.addLower(v, sub, reason)
			}
		}
		return
	}
	for _, tv := range sub.FreeTypeVariables() {
		if v, ok := s.variable(tv.WithNullability(false)); ok {
			s.addUpper(v, super, reason)
		}
	}
}

// process reduces one constraint to variable bounds, or checks it when
// both sides are proper.
func (s *System) process(c constraint) error {
	sub, super := s.apply(c.sub), s.apply(c.super)
	if typesystem.IsError(sub) || typesystem.IsError(super) {
		s.absorb(sub, super, c.reason)
		return nil
	}
	if s.isProper(sub) && s.isProper(super) {
		if s.checker.IsSubtypeOf(sub, super) {
			return nil
		}
		return &ContradictionError{Sub: sub, Super: super, Reason: c.reason}
	}

	// a variable on the left
	if tv, ok := sub.(typesystem.TVar); ok {
		if v, ok := s.variable(tv.WithNullability(false)); ok {
			if tv.Nullable {
				s.enqueue(typesystem.NullType, super, c.reason)
			}
			if sv, ok := super.(typesystem.TVar); ok && !sv.Nullable {
				if w, ok := s.variable(sv); ok {
					s.addUpper(v, super, c.reason)
					s.addLower(w, tv.WithNullability(false), c.reason)
					return nil
				}
			}
			s.addUpper(v, super, c.reason)
			return nil
		}
	}
	// a variable on the right; T? accepts the non-null part of sub
	if tv, ok := super.(typesystem.TVar); ok {
		if v, ok := s.variable(tv.WithNullability(false)); ok {
			if tv.Nullable {
				sub = sub.WithNullability(false)
			}
			s.addLower(v, sub, c.reason)
			return nil
		}
	}

	switch sp := super.(type) {
	case typesystem.TFlexible:
		s.enqueue(sub, sp.Upper, c.reason)
		return nil
	case typesystem.TIntersection:
		for _, m := range sp.Types {
			s.enqueue(sub, m, c.reason)
		}
		return nil
	}
	switch sb := sub.(type) {
	case typesystem.TFlexible:
		s.enqueue(sb.Lower, super, c.reason)
		return nil
	case typesystem.TIntersection:
		return s.intersectionSub(sb, super, c)
	case typesystem.TParam:
		if p, ok := super.(typesystem.TParam); ok && p.Name == sb.Name {
			return s.nullability(sub, super, c)
		}
		bound := typesystem.NullableAny
		if len(sb.Bounds) > 0 {
			bound = sb.Bounds[0]
		}
		if sb.Nullable {
			bound = bound.WithNullability(true)
		}
		s.enqueue(bound, super, c.reason)
		return nil
	}

	if s.checker.MayBeNull(sub) && !super.IsNullable() && !s.isNullableVariable(super) {
		return &ContradictionError{Sub: sub, Super: super, Reason: c.reason}
	}
	subClass, ok1 := sub.(typesystem.TClass)
	superClass, ok2 := super.(typesystem.TClass)
	if !ok1 || !ok2 {
		return &ContradictionError{Sub: sub, Super: super, Reason: c.reason}
	}
	if subClass.Name == typesystem.NothingName {
		return nil
	}
	return s.decomposeClasses(subClass, superClass, c)
}

func (s *System) isNullableVariable(t typesystem.Type) bool {
	tv, ok := t.(typesystem.TVar)
	return ok && tv.Nullable
}

func (s *System) nullability(sub, super typesystem.Type, c constraint) error {
	if sub.IsNullable() && !super.IsNullable() {
		return &ContradictionError{Sub: sub, Super: super, Reason: c.reason}
	}
	return nil
}

// intersectionSub handles A & B <: X: one member must satisfy it. A proper
// member that already does settles it; otherwise the first member whose
// class can reach X's class carries the constraint.
func (s *System) intersectionSub(sub typesystem.TIntersection, super typesystem.Type, c constraint) error {
	target, isClass := super.(typesystem.TClass)
	for _, m := range sub.Types {
		if s.isProper(m) && s.isProper(super) && s.checker.IsSubtypeOf(m, super) {
			return nil
		}
	}
	for _, m := range sub.Types {
		if !isClass {
			s.enqueue(m, super, c.reason)
			return nil
		}
		if _, ok := s.checker.Supertype(m, target.Name); ok {
			s.enqueue(m, super, c.reason)
			return nil
		}
	}
	return &ContradictionError{Sub: sub, Super: super, Reason: c.reason}
}

// decomposeClasses views sub as an instance of super's class and relates
// the type arguments according to variance.
func (s *System) decomposeClasses(sub, super typesystem.TClass, c constraint) error {
	view, ok := s.checker.Supertype(sub.WithNullability(false), super.Name)
	if !ok {
		return &ContradictionError{Sub: sub, Super: super, Reason: c.reason}
	}
	info, ok := s.checker.ClassInfo(super.Name)
	if !ok {
		return nil
	}
	for i, want := range super.Args {
		if want.IsStar() || i >= len(info.TypeParams) {
			continue
		}
		var have typesystem.TypeArg
		if i < len(view.Args) {
			have = view.Args[i]
		} else {
			have = typesystem.StarArg()
		}
		variance := info.TypeParams[i].Variance
		if want.Projection != typesystem.Invariant {
			variance = want.Projection
		}
		if have.IsStar() {
			bound := typesystem.NullableAny
			if bs := info.TypeParams[i].Bounds; len(bs) > 0 {
				bound = bs[0]
			}
			if variance != typesystem.Covariant {
				return &ContradictionError{Sub: sub, Super: super, Reason: c.reason}
			}
			s.enqueue(bound, want.Type, c.reason)
			continue
		}
		if have.Projection != typesystem.Invariant && have.Projection != variance {
			return &ContradictionError{Sub: sub, Super: super, Reason: c.reason}
		}
		switch variance {
		case typesystem.Covariant:
			s.enqueue(have.Type, want.Type, c.reason)
		case typesystem.Contravariant:
			s.enqueue(want.Type, have.Type, c.reason)
		default:
			s.enqueue(have.Type, want.Type, c.reason)
			s.enqueue(want.Type, have.Type, c.reason)
		}
	}
	return nil
}
