package calls

import (
	"context"

	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/inference"
	"github.com/funvibe/fir/internal/typesystem"
)

// rank returns the most specific of the applicable candidates: a single
// one on success, the tied ones otherwise. Specificity is decided first
// without and then with preferring non-generic candidates; when no
// candidate beats all others, the undominated ones are narrowed by
// proximity (members before extensions, then the closer scope).
func (r *Resolver) rank(ctx context.Context, cs []*Candidate) ([]*Candidate, error) {
	for _, discriminate := range []bool{false, true} {
		if err := diagnostics.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		if best := r.maximallySpecific(ctx, cs, discriminate); best != nil {
			return []*Candidate{best}, nil
		}
	}
	return nearest(r.undominated(ctx, cs)), nil
}

// maximallySpecific returns the candidate that is strictly more specific
// than every other one, or nil.
func (r *Resolver) maximallySpecific(ctx context.Context, cs []*Candidate, discriminate bool) *Candidate {
	var found *Candidate
	for _, me := range cs {
		maximal := true
		for _, other := range cs {
			if other == me {
				continue
			}
			if !r.moreSpecific(ctx, me, other, discriminate) || r.moreSpecific(ctx, other, me, discriminate) {
				maximal = false
				break
			}
		}
		if maximal {
			if found != nil {
				return nil
			}
			found = me
		}
	}
	return found
}

// undominated drops the candidates some other candidate is strictly more
// specific than.
func (r *Resolver) undominated(ctx context.Context, cs []*Candidate) []*Candidate {
	var result []*Candidate
	for _, me := range cs {
		dominated := false
		for _, other := range cs {
			if other != me && r.moreSpecific(ctx, other, me, true) && !r.moreSpecific(ctx, me, other, true) {
				dominated = true
				break
			}
		}
		if !dominated {
			result = append(result, me)
		}
	}
	return result
}

// nearest keeps the members when there are any, then the candidates of
// the smallest scope depth.
func nearest(cs []*Candidate) []*Candidate {
	var members []*Candidate
	for _, c := range cs {
		if c.Found.Member {
			members = append(members, c)
		}
	}
	if len(members) > 0 {
		cs = members
	}
	depth := cs[0].Found.Depth
	for _, c := range cs[1:] {
		depth = min(depth, c.Found.Depth)
	}
	var result []*Candidate
	for _, c := range cs {
		if c.Found.Depth == depth {
			result = append(result, c)
		}
	}
	return result
}

// moreSpecific reports whether a is at least as specific as b for this
// call: a's extension receiver and the parameter types a maps the
// arguments to are subtypes (or numerically more specific) of b's. The
// type parameters of b are inferred, those of a stay rigid.
func (r *Resolver) moreSpecific(ctx context.Context, a, b *Candidate, discriminate bool) bool {
	sa, sb := a.shape, b.shape
	if discriminate {
		if !sa.generic() && sb.generic() {
			return true
		}
		if sa.generic() && !sb.generic() {
			return false
		}
	}

	sys := inference.NewSystem(r.checker, inference.WithMaxIterations(r.maxIterations))
	fresh, _ := sys.Fresh(sb.typeParams)
	pending := false
	moreSpecificType := func(specific, general typesystem.Type) bool {
		general = typesystem.Substitute(general, fresh)
		if typesystem.HasTypeVariables(general) {
			sys.AddSubtype(specific, general, "specificity")
			pending = true
			return true
		}
		return r.checker.IsSubtypeOf(specific, general) || typesystem.NumericallyMoreSpecific(specific, general)
	}

	if sa.receiver != nil && sb.receiver != nil && !moreSpecificType(sa.receiver, sb.receiver) {
		return false
	}
	if !sa.vararg() && sb.vararg() {
		return true
	}
	if sa.vararg() && !sb.vararg() {
		return false
	}
	for i := range a.Mapping {
		pa := sa.params[a.Mapping[i]].Type
		pb := sb.params[b.Mapping[i]].Type
		if !moreSpecificType(pa, pb) {
			return false
		}
	}
	if !pending {
		return true
	}
	_, err := sys.Solve(ctx)
	return err == nil
}
