package calls

import (
	"fmt"
	"strconv"

	"github.com/funvibe/fir/internal/scopes"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
)

// shape is the callable view of a candidate: what the call is checked
// against once members have been specialized to their receiver.
type shape struct {
	typeParams []typesystem.TypeParam
	// receiver is the declared extension receiver, nil for the rest.
	receiver typesystem.Type
	params   []symbols.Param
	ret      typesystem.Type
	// dispatch maps the owner class parameters of a member to the
	// arguments of the instance it was found on.
	dispatch typesystem.Subst
	invoke   bool
}

func (s *shape) generic() bool { return len(s.typeParams) > 0 }

func (s *shape) vararg() bool {
	return len(s.params) > 0 && s.params[len(s.params)-1].Vararg
}

// specialize applies the dispatch substitution.
func (s *shape) specialize(t typesystem.Type) typesystem.Type {
	return typesystem.Substitute(t, s.dispatch)
}

// shapeOf builds the shape of f for call. It returns a status other than
// Applicable when the symbol cannot be the target of this kind of
// reference at all.
func (r *Resolver) shapeOf(f scopes.Found, call Call) (*shape, Status, error) {
	sym := f.Symbol
	s := &shape{dispatch: r.dispatchSubst(f)}
	sig := sym.Signature

	if call.Property {
		if !sym.Kind.IsValue() {
			return nil, NotAValue, fmt.Errorf("%s is not a value", sym)
		}
		s.typeParams = sig.TypeParams
		s.receiver = s.specialize(sig.Receiver)
		s.ret = s.specialize(sym.Type())
		return s, Applicable, nil
	}

	switch sym.Kind {
	case symbols.FunctionSymbol:
		s.typeParams = sig.TypeParams
		s.receiver = s.specialize(sig.Receiver)
		s.params = make([]symbols.Param, len(sig.Params))
		for i, p := range sig.Params {
			p.Type = s.specialize(p.Type)
			s.params[i] = p
		}
		s.ret = s.specialize(sig.Return)
	case symbols.ClassSymbol:
		s.typeParams = sig.TypeParams
		s.params = sig.Params
		s.ret = sym.ClassInfo().Type()
	case symbols.PropertySymbol, symbols.ParameterSymbol, symbols.LocalSymbol:
		// a value of function type called through invoke
		typ := s.specialize(sym.Type())
		params, ret, ok := typesystem.FunctionParts(typ)
		if !ok {
			return nil, NotCallable, fmt.Errorf("expression of type %s cannot be invoked as a function", typ)
		}
		s.typeParams = sig.TypeParams
		s.receiver = s.specialize(sig.Receiver)
		for i, p := range params {
			s.params = append(s.params, symbols.Param{Name: "p" + strconv.Itoa(i+1), Type: p})
		}
		s.ret = ret
		s.invoke = true
	default:
		return nil, NotCallable, fmt.Errorf("%s is not callable", sym)
	}
	if s.ret == nil {
		s.ret = typesystem.Unit
	}
	return s, Applicable, nil
}

// dispatchSubst maps the type parameters of a member's owner class to the
// type arguments of the receiver instance the member was found on. Star
// arguments become the parameter's bound.
func (r *Resolver) dispatchSubst(f scopes.Found) typesystem.Subst {
	if !f.Member || f.Receiver == nil {
		return nil
	}
	info, ok := r.checker.ClassInfo(f.Symbol.Owner)
	if !ok || len(info.TypeParams) == 0 {
		return nil
	}
	instance, ok := r.checker.Supertype(f.Receiver, info.Name)
	if !ok {
		return nil
	}
	subst := make(typesystem.Subst, len(info.TypeParams))
	for i, p := range info.TypeParams {
		if i < len(instance.Args) && !instance.Args[i].IsStar() {
			subst[p.Name] = instance.Args[i].Type
			continue
		}
		bound := typesystem.NullableAny
		if len(p.Bounds) > 0 {
			bound = p.Bounds[0]
		}
		subst[p.Name] = bound
	}
	return subst
}
