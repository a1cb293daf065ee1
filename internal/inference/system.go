package inference

import (
	"context"
	"fmt"

	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/rs/zerolog"
)

// DefaultMaxIterations bounds the constraint steps of one Solve.
const DefaultMaxIterations = 10000

// Variable is an inference variable and the bounds collected for it.
type Variable struct {
	Name   string
	Origin string // the type parameter it was created for
	Lower  []typesystem.Type
	Upper  []typesystem.Type
	Fixed  typesystem.Type
	index  int
}

// PendingLambda is a lambda argument whose body can only be analyzed once
// its parameter types are known.
type PendingLambda struct {
	Params []typesystem.Type
	Return typesystem.Type
	// Analyze types the body with the given parameter types and returns
	// the type of its result.
	Analyze func(ctx context.Context, params []typesystem.Type) (typesystem.Type, error)

	// Filled in by Solve.
	FixedParams []typesystem.Type
	Result      typesystem.Type
}

type constraint struct {
	sub, super typesystem.Type
	reason     string
}

// System is the constraint system of one resolution attempt. It is not
// safe for concurrent use.
type System struct {
	checker *typesystem.Checker
	vars    map[string]*Variable
	order   []*Variable
	queue   []constraint
	initial []constraint
	lambdas []*PendingLambda
	seen    map[string]bool

	maxIterations int
	steps         int
	logger        zerolog.Logger
}

type Option func(*System) *System

func WithMaxIterations(n int) Option {
	return func(s *System) *System {
		if n > 0 {
			s.maxIterations = n
		}
		return s
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *System) *System {
		s.logger = logger
		return s
	}
}

func NewSystem(checker *typesystem.Checker, options ...Option) *System {
	if checker == nil {
		checker = typesystem.NewChecker(nil)
	}
	s := &System{
		checker:       checker,
		vars:          make(map[string]*Variable),
		seen:          make(map[string]bool),
		maxIterations: DefaultMaxIterations,
		logger:        zerolog.Nop(),
	}
	for _, opt := range options {
		s = opt(s)
	}
	return s
}

// Fresh creates one variable per type parameter and adds the declared
// bounds as upper constraints. The returned substitution maps each
// parameter name to its variable.
func (s *System) Fresh(params []typesystem.TypeParam) (typesystem.Subst, []typesystem.TVar) {
	subst := make(typesystem.Subst, len(params))
	vars := make([]typesystem.TVar, 0, len(params))
	for _, p := range params {
		v := &Variable{Name: fmt.Sprintf("%s#%d", p.Name, len(s.order)), Origin: p.Name, index: len(s.order)}
		s.vars[v.Name] = v
		s.order = append(s.order, v)
		tv := typesystem.TVar{Name: v.Name}
		subst[p.Name] = tv
		vars = append(vars, tv)
	}
	for i, p := range params {
		for _, b := range p.Bounds {
			s.AddSubtype(vars[i], b.Apply(subst), "upper bound of "+p.Name)
		}
	}
	return subst, vars
}

// Variables lists the variables in creation order.
func (s *System) Variables() []*Variable { return s.order }

// AddSubtype records sub <: super.
func (s *System) AddSubtype(sub, super typesystem.Type, reason string) {
	c := constraint{sub: sub, super: super, reason: reason}
	s.initial = append(s.initial, c)
	s.queue = append(s.queue, c)
}

// AddEqual records a = b.
func (s *System) AddEqual(a, b typesystem.Type, reason string) {
	s.AddSubtype(a, b, reason)
	s.AddSubtype(b, a, reason)
}

// AddLambda queues a lambda for the second phase.
func (s *System) AddLambda(l *PendingLambda) {
	s.lambdas = append(s.lambdas, l)
}

// Solve runs propagation to a fixpoint, analyzes pending lambdas once their
// parameter types are fixed, fixes the remaining variables and checks every
// recorded constraint against the result.
func (s *System) Solve(ctx context.Context) (typesystem.Subst, error) {
	if err := s.propagate(ctx); err != nil {
		return nil, err
	}
	for len(s.lambdas) > 0 {
		l := s.lambdas[0]
		s.lambdas = s.lambdas[1:]
		if err := s.fixAll(ctx, freeVars(l.Params...)); err != nil {
			return nil, err
		}
		params := make([]typesystem.Type, len(l.Params))
		for i, p := range l.Params {
			params[i] = s.apply(p)
		}
		l.FixedParams = params
		result, err := l.Analyze(ctx, params)
		if err != nil {
			return nil, err
		}
		l.Result = result
		ret := s.apply(l.Return)
		if result != nil && !typesystem.IsUnit(ret) {
			s.AddSubtype(result, l.Return, "lambda result")
		}
		if err := s.propagate(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.fixAll(ctx, nil); err != nil {
		return nil, err
	}
	subst := s.Substitution()
	for _, c := range s.initial {
		sub, super := c.sub.Apply(subst), c.super.Apply(subst)
		if !s.checker.IsSubtypeOf(sub, super) {
			return nil, &ContradictionError{Sub: sub, Super: super, Reason: c.reason}
		}
	}
	return subst, nil
}

// Substitution maps every fixed variable to its value.
func (s *System) Substitution() typesystem.Subst {
	subst := make(typesystem.Subst, len(s.order))
	for _, v := range s.order {
		if v.Fixed != nil {
			subst[v.Name] = v.Fixed
		}
	}
	return subst
}

func (s *System) apply(t typesystem.Type) typesystem.Type {
	return t.Apply(s.Substitution())
}

func (s *System) propagate(ctx context.Context) error {
	for len(s.queue) > 0 {
		s.steps++
		if s.steps > s.maxIterations {
			return &IterationLimitError{Limit: s.maxIterations}
		}
		if err := diagnostics.CheckCancelled(ctx); err != nil {
			return err
		}
		c := s.queue[0]
		s.queue = s.queue[1:]
		if err := s.process(c); err != nil {
			return err
		}
	}
	return nil
}

// fixAll fixes the unfixed variables among names (all when names is nil),
// preferring variables that already have proper bounds.
func (s *System) fixAll(ctx context.Context, names []string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	for {
		var pick *Variable
		for _, v := range s.order {
			if v.Fixed != nil || (names != nil && !want[v.Name]) {
				continue
			}
			if pick == nil {
				pick = v
			}
			if s.hasProperBound(v) {
				pick = v
				break
			}
		}
		if pick == nil {
			return nil
		}
		s.fix(pick)
		if err := s.propagate(ctx); err != nil {
			return err
		}
	}
}

func (s *System) hasProperBound(v *Variable) bool {
	for _, b := range append(append([]typesystem.Type(nil), v.Lower...), v.Upper...) {
		if s.isProper(s.apply(b)) {
			return true
		}
	}
	return false
}

// fix chooses the value of v: the least upper bound of its proper lower
// bounds, else the greatest lower bound of its proper upper bounds, else
// Nothing. A variable bounded by an error type is fixed to that error.
func (s *System) fix(v *Variable) {
	var lowers, uppers []typesystem.Type
	for _, b := range v.Lower {
		if b = s.apply(b); s.isProper(b) {
			lowers = append(lowers, b)
		}
	}
	for _, b := range v.Upper {
		if b = s.apply(b); s.isProper(b) {
			uppers = append(uppers, b)
		}
	}
	var value typesystem.Type
	switch {
	case firstError(lowers, uppers) != nil:
		value = firstError(lowers, uppers)
	case len(lowers) > 0:
		value = s.checker.LeastUpperBound(lowers...)
	case len(uppers) > 0:
		value = s.checker.GreatestLowerBound(uppers...)
	default:
		value = typesystem.Nothing
	}
	v.Fixed = value
	s.logger.Debug().Str("var", v.Name).Str("value", value.String()).Msg("fixed")
	// constraints seen while v was open must be looked at again
	s.seen = make(map[string]bool)
	self := typesystem.TVar{Name: v.Name}
	for _, b := range v.Lower {
		s.enqueue(b, self, "fixed "+v.Origin)
	}
	for _, b := range v.Upper {
		s.enqueue(self, b, "fixed "+v.Origin)
	}
}

func firstError(groups ...[]typesystem.Type) typesystem.Type {
	for _, g := range groups {
		for _, t := range g {
			if typesystem.IsError(t) {
				return t
			}
		}
	}
	return nil
}

// isProper reports whether t mentions no unfixed variable of this system.
func (s *System) isProper(t typesystem.Type) bool {
	for _, tv := range t.FreeTypeVariables() {
		if v, ok := s.vars[tv.Name]; ok && v.Fixed == nil {
			return false
		}
	}
	return true
}

func (s *System) enqueue(sub, super typesystem.Type, reason string) {
	key := typesystem.Key(sub) + "<:" + typesystem.Key(super)
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.queue = append(s.queue, constraint{sub: sub, super: super, reason: reason})
}

func (s *System) variable(t typesystem.Type) (*Variable, bool) {
	tv, ok := t.(typesystem.TVar)
	if !ok {
		return nil, false
	}
	v, ok := s.vars[tv.Name]
	if !ok || v.Fixed != nil {
		return nil, false
	}
	return v, true
}

func (s *System) addUpper(v *Variable, bound typesystem.Type, reason string) {
	for _, u := range v.Upper {
		if typesystem.Equal(u, bound) {
			return
		}
	}
	v.Upper = append(v.Upper, bound)
	for _, l := range v.Lower {
		s.enqueue(l, bound, reason)
	}
}

func (s *System) addLower(v *Variable, bound typesystem.Type, reason string) {
	for _, l := range v.Lower {
		if typesystem.Equal(l, bound) {
			return
		}
	}
	v.Lower = append(v.Lower, bound)
	for _, u := range v.Upper {
		s.enqueue(bound, u, reason)
	}
}

// freeVars lists the variable names mentioned by ts without duplicates.
func freeVars(ts ...typesystem.Type) []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range ts {
		for _, tv := range t.FreeTypeVariables() {
			if !seen[tv.Name] {
				seen[tv.Name] = true
				names = append(names, tv.Name)
			}
		}
	}
	if names == nil {
		names = []string{}
	}
	return names
}
