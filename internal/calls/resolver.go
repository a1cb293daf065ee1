package calls

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/inference"
	"github.com/funvibe/fir/internal/scopes"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/rs/zerolog"
)

// Resolver picks the target of a call among the candidates a scope lookup
// produced. It holds no per-call state and may be shared.
type Resolver struct {
	checker       *typesystem.Checker
	maxIterations int
	logger        zerolog.Logger
}

type Option func(*Resolver) *Resolver

// WithMaxIterations caps the constraint steps of each candidate's solve.
func WithMaxIterations(n int) Option {
	return func(r *Resolver) *Resolver {
		if n > 0 {
			r.maxIterations = n
		}
		return r
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) *Resolver {
		r.logger = logger
		return r
	}
}

func NewResolver(checker *typesystem.Checker, options ...Option) *Resolver {
	if checker == nil {
		checker = typesystem.NewChecker(nil)
	}
	r := &Resolver{
		checker:       checker,
		maxIterations: inference.DefaultMaxIterations,
		logger:        zerolog.Nop(),
	}
	for _, opt := range options {
		r = opt(r)
	}
	return r
}

// ResolveCall returns the winning candidate. The error is an
// *AmbiguityError, an *UnresolvedError or a cancellation error.
func (r *Resolver) ResolveCall(ctx context.Context, found []scopes.Found, call Call) (*Candidate, error) {
	result, err := r.ResolveCallDetailed(ctx, found, call)
	if err != nil {
		return nil, err
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Winner, nil
}

// ResolveCallDetailed checks every candidate and ranks the applicable
// ones. Only cancellation is returned as an error; resolution failures are
// in Result.Err.
func (r *Resolver) ResolveCallDetailed(ctx context.Context, found []scopes.Found, call Call) (*Result, error) {
	ordered := make([]scopes.Found, len(found))
	copy(ordered, found)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Depth < ordered[j].Depth })

	result := &Result{}
	var applicable []*Candidate
	for i := range ordered {
		if err := diagnostics.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		c, err := r.check(ctx, ordered[i], call)
		if err != nil {
			return nil, err
		}
		c.order = i
		result.Candidates = append(result.Candidates, c)
		if c.Status == Applicable {
			applicable = append(applicable, c)
		}
		if r.logger.Debug().Enabled() {
			r.logger.Debug().Str("call", call.Name).Str("candidate", c.String()).Str("status", c.Status.String()).Msg("candidate checked")
		}
	}

	switch len(applicable) {
	case 0:
		result.Err = &UnresolvedError{Name: call.Name, Candidates: result.Candidates}
		return result, nil
	case 1:
		result.Winner = applicable[0]
		return result, nil
	}
	best, err := r.rank(ctx, applicable)
	if err != nil {
		return nil, err
	}
	if len(best) == 1 {
		result.Winner = best[0]
		return result, nil
	}
	result.Err = &AmbiguityError{Name: call.Name, Candidates: best}
	return result, nil
}

// check runs applicability and inference for one candidate.
func (r *Resolver) check(ctx context.Context, f scopes.Found, call Call) (*Candidate, error) {
	c := &Candidate{Found: f, Symbol: f.Symbol}
	if f.Invisible {
		c.Status = InvisibleCandidate
		c.Err = fmt.Errorf("%s is %s in %s", f.Symbol.Name, f.Symbol.Visibility, f.Symbol.Owner)
		return c, nil
	}
	s, status, err := r.shapeOf(f, call)
	if status != Applicable {
		c.Status, c.Err = status, err
		return c, nil
	}
	c.shape = s

	if call.Property {
		if len(call.Args) > 0 {
			c.Status, c.Err = WrongArity, fmt.Errorf("a value takes no arguments")
			return c, nil
		}
	} else {
		mapping, status, err := mapArguments(s.params, call.Args)
		if status != Applicable {
			c.Status, c.Err = status, err
			return c, nil
		}
		c.Mapping = mapping
	}
	if len(call.TypeArgs) > 0 && len(call.TypeArgs) != len(s.typeParams) {
		c.Status = WrongTypeArity
		c.Err = fmt.Errorf("%d type arguments expected, got %d", len(s.typeParams), len(call.TypeArgs))
		return c, nil
	}

	receiver, status, err := r.receiverOf(f, s, call)
	if status != Applicable {
		c.Status, c.Err = status, err
		return c, nil
	}
	c.Receiver = receiver

	useExpected := call.Expected != nil && !typesystem.IsError(call.Expected)
	for {
		err := r.infer(ctx, c, s, call, useExpected)
		if err == nil {
			c.Status, c.Err = Applicable, nil
			return c, nil
		}
		if diagnostics.IsCancelled(err) {
			return nil, err
		}
		var contradiction *inference.ContradictionError
		if useExpected && errors.As(err, &contradiction) {
			// the call resolves; the mismatch with the context is reported
			// by whoever supplied the expected type
			useExpected = false
			continue
		}
		c.Err = err
		c.Status = Mismatch
		if s.generic() {
			c.Status = Contradiction
		}
		return c, nil
	}
}

// receiverOf finds the receiver the candidate is called on and checks
// that a receiver exists where one is needed.
func (r *Resolver) receiverOf(f scopes.Found, s *shape, call Call) (typesystem.Type, Status, error) {
	explicit := call.Receiver
	if explicit != nil && call.SafeCall {
		explicit = explicit.WithNullability(false)
	}
	switch {
	case s.receiver != nil:
		if explicit != nil {
			return explicit, Applicable, nil
		}
		if f.Receiver != nil {
			return f.Receiver, Applicable, nil
		}
		return nil, MissingReceiver, fmt.Errorf("%s needs a receiver of type %s", f.Symbol.Name, s.receiver)
	case f.Member:
		if explicit != nil && !call.SafeCall && r.checker.MayBeNull(explicit) {
			return nil, Mismatch, fmt.Errorf("only safe (?.) calls are allowed on a nullable receiver of type %s", explicit)
		}
		if explicit != nil {
			return explicit, Applicable, nil
		}
		return f.Receiver, Applicable, nil
	}
	return explicit, Applicable, nil
}

// infer builds and solves the constraint system of one candidate and
// fills in its substitution and return type.
func (r *Resolver) infer(ctx context.Context, c *Candidate, s *shape, call Call, useExpected bool) error {
	sys := inference.NewSystem(r.checker, inference.WithMaxIterations(r.maxIterations), inference.WithLogger(r.logger))
	fresh, vars := sys.Fresh(s.typeParams)
	at := func(t typesystem.Type) typesystem.Type { return typesystem.Substitute(t, fresh) }

	for i, ta := range call.TypeArgs {
		sys.AddEqual(vars[i], ta, "type argument "+s.typeParams[i].Name)
	}
	if s.receiver != nil && c.Receiver != nil {
		sys.AddSubtype(c.Receiver, at(s.receiver), "receiver")
	}

	lambdas := make(map[int]*inference.PendingLambda)
	for i, arg := range call.Args {
		p := s.params[c.Mapping[i]]
		want := at(p.Type)
		if arg.Lambda != nil {
			pending, err := r.lambda(sys, arg, want)
			if err != nil {
				return err
			}
			sys.AddLambda(pending)
			lambdas[i] = pending
			continue
		}
		if arg.Type == nil {
			continue
		}
		sys.AddSubtype(arg.Type, want, "argument "+p.Name)
	}
	ret := at(s.ret)
	if useExpected {
		sys.AddSubtype(ret, call.Expected, "expected type")
	}

	solved, err := sys.Solve(ctx)
	if err != nil {
		return err
	}
	c.Subst = make(typesystem.Subst, len(fresh)+len(s.dispatch))
	for name, t := range s.dispatch {
		c.Subst[name] = t
	}
	for name, v := range fresh {
		c.Subst[name] = v.Apply(solved)
	}
	c.Return = ret.Apply(solved)
	if call.SafeCall {
		c.Return = c.Return.WithNullability(true)
	}
	if c.Receiver != nil {
		c.Receiver = c.Receiver.Apply(solved)
	}
	c.Lambdas = lambdas
	return nil
}

// lambda turns a lambda argument into a pending lambda against the
// parameter type want. A parameter of function type supplies the lambda's
// parameter and return types; any other parameter type only accepts a
// lambda whose parameters are all declared.
func (r *Resolver) lambda(sys *inference.System, arg Argument, want typesystem.Type) (*inference.PendingLambda, error) {
	l := arg.Lambda
	analyze := l.Analyze
	if analyze == nil {
		analyze = func(context.Context, []typesystem.Type) (typesystem.Type, error) { return nil, nil }
	}
	params, ret, ok := typesystem.FunctionParts(want)
	if !ok {
		declared := make([]typesystem.Type, len(l.Params))
		for i, p := range l.Params {
			if p == nil {
				return nil, &inference.ContradictionError{
					Sub:    typesystem.TError{Reason: "lambda"},
					Super:  want,
					Reason: "cannot infer a type for this lambda parameter",
				}
			}
			declared[i] = p
		}
		_, rv := sys.Fresh([]typesystem.TypeParam{{Name: "R"}})
		sys.AddSubtype(typesystem.FunctionType(rv[0], declared...), want, "lambda")
		return &inference.PendingLambda{Params: declared, Return: rv[0], Analyze: analyze}, nil
	}

	switch {
	case l.Implicit && len(params) <= 1:
		// it, or no parameter at all
	case len(l.Params) != len(params):
		return nil, &inference.ContradictionError{
			Sub:    typesystem.FunctionType(typesystem.NullableAny, lambdaParams(l)...),
			Super:  want,
			Reason: fmt.Sprintf("expected %d lambda parameters, got %d", len(params), len(l.Params)),
		}
	default:
		params = append([]typesystem.Type(nil), params...)
		for i, declared := range l.Params {
			if declared == nil {
				continue
			}
			sys.AddSubtype(params[i], declared, "lambda parameter")
			params[i] = declared
		}
	}
	return &inference.PendingLambda{Params: params, Return: ret, Analyze: analyze}, nil
}

func lambdaParams(l *Lambda) []typesystem.Type {
	result := make([]typesystem.Type, len(l.Params))
	for i, p := range l.Params {
		if p == nil {
			p = typesystem.NullableAny
		}
		result[i] = p
	}
	return result
}
