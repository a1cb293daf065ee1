package calls

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/inference"
	"github.com/funvibe/fir/internal/scopes"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
)

// Status is the outcome of checking one candidate against a call.
type Status int

const (
	Applicable Status = iota
	WrongArity
	WrongTypeArity
	UnknownArgument
	DuplicateArgument
	PositionalAfterNamed
	MissingReceiver
	NotCallable
	NotAValue
	InvisibleCandidate
	Mismatch
	Contradiction
)

var statusNames = map[Status]string{
	Applicable:           "applicable",
	WrongArity:           "wrong number of arguments",
	WrongTypeArity:       "wrong number of type arguments",
	UnknownArgument:      "no parameter with that name",
	DuplicateArgument:    "argument passed twice",
	PositionalAfterNamed: "positional argument after named arguments",
	MissingReceiver:      "no receiver",
	NotCallable:          "not callable",
	NotAValue:            "not a value",
	InvisibleCandidate:   "not visible",
	Mismatch:             "argument type mismatch",
	Contradiction:        "inference contradiction",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Lambda describes a lambda argument. Params holds the declared parameter
// types, with nil entries for parameters declared without a type; a nil
// Params slice with Implicit set means the "it" form.
type Lambda struct {
	Params   []typesystem.Type
	Implicit bool
	// Analyze types the body given the parameter types and returns the
	// type of its last expression. It must not report diagnostics of its
	// own; only cancellation errors are returned.
	Analyze func(ctx context.Context, params []typesystem.Type) (typesystem.Type, error)
}

// Argument is one value argument of a call.
type Argument struct {
	Name   string
	Type   typesystem.Type
	Lambda *Lambda
	// Trailing marks a lambda written after the parentheses; it always
	// goes to the last parameter.
	Trailing bool
	Pos      ast.Position
}

// Call is the call site being resolved.
type Call struct {
	Name string
	// Receiver is the explicit receiver type, nil when the call has none.
	Receiver typesystem.Type
	SafeCall bool
	Args     []Argument
	TypeArgs []typesystem.Type
	// Expected is the type the context expects, nil when unknown.
	Expected typesystem.Type
	// Property resolves a value reference (x, a.b) instead of a call.
	Property bool
	Pos      ast.Position
}

// Candidate is a symbol checked against a call.
type Candidate struct {
	Found  scopes.Found
	Symbol *symbols.Symbol
	Status Status
	Err    error

	// Mapping[i] is the parameter index of argument i.
	Mapping []int
	// Subst maps the symbol's type parameters (and those of its class for
	// members and constructors) to inferred types.
	Subst    typesystem.Subst
	Receiver typesystem.Type
	Return   typesystem.Type
	// Lambdas holds the solved lambda arguments by argument index.
	Lambdas map[int]*inference.PendingLambda

	order int
	shape *shape
}

// Reason explains why the candidate is not applicable.
func (c *Candidate) Reason() string {
	if c.Err != nil {
		return c.Status.String() + ": " + c.Err.Error()
	}
	return c.Status.String()
}

func (c *Candidate) String() string { return c.Symbol.String() }

// Result is the full outcome of resolving one call.
type Result struct {
	Candidates []*Candidate
	Winner     *Candidate
	// Err is *AmbiguityError or *UnresolvedError when there is no winner.
	Err error
}

// AmbiguityError lists the candidates none of which is more specific than
// the others.
type AmbiguityError struct {
	Name       string
	Candidates []*Candidate
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("overload resolution ambiguity for %s: %s", e.Name, describe(e.Candidates, false))
}

// UnresolvedError reports a call with no applicable candidate.
type UnresolvedError struct {
	Name       string
	Candidates []*Candidate
}

func (e *UnresolvedError) Error() string {
	if len(e.Candidates) == 0 {
		return "unresolved reference: " + e.Name
	}
	if allInvisible(e.Candidates) {
		return fmt.Sprintf("cannot access %s: %s", e.Name, describe(e.Candidates, false))
	}
	return fmt.Sprintf("none of the candidates for %s is applicable: %s", e.Name, describe(e.Candidates, true))
}

// Invisible reports whether the only candidates were invisible ones.
func (e *UnresolvedError) Invisible() bool {
	return len(e.Candidates) > 0 && allInvisible(e.Candidates)
}

func allInvisible(cs []*Candidate) bool {
	for _, c := range cs {
		if c.Status != InvisibleCandidate {
			return false
		}
	}
	return true
}

func describe(cs []*Candidate, reasons bool) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		s := c.Symbol.String()
		if reasons {
			s += " (" + c.Reason() + ")"
		}
		parts = append(parts, s)
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
