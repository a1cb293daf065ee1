package calls

import (
	"fmt"

	"github.com/funvibe/fir/internal/symbols"
)

// mapArguments assigns every argument to a parameter. Positional arguments
// fill parameters in order, a vararg parameter takes all remaining
// positional arguments, named arguments go to the parameter with that
// name and a trailing lambda goes to the last parameter. Parameters left
// without an argument must have a default or be a vararg.
func mapArguments(params []symbols.Param, args []Argument) ([]int, Status, error) {
	mapping := make([]int, len(args))
	assigned := make([]bool, len(params))
	named := false
	next := 0
	for i, arg := range args {
		switch {
		case arg.Trailing && arg.Name == "":
			if len(params) == 0 {
				return nil, WrongArity, fmt.Errorf("too many arguments: expected %d, got %d", len(params), len(args))
			}
			last := len(params) - 1
			if assigned[last] && !params[last].Vararg {
				return nil, DuplicateArgument, fmt.Errorf("an argument is already passed for %s", params[last].Name)
			}
			mapping[i] = last
			assigned[last] = true
		case arg.Name != "":
			named = true
			idx := paramIndex(params, arg.Name)
			if idx < 0 {
				return nil, UnknownArgument, fmt.Errorf("cannot find a parameter with this name: %s", arg.Name)
			}
			if assigned[idx] {
				return nil, DuplicateArgument, fmt.Errorf("an argument is already passed for %s", arg.Name)
			}
			mapping[i] = idx
			assigned[idx] = true
		default:
			if named {
				return nil, PositionalAfterNamed, fmt.Errorf("mixing named and positioned arguments is not allowed")
			}
			if next >= len(params) {
				return nil, WrongArity, fmt.Errorf("too many arguments: expected %d, got %d", len(params), countPositional(args))
			}
			mapping[i] = next
			assigned[next] = true
			if !params[next].Vararg {
				next++
			}
		}
	}
	for i, p := range params {
		if !assigned[i] && !p.HasDefault && !p.Vararg {
			return nil, WrongArity, fmt.Errorf("no value passed for parameter %s", p.Name)
		}
	}
	return mapping, Applicable, nil
}

func paramIndex(params []symbols.Param, name string) int {
	for i, p := range params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func countPositional(args []Argument) int {
	n := 0
	for _, a := range args {
		if a.Name == "" {
			n++
		}
	}
	return n
}
