package inference

import (
	"fmt"

	"github.com/funvibe/fir/internal/typesystem"
)

// ContradictionError reports a constraint that cannot hold.
type ContradictionError struct {
	Sub, Super typesystem.Type
	Reason     string
}

func (e *ContradictionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("type mismatch: %s is not a subtype of %s", e.Sub, e.Super)
	}
	return fmt.Sprintf("%s: %s is not a subtype of %s", e.Reason, e.Sub, e.Super)
}

// IterationLimitError stops a solve that did not reach a fixpoint within
// the configured number of steps.
type IterationLimitError struct {
	Limit int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("type inference did not converge after %d steps", e.Limit)
}
