package typesystem

import (
	"fmt"
	"strings"
)

// UnresolvedTypeError lists the names ParseType could not resolve. The type
// returned alongside it has error types in their place.
type UnresolvedTypeError struct {
	Text  string
	Names []string
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("unresolved type %s in %q", strings.Join(e.Names, ", "), e.Text)
}
