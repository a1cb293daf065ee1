package diagnostics

import (
	"fmt"
)

// ErrorCode identifies the class of a reported problem.
type ErrorCode string

const (
	ErrDuplicateDeclaration    ErrorCode = "DUPLICATE_DECLARATION"
	ErrUnresolvedReference     ErrorCode = "UNRESOLVED_REFERENCE"
	ErrAmbiguity               ErrorCode = "AMBIGUITY"
	ErrTypeMismatch            ErrorCode = "TYPE_MISMATCH"
	ErrConstraintContradiction ErrorCode = "CONSTRAINT_CONTRADICTION"
	ErrInvisibleReference      ErrorCode = "INVISIBLE_REFERENCE"
	ErrUnresolvedType          ErrorCode = "UNRESOLVED_TYPE"
	ErrMalformedTree           ErrorCode = "MALFORMED_TREE"
)

type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity maps the name of a severity back to it.
func ParseSeverity(s string) (Severity, error) {
	for _, sev := range []Severity{SeverityError, SeverityWarning, SeverityInfo} {
		if sev.String() == s {
			return sev, nil
		}
	}
	return SeverityError, fmt.Errorf("unknown severity %q", s)
}

// Location points at a node in a source file. Lines and columns are 1-based.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Diagnostic is a single reported problem attached to a source location.
type Diagnostic struct {
	Code     ErrorCode
	Severity Severity
	Location Location
	Message  string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s [%s]: %s", d.Location, d.Severity, d.Code, d.Message)
}

func (d *Diagnostic) key() string {
	return fmt.Sprintf("%d:%d:%s", d.Location.Line, d.Location.Column, d.Code)
}
