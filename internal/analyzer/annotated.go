package analyzer

import (
	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/calls"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
)

// AnnotatedTree is the result of resolving one file. The maps are keyed by
// the nodes of Root and are not modified once the tree is returned.
type AnnotatedTree struct {
	File string
	Root *ast.Node

	// TypeMap holds the type of every analyzed expression and the
	// finalized type of every declaration.
	TypeMap map[*ast.Node]typesystem.Type
	// ResolutionMap holds the winning candidate of references and calls.
	ResolutionMap map[*ast.Node]*calls.Candidate
	// DeclarationMap maps declarations, parameters and locals to their
	// symbols.
	DeclarationMap map[*ast.Node]*symbols.Symbol
	// ErrorMap marks references that did not resolve with the reason.
	ErrorMap map[*ast.Node]error

	Diagnostics []*diagnostics.Diagnostic
}

func newAnnotatedTree(file string, root *ast.Node) *AnnotatedTree {
	return &AnnotatedTree{
		File:           file,
		Root:           root,
		TypeMap:        make(map[*ast.Node]typesystem.Type),
		ResolutionMap:  make(map[*ast.Node]*calls.Candidate),
		DeclarationMap: make(map[*ast.Node]*symbols.Symbol),
		ErrorMap:       make(map[*ast.Node]error),
	}
}

func (t *AnnotatedTree) TypeOf(n *ast.Node) (typesystem.Type, bool) {
	typ, ok := t.TypeMap[n]
	return typ, ok
}

func (t *AnnotatedTree) Resolution(n *ast.Node) (*calls.Candidate, bool) {
	c, ok := t.ResolutionMap[n]
	return c, ok
}

func (t *AnnotatedTree) Declaration(n *ast.Node) (*symbols.Symbol, bool) {
	s, ok := t.DeclarationMap[n]
	return s, ok
}

// Err returns why a reference did not resolve.
func (t *AnnotatedTree) Err(n *ast.Node) error {
	return t.ErrorMap[n]
}

func (t *AnnotatedTree) HasErrors() bool {
	for _, d := range t.Diagnostics {
		if d.Severity == diagnostics.SeverityError {
			return true
		}
	}
	return false
}
