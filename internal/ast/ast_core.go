package ast

import (
	"fmt"
	"strings"
)

// Kind is the closed set of node kinds produced by the front end.
type Kind int

const (
	KindInvalid Kind = iota
	KindFile
	KindImport
	KindClass
	KindFunction
	KindProperty // top-level, member or local val/var
	KindParameter
	KindTypeParameter
	KindTypeRef // supertype reference of a class
	KindBlock
	KindCall
	KindArgument
	KindReference
	KindLiteral
	KindLambda
	KindReturn
	KindQualified // receiver.selector, or a safe call with the "safe" modifier
	KindIf
	KindThis
	KindSuper
	KindEquality // "==" or "!=" in Value, two operands
)

var kindNames = map[Kind]string{
	KindInvalid:       "invalid",
	KindFile:          "file",
	KindImport:        "import",
	KindClass:         "class",
	KindFunction:      "function",
	KindProperty:      "property",
	KindParameter:     "parameter",
	KindTypeParameter: "type_parameter",
	KindTypeRef:       "type_ref",
	KindBlock:         "block",
	KindCall:          "call",
	KindArgument:      "argument",
	KindReference:     "reference",
	KindLiteral:       "literal",
	KindLambda:        "lambda",
	KindReturn:        "return",
	KindQualified:     "qualified",
	KindIf:            "if",
	KindThis:          "this",
	KindSuper:         "super",
	KindEquality:      "equality",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps the textual kind name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown node kind %q", s)
}

// LiteralKind classifies literal nodes.
type LiteralKind int

const (
	LitNone LiteralKind = iota
	LitInt
	LitLong
	LitDouble
	LitFloat
	LitString
	LitChar
	LitBoolean
	LitNull
)

var literalNames = map[LiteralKind]string{
	LitNone:    "",
	LitInt:     "int",
	LitLong:    "long",
	LitDouble:  "double",
	LitFloat:   "float",
	LitString:  "string",
	LitChar:    "char",
	LitBoolean: "boolean",
	LitNull:    "null",
}

func (l LiteralKind) String() string { return literalNames[l] }

func ParseLiteralKind(s string) (LiteralKind, error) {
	for k, name := range literalNames {
		if name == s {
			return k, nil
		}
	}
	return LitNone, fmt.Errorf("unknown literal kind %q", s)
}

// Position is a 1-based line/column pair. The zero value means "unknown".
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

func (p Position) IsValid() bool { return p.Line > 0 }

// Before reports whether p precedes q in the source.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Column < q.Column
}

// Node is a syntax tree node. Children are interpreted by kind:
//
//	file:       import*, declarations
//	class:      type_parameter*, type_ref* (supertypes), parameter* (constructor), members
//	function:   type_parameter*, parameter*, body (block or expression, optional)
//	property:   initializer (optional)
//	parameter:  default value (optional)
//	call:       argument*
//	argument:   value
//	lambda:     parameter*, block
//	qualified:  receiver, selector (reference or call)
//	if:         condition, then, else (optional)
//	return:     value (optional)
//	block:      statements
type Node struct {
	Kind     Kind
	Name     string   // declared or referenced name; path for files
	Pos      Position // position of the name
	Children []*Node

	Type      string   // declared type in type notation ("List<out T>?")
	Receiver  string   // extension receiver type of a function or property
	Value     string   // literal text; package name for files; import alias; equality operator
	Literal   LiteralKind
	Modifiers []string // visibility, "var", "vararg", "in"/"out", "safe", "infix"...
	TypeArgs  []string // explicit type arguments of a call
}

func (n *Node) HasModifier(m string) bool {
	if n == nil {
		return false
	}
	for _, x := range n.Modifiers {
		if x == m {
			return true
		}
	}
	return false
}

// ChildrenOf returns the direct children of the given kind, in order.
func (n *Node) ChildrenOf(k Kind) []*Node {
	var result []*Node
	for _, c := range n.Children {
		if c.Kind == k {
			result = append(result, c)
		}
	}
	return result
}

// Body returns the last child that is not part of a declaration header,
// or nil when the declaration has none.
func (n *Node) Body() *Node {
	for i := len(n.Children) - 1; i >= 0; i-- {
		switch c := n.Children[i]; c.Kind {
		case KindTypeParameter, KindParameter, KindTypeRef:
			return nil
		default:
			return c
		}
	}
	return nil
}

// Child returns the i-th child or nil.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(n.Kind.String())
	if n.Name != "" {
		sb.WriteString(" ")
		sb.WriteString(n.Name)
	}
	if n.Pos.IsValid() {
		sb.WriteString(" @")
		sb.WriteString(n.Pos.String())
	}
	return sb.String()
}

// Inspect traverses the tree in depth-first order. If f returns false the
// children of that node are skipped.
func Inspect(n *Node, f func(*Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range n.Children {
		Inspect(c, f)
	}
}

// Number assigns positions to nodes that have none: each such node gets
// line = its pre-order index + 1. Existing positions are kept.
func Number(root *Node) *Node {
	i := 0
	Inspect(root, func(n *Node) bool {
		i++
		if !n.Pos.IsValid() {
			n.Pos = Position{Line: i, Column: 1}
		}
		return true
	})
	return root
}

// Imports lists the import paths of a file node.
func (n *Node) Imports() []string {
	var result []string
	for _, c := range n.ChildrenOf(KindImport) {
		result = append(result, c.Name)
	}
	return result
}
