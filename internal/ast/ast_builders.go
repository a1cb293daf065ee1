package ast

import "strconv"

// Constructors for building trees in code. Front ends and tests use these
// instead of filling Node literals by hand.

func File(path, pkg string, children ...*Node) *Node {
	return &Node{Kind: KindFile, Name: path, Value: pkg, Children: children}
}

// Import builds an import directive; a path ending in ".*" is a star import.
func Import(path string) *Node {
	return &Node{Kind: KindImport, Name: path}
}

// ImportAs builds "import path as alias".
func ImportAs(path, alias string) *Node {
	return &Node{Kind: KindImport, Name: path, Value: alias}
}

func Class(name string, children ...*Node) *Node {
	return &Node{Kind: KindClass, Name: name, Children: children}
}

func Supertype(typ string) *Node {
	return &Node{Kind: KindTypeRef, Type: typ}
}

func TypeParam(name, bound string) *Node {
	return &Node{Kind: KindTypeParameter, Name: name, Type: bound}
}

// Fun declares a function. An empty returnType means "inferred from an
// expression body" or Unit for block bodies.
func Fun(name, returnType string, children ...*Node) *Node {
	return &Node{Kind: KindFunction, Name: name, Type: returnType, Children: children}
}

// ExtFun declares an extension function on receiver.
func ExtFun(receiver, name, returnType string, children ...*Node) *Node {
	n := Fun(name, returnType, children...)
	n.Receiver = receiver
	return n
}

func Param(name, typ string) *Node {
	return &Node{Kind: KindParameter, Name: name, Type: typ}
}

func DefaultParam(name, typ string, value *Node) *Node {
	return &Node{Kind: KindParameter, Name: name, Type: typ, Children: []*Node{value}}
}

func Vararg(name, typ string) *Node {
	return &Node{Kind: KindParameter, Name: name, Type: typ, Modifiers: []string{"vararg"}}
}

// Val declares a read-only property or local. typ and init are optional.
func Val(name, typ string, init *Node) *Node {
	n := &Node{Kind: KindProperty, Name: name, Type: typ}
	if init != nil {
		n.Children = []*Node{init}
	}
	return n
}

func Var(name, typ string, init *Node) *Node {
	return Val(name, typ, init).With("var")
}

func Block(stmts ...*Node) *Node {
	return &Node{Kind: KindBlock, Children: stmts}
}

func Ref(name string) *Node {
	return &Node{Kind: KindReference, Name: name}
}

func Call(name string, args ...*Node) *Node {
	n := &Node{Kind: KindCall, Name: name}
	for _, a := range args {
		if a.Kind != KindArgument {
			a = &Node{Kind: KindArgument, Children: []*Node{a}, Pos: a.Pos}
		}
		n.Children = append(n.Children, a)
	}
	return n
}

// Named wraps value as a named argument.
func Named(name string, value *Node) *Node {
	return &Node{Kind: KindArgument, Name: name, Children: []*Node{value}}
}

// Trailing wraps a lambda written after the parentheses of a call.
func Trailing(lambda *Node) *Node {
	return &Node{Kind: KindArgument, Children: []*Node{lambda}, Modifiers: []string{"trailing"}}
}

// Member builds receiver.selector.
func Member(receiver, selector *Node) *Node {
	return &Node{Kind: KindQualified, Children: []*Node{receiver, selector}}
}

// SafeMember builds receiver?.selector.
func SafeMember(receiver, selector *Node) *Node {
	return Member(receiver, selector).With("safe")
}

// Lambda builds { params -> body }. Without params the lambda gets the
// implicit "it" parameter when the expected function type has one.
func Lambda(body *Node, params ...*Node) *Node {
	if body.Kind != KindBlock {
		body = Block(body)
	}
	children := append(append([]*Node{}, params...), body)
	return &Node{Kind: KindLambda, Children: children}
}

func Return(value *Node) *Node {
	n := &Node{Kind: KindReturn}
	if value != nil {
		n.Children = []*Node{value}
	}
	return n
}

func If(cond, then, els *Node) *Node {
	n := &Node{Kind: KindIf, Children: []*Node{cond, then}}
	if els != nil {
		n.Children = append(n.Children, els)
	}
	return n
}

// Eq builds left == right.
func Eq(left, right *Node) *Node {
	return &Node{Kind: KindEquality, Value: "==", Children: []*Node{left, right}}
}

// NotEq builds left != right.
func NotEq(left, right *Node) *Node {
	return &Node{Kind: KindEquality, Value: "!=", Children: []*Node{left, right}}
}

func This() *Node  { return &Node{Kind: KindThis} }
func Super() *Node { return &Node{Kind: KindSuper} }

func Int(v int) *Node {
	return &Node{Kind: KindLiteral, Literal: LitInt, Value: strconv.Itoa(v)}
}

func Long(v int64) *Node {
	return &Node{Kind: KindLiteral, Literal: LitLong, Value: strconv.FormatInt(v, 10) + "L"}
}

func Double(v float64) *Node {
	return &Node{Kind: KindLiteral, Literal: LitDouble, Value: strconv.FormatFloat(v, 'g', -1, 64)}
}

func Str(v string) *Node {
	return &Node{Kind: KindLiteral, Literal: LitString, Value: v}
}

func Char(v rune) *Node {
	return &Node{Kind: KindLiteral, Literal: LitChar, Value: string(v)}
}

func Bool(v bool) *Node {
	return &Node{Kind: KindLiteral, Literal: LitBoolean, Value: strconv.FormatBool(v)}
}

func Null() *Node {
	return &Node{Kind: KindLiteral, Literal: LitNull, Value: "null"}
}

// With appends modifiers and returns n.
func (n *Node) With(modifiers ...string) *Node {
	n.Modifiers = append(n.Modifiers, modifiers...)
	return n
}

// At sets the position and returns n.
func (n *Node) At(line, column int) *Node {
	n.Pos = Position{Line: line, Column: column}
	return n
}

// WithTypeArgs sets explicit type arguments of a call.
func (n *Node) WithTypeArgs(args ...string) *Node {
	n.TypeArgs = append(n.TypeArgs, args...)
	return n
}
