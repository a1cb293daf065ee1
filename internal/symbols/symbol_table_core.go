package symbols

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/google/uuid"
)

// SymbolID is the identity of a declaration. Every declaration gets a fresh
// random ID, so a declaration rebuilt after invalidation never compares
// equal to the one it replaced.
type SymbolID = uuid.UUID

type SymbolKind int

const (
	ClassSymbol SymbolKind = iota
	FunctionSymbol
	PropertySymbol
	ParameterSymbol
	LocalSymbol
	TypeParameterSymbol
)

func (k SymbolKind) String() string {
	switch k {
	case ClassSymbol:
		return "class"
	case FunctionSymbol:
		return "function"
	case PropertySymbol:
		return "property"
	case ParameterSymbol:
		return "parameter"
	case LocalSymbol:
		return "local"
	case TypeParameterSymbol:
		return "type parameter"
	default:
		return "symbol(" + strconv.Itoa(int(k)) + ")"
	}
}

// IsValue reports whether the symbol denotes a value usable as an
// expression on its own.
func (k SymbolKind) IsValue() bool {
	return k == PropertySymbol || k == ParameterSymbol || k == LocalSymbol
}

type Visibility int

const (
	Public Visibility = iota
	Internal
	Protected
	Private
)

func (v Visibility) String() string {
	switch v {
	case Internal:
		return "internal"
	case Protected:
		return "protected"
	case Private:
		return "private"
	default:
		return "public"
	}
}

// VisibilityOf reads the visibility modifier out of a modifier list.
func VisibilityOf(modifiers []string) Visibility {
	for _, m := range modifiers {
		switch m {
		case "private":
			return Private
		case "protected":
			return Protected
		case "internal":
			return Internal
		case "public":
			return Public
		}
	}
	return Public
}

type Origin int

const (
	SourceOrigin Origin = iota
	LibraryOrigin
	BuiltinOrigin
)

func (o Origin) String() string {
	switch o {
	case LibraryOrigin:
		return "library"
	case BuiltinOrigin:
		return "builtin"
	default:
		return "source"
	}
}

// Param is a value parameter of a function or constructor.
type Param struct {
	Name       string
	Type       typesystem.Type
	HasDefault bool
	Vararg     bool
}

// Signature is the resolved header of a declaration. For classes Params
// are the primary constructor parameters and Return is the class type.
type Signature struct {
	TypeParams []typesystem.TypeParam
	Receiver   typesystem.Type
	Params     []Param
	Return     typesystem.Type
	Supertypes []typesystem.Type
}

// Key renders the parts of a signature that distinguish overloads: the
// receiver and parameter types, with type parameters renamed by position.
func (s Signature) Key() string {
	rename := make(typesystem.Subst, len(s.TypeParams))
	for i, tp := range s.TypeParams {
		rename[tp.Name] = typesystem.TParam{Name: "#" + strconv.Itoa(i)}
	}
	var sb strings.Builder
	if s.Receiver != nil {
		sb.WriteString(typesystem.Key(typesystem.Substitute(s.Receiver, rename)))
		sb.WriteString(".")
	}
	sb.WriteString("(")
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteString(",")
		}
		if p.Vararg {
			sb.WriteString("vararg ")
		}
		sb.WriteString(typesystem.Key(typesystem.Substitute(p.Type, rename)))
	}
	sb.WriteString(")")
	return sb.String()
}

// Symbol is an immutable declaration record.
type Symbol struct {
	ID         SymbolID
	Name       string
	Qualified  string
	Kind       SymbolKind
	Owner      string // package, class or function that declares it
	Member     bool   // declared in a class body
	Module     string
	File       string
	Pos        ast.Position
	Visibility Visibility
	Origin     Origin
	Mutable    bool
	Infix      bool
	Signature  Signature
}

func (s *Symbol) IsExtension() bool { return s.Signature.Receiver != nil }

func (s *Symbol) IsGeneric() bool { return len(s.Signature.TypeParams) > 0 }

// IsCallable reports whether a call expression can target the symbol.
func (s *Symbol) IsCallable() bool {
	return s.Kind == FunctionSymbol || s.Kind == ClassSymbol
}

// HasVararg reports whether the last parameter is a vararg.
func (s *Symbol) HasVararg() bool {
	ps := s.Signature.Params
	return len(ps) > 0 && ps[len(ps)-1].Vararg
}

// Type is the type of the symbol used as a value: the declared type of a
// property or local, the function type of a function and the class type
// of a class.
func (s *Symbol) Type() typesystem.Type {
	switch s.Kind {
	case FunctionSymbol:
		params := make([]typesystem.Type, 0, len(s.Signature.Params)+1)
		if s.Signature.Receiver != nil {
			params = append(params, s.Signature.Receiver)
		}
		for _, p := range s.Signature.Params {
			params = append(params, p.Type)
		}
		return typesystem.FunctionType(s.Signature.Return, params...)
	case ClassSymbol:
		return s.ClassInfo().Type()
	default:
		if s.Signature.Return == nil {
			return typesystem.TError{Reason: "no type for " + s.Name}
		}
		return s.Signature.Return
	}
}

// ClassInfo describes a class symbol to the type checker.
func (s *Symbol) ClassInfo() *typesystem.ClassInfo {
	return &typesystem.ClassInfo{
		Name:       s.Qualified,
		TypeParams: s.Signature.TypeParams,
		Supertypes: s.Signature.Supertypes,
	}
}

func (s *Symbol) String() string {
	var sb strings.Builder
	sb.WriteString(s.Kind.String())
	sb.WriteString(" ")
	if s.Signature.Receiver != nil {
		sb.WriteString(s.Signature.Receiver.String())
		sb.WriteString(".")
	}
	if s.Qualified != "" {
		sb.WriteString(s.Qualified)
	} else {
		sb.WriteString(s.Name)
	}
	if s.Kind == FunctionSymbol {
		sb.WriteString("(")
		for i, p := range s.Signature.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			if p.Vararg {
				sb.WriteString("vararg ")
			}
			sb.WriteString(p.Type.String())
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// Location renders file:line:col for messages.
func (s *Symbol) Location() string {
	if s.File == "" {
		return s.Origin.String()
	}
	return fmt.Sprintf("%s:%s", s.File, s.Pos)
}

// NewLocal creates a symbol for a local value, parameter or type parameter.
// Locals live in scope layers, not in a Table.
func NewLocal(name string, kind SymbolKind, typ typesystem.Type, owner string, pos ast.Position) *Symbol {
	return &Symbol{
		ID:         uuid.New(),
		Name:       name,
		Kind:       kind,
		Owner:      owner,
		Pos:        pos,
		Visibility: Public,
		Signature:  Signature{Return: typ},
	}
}
