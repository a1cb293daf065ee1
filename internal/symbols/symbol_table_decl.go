package symbols

import (
	"fmt"
	"strings"

	"github.com/funvibe/fir/internal/typesystem"
)

// Declaration is a parsed one-line declaration header in source notation:
//
//	fun <T, R> Iterable<T>.map(transform: (T) -> R): List<R>
//	infix fun <A, B> A.to(that: B): Pair<A, B>
//	val size: Int
//
// Builtins and library members are stored this way.
type Declaration struct {
	Name      string
	Kind      SymbolKind
	Infix     bool
	Mutable   bool
	Signature Signature
}

// ParseDeclaration parses a fun, val or var header. outer holds the type
// parameters of the enclosing class; other names go through resolve, or
// the builtins when resolve is nil.
func ParseDeclaration(text string, outer []typesystem.TypeParam, resolve typesystem.NameResolver) (*Declaration, error) {
	if resolve == nil {
		resolve = typesystem.ResolveBuiltins
	}
	d := &Declaration{}
	rest := strings.TrimSpace(text)
	for {
		word, tail, _ := strings.Cut(rest, " ")
		switch word {
		case "infix":
			d.Infix = true
		case "public", "internal", "private", "protected", "operator", "inline", "override", "open", "abstract":
		default:
			goto keyword
		}
		rest = strings.TrimSpace(tail)
	}
keyword:
	word, tail, _ := strings.Cut(rest, " ")
	switch word {
	case "fun":
		d.Kind = FunctionSymbol
	case "val":
		d.Kind = PropertySymbol
	case "var":
		d.Kind, d.Mutable = PropertySymbol, true
	default:
		return nil, fmt.Errorf("declaration %q: expected fun, val or var", text)
	}
	rest = strings.TrimSpace(tail)

	if strings.HasPrefix(rest, "<") {
		end := matching(rest, 0)
		if end < 0 {
			return nil, fmt.Errorf("declaration %q: unclosed type parameter list", text)
		}
		tps, err := typesystem.ParseTypeParams(rest[1:end], scoped(outer, resolve))
		if err != nil {
			return nil, fmt.Errorf("declaration %q: %w", text, err)
		}
		d.Signature.TypeParams = tps
		rest = strings.TrimSpace(rest[end+1:])
	}
	scope := scoped(append(append([]typesystem.TypeParam(nil), outer...), d.Signature.TypeParams...), resolve)

	var head, typeText string
	if d.Kind == FunctionSymbol {
		open := indexTopLevel(rest, '(')
		if open < 0 {
			return nil, fmt.Errorf("declaration %q: missing parameter list", text)
		}
		end := matching(rest, open)
		if end < 0 {
			return nil, fmt.Errorf("declaration %q: unclosed parameter list", text)
		}
		head = rest[:open]
		params, err := parseParams(rest[open+1:end], scope)
		if err != nil {
			return nil, fmt.Errorf("declaration %q: %w", text, err)
		}
		d.Signature.Params = params
		if ret, ok := strings.CutPrefix(strings.TrimSpace(rest[end+1:]), ":"); ok {
			typeText = ret
		} else {
			typeText = "Unit"
		}
	} else {
		colon := indexTopLevel(rest, ':')
		if colon < 0 {
			return nil, fmt.Errorf("declaration %q: missing property type", text)
		}
		head, typeText = rest[:colon], rest[colon+1:]
	}

	head = strings.TrimSpace(head)
	if dot := lastTopLevel(head, '.'); dot >= 0 {
		recv, err := typesystem.ParseType(head[:dot], scope)
		if err != nil {
			return nil, fmt.Errorf("declaration %q: receiver: %w", text, err)
		}
		d.Signature.Receiver = recv
		head = head[dot+1:]
	}
	if head == "" {
		return nil, fmt.Errorf("declaration %q: missing name", text)
	}
	d.Name = head
	ret, err := typesystem.ParseType(strings.TrimSpace(typeText), scope)
	if err != nil {
		return nil, fmt.Errorf("declaration %q: %w", text, err)
	}
	d.Signature.Return = ret
	return d, nil
}

func parseParams(text string, scope typesystem.NameResolver) ([]Param, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var params []Param
	for _, part := range typesystem.SplitTopLevel(text, ',') {
		part = strings.TrimSpace(part)
		var p Param
		if rest, ok := strings.CutPrefix(part, "vararg "); ok {
			p.Vararg, part = true, rest
		}
		if decl, _, ok := strings.Cut(part, " = "); ok {
			p.HasDefault, part = true, decl
		}
		name, typeText, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("parameter %q has no type", part)
		}
		p.Name = strings.TrimSpace(name)
		t, err := typesystem.ParseType(strings.TrimSpace(typeText), scope)
		if err != nil {
			return nil, err
		}
		p.Type = t
		params = append(params, p)
	}
	return params, nil
}

func scoped(params []typesystem.TypeParam, resolve typesystem.NameResolver) typesystem.NameResolver {
	return func(name string) (typesystem.Type, bool) {
		for i := len(params) - 1; i >= 0; i-- {
			if params[i].Name == name {
				return params[i].Ref(), true
			}
		}
		return resolve(name)
	}
}

// matching returns the index of the bracket closing the one at open.
func matching(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '<', '(':
			depth++
		case '>':
			if i > 0 && s[i-1] == '-' {
				continue
			}
			depth--
		case ')':
			depth--
		}
		if depth == 0 {
			return i
		}
	}
	return -1
}

func indexTopLevel(s string, c byte) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == c && depth == 0:
			return i
		case s[i] == '<' || s[i] == '(':
			depth++
		case s[i] == ')' || (s[i] == '>' && (i == 0 || s[i-1] != '-')):
			depth--
		}
	}
	return -1
}

func lastTopLevel(s string, c byte) int {
	last, depth := -1, 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == c && depth == 0:
			last = i
		case s[i] == '<' || s[i] == '(':
			depth++
		case s[i] == ')' || (s[i] == '>' && (i == 0 || s[i-1] != '-')):
			depth--
		}
	}
	return last
}
