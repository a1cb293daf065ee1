package typesystem

import (
	"fmt"
	"strings"
	"unicode"
)

// NameResolver maps a (possibly dotted) name written in type notation to a
// TParam or a TClass; the Args of a returned TClass are ignored.
type NameResolver func(name string) (Type, bool)

var builtinSimpleNames = func() map[string]bool {
	m := make(map[string]bool, len(builtinDecls))
	for _, d := range builtinDecls {
		m[d.name] = true
	}
	return m
}()

func resolveBuiltin(name string) (Type, bool) {
	if simple, ok := strings.CutPrefix(name, BuiltinPackage+"."); ok {
		name = simple
	}
	if builtinSimpleNames[name] {
		return TClass{Name: BuiltinPackage + "." + name}, true
	}
	return nil, false
}

// ResolveBuiltins is the NameResolver used when none is given: builtin
// class names, simple or qualified.
func ResolveBuiltins(name string) (Type, bool) { return resolveBuiltin(name) }

// ParseType parses type notation:
//
//	List<out String>?   Map<K, *>   (Int, String) -> Boolean   T!   A & B
//
// A trailing "!" marks a platform type (T..T?). A syntax error returns a nil
// type; unresolved names return the partial type and *UnresolvedTypeError.
func ParseType(text string, resolve NameResolver) (Type, error) {
	if resolve == nil {
		resolve = resolveBuiltin
	}
	p := &typeParser{text: text, resolve: resolve}
	p.next()
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if p.tok != "" {
		return nil, fmt.Errorf("unexpected %q in type %q", p.tok, text)
	}
	if len(p.unresolved) > 0 {
		return t, &UnresolvedTypeError{Text: text, Names: p.unresolved}
	}
	return t, nil
}

// MustParseType is ParseType over the builtins that panics on error. It is
// meant for tables of builtin declarations and tests.
func MustParseType(text string) Type {
	t, err := ParseType(text, nil)
	if err != nil {
		panic(err)
	}
	return t
}

type typeParser struct {
	text       string
	pos        int
	tok        string
	resolve    NameResolver
	unresolved []string
}

func (p *typeParser) next() {
	for p.pos < len(p.text) && p.text[p.pos] == ' ' {
		p.pos++
	}
	if p.pos >= len(p.text) {
		p.tok = ""
		return
	}
	start := p.pos
	c := rune(p.text[p.pos])
	switch {
	case c == '-' && strings.HasPrefix(p.text[p.pos:], "->"):
		p.pos += 2
	case isIdentRune(c):
		for p.pos < len(p.text) && (isIdentRune(rune(p.text[p.pos])) || p.text[p.pos] == '.') {
			p.pos++
		}
	default:
		p.pos++
	}
	p.tok = p.text[start:p.pos]
}

func isIdentRune(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

func (p *typeParser) expect(tok string) error {
	if p.tok != tok {
		return fmt.Errorf("expected %q, found %q in type %q", tok, p.tok, p.text)
	}
	p.next()
	return nil
}

func (p *typeParser) parseType() (Type, error) {
	first, err := p.parseSuffixed()
	if err != nil {
		return nil, err
	}
	if p.tok != "&" {
		return first, nil
	}
	members := []Type{first}
	for p.tok == "&" {
		p.next()
		m, err := p.parseSuffixed()
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return NewIntersection(members...), nil
}

func (p *typeParser) parseSuffixed() (Type, error) {
	t, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.tok {
		case "?":
			p.next()
			t = t.WithNullability(true)
		case "!":
			p.next()
			t = NewFlexible(t.WithNullability(false), t.WithNullability(true))
		default:
			return t, nil
		}
	}
}

func (p *typeParser) parsePrimary() (Type, error) {
	if p.tok == "(" {
		p.next()
		var items []Type
		for p.tok != ")" {
			item, err := p.parseType()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if p.tok == "," {
				p.next()
			} else if p.tok != ")" {
				return nil, fmt.Errorf("expected \",\" or \")\", found %q in type %q", p.tok, p.text)
			}
		}
		p.next()
		if p.tok == "->" {
			p.next()
			ret, err := p.parseType()
			if err != nil {
				return nil, err
			}
			return FunctionType(ret, items...), nil
		}
		if len(items) != 1 {
			return nil, fmt.Errorf("expected \"->\" after parameter list in type %q", p.text)
		}
		return items[0], nil
	}
	if p.tok == "" || !isIdentRune(rune(p.tok[0])) {
		return nil, fmt.Errorf("expected type name, found %q in type %q", p.tok, p.text)
	}
	name := p.tok
	p.next()
	var args []TypeArg
	if p.tok == "<" {
		p.next()
		for {
			a, err := p.parseArg()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.tok == "," {
				p.next()
				continue
			}
			if err := p.expect(">"); err != nil {
				return nil, err
			}
			break
		}
	}
	resolved, ok := p.resolve(name)
	if !ok {
		p.unresolved = append(p.unresolved, name)
		return TError{Reason: "unresolved type " + name}, nil
	}
	switch r := resolved.(type) {
	case TClass:
		return TClass{Name: r.Name, Args: args}, nil
	default:
		return resolved, nil
	}
}

func (p *typeParser) parseArg() (TypeArg, error) {
	if p.tok == "*" {
		p.next()
		return StarArg(), nil
	}
	projection := Invariant
	if p.tok == "in" || p.tok == "out" {
		// "in" or "out" followed by a type is a projection, otherwise a name
		save, saveTok := p.pos, p.tok
		p.next()
		if p.tok != "," && p.tok != ">" && p.tok != "" {
			if saveTok == "in" {
				projection = Contravariant
			} else {
				projection = Covariant
			}
		} else {
			p.pos, p.tok = save, saveTok
		}
	}
	t, err := p.parseType()
	if err != nil {
		return TypeArg{}, err
	}
	return TypeArg{Type: t, Projection: projection}, nil
}
