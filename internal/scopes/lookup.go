package scopes

import (
	"context"
	"iter"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/symbols"
)

// Walk lazily yields the candidates for identifier visible from the given
// position, innermost layer first. Once a layer yields a non-extension
// candidate, outer layers contribute only extensions. Invisible candidates
// are yielded, flagged, only if nothing visible was found. Every call of
// the returned sequence starts again from the innermost layer.
func (c *Chain) Walk(ctx context.Context, identifier string, from ast.Position) iter.Seq2[Found, error] {
	return func(yield func(Found, error) bool) {
		var invisible []Found
		visible, settled := 0, false
		depth := 0
		for cur := c; cur != nil && cur.layer != nil; cur = cur.outer {
			if err := diagnostics.CheckCancelled(ctx); err != nil {
				yield(Found{}, err)
				return
			}
			layerHasPlain := false
			for _, f := range cur.lookupLayer(identifier, from, depth) {
				if settled && !f.Extension {
					continue
				}
				if !c.visible(f.Symbol) {
					f.Invisible = true
					invisible = append(invisible, f)
					continue
				}
				if !f.Extension {
					layerHasPlain = true
				}
				visible++
				if !yield(f, nil) {
					return
				}
			}
			if c.logger.Debug().Enabled() {
				c.logger.Debug().Str("name", identifier).Str("layer", cur.layer.Kind.String()).Int("depth", depth).Msg("scope layer")
			}
			settled = settled || layerHasPlain
			depth++
		}
		if visible > 0 {
			return
		}
		for _, f := range invisible {
			if !yield(f, nil) {
				return
			}
		}
	}
}

// ResolveName collects Walk into a slice.
func (c *Chain) ResolveName(ctx context.Context, identifier string, from ast.Position) ([]Found, error) {
	var result []Found
	for f, err := range c.Walk(ctx, identifier, from) {
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, nil
}

// lookupLayer returns the symbols named identifier in this layer.
func (c *Chain) lookupLayer(identifier string, from ast.Position, depth int) []Found {
	l := c.layer
	var result []Found
	add := func(syms []*symbols.Symbol, topLevelOnly bool) {
		for _, s := range syms {
			if topLevelOnly && s.Member {
				continue
			}
			f := found(s, l.Kind, depth)
			if f.Extension {
				if recv, _, ok := c.ImplicitReceiver(); ok {
					f.Receiver = recv
				}
			}
			result = append(result, f)
		}
	}
	switch l.Kind {
	case LocalLayer:
		for _, s := range l.locals[identifier] {
			if visibleAt(s, from) {
				add([]*symbols.Symbol{s}, false)
			}
		}
	case ClassLayer:
		for _, f := range c.members(l.Receiver, identifier) {
			f.Layer, f.Depth = ClassLayer, depth
			result = append(result, f)
		}
	case ExplicitImportLayer:
		for _, imp := range l.Imports {
			if imp.Name() == identifier {
				add(c.index.Qualified(imp.Path), false)
			}
		}
	case PackageLayer:
		add(c.index.Qualified(qualify(l.Package, identifier)), true)
	case StarImportLayer, DefaultImportLayer:
		for _, imp := range l.Imports {
			add(c.index.Qualified(qualify(imp.Path, identifier)), true)
		}
	}
	return result
}

// ResolveClassifier finds the classes and type parameters a type name may
// refer to, innermost first: type parameters, nested classes of enclosing
// classes, explicit imports, the package, star imports, default imports.
func (c *Chain) ResolveClassifier(ctx context.Context, name string) ([]*symbols.Symbol, error) {
	for cur := c; cur != nil && cur.layer != nil; cur = cur.outer {
		if err := diagnostics.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		var result []*symbols.Symbol
		keep := func(syms []*symbols.Symbol) {
			for _, s := range syms {
				if s.Kind == symbols.ClassSymbol || s.Kind == symbols.TypeParameterSymbol {
					result = append(result, s)
				}
			}
		}
		l := cur.layer
		switch l.Kind {
		case LocalLayer:
			keep(l.locals[name])
		case ClassLayer:
			if l.Class != nil {
				keep(c.index.Qualified(qualify(l.Class.Qualified, name)))
			}
		case ExplicitImportLayer:
			for _, imp := range l.Imports {
				if imp.Name() == name {
					keep(c.index.Qualified(imp.Path))
				}
			}
		case PackageLayer:
			keep(c.index.Qualified(qualify(l.Package, name)))
		case StarImportLayer, DefaultImportLayer:
			for _, imp := range l.Imports {
				keep(c.index.Qualified(qualify(imp.Path, name)))
			}
		}
		if len(result) > 0 {
			return result, nil
		}
	}
	return nil, nil
}

func qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
