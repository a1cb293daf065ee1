package scopes

import (
	"context"
	"strings"

	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
)

// members finds the members called name of receiver's class and its
// superclasses. A member overridden in a subclass hides the inherited one
// with the same signature.
func (c *Chain) members(receiver typesystem.Type, name string) []Found {
	if receiver == nil {
		return nil
	}
	checker := c.Checker()
	seen := make(map[string]bool)
	var result []Found
	for _, super := range checker.Superclasses(receiver.WithNullability(false)) {
		for _, s := range c.index.Members(super.Name) {
			if s.Name != name || s.Kind == symbols.ClassSymbol {
				continue
			}
			key := s.Kind.String() + s.Signature.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			f := found(s, ClassLayer, 0)
			f.Member, f.Receiver = true, super
			result = append(result, f)
		}
	}
	return result
}

// ResolveMember resolves receiver.name: members of the receiver's class and
// its supertypes at depth 0, then extensions from the chain ordered by
// their scope depth.
func (c *Chain) ResolveMember(ctx context.Context, receiver typesystem.Type, name string) ([]Found, error) {
	if err := diagnostics.CheckCancelled(ctx); err != nil {
		return nil, err
	}
	var result, invisible []Found
	for _, f := range c.members(receiver, name) {
		c.sortVisible(f, &result, &invisible)
	}
	depth := 1
	for cur := c; cur != nil && cur.layer != nil; cur = cur.outer {
		if err := diagnostics.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		if cur.layer.Kind != ClassLayer {
			for _, f := range cur.lookupLayer(name, noPosition, depth) {
				if !f.Extension {
					continue
				}
				f.Receiver = receiver
				c.sortVisible(f, &result, &invisible)
			}
		}
		depth++
	}
	if len(result) == 0 {
		return invisible, nil
	}
	return result, nil
}

// ResolveSuper resolves super.name inside class: members of the direct
// supertypes (and what they inherit), never of class itself.
func (c *Chain) ResolveSuper(ctx context.Context, class *symbols.Symbol, name string) ([]Found, error) {
	if err := diagnostics.CheckCancelled(ctx); err != nil {
		return nil, err
	}
	var result, invisible []Found
	supers := class.Signature.Supertypes
	if len(supers) == 0 {
		supers = []typesystem.Type{typesystem.Any}
	}
	for _, st := range supers {
		for _, f := range c.members(st, name) {
			c.sortVisible(f, &result, &invisible)
		}
	}
	if len(result) == 0 {
		return invisible, nil
	}
	return result, nil
}

// ResolveQualified resolves qualifier.name where qualifier is a package or
// a class given by its qualified name. Class qualifiers yield nested
// classes and members.
func (c *Chain) ResolveQualified(ctx context.Context, qualifier, name string) ([]Found, error) {
	if err := diagnostics.CheckCancelled(ctx); err != nil {
		return nil, err
	}
	var result, invisible []Found
	_, isClass := c.index.Class(qualifier)
	for _, s := range c.index.Qualified(qualify(qualifier, name)) {
		if !isClass && s.Member {
			continue
		}
		c.sortVisible(found(s, PackageLayer, 0), &result, &invisible)
	}
	if len(result) == 0 {
		return invisible, nil
	}
	return result, nil
}

// IsPackage reports whether name is a known package.
func (c *Chain) IsPackage(name string) bool {
	return c.index.HasPackage(name)
}

func (c *Chain) sortVisible(f Found, visible, invisible *[]Found) {
	if c.visible(f.Symbol) {
		*visible = append(*visible, f)
		return
	}
	f.Invisible = true
	*invisible = append(*invisible, f)
}

// visible applies the visibility rules from the chain's viewpoint.
func (c *Chain) visible(s *symbols.Symbol) bool {
	switch s.Visibility {
	case symbols.Internal:
		return s.Origin == symbols.BuiltinOrigin || s.Module == c.view.Module
	case symbols.Private:
		if s.Member {
			return c.view.Class == s.Owner || strings.HasPrefix(c.view.Class, s.Owner+".")
		}
		return s.File == "" || s.File == c.view.File
	case symbols.Protected:
		if !s.Member || c.view.Class == "" {
			return false
		}
		return c.Checker().IsSubclass(c.view.Class, s.Owner)
	default:
		return true
	}
}
