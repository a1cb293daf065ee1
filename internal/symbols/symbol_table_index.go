package symbols

import "github.com/funvibe/fir/internal/typesystem"

// Index is a read view over declarations that may span several tables.
type Index interface {
	typesystem.ClassResolver
	Qualified(qualified string) []*Symbol
	Package(pkg string) []*Symbol
	HasPackage(pkg string) bool
	Members(owner string) []*Symbol
	Class(qualified string) (*Symbol, bool)
}

var _ Index = (*Table)(nil)

// Union searches its indexes in order and concatenates their answers.
type Union []Index

func (u Union) Qualified(qualified string) []*Symbol {
	var result []*Symbol
	for _, idx := range u {
		result = append(result, idx.Qualified(qualified)...)
	}
	return result
}

func (u Union) Package(pkg string) []*Symbol {
	var result []*Symbol
	for _, idx := range u {
		result = append(result, idx.Package(pkg)...)
	}
	return result
}

func (u Union) HasPackage(pkg string) bool {
	for _, idx := range u {
		if idx.HasPackage(pkg) {
			return true
		}
	}
	return false
}

func (u Union) Members(owner string) []*Symbol {
	var result []*Symbol
	for _, idx := range u {
		result = append(result, idx.Members(owner)...)
	}
	return result
}

func (u Union) Class(qualified string) (*Symbol, bool) {
	for _, idx := range u {
		if s, ok := idx.Class(qualified); ok {
			return s, true
		}
	}
	return nil, false
}

func (u Union) ClassInfo(name string) (*typesystem.ClassInfo, bool) {
	if s, ok := u.Class(name); ok {
		return s.ClassInfo(), true
	}
	return nil, false
}
