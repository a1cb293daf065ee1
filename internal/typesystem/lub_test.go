package typesystem

import (
	"testing"
)

func TestLeastUpperBound(t *testing.T) {
	c := NewChecker(nil)
	tests := []struct {
		name  string
		types []string
		want  string
	}{
		{"single", []string{"Int"}, "Int"},
		{"same", []string{"Int", "Int"}, "Int"},
		{"subtype", []string{"Int", "Number"}, "Number"},
		{"nullable", []string{"Int", "Nothing?"}, "Int?"},
		{"nothing", []string{"Nothing", "String"}, "String"},
		{"numbers", []string{"Int", "Double"}, "Comparable<*> & Number"},
		{"int and string", []string{"Int", "String"}, "Comparable<*> & Serializable"},
		{"nullable mix", []string{"Int?", "String"}, "Comparable<*>? & Serializable?"},
		{"covariant args", []string{"List<Int>", "List<String>"}, "List<Comparable<*> & Serializable>"},
		{"covariant through supertypes", []string{"List<Int>", "Set<Int>"}, "Collection<Int>"},
		{"invariant args", []string{"MutableList<Int>", "MutableList<String>"}, "MutableList<*>"},
		{"unrelated", []string{"Unit", "Int"}, "Any"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var types []Type
			for _, s := range tt.types {
				types = append(types, mustParse(t, s))
			}
			got := c.LeastUpperBound(types...)
			if got.String() != tt.want {
				t.Errorf("lub(%v) = %s, want %s", tt.types, got, tt.want)
			}
			for _, in := range types {
				if !c.IsSubtypeOf(in, got) {
					t.Errorf("input %s is not a subtype of the lub %s", in, got)
				}
			}
		})
	}
}

func TestLeastUpperBoundFlexible(t *testing.T) {
	c := NewChecker(nil)
	got := c.LeastUpperBound(mustParse(t, "String!"), String)
	if got.String() != "String!" {
		t.Errorf("lub(String!, String) = %s", got)
	}
}

func TestIntersect(t *testing.T) {
	c := NewChecker(nil)
	tests := []struct {
		types []string
		want  string
	}{
		{[]string{"Int", "Number"}, "Int"},
		{[]string{"Number", "Comparable<Int>"}, "Comparable<Int> & Number"},
		{[]string{"Any", "String"}, "String"},
		{[]string{"Int?", "Number?"}, "Int?"},
		{[]string{"Int?", "Number"}, "Int"},
		{[]string{"Nothing", "String"}, "Nothing"},
	}
	for _, tt := range tests {
		var types []Type
		for _, s := range tt.types {
			types = append(types, mustParse(t, s))
		}
		if got := c.Intersect(types...); got.String() != tt.want {
			t.Errorf("intersect(%v) = %s, want %s", tt.types, got, tt.want)
		}
	}
}
