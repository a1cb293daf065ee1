package ast

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlNode is the on-disk form of a tree dump produced by an external parser.
type yamlNode struct {
	Kind      string      `yaml:"kind"`
	Name      string      `yaml:"name,omitempty"`
	Package   string      `yaml:"package,omitempty"`
	Pos       string      `yaml:"pos,omitempty"`
	Type      string      `yaml:"type,omitempty"`
	Receiver  string      `yaml:"receiver,omitempty"`
	Value     string      `yaml:"value,omitempty"`
	Literal   string      `yaml:"literal,omitempty"`
	Modifiers []string    `yaml:"modifiers,omitempty"`
	TypeArgs  []string    `yaml:"type_args,omitempty"`
	Children  []*yamlNode `yaml:"children,omitempty"`
}

// Decode reads a YAML tree dump. Nodes without a "pos" get one assigned by
// Number so that position-sensitive lookups stay well defined.
func Decode(r io.Reader) (*Node, error) {
	var raw yamlNode
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding tree: %w", err)
	}
	n, err := raw.toNode("")
	if err != nil {
		return nil, err
	}
	return Number(n), nil
}

func DecodeBytes(data []byte) (*Node, error) {
	return Decode(bytes.NewReader(data))
}

func (y *yamlNode) toNode(path string) (*Node, error) {
	kind, err := ParseKind(y.Kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	where := path + "/" + y.Kind
	n := &Node{
		Kind:      kind,
		Name:      y.Name,
		Type:      y.Type,
		Receiver:  y.Receiver,
		Value:     y.Value,
		Modifiers: y.Modifiers,
		TypeArgs:  y.TypeArgs,
	}
	if kind == KindFile {
		n.Value = y.Package
	}
	if y.Literal != "" {
		if n.Literal, err = ParseLiteralKind(y.Literal); err != nil {
			return nil, fmt.Errorf("%s: %w", where, err)
		}
	}
	if y.Pos != "" {
		if n.Pos, err = parsePosition(y.Pos); err != nil {
			return nil, fmt.Errorf("%s: %w", where, err)
		}
	}
	for i, c := range y.Children {
		child, err := c.toNode(fmt.Sprintf("%s[%d]", where, i))
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func parsePosition(s string) (Position, error) {
	line, col, ok := strings.Cut(s, ":")
	if !ok {
		col = "1"
	}
	l, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return Position{}, fmt.Errorf("bad position %q", s)
	}
	c, err := strconv.Atoi(strings.TrimSpace(col))
	if err != nil {
		return Position{}, fmt.Errorf("bad position %q", s)
	}
	return Position{Line: l, Column: c}, nil
}

// Encode writes n in the format accepted by Decode.
func Encode(w io.Writer, n *Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(fromNode(n)); err != nil {
		return err
	}
	return enc.Close()
}

func fromNode(n *Node) *yamlNode {
	y := &yamlNode{
		Kind:      n.Kind.String(),
		Name:      n.Name,
		Type:      n.Type,
		Receiver:  n.Receiver,
		Value:     n.Value,
		Literal:   n.Literal.String(),
		Modifiers: n.Modifiers,
		TypeArgs:  n.TypeArgs,
	}
	if n.Kind == KindFile {
		y.Package, y.Value = n.Value, ""
	}
	if n.Pos.IsValid() {
		y.Pos = n.Pos.String()
	}
	for _, c := range n.Children {
		y.Children = append(y.Children, fromNode(c))
	}
	return y
}
