package daemon

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"

	"github.com/funvibe/fir/internal/analyzer"
	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/diagnostics"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages are structpb.Struct values. Trees travel as YAML dumps, the
// format ast.Decode reads.
//
//	ResolveFile     {file, module?, tree?}      -> {file, types, resolutions: [...], diagnostics: [...]}
//	GetDiagnostics  {file}                      -> {file, diagnostics: [...], truncated}
//	Invalidate      {module, changes: [{file, tree?}]} -> {affected: [...]}

// Resolved is one resolved reference or call of a file.
type Resolved struct {
	Line   int
	Column int
	Name   string
	Symbol string
	Type   string
}

// Resolution is the answer to ResolveFile.
type Resolution struct {
	File        string
	Types       int
	Resolutions []Resolved
	Diagnostics []*diagnostics.Diagnostic
}

func encodeTree(tree *ast.Node) (string, error) {
	var buf bytes.Buffer
	if err := ast.Encode(&buf, tree); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func decodeTree(file, text string) (*ast.Node, error) {
	tree, err := ast.DecodeBytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	tree.Name = file
	return tree, nil
}

func diagnosticValues(ds []*diagnostics.Diagnostic, limit int) []any {
	if limit > 0 && len(ds) > limit {
		ds = ds[:limit]
	}
	values := make([]any, len(ds))
	for i, d := range ds {
		values[i] = map[string]any{
			"code":     string(d.Code),
			"severity": d.Severity.String(),
			"file":     d.Location.File,
			"line":     d.Location.Line,
			"column":   d.Location.Column,
			"message":  d.Message,
		}
	}
	return values
}

func parseDiagnostics(list *structpb.ListValue) ([]*diagnostics.Diagnostic, error) {
	var result []*diagnostics.Diagnostic
	for _, v := range list.GetValues() {
		f := v.GetStructValue().GetFields()
		sev, err := diagnostics.ParseSeverity(f["severity"].GetStringValue())
		if err != nil {
			return nil, err
		}
		result = append(result, &diagnostics.Diagnostic{
			Code:     diagnostics.ErrorCode(f["code"].GetStringValue()),
			Severity: sev,
			Location: diagnostics.Location{
				File:   f["file"].GetStringValue(),
				Line:   int(f["line"].GetNumberValue()),
				Column: int(f["column"].GetNumberValue()),
			},
			Message: f["message"].GetStringValue(),
		})
	}
	return result, nil
}

// resolutionValues lists the resolved nodes of at in source order.
func resolutionValues(at *analyzer.AnnotatedTree) []any {
	var nodes []*ast.Node
	for n := range at.ResolutionMap {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *ast.Node) int {
		if c := cmp.Compare(a.Pos.Line, b.Pos.Line); c != 0 {
			return c
		}
		return cmp.Compare(a.Pos.Column, b.Pos.Column)
	})
	values := make([]any, len(nodes))
	for i, n := range nodes {
		c := at.ResolutionMap[n]
		typ := ""
		if c.Return != nil {
			typ = c.Return.String()
		}
		values[i] = map[string]any{
			"line":   n.Pos.Line,
			"column": n.Pos.Column,
			"name":   n.Name,
			"symbol": c.Symbol.String(),
			"type":   typ,
		}
	}
	return values
}

func parseResolutions(list *structpb.ListValue) []Resolved {
	var result []Resolved
	for _, v := range list.GetValues() {
		f := v.GetStructValue().GetFields()
		result = append(result, Resolved{
			Line:   int(f["line"].GetNumberValue()),
			Column: int(f["column"].GetNumberValue()),
			Name:   f["name"].GetStringValue(),
			Symbol: f["symbol"].GetStringValue(),
			Type:   f["type"].GetStringValue(),
		})
	}
	return result
}

func stringValues(ss []string) []any {
	values := make([]any, len(ss))
	for i, s := range ss {
		values[i] = s
	}
	return values
}
