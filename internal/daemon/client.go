package daemon

import (
	"context"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/config"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/session"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls a resolution daemon.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+config.ResolutionService+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveFile resolves file. With a tree the daemon first replaces the
// file's tree with it; module may be empty when the file is already part
// of one.
func (c *Client) ResolveFile(ctx context.Context, module, file string, tree *ast.Node) (*Resolution, error) {
	req := map[string]any{"file": file}
	if module != "" {
		req["module"] = module
	}
	if tree != nil {
		text, err := encodeTree(tree)
		if err != nil {
			return nil, err
		}
		req["tree"] = text
	}
	out, err := c.invoke(ctx, "ResolveFile", req)
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	ds, err := parseDiagnostics(f["diagnostics"].GetListValue())
	if err != nil {
		return nil, err
	}
	return &Resolution{
		File:        f["file"].GetStringValue(),
		Types:       int(f["types"].GetNumberValue()),
		Resolutions: parseResolutions(f["resolutions"].GetListValue()),
		Diagnostics: ds,
	}, nil
}

// GetDiagnostics returns the diagnostics the daemon holds for file.
func (c *Client) GetDiagnostics(ctx context.Context, file string) ([]*diagnostics.Diagnostic, error) {
	out, err := c.invoke(ctx, "GetDiagnostics", map[string]any{"file": file})
	if err != nil {
		return nil, err
	}
	return parseDiagnostics(out.GetFields()["diagnostics"].GetListValue())
}

// Invalidate sends edits of module's files; a change without a tree
// deletes the file. It returns the affected modules.
func (c *Client) Invalidate(ctx context.Context, module string, changes ...session.Change) ([]string, error) {
	list := make([]any, 0, len(changes))
	for _, ch := range changes {
		entry := map[string]any{"file": ch.File}
		if ch.Tree != nil {
			text, err := encodeTree(ch.Tree)
			if err != nil {
				return nil, err
			}
			entry["tree"] = text
		}
		list = append(list, entry)
	}
	out, err := c.invoke(ctx, "Invalidate", map[string]any{"module": module, "changes": list})
	if err != nil {
		return nil, err
	}
	var affected []string
	for _, v := range out.GetFields()["affected"].GetListValue().GetValues() {
		affected = append(affected, v.GetStringValue())
	}
	return affected, nil
}
