package modules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/config"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const project = `Two modules, app depends on core.
-- fir.yaml --
modules:
  - name: core
    sources: ["core/**/*.tree.yaml"]
  - name: app
    sources: ["app/*.tree.yaml"]
    depends: [core]
-- core/util/strings.tree.yaml --
kind: file
package: util
children:
  - kind: function
    name: shout
    type: String
    children:
      - {kind: parameter, name: s, type: String}
      - {kind: reference, name: s}
-- app/main.tree.yaml --
kind: file
package: app
children:
  - {kind: import, name: util.shout}
  - kind: function
    name: main
    children:
      - kind: block
        children:
          - kind: call
            name: shout
            children:
              - kind: argument
                children:
                  - {kind: literal, literal: string, value: hi}
          - {kind: call, name: whisper}
`

func TestLoadTxtar(t *testing.T) {
	ws, err := LoadTxtar(context.Background(), []byte(project), "")
	require.NoError(t, err)
	require.Len(t, ws.Modules, 2)

	core, ok := ws.Module("core")
	require.True(t, ok)
	assert.Equal(t, []string{"core/util/strings.tree.yaml"}, core.Files())
	tree := core.Trees["core/util/strings.tree.yaml"]
	assert.Equal(t, "core/util/strings.tree.yaml", tree.Name)
	assert.Equal(t, "util", tree.Value)

	app, ok := ws.Module("app")
	require.True(t, ok)
	assert.Equal(t, []string{"core"}, app.Depends)

	var names []string
	for _, tree := range ws.Trees() {
		names = append(names, tree.Name)
	}
	assert.Equal(t, []string{"core/util/strings.tree.yaml", "app/main.tree.yaml"}, names)
}

func TestAnalyzerResolvesAcrossModules(t *testing.T) {
	ctx := context.Background()
	ws, err := LoadTxtar(ctx, []byte(project), "")
	require.NoError(t, err)
	a, err := ws.Analyzer(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"core", "app"}, a.Graph().Modules())

	app, _ := ws.Module("app")
	tree := app.Trees["app/main.tree.yaml"]
	at, err := a.ResolveFile(ctx, tree)
	require.NoError(t, err)

	var shout, whisper *ast.Node
	ast.Inspect(tree, func(n *ast.Node) bool {
		if n.Kind == ast.KindCall {
			switch n.Name {
			case "shout":
				shout = n
			case "whisper":
				whisper = n
			}
		}
		return true
	})
	require.NotNil(t, shout)
	c, ok := at.Resolution(shout)
	require.True(t, ok)
	assert.Equal(t, "util.shout", c.Symbol.Qualified)
	assert.Equal(t, "core", c.Symbol.Module)

	assert.Error(t, at.Err(whisper))
	diags := a.Diagnostics("app/main.tree.yaml")
	require.Len(t, diags, 1)
	assert.Equal(t, diagnostics.ErrUnresolvedReference, diags[0].Code)
	assert.Equal(t, "app/main.tree.yaml", diags[0].Location.File)
}

func TestDuplicateFile(t *testing.T) {
	archive := `-- fir.yaml --
modules:
  - {name: a, sources: ["**/*.tree.yaml"]}
  - {name: b, sources: ["b/*.tree.yaml"]}
-- b/x.tree.yaml --
kind: file
package: b
`
	_, err := LoadTxtar(context.Background(), []byte(archive), "")
	var dup *DuplicateFileError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "b/x.tree.yaml", dup.File)
	assert.Equal(t, [2]string{"a", "b"}, dup.Modules)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		archive string
		wantErr string
	}{
		{"no project file", "-- a.tree.yaml --\nkind: file\n", "no project file"},
		{"bad tree", "-- fir.yaml --\nmodules: [{name: a, sources: [\"*.tree.yaml\"]}]\n-- x.tree.yaml --\nkind: nonsense\n", `unknown node kind "nonsense"`},
		{"root is not a file", "-- fir.yaml --\nmodules: [{name: a, sources: [\"*.tree.yaml\"]}]\n-- x.tree.yaml --\nkind: block\n", "root is block"},
		{"invalid project", "-- fir.yaml --\nmodules: []\n", "no modules defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTxtar(context.Background(), []byte(tt.archive), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDependencyCycle(t *testing.T) {
	archive := `-- fir.yaml --
modules:
  - {name: a, sources: ["a/*"], depends: [b]}
  - {name: b, sources: ["b/*"], depends: [a]}
`
	ctx := context.Background()
	ws, err := LoadTxtar(ctx, []byte(archive), "")
	require.NoError(t, err)
	_, err = ws.Analyzer(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle between modules a, b")
}

func TestLoadFromDiskWithLibrary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "libs"), 0o755))
	require.NoError(t, library.Create(filepath.Join(dir, "libs", "ext.firlib"), library.Contents{
		Functions: []library.Function{{Package: "ext", Declaration: "fun greet(name: String): String"}},
	}))
	write := func(name, content string) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("fir.yaml", `
modules:
  - name: app
    sources: ["src/**/*.tree.yaml"]
    libraries: ["libs/ext.firlib"]
`)
	write("src/main.tree.yaml", `
kind: file
package: app
children:
  - {kind: import, name: ext.*}
  - kind: property
    name: greeting
    children:
      - kind: call
        name: greet
        children:
          - kind: argument
            children:
              - {kind: literal, literal: "null", value: "null"}
`)
	ctx := context.Background()
	cfg, err := config.LoadConfig(filepath.Join(dir, "fir.yaml"))
	require.NoError(t, err)
	ws, err := Load(ctx, cfg)
	require.NoError(t, err)
	a, err := ws.Analyzer(ctx)
	require.NoError(t, err)

	at, err := a.ResolveFile(ctx, ws.Trees()[0])
	require.NoError(t, err)
	assert.Empty(t, at.Diagnostics, "platform parameters accept null")
	greet := ws.Trees()[0].Children[1].Children[0]
	c, ok := at.Resolution(greet)
	require.True(t, ok)
	assert.Equal(t, "ext.greet", c.Symbol.Qualified)
}
