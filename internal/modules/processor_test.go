package modules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/funvibe/fir/internal/analyzer"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	stages := append([]pipeline.Processor{&LoadProcessor{}}, analyzer.Processors()...)
	return pipeline.New(stages...).Run(ctx)
}

func TestPipelineOverArchive(t *testing.T) {
	ctx := pipeline.NewContext(context.Background(), "")
	ctx.Archive = []byte(project)
	ctx.ArchiveName = "project.txtar"
	ctx.Workers = 2

	out := run(ctx)
	require.Empty(t, out.Errors)
	assert.Equal(t, 2, out.Resolved)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, diagnostics.ErrUnresolvedReference, out.Diagnostics[0].Code)
	assert.True(t, out.Failed())
}

func TestPipelineFindsProjectFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fir.toml"), []byte(`
[[modules]]
name = "m"
sources = ["*.tree.yaml"]

[analysis]
log_level = "warn"
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.tree.yaml"), []byte(`
kind: file
package: p
children:
  - {kind: property, name: x, type: Int, children: [{kind: literal, literal: int, value: "1"}]}
`), 0o644))
	nested := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(nested, 0o755))

	out := run(pipeline.NewContext(context.Background(), nested))
	require.Empty(t, out.Errors)
	assert.Equal(t, 1, out.Resolved)
	assert.Empty(t, out.Diagnostics)
	assert.False(t, out.Failed())
	require.NotNil(t, out.Config)
	assert.Equal(t, dir, out.Config.Dir)
}

func TestPipelineWithoutProjectFile(t *testing.T) {
	out := run(pipeline.NewContext(context.Background(), t.TempDir()))
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0].Error(), "no project file found")
	assert.Nil(t, out.Analysis)
	assert.True(t, out.Failed())
}

func TestPipelineCancelled(t *testing.T) {
	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	ctx := pipeline.NewContext(cctx, "")
	ctx.Archive = []byte(project)

	out := run(ctx)
	require.NotEmpty(t, out.Errors)
	assert.True(t, diagnostics.IsCancelled(out.Errors[0]))
}
