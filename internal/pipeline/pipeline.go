package pipeline

import (
	"context"
	"slices"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/config"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/session"
	"github.com/rs/zerolog"
)

// Processor is one stage of a pipeline.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *PipelineContext) *PipelineContext

func (f ProcessorFunc) Process(ctx *PipelineContext) *PipelineContext { return f(ctx) }

// Analysis is the analyzer as the stages after loading see it.
type Analysis interface {
	Graph() *session.Graph
	Diagnostics(file string) []*diagnostics.Diagnostic
	Files() []string
}

// PipelineContext carries one run through the stages.
type PipelineContext struct {
	Context context.Context
	Logger  zerolog.Logger

	// ConfigPath is the project file; when empty it is searched from Dir.
	ConfigPath string
	Dir        string
	// Archive is a txtar workspace used instead of a project file.
	Archive     []byte
	ArchiveName string
	// Workers overrides the configured worker count when positive.
	Workers int
	// Verbose keeps the logger's level instead of the configured one.
	Verbose bool

	Config   *config.Config
	Analysis Analysis
	// Trees are the files to resolve, in a stable order.
	Trees    []*ast.Node
	Resolved int

	Diagnostics []*diagnostics.Diagnostic
	Errors      []error
}

// NewContext starts a run in dir.
func NewContext(ctx context.Context, dir string) *PipelineContext {
	return &PipelineContext{Context: ctx, Dir: dir, Logger: zerolog.Nop()}
}

// Failed reports whether a stage failed or an error was diagnosed.
func (c *PipelineContext) Failed() bool {
	if len(c.Errors) > 0 {
		return true
	}
	return slices.ContainsFunc(c.Diagnostics, func(d *diagnostics.Diagnostic) bool {
		return d.Severity == diagnostics.SeverityError
	})
}

// Pipeline represents a sequence of processing stages.
type Pipeline struct {
	processors []Processor
}

func New(processors ...Processor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Run executes the pipeline.
func (p *Pipeline) Run(initialCtx *PipelineContext) *PipelineContext {
	ctx := initialCtx
	for _, processor := range p.processors {
		if ctx.Context != nil && ctx.Context.Err() != nil {
			ctx.Errors = append(ctx.Errors, diagnostics.CheckCancelled(ctx.Context))
			break
		}
		ctx = processor.Process(ctx)
		// Continue on errors to collect diagnostics from all stages.
	}
	return ctx
}

// CollectProcessor gathers the diagnostics of every file with any, file
// by file in the order the analysis lists them.
type CollectProcessor struct{}

func (CollectProcessor) Process(ctx *PipelineContext) *PipelineContext {
	if ctx.Analysis == nil {
		return ctx
	}
	for _, f := range ctx.Analysis.Files() {
		ctx.Diagnostics = append(ctx.Diagnostics, ctx.Analysis.Diagnostics(f)...)
	}
	return ctx
}
