package analyzer

import (
	"github.com/funvibe/fir/internal/pipeline"
)

// BuildProcessor builds the session of every module so that declaration
// problems are reported even for modules with nothing to resolve.
type BuildProcessor struct{}

func (bp *BuildProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	a, ok := ctx.Analysis.(*Analyzer)
	if !ok {
		return ctx
	}
	for _, m := range a.graph.Modules() {
		if _, err := a.graph.GetSession(ctx.Context, m); err != nil {
			ctx.Errors = append(ctx.Errors, err)
			continue
		}
		ctx.Logger.Debug().Str("module", m).Msg("session built")
	}
	return ctx
}

// ResolveProcessor resolves the trees of the run.
type ResolveProcessor struct{}

func (rp *ResolveProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	a, ok := ctx.Analysis.(*Analyzer)
	if !ok || len(ctx.Trees) == 0 {
		return ctx
	}
	trees, err := a.ResolveFiles(ctx.Context, ctx.Trees)
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Resolved = len(trees)
	ctx.Logger.Info().Int("files", len(trees)).Msg("files resolved")
	return ctx
}

// Processors is the standard sequence after loading: build, resolve,
// collect.
func Processors() []pipeline.Processor {
	return []pipeline.Processor{&BuildProcessor{}, &ResolveProcessor{}, pipeline.CollectProcessor{}}
}
