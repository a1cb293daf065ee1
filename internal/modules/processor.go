package modules

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/funvibe/fir/internal/analyzer"
	"github.com/funvibe/fir/internal/config"
	"github.com/funvibe/fir/internal/pipeline"
)

// LoadProcessor loads the workspace of a run and sets up its analyzer.
type LoadProcessor struct {
	// Options are applied to the analyzer after the configured ones.
	Options []analyzer.Option
}

func (p *LoadProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	cfg, fsys, err := p.config(ctx)
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Config = cfg
	if !ctx.Verbose {
		ctx.Logger = ctx.Logger.Level(cfg.Analysis.Level())
	}

	ws, err := load(ctx.Context, cfg, fsys, []Option{WithLogger(ctx.Logger)})
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	options := p.Options
	if ctx.Workers > 0 {
		options = append(options, analyzer.WithWorkers(ctx.Workers))
	}
	a, err := ws.Analyzer(ctx.Context, options...)
	if err != nil {
		ctx.Errors = append(ctx.Errors, err)
		return ctx
	}
	ctx.Analysis = a
	ctx.Trees = ws.Trees()
	ctx.Logger.Info().Int("modules", len(ws.Modules)).Int("files", len(ctx.Trees)).Msg("workspace loaded")
	return ctx
}

// config reads the project file of the run: the archive's when there is
// one, otherwise the given or the nearest one on disk.
func (p *LoadProcessor) config(ctx *pipeline.PipelineContext) (*config.Config, fs.FS, error) {
	if ctx.Archive != nil {
		cfg, fsys, err := parseArchive(ctx.Archive, ctx.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", ctx.ArchiveName, err)
		}
		return cfg, fsys, nil
	}

	path := ctx.ConfigPath
	if path == "" {
		found, err := config.FindConfig(ctx.Dir)
		if err != nil {
			return nil, nil, err
		}
		if found == "" {
			return nil, nil, fmt.Errorf("no project file found in %s or its parents", ctx.Dir)
		}
		path = found
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, os.DirFS(cfg.Dir), nil
}
