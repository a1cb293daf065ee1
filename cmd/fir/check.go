package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/funvibe/fir/internal/analyzer"
	"github.com/funvibe/fir/internal/modules"
	"github.com/funvibe/fir/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// errFailed makes the process exit with 1 once diagnostics are printed.
var errFailed = errors.New("check failed")

type checkOptions struct {
	config  string
	archive string
	workers int
	dir     string
}

func newCheckCmd() *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check [dir]",
		Short: "Resolve every file of the workspace and print its diagnostics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.dir = "."
			if len(args) == 1 {
				opts.dir = args[0]
			}
			err := runCheck(cmd.Context(), opts, newLogger(), newPrinter(cmd.OutOrStdout()))
			if errors.Is(err, errFailed) {
				os.Exit(1)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&opts.config, "config", "c", "", "project file (default: nearest fir.yaml, fir.yml or fir.toml)")
	cmd.Flags().StringVar(&opts.archive, "txtar", "", "read the workspace from a txtar archive")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "files resolved at once (default: from the project file)")
	return cmd
}

// runCheck runs the analysis pipeline and prints what it found. It
// returns errFailed when an error was diagnosed.
func runCheck(ctx context.Context, opts *checkOptions, logger zerolog.Logger, out *printer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dir, err := filepath.Abs(opts.dir)
	if err != nil {
		return err
	}
	pctx := pipeline.NewContext(ctx, dir)
	pctx.Logger = logger
	pctx.Verbose = verbose
	pctx.ConfigPath = opts.config
	pctx.Workers = opts.workers
	if opts.archive != "" {
		data, err := os.ReadFile(opts.archive)
		if err != nil {
			return err
		}
		pctx.Archive = data
		pctx.ArchiveName = opts.archive
	}

	processors := append([]pipeline.Processor{&modules.LoadProcessor{}}, analyzer.Processors()...)
	result := pipeline.New(processors...).Run(pctx)

	out.diagnostics(result.Diagnostics)
	for _, err := range result.Errors {
		out.error(err)
	}
	out.summary(result.Resolved, result.Diagnostics)
	if result.Failed() {
		return errFailed
	}
	return nil
}
