package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/funvibe/fir/internal/analyzer"
	"github.com/funvibe/fir/internal/config"
	"github.com/funvibe/fir/internal/daemon"
	"github.com/funvibe/fir/internal/modules"
	"github.com/funvibe/fir/internal/pipeline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

type serveOptions struct {
	addr           string
	config         string
	dir            string
	maxDiagnostics int
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve [dir]",
		Short: "Load the workspace and answer resolution requests over gRPC",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.dir = "."
			if len(args) == 1 {
				opts.dir = args[0]
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, newLogger())
		},
	}
	cmd.Flags().StringVarP(&opts.addr, "addr", "a", config.DefaultAddr, "address to listen on")
	cmd.Flags().StringVarP(&opts.config, "config", "c", "", "project file (default: nearest fir.yaml, fir.yml or fir.toml)")
	cmd.Flags().IntVar(&opts.maxDiagnostics, "max-diagnostics", config.MaxDiagnosticsSent, "diagnostics sent per file")
	return cmd
}

// load builds every module of the workspace once, so the first requests
// find the sessions ready.
func load(ctx context.Context, opts *serveOptions, logger zerolog.Logger) (*analyzer.Analyzer, error) {
	dir, err := filepath.Abs(opts.dir)
	if err != nil {
		return nil, err
	}
	pctx := pipeline.NewContext(ctx, dir)
	pctx.Logger = logger
	pctx.Verbose = verbose
	pctx.ConfigPath = opts.config
	result := pipeline.New(&modules.LoadProcessor{}, &analyzer.BuildProcessor{}).Run(pctx)
	if len(result.Errors) > 0 {
		return nil, result.Errors[0]
	}
	return result.Analysis.(*analyzer.Analyzer), nil
}

func serve(ctx context.Context, opts *serveOptions, logger zerolog.Logger) error {
	a, err := load(ctx, opts, logger)
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	gs := grpc.NewServer()
	daemon.NewServer(a, daemon.WithLogger(logger), daemon.WithMaxDiagnostics(opts.maxDiagnostics)).Register(gs)
	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		gs.GracefulStop()
	}()

	logger.Info().Str("addr", lis.Addr().String()).Strs("modules", a.Graph().Modules()).Msg("serving")
	if err := gs.Serve(lis); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
