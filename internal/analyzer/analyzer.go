package analyzer

import (
	"context"
	"fmt"
	"slices"

	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/funvibe/fir/internal/inference"
	"github.com/funvibe/fir/internal/session"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/funvibe/fir/internal/typesystem"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds ResolveFiles when no worker count is configured.
const DefaultWorkers = 4

// Analyzer drives resolution for a workspace. It owns the module graph and
// is the builder of its sessions: building a session runs the naming and
// header passes, resolving a file runs the body pass.
type Analyzer struct {
	graph *session.Graph

	// declarations holds what the naming and header passes report, per
	// file; bodies what the body pass reports.
	declarations *diagnostics.Reporter
	bodies       *diagnostics.Reporter

	defaults      []string
	workers       int
	maxIterations int
	graphOptions  []session.Option
	logger        zerolog.Logger
}

type Option func(*Analyzer) *Analyzer

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Analyzer) *Analyzer {
		a.logger = logger
		return a
	}
}

// WithWorkers bounds the number of files ResolveFiles resolves at once.
func WithWorkers(n int) Option {
	return func(a *Analyzer) *Analyzer {
		if n > 0 {
			a.workers = n
		}
		return a
	}
}

// WithMaxIterations caps the constraint steps of every call resolution.
func WithMaxIterations(n int) Option {
	return func(a *Analyzer) *Analyzer {
		if n > 0 {
			a.maxIterations = n
		}
		return a
	}
}

// WithDefaultImports replaces the packages every file imports implicitly.
func WithDefaultImports(pkgs ...string) Option {
	return func(a *Analyzer) *Analyzer {
		a.defaults = slices.Clone(pkgs)
		return a
	}
}

// WithBuiltins replaces the builtin declarations every module sees.
func WithBuiltins(index symbols.Index) Option {
	return func(a *Analyzer) *Analyzer {
		a.graphOptions = append(a.graphOptions, session.WithBuiltins(index))
		return a
	}
}

func New(options ...Option) *Analyzer {
	a := &Analyzer{
		declarations:  diagnostics.NewReporter(),
		bodies:        diagnostics.NewReporter(),
		defaults:      []string{typesystem.BuiltinPackage},
		workers:       DefaultWorkers,
		maxIterations: inference.DefaultMaxIterations,
		logger:        zerolog.Nop(),
	}
	for _, opt := range options {
		a = opt(a)
	}
	graphOptions := append([]session.Option{session.WithLogger(a.logger)}, a.graphOptions...)
	a.graph = session.NewGraph(a, graphOptions...)
	return a
}

// Graph is the module graph whose sessions the analyzer builds.
func (a *Analyzer) Graph() *session.Graph { return a.graph }

// Index implements session.Builder: it runs the naming and header passes
// over the given files of s.
func (a *Analyzer) Index(ctx context.Context, s *session.Session, files []string) error {
	a.bodies.Clear(files...)
	decls, err := a.AnalyzeNaming(ctx, s, files...)
	if err != nil {
		return err
	}
	return a.AnalyzeHeaders(ctx, s, decls)
}

// UnknownFileError reports a file no module of the graph contains.
type UnknownFileError struct {
	File string
}

func (e *UnknownFileError) Error() string {
	return "no module contains " + e.File
}

// ResolveFile resolves tree in the module that owns its file, building the
// module first when needed. Problems in the tree are reported as
// diagnostics; the error is a cancellation, a build failure or an
// *UnknownFileError.
func (a *Analyzer) ResolveFile(ctx context.Context, tree *ast.Node) (*AnnotatedTree, error) {
	if tree == nil {
		return nil, fmt.Errorf("resolve: nil tree")
	}
	module, err := a.ModuleOf(tree.Name)
	if err != nil {
		return nil, err
	}
	return a.ResolveFileIn(ctx, module, tree)
}

// ResolveFileIn resolves tree against the given module.
func (a *Analyzer) ResolveFileIn(ctx context.Context, module string, tree *ast.Node) (*AnnotatedTree, error) {
	s, release, err := a.graph.ReadSession(ctx, module)
	if err != nil {
		return nil, err
	}
	defer release()
	return a.resolveLocked(ctx, s, tree)
}

// ModuleOf returns the module whose sources include file.
func (a *Analyzer) ModuleOf(file string) (string, error) {
	for _, m := range a.graph.Modules() {
		s, ok := a.graph.Session(m)
		if ok && s.Owns(file) {
			return m, nil
		}
	}
	return "", &UnknownFileError{File: file}
}

// resolveLocked runs the body pass, or returns the cached result for the
// same tree. The caller holds the session's read lock.
func (a *Analyzer) resolveLocked(ctx context.Context, s *session.Session, tree *ast.Node) (*AnnotatedTree, error) {
	if cached, ok := s.Cache().Tree(tree.Name); ok {
		if at, ok := cached.(*AnnotatedTree); ok && at.Root == tree {
			return at, nil
		}
	}
	at, err := a.AnalyzeBodies(ctx, s, tree)
	if err != nil {
		return nil, err
	}
	s.Cache().PutTree(tree.Name, at)
	return at, nil
}

// ResolveFiles resolves several files. Files of one module are resolved
// concurrently against a single snapshot of its session, at most workers
// at a time; modules are handled one after the other. Results are in the
// order of trees.
func (a *Analyzer) ResolveFiles(ctx context.Context, trees []*ast.Node) ([]*AnnotatedTree, error) {
	byModule := make(map[string][]int)
	var modules []string
	for i, tree := range trees {
		if tree == nil {
			return nil, fmt.Errorf("resolve: nil tree at %d", i)
		}
		m, err := a.ModuleOf(tree.Name)
		if err != nil {
			return nil, err
		}
		if _, seen := byModule[m]; !seen {
			modules = append(modules, m)
		}
		byModule[m] = append(byModule[m], i)
	}

	result := make([]*AnnotatedTree, len(trees))
	for _, m := range modules {
		if err := a.resolveGroup(ctx, m, trees, byModule[m], result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (a *Analyzer) resolveGroup(ctx context.Context, module string, trees []*ast.Node, indexes []int, result []*AnnotatedTree) error {
	s, release, err := a.graph.ReadSession(ctx, module)
	if err != nil {
		return err
	}
	defer release()
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(a.workers)
	for _, i := range indexes {
		eg.Go(func() error {
			at, err := a.resolveLocked(egctx, s, trees[i])
			if err != nil {
				return err
			}
			result[i] = at
			return nil
		})
	}
	return eg.Wait()
}

// Diagnostics returns everything reported for file by the last indexing
// and the last resolution of it, sorted by position.
func (a *Analyzer) Diagnostics(file string) []*diagnostics.Diagnostic {
	r := diagnostics.NewReporter()
	for _, d := range a.declarations.ForFile(file) {
		r.Add(d)
	}
	for _, d := range a.bodies.ForFile(file) {
		r.Add(d)
	}
	return r.ForFile(file)
}

// Files lists the files with diagnostics.
func (a *Analyzer) Files() []string {
	files := append(a.declarations.Files(), a.bodies.Files()...)
	slices.Sort(files)
	return slices.Compact(files)
}

// Forget drops the diagnostics of deleted files.
func (a *Analyzer) Forget(files ...string) {
	if len(files) == 0 {
		return
	}
	a.declarations.Clear(files...)
	a.bodies.Clear(files...)
}
