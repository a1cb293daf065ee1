// Package modules turns a project file, or a txtar archive, into a
// populated module graph.
package modules

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/funvibe/fir/internal/analyzer"
	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/config"
	"github.com/funvibe/fir/internal/library"
	"github.com/funvibe/fir/internal/session"
	"github.com/funvibe/fir/internal/symbols"
	"github.com/rs/zerolog"
)

// Module is a configured module with its decoded trees.
type Module struct {
	Name    string
	Depends []string
	// Libraries are paths of library indexes, resolved against the
	// project directory.
	Libraries []string
	// Trees maps file keys (slash-separated paths relative to the project
	// directory) to their trees.
	Trees map[string]*ast.Node
}

// Files lists the module's file keys in order.
func (m *Module) Files() []string {
	return slices.Sorted(maps.Keys(m.Trees))
}

// Workspace is everything a project file describes, loaded.
type Workspace struct {
	Config  *config.Config
	Modules []*Module

	libraries map[string]*symbols.Table
	logger    zerolog.Logger
}

type Option func(*Workspace) *Workspace

func WithLogger(logger zerolog.Logger) Option {
	return func(w *Workspace) *Workspace {
		w.logger = logger
		return w
	}
}

func newWorkspace(cfg *config.Config, options []Option) *Workspace {
	w := &Workspace{
		Config:    cfg,
		libraries: make(map[string]*symbols.Table),
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		w = opt(w)
	}
	return w
}

// Module returns the module called name.
func (w *Workspace) Module(name string) (*Module, bool) {
	for _, m := range w.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Trees returns every tree of the workspace, module by module in
// configuration order, files sorted within a module.
func (w *Workspace) Trees() []*ast.Node {
	var trees []*ast.Node
	for _, m := range w.Modules {
		for _, f := range m.Files() {
			trees = append(trees, m.Trees[f])
		}
	}
	return trees
}

// Analyzer creates an analyzer configured from the project file, with
// options applied after the configured ones, and populates its graph.
func (w *Workspace) Analyzer(ctx context.Context, options ...analyzer.Option) (*analyzer.Analyzer, error) {
	a := w.Config.Analysis
	configured := []analyzer.Option{
		analyzer.WithLogger(w.logger),
		analyzer.WithWorkers(a.Workers),
		analyzer.WithMaxIterations(a.MaxInferenceIterations),
	}
	if len(a.DefaultImports) > 0 {
		configured = append(configured, analyzer.WithDefaultImports(a.DefaultImports...))
	}
	an := analyzer.New(append(configured, options...)...)
	if err := w.Populate(ctx, an.Graph()); err != nil {
		return nil, err
	}
	return an, nil
}

// Populate adds every module of the workspace to graph, dependencies
// first, with its sources and libraries. A library shared by several
// modules is loaded once.
func (w *Workspace) Populate(ctx context.Context, graph *session.Graph) error {
	order, err := w.order()
	if err != nil {
		return err
	}
	for _, m := range order {
		s, err := graph.AddModule(m.Name, m.Depends...)
		if err != nil {
			return fmt.Errorf("module %s: %w", m.Name, err)
		}
		for _, f := range m.Files() {
			s.AddSource(f, m.Trees[f])
		}
		for _, path := range m.Libraries {
			table, err := w.library(ctx, path)
			if err != nil {
				return fmt.Errorf("module %s: %w", m.Name, err)
			}
			s.AddLibrary(table)
		}
		w.logger.Debug().Str("module", m.Name).Int("files", len(m.Trees)).
			Int("libraries", len(m.Libraries)).Msg("module populated")
	}
	return nil
}

func (w *Workspace) library(ctx context.Context, path string) (*symbols.Table, error) {
	if t, ok := w.libraries[path]; ok {
		return t, nil
	}
	t, err := library.Load(ctx, path, library.WithLogger(w.logger))
	if err != nil {
		return nil, err
	}
	w.libraries[path] = t
	return t, nil
}

// order sorts the modules so every module follows its dependencies.
func (w *Workspace) order() ([]*Module, error) {
	done := make(map[string]bool, len(w.Modules))
	var order []*Module
	for len(order) < len(w.Modules) {
		progress := false
		for _, m := range w.Modules {
			if done[m.Name] {
				continue
			}
			ready := true
			for _, d := range m.Depends {
				if !done[d] {
					ready = false
					break
				}
			}
			if ready {
				done[m.Name] = true
				order = append(order, m)
				progress = true
			}
		}
		if !progress {
			var stuck []string
			for _, m := range w.Modules {
				if !done[m.Name] {
					stuck = append(stuck, m.Name)
				}
			}
			return nil, fmt.Errorf("dependency cycle between modules %s", strings.Join(stuck, ", "))
		}
	}
	return order, nil
}
