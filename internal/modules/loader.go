package modules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"testing/fstest"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/funvibe/fir/internal/ast"
	"github.com/funvibe/fir/internal/config"
	"github.com/funvibe/fir/internal/diagnostics"
	"golang.org/x/tools/txtar"
)

// DuplicateFileError reports a file matched by the sources of two modules.
type DuplicateFileError struct {
	File    string
	Modules [2]string
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("%s is a source of both %s and %s", e.File, e.Modules[0], e.Modules[1])
}

// Load reads the trees of every module of cfg from the project directory.
func Load(ctx context.Context, cfg *config.Config, options ...Option) (*Workspace, error) {
	return load(ctx, cfg, os.DirFS(cfg.Dir), options)
}

// LoadTxtar reads a workspace from a txtar archive holding a project file
// and the tree dumps it names. Library paths are resolved against dir.
func LoadTxtar(ctx context.Context, data []byte, dir string, options ...Option) (*Workspace, error) {
	cfg, fsys, err := parseArchive(data, dir)
	if err != nil {
		return nil, err
	}
	return load(ctx, cfg, fsys, options)
}

func parseArchive(data []byte, dir string) (*config.Config, fs.FS, error) {
	archive := txtar.Parse(data)
	fsys := make(fstest.MapFS, len(archive.Files))
	var cfgName string
	for _, f := range archive.Files {
		name := path.Clean(strings.TrimSpace(f.Name))
		if _, dup := fsys[name]; dup {
			return nil, nil, fmt.Errorf("archive: %s appears twice", name)
		}
		fsys[name] = &fstest.MapFile{Data: f.Data}
		if cfgName == "" && slices.Contains(config.ConfigFileNames, name) {
			cfgName = name
		}
	}
	if cfgName == "" {
		return nil, nil, fmt.Errorf("archive: no project file (%s)", strings.Join(config.ConfigFileNames, ", "))
	}
	cfg, err := config.ParseConfig(fsys[cfgName].Data, cfgName)
	if err != nil {
		return nil, nil, err
	}
	cfg.Dir = dir
	return cfg, fsys, nil
}

func load(ctx context.Context, cfg *config.Config, fsys fs.FS, options []Option) (*Workspace, error) {
	w := newWorkspace(cfg, options)
	owner := make(map[string]string)
	for _, mc := range cfg.Modules {
		m := &Module{
			Name:    mc.Name,
			Depends: mc.Depends,
			Trees:   make(map[string]*ast.Node),
		}
		for _, lib := range mc.Libraries {
			m.Libraries = append(m.Libraries, cfg.Path(lib))
		}
		for _, pattern := range mc.Sources {
			if err := diagnostics.CheckCancelled(ctx); err != nil {
				return nil, err
			}
			matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("module %s: %s: %w", mc.Name, pattern, err)
			}
			if len(matches) == 0 {
				w.logger.Warn().Str("module", mc.Name).Str("pattern", pattern).Msg("source glob matches nothing")
			}
			for _, file := range matches {
				if other, ok := owner[file]; ok {
					if other == mc.Name {
						continue
					}
					return nil, &DuplicateFileError{File: file, Modules: [2]string{other, mc.Name}}
				}
				tree, err := readTree(fsys, file)
				if err != nil {
					return nil, fmt.Errorf("module %s: %w", mc.Name, err)
				}
				owner[file] = mc.Name
				m.Trees[file] = tree
			}
		}
		w.Modules = append(w.Modules, m)
		w.logger.Debug().Str("module", m.Name).Int("files", len(m.Trees)).Msg("module loaded")
	}
	return w, nil
}

// readTree decodes a tree dump. The file key becomes the tree's name so
// that diagnostics point at the dump.
func readTree(fsys fs.FS, file string) (*ast.Node, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, err
	}
	tree, err := ast.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if tree.Kind != ast.KindFile {
		return nil, fmt.Errorf("%s: root is %s, want %s", file, tree.Kind, ast.KindFile)
	}
	tree.Name = file
	return tree, nil
}
