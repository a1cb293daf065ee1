// Package config reads the project file that describes a workspace: its
// modules, their sources and libraries, and the analysis settings.
//
// The project file is fir.yaml (or fir.yml) or fir.toml, found by walking
// up from a directory:
//
//	modules:
//	  - name: core
//	    sources: ["core/**/*.tree.yaml"]
//	    libraries: ["libs/stdlib.firlib"]
//	  - name: app
//	    sources: ["app/**/*.tree.yaml"]
//	    depends: [core]
//	analysis:
//	  workers: 8
//	  log_level: debug
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is a parsed project file.
type Config struct {
	Modules  []Module `yaml:"modules" toml:"modules"`
	Analysis Analysis `yaml:"analysis" toml:"analysis"`

	// Dir is the directory of the project file. Source globs and library
	// paths are relative to it.
	Dir string `yaml:"-" toml:"-"`
}

// Module is one compilation unit of the workspace.
type Module struct {
	Name string `yaml:"name" toml:"name"`

	// Sources are doublestar globs matching the tree dumps of the module.
	Sources []string `yaml:"sources" toml:"sources"`

	// Depends names the modules whose declarations this one sees. Only
	// direct dependencies are visible.
	Depends []string `yaml:"depends,omitempty" toml:"depends"`

	// Libraries are compiled library indexes loaded into the module.
	Libraries []string `yaml:"libraries,omitempty" toml:"libraries"`
}

// Analysis tunes the resolver.
type Analysis struct {
	// Workers bounds the files resolved at once. Defaults to 4.
	Workers int `yaml:"workers,omitempty" toml:"workers"`

	// MaxInferenceIterations caps the constraint steps of one call.
	MaxInferenceIterations int `yaml:"max_inference_iterations,omitempty" toml:"max_inference_iterations"`

	// DefaultImports replaces the packages imported by every file.
	DefaultImports []string `yaml:"default_imports,omitempty" toml:"default_imports"`

	// LogLevel is a zerolog level name. Defaults to info.
	LogLevel string `yaml:"log_level,omitempty" toml:"log_level"`
}

// LoadConfig reads and parses a project file. The format follows the
// extension: .toml files are TOML, everything else YAML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}
	if cfg.Dir, err = filepath.Abs(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("resolving directory of %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig parses project file content. path selects the format and
// appears in error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	var err error
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for a project file starting from dir and walking up
// to its parents. It returns "" and a nil error when there is none.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	if len(c.Modules) == 0 {
		return fmt.Errorf("%s: no modules defined", path)
	}
	names := make(map[string]int, len(c.Modules))
	for i, m := range c.Modules {
		if m.Name == "" {
			return fmt.Errorf("%s: modules[%d]: name is required", path, i)
		}
		if prev, ok := names[m.Name]; ok {
			return fmt.Errorf("%s: modules[%d]: name %q already used by modules[%d]", path, i, m.Name, prev)
		}
		names[m.Name] = i
		if len(m.Sources) == 0 {
			return fmt.Errorf("%s: modules[%d] (%s): at least one source glob is required", path, i, m.Name)
		}
		for j, glob := range m.Sources {
			if !doublestar.ValidatePattern(filepath.ToSlash(glob)) {
				return fmt.Errorf("%s: modules[%d].sources[%d] (%s): invalid glob %q", path, i, j, m.Name, glob)
			}
		}
	}
	for i, m := range c.Modules {
		for j, dep := range m.Depends {
			if dep == m.Name {
				return fmt.Errorf("%s: modules[%d].depends[%d] (%s): a module cannot depend on itself", path, i, j, m.Name)
			}
			if _, ok := names[dep]; !ok {
				return fmt.Errorf("%s: modules[%d].depends[%d] (%s): unknown module %q", path, i, j, m.Name, dep)
			}
		}
	}

	a := c.Analysis
	if a.Workers < 0 {
		return fmt.Errorf("%s: analysis.workers must not be negative", path)
	}
	if a.MaxInferenceIterations < 0 {
		return fmt.Errorf("%s: analysis.max_inference_iterations must not be negative", path)
	}
	if a.LogLevel != "" {
		if _, err := zerolog.ParseLevel(a.LogLevel); err != nil {
			return fmt.Errorf("%s: analysis.log_level: %w", path, err)
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Analysis.Workers == 0 {
		c.Analysis.Workers = DefaultWorkers
	}
	if c.Analysis.MaxInferenceIterations == 0 {
		c.Analysis.MaxInferenceIterations = DefaultMaxIterations
	}
	if len(c.Analysis.DefaultImports) == 0 {
		c.Analysis.DefaultImports = slices.Clone(DefaultImports)
	}
	if c.Analysis.LogLevel == "" {
		c.Analysis.LogLevel = DefaultLogLevel
	}
}

// Level is the configured log level.
func (a Analysis) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(a.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Module returns the module called name.
func (c *Config) Module(name string) (*Module, bool) {
	for i := range c.Modules {
		if c.Modules[i].Name == name {
			return &c.Modules[i], true
		}
	}
	return nil, false
}

// Path resolves a path written in the project file.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}
