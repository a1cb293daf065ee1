package config

// ConfigFileNames are the project files FindConfig looks for, in order.
var ConfigFileNames = []string{"fir.yaml", "fir.yml", "fir.toml"}

// TreeFileExt is the extension of tree dumps produced by a front end.
const TreeFileExt = ".tree.yaml"

// LibraryFileExt is the extension of compiled library indexes.
const LibraryFileExt = ".firlib"

// Analysis defaults
const (
	DefaultWorkers       = 4
	DefaultMaxIterations = 10000
	DefaultLogLevel      = "info"
)

// DefaultImports are the packages every file imports implicitly.
var DefaultImports = []string{"kotlin"}

// Daemon defaults
const (
	DefaultAddr        = "localhost:7070"
	ResolutionService  = "fir.Resolution"
	MaxDiagnosticsSent = 1000
)
