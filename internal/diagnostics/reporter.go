package diagnostics

import (
	"fmt"
	"sort"
	"sync"
)

// Reporter accumulates diagnostics per file. It is safe for concurrent use
// and never fails: reporting the same code twice at one position keeps the
// first message.
type Reporter struct {
	mu    sync.Mutex
	files map[string]map[string]*Diagnostic
}

func NewReporter() *Reporter {
	return &Reporter{files: make(map[string]map[string]*Diagnostic)}
}

// Report records a diagnostic and returns it. A nil reporter drops it.
func (r *Reporter) Report(code ErrorCode, loc Location, severity Severity, message string) *Diagnostic {
	d := &Diagnostic{Code: code, Severity: severity, Location: loc, Message: message}
	r.Add(d)
	return d
}

func (r *Reporter) Reportf(code ErrorCode, loc Location, format string, args ...interface{}) *Diagnostic {
	return r.Report(code, loc, SeverityError, fmt.Sprintf(format, args...))
}

// Add records an already built diagnostic.
func (r *Reporter) Add(d *Diagnostic) {
	if r == nil || d == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.files[d.Location.File]
	if !ok {
		set = make(map[string]*Diagnostic)
		r.files[d.Location.File] = set
	}
	if _, dup := set[d.key()]; dup {
		return
	}
	set[d.key()] = d
}

// Merge copies every diagnostic of other into r.
func (r *Reporter) Merge(other *Reporter) {
	if other == nil {
		return
	}
	for _, d := range other.All() {
		r.Add(d)
	}
}

// ForFile returns the diagnostics of one file sorted by position, then code.
func (r *Reporter) ForFile(file string) []*Diagnostic {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	result := make([]*Diagnostic, 0, len(r.files[file]))
	for _, d := range r.files[file] {
		result = append(result, d)
	}
	r.mu.Unlock()
	sortDiagnostics(result)
	return result
}

// All returns every diagnostic ordered by file, then position.
func (r *Reporter) All() []*Diagnostic {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	var result []*Diagnostic
	for _, set := range r.files {
		for _, d := range set {
			result = append(result, d)
		}
	}
	r.mu.Unlock()
	sortDiagnostics(result)
	return result
}

func (r *Reporter) Files() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	files := make([]string, 0, len(r.files))
	for f := range r.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

func (r *Reporter) HasErrors() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, set := range r.files {
		for _, d := range set {
			if d.Severity == SeverityError {
				return true
			}
		}
	}
	return false
}

// Clear drops the diagnostics of the given files, or of every file when
// called without arguments.
func (r *Reporter) Clear(files ...string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(files) == 0 {
		r.files = make(map[string]map[string]*Diagnostic)
		return
	}
	for _, f := range files {
		delete(r.files, f)
	}
}

func sortDiagnostics(ds []*Diagnostic) {
	sort.Slice(ds, func(i, j int) bool {
		a, b := ds[i].Location, ds[j].Location
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return ds[i].Code < ds[j].Code
	})
}
