package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/funvibe/fir/internal/diagnostics"
	"github.com/mattn/go-isatty"
)

// printer writes diagnostics for a human, in color on a terminal.
type printer struct {
	w                      io.Writer
	bad, warn, note        *color.Color
	location, code, status *color.Color
}

func newPrinter(w io.Writer) *printer {
	p := &printer{
		w:        w,
		bad:      color.New(color.FgRed, color.Bold),
		warn:     color.New(color.FgYellow, color.Bold),
		note:     color.New(color.FgCyan),
		location: color.New(color.Bold),
		code:     color.New(color.Faint),
		status:   color.New(color.Bold),
	}
	if !isTerminal(w) {
		for _, c := range []*color.Color{p.bad, p.warn, p.note, p.location, p.code, p.status} {
			c.DisableColor()
		}
	}
	return p
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) severity(s diagnostics.Severity) *color.Color {
	switch s {
	case diagnostics.SeverityError:
		return p.bad
	case diagnostics.SeverityWarning:
		return p.warn
	default:
		return p.note
	}
}

// diagnostics prints one line per diagnostic:
//
//	main.tree.yaml:4:9: error: unresolved reference: whisper [UNRESOLVED_REFERENCE]
func (p *printer) diagnostics(ds []*diagnostics.Diagnostic) {
	for _, d := range ds {
		fmt.Fprintf(p.w, "%s: %s: %s %s\n",
			p.location.Sprint(d.Location),
			p.severity(d.Severity).Sprint(d.Severity),
			d.Message,
			p.code.Sprintf("[%s]", d.Code))
	}
}

func (p *printer) error(err error) {
	fmt.Fprintf(p.w, "%s %s\n", p.bad.Sprint("error:"), err)
}

func (p *printer) summary(resolved int, ds []*diagnostics.Diagnostic) {
	var errors, warnings int
	for _, d := range ds {
		switch d.Severity {
		case diagnostics.SeverityError:
			errors++
		case diagnostics.SeverityWarning:
			warnings++
		}
	}
	fmt.Fprintln(p.w, p.status.Sprintf("%d files resolved, %d errors, %d warnings", resolved, errors, warnings))
}
