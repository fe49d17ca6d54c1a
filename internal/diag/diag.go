// Package diag implements vc's diagnostic sink: the error kinds, the
// user-visible "<file>:<line>:<column>: <severity>: <message>" format, and
// color/terminal detection.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/kr/text"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// Kind classifies a diagnostic by the phase that raised it.
type Kind string

const (
	IO         Kind = "io"
	Preprocess Kind = "preprocess"
	Lex        Kind = "lex"
	Parse      Kind = "parse"
	Semantic   Kind = "semantic"
	Codegen    Kind = "codegen"
	OOM        Kind = "oom"
)

// Severity distinguishes fatal errors from advisory warnings.
type Severity string

const (
	SevError   Severity = "error"
	SevWarning Severity = "warning"
)

// Location pinpoints a diagnostic in source text.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Diagnostic is a single recorded error or warning.
type Diagnostic struct {
	Kind     Kind
	Severity Severity
	Loc      Location
	Message  string
	Source   string // the offending source line, for caret context
	cause    error  // wrapped, stack-carrying cause (internal only)
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Loc, d.Severity, d.Message)
}

// Unwrap exposes the pkg/errors-wrapped cause, if any, so callers using
// errors.Is/As on an internal failure can still reach the original error.
func (d *Diagnostic) Unwrap() error { return d.cause }

// New constructs a fatal diagnostic.
func New(kind Kind, loc Location, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Kind:     kind,
		Severity: SevError,
		Loc:      loc,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Warn constructs an advisory diagnostic.
func Warn(kind Kind, loc Location, format string, args ...interface{}) *Diagnostic {
	return &Diagnostic{
		Kind:     kind,
		Severity: SevWarning,
		Loc:      loc,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Wrap attaches a stack-carrying internal cause to a diagnostic; the stack
// is never part of the user-visible message, only of --debug output.
func (d *Diagnostic) Wrap(cause error) *Diagnostic {
	d.cause = errors.WithStack(cause)
	return d
}

// WithSource attaches the offending source line for caret rendering.
func (d *Diagnostic) WithSource(line string) *Diagnostic {
	d.Source = line
	return d
}

// Sink accumulates diagnostics for one translation unit. Non-fatal
// diagnostics (warnings) never abort; the first recorded error marks the
// unit as failed, but the owning phase keeps running so it can surface as
// many real problems as possible before the pipeline short-circuits.
type Sink struct {
	diags      []*Diagnostic
	errored    bool
	debug      bool
	colorForce *bool // nil = auto-detect, else forced
}

// NewSink creates an empty diagnostic sink.
func NewSink() *Sink { return &Sink{} }

// SetDebug enables stack traces under Report when the diagnostic wraps an
// internal cause.
func (s *Sink) SetDebug(v bool) { s.debug = v }

// SetColor forces (or forbids) ANSI color regardless of terminal detection;
// once called, terminal detection is no longer consulted for this sink.
func (s *Sink) SetColor(v bool) { s.colorForce = &v }

// Add records a diagnostic. Recording a SevError diagnostic marks the sink
// failed; SevWarning diagnostics never do.
func (s *Sink) Add(d *Diagnostic) {
	s.diags = append(s.diags, d)
	if d.Severity == SevError {
		s.errored = true
	}
}

// Failed reports whether any error-severity diagnostic was recorded.
func (s *Sink) Failed() bool { return s.errored }

// Diagnostics returns all recorded diagnostics in recording order.
func (s *Sink) Diagnostics() []*Diagnostic { return s.diags }

// useColor decides whether w (expected to be stderr) supports ANSI color:
// explicit overrides win, otherwise isatty decides, matching spec §7's
// "ANSI color when stderr is a terminal and color is not disabled".
func (s *Sink) useColor(w io.Writer) bool {
	if s.colorForce != nil {
		return *s.colorForce
	}
	type fdWriter interface{ Fd() uintptr }
	if f, ok := w.(fdWriter); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBold   = "\x1b[1m"
	ansiReset  = "\x1b[0m"
)

// Report prints every recorded diagnostic to w in recording order, one per
// line (plus optional indented source/caret context), following spec §7's
// exact wire format. No trailing summary line is printed; the caller's exit
// code conveys success, per spec.
func (s *Sink) Report(w io.Writer) {
	color := s.useColor(w)
	for _, d := range s.diags {
		sevColor := ansiRed
		if d.Severity == SevWarning {
			sevColor = ansiYellow
		}
		if color {
			fmt.Fprintf(w, "%s: %s%s%s: %s\n", d.Loc, sevColor, d.Severity, ansiReset, d.Message)
		} else {
			fmt.Fprintf(w, "%s: %s: %s\n", d.Loc, d.Severity, d.Message)
		}
		if d.Source != "" {
			ctx := renderCaret(d.Loc.Column, d.Source)
			fmt.Fprint(w, text.Indent(ctx, "  "))
		}
		if s.debug && d.cause != nil {
			fmt.Fprintf(w, "%+v\n", d.cause)
		}
	}
}

func renderCaret(column int, source string) string {
	var b strings.Builder
	b.WriteString(source)
	if !strings.HasSuffix(source, "\n") {
		b.WriteString("\n")
	}
	if column > 0 {
		b.WriteString(strings.Repeat(" ", column-1))
	}
	b.WriteString("^\n")
	return b.String()
}

// Fatal prints msg as a single `vc: <msg>` line to w. It does not terminate
// the process itself: cmd/vc calls it from compileOne's panic recovery, and
// the exit status comes from the driver's compileAll.
func Fatal(w io.Writer, msg string) {
	fmt.Fprintf(w, "vc: %s\n", msg)
}
