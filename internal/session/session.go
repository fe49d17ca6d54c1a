// Package session bundles everything one translation unit's compile pass
// needs, so nothing in the pipeline reaches for process-wide state — the
// explicit-session design note in spec.md §9. The driver in cmd/vc builds a
// fresh Session per input file (and, when compiling multiple files
// concurrently via golang.org/x/sync/errgroup, one per goroutine).
package session

import (
	"github.com/splanck/vc/internal/cutil"
	"github.com/splanck/vc/internal/diag"
)

// Syntax selects the assembly dialect codegen emits.
type Syntax int

const (
	ATT Syntax = iota
	Intel
)

// WordSize selects the target's pointer/register width.
type WordSize int

const (
	Word32 WordSize = 4
	Word64 WordSize = 8
)

// Options configures one compile pass; the driver fills this in from CLI
// flags and VCFLAGS/environment before constructing a Session.
type Options struct {
	IncludePaths []string
	Defines      map[string]string // from -D NAME[=VALUE]
	Undefines    []string          // from -U NAME

	Word   WordSize
	Syntax Syntax

	MaxIncludeDepth int

	VerboseIncludes bool
	NamedLocals     bool // emit human-readable local-variable comments in assembly

	// PragmaPack is the #pragma pack(N) alignment in effect at the start
	// of the file (0 means unset / natural alignment), overridable mid-file
	// by #pragma pack directives which push/pop session.PackStack.
	PragmaPack int

	// Optimizer pass toggles (--no-fold, --no-dce, --no-cprop, --no-inline,
	// --no-unreachable).
	DisableFold       bool
	DisableDCE        bool
	DisableCProp      bool
	DisableInline     bool
	DisableUnreach    bool

	Debug bool // enables --debug stack-trace-carrying diagnostics
}

// Session is the per-translation-unit state threaded through every pipeline
// stage: preprocessor, lexer, parser, sema, optimizer, codegen.
type Session struct {
	Opts Options
	Diag *diag.Sink

	// __COUNTER__ state, advanced by preprocess.
	counter int64

	// PackStack is the #pragma pack(N)/#pragma pack() stack; the top value
	// (or Opts.PragmaPack if empty) is the alignment ctype.Layout uses for
	// every struct/union body closed while it's in effect.
	PackStack cutil.Stack

	// EmittedInline records which symbol names' inline bodies have already
	// been emitted at a call site, so optimize's inline-expansion pass
	// inlines each callee at no more than one call site program-wide.
	EmittedInline map[string]bool

	// File is the current translation unit's primary input path, used for
	// default output naming and dependency-file generation.
	File string
}

// New constructs a fresh Session for one translation unit.
func New(file string, opts Options) *Session {
	if opts.Word == 0 {
		opts.Word = Word64
	}
	if opts.MaxIncludeDepth == 0 {
		opts.MaxIncludeDepth = 200
	}
	return &Session{
		Opts:          opts,
		Diag:          diag.NewSink(),
		File:          file,
		EmittedInline: make(map[string]bool),
	}
}

// NextCounter returns the next __COUNTER__ value and advances it.
func (s *Session) NextCounter() int64 {
	v := s.counter
	s.counter++
	return v
}

// CurrentPack returns the alignment #pragma pack(N) currently in effect, or
// Opts.PragmaPack when the pack stack is empty (0 there means natural
// alignment).
func (s *Session) CurrentPack() int {
	if v, ok := s.PackStack.Top(); ok {
		return v
	}
	return s.Opts.PragmaPack
}

// PushPack implements `#pragma pack(N)`.
func (s *Session) PushPack(n int) {
	s.PackStack.Push(n)
}

// PopPack implements `#pragma pack()` (bare form, restores the previous
// alignment). A pop with nothing pushed is a no-op, matching GCC's lenient
// behavior for an unmatched pop.
func (s *Session) PopPack() {
	s.PackStack.Pop()
}
