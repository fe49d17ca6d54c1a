package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/splanck/vc/internal/session"
)

// cliOptions holds everything parseArgs extracts that isn't part of
// session.Options: output routing, which phase to stop at, and driver-only
// settings like the assembler/linker/cache paths.
type cliOptions struct {
	inputs []string
	output string

	compileOnly    bool // -c: stop after assembling, no link
	preprocessOnly bool // -E: stop after preprocessing, write to -o or <input>.i
	asmOnly        bool // -S: stop after codegen, write .s
	depOnly        bool // -M: print dependency file to stdout, do nothing else
	depAndCompile  bool // -MD: write dependency file alongside the normal output
	link           bool // --link: invoke the linker after assembling

	std         string
	internalLib bool
	sysroot     string
	sysInclude  string
	objDir      string
	cacheDir    string
	emitDwarf   bool

	dumpAsm    bool
	dumpAST    bool
	dumpIR     bool
	dumpTokens bool

	libDirs []string
	libs    []string

	showHelp    bool
	showVersion bool
}

// splitFlagsEnv tokenizes VCFLAGS the way a shell would split a command
// line: whitespace-separated, no quoting support (matching the teacher's
// own bare os.Args-loop CLI, which never reaches for a shlex-style parser
// either).
func splitFlagsEnv(v string) []string {
	return strings.Fields(v)
}

// parseArgs walks argv in a single manual pass, gcc-style: flags are
// recognized by prefix, with both attached (`-O2`, `-I/usr/include`) and
// separate-argument (`-I`, `/usr/include`) forms where gcc itself accepts
// both. Anything left over that doesn't start with `-` is an input file.
func parseArgs(argv []string) (session.Options, *cliOptions, bool) {
	opts := session.Options{
		Defines:         map[string]string{},
		Word:            session.Word64,
		MaxIncludeDepth: 200,
	}
	cli := &cliOptions{std: "c99"}

	next := func(i *int) (string, bool) {
		if *i+1 >= len(argv) {
			return "", false
		}
		*i++
		return argv[*i], true
	}

	for i := 0; i < len(argv); i++ {
		a := argv[i]
		switch {
		case a == "--help":
			cli.showHelp = true
		case a == "--version":
			cli.showVersion = true
		case a == "-c":
			cli.compileOnly = true
		case a == "-E":
			cli.preprocessOnly = true
		case a == "-S":
			cli.asmOnly = true
		case a == "-M":
			cli.depOnly = true
		case a == "-MD":
			cli.depAndCompile = true
		case a == "--link":
			cli.link = true
		case a == "--x86-64":
			opts.Word = session.Word64
		case a == "--intel-syntax":
			opts.Syntax = session.Intel
		case a == "--debug":
			opts.Debug = true
		case a == "--emit-dwarf":
			cli.emitDwarf = true
		case a == "--internal-libc":
			cli.internalLib = true
		case a == "--verbose-includes":
			opts.VerboseIncludes = true
		case a == "--named-locals":
			opts.NamedLocals = true
		case a == "--no-fold":
			opts.DisableFold = true
		case a == "--no-dce":
			opts.DisableDCE = true
		case a == "--no-cprop":
			opts.DisableCProp = true
		case a == "--no-inline":
			opts.DisableInline = true
		case a == "--no-color":
			noColor = true
		case a == "--no-warn-unreachable":
			opts.DisableUnreach = true
		case a == "--dump-asm":
			cli.dumpAsm = true
		case a == "--dump-ast":
			cli.dumpAST = true
		case a == "--dump-ir":
			cli.dumpIR = true
		case a == "--dump-tokens":
			cli.dumpTokens = true
		case a == "-o":
			v, ok := next(&i)
			if !ok {
				return opts, cli, fail("-o requires an argument")
			}
			cli.output = v
		case strings.HasPrefix(a, "-O"):
			lvl, err := strconv.Atoi(strings.TrimPrefix(a, "-O"))
			if err != nil || lvl < 0 || lvl > 3 {
				return opts, cli, fail("invalid optimization level %q", a)
			}
			applyOptLevel(&opts, lvl)
		case strings.HasPrefix(a, "-I"):
			v := strings.TrimPrefix(a, "-I")
			if v == "" {
				var ok bool
				if v, ok = next(&i); !ok {
					return opts, cli, fail("-I requires a directory")
				}
			}
			opts.IncludePaths = append(opts.IncludePaths, v)
		case strings.HasPrefix(a, "-L"):
			v := strings.TrimPrefix(a, "-L")
			if v == "" {
				var ok bool
				if v, ok = next(&i); !ok {
					return opts, cli, fail("-L requires a directory")
				}
			}
			cli.libDirs = append(cli.libDirs, v)
		case strings.HasPrefix(a, "-l"):
			v := strings.TrimPrefix(a, "-l")
			if v == "" {
				var ok bool
				if v, ok = next(&i); !ok {
					return opts, cli, fail("-l requires a name")
				}
			}
			cli.libs = append(cli.libs, v)
		case strings.HasPrefix(a, "-D"):
			v := strings.TrimPrefix(a, "-D")
			if v == "" {
				var ok bool
				if v, ok = next(&i); !ok {
					return opts, cli, fail("-D requires a name")
				}
			}
			name, val, has := strings.Cut(v, "=")
			if !has {
				val = "1"
			}
			opts.Defines[name] = val
		case strings.HasPrefix(a, "-U"):
			v := strings.TrimPrefix(a, "-U")
			if v == "" {
				var ok bool
				if v, ok = next(&i); !ok {
					return opts, cli, fail("-U requires a name")
				}
			}
			opts.Undefines = append(opts.Undefines, v)
		case strings.HasPrefix(a, "-fmax-include-depth="):
			n, err := strconv.Atoi(strings.TrimPrefix(a, "-fmax-include-depth="))
			if err != nil || n <= 0 {
				return opts, cli, fail("invalid -fmax-include-depth value in %q", a)
			}
			opts.MaxIncludeDepth = n
		case a == "--std":
			v, ok := next(&i)
			if !ok {
				return opts, cli, fail("--std requires an argument")
			}
			cli.std = v
		case strings.HasPrefix(a, "--std="):
			cli.std = strings.TrimPrefix(a, "--std=")
		case a == "--obj-dir":
			v, ok := next(&i)
			if !ok {
				return opts, cli, fail("--obj-dir requires a directory")
			}
			cli.objDir = v
		case a == "--cache-dir":
			v, ok := next(&i)
			if !ok {
				return opts, cli, fail("--cache-dir requires a directory")
			}
			cli.cacheDir = v
		case a == "--sysroot":
			v, ok := next(&i)
			if !ok {
				return opts, cli, fail("--sysroot requires a directory")
			}
			cli.sysroot = v
		case a == "--vc-sysinclude":
			v, ok := next(&i)
			if !ok {
				return opts, cli, fail("--vc-sysinclude requires a directory")
			}
			cli.sysInclude = v
		case strings.HasPrefix(a, "-"):
			return opts, cli, fail("unrecognized option %q", a)
		default:
			cli.inputs = append(cli.inputs, a)
		}
	}
	if cli.std != "c99" && cli.std != "gnu99" {
		return opts, cli, fail("unsupported --std=%s", cli.std)
	}
	return opts, cli, true
}

// noColor mirrors --no-color; diag.Sink reads it through SetColor, set by
// the driver once options are fully parsed.
var noColor bool

// applyOptLevel maps gcc-style -O0..-O3 onto the optimizer's pass toggles:
// -O0 disables every pass, -O1 enables fold/dce/cprop/unreachable, -O2 adds
// nothing further (there's no loop/vectorizing pass to gate), -O3 also
// enables inlining.
func applyOptLevel(opts *session.Options, lvl int) {
	switch lvl {
	case 0:
		opts.DisableFold = true
		opts.DisableDCE = true
		opts.DisableCProp = true
		opts.DisableInline = true
		opts.DisableUnreach = true
	case 1, 2:
		opts.DisableInline = true
	case 3:
		// every pass enabled
	}
}

func fail(format string, a ...interface{}) bool {
	fmt.Fprintf(os.Stderr, "vc: "+format+"\n", a...)
	return false
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `usage: vc [options] file...
  -o <file>              write output to <file>
  -O<0-3>                optimization level
  -I<dir>                add a header search directory
  -L<dir>, -l<name>      linker search path / library (with --link)
  -D<name[=val]>         define a preprocessor macro
  -U<name>               undefine a preprocessor macro
  -c                     compile and assemble only, no link
  -E                     preprocess only
  -S                     stop after generating assembly
  -M, -MD                emit a Makefile dependency rule
  --link                 invoke the linker to produce an executable
  --std=c99|gnu99        select the language dialect
  --x86-64               target x86-64 (default)
  --intel-syntax         emit NASM-compatible Intel syntax instead of AT&T
  --debug                attach stack traces to internal diagnostics
  --emit-dwarf           accepted for compatibility; no-op
  --obj-dir <dir>        directory for intermediate object/assembly files
  --cache-dir <dir>      persistent content-addressed build cache
  --sysroot <dir>        root prepended to system include search
  --vc-sysinclude <dir>  override the built-in system include directory
  --internal-libc        link a freestanding _start instead of libc's crt0
  --verbose-includes     print each header as it is opened
  --named-locals         annotate assembly with local-variable names
  --no-fold, --no-dce, --no-cprop, --no-inline, --no-color, --no-warn-unreachable
  --dump-asm, --dump-ast, --dump-ir, --dump-tokens
  -fmax-include-depth=<n>
  --help, --version
`)
}
