package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/kr/pretty"
	"golang.org/x/sync/errgroup"

	"github.com/splanck/vc/internal/buildcache"
	"github.com/splanck/vc/internal/codegen"
	"github.com/splanck/vc/internal/depfile"
	"github.com/splanck/vc/internal/diag"
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/lex"
	"github.com/splanck/vc/internal/optimize"
	"github.com/splanck/vc/internal/parse"
	"github.com/splanck/vc/internal/preprocess"
	"github.com/splanck/vc/internal/regalloc"
	"github.com/splanck/vc/internal/sema"
	"github.com/splanck/vc/internal/session"
	"github.com/splanck/vc/internal/startstub"
	"github.com/splanck/vc/internal/token"
)

// driver holds everything shared across every input file's pipeline run.
type driver struct {
	opts session.Options // template; compileOne clones it per file
	cli  *cliOptions

	cache *buildcache.Cache

	mu         sync.Mutex // guards stdout/stderr writes from concurrent goroutines
	objectsMu  sync.Mutex
	objectsOut []string // assembled object file paths, in input order, for --link
}

// compileAll resolves environment-driven settings, fans out one pipeline
// per input file via errgroup, then (if requested) invokes the assembler
// and linker.
func (d *driver) compileAll() int {
	d.opts.IncludePaths = append(envIncludeDirs(), d.opts.IncludePaths...)
	if d.cli.sysroot != "" {
		d.opts.IncludePaths = append(d.opts.IncludePaths, filepath.Join(d.cli.sysroot, "usr", "include"))
	}
	if d.cli.sysInclude != "" {
		d.opts.IncludePaths = append(d.opts.IncludePaths, d.cli.sysInclude)
	} else if v := os.Getenv("VC_SYSINCLUDE"); v != "" {
		d.opts.IncludePaths = append(d.opts.IncludePaths, v)
	}

	if len(d.cli.inputs) > 1 && d.cli.output != "" && !d.cli.link {
		fmt.Fprintln(os.Stderr, "vc: cannot specify -o with multiple files unless --link")
		return 1
	}

	if d.cli.cacheDir != "" {
		c, err := buildcache.Open(filepath.Join(d.cli.cacheDir, "vc-cache.sqlite"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "vc: opening build cache: %v\n", err)
			return 1
		}
		defer c.Close()
		d.cache = c
	}

	d.objectsOut = make([]string, len(d.cli.inputs))

	var g errgroup.Group
	failed := make([]bool, len(d.cli.inputs))
	for idx, input := range d.cli.inputs {
		idx, input := idx, input
		g.Go(func() error {
			ok := d.compileOne(idx, input)
			failed[idx] = !ok
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failed {
		if f {
			return 1
		}
	}

	if d.cli.link {
		return d.runLinker()
	}
	return 0
}

// compileOne runs one input file through the full pipeline, honoring
// whichever phase the CLI asked it to stop at. It recovers from any panic
// (the reference implementation's "OOM is fatal" behavior, generalized to
// any unexpected internal failure) and reports it the same way.
func (d *driver) compileOne(idx int, input string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.mu.Lock()
			diag.Fatal(os.Stderr, fmt.Sprintf("internal error compiling %s: %v\n%s", input, r, debug.Stack()))
			d.mu.Unlock()
			ok = false
		}
	}()

	src, err := os.ReadFile(input)
	if err != nil {
		d.mu.Lock()
		fmt.Fprintf(os.Stderr, "vc: %v\n", err)
		d.mu.Unlock()
		return false
	}

	opts := d.opts
	sess := session.New(input, opts)

	pp := preprocess.New(sess)
	expanded := pp.Run(string(src), input)

	if sess.Opts.VerboseIncludes {
		d.reportIncludes(pp.Deps())
	}

	if d.cli.depOnly || d.cli.depAndCompile {
		target := d.objectName(input)
		rule := depfile.Render(target, append([]string{input}, pp.Deps()...))
		if d.cli.depOnly {
			d.writeResult(input, "", rule)
			return true
		}
		if err := os.WriteFile(d.depFileName(input), []byte(rule), 0o644); err != nil {
			d.reportf("vc: writing dependency file: %v\n", err)
			return false
		}
	}

	if d.cli.preprocessOnly {
		return d.writeResult(input, d.outputName(input, ".i"), expanded)
	}

	toks := lex.New(expanded, input, sess.Diag).ScanTokens()
	if d.cli.dumpTokens {
		d.dumpTokens(toks)
	}
	if sess.Diag.Failed() {
		d.report(sess)
		return false
	}

	tu := parse.New(toks, input, sess.Diag).Parse()
	if d.cli.dumpAST {
		d.dumpValue("ast", tu)
	}
	if sess.Diag.Failed() {
		d.report(sess)
		return false
	}

	prog := sema.New(sess).Analyze(tu)
	if sess.Diag.Failed() {
		d.report(sess)
		return false
	}

	optimize.Program(prog, sess)

	if d.cli.dumpIR {
		d.dumpIRProgram(prog)
	}

	var asm string
	cacheKey := ""
	if d.cache != nil {
		cacheKey = buildcache.Key(expanded, sess.Opts)
		if cached, found, err := d.cache.Get(cacheKey); err == nil && found {
			asm = cached
		}
	}
	if asm == "" {
		asm = codegen.Generate(prog, sess)
		if d.cli.internalLib {
			asm = startstub.Generate(sess) + "\n" + asm
		}
		if d.cache != nil {
			_ = d.cache.Put(cacheKey, asm)
		}
	}

	if sess.Diag.Failed() {
		d.report(sess)
		return false
	}

	if d.cli.dumpAsm {
		d.dumpValue("asm", asm)
	}

	if d.cli.asmOnly {
		return d.writeResult(input, d.outputName(input, ".s"), asm)
	}

	asmPath, cleanup, err := d.writeTempAsm(input, asm)
	if err != nil {
		d.reportf("vc: %v\n", err)
		return false
	}
	defer cleanup()

	objPath := d.objectName(input)
	if err := d.assemble(sess, asmPath, objPath); err != nil {
		d.reportf("vc: assembler: %v\n", err)
		return false
	}
	d.objectsMu.Lock()
	d.objectsOut[idx] = objPath
	d.objectsMu.Unlock()
	return true
}

// writeTempAsm writes asm to a close-on-exec temporary file named with a
// random uuid suffix, under --obj-dir, TMPDIR, or /tmp in that order.
func (d *driver) writeTempAsm(input, asm string) (path string, cleanup func(), err error) {
	dir := d.cli.objDir
	if dir == "" {
		dir = os.Getenv("TMPDIR")
	}
	if dir == "" {
		dir = os.TempDir()
	}
	name := filepath.Join(dir, "vc-"+uuid.NewString()+".s")
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_CLOEXEC, 0o600)
	if err != nil {
		return "", nil, err
	}
	if _, err := f.WriteString(asm); err != nil {
		f.Close()
		os.Remove(name)
		return "", nil, err
	}
	f.Close()
	return name, func() { os.Remove(name) }, nil
}

// assemble invokes the external assembler (AS env var, default "as") to
// turn asmPath into an object file at objPath; --intel-syntax adds
// -msyntax=intel to the assembler's arguments.
func (d *driver) assemble(sess *session.Session, asmPath, objPath string) error {
	as := os.Getenv("AS")
	if as == "" {
		as = "as"
	}
	args := []string{"-o", objPath, asmPath}
	if sess.Opts.Syntax == session.Intel {
		args = append([]string{"-msyntax=intel"}, args...)
	}
	cmd := exec.Command(as, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return runChecked(cmd)
}

// runLinker invokes CC (or "cc") against every assembled object file to
// produce the final executable named by -o, or "a.out".
func (d *driver) runLinker() int {
	cc := os.Getenv("CC")
	if cc == "" {
		cc = "cc"
	}
	out := d.cli.output
	if out == "" {
		out = "a.out"
	}
	args := []string{"-o", out}
	for _, obj := range d.objectsOut {
		if obj != "" {
			args = append(args, obj)
		}
	}
	if d.cli.internalLib {
		args = append(args, "-nostdlib", "-static")
	}
	for _, l := range d.cli.libDirs {
		args = append(args, "-L"+l)
	}
	for _, l := range d.cli.libs {
		args = append(args, "-l"+l)
	}
	cmd := exec.Command(cc, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := runChecked(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "vc: linker: %v\n", err)
		return 1
	}
	return 0
}

// runChecked runs cmd and distinguishes a signal-terminated child from a
// plain non-zero exit, per the concurrency model's "termination by signal
// is reported distinctly from non-zero exit".
func runChecked(cmd *exec.Cmd) error {
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if exitErr.ExitCode() == -1 {
			return fmt.Errorf("%s killed by signal: %s", cmd.Path, exitErr.String())
		}
		return fmt.Errorf("%s exited with status %d", cmd.Path, exitErr.ExitCode())
	}
	return err
}

func (d *driver) outputName(input, fallbackExt string) string {
	if d.cli.output != "" && len(d.cli.inputs) == 1 {
		return d.cli.output
	}
	return swapExt(input, fallbackExt)
}

func (d *driver) objectName(input string) string {
	dir := d.cli.objDir
	base := swapExt(filepath.Base(input), ".o")
	if d.cli.output != "" && len(d.cli.inputs) == 1 && (d.cli.compileOnly || !d.cli.link) {
		return d.cli.output
	}
	if dir != "" {
		return filepath.Join(dir, base)
	}
	return base
}

func (d *driver) depFileName(input string) string {
	if d.cli.output != "" && len(d.cli.inputs) == 1 {
		return swapExt(d.cli.output, ".d")
	}
	return swapExt(input, ".d")
}

func swapExt(path, ext string) string {
	trimmed := strings.TrimSuffix(path, filepath.Ext(path))
	return trimmed + ext
}

// writeResult writes content to path (stdout if path is ""), serialized
// against concurrent sibling pipelines.
func (d *driver) writeResult(input, path, content string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if path == "" {
		fmt.Fprint(os.Stdout, content)
		return true
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "vc: writing %s: %v\n", path, err)
		return false
	}
	return true
}

func (d *driver) dumpTokens(toks []token.Token) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range toks {
		fmt.Println(t.String())
	}
}

// dumpValue pretty-prints v (an *ast.TranslationUnit or an assembly
// string) via kr/pretty; a string is printed as is.
func (d *driver) dumpValue(label string, v interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := v.(string); ok {
		fmt.Print(s)
		return
	}
	fmt.Printf("-- %s --\n", label)
	pretty.Println(v)
}

// dumpIRProgram renders every function's instructions one per line, with
// spilled destinations annotated as [slotN] once regalloc has run.
func (d *driver) dumpIRProgram(prog *ir.Program) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, fn := range prog.Funcs {
		fmt.Printf("func %s\n", fn.Name)
		// Same pool sizes codegen.Generate uses internally (14 GP registers,
		// 15 XMM with xmm15 reserved scratch); mirrored here since Generate
		// doesn't expose its per-function Map.
		alloc := regalloc.New(14, 15, []int{0, 1}).Allocate(fn)
		for _, instr := range fn.Instrs {
			fmt.Println(formatInstr(instr, alloc))
		}
	}
}

func formatInstr(instr ir.Instr, alloc *regalloc.Map) string {
	var b strings.Builder
	b.WriteString(instr.Op.String())
	if instr.Dest != 0 {
		b.WriteString(" dest=")
		b.WriteString(operandRef(instr.Dest, alloc))
	}
	if instr.Src1 != 0 {
		b.WriteString(" src1=")
		b.WriteString(operandRef(instr.Src1, alloc))
	}
	if instr.Src2 != 0 {
		b.WriteString(" src2=")
		b.WriteString(operandRef(instr.Src2, alloc))
	}
	if instr.Imm != 0 {
		b.WriteString(" imm=")
		b.WriteString(strconv.FormatInt(instr.Imm, 10))
	}
	if instr.Name != "" {
		b.WriteString(" name=")
		b.WriteString(instr.Name)
	}
	if len(instr.Data) > 0 {
		b.WriteString(" data=")
		b.WriteString(strconv.Quote(string(instr.Data)))
	}
	return b.String()
}

func operandRef(id int, alloc *regalloc.Map) string {
	loc, ok := alloc.Loc[id]
	if !ok || loc.Reg >= 0 {
		return strconv.Itoa(id)
	}
	return fmt.Sprintf("%d[slot%d]", id, loc.Slot/8)
}

func (d *driver) report(sess *session.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sess.Diag.SetDebug(sess.Opts.Debug)
	if noColor {
		sess.Diag.SetColor(false)
	}
	sess.Diag.Report(os.Stderr)
}

func (d *driver) reportf(format string, a ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(os.Stderr, format, a...)
}

// envIncludeDirs folds VCPATH, VCINC, CPATH and C_INCLUDE_PATH into one
// ordered list of search directories, colon-separated (semicolon also
// accepted, for Windows-hosted builds).
func envIncludeDirs() []string {
	var dirs []string
	for _, name := range []string{"VCPATH", "VCINC", "CPATH", "C_INCLUDE_PATH"} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		sep := ":"
		if strings.Contains(v, ";") {
			sep = ";"
		}
		dirs = append(dirs, strings.Split(v, sep)...)
	}
	return dirs
}

// reportIncludes prints each header the preprocessor opened along with its
// size in human-readable units, --verbose-includes' output.
func (d *driver) reportIncludes(deps []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dep := range deps {
		size := int64(0)
		if st, err := os.Stat(dep); err == nil {
			size = st.Size()
		}
		fmt.Fprintf(os.Stderr, "vc: include %s (%s)\n", dep, humanize.Bytes(uint64(size)))
	}
}
