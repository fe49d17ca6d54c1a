// Package preprocess implements vc's tokenless, line-driven C preprocessor:
// directive recognition, object-like/function-like macro expansion, include
// resolution, conditional compilation, and the handful of #pragma forms
// sema needs to see.
//
// Include-cycle detection is grounded directly on the teacher's
// internal/build.ImportResolver (visited/resolving canonical-path sets),
// generalized here from module-import resolution to #include resolution.
package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
	"modernc.org/mathutil"

	"github.com/splanck/vc/internal/diag"
	"github.com/splanck/vc/internal/session"
)

// Macro is one #define'd name: either object-like (`#define N 42`) or
// function-like (`#define F(a,b) ((a)+(b))`), with its unexpanded body text.
type Macro struct {
	Name       string
	Params     []string
	Variadic   bool
	Body       string
	ObjectLike bool
}

// MacroTable is the macro namespace: a name index for O(1)
// lookup/redefinition checks, plus a slice recording the order in which
// names were first defined (entries are not removed by Undef).
type MacroTable struct {
	order []string
	byName map[string]*Macro
}

func newMacroTable() *MacroTable {
	return &MacroTable{byName: make(map[string]*Macro)}
}

func (t *MacroTable) Define(m *Macro) {
	if _, exists := t.byName[m.Name]; !exists {
		t.order = append(t.order, m.Name)
	}
	t.byName[m.Name] = m
}

func (t *MacroTable) Undef(name string) {
	delete(t.byName, name)
}

func (t *MacroTable) Lookup(name string) (*Macro, bool) {
	m, ok := t.byName[name]
	return m, ok
}

func (t *MacroTable) IsDefined(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// includeResolver tracks canonical include paths to detect cycles and
// #pragma once, directly mirroring build.ImportResolver's visited/resolving
// sets.
type includeResolver struct {
	visited   map[string]bool // #pragma once'd files, never re-included
	resolving map[string]bool // files currently on the include stack
	deps      []string        // accumulated for depfile's -M/-MD output
}

func newIncludeResolver() *includeResolver {
	return &includeResolver{visited: make(map[string]bool), resolving: make(map[string]bool)}
}

// Preprocessor expands one translation unit's source text.
type Preprocessor struct {
	sess      *session.Session
	macros    *MacroTable
	resolver  *includeResolver
	condStack []condFrame

	out strings.Builder

	inProgress map[string]bool // macro names currently being expanded (recursion guard)
}

// condFrame is one level of the #if/#ifdef/#ifndef conditional stack.
type condFrame struct {
	taken    bool // true once any branch in this chain has been emitted
	active   bool // true if the current branch is being emitted
	sawElse  bool
}

// New creates a Preprocessor bound to sess, seeding predefined macros from
// sess.Opts.Defines/Undefines and the builtin macro set.
func New(sess *session.Session) *Preprocessor {
	p := &Preprocessor{
		sess:       sess,
		macros:     newMacroTable(),
		resolver:   newIncludeResolver(),
		inProgress: make(map[string]bool),
	}
	p.defineBuiltins()
	for name, val := range sess.Opts.Defines {
		p.macros.Define(&Macro{Name: name, Body: val, ObjectLike: true})
	}
	for _, name := range sess.Opts.Undefines {
		p.macros.Undef(name)
	}
	return p
}

func (p *Preprocessor) defineBuiltins() {
	now := time.Now()
	dateStr, _ := strftime.Format("%b %d %Y", now)
	timeStr, _ := strftime.Format("%H:%M:%S", now)
	p.macros.Define(&Macro{Name: "__DATE__", Body: `"` + dateStr + `"`, ObjectLike: true})
	p.macros.Define(&Macro{Name: "__TIME__", Body: `"` + timeStr + `"`, ObjectLike: true})
	p.macros.Define(&Macro{Name: "__STDC__", Body: "1", ObjectLike: true})
	p.macros.Define(&Macro{Name: "__STDC_VERSION__", Body: "199901L", ObjectLike: true})
	word := 8
	if p.sess != nil && p.sess.Opts.Word != 0 {
		word = int(p.sess.Opts.Word)
	}
	p.macros.Define(&Macro{Name: "__VC__", Body: "1", ObjectLike: true})
	p.macros.Define(&Macro{Name: "__WORDSIZE", Body: strconv.Itoa(word * 8), ObjectLike: true})
}

// Deps returns every file this translation unit's #include chain resolved,
// for depfile's -M/-MD output.
func (p *Preprocessor) Deps() []string { return p.resolver.deps }

// Run expands src (the contents of file) into preprocessed text, with
// `# <line> "<file>"` markers emitted wherever a physical line's reported
// location changes (via #include descent/return or #line), so internal/lex
// can recover original source positions.
func (p *Preprocessor) Run(src, file string) string {
	p.processFile(src, file, 1)
	return p.out.String()
}

func (p *Preprocessor) errorf(file string, line int, format string, args ...interface{}) {
	p.sess.Diag.Add(diag.New(diag.Preprocess, diag.Location{File: file, Line: line}, format, args...))
}

func (p *Preprocessor) active() bool {
	for _, f := range p.condStack {
		if !f.active {
			return false
		}
	}
	return true
}

// processFile expands one file's lines (and recursively, its #includes)
// into p.out. startLine is the line number written in the opening line
// marker and given to the file's first line (1 for the top-level file and
// for every #include).
func (p *Preprocessor) processFile(src, file string, startLine int) {
	lines := splitLogicalLines(src)
	p.emitLineMarker(file, startLine)
	lineNo := startLine
	for _, raw := range lines {
		trimmed := strings.TrimLeft(raw, " \t")
		if strings.HasPrefix(trimmed, "#") {
			p.directive(trimmed[1:], file, lineNo)
		} else if p.active() {
			p.out.WriteString(p.expandLine(raw, file, lineNo))
			p.out.WriteByte('\n')
		}
		lineNo++
	}
}

func (p *Preprocessor) emitLineMarker(file string, line int) {
	p.out.WriteString(fmt.Sprintf("# %d %q\n", line, file))
}

// splitLogicalLines splits src into logical lines, splicing any line ending
// in a backslash-newline into the following physical line per C99 5.1.1.2.
func splitLogicalLines(src string) []string {
	physical := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	var logical []string
	var cur strings.Builder
	spliced := false
	for _, ln := range physical {
		if strings.HasSuffix(ln, "\\") {
			cur.WriteString(ln[:len(ln)-1])
			spliced = true
			continue
		}
		if spliced {
			cur.WriteString(ln)
			logical = append(logical, cur.String())
			cur.Reset()
			spliced = false
		} else {
			logical = append(logical, ln)
		}
	}
	if spliced {
		logical = append(logical, cur.String())
	}
	return logical
}

// directive dispatches one `#...` line (text with the leading '#' already
// stripped).
func (p *Preprocessor) directive(text, file string, line int) {
	text = strings.TrimLeft(text, " \t")
	word, rest := splitFirstWord(text)
	switch word {
	case "":
		// bare '#' is a no-op null directive
	case "define":
		if p.active() {
			p.define(rest, file, line)
		}
	case "undef":
		if p.active() {
			p.macros.Undef(strings.TrimSpace(rest))
		}
	case "ifdef":
		p.pushCond(p.macros.IsDefined(strings.TrimSpace(rest)))
	case "ifndef":
		p.pushCond(!p.macros.IsDefined(strings.TrimSpace(rest)))
	case "if":
		p.pushCond(p.evalCondition(rest, file, line))
	case "elif":
		p.elifCond(rest, file, line)
	case "else":
		p.elseCond(file, line)
	case "endif":
		p.popCond(file, line)
	case "include", "include_next":
		if p.active() {
			p.include(rest, file, line, word == "include_next")
		}
	case "line":
		if p.active() {
			p.lineDirective(rest, file, line)
		}
	case "error":
		if p.active() {
			p.errorf(file, line, "#error %s", strings.TrimSpace(rest))
		}
	case "warning":
		if p.active() {
			p.sess.Diag.Add(diag.Warn(diag.Preprocess, diag.Location{File: file, Line: line}, "#warning %s", strings.TrimSpace(rest)))
		}
	case "pragma":
		if p.active() {
			p.pragma(rest, file, line)
		}
	default:
		if p.active() {
			p.errorf(file, line, "unknown preprocessor directive #%s", word)
		}
	}
}

func splitFirstWord(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := 0
	for i < len(s) && (isIdentByte(s[i])) {
		i++
	}
	if i == 0 {
		return "", s
	}
	return s[:i], s[i:]
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *Preprocessor) pushCond(taken bool) {
	active := p.active() && taken
	p.condStack = append(p.condStack, condFrame{taken: taken, active: active})
}

func (p *Preprocessor) elifCond(rest, file string, line int) {
	if len(p.condStack) == 0 {
		p.errorf(file, line, "#elif without #if")
		return
	}
	top := &p.condStack[len(p.condStack)-1]
	parentActive := true
	for i := 0; i < len(p.condStack)-1; i++ {
		if !p.condStack[i].active {
			parentActive = false
			break
		}
	}
	if top.taken || !parentActive {
		top.active = false
		return
	}
	taken := p.evalCondition(rest, file, line)
	top.taken = taken
	top.active = taken
}

func (p *Preprocessor) elseCond(file string, line int) {
	if len(p.condStack) == 0 {
		p.errorf(file, line, "#else without #if")
		return
	}
	top := &p.condStack[len(p.condStack)-1]
	if top.sawElse {
		p.errorf(file, line, "#else after #else")
		return
	}
	top.sawElse = true
	parentActive := true
	for i := 0; i < len(p.condStack)-1; i++ {
		if !p.condStack[i].active {
			parentActive = false
			break
		}
	}
	top.active = parentActive && !top.taken
	if top.active {
		top.taken = true
	}
}

func (p *Preprocessor) popCond(file string, line int) {
	if len(p.condStack) == 0 {
		p.errorf(file, line, "#endif without #if")
		return
	}
	p.condStack = p.condStack[:len(p.condStack)-1]
}

// define parses a `#define NAME(...) body` or `#define NAME body` line into
// the macro table.
func (p *Preprocessor) define(rest, file string, line int) {
	rest = strings.TrimLeft(rest, " \t")
	name, after := splitFirstWord(rest)
	if name == "" {
		p.errorf(file, line, "macro name missing")
		return
	}
	m := &Macro{Name: name}
	if strings.HasPrefix(after, "(") {
		end := strings.IndexByte(after, ')')
		if end < 0 {
			p.errorf(file, line, "unterminated macro parameter list")
			return
		}
		paramList := after[1:end]
		m.Params, m.Variadic = parseParams(paramList)
		m.Body = strings.TrimLeft(after[end+1:], " \t")
	} else {
		m.ObjectLike = true
		m.Body = strings.TrimLeft(after, " \t")
	}
	p.macros.Define(m)
}

func parseParams(s string) ([]string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, ",")
	var params []string
	variadic := false
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "..." {
			variadic = true
			continue
		}
		params = append(params, part)
	}
	return params, variadic
}

// expandLine macro-expands one already-directive-stripped source line.
func (p *Preprocessor) expandLine(line, file string, lineNo int) string {
	return p.expand(line, file, lineNo)
}

// expand performs repeated macro substitution over text until no further
// expansion is possible, honoring the in-progress-macro-set recursion guard
// (a macro never re-expands inside its own expansion, per C99 6.10.3.4).
func (p *Preprocessor) expand(text, file string, line int) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		c := text[i]
		if isIdentStart(c) {
			j := i
			for j < len(text) && isIdentByte(text[j]) {
				j++
			}
			name := text[i:j]
			switch name {
			case "__LINE__":
				out.WriteString(strconv.Itoa(line))
				i = j
				continue
			case "__FILE__":
				out.WriteString(`"` + file + `"`)
				i = j
				continue
			case "__COUNTER__":
				out.WriteString(strconv.FormatInt(p.sess.NextCounter(), 10))
				i = j
				continue
			}
			if m, ok := p.macros.Lookup(name); ok && !p.inProgress[name] {
				if m.ObjectLike {
					p.inProgress[name] = true
					expanded := p.expand(m.Body, file, line)
					p.inProgress[name] = false
					out.WriteString(expanded)
					i = j
					continue
				}
				// function-like: requires a following '(' (possibly after whitespace)
				k := j
				for k < len(text) && (text[k] == ' ' || text[k] == '\t') {
					k++
				}
				if k < len(text) && text[k] == '(' {
					args, end, ok := splitArgs(text, k)
					if ok {
						body := expandFunctionMacro(m, args)
						p.inProgress[name] = true
						expanded := p.expand(body, file, line)
						p.inProgress[name] = false
						out.WriteString(expanded)
						i = end
						continue
					}
				}
			}
			out.WriteString(name)
			i = j
			continue
		}
		if c == '"' || c == '\'' {
			j := skipLiteral(text, i)
			out.WriteString(text[i:j])
			i = j
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// skipLiteral returns the index just past the string/char literal starting
// at i (text[i] is the opening quote), so macro names inside literals are
// never substituted.
func skipLiteral(text string, i int) int {
	q := text[i]
	j := i + 1
	for j < len(text) {
		if text[j] == '\\' && j+1 < len(text) {
			j += 2
			continue
		}
		if text[j] == q {
			return j + 1
		}
		j++
	}
	return j
}

// splitArgs parses a parenthesized, comma-separated argument list starting
// at text[openIdx] == '(', honoring nested parens and literals. Returns the
// arguments, the index just past the closing ')', and whether parsing
// succeeded (false on an unterminated list).
func splitArgs(text string, openIdx int) ([]string, int, bool) {
	depth := 0
	i := openIdx
	var args []string
	var cur strings.Builder
	for i < len(text) {
		c := text[i]
		switch {
		case c == '"' || c == '\'':
			end := skipLiteral(text, i)
			cur.WriteString(text[i:end])
			i = end
			continue
		case c == '(':
			depth++
			if depth > 1 {
				cur.WriteByte(c)
			}
		case c == ')':
			depth--
			if depth == 0 {
				args = append(args, strings.TrimSpace(cur.String()))
				return args, i + 1, true
			}
			cur.WriteByte(c)
		case c == ',' && depth == 1:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
		i++
	}
	return nil, i, false
}

// expandFunctionMacro substitutes args into m.Body, handling `#param`
// stringification, `##` token pasting, and __VA_ARGS__.
func expandFunctionMacro(m *Macro, args []string) string {
	bound := make(map[string]string, len(m.Params))
	for i, p := range m.Params {
		if i < len(args) {
			bound[p] = args[i]
		} else {
			bound[p] = ""
		}
	}
	if m.Variadic {
		if len(args) > len(m.Params) {
			bound["__VA_ARGS__"] = strings.Join(args[len(m.Params):], ", ")
		} else {
			bound["__VA_ARGS__"] = ""
		}
	}

	body := m.Body
	var out strings.Builder
	i := 0
	for i < len(body) {
		c := body[i]
		if c == '#' && i+1 < len(body) && body[i+1] == '#' {
			// token paste: drop surrounding whitespace already emitted/pending
			trimTrailingSpace(&out)
			i += 2
			for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
				i++
			}
			continue
		}
		if c == '#' && i+1 < len(body) {
			j := i + 1
			for j < len(body) && (body[j] == ' ' || body[j] == '\t') {
				j++
			}
			k := j
			for k < len(body) && isIdentByte(body[k]) {
				k++
			}
			if k > j {
				name := body[j:k]
				if val, ok := bound[name]; ok {
					out.WriteString(strconv.Quote(val))
					i = k
					continue
				}
			}
		}
		if isIdentStart(c) {
			j := i
			for j < len(body) && isIdentByte(body[j]) {
				j++
			}
			name := body[i:j]
			if val, ok := bound[name]; ok {
				out.WriteString(val)
			} else {
				out.WriteString(name)
			}
			i = j
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String()
}

func trimTrailingSpace(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRight(s, " \t")
	if len(trimmed) != len(s) {
		b.Reset()
		b.WriteString(trimmed)
	}
}

// include resolves and splices a #include directive's target file.
func (p *Preprocessor) include(rest, file string, line int, next bool) {
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 {
		p.errorf(file, line, "malformed #include")
		return
	}
	var angled bool
	var name string
	switch {
	case rest[0] == '"':
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			p.errorf(file, line, "malformed #include")
			return
		}
		name = rest[1 : 1+end]
	case rest[0] == '<':
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			p.errorf(file, line, "malformed #include")
			return
		}
		name = rest[1:end]
		angled = true
	default:
		// a macro-expanded #include FOO form
		name = strings.Trim(p.expand(rest, file, line), "\"<>")
	}

	resolved, ok := p.resolveInclude(name, file, angled, next)
	if !ok {
		p.errorf(file, line, "cannot find include file: %s", name)
		return
	}
	canon := canonicalPath(resolved)
	if p.resolver.visited[canon] {
		return // #pragma once already seen
	}
	if p.resolver.resolving[canon] {
		p.errorf(file, line, "circular #include of %s", name)
		return
	}
	if len(p.resolver.resolving) >= p.sess.Opts.MaxIncludeDepth {
		p.errorf(file, line, "#include nested too deeply")
		return
	}
	p.resolver.resolving[canon] = true
	p.resolver.deps = append(p.resolver.deps, resolved)
	data, err := os.ReadFile(resolved)
	if err != nil {
		p.errorf(file, line, "cannot read include file %s: %v", resolved, err)
		delete(p.resolver.resolving, canon)
		return
	}
	p.processFile(string(data), resolved, 1)
	delete(p.resolver.resolving, canon)
	p.emitLineMarker(file, line+1)
}

// resolveInclude implements quote-vs-angle-bracket search order: quoted
// includes search the including file's directory first, then the include
// path; angled includes search only the include path. include_next skips
// entries up to and including the directory the current file was found in
// (approximated here as skipping the first path entry, since this module
// does not track per-file resolution directory chains beyond one level).
func (p *Preprocessor) resolveInclude(name, fromFile string, angled, next bool) (string, bool) {
	var dirs []string
	if !angled {
		dirs = append(dirs, filepath.Dir(fromFile))
	}
	paths := p.sess.Opts.IncludePaths
	if next && len(paths) > 0 {
		paths = paths[1:]
	}
	dirs = append(dirs, paths...)
	for _, d := range dirs {
		candidate := filepath.Join(d, name)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func canonicalPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return filepath.Clean(abs)
}

func (p *Preprocessor) lineDirective(rest, file string, line int) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		p.errorf(file, line, "malformed #line")
		return
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		p.errorf(file, line, "malformed #line")
		return
	}
	newFile := file
	if len(fields) >= 2 {
		newFile = strings.Trim(fields[1], "\"")
	}
	p.emitLineMarker(newFile, n)
}

// pragma handles the #pragma forms sema needs to see: `once` (deduped via
// the include resolver's visited set) and `pack(N)`/`pack()`.
func (p *Preprocessor) pragma(rest, file string, line int) {
	rest = strings.TrimSpace(rest)
	switch {
	case rest == "once":
		// later #includes of this file are skipped by include's visited check
		p.resolver.visited[canonicalPath(file)] = true
	case strings.HasPrefix(rest, "pack"):
		p.pragmaPack(rest[len("pack"):], file, line)
	default:
		// unrecognized pragmas are ignored per C99 6.10.6p2
	}
}

func (p *Preprocessor) pragmaPack(rest string, file string, line int) {
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		p.sess.PopPack()
		return
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		p.errorf(file, line, "malformed #pragma pack: %s", rest)
		return
	}
	n = int(mathutil.MinInt32(int32(n), int32(1<<30)))
	p.sess.PushPack(n)
}

// evalCondition evaluates a #if/#elif constant expression after macro
// expansion, over 64-bit signed integers per spec.md §4.1.
func (p *Preprocessor) evalCondition(rest, file string, line int) bool {
	expanded := p.expandDefined(rest, file, line)
	expanded = p.expand(expanded, file, line)
	v, err := evalConstExpr(expanded)
	if err != nil {
		p.errorf(file, line, "invalid #if expression: %v", err)
		return false
	}
	return v != 0
}

// expandDefined resolves `defined(X)` / `defined X` before macro expansion,
// since `defined` must see macro names, not their expansions.
func (p *Preprocessor) expandDefined(text, file string, line int) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		if strings.HasPrefix(text[i:], "defined") && (i == 0 || !isIdentByte(text[i-1])) {
			j := i + len("defined")
			for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
				j++
			}
			paren := false
			if j < len(text) && text[j] == '(' {
				paren = true
				j++
				for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
					j++
				}
			}
			k := j
			for k < len(text) && isIdentByte(text[k]) {
				k++
			}
			name := text[j:k]
			if paren {
				for k < len(text) && text[k] != ')' {
					k++
				}
				if k < len(text) {
					k++
				}
			}
			if p.macros.IsDefined(name) {
				out.WriteString("1")
			} else {
				out.WriteString("0")
			}
			i = k
			continue
		}
		out.WriteByte(text[i])
		i++
	}
	return out.String()
}
