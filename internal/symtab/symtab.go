// Package symtab implements vc's symbol table as a scope stack of maps
// (the §9 design-note decision, replacing the reference implementation's
// singly-linked locals/globals lists) while preserving the same external
// shape: a flat global scope plus nested local scopes, with shadowing.
package symtab

import "github.com/splanck/vc/internal/ctype"

// StorageClass records how a symbol is stored.
type StorageClass int

const (
	Auto StorageClass = iota
	Static
	Register
	Extern
)

// Kind distinguishes what a symbol names.
type Kind int

const (
	KindVar Kind = iota
	KindFunc
	KindTypedef
	KindEnumConst
	KindTag // struct/union/enum tag
)

// Symbol is spec.md §3's Symbol record.
type Symbol struct {
	Name    string
	IRName  string
	Kind    Kind
	Type    *ctype.Type
	Storage StorageClass

	Const, Volatile, Restrict bool

	// IsGlobal marks a symbol backed by global storage (file-scope
	// variables and block-scope statics), so
	// lowering knows to address it via LOAD_GLOBAL/STORE_GLOBAL rather
	// than LOAD_LOCAL/STORE_LOCAL.
	IsGlobal bool

	ParamIndex int // position in the parameter list; left 0 for non-parameters
	IsEnumConst bool
	EnumValue   int64

	IsTypedef bool
	IsInline  bool

	// Function-specific; mirrors Type.Ret/Params/Variadic but kept for
	// symbols looked up before their definition is fully elaborated.
	RetType    *ctype.Type
	ParamTypes []*ctype.Type
	Variadic   bool
}

// scope is one level of the local-scope stack.
type scope struct {
	vars map[string]*Symbol
	tags map[string]*Symbol // struct/union/enum tags live in their own namespace
}

func newScope() *scope {
	return &scope{vars: make(map[string]*Symbol), tags: make(map[string]*Symbol)}
}

// Table is the scope-stack symbol table. sema constructs two: one for
// variables, typedefs and functions, and one for struct/union tags.
type Table struct {
	globals *scope
	locals  []*scope
}

// New creates a Table with an empty global scope and no open local scopes.
func New() *Table {
	return &Table{globals: newScope()}
}

// EnterScope pushes a new local scope, matching a C block's opening brace.
func (t *Table) EnterScope() {
	t.locals = append(t.locals, newScope())
}

// ExitScope pops the innermost local scope, matching a block's closing
// brace. Popping with no open scope is a programming error in the caller
// (sema never calls ExitScope without a matching EnterScope).
func (t *Table) ExitScope() {
	if len(t.locals) == 0 {
		return
	}
	t.locals = t.locals[:len(t.locals)-1]
}

// InGlobalScope reports whether no local scope is currently open.
func (t *Table) InGlobalScope() bool { return len(t.locals) == 0 }

func (t *Table) currentScope() *scope {
	if len(t.locals) == 0 {
		return t.globals
	}
	return t.locals[len(t.locals)-1]
}

// Declare installs sym in the current scope (local if any is open, else
// global). It does not check for redeclaration; callers that need to
// diagnose shadowing/redefinition consult Lookup first.
func (t *Table) Declare(sym *Symbol) {
	t.currentScope().vars[sym.Name] = sym
}

// DeclareTag installs a struct/union/enum tag in the current scope's tag
// namespace.
func (t *Table) DeclareTag(sym *Symbol) {
	t.currentScope().tags[sym.Name] = sym
}

// Lookup searches locals innermost-out, then globals, matching spec.md
// §3's "locals then globals" order.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	for i := len(t.locals) - 1; i >= 0; i-- {
		if s, ok := t.locals[i].vars[name]; ok {
			return s, true
		}
	}
	if s, ok := t.globals.vars[name]; ok {
		return s, true
	}
	return nil, false
}

// LookupTag searches the tag namespace the same way Lookup searches vars.
func (t *Table) LookupTag(name string) (*Symbol, bool) {
	for i := len(t.locals) - 1; i >= 0; i-- {
		if s, ok := t.locals[i].tags[name]; ok {
			return s, true
		}
	}
	if s, ok := t.globals.tags[name]; ok {
		return s, true
	}
	return nil, false
}

// LookupLocalScope searches only the innermost open scope (or globals, if
// none is open), used to diagnose a redeclaration within the same block.
func (t *Table) LookupLocalScope(name string) (*Symbol, bool) {
	s, ok := t.currentScope().vars[name]
	return s, ok
}

// Globals returns every symbol declared at file scope, in the order
// ranged maps don't guarantee; callers that need declaration order (code
// generation of globals) should track it themselves via a separate slice
// as sema does.
func (t *Table) Globals() map[string]*Symbol { return t.globals.vars }
