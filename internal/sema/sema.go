// Package sema implements vc's semantic analysis and IR lowering: two
// symbol tables (variables/typedefs/functions, and struct/union tags; there
// is no separate function table), usual arithmetic
// conversions and implicit-cast insertion, the constant expression
// evaluator, and the full statement/expression lowering to internal/ir.
//
// Expression and statement dispatch follows the teacher's visitor idiom:
// Analyzer implements ast.ExprVisitor/ast.StmtVisitor directly, the same
// Accept(Visitor)-based dispatch internal/parser's AST already used. The
// jump-patch control-flow lowering (emit a placeholder jump, remember its
// label, patch the label once the body/else/step is lowered) is adapted
// from internal/compiler/stmt_compiler.go's VisitIfStmt/VisitWhileStmt.
package sema

import (
	"github.com/splanck/vc/internal/ast"
	"github.com/splanck/vc/internal/ctype"
	"github.com/splanck/vc/internal/diag"
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/session"
	"github.com/splanck/vc/internal/symtab"
)

// val is an expression's lowered result: the IR value id holding it (for an
// rvalue) or its address (for an lvalue), plus its resolved C type.
type val struct {
	id     int
	typ    *ctype.Type
	lvalue bool
}

// Analyzer lowers one translation unit's AST into an ir.Program.
type Analyzer struct {
	sess *session.Session
	vars *symtab.Table // variables + typedefs + functions
	tags *symtab.Table // struct/union tags

	fn      *ir.Func
	b       *ir.Builder
	prog    *ir.Program
	retType *ctype.Type

	switchStack []switchCtx
	localSeq    int
}

// freshLocalName returns a scope-unique IR slot name derived from base, so
// two C declarations of the same name in nested/sibling scopes never alias
// the same LOAD_LOCAL/STORE_LOCAL slot.
func (a *Analyzer) freshLocalName(base string) string {
	a.localSeq++
	return base + ".l" + itoa(a.localSeq)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

type switchCtx struct {
	tagID   int
	tagType *ctype.Type
	cases   []caseLabel
}

type caseLabel struct {
	value     int64
	isDefault bool
	label     string
}

// New creates an Analyzer bound to sess.
func New(sess *session.Session) *Analyzer {
	return &Analyzer{
		sess: sess,
		vars: symtab.New(),
		tags: symtab.New(),
		prog: &ir.Program{},
	}
}

func (a *Analyzer) errorf(pos ast.Pos, format string, args ...interface{}) {
	a.sess.Diag.Add(diag.New(diag.Semantic, diag.Location{File: pos.File, Line: pos.Line, Column: pos.Column}, format, args...))
}

// Analyze lowers an entire translation unit, in source order, and returns
// the resulting Program.
func (a *Analyzer) Analyze(tu *ast.TranslationUnit) *ir.Program {
	for _, item := range tu.Order {
		switch n := item.(type) {
		case *ast.Func:
			a.lowerFunc(n)
		case *ast.Glob:
			a.lowerGlob(n)
		}
	}
	return a.prog
}

func (a *Analyzer) lowerGlob(g *ast.Glob) {
	switch g.Kind {
	case ast.GlobTypedef:
		t := a.resolveType(g.TypedefType)
		a.vars.Declare(&symtab.Symbol{Name: g.TypedefName, Kind: symtab.KindTypedef, Type: t, IsTypedef: true})
	case ast.GlobStructDecl:
		a.declareTag(ctype.Struct, g.Tag, g.Fields, int64(a.sess.CurrentPack()))
	case ast.GlobUnionDecl:
		a.declareTag(ctype.Union, g.Tag, g.Fields, int64(a.sess.CurrentPack()))
	case ast.GlobEnumDecl:
		a.lowerEnumMembers(g.EnumMembers)
	case ast.GlobVar:
		a.lowerGlobalVar(g.Var)
	}
}

func (a *Analyzer) lowerEnumMembers(members []ast.EnumMember) {
	var next int64
	for _, m := range members {
		v := next
		if m.Value != nil {
			if cv, ok := a.constIntEval(m.Value); ok {
				v = cv
			}
		}
		a.vars.Declare(&symtab.Symbol{Name: m.Name, Kind: symtab.KindEnumConst, Type: ctype.TInt, IsEnumConst: true, EnumValue: v})
		next = v + 1
	}
}

func (a *Analyzer) lowerGlobalVar(vd *ast.VarDecl) {
	storage := storageOf(vd.Storage)
	for i, name := range vd.Names {
		t := a.resolveType(vd.Types[i])
		sym := &symtab.Symbol{Name: name, IRName: name, Kind: symtab.KindVar, Type: t, Storage: storage,
			Const: vd.Const, Volatile: vd.Volatile, IsGlobal: true}
		a.vars.Declare(sym)
		g := ir.Global{Name: name, Type: t, Static: storage == symtab.Static, Extern: storage == symtab.Extern}
		if vd.Init[i] == nil && vd.InitLst[i] == nil {
			g.IsBSS = true
		}
		a.prog.Globals = append(a.prog.Globals, g)
	}
}

func storageOf(s string) symtab.StorageClass {
	switch s {
	case "static":
		return symtab.Static
	case "extern":
		return symtab.Extern
	case "register":
		return symtab.Register
	default:
		return symtab.Auto
	}
}

// ---- functions ----

func (a *Analyzer) lowerFunc(fn *ast.Func) {
	retType := a.resolveType(fn.RetType)
	var paramTypes []*ctype.Type
	for _, p := range fn.Params {
		paramTypes = append(paramTypes, a.resolveType(p.Type))
	}
	sym := &symtab.Symbol{Name: fn.Name, IRName: fn.Name, Kind: symtab.KindFunc, Storage: storageOf(fn.Storage),
		RetType: retType, ParamTypes: paramTypes, Variadic: fn.Variadic, IsInline: fn.Inline}
	a.vars.Declare(sym)

	irFn := ir.NewFunc(fn.Name, retType, paramTypes, fn.Variadic, fn.Storage == "static")
	a.fn = irFn
	a.b = ir.NewBuilder(irFn)
	a.retType = retType

	a.vars.EnterScope()
	for i, p := range fn.Params {
		t := paramTypes[i]
		tmp := a.fn.NewValue()
		a.fn.Emit(ir.Instr{Op: ir.LOAD_PARAM, Dest: tmp, Imm: int64(i), Type: t})
		irName := a.freshLocalName(p.Name)
		a.fn.Emit(ir.Instr{Op: ir.STORE_LOCAL, Src1: tmp, Name: irName, Type: t})
		a.vars.Declare(&symtab.Symbol{Name: p.Name, IRName: irName, Kind: symtab.KindVar, Type: t, Storage: symtab.Auto, ParamIndex: i})
	}
	for _, s := range fn.Body {
		a.lowerStmt(s)
	}
	a.vars.ExitScope()

	if retType.Kind == ctype.Void {
		a.fn.Emit(ir.Instr{Op: ir.RETURN_VOID})
	}
	a.fn.ResolveLabels()
	a.prog.Funcs = append(a.prog.Funcs, a.fn)
}

func (a *Analyzer) lowerStmt(s ast.Stmt) {
	s.Accept(a)
}

func (a *Analyzer) lowerExpr(e ast.Expr) val {
	return e.Accept(a).(val)
}

// typeOf lowers e purely to discover its static type, for sizeof(expr);
// this is a best-effort type-only pass and does not emit instructions for
// non-constant subexpressions that sizeof's operand is never evaluated
// (C99 6.5.3.4p2).
func (a *Analyzer) typeOf(e ast.Expr) *ctype.Type {
	switch n := e.(type) {
	case *ast.Ident:
		if sym, ok := a.vars.Lookup(n.Name); ok {
			return sym.Type
		}
		return ctype.TInt
	case *ast.Number:
		if n.Imag {
			return &ctype.Type{Kind: ctype.DoubleComplex, Size: 16, Align: 8}
		}
		return ctype.TInt
	case *ast.Cast:
		return a.resolveType(n.Type)
	case *ast.Unary:
		if n.Op == "*" {
			t := a.typeOf(n.Operand)
			if t != nil && t.Elem != nil {
				return t.Elem
			}
		}
		if n.Op == "&" {
			return ctype.NewPtr(a.typeOf(n.Operand), a.wordSize())
		}
		return a.typeOf(n.Operand)
	case *ast.Binary:
		l, r := a.typeOf(n.Left), a.typeOf(n.Right)
		if l != nil && r != nil && l.IsArithmetic() && r.IsArithmetic() {
			return ctype.UsualArithmeticConversion(l, r)
		}
		if l != nil {
			return l
		}
		return r
	case *ast.Index:
		t := a.typeOf(n.Array)
		if t != nil && t.Elem != nil {
			return t.Elem
		}
		return ctype.TInt
	case *ast.Member:
		t := a.typeOf(n.Object)
		if n.Arrow && t != nil && t.Elem != nil {
			t = t.Elem
		}
		if t != nil {
			for _, f := range t.Fields {
				if f.Name == n.Field {
					return f.Type
				}
			}
		}
		return ctype.TInt
	default:
		return ctype.TInt
	}
}
