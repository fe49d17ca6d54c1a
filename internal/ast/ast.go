// Package ast defines vc's abstract syntax tree: two discriminated unions
// rooted at Expr and Stmt, plus Func and top-level Glob nodes (spec.md
// §3). Node dispatch follows the teacher's visitor idiom
// (internal/parser/ast.go's `Accept(Visitor) any`) rather than a closed Go
// sum type, since every node here is addressed from a per-session arena by
// slice index (the §9 design note) and the arena owns node lifetime.
package ast

import "github.com/splanck/vc/internal/ctype"

// Pos is the source location every node carries.
type Pos struct {
	File   string
	Line   int
	Column int
}

// Expr is the root of the expression union.
type Expr interface {
	Accept(v ExprVisitor) interface{}
	Position() Pos
}

// Stmt is the root of the statement union.
type Stmt interface {
	Accept(v StmtVisitor) interface{}
	Position() Pos
}

type Base struct{ Pos Pos }

func (b Base) Position() Pos { return b.Pos }

// ---- Expressions ----

type Number struct {
	Base
	Text string // raw lexeme; sema's constant evaluator parses it
	Imag bool
}

func (n *Number) Accept(v ExprVisitor) interface{} { return v.VisitNumber(n) }

type Ident struct {
	Base
	Name string
}

func (n *Ident) Accept(v ExprVisitor) interface{} { return v.VisitIdent(n) }

type StringLit struct {
	Base
	Value []byte
	Wide  bool
}

func (n *StringLit) Accept(v ExprVisitor) interface{} { return v.VisitStringLit(n) }

type CharLit struct {
	Base
	Value rune
	Wide  bool
}

func (n *CharLit) Accept(v ExprVisitor) interface{} { return v.VisitCharLit(n) }

// ComplexLit is a GNU-extension imaginary literal folded into a complex
// constant by the parser (e.g. `3.0i`).
type ComplexLit struct {
	Base
	Real, Imag float64
}

func (n *ComplexLit) Accept(v ExprVisitor) interface{} { return v.VisitComplexLit(n) }

type Unary struct {
	Base
	Op      string // "+","-","!","~","*","&","++","--" (prefix)
	Operand Expr
	Postfix bool // true for postfix ++/--
}

func (n *Unary) Accept(v ExprVisitor) interface{} { return v.VisitUnary(n) }

type Binary struct {
	Base
	Op          string
	Left, Right Expr
}

func (n *Binary) Accept(v ExprVisitor) interface{} { return v.VisitBinary(n) }

type Ternary struct {
	Base
	Cond, Then, Else Expr
}

func (n *Ternary) Accept(v ExprVisitor) interface{} { return v.VisitTernary(n) }

// Assign covers both simple (`=`) and compound (`+=`, ...) assignment.
type Assign struct {
	Base
	Op           string // "=", "+=", "-=", ...
	Target, Value Expr
}

func (n *Assign) Accept(v ExprVisitor) interface{} { return v.VisitAssign(n) }

type Index struct {
	Base
	Array, Idx Expr
}

func (n *Index) Accept(v ExprVisitor) interface{} { return v.VisitIndex(n) }

// Member covers both `.` and `->` access; Arrow distinguishes them.
type Member struct {
	Base
	Object Expr
	Field  string
	Arrow  bool
}

func (n *Member) Accept(v ExprVisitor) interface{} { return v.VisitMember(n) }

// SizeofExpr is `sizeof expr`.
type SizeofExpr struct {
	Base
	Operand Expr
}

func (n *SizeofExpr) Accept(v ExprVisitor) interface{} { return v.VisitSizeofExpr(n) }

// SizeofType is `sizeof(type-name)`.
type SizeofType struct {
	Base
	Type TypeName
}

func (n *SizeofType) Accept(v ExprVisitor) interface{} { return v.VisitSizeofType(n) }

type Call struct {
	Base
	Callee Expr
	Args   []Expr
}

func (n *Call) Accept(v ExprVisitor) interface{} { return v.VisitCall(n) }

type Cast struct {
	Base
	Type    TypeName
	Operand Expr
}

func (n *Cast) Accept(v ExprVisitor) interface{} { return v.VisitCast(n) }

// Comma is the binary comma operator `a, b`.
type Comma struct {
	Base
	Left, Right Expr
}

func (n *Comma) Accept(v ExprVisitor) interface{} { return v.VisitComma(n) }

// InitList is a brace initializer list, used both as an expression
// (compound literal) and inside VarDecl.
type InitList struct {
	Base
	Elems []Expr
}

func (n *InitList) Accept(v ExprVisitor) interface{} { return v.VisitInitList(n) }

// ExprVisitor dispatches over every Expr variant.
type ExprVisitor interface {
	VisitNumber(*Number) interface{}
	VisitIdent(*Ident) interface{}
	VisitStringLit(*StringLit) interface{}
	VisitCharLit(*CharLit) interface{}
	VisitComplexLit(*ComplexLit) interface{}
	VisitUnary(*Unary) interface{}
	VisitBinary(*Binary) interface{}
	VisitTernary(*Ternary) interface{}
	VisitAssign(*Assign) interface{}
	VisitIndex(*Index) interface{}
	VisitMember(*Member) interface{}
	VisitSizeofExpr(*SizeofExpr) interface{}
	VisitSizeofType(*SizeofType) interface{}
	VisitCall(*Call) interface{}
	VisitCast(*Cast) interface{}
	VisitComma(*Comma) interface{}
	VisitInitList(*InitList) interface{}
}

// ---- Types (declarator output) ----

// TypeName is the parser's syntactic representation of a type, resolved to
// a *ctype.Type by sema. It mirrors C's declarator spiral: a base specifier
// set plus a chain of pointer/array/function wrappers.
type TypeName struct {
	Specifiers []string // "int", "unsigned", "struct", tag name, typedef name, ...
	Pointers   int
	Arrays     []Expr // nil element means an unspecified/incomplete dimension
	Func       *FuncTypeSuffix
	Resolved   *ctype.Type // filled in by sema
}

// FuncTypeSuffix describes a function-pointer/function-returning suffix in
// a declarator, e.g. `int (*)(int, char)`.
type FuncTypeSuffix struct {
	Params   []TypeName
	Variadic bool
}

// ---- Statements ----

type ExprStmt struct {
	Base
	X Expr
}

func (n *ExprStmt) Accept(v StmtVisitor) interface{} { return v.VisitExprStmt(n) }

type ReturnStmt struct {
	Base
	Value Expr // nil for bare `return;`
}

func (n *ReturnStmt) Accept(v StmtVisitor) interface{} { return v.VisitReturnStmt(n) }

// VarDecl declares one or more variables sharing a base type; Names/Types
// are parallel slices for constructs like `int a, *b, c[3];`. Init[i] may
// be nil.
type VarDecl struct {
	Base
	Names   []string
	Types   []TypeName
	Init    []Expr // simple initializer, or nil
	InitLst []*InitList
	Storage string // "", "static", "extern", "register", "auto"
	Const, Volatile bool
}

func (n *VarDecl) Accept(v StmtVisitor) interface{} { return v.VisitVarDecl(n) }

type IfStmt struct {
	Base
	Cond       Expr
	Then, Else Stmt
}

func (n *IfStmt) Accept(v StmtVisitor) interface{} { return v.VisitIfStmt(n) }

type WhileStmt struct {
	Base
	Cond Expr
	Body Stmt
}

func (n *WhileStmt) Accept(v StmtVisitor) interface{} { return v.VisitWhileStmt(n) }

type DoWhileStmt struct {
	Base
	Body Stmt
	Cond Expr
}

func (n *DoWhileStmt) Accept(v StmtVisitor) interface{} { return v.VisitDoWhileStmt(n) }

type ForStmt struct {
	Base
	Init          Stmt // ExprStmt or VarDecl, may be nil
	Cond, Post    Expr
	Body          Stmt
}

func (n *ForStmt) Accept(v StmtVisitor) interface{} { return v.VisitForStmt(n) }

type CaseClause struct {
	Value   Expr // nil marks `default:`
	IsDefault bool
	Body    []Stmt
}

type SwitchStmt struct {
	Base
	Tag   Expr
	Cases []CaseClause
}

func (n *SwitchStmt) Accept(v StmtVisitor) interface{} { return v.VisitSwitchStmt(n) }

type BreakStmt struct{ Base }

func (n *BreakStmt) Accept(v StmtVisitor) interface{} { return v.VisitBreakStmt(n) }

type ContinueStmt struct{ Base }

func (n *ContinueStmt) Accept(v StmtVisitor) interface{} { return v.VisitContinueStmt(n) }

type LabelStmt struct {
	Base
	Name string
	Stmt Stmt
}

func (n *LabelStmt) Accept(v StmtVisitor) interface{} { return v.VisitLabelStmt(n) }

type GotoStmt struct {
	Base
	Label string
}

func (n *GotoStmt) Accept(v StmtVisitor) interface{} { return v.VisitGotoStmt(n) }

type TypedefStmt struct {
	Base
	Name string
	Type TypeName
}

func (n *TypedefStmt) Accept(v StmtVisitor) interface{} { return v.VisitTypedefStmt(n) }

type EnumMember struct {
	Name  string
	Value Expr // nil means "previous + 1" (or 0 for the first)
}

type EnumDeclStmt struct {
	Base
	Tag     string
	Members []EnumMember
}

func (n *EnumDeclStmt) Accept(v StmtVisitor) interface{} { return v.VisitEnumDeclStmt(n) }

type BlockStmt struct {
	Base
	Stmts []Stmt
}

func (n *BlockStmt) Accept(v StmtVisitor) interface{} { return v.VisitBlockStmt(n) }

type StaticAssertStmt struct {
	Base
	Cond    Expr
	Message string
}

func (n *StaticAssertStmt) Accept(v StmtVisitor) interface{} { return v.VisitStaticAssertStmt(n) }

// StmtVisitor dispatches over every Stmt variant.
type StmtVisitor interface {
	VisitExprStmt(*ExprStmt) interface{}
	VisitReturnStmt(*ReturnStmt) interface{}
	VisitVarDecl(*VarDecl) interface{}
	VisitIfStmt(*IfStmt) interface{}
	VisitWhileStmt(*WhileStmt) interface{}
	VisitDoWhileStmt(*DoWhileStmt) interface{}
	VisitForStmt(*ForStmt) interface{}
	VisitSwitchStmt(*SwitchStmt) interface{}
	VisitBreakStmt(*BreakStmt) interface{}
	VisitContinueStmt(*ContinueStmt) interface{}
	VisitLabelStmt(*LabelStmt) interface{}
	VisitGotoStmt(*GotoStmt) interface{}
	VisitTypedefStmt(*TypedefStmt) interface{}
	VisitEnumDeclStmt(*EnumDeclStmt) interface{}
	VisitBlockStmt(*BlockStmt) interface{}
	VisitStaticAssertStmt(*StaticAssertStmt) interface{}
}

// ---- Top level ----

// Param is one function parameter declarator.
type Param struct {
	Name string
	Type TypeName
}

// Func is a top-level function definition.
type Func struct {
	Pos      Pos
	Name     string
	RetType  TypeName
	Params   []Param
	Variadic bool
	Body     []Stmt
	Storage  string // "", "static", "extern"
	Inline   bool   // captured directly from the `inline` specifier (§9 Open Question)
}

// GlobKind tags the variant of a top-level Glob declaration.
type GlobKind int

const (
	GlobTypedef GlobKind = iota
	GlobStructDecl
	GlobUnionDecl
	GlobEnumDecl
	GlobVar
)

// Glob is a non-function top-level declaration.
type Glob struct {
	Pos  Pos
	Kind GlobKind

	// GlobTypedef
	TypedefName string
	TypedefType TypeName

	// GlobStructDecl / GlobUnionDecl
	Tag    string
	Fields []Param

	// GlobEnumDecl
	EnumTag     string
	EnumMembers []EnumMember

	// GlobVar
	Var *VarDecl
}

// TranslationUnit is the parser's final output: an ordered sequence of
// top-level functions and declarations, as they appeared in source (order
// matters for global initializer evaluation and for C's single-pass
// declare-before-use rule).
type TranslationUnit struct {
	Funcs []*Func
	Globs []*Glob
	// Order interleaves the two above in source order: each entry is
	// either a *Func or a *Glob, used by sema to process declarations in
	// the order they textually appear.
	Order []interface{}
}
