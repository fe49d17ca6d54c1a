// Package parse implements vc's recursive-descent parser: tokens to AST.
//
// The Parser shape (tokens []token.Token, current int, accumulated errors)
// and its match/check/advance helpers follow the teacher's
// internal/parser.Parser; the grammar itself is C99's, not Sentra's.
package parse

import (
	"strconv"

	"github.com/splanck/vc/internal/ast"
	"github.com/splanck/vc/internal/diag"
	"github.com/splanck/vc/internal/token"
)

// typedefSet is the set of names registered via `typedef`, consulted by the
// declarator parser to tell a type specifier from a plain identifier —
// the parser must know this to parse `T *p;` as a declaration rather than
// a multiplication expression.
type typedefSet map[string]bool

// Parser parses one token stream into a TranslationUnit.
type Parser struct {
	tokens  []token.Token
	current int
	file    string
	sink    *diag.Sink
	typedefs typedefSet
}

// New creates a Parser over tokens, attributing diagnostics to file.
func New(tokens []token.Token, file string, sink *diag.Sink) *Parser {
	return &Parser{tokens: tokens, file: file, sink: sink, typedefs: typedefSet{}}
}

// precedence maps binary operator tokens to their C99 precedence level,
// higher binds tighter, generalized from the teacher's parser.precedence
// table to the full C operator set (spec.md §4.3).
var precedence = map[token.Kind]int{
	token.OROR:   1,
	token.ANDAND: 2,
	token.PIPE:   3,
	token.CARET:  4,
	token.AMP:    5,
	token.EQEQ:   6,
	token.NE:     6,
	token.LT:     7,
	token.GT:     7,
	token.LE:     7,
	token.GE:     7,
	token.SHL:    8,
	token.SHR:    8,
	token.PLUS:   9,
	token.MINUS:  9,
	token.STAR:   10,
	token.SLASH:  10,
	token.PERCENT: 10,
}

var binOpText = map[token.Kind]string{
	token.OROR: "||", token.ANDAND: "&&", token.PIPE: "|", token.CARET: "^", token.AMP: "&",
	token.EQEQ: "==", token.NE: "!=", token.LT: "<", token.GT: ">", token.LE: "<=", token.GE: ">=",
	token.SHL: "<<", token.SHR: ">>", token.PLUS: "+", token.MINUS: "-",
	token.STAR: "*", token.SLASH: "/", token.PERCENT: "%",
}

var assignOpText = map[token.Kind]string{
	token.ASSIGN: "=", token.PLUSEQ: "+=", token.MINUSEQ: "-=", token.STAREQ: "*=",
	token.SLASHEQ: "/=", token.PERCENTEQ: "%=", token.AMPEQ: "&=", token.PIPEEQ: "|=",
	token.CARETEQ: "^=", token.SHLEQ: "<<=", token.SHREQ: ">>=",
}

// ---- token stream helpers ----

func (p *Parser) peek() token.Token  { return p.tokens[p.current] }
func (p *Parser) peekKind() token.Kind { return p.tokens[p.current].Kind }
func (p *Parser) isAtEnd() bool      { return p.peekKind() == token.EOF }

func (p *Parser) previous() token.Token {
	if p.current == 0 {
		return p.tokens[0]
	}
	return p.tokens[p.current-1]
}

func (p *Parser) advance() token.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

func (p *Parser) check(k token.Kind) bool {
	return !p.isAtEnd() && p.peekKind() == k
}

func (p *Parser) match(kinds ...token.Kind) bool {
	for _, k := range kinds {
		if p.check(k) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) pos() ast.Pos {
	t := p.peek()
	return ast.Pos{File: t.File, Line: t.Line, Column: t.Column}
}

func (p *Parser) errorf(format string, args ...interface{}) {
	t := p.peek()
	p.sink.Add(diag.New(diag.Parse, diag.Location{File: t.File, Line: t.Line, Column: t.Column}, format, args...))
}

func (p *Parser) expect(k token.Kind, what string) token.Token {
	if p.check(k) {
		return p.advance()
	}
	p.errorf("expected %s, found %q", what, p.peek().Lexeme)
	p.synchronize()
	return p.peek()
}

// synchronize implements spec.md §4.3's recovery rule: resync to the next
// ';' (consuming it) or '}' (left in place for the enclosing block) before
// the caller continues parsing.
func (p *Parser) synchronize() {
	for !p.isAtEnd() {
		if p.peekKind() == token.SEMI {
			p.advance()
			return
		}
		if p.peekKind() == token.RBRACE {
			return
		}
		p.advance()
	}
}

// Parse parses the whole token stream into a TranslationUnit. Parsing
// continues past per-declaration syntax errors (accumulated in the sink)
// so later, unrelated problems are still surfaced.
func (p *Parser) Parse() *ast.TranslationUnit {
	tu := &ast.TranslationUnit{}
	for !p.isAtEnd() {
		item := p.topLevel()
		if item == nil {
			continue
		}
		tu.Order = append(tu.Order, item)
		switch n := item.(type) {
		case *ast.Func:
			tu.Funcs = append(tu.Funcs, n)
		case *ast.Glob:
			tu.Globs = append(tu.Globs, n)
		}
	}
	return tu
}

// ---- declarations ----

var storageClassKinds = map[token.Kind]string{
	token.KW_STATIC: "static", token.KW_EXTERN: "extern",
	token.KW_REGISTER: "register", token.KW_AUTO: "auto",
}

var typeSpecifierKinds = map[token.Kind]bool{
	token.KW_VOID: true, token.KW_CHAR: true, token.KW_SHORT: true, token.KW_INT: true,
	token.KW_LONG: true, token.KW_FLOAT: true, token.KW_DOUBLE: true, token.KW_SIGNED: true,
	token.KW_UNSIGNED: true, token.KW_BOOL: true, token.KW_COMPLEX: true,
	token.KW_STRUCT: true, token.KW_UNION: true, token.KW_ENUM: true,
}

func (p *Parser) startsTypeSpecifier() bool {
	if typeSpecifierKinds[p.peekKind()] {
		return true
	}
	if p.peekKind() == token.IDENT && p.typedefs[p.peek().Lexeme] {
		return true
	}
	return false
}

// topLevel parses one top-level function definition or declaration.
func (p *Parser) topLevel() interface{} {
	pos := p.pos()

	if p.match(token.KW_TYPEDEF) {
		return p.typedefDecl(pos)
	}
	if p.check(token.KW_STATIC_ASSERT) {
		p.staticAssert()
		return nil
	}
	storage := ""
	isInline := false
	for {
		if sc, ok := storageClassKinds[p.peekKind()]; ok {
			storage = sc
			p.advance()
			continue
		}
		if p.match(token.KW_INLINE) {
			isInline = true
			continue
		}
		break
	}

	base := p.typeSpecifierList()
	if base == nil {
		p.errorf("expected declaration")
		p.synchronize()
		return nil
	}

	// Qualifiers may appear interleaved with specifiers in real C; for
	// this pragmatic subset they're consumed by typeSpecifierList.

	if p.check(token.SEMI) {
		p.advance()
		return nil // bare `struct Foo;` forward declaration: no symbol to emit yet
	}

	name, declType := p.declarator(*base)

	if declType.Func != nil && p.check(token.LBRACE) {
		fn := &ast.Func{Pos: pos, Name: name, RetType: declType, Storage: storage, Inline: isInline, Variadic: declType.Func.Variadic}
		for _, pt := range declType.Func.Params {
			fn.Params = append(fn.Params, ast.Param{Name: pt.Specifiers[len(pt.Specifiers)-1], Type: pt})
		}
		fn.Body = p.block()
		return fn
	}

	// Otherwise it's a function prototype or a global variable declaration.
	if declType.Func != nil {
		p.expect(token.SEMI, "';'")
		return nil // prototype-only: no AST node is produced, so sema never sees it
	}

	vd := &ast.VarDecl{Base: astBase(pos), Storage: storage}
	vd.Names = append(vd.Names, name)
	vd.Types = append(vd.Types, declType)
	if p.match(token.ASSIGN) {
		if p.check(token.LBRACE) {
			vd.Init = append(vd.Init, nil)
			vd.InitLst = append(vd.InitLst, p.initList())
		} else {
			vd.Init = append(vd.Init, p.assignment())
			vd.InitLst = append(vd.InitLst, nil)
		}
	} else {
		vd.Init = append(vd.Init, nil)
		vd.InitLst = append(vd.InitLst, nil)
	}
	for p.match(token.COMMA) {
		n2, t2 := p.declarator(*base)
		vd.Names = append(vd.Names, n2)
		vd.Types = append(vd.Types, t2)
		if p.match(token.ASSIGN) {
			if p.check(token.LBRACE) {
				vd.Init = append(vd.Init, nil)
				vd.InitLst = append(vd.InitLst, p.initList())
			} else {
				vd.Init = append(vd.Init, p.assignment())
				vd.InitLst = append(vd.InitLst, nil)
			}
		} else {
			vd.Init = append(vd.Init, nil)
			vd.InitLst = append(vd.InitLst, nil)
		}
	}
	p.expect(token.SEMI, "';'")
	return &ast.Glob{Pos: pos, Kind: ast.GlobVar, Var: vd}
}

func (p *Parser) peekAhead(n int) token.Token {
	idx := p.current + n
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

// typeSpecifierList consumes a flat run of type specifiers/qualifiers
// (spec.md §4.3: "normalized... unsigned/signed modifies the base
// integer") and returns the resulting base TypeName, or nil if none is
// present.
func (p *Parser) typeSpecifierList() *ast.TypeName {
	var specs []string
	matched := false
	for {
		switch {
		case p.match(token.KW_CONST):
			matched = true
		case p.match(token.KW_VOLATILE):
			matched = true
		case p.match(token.KW_RESTRICT):
			matched = true
		case p.match(token.KW_VOID, token.KW_CHAR, token.KW_SHORT, token.KW_INT,
			token.KW_LONG, token.KW_FLOAT, token.KW_DOUBLE, token.KW_SIGNED,
			token.KW_UNSIGNED, token.KW_BOOL, token.KW_COMPLEX):
			specs = append(specs, p.previous().Lexeme)
			matched = true
		case p.check(token.KW_STRUCT) || p.check(token.KW_UNION):
			kw := p.advance().Lexeme
			specs = append(specs, kw)
			if p.check(token.IDENT) {
				specs = append(specs, p.advance().Lexeme)
			}
			if p.check(token.LBRACE) {
				p.skipAggregateBody()
			}
			matched = true
		case p.check(token.KW_ENUM):
			p.advance()
			specs = append(specs, "enum")
			if p.check(token.IDENT) {
				specs = append(specs, p.advance().Lexeme)
			}
			if p.check(token.LBRACE) {
				p.skipAggregateBody()
			}
			matched = true
		case p.peekKind() == token.IDENT && p.typedefs[p.peek().Lexeme] && len(specs) == 0:
			specs = append(specs, p.advance().Lexeme)
			matched = true
			goto done
		default:
			goto done
		}
	}
done:
	if !matched {
		return nil
	}
	return &ast.TypeName{Specifiers: specs}
}

// skipAggregateBody consumes a balanced `{ ... }` aggregate body without
// recording its members. Every struct/union body, and every enum body met
// inside a type specifier, goes through here, so the AST keeps no
// struct/union field lists.
func (p *Parser) skipAggregateBody() {
	depth := 0
	for !p.isAtEnd() {
		if p.check(token.LBRACE) {
			depth++
			p.advance()
			continue
		}
		if p.check(token.RBRACE) {
			depth--
			p.advance()
			if depth == 0 {
				return
			}
			continue
		}
		p.advance()
	}
}

func (p *Parser) typedefDecl(pos ast.Pos) interface{} {
	base := p.typeSpecifierList()
	if base == nil {
		p.errorf("expected type in typedef")
		p.synchronize()
		return nil
	}
	name, t := p.declarator(*base)
	p.expect(token.SEMI, "';'")
	p.typedefs[name] = true
	return &ast.Glob{Pos: pos, Kind: ast.GlobTypedef, TypedefName: name, TypedefType: t}
}

// declarator parses the pointer/array/function-suffix spiral around an
// identifier, starting from an already-parsed base type (spec.md §4.3).
func (p *Parser) declarator(base ast.TypeName) (string, ast.TypeName) {
	t := base
	for p.match(token.STAR) {
		t.Pointers++
		for p.match(token.KW_CONST, token.KW_VOLATILE, token.KW_RESTRICT) {
		}
	}
	if p.match(token.LPAREN) {
		// Parenthesized declarator, e.g. function-pointer: `int (*f)(int)`.
		name, inner := p.declarator(ast.TypeName{})
		p.expect(token.RPAREN, "')'")
		suffixed := p.declaratorSuffix(inner)
		suffixed.Specifiers = append(append([]string{}, t.Specifiers...), suffixed.Specifiers...)
		suffixed.Pointers += t.Pointers
		return name, suffixed
	}
	name := ""
	if p.check(token.IDENT) {
		name = p.advance().Lexeme
	}
	return name, p.declaratorSuffix(t)
}

// declaratorSuffix consumes trailing `[N]` / `(params)` forms.
func (p *Parser) declaratorSuffix(t ast.TypeName) ast.TypeName {
	for {
		if p.match(token.LBRACKET) {
			var dim ast.Expr
			if !p.check(token.RBRACKET) {
				dim = p.assignment()
			}
			p.expect(token.RBRACKET, "']'")
			t.Arrays = append(t.Arrays, dim)
			continue
		}
		if p.match(token.LPAREN) {
			suffix := &ast.FuncTypeSuffix{}
			if !p.check(token.RPAREN) {
				for {
					if p.match(token.ELLIPSIS) {
						suffix.Variadic = true
						break
					}
					pbase := p.typeSpecifierList()
					if pbase == nil {
						break
					}
					pname, ptype := p.declarator(*pbase)
					ptype.Specifiers = append(ptype.Specifiers, pname)
					suffix.Params = append(suffix.Params, ptype)
					if !p.match(token.COMMA) {
						break
					}
				}
			}
			p.expect(token.RPAREN, "')'")
			t.Func = suffix
			continue
		}
		break
	}
	return t
}

// staticAssert parses `_Static_assert(expr, "message");`.
func (p *Parser) staticAssert() *ast.StaticAssertStmt {
	pos := p.pos()
	p.advance()
	p.expect(token.LPAREN, "'('")
	cond := p.assignment()
	msg := ""
	if p.match(token.COMMA) {
		if p.check(token.STRING_LIT) {
			msg = p.advance().Lexeme
		}
	}
	p.expect(token.RPAREN, "')'")
	p.expect(token.SEMI, "';'")
	return &ast.StaticAssertStmt{Base: astBase(pos), Cond: cond, Message: msg}
}

// ---- statements ----

func astBase(pos ast.Pos) ast.Base { return ast.Base{Pos: pos} }

func (p *Parser) block() []ast.Stmt {
	p.expect(token.LBRACE, "'{'")
	var stmts []ast.Stmt
	for !p.check(token.RBRACE) && !p.isAtEnd() {
		stmts = append(stmts, p.statement())
	}
	p.expect(token.RBRACE, "'}'")
	return stmts
}

func (p *Parser) statement() ast.Stmt {
	pos := p.pos()
	switch {
	case p.check(token.LBRACE):
		return &ast.BlockStmt{Base: astBase(pos), Stmts: p.block()}
	case p.match(token.KW_IF):
		return p.ifStmt(pos)
	case p.match(token.KW_WHILE):
		return p.whileStmt(pos)
	case p.match(token.KW_DO):
		return p.doWhileStmt(pos)
	case p.match(token.KW_FOR):
		return p.forStmt(pos)
	case p.match(token.KW_SWITCH):
		return p.switchStmt(pos)
	case p.match(token.KW_BREAK):
		p.expect(token.SEMI, "';'")
		return &ast.BreakStmt{Base: astBase(pos)}
	case p.match(token.KW_CONTINUE):
		p.expect(token.SEMI, "';'")
		return &ast.ContinueStmt{Base: astBase(pos)}
	case p.match(token.KW_RETURN):
		var val ast.Expr
		if !p.check(token.SEMI) {
			val = p.expression()
		}
		p.expect(token.SEMI, "';'")
		return &ast.ReturnStmt{Base: astBase(pos), Value: val}
	case p.match(token.KW_GOTO):
		name := p.expect(token.IDENT, "label").Lexeme
		p.expect(token.SEMI, "';'")
		return &ast.GotoStmt{Base: astBase(pos), Label: name}
	case p.match(token.KW_TYPEDEF):
		g := p.typedefDecl(pos)
		if td, ok := g.(*ast.Glob); ok {
			return &ast.TypedefStmt{Base: astBase(pos), Name: td.TypedefName, Type: td.TypedefType}
		}
		return &ast.BlockStmt{Base: astBase(pos)}
	case p.check(token.KW_STATIC_ASSERT):
		return p.staticAssert()
	case p.check(token.KW_ENUM):
		return p.enumDeclStmt(pos)
	case p.check(token.IDENT) && p.peekAhead(1).Kind == token.COLON:
		name := p.advance().Lexeme
		p.advance() // ':'
		inner := p.statement()
		return &ast.LabelStmt{Base: astBase(pos), Name: name, Stmt: inner}
	case p.startsDeclaration():
		return p.declarationStmt(pos)
	default:
		e := p.expression()
		p.expect(token.SEMI, "';'")
		return &ast.ExprStmt{Base: astBase(pos), X: e}
	}
}

func (p *Parser) startsDeclaration() bool {
	save := p.current
	defer func() { p.current = save }()
	for storageClassKinds[p.peekKind()] != "" || p.peekKind() == token.KW_INLINE {
		p.advance()
	}
	return p.startsTypeSpecifier()
}

func (p *Parser) declarationStmt(pos ast.Pos) ast.Stmt {
	storage := ""
	for {
		if sc, ok := storageClassKinds[p.peekKind()]; ok {
			storage = sc
			p.advance()
			continue
		}
		if p.match(token.KW_INLINE) {
			continue
		}
		break
	}
	base := p.typeSpecifierList()
	vd := &ast.VarDecl{Base: astBase(pos), Storage: storage}
	if base == nil {
		p.errorf("expected declaration")
		p.synchronize()
		return vd
	}
	for {
		name, t := p.declarator(*base)
		vd.Names = append(vd.Names, name)
		vd.Types = append(vd.Types, t)
		if p.match(token.ASSIGN) {
			if p.check(token.LBRACE) {
				vd.Init = append(vd.Init, nil)
				vd.InitLst = append(vd.InitLst, p.initList())
			} else {
				vd.Init = append(vd.Init, p.assignment())
				vd.InitLst = append(vd.InitLst, nil)
			}
		} else {
			vd.Init = append(vd.Init, nil)
			vd.InitLst = append(vd.InitLst, nil)
		}
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.SEMI, "';'")
	return vd
}

func (p *Parser) initList() *ast.InitList {
	pos := p.pos()
	p.expect(token.LBRACE, "'{'")
	lst := &ast.InitList{Base: astBase(pos)}
	for !p.check(token.RBRACE) && !p.isAtEnd() {
		if p.check(token.LBRACE) {
			lst.Elems = append(lst.Elems, p.initList())
		} else {
			lst.Elems = append(lst.Elems, p.assignment())
		}
		if !p.match(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE, "'}'")
	return lst
}

func (p *Parser) enumDeclStmt(pos ast.Pos) ast.Stmt {
	p.advance() // 'enum'
	tag := ""
	if p.check(token.IDENT) {
		tag = p.advance().Lexeme
	}
	var members []ast.EnumMember
	if p.match(token.LBRACE) {
		for !p.check(token.RBRACE) && !p.isAtEnd() {
			name := p.expect(token.IDENT, "enumerator").Lexeme
			var val ast.Expr
			if p.match(token.ASSIGN) {
				val = p.assignment()
			}
			members = append(members, ast.EnumMember{Name: name, Value: val})
			if !p.match(token.COMMA) {
				break
			}
		}
		p.expect(token.RBRACE, "'}'")
	}
	p.expect(token.SEMI, "';'")
	return &ast.EnumDeclStmt{Base: astBase(pos), Tag: tag, Members: members}
}

func (p *Parser) ifStmt(pos ast.Pos) ast.Stmt {
	p.expect(token.LPAREN, "'('")
	cond := p.expression()
	p.expect(token.RPAREN, "')'")
	then := p.statement()
	var els ast.Stmt
	if p.match(token.KW_ELSE) {
		els = p.statement()
	}
	return &ast.IfStmt{Base: astBase(pos), Cond: cond, Then: then, Else: els}
}

func (p *Parser) whileStmt(pos ast.Pos) ast.Stmt {
	p.expect(token.LPAREN, "'('")
	cond := p.expression()
	p.expect(token.RPAREN, "')'")
	body := p.statement()
	return &ast.WhileStmt{Base: astBase(pos), Cond: cond, Body: body}
}

func (p *Parser) doWhileStmt(pos ast.Pos) ast.Stmt {
	body := p.statement()
	p.expect(token.KW_WHILE, "'while'")
	p.expect(token.LPAREN, "'('")
	cond := p.expression()
	p.expect(token.RPAREN, "')'")
	p.expect(token.SEMI, "';'")
	return &ast.DoWhileStmt{Base: astBase(pos), Body: body, Cond: cond}
}

func (p *Parser) forStmt(pos ast.Pos) ast.Stmt {
	p.expect(token.LPAREN, "'('")
	var init ast.Stmt
	if !p.check(token.SEMI) {
		if p.startsDeclaration() {
			init = p.declarationStmt(p.pos())
		} else {
			e := p.expression()
			init = &ast.ExprStmt{X: e}
			p.expect(token.SEMI, "';'")
		}
	} else {
		p.advance()
	}
	var cond ast.Expr
	if !p.check(token.SEMI) {
		cond = p.expression()
	}
	p.expect(token.SEMI, "';'")
	var post ast.Expr
	if !p.check(token.RPAREN) {
		post = p.expression()
	}
	p.expect(token.RPAREN, "')'")
	body := p.statement()
	return &ast.ForStmt{Base: astBase(pos), Init: init, Cond: cond, Post: post, Body: body}
}

func (p *Parser) switchStmt(pos ast.Pos) ast.Stmt {
	p.expect(token.LPAREN, "'('")
	tag := p.expression()
	p.expect(token.RPAREN, "')'")
	p.expect(token.LBRACE, "'{'")
	sw := &ast.SwitchStmt{Base: astBase(pos), Tag: tag}
	for !p.check(token.RBRACE) && !p.isAtEnd() {
		var clause ast.CaseClause
		if p.match(token.KW_CASE) {
			clause.Value = p.assignment()
		} else if p.match(token.KW_DEFAULT) {
			clause.IsDefault = true
		} else {
			p.errorf("expected 'case' or 'default'")
			p.synchronize()
			continue
		}
		p.expect(token.COLON, "':'")
		for !p.check(token.KW_CASE) && !p.check(token.KW_DEFAULT) && !p.check(token.RBRACE) && !p.isAtEnd() {
			clause.Body = append(clause.Body, p.statement())
		}
		sw.Cases = append(sw.Cases, clause)
	}
	p.expect(token.RBRACE, "'}'")
	return sw
}

// ---- expressions (precedence climbing) ----

func (p *Parser) expression() ast.Expr {
	e := p.assignment()
	for p.match(token.COMMA) {
		pos := p.pos()
		rhs := p.assignment()
		e = &ast.Comma{Base: astBase(pos), Left: e, Right: rhs}
	}
	return e
}

func (p *Parser) assignment() ast.Expr {
	left := p.ternary()
	if op, ok := assignOpText[p.peekKind()]; ok {
		pos := p.pos()
		p.advance()
		right := p.assignment()
		return &ast.Assign{Base: astBase(pos), Op: op, Target: left, Value: right}
	}
	return left
}

func (p *Parser) ternary() ast.Expr {
	cond := p.binary(1)
	if p.match(token.QUESTION) {
		pos := p.pos()
		then := p.expression()
		p.expect(token.COLON, "':'")
		els := p.assignment()
		return &ast.Ternary{Base: astBase(pos), Cond: cond, Then: then, Else: els}
	}
	return cond
}

// binary implements precedence climbing over the table above, generalized
// from the teacher's parser.precedence-driven loop.
func (p *Parser) binary(minPrec int) ast.Expr {
	left := p.unary()
	for {
		prec, ok := precedence[p.peekKind()]
		if !ok || prec < minPrec {
			return left
		}
		opTok := p.advance()
		right := p.binary(prec + 1)
		left = &ast.Binary{Base: astBase(ast.Pos{File: opTok.File, Line: opTok.Line, Column: opTok.Column}), Op: binOpText[opTok.Kind], Left: left, Right: right}
	}
}

func (p *Parser) unary() ast.Expr {
	pos := p.pos()
	switch {
	case p.match(token.PLUS, token.MINUS, token.BANG, token.TILDE, token.STAR, token.AMP):
		op := p.previous().Lexeme
		operand := p.unary()
		return &ast.Unary{Base: astBase(pos), Op: op, Operand: operand}
	case p.match(token.PLUSPLUS, token.MINUSMINUS):
		op := p.previous().Lexeme
		operand := p.unary()
		return &ast.Unary{Base: astBase(pos), Op: op, Operand: operand}
	case p.match(token.KW_SIZEOF):
		return p.sizeofExpr(pos)
	case p.check(token.LPAREN) && p.looksLikeCast():
		p.advance()
		tn := *p.typeSpecifierList()
		_, tn = p.abstractDeclaratorSuffix(tn)
		p.expect(token.RPAREN, "')'")
		if p.check(token.LBRACE) {
			lst := p.initList()
			return lst
		}
		operand := p.unary()
		return &ast.Cast{Base: astBase(pos), Type: tn, Operand: operand}
	default:
		return p.postfix()
	}
}

// abstractDeclaratorSuffix parses the pointer/array/function suffix of an
// abstract declarator (a type name with no identifier), used by casts and
// sizeof(type).
func (p *Parser) abstractDeclaratorSuffix(t ast.TypeName) (string, ast.TypeName) {
	for p.match(token.STAR) {
		t.Pointers++
	}
	return "", p.declaratorSuffix(t)
}

// looksLikeCast performs bounded lookahead to distinguish `(Type)expr` from
// a parenthesized expression: true only if the token after '(' begins a
// type specifier.
func (p *Parser) looksLikeCast() bool {
	save := p.current
	defer func() { p.current = save }()
	p.advance() // '('
	return p.startsTypeSpecifier()
}

func (p *Parser) sizeofExpr(pos ast.Pos) ast.Expr {
	if p.check(token.LPAREN) {
		save := p.current
		p.advance()
		if p.startsTypeSpecifier() {
			tn := *p.typeSpecifierList()
			_, tn = p.abstractDeclaratorSuffix(tn)
			p.expect(token.RPAREN, "')'")
			return &ast.SizeofType{Base: astBase(pos), Type: tn}
		}
		p.current = save
	}
	return &ast.SizeofExpr{Base: astBase(pos), Operand: p.unary()}
}

// postfix folds call/subscript/member/post-inc-dec left-recursively, per
// spec.md §4.3.
func (p *Parser) postfix() ast.Expr {
	e := p.primary()
	for {
		pos := p.pos()
		switch {
		case p.match(token.LPAREN):
			var args []ast.Expr
			if !p.check(token.RPAREN) {
				args = append(args, p.assignment())
				for p.match(token.COMMA) {
					args = append(args, p.assignment())
				}
			}
			p.expect(token.RPAREN, "')'")
			e = &ast.Call{Base: astBase(pos), Callee: e, Args: args}
		case p.match(token.LBRACKET):
			idx := p.expression()
			p.expect(token.RBRACKET, "']'")
			e = &ast.Index{Base: astBase(pos), Array: e, Idx: idx}
		case p.match(token.DOT):
			name := p.expect(token.IDENT, "field name").Lexeme
			e = &ast.Member{Base: astBase(pos), Object: e, Field: name}
		case p.match(token.ARROW):
			name := p.expect(token.IDENT, "field name").Lexeme
			e = &ast.Member{Base: astBase(pos), Object: e, Field: name, Arrow: true}
		case p.match(token.PLUSPLUS):
			e = &ast.Unary{Base: astBase(pos), Op: "++", Operand: e, Postfix: true}
		case p.match(token.MINUSMINUS):
			e = &ast.Unary{Base: astBase(pos), Op: "--", Operand: e, Postfix: true}
		default:
			return e
		}
	}
}

func (p *Parser) primary() ast.Expr {
	pos := p.pos()
	switch {
	case p.match(token.INT_LIT, token.FLOAT_LIT):
		return &ast.Number{Base: astBase(pos), Text: p.previous().Lexeme}
	case p.match(token.IMAGINARY_LIT):
		txt := p.previous().Lexeme
		v, _ := strconv.ParseFloat(txt[:len(txt)-1], 64)
		return &ast.ComplexLit{Base: astBase(pos), Real: 0, Imag: v}
	case p.match(token.IDENT):
		return &ast.Ident{Base: astBase(pos), Name: p.previous().Lexeme}
	case p.match(token.STRING_LIT):
		return &ast.StringLit{Base: astBase(pos), Value: unescapeString(p.previous().Lexeme)}
	case p.match(token.WSTRING_LIT):
		return &ast.StringLit{Base: astBase(pos), Value: unescapeString(p.previous().Lexeme), Wide: true}
	case p.match(token.CHAR_LIT):
		return &ast.CharLit{Base: astBase(pos), Value: unescapeChar(p.previous().Lexeme)}
	case p.match(token.WCHAR_LIT):
		return &ast.CharLit{Base: astBase(pos), Value: unescapeChar(p.previous().Lexeme), Wide: true}
	case p.match(token.LPAREN):
		e := p.expression()
		p.expect(token.RPAREN, "')'")
		return e
	default:
		p.errorf("unexpected token %q in expression", p.peek().Lexeme)
		tok := p.advance()
		return &ast.Ident{Base: astBase(pos), Name: tok.Lexeme}
	}
}

// unescapeString strips the surrounding quotes and resolves backslash
// escapes in a string-literal lexeme. Malformed escapes were already
// diagnosed by the lexer; here we best-effort decode.
func unescapeString(lexeme string) []byte {
	if len(lexeme) < 2 {
		return nil
	}
	body := lexeme[1 : len(lexeme)-1]
	return decodeEscapes(body)
}

func unescapeChar(lexeme string) rune {
	if len(lexeme) < 2 {
		return 0
	}
	body := lexeme[1 : len(lexeme)-1]
	decoded := decodeEscapes(body)
	if len(decoded) == 0 {
		return 0
	}
	return rune(decoded[0])
}

func decodeEscapes(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			out = append(out, s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'v':
			out = append(out, '\v')
		case '\\':
			out = append(out, '\\')
		case '\'':
			out = append(out, '\'')
		case '"':
			out = append(out, '"')
		case 'x':
			j := i + 1
			n := 0
			for j < len(s) && isHex(s[j]) {
				n = n*16 + hexVal(s[j])
				j++
			}
			out = append(out, byte(n))
			i = j - 1
		default:
			if s[i] >= '0' && s[i] <= '7' {
				j := i
				n := 0
				for k := 0; k < 3 && j < len(s) && s[j] >= '0' && s[j] <= '7'; k++ {
					n = n*8 + int(s[j]-'0')
					j++
				}
				if n > 255 {
					n = 255
				}
				out = append(out, byte(n))
				i = j - 1
			} else {
				out = append(out, s[i])
			}
		}
	}
	return out
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}
