package sema

import (
	"strconv"
	"strings"

	"github.com/splanck/vc/internal/ast"
	"github.com/splanck/vc/internal/ctype"
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/symtab"
)

// Analyzer implements ast.ExprVisitor; every method lowers its node and
// returns a val boxed in interface{} (see lowerExpr's type assertion).

func (a *Analyzer) VisitNumber(n *ast.Number) interface{} {
	text := n.Text
	if strings.ContainsAny(text, ".eE") && !strings.HasPrefix(text, "0x") && !strings.HasPrefix(text, "0X") {
		f, _ := strconv.ParseFloat(strings.TrimRight(text, "fFlL"), 64)
		t := ctype.TDouble
		if strings.ContainsAny(text, "fF") {
			t = ctype.TFloat
		}
		id := a.fn.NewValue()
		a.fn.Emit(ir.Instr{Op: ir.CONST_FLOAT, Dest: id, ImmFloat: f, Type: t})
		return val{id: id, typ: t}
	}
	iv, _ := parseIntLiteral(text)
	t := ctype.TInt
	lower := strings.ToLower(text)
	if strings.Contains(lower, "ull") {
		t = ctype.TULLong
	} else if strings.Contains(lower, "ll") {
		t = ctype.TLLong
	} else if strings.Contains(lower, "ul") || strings.Contains(lower, "lu") {
		t = ctype.TULong
	} else if strings.Contains(lower, "l") {
		t = ctype.TLong
	} else if strings.Contains(lower, "u") {
		t = ctype.TUInt
	}
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CONST_INT, Dest: id, Imm: iv, Type: t})
	return val{id: id, typ: t}
}

func (a *Analyzer) VisitIdent(n *ast.Ident) interface{} {
	sym, ok := a.vars.Lookup(n.Name)
	if !ok {
		a.errorf(n.Pos, "use of undeclared identifier '%s'", n.Name)
		id := a.fn.NewValue()
		a.fn.Emit(ir.Instr{Op: ir.CONST_INT, Dest: id, Imm: 0, Type: ctype.TInt})
		return val{id: id, typ: ctype.TInt}
	}
	if sym.Kind == symtab.KindFunc {
		return val{id: 0, typ: ctype.NewFunc(sym.RetType, sym.ParamTypes, sym.Variadic), lvalue: false}
	}
	id := a.fn.NewValue()
	if a.isGlobalSymbol(sym) {
		a.fn.Emit(ir.Instr{Op: ir.LOAD_GLOBAL, Dest: id, Name: sym.IRName, Type: sym.Type, Volatile: sym.Volatile})
	} else {
		a.fn.Emit(ir.Instr{Op: ir.LOAD_LOCAL, Dest: id, Name: sym.IRName, Type: sym.Type, Volatile: sym.Volatile})
	}
	return val{id: id, typ: sym.Type, lvalue: true}
}

func (a *Analyzer) VisitStringLit(n *ast.StringLit) interface{} {
	id := a.fn.NewValue()
	t := ctype.NewPtr(ctype.TChar, a.wordSize())
	a.fn.Emit(ir.Instr{Op: ir.CONST_STRING, Dest: id, Data: n.Value, Type: t})
	return val{id: id, typ: t}
}

func (a *Analyzer) VisitCharLit(n *ast.CharLit) interface{} {
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CONST_INT, Dest: id, Imm: int64(n.Value), Type: ctype.TChar})
	return val{id: id, typ: ctype.TChar}
}

func (a *Analyzer) VisitComplexLit(n *ast.ComplexLit) interface{} {
	re := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CONST_FLOAT, Dest: re, ImmFloat: n.Real, Type: ctype.TDouble})
	im := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CONST_FLOAT, Dest: im, ImmFloat: n.Imag, Type: ctype.TDouble})
	t := &ctype.Type{Kind: ctype.DoubleComplex, Size: 16, Align: 8}
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.COMPLEX_MAKE, Dest: id, Src1: re, Src2: im, Type: t})
	return val{id: id, typ: t}
}

func (a *Analyzer) VisitUnary(n *ast.Unary) interface{} {
	switch n.Op {
	case "&":
		return a.lowerAddrOf(n.Operand)
	case "*":
		inner := a.lowerExpr(n.Operand)
		elem := ctype.TInt
		if inner.typ != nil && inner.typ.Elem != nil {
			elem = inner.typ.Elem
		}
		id := a.fn.NewValue()
		a.fn.Emit(ir.Instr{Op: ir.LOAD_DEREF, Dest: id, Src1: inner.id, Type: elem})
		return val{id: id, typ: elem, lvalue: true}
	case "++", "--":
		return a.lowerIncDec(n.Operand, n.Op == "++", n.Postfix)
	case "-", "+", "~", "!":
		inner := a.lowerExpr(n.Operand)
		op := ir.NEG
		switch n.Op {
		case "~":
			op = ir.NOT
		case "!":
			id := a.fn.NewValue()
			zero := a.fn.NewValue()
			a.fn.Emit(ir.Instr{Op: ir.CONST_INT, Dest: zero, Imm: 0, Type: inner.typ})
			a.fn.Emit(ir.Instr{Op: ir.CMP_EQ, Dest: id, Src1: inner.id, Src2: zero, Type: ctype.TInt})
			return val{id: id, typ: ctype.TInt}
		case "+":
			return val{id: inner.id, typ: inner.typ}
		}
		id := a.fn.NewValue()
		a.fn.Emit(ir.Instr{Op: op, Dest: id, Src1: inner.id, Type: inner.typ})
		return val{id: id, typ: inner.typ}
	}
	return val{}
}

func (a *Analyzer) lowerAddrOf(e ast.Expr) val {
	switch n := e.(type) {
	case *ast.Ident:
		sym, ok := a.vars.Lookup(n.Name)
		if !ok {
			return val{}
		}
		id := a.fn.NewValue()
		a.fn.Emit(ir.Instr{Op: ir.LOAD_ADDR, Dest: id, Name: sym.IRName, Type: ctype.NewPtr(sym.Type, a.wordSize())})
		return val{id: id, typ: ctype.NewPtr(sym.Type, a.wordSize())}
	case *ast.Index:
		return a.lowerIndexAddr(n)
	case *ast.Member:
		return a.lowerMemberAddr(n)
	case *ast.Unary:
		if n.Op == "*" {
			return a.lowerExpr(n.Operand)
		}
	}
	inner := a.lowerExpr(e)
	return val{id: inner.id, typ: ctype.NewPtr(inner.typ, a.wordSize())}
}

func (a *Analyzer) lowerIncDec(target ast.Expr, inc, postfix bool) val {
	cur := a.lowerExpr(target)
	one := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CONST_INT, Dest: one, Imm: 1, Type: cur.typ})
	op := ir.ADD
	if !inc {
		op = ir.SUB
	}
	updated := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: op, Dest: updated, Src1: cur.id, Src2: one, Type: cur.typ})
	a.storeTo(target, updated, cur.typ)
	if postfix {
		return val{id: cur.id, typ: cur.typ}
	}
	return val{id: updated, typ: cur.typ}
}

func (a *Analyzer) VisitBinary(n *ast.Binary) interface{} {
	if n.Op == "&&" || n.Op == "||" {
		return a.lowerShortCircuit(n)
	}
	l := a.lowerExpr(n.Left)
	r := a.lowerExpr(n.Right)
	resultType := ctype.TInt
	if l.typ != nil && r.typ != nil && l.typ.IsArithmetic() && r.typ.IsArithmetic() {
		resultType = ctype.UsualArithmeticConversion(l.typ, r.typ)
	} else if l.typ != nil && l.typ.Kind == ctype.Ptr {
		resultType = l.typ
	}
	lc := a.implicitCast(l, resultType)
	rc := a.implicitCast(r, resultType)

	var op ir.Op
	cmp := false
	switch n.Op {
	case "+":
		op = ir.ADD
	case "-":
		op = ir.SUB
	case "*":
		op = ir.MUL
	case "/":
		op = ir.DIV
	case "%":
		op = ir.MOD
	case "&":
		op = ir.AND
	case "|":
		op = ir.OR
	case "^":
		op = ir.XOR
	case "<<":
		op = ir.SHL
	case ">>":
		op = ir.SHR
	case "==":
		op, cmp = ir.CMP_EQ, true
	case "!=":
		op, cmp = ir.CMP_NE, true
	case "<":
		op, cmp = ir.CMP_LT, true
	case "<=":
		op, cmp = ir.CMP_LE, true
	case ">":
		op, cmp = ir.CMP_GT, true
	case ">=":
		op, cmp = ir.CMP_GE, true
	}
	id := a.fn.NewValue()
	outType := resultType
	if cmp {
		outType = ctype.TInt
	}
	a.fn.Emit(ir.Instr{Op: op, Dest: id, Src1: lc, Src2: rc, Type: resultType})
	return val{id: id, typ: outType}
}

// lowerShortCircuit implements && and || via the jump-patch idiom: evaluate
// the left side, branch around the right side when it can't change the
// result, otherwise evaluate the right side and converge on a shared label.
func (a *Analyzer) lowerShortCircuit(n *ast.Binary) interface{} {
	l := a.lowerExpr(n.Left)
	resultSlot := a.freshLocalName("sc")
	a.fn.Emit(ir.Instr{Op: ir.STORE_LOCAL, Src1: l.id, Name: resultSlot, Type: ctype.TInt})
	endLabel := a.b.FreshLabel("sc.end")
	if n.Op == "&&" {
		a.fn.Emit(ir.Instr{Op: ir.JUMP_IF_ZERO, Src1: l.id, Name: endLabel})
	} else {
		a.fn.Emit(ir.Instr{Op: ir.JUMP_IF_NOT_ZERO, Src1: l.id, Name: endLabel})
	}
	r := a.lowerExpr(n.Right)
	zero := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CONST_INT, Dest: zero, Imm: 0, Type: ctype.TInt})
	rb := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CMP_NE, Dest: rb, Src1: r.id, Src2: zero, Type: ctype.TInt})
	a.fn.Emit(ir.Instr{Op: ir.STORE_LOCAL, Src1: rb, Name: resultSlot, Type: ctype.TInt})
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: endLabel})
	out := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.LOAD_LOCAL, Dest: out, Name: resultSlot, Type: ctype.TInt})
	return val{id: out, typ: ctype.TInt}
}

func (a *Analyzer) VisitTernary(n *ast.Ternary) interface{} {
	cond := a.lowerExpr(n.Cond)
	elseLabel := a.b.FreshLabel("tern.else")
	endLabel := a.b.FreshLabel("tern.end")
	resultSlot := a.freshLocalName("tern")
	a.fn.Emit(ir.Instr{Op: ir.JUMP_IF_ZERO, Src1: cond.id, Name: elseLabel})
	then := a.lowerExpr(n.Then)
	a.fn.Emit(ir.Instr{Op: ir.STORE_LOCAL, Src1: then.id, Name: resultSlot, Type: then.typ})
	a.fn.Emit(ir.Instr{Op: ir.JUMP, Name: endLabel})
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: elseLabel})
	els := a.lowerExpr(n.Else)
	a.fn.Emit(ir.Instr{Op: ir.STORE_LOCAL, Src1: els.id, Name: resultSlot, Type: els.typ})
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: endLabel})
	out := a.fn.NewValue()
	resultType := then.typ
	if resultType == nil {
		resultType = els.typ
	}
	a.fn.Emit(ir.Instr{Op: ir.LOAD_LOCAL, Dest: out, Name: resultSlot, Type: resultType})
	return val{id: out, typ: resultType}
}

func (a *Analyzer) VisitAssign(n *ast.Assign) interface{} {
	if n.Op == "=" {
		rhs := a.lowerExpr(n.Value)
		target := a.typeOf(n.Target)
		v := a.implicitCast(rhs, target)
		a.storeTo(n.Target, v, target)
		return val{id: v, typ: target}
	}
	// compound assignment: target op= value, desugared to target = target op value
	binOp := strings.TrimSuffix(n.Op, "=")
	cur := a.lowerExpr(n.Target)
	rhs := a.lowerExpr(n.Value)
	resultType := cur.typ
	if cur.typ != nil && rhs.typ != nil && cur.typ.IsArithmetic() && rhs.typ.IsArithmetic() {
		resultType = ctype.UsualArithmeticConversion(cur.typ, rhs.typ)
	}
	lc := a.implicitCast(cur, resultType)
	rc := a.implicitCast(rhs, resultType)
	op := binOpFor(binOp)
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: op, Dest: id, Src1: lc, Src2: rc, Type: resultType})
	back := a.implicitCastID(id, resultType, cur.typ)
	a.storeTo(n.Target, back, cur.typ)
	return val{id: back, typ: cur.typ}
}

func binOpFor(s string) ir.Op {
	switch s {
	case "+":
		return ir.ADD
	case "-":
		return ir.SUB
	case "*":
		return ir.MUL
	case "/":
		return ir.DIV
	case "%":
		return ir.MOD
	case "&":
		return ir.AND
	case "|":
		return ir.OR
	case "^":
		return ir.XOR
	case "<<":
		return ir.SHL
	case ">>":
		return ir.SHR
	}
	return ir.NOP
}

// isGlobalSymbol reports whether sym is backed by global (file-scope or
// block-static) storage rather than a stack slot.
func (a *Analyzer) isGlobalSymbol(sym *symtab.Symbol) bool {
	return sym.IsGlobal || sym.Storage == symtab.Static || sym.Storage == symtab.Extern
}

// storeTo writes value id (already of type t) into target, which must be an
// lvalue expression (identifier, dereference, index, or member access).
func (a *Analyzer) storeTo(target ast.Expr, id int, t *ctype.Type) {
	switch n := target.(type) {
	case *ast.Ident:
		sym, ok := a.vars.Lookup(n.Name)
		if !ok {
			return
		}
		if a.isGlobalSymbol(sym) {
			a.fn.Emit(ir.Instr{Op: ir.STORE_GLOBAL, Src1: id, Name: sym.IRName, Type: t, Volatile: sym.Volatile})
		} else {
			a.fn.Emit(ir.Instr{Op: ir.STORE_LOCAL, Src1: id, Name: sym.IRName, Type: t, Volatile: sym.Volatile})
		}
	case *ast.Unary:
		if n.Op == "*" {
			addr := a.lowerExpr(n.Operand)
			a.fn.Emit(ir.Instr{Op: ir.STORE_DEREF, Src1: addr.id, Src2: id, Type: t})
		}
	case *ast.Index:
		addr := a.lowerIndexAddr(n)
		a.fn.Emit(ir.Instr{Op: ir.STORE_DEREF, Src1: addr.id, Src2: id, Type: t})
	case *ast.Member:
		addr := a.lowerMemberAddr(n)
		a.fn.Emit(ir.Instr{Op: ir.STORE_DEREF, Src1: addr.id, Src2: id, Type: t})
	}
}

func (a *Analyzer) lowerIndexAddr(n *ast.Index) val {
	base := a.lowerExpr(n.Array)
	idx := a.lowerExpr(n.Idx)
	elem := ctype.TInt
	if base.typ != nil && base.typ.Elem != nil {
		elem = base.typ.Elem
	}
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.INDEX_ADDR, Dest: id, Src1: base.id, Src2: idx.id, Type: ctype.NewPtr(elem, a.wordSize()), Imm: elem.Size})
	return val{id: id, typ: ctype.NewPtr(elem, a.wordSize())}
}

func (a *Analyzer) VisitIndex(n *ast.Index) interface{} {
	addr := a.lowerIndexAddr(n)
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.LOAD_DEREF, Dest: id, Src1: addr.id, Type: addr.typ.Elem})
	return val{id: id, typ: addr.typ.Elem, lvalue: true}
}

func (a *Analyzer) lowerMemberAddr(n *ast.Member) val {
	var objType *ctype.Type
	var baseID int
	if n.Arrow {
		base := a.lowerExpr(n.Object)
		baseID = base.id
		objType = base.typ
		if objType != nil && objType.Elem != nil {
			objType = objType.Elem
		}
	} else {
		addr := a.lowerAddrOf(n.Object)
		baseID = addr.id
		if addr.typ != nil {
			objType = addr.typ.Elem
		}
	}
	var field ctype.Field
	if objType != nil {
		for _, f := range objType.Fields {
			if f.Name == n.Field {
				field = f
				break
			}
		}
	}
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.FIELD_ADDR, Dest: id, Src1: baseID, Imm: field.Offset, Type: ctype.NewPtr(field.Type, a.wordSize())})
	return val{id: id, typ: ctype.NewPtr(field.Type, a.wordSize())}
}

func (a *Analyzer) VisitMember(n *ast.Member) interface{} {
	addr := a.lowerMemberAddr(n)
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.LOAD_DEREF, Dest: id, Src1: addr.id, Type: addr.typ.Elem})
	return val{id: id, typ: addr.typ.Elem, lvalue: true}
}

func (a *Analyzer) VisitSizeofExpr(n *ast.SizeofExpr) interface{} {
	t := a.typeOf(n.Operand)
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CONST_INT, Dest: id, Imm: t.Size, Type: ctype.TULong})
	return val{id: id, typ: ctype.TULong}
}

func (a *Analyzer) VisitSizeofType(n *ast.SizeofType) interface{} {
	t := a.resolveType(n.Type)
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CONST_INT, Dest: id, Imm: t.Size, Type: ctype.TULong})
	return val{id: id, typ: ctype.TULong}
}

func (a *Analyzer) VisitCall(n *ast.Call) interface{} {
	name := ""
	var retType *ctype.Type = ctype.TInt
	if ident, ok := n.Callee.(*ast.Ident); ok {
		name = ident.Name
		if sym, ok := a.vars.Lookup(name); ok && sym.Kind == symtab.KindFunc {
			retType = sym.RetType
		}
	}
	var args []int
	for _, argExpr := range n.Args {
		av := a.lowerExpr(argExpr)
		args = append(args, av.id)
	}
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CALL, Dest: id, Name: name, Args: args, Type: retType})
	return val{id: id, typ: retType}
}

func (a *Analyzer) VisitCast(n *ast.Cast) interface{} {
	inner := a.lowerExpr(n.Operand)
	target := a.resolveType(n.Type)
	id := a.implicitCastForce(inner, target)
	return val{id: id, typ: target}
}

func (a *Analyzer) VisitComma(n *ast.Comma) interface{} {
	a.lowerExpr(n.Left)
	return a.lowerExpr(n.Right)
}

func (a *Analyzer) VisitInitList(n *ast.InitList) interface{} {
	// An InitList used in expression position (a GNU compound literal) has
	// no single scalar value; sema only lowers it for its side effects
	// (array/aggregate initializers are expanded at the VarDecl site, see
	// stmt.go's lowerAggregateInit), so it resolves to nothing.
	for _, e := range n.Elems {
		a.lowerExpr(e)
	}
	return val{}
}

// implicitCast casts v to target if types differ, returning v's own id
// when no conversion is needed.
func (a *Analyzer) implicitCast(v val, target *ctype.Type) int {
	if target == nil || v.typ == nil || ctype.Equal(v.typ, target) {
		return v.id
	}
	return a.implicitCastForce(v, target)
}

func (a *Analyzer) implicitCastForce(v val, target *ctype.Type) int {
	id := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CAST, Dest: id, Src1: v.id, Type: target})
	return id
}

func (a *Analyzer) implicitCastID(id int, from, to *ctype.Type) int {
	if from == nil || to == nil || ctype.Equal(from, to) {
		return id
	}
	out := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.CAST, Dest: out, Src1: id, Type: to})
	return out
}
