package sema

import (
	"github.com/splanck/vc/internal/ast"
	"github.com/splanck/vc/internal/ctype"
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/symtab"
)

// Control-flow statements lower to named labels resolved once per function
// by Func.ResolveLabels, the same jump-then-patch idea as the teacher's
// bytecode offset patching, adapted to a linear IR addressed by label name
// instead of byte offset.

func (a *Analyzer) VisitExprStmt(n *ast.ExprStmt) interface{} {
	if n.X != nil {
		a.lowerExpr(n.X)
	}
	return nil
}

func (a *Analyzer) VisitReturnStmt(n *ast.ReturnStmt) interface{} {
	if n.Value == nil {
		a.fn.Emit(ir.Instr{Op: ir.RETURN_VOID})
		return nil
	}
	v := a.lowerExpr(n.Value)
	id := a.implicitCast(v, a.retType)
	if a.retType != nil && a.retType.IsAggregate() {
		a.fn.Emit(ir.Instr{Op: ir.RETURN_AGG, Src1: id, Type: a.retType})
	} else {
		a.fn.Emit(ir.Instr{Op: ir.RETURN, Src1: id, Type: a.retType})
	}
	return nil
}

func (a *Analyzer) VisitVarDecl(n *ast.VarDecl) interface{} {
	storage := storageOf(n.Storage)
	for i, name := range n.Names {
		t := a.resolveType(n.Types[i])
		if storage == symtab.Static {
			// Block-scope static: one persistent storage slot per
			// declaration site, named uniquely so two statics named `x`
			// in different functions never collide.
			irName := a.freshLocalName(a.fn.Name + "." + name)
			sym := &symtab.Symbol{Name: name, IRName: irName, Kind: symtab.KindVar, Type: t,
				Storage: symtab.Static, Const: n.Const, Volatile: n.Volatile, IsGlobal: true}
			a.vars.Declare(sym)
			g := ir.Global{Name: irName, Type: t, Static: true}
			if n.Init[i] == nil && n.InitLst[i] == nil {
				g.IsBSS = true
			}
			a.prog.Globals = append(a.prog.Globals, g)
			if n.Init[i] != nil {
				v := a.lowerExpr(n.Init[i])
				id := a.implicitCast(v, t)
				a.fn.Emit(ir.Instr{Op: ir.STORE_GLOBAL, Src1: id, Name: irName, Type: t})
			}
			continue
		}

		irName := a.freshLocalName(name)
		sym := &symtab.Symbol{Name: name, IRName: irName, Kind: symtab.KindVar, Type: t,
			Storage: storage, Const: n.Const, Volatile: n.Volatile}
		a.vars.Declare(sym)
		a.fn.NumLocal++

		switch {
		case n.InitLst[i] != nil:
			a.lowerAggregateInit(irName, t, n.InitLst[i])
		case n.Init[i] != nil:
			v := a.lowerExpr(n.Init[i])
			id := a.implicitCast(v, t)
			a.fn.Emit(ir.Instr{Op: ir.STORE_LOCAL, Src1: id, Name: irName, Type: t, Volatile: n.Volatile})
		}
	}
	return nil
}

// lowerAggregateInit expands a brace initializer list over an array or
// struct local by storing each element/field through its own address, since
// the IR has no aggregate-literal instruction.
func (a *Analyzer) lowerAggregateInit(irName string, t *ctype.Type, lst *ast.InitList) {
	addr := a.fn.NewValue()
	a.fn.Emit(ir.Instr{Op: ir.LOAD_ADDR, Dest: addr, Name: irName, Type: ctype.NewPtr(t, a.wordSize())})
	switch t.Kind {
	case ctype.Array:
		for i, elemExpr := range lst.Elems {
			off := int64(i) * t.Elem.Size
			eaddr := a.fn.NewValue()
			a.fn.Emit(ir.Instr{Op: ir.FIELD_ADDR, Dest: eaddr, Src1: addr, Imm: off, Type: ctype.NewPtr(t.Elem, a.wordSize())})
			a.storeInitElem(eaddr, t.Elem, elemExpr)
		}
	case ctype.Struct, ctype.Union:
		for i, elemExpr := range lst.Elems {
			if i >= len(t.Fields) {
				break
			}
			f := t.Fields[i]
			eaddr := a.fn.NewValue()
			a.fn.Emit(ir.Instr{Op: ir.FIELD_ADDR, Dest: eaddr, Src1: addr, Imm: f.Offset, Type: ctype.NewPtr(f.Type, a.wordSize())})
			a.storeInitElem(eaddr, f.Type, elemExpr)
		}
	}
}

// storeInitElem stores one initializer element (scalar or nested brace
// list) through addr, an already-computed element/field address.
func (a *Analyzer) storeInitElem(addr int, elemType *ctype.Type, e ast.Expr) {
	if nested, ok := e.(*ast.InitList); ok {
		switch elemType.Kind {
		case ctype.Array:
			for i, sub := range nested.Elems {
				off := int64(i) * elemType.Elem.Size
				eaddr := a.fn.NewValue()
				a.fn.Emit(ir.Instr{Op: ir.FIELD_ADDR, Dest: eaddr, Src1: addr, Imm: off, Type: ctype.NewPtr(elemType.Elem, a.wordSize())})
				a.storeInitElem(eaddr, elemType.Elem, sub)
			}
		case ctype.Struct, ctype.Union:
			for i, sub := range nested.Elems {
				if i >= len(elemType.Fields) {
					break
				}
				f := elemType.Fields[i]
				eaddr := a.fn.NewValue()
				a.fn.Emit(ir.Instr{Op: ir.FIELD_ADDR, Dest: eaddr, Src1: addr, Imm: f.Offset, Type: ctype.NewPtr(f.Type, a.wordSize())})
				a.storeInitElem(eaddr, f.Type, sub)
			}
		}
		return
	}
	v := a.lowerExpr(e)
	id := a.implicitCast(v, elemType)
	a.fn.Emit(ir.Instr{Op: ir.STORE_DEREF, Src1: addr, Src2: id, Type: elemType})
}

func (a *Analyzer) VisitIfStmt(n *ast.IfStmt) interface{} {
	cond := a.lowerExpr(n.Cond)
	elseLabel := a.b.FreshLabel("if.else")
	endLabel := elseLabel
	a.fn.Emit(ir.Instr{Op: ir.JUMP_IF_ZERO, Src1: cond.id, Name: elseLabel})
	a.lowerStmt(n.Then)
	if n.Else != nil {
		endLabel = a.b.FreshLabel("if.end")
		a.fn.Emit(ir.Instr{Op: ir.JUMP, Name: endLabel})
		a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: elseLabel})
		a.lowerStmt(n.Else)
		a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: endLabel})
	} else {
		a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: elseLabel})
	}
	return nil
}

func (a *Analyzer) VisitWhileStmt(n *ast.WhileStmt) interface{} {
	top := a.b.FreshLabel("while.top")
	end := a.b.FreshLabel("while.end")
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: top})
	cond := a.lowerExpr(n.Cond)
	a.fn.Emit(ir.Instr{Op: ir.JUMP_IF_ZERO, Src1: cond.id, Name: end})
	a.b.PushLoop(top, end)
	a.lowerStmt(n.Body)
	a.b.PopLoop()
	a.fn.Emit(ir.Instr{Op: ir.JUMP, Name: top})
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: end})
	return nil
}

func (a *Analyzer) VisitDoWhileStmt(n *ast.DoWhileStmt) interface{} {
	top := a.b.FreshLabel("do.top")
	contLabel := a.b.FreshLabel("do.cont")
	end := a.b.FreshLabel("do.end")
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: top})
	a.b.PushLoop(contLabel, end)
	a.lowerStmt(n.Body)
	a.b.PopLoop()
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: contLabel})
	cond := a.lowerExpr(n.Cond)
	a.fn.Emit(ir.Instr{Op: ir.JUMP_IF_NOT_ZERO, Src1: cond.id, Name: top})
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: end})
	return nil
}

func (a *Analyzer) VisitForStmt(n *ast.ForStmt) interface{} {
	a.vars.EnterScope()
	if n.Init != nil {
		a.lowerStmt(n.Init)
	}
	top := a.b.FreshLabel("for.top")
	contLabel := a.b.FreshLabel("for.cont")
	end := a.b.FreshLabel("for.end")
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: top})
	if n.Cond != nil {
		cond := a.lowerExpr(n.Cond)
		a.fn.Emit(ir.Instr{Op: ir.JUMP_IF_ZERO, Src1: cond.id, Name: end})
	}
	a.b.PushLoop(contLabel, end)
	a.lowerStmt(n.Body)
	a.b.PopLoop()
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: contLabel})
	if n.Post != nil {
		a.lowerExpr(n.Post)
	}
	a.fn.Emit(ir.Instr{Op: ir.JUMP, Name: top})
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: end})
	a.vars.ExitScope()
	return nil
}

func (a *Analyzer) VisitSwitchStmt(n *ast.SwitchStmt) interface{} {
	tag := a.lowerExpr(n.Tag)
	end := a.b.FreshLabel("switch.end")

	var labels []caseLabel
	for _, c := range n.Cases {
		label := a.b.FreshLabel("switch.case")
		if c.IsDefault {
			labels = append(labels, caseLabel{isDefault: true, label: label})
			continue
		}
		v, _ := a.constIntEval(c.Value)
		labels = append(labels, caseLabel{value: v, label: label})
	}

	// Dispatch: a chain of compares, each branching to its case body; an
	// unmatched value falls through to the default label (or end, if none).
	defaultTarget := end
	for _, l := range labels {
		if l.isDefault {
			defaultTarget = l.label
			break
		}
	}
	for i, l := range labels {
		if l.isDefault {
			continue
		}
		cmpVal := a.fn.NewValue()
		a.fn.Emit(ir.Instr{Op: ir.CONST_INT, Dest: cmpVal, Imm: l.value, Type: tag.typ})
		eq := a.fn.NewValue()
		a.fn.Emit(ir.Instr{Op: ir.CMP_EQ, Dest: eq, Src1: tag.id, Src2: cmpVal, Type: ctype.TInt})
		a.fn.Emit(ir.Instr{Op: ir.JUMP_IF_NOT_ZERO, Src1: eq, Name: labels[i].label})
	}
	a.fn.Emit(ir.Instr{Op: ir.JUMP, Name: defaultTarget})

	a.switchStack = append(a.switchStack, switchCtx{tagType: tag.typ, cases: labels})
	a.b.PushLoop("", end) // switch only establishes a break target, no continue
	for i, c := range n.Cases {
		a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: labels[i].label})
		for _, s := range c.Body {
			a.lowerStmt(s)
		}
	}
	a.b.PopLoop()
	a.switchStack = a.switchStack[:len(a.switchStack)-1]
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: end})
	return nil
}

func (a *Analyzer) VisitBreakStmt(n *ast.BreakStmt) interface{} {
	if target, ok := a.b.BreakTarget(); ok {
		a.fn.Emit(ir.Instr{Op: ir.JUMP, Name: target})
	} else {
		a.errorf(n.Pos, "'break' statement not in loop or switch")
	}
	return nil
}

func (a *Analyzer) VisitContinueStmt(n *ast.ContinueStmt) interface{} {
	if target, ok := a.b.ContinueTarget(); ok && target != "" {
		a.fn.Emit(ir.Instr{Op: ir.JUMP, Name: target})
	} else {
		a.errorf(n.Pos, "'continue' statement not in loop")
	}
	return nil
}

func (a *Analyzer) VisitLabelStmt(n *ast.LabelStmt) interface{} {
	a.fn.Emit(ir.Instr{Op: ir.LABEL, Name: "user." + n.Name})
	a.lowerStmt(n.Stmt)
	return nil
}

func (a *Analyzer) VisitGotoStmt(n *ast.GotoStmt) interface{} {
	a.fn.Emit(ir.Instr{Op: ir.JUMP, Name: "user." + n.Label})
	return nil
}

func (a *Analyzer) VisitTypedefStmt(n *ast.TypedefStmt) interface{} {
	t := a.resolveType(n.Type)
	a.vars.Declare(&symtab.Symbol{Name: n.Name, Kind: symtab.KindTypedef, Type: t, IsTypedef: true})
	return nil
}

func (a *Analyzer) VisitEnumDeclStmt(n *ast.EnumDeclStmt) interface{} {
	a.lowerEnumMembers(n.Members)
	return nil
}

func (a *Analyzer) VisitBlockStmt(n *ast.BlockStmt) interface{} {
	a.vars.EnterScope()
	for _, s := range n.Stmts {
		a.lowerStmt(s)
	}
	a.vars.ExitScope()
	return nil
}

func (a *Analyzer) VisitStaticAssertStmt(n *ast.StaticAssertStmt) interface{} {
	if v, ok := a.constIntEval(n.Cond); ok && v == 0 {
		a.errorf(n.Pos, "static assertion failed: %s", n.Message)
	}
	return nil
}
