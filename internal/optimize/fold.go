package optimize

import (
	"math"

	"github.com/splanck/vc/internal/ctype"
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/session"
)

// ConstantFold replaces an arithmetic/comparison instruction whose operands
// are both known CONST_INT/CONST_FLOAT producers with a single CONST_INT/
// CONST_FLOAT, under two's-complement wraparound for integers (C99's
// unsigned overflow semantics; signed overflow is undefined behavior, but
// folding reproduces what the target machine would do, matching GCC/Clang
// -O practice rather than refusing to fold).
func ConstantFold(fn *ir.Func, sess *session.Session) {
	known := make(map[int]ir.Instr)
	for i, instr := range fn.Instrs {
		switch instr.Op {
		case ir.CONST_INT, ir.CONST_FLOAT:
			known[instr.Dest] = instr
			continue
		}
		if folded, ok := tryFold(instr, known); ok {
			fn.Instrs[i] = folded
			known[folded.Dest] = folded
		}
	}
}

func tryFold(instr ir.Instr, known map[int]ir.Instr) (ir.Instr, bool) {
	l, lok := known[instr.Src1]
	r, rok := known[instr.Src2]

	switch instr.Op {
	case ir.NEG, ir.NOT:
		if !lok {
			return ir.Instr{}, false
		}
		if l.Op == ir.CONST_FLOAT && instr.Op == ir.NEG {
			return ir.Instr{Op: ir.CONST_FLOAT, Dest: instr.Dest, ImmFloat: -l.ImmFloat, Type: instr.Type}, true
		}
		if l.Op != ir.CONST_INT {
			return ir.Instr{}, false
		}
		v := l.Imm
		if instr.Op == ir.NEG {
			v = -v
		} else {
			v = ^v
		}
		return ir.Instr{Op: ir.CONST_INT, Dest: instr.Dest, Imm: maskInt(v, instr.Type), Type: instr.Type}, true
	}

	if !lok || !rok {
		return ir.Instr{}, false
	}

	if instr.Type != nil && instr.Type.IsFloating() && l.Op == ir.CONST_FLOAT && r.Op == ir.CONST_FLOAT {
		return foldFloat(instr, l.ImmFloat, r.ImmFloat)
	}
	if l.Op == ir.CONST_INT && r.Op == ir.CONST_INT {
		return foldInt(instr, l.Imm, r.Imm)
	}
	return ir.Instr{}, false
}

func foldFloat(instr ir.Instr, l, r float64) (ir.Instr, bool) {
	var v float64
	cmp := false
	var cmpV bool
	switch instr.Op {
	case ir.ADD:
		v = l + r
	case ir.SUB:
		v = l - r
	case ir.MUL:
		v = l * r
	case ir.DIV:
		v = l / r
	case ir.CMP_EQ:
		cmp, cmpV = true, l == r
	case ir.CMP_NE:
		cmp, cmpV = true, l != r
	case ir.CMP_LT:
		cmp, cmpV = true, l < r
	case ir.CMP_LE:
		cmp, cmpV = true, l <= r
	case ir.CMP_GT:
		cmp, cmpV = true, l > r
	case ir.CMP_GE:
		cmp, cmpV = true, l >= r
	default:
		return ir.Instr{}, false
	}
	if cmp {
		return ir.Instr{Op: ir.CONST_INT, Dest: instr.Dest, Imm: boolImm(cmpV), Type: ctype.TInt}, true
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ir.Instr{}, false
	}
	return ir.Instr{Op: ir.CONST_FLOAT, Dest: instr.Dest, ImmFloat: v, Type: instr.Type}, true
}

func foldInt(instr ir.Instr, l, r int64) (ir.Instr, bool) {
	unsigned := instr.Type != nil && instr.Type.IsUnsigned()
	var v int64
	cmp := false
	var cmpV bool
	switch instr.Op {
	case ir.ADD:
		v = l + r
	case ir.SUB:
		v = l - r
	case ir.MUL:
		v = l * r
	case ir.DIV:
		if r == 0 {
			return ir.Instr{}, false
		}
		if unsigned {
			v = int64(uint64(l) / uint64(r))
		} else {
			v = l / r
		}
	case ir.MOD:
		if r == 0 {
			return ir.Instr{}, false
		}
		if unsigned {
			v = int64(uint64(l) % uint64(r))
		} else {
			v = l % r
		}
	case ir.AND:
		v = l & r
	case ir.OR:
		v = l | r
	case ir.XOR:
		v = l ^ r
	case ir.SHL:
		v = l << uint(r&63)
	case ir.SHR:
		if unsigned {
			v = int64(uint64(l) >> uint(r&63))
		} else {
			v = l >> uint(r&63)
		}
	case ir.CMP_EQ:
		cmp, cmpV = true, l == r
	case ir.CMP_NE:
		cmp, cmpV = true, l != r
	case ir.CMP_LT:
		cmp, cmpV = true, intLess(l, r, unsigned)
	case ir.CMP_LE:
		cmp, cmpV = true, !intLess(r, l, unsigned)
	case ir.CMP_GT:
		cmp, cmpV = true, intLess(r, l, unsigned)
	case ir.CMP_GE:
		cmp, cmpV = true, !intLess(l, r, unsigned)
	default:
		return ir.Instr{}, false
	}
	if cmp {
		return ir.Instr{Op: ir.CONST_INT, Dest: instr.Dest, Imm: boolImm(cmpV), Type: ctype.TInt}, true
	}
	return ir.Instr{Op: ir.CONST_INT, Dest: instr.Dest, Imm: maskInt(v, instr.Type), Type: instr.Type}, true
}

func intLess(l, r int64, unsigned bool) bool {
	if unsigned {
		return uint64(l) < uint64(r)
	}
	return l < r
}

func boolImm(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// maskInt truncates v to t's bit width, reproducing the target's modular
// overflow for the type the folded constant will be stored as.
func maskInt(v int64, t *ctype.Type) int64 {
	if t == nil {
		return v
	}
	switch t.Size {
	case 1:
		if t.IsUnsigned() {
			return int64(uint8(v))
		}
		return int64(int8(v))
	case 2:
		if t.IsUnsigned() {
			return int64(uint16(v))
		}
		return int64(int16(v))
	case 4:
		if t.IsUnsigned() {
			return int64(uint32(v))
		}
		return int64(int32(v))
	default:
		return v
	}
}
