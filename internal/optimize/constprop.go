package optimize

import (
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/session"
)

// ConstantPropagate replaces a LOAD_LOCAL of a named slot with a direct
// CONST_INT/CONST_FLOAT when every reaching STORE_LOCAL to that name within
// the current straight-line run stored a known constant. The tracked binding
// is cleared at every LABEL (a jump may have skipped the store, so nothing
// can be assumed across a merge point) and for any name whose address was
// ever taken (LOAD_ADDR), since a STORE_DEREF through that address could
// silently change the slot's value.
func ConstantPropagate(fn *ir.Func, sess *session.Session) {
	addressTaken := make(map[string]bool)
	for _, instr := range fn.Instrs {
		if instr.Op == ir.LOAD_ADDR {
			addressTaken[instr.Name] = true
		}
	}

	known := make(map[string]ir.Instr)
	constOf := make(map[int]ir.Instr)
	for _, instr := range fn.Instrs {
		if instr.Op == ir.CONST_INT || instr.Op == ir.CONST_FLOAT {
			constOf[instr.Dest] = instr
		}
	}

	for i, instr := range fn.Instrs {
		switch instr.Op {
		case ir.LABEL:
			known = make(map[string]ir.Instr)
		case ir.STORE_LOCAL:
			if addressTaken[instr.Name] || instr.Volatile {
				delete(known, instr.Name)
				continue
			}
			if c, ok := constOf[instr.Src1]; ok {
				known[instr.Name] = c
			} else {
				delete(known, instr.Name)
			}
		case ir.LOAD_LOCAL:
			if addressTaken[instr.Name] || instr.Volatile {
				continue
			}
			if c, ok := known[instr.Name]; ok {
				rewritten := c
				rewritten.Dest = instr.Dest
				rewritten.Type = instr.Type
				fn.Instrs[i] = rewritten
				constOf[instr.Dest] = rewritten
			}
		}
	}
}
