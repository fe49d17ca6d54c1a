package optimize

import (
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/session"
)

// hasSideEffect reports whether instr must run regardless of whether its
// Dest value is later used.
func hasSideEffect(instr ir.Instr) bool {
	if instr.Volatile {
		return true
	}
	switch instr.Op {
	case ir.CALL, ir.STORE_LOCAL, ir.STORE_GLOBAL, ir.STORE_DEREF, ir.COPY_AGG,
		ir.LABEL, ir.JUMP, ir.JUMP_IF_ZERO, ir.JUMP_IF_NOT_ZERO,
		ir.RETURN, ir.RETURN_AGG, ir.RETURN_VOID:
		return true
	}
	return false
}

// EliminateDeadCode drops an instruction whose Dest value id is never
// consumed and which has no side effect of its own. Because every value id
// is produced before it's used in this linear arena (no back-references),
// one backward pass suffices to compute liveness: walk from the end,
// collecting which ids are read, and keep only instructions that are
// essential or whose Dest is already known to be read by something kept.
func EliminateDeadCode(fn *ir.Func, sess *session.Session) {
	used := make(map[int]bool)
	keep := make([]bool, len(fn.Instrs))

	for i := len(fn.Instrs) - 1; i >= 0; i-- {
		instr := fn.Instrs[i]
		live := hasSideEffect(instr) || (instr.Dest != 0 && used[instr.Dest])
		if !live {
			continue
		}
		keep[i] = true
		if instr.Src1 != 0 {
			used[instr.Src1] = true
		}
		if instr.Src2 != 0 {
			used[instr.Src2] = true
		}
		for _, a := range instr.Args {
			used[a] = true
		}
	}

	out := fn.Instrs[:0]
	for i, instr := range fn.Instrs {
		if keep[i] {
			out = append(out, instr)
		}
	}
	fn.Instrs = out
}
