package optimize

import (
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/session"
)

// EliminateUnreachable drops instructions that follow an unconditional
// JUMP/RETURN/RETURN_AGG/RETURN_VOID up to the next LABEL, since nothing can
// reach them without falling through (and a fallthrough from an
// unconditional transfer never happens by construction).
func EliminateUnreachable(fn *ir.Func, sess *session.Session) {
	var out []ir.Instr
	dead := false
	for _, instr := range fn.Instrs {
		if instr.Op == ir.LABEL {
			dead = false
		}
		if dead {
			continue
		}
		out = append(out, instr)
		switch instr.Op {
		case ir.JUMP, ir.RETURN, ir.RETURN_AGG, ir.RETURN_VOID:
			dead = true
		}
	}
	fn.Instrs = out
}
