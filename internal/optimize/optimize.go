// Package optimize implements vc's fixed-order IR optimization pipeline.
// Per function, Program first inlines calls to small leaf functions, then
// runs constant folding, constant propagation, a second constant-folding
// round, unreachable-block elimination and dead-code elimination, in that
// order. Each pass is a self-contained func(*ir.Func, *session.Session), the
// same "small composable passes over one instruction arena"
// shape the teacher's register allocator (internal/compregister) and
// optimized VM tier (internal/vm/vm_optimized_v2.go) both use for
// function-local, single-pass transforms.
package optimize

import (
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/session"
)

// Pass is one optimization pass over a single function.
type Pass func(fn *ir.Func, sess *session.Session)

// Program runs the full pipeline over every function in prog, honoring the
// session's per-pass disable flags (the --no-* switches).
func Program(prog *ir.Program, sess *session.Session) {
	inlineCandidates := collectInlineCandidates(prog, sess)

	for _, fn := range prog.Funcs {
		if !sess.Opts.DisableInline {
			InlineCalls(fn, sess, inlineCandidates)
		}
		runLocalPasses(fn, sess)
	}
}

func runLocalPasses(fn *ir.Func, sess *session.Session) {
	if !sess.Opts.DisableFold {
		ConstantFold(fn, sess)
	}
	if !sess.Opts.DisableCProp {
		ConstantPropagate(fn, sess)
	}
	if !sess.Opts.DisableFold {
		ConstantFold(fn, sess)
	}
	if !sess.Opts.DisableUnreach {
		EliminateUnreachable(fn, sess)
	}
	if !sess.Opts.DisableDCE {
		EliminateDeadCode(fn, sess)
	}
	fn.ResolveLabels()
}
