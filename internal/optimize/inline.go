package optimize

import (
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/session"
)

// inlineThreshold bounds the callee body size (excluding LOAD_PARAM/RETURN)
// eligible for substitution, keeping inlining to the small leaf-function
// case (accessor-style getters, simple arithmetic wrappers) rather than a
// general inliner.
const inlineThreshold = 12

// collectInlineCandidates finds every function straightforward enough to
// substitute at a call site: a single straight-line block (no LABEL/JUMP*,
// so no internal control flow to re-target), no nested CALL (so inlining
// never needs to recurse), not variadic, and small. Each candidate is
// matched against the same template shape regardless of what its body
// actually computes: a run of LOAD_PARAM aliases, a handful of value-
// producing instructions, and a single trailing RETURN/RETURN_VOID.
func collectInlineCandidates(prog *ir.Program, sess *session.Session) map[string]*ir.Func {
	out := make(map[string]*ir.Func)
	for _, fn := range prog.Funcs {
		if fn.Variadic || len(fn.Instrs) == 0 {
			continue
		}
		if !isInlineShape(fn) {
			continue
		}
		out[fn.Name] = fn
	}
	return out
}

func isInlineShape(fn *ir.Func) bool {
	body := 0
	last := fn.Instrs[len(fn.Instrs)-1]
	if last.Op != ir.RETURN && last.Op != ir.RETURN_VOID {
		return false
	}
	for _, instr := range fn.Instrs {
		switch instr.Op {
		case ir.LOAD_PARAM, ir.RETURN, ir.RETURN_VOID:
			continue
		case ir.LABEL, ir.JUMP, ir.JUMP_IF_ZERO, ir.JUMP_IF_NOT_ZERO, ir.CALL, ir.RETURN_AGG, ir.COPY_AGG:
			return false
		}
		body++
	}
	return body <= inlineThreshold
}

// InlineCalls substitutes every call to a candidate at most once per
// program (sess.EmittedInline bounds total code growth from repeatedly
// inlining the same hot helper at many call sites), remapping the callee's
// value ids into fn's id space and rewriting LOAD_PARAM references to the
// call's actual argument ids directly.
func InlineCalls(fn *ir.Func, sess *session.Session, candidates map[string]*ir.Func) {
	var out []ir.Instr
	for _, instr := range fn.Instrs {
		if instr.Op != ir.CALL {
			out = append(out, instr)
			continue
		}
		callee, ok := candidates[instr.Name]
		if !ok || instr.Name == fn.Name || sess.EmittedInline[instr.Name] {
			out = append(out, instr)
			continue
		}
		sess.EmittedInline[instr.Name] = true

		idMap := make(map[int]int)
		var resultID int
		haveResult := false
		for _, cinstr := range callee.Instrs {
			switch cinstr.Op {
			case ir.LOAD_PARAM:
				if int(cinstr.Imm) < len(instr.Args) {
					idMap[cinstr.Dest] = instr.Args[cinstr.Imm]
				}
			case ir.RETURN:
				resultID = remapID(idMap, fn, cinstr.Src1)
				haveResult = true
			case ir.RETURN_VOID:
				// nothing to bind
			default:
				remapped := cinstr
				remapped.Src1 = remapID(idMap, fn, cinstr.Src1)
				remapped.Src2 = remapID(idMap, fn, cinstr.Src2)
				if len(cinstr.Args) > 0 {
					args := make([]int, len(cinstr.Args))
					for i, a := range cinstr.Args {
						args[i] = remapID(idMap, fn, a)
					}
					remapped.Args = args
				}
				if cinstr.Dest != 0 {
					fresh := fn.NewValue()
					idMap[cinstr.Dest] = fresh
					remapped.Dest = fresh
				}
				out = append(out, remapped)
			}
		}
		if haveResult && instr.Dest != 0 {
			out = append(out, ir.Instr{Op: ir.CAST, Dest: instr.Dest, Src1: resultID, Type: instr.Type})
		}
	}
	fn.Instrs = out
}

// remapID translates a callee value id through idMap, allocating nothing:
// every id read by a non-LOAD_PARAM instruction must already have been
// produced (and thus mapped) earlier in the callee's straight-line body.
func remapID(idMap map[int]int, fn *ir.Func, id int) int {
	if id == 0 {
		return 0
	}
	if mapped, ok := idMap[id]; ok {
		return mapped
	}
	return id
}
