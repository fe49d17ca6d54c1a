// Package regalloc implements vc's linear-scan register allocator: one
// forward last-use pre-pass over an ir.Func, then a single assignment pass
// driven by a LIFO free-register stack.
//
// The allocator itself is a direct generalization of the teacher's
// compregister.RegisterAllocator (internal/compregister/compiler.go): the
// same Alloc/Free-over-a-freeRegs-stack idiom, but against a fixed physical
// pool (general-purpose registers plus a disjoint XMM pool for floating
// values) instead of an unbounded virtual register file, and driven by
// value liveness instead of lexical scope exit.
package regalloc

import "github.com/splanck/vc/internal/ir"

// Class distinguishes the two disjoint physical pools a value id can be
// assigned into.
type Class int

const (
	GP  Class = iota // general-purpose integer/pointer registers
	XMM              // SSE registers for float/double values
)

// stack is a LIFO free-register stack, the same shape as the teacher's
// RegisterAllocator.freeRegs.
type stack struct {
	free []int
}

func (s *stack) push(r int) { s.free = append(s.free, r) }

func (s *stack) pop() (int, bool) {
	if len(s.free) == 0 {
		return 0, false
	}
	r := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	return r, true
}

// Allocator assigns each IR value either a physical register or a spill
// slot, over a fixed pool per Class.
type Allocator struct {
	numGP     int
	numXMM    int
	scratchGP []int // reserved, never handed out by Allocate

	gp  stack
	xmm stack
}

// New creates an Allocator with numGP general-purpose registers and numXMM
// XMM registers available for assignment; scratchGP indices are carved out
// of the GP pool up front and never appear in an assignment (codegen uses
// them directly for instruction sequences that need a temporary, e.g.
// variable-count shifts through a fixed `cl`).
func New(numGP, numXMM int, scratchGP []int) *Allocator {
	a := &Allocator{numGP: numGP, numXMM: numXMM, scratchGP: scratchGP}
	reserved := make(map[int]bool, len(scratchGP))
	for _, r := range scratchGP {
		reserved[r] = true
	}
	for r := numGP - 1; r >= 0; r-- {
		if !reserved[r] {
			a.gp.push(r)
		}
	}
	for r := numXMM - 1; r >= 0; r-- {
		a.xmm.push(r)
	}
	return a
}

// Loc records a value's final home: a register index of the given Class,
// or a stack slot (Reg == -1) if the pool was exhausted.
type Loc struct {
	Class Class
	Reg   int // -1 if spilled
	Slot  int // byte offset from frame base, meaningful iff Reg == -1
}

// Map is the per-function result of allocation, indexed by value id.
type Map struct {
	Loc        map[int]Loc
	StackSlots int // count of 8-byte spill slots used
}

// lastUse maps a value id to the index of its last-referencing instruction,
// built by the forward pre-pass.
func lastUse(fn *ir.Func) map[int]int {
	last := make(map[int]int, len(fn.Instrs))
	record := func(id, idx int) {
		if id == 0 {
			return
		}
		if cur, ok := last[id]; !ok || idx > cur {
			last[id] = idx
		}
	}
	for i, instr := range fn.Instrs {
		record(instr.Src1, i)
		record(instr.Src2, i)
		for _, a := range instr.Args {
			record(a, i)
		}
	}
	return last
}

// classOf decides whether a value needs a GP or XMM register based on its
// declared type; nil (untyped control values, e.g. a LABEL's own Dest of 0)
// defaults to GP.
func classOf(instr ir.Instr) Class {
	if instr.Type != nil && instr.Type.IsFloating() && !instr.Type.IsComplex() {
		return XMM
	}
	return GP
}

// Allocate runs the forward last-use pass followed by the single
// assignment pass and returns the resulting Map. Values whose class's pool
// is exhausted at the point they're defined are spilled to a fresh 8-byte
// stack slot; spilled-ness never changes once assigned (no rematerialization
// or reload-driven re-allocation, matching §4.6's "single assignment pass").
func (a *Allocator) Allocate(fn *ir.Func) *Map {
	last := lastUse(fn)
	m := &Map{Loc: make(map[int]Loc, len(fn.Instrs))}

	release := func(id int, atIndex int) {
		loc, ok := m.Loc[id]
		if !ok || loc.Reg < 0 {
			return
		}
		if lu, ok := last[id]; ok && lu == atIndex {
			switch loc.Class {
			case GP:
				a.gp.push(loc.Reg)
			case XMM:
				a.xmm.push(loc.Reg)
			}
		}
	}

	for i, instr := range fn.Instrs {
		if instr.Dest != 0 {
			if _, already := m.Loc[instr.Dest]; !already {
				class := classOf(instr)
				var reg int
				var ok bool
				switch class {
				case GP:
					reg, ok = a.gp.pop()
				case XMM:
					reg, ok = a.xmm.pop()
				}
				if ok {
					m.Loc[instr.Dest] = Loc{Class: class, Reg: reg}
				} else {
					slot := m.StackSlots
					m.StackSlots++
					m.Loc[instr.Dest] = Loc{Class: class, Reg: -1, Slot: slot * 8}
				}
			}
		}
		release(instr.Src1, i)
		release(instr.Src2, i)
		for _, arg := range instr.Args {
			release(arg, i)
		}
	}
	return m
}
