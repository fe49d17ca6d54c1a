// Package codegen lowers internal/ir into x86 text assembly. Register
// assignment comes from internal/regalloc; codegen's own job is purely
// textual: one emission method per opcode, dispatched from a switch the
// same shape as the teacher's bytecode interpreter loop
// (internal/vm/vm.go's giant opcode switch), except each case here writes
// assembly mnemonics instead of executing bytecode.
package codegen

import (
	"fmt"
	"strings"

	"github.com/splanck/vc/internal/ctype"
	"github.com/splanck/vc/internal/ir"
	"github.com/splanck/vc/internal/regalloc"
	"github.com/splanck/vc/internal/session"
)

// System V AMD64 general-purpose integer argument registers, in order.
var intArgRegs64 = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
var intArgRegs32 = []string{"edi", "esi", "edx", "ecx", "r8d", "r9d"}

// gpNames64/gpNames32 map a regalloc GP register index to its AT&T name at
// 64-bit and 32-bit width. Index 0-1 are reserved scratch (see New call in
// Generate), the rest are available for allocation.
var gpNames64 = []string{"rax", "r11", "rbx", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10", "r12", "r13", "r14", "r15"}
var gpNames32 = []string{"eax", "r11d", "ebx", "ecx", "edx", "esi", "edi", "r8d", "r9d", "r10d", "r12d", "r13d", "r14d", "r15d"}
var gpNames8 = []string{"al", "r11b", "bl", "cl", "dl", "sil", "dil", "r8b", "r9b", "r10b", "r12b", "r13b", "r14b", "r15b"}

const numGP = 14

// numXMM reserves xmm15 as a scratch register for spill traffic (never
// handed out by regalloc), leaving xmm0-xmm14 allocatable.
const numXMM = 15

// scratch reg indices: 0 (rax) used for division/return, 1 (r11) used for
// address arithmetic and to hold the value being shifted while cl carries
// a variable shift count.
var scratchGP = []int{0, 1}

// Gen holds the per-function state codegen threads through emission.
type Gen struct {
	sess   *session.Session
	sb     *strings.Builder
	fn     *ir.Func
	alloc  *regalloc.Map
	locals map[string]int64 // named local slot -> frame offset (negative from rbp)
	frame  int64            // total local frame size, 16-byte aligned
	strNum int
	consts []constDatum
}

type constDatum struct {
	label string
	bytes []byte
	kind  string // "str", "float32", "float64"
}

// Generate emits the full translation unit's assembly text.
func Generate(prog *ir.Program, sess *session.Session) string {
	g := &Gen{sess: sess, sb: &strings.Builder{}}
	g.sb.WriteString(".text\n")
	for _, fn := range prog.Funcs {
		g.generateFunc(fn)
	}
	g.sb.WriteString("\n.section .data\n")
	emitGlobals(g.sb, prog.Globals, false)
	g.sb.WriteString("\n.section .bss\n")
	emitGlobals(g.sb, prog.Globals, true)
	if len(g.consts) > 0 {
		g.sb.WriteString("\n.section .rodata\n")
		for _, c := range g.consts {
			g.sb.WriteString(c.label + ":\n")
			switch c.kind {
			case "str":
				g.sb.WriteString("\t.byte " + byteList(c.bytes) + "\n")
			case "float32", "float64":
				g.sb.WriteString("\t.byte " + byteList(c.bytes) + "\n")
			}
		}
	}
	return g.sb.String()
}

func byteList(b []byte) string {
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = fmt.Sprintf("%d", x)
	}
	return strings.Join(parts, ", ")
}

func emitGlobals(sb *strings.Builder, globals []ir.Global, bss bool) {
	for _, g := range globals {
		if g.IsBSS != bss {
			continue
		}
		if g.Extern {
			continue
		}
		if !g.Static {
			sb.WriteString("\t.globl " + g.Name + "\n")
		}
		sb.WriteString("\t.align " + fmt.Sprint(g.Type.Align) + "\n")
		sb.WriteString(g.Name + ":\n")
		if bss {
			sb.WriteString(fmt.Sprintf("\t.zero %d\n", g.Type.Size))
			continue
		}
		if len(g.Init) == 0 {
			sb.WriteString(fmt.Sprintf("\t.zero %d\n", g.Type.Size))
			continue
		}
		sb.WriteString("\t.byte " + byteList(g.Init) + "\n")
	}
}

func (g *Gen) generateFunc(fn *ir.Func) {
	g.fn = fn
	g.alloc = regalloc.New(numGP, numXMM, scratchGP).Allocate(fn)
	g.buildLocalOffsets(fn)

	if !fn.Static {
		g.sb.WriteString("\t.globl " + fn.Name + "\n")
	}
	g.sb.WriteString(fn.Name + ":\n")
	g.emit("push %rbp")
	g.emit("mov %rsp, %rbp")
	if g.frame > 0 {
		g.emit(fmt.Sprintf("sub $%d, %%rsp", alignUp(g.frame, 16)))
	}

	for i, instr := range fn.Instrs {
		g.emitInstr(i, instr)
	}

	// Fallthrough safety net: a function whose C body never explicitly
	// returns on every path (e.g. falls off the end of a non-void
	// function, undefined behavior that still must not crash the
	// assembler) gets an epilogue appended here too.
	last := fn.Instrs[len(fn.Instrs)-1]
	if last.Op != ir.RETURN && last.Op != ir.RETURN_AGG && last.Op != ir.RETURN_VOID {
		g.emitEpilogue()
		g.emit("ret")
	}
	g.sb.WriteString("\n")
}

// buildLocalOffsets assigns every distinct named LOAD_LOCAL/STORE_LOCAL slot
// a frame-relative offset, packing by the type's size/alignment the same
// way ctype.Layout packs aggregate fields.
func (g *Gen) buildLocalOffsets(fn *ir.Func) {
	g.locals = make(map[string]int64)
	var offset int64
	seen := make(map[string]bool)
	for _, instr := range fn.Instrs {
		switch instr.Op {
		case ir.LOAD_LOCAL, ir.STORE_LOCAL, ir.LOAD_ADDR:
			if instr.Name == "" || seen[instr.Name] || instr.Type == nil {
				continue
			}
			seen[instr.Name] = true
			size := instr.Type.Size
			if size <= 0 {
				size = 8
			}
			align := instr.Type.Align
			if align <= 0 {
				align = 8
			}
			offset = alignUp(offset+size, align)
			g.locals[instr.Name] = -offset
		case ir.COMPLEX_MAKE:
			// Reserve a 16-byte slot for the real/imaginary pair up front
			// so the prologue's stack-pointer adjustment already accounts
			// for it; emitComplexMake only looks the slot up, it never
			// grows the frame during emission.
			name := fmt.Sprintf("__complex.%d", instr.Dest)
			if seen[name] {
				continue
			}
			seen[name] = true
			offset = alignUp(offset+16, 8)
			g.locals[name] = -offset
		}
	}
	g.frame = offset + int64(g.alloc.StackSlots)*8
}

func alignUp(v, align int64) int64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

func (g *Gen) emit(s string) {
	g.sb.WriteString("\t" + s + "\n")
}

func (g *Gen) emitEpilogue() {
	g.emit("mov %rbp, %rsp")
	g.emit("pop %rbp")
}

// gpName returns the physical register name (sized by width) backing value
// id, or "" when the value lives in a stack slot rather than a register.
func (g *Gen) gpName(id int, width int) string {
	loc, ok := g.alloc.Loc[id]
	if !ok || loc.Reg < 0 {
		// spilled: caller is responsible for loading/storing through the
		// stack slot directly via spillOffset; gpName is only valid for
		// register-resident values.
		return ""
	}
	switch width {
	case 1:
		return gpNames8[loc.Reg]
	case 4:
		return gpNames32[loc.Reg]
	default:
		return gpNames64[loc.Reg]
	}
}

func (g *Gen) xmmName(id int) string {
	loc, ok := g.alloc.Loc[id]
	if !ok || loc.Reg < 0 {
		return ""
	}
	return fmt.Sprintf("xmm%d", loc.Reg)
}

func (g *Gen) isFloat(id int) bool {
	loc, ok := g.alloc.Loc[id]
	return ok && loc.Class == regalloc.XMM
}

func (g *Gen) spillOffset(id int) (int64, bool) {
	loc, ok := g.alloc.Loc[id]
	if !ok || loc.Reg >= 0 {
		return 0, false
	}
	return -(g.frame - int64(loc.Slot)), true
}

func width(t *ctype.Type) int {
	if t == nil {
		return 8
	}
	switch t.Size {
	case 1:
		return 1
	case 2:
		return 2
	case 4:
		return 4
	default:
		return 8
	}
}
