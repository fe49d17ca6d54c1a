// Package startstub generates the minimal process entry point the driver
// appends when linking with --internal-libc: no libc crt0, just enough to
// read argc/argv off the initial stack, call main, and exit via syscall.
package startstub

import (
	"fmt"
	"strings"

	"github.com/splanck/vc/internal/session"
)

// Generate returns the assembly text for _start, in the dialect and word
// size sess.Opts selects. It expects a symbol named "main" to already be
// defined elsewhere in the link (the translation unit's own output).
func Generate(sess *session.Session) string {
	if sess.Opts.Word == session.Word32 {
		return generate32(sess)
	}
	return generate64(sess)
}

// generate64 emits a System V AMD64 _start: the kernel hands control over
// with argc at (%rsp), argv at 8(%rsp). main's signature is assumed to be
// int main(int argc, char **argv); its return value becomes the exit code
// via the exit syscall (60).
func generate64(sess *session.Session) string {
	var b strings.Builder
	if sess.Opts.Syntax == session.Intel {
		b.WriteString("bits 64\n")
		b.WriteString("global _start\n")
		b.WriteString("extern main\n")
		b.WriteString("_start:\n")
		b.WriteString("\tmov rdi, [rsp]\n")
		b.WriteString("\tlea rsi, [rsp+8]\n")
		b.WriteString("\tand rsp, -16\n")
		b.WriteString("\tcall main\n")
		b.WriteString("\tmov rdi, rax\n")
		b.WriteString("\tmov rax, 60\n")
		b.WriteString("\tsyscall\n")
		return b.String()
	}
	b.WriteString("\t.text\n")
	b.WriteString("\t.globl _start\n")
	b.WriteString("_start:\n")
	b.WriteString("\tmov (%rsp), %rdi\n")
	b.WriteString("\tlea 8(%rsp), %rsi\n")
	b.WriteString("\tand $-16, %rsp\n")
	b.WriteString("\tcall main\n")
	b.WriteString("\tmov %rax, %rdi\n")
	b.WriteString(fmt.Sprintf("\tmov $%d, %%rax\n", sysExit64))
	b.WriteString("\tsyscall\n")
	return b.String()
}

// generate32 emits the int $0x80 equivalent for a 32-bit target: argc sits
// at (%esp) and argv at 4(%esp), and syscalls go through the legacy int
// 0x80 gate with arguments in registers instead of via `syscall`.
func generate32(sess *session.Session) string {
	var b strings.Builder
	if sess.Opts.Syntax == session.Intel {
		b.WriteString("bits 32\n")
		b.WriteString("global _start\n")
		b.WriteString("extern main\n")
		b.WriteString("_start:\n")
		b.WriteString("\tmov eax, [esp]\n")
		b.WriteString("\tlea ecx, [esp+4]\n")
		b.WriteString("\tpush ecx\n")
		b.WriteString("\tpush eax\n")
		b.WriteString("\tcall main\n")
		b.WriteString("\tmov ebx, eax\n")
		b.WriteString("\tmov eax, 1\n")
		b.WriteString("\tint 0x80\n")
		return b.String()
	}
	b.WriteString("\t.text\n")
	b.WriteString("\t.globl _start\n")
	b.WriteString("_start:\n")
	b.WriteString("\tmov (%esp), %eax\n")
	b.WriteString("\tlea 4(%esp), %ecx\n")
	b.WriteString("\tpush %ecx\n")
	b.WriteString("\tpush %eax\n")
	b.WriteString("\tcall main\n")
	b.WriteString("\tmov %eax, %ebx\n")
	b.WriteString(fmt.Sprintf("\tmov $%d, %%eax\n", sysExit32))
	b.WriteString("\tint $0x80\n")
	return b.String()
}

const (
	sysExit64 = 60
	sysExit32 = 1
)
