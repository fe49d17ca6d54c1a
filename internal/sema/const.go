package sema

import (
	"strconv"
	"strings"

	"github.com/splanck/vc/internal/ast"
)

// constIntEval evaluates an AST expression as a compile-time integer
// constant, used for array dimensions, case labels, enum values, and
// bit-field widths (spec.md §4.4). It covers the constant-expression subset
// those contexts actually need: literals, unary +/-/~/!, binary arithmetic/
// bitwise/shift/comparison/logical operators, the ternary operator, and
// references to previously-declared enum constants. Anything else (a
// non-constant operand) reports ok=false so the caller can fall back to
// treating the dimension/width as unresolved rather than guessing.
func (a *Analyzer) constIntEval(e ast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *ast.Number:
		return parseIntLiteral(n.Text)
	case *ast.CharLit:
		return int64(n.Value), true
	case *ast.Ident:
		if sym, ok := a.vars.Lookup(n.Name); ok && sym.IsEnumConst {
			return sym.EnumValue, true
		}
		return 0, false
	case *ast.Unary:
		if n.Postfix {
			return 0, false
		}
		v, ok := a.constIntEval(n.Operand)
		if !ok {
			return 0, false
		}
		switch n.Op {
		case "-":
			return -v, true
		case "+":
			return v, true
		case "~":
			return ^v, true
		case "!":
			if v == 0 {
				return 1, true
			}
			return 0, true
		}
		return 0, false
	case *ast.Binary:
		l, ok1 := a.constIntEval(n.Left)
		r, ok2 := a.constIntEval(n.Right)
		if !ok1 || !ok2 {
			return 0, false
		}
		return evalBinaryConst(n.Op, l, r)
	case *ast.Ternary:
		c, ok := a.constIntEval(n.Cond)
		if !ok {
			return 0, false
		}
		if c != 0 {
			return a.constIntEval(n.Then)
		}
		return a.constIntEval(n.Else)
	case *ast.Cast:
		return a.constIntEval(n.Operand)
	case *ast.SizeofType:
		t := a.resolveType(n.Type)
		return t.Size, true
	case *ast.SizeofExpr:
		t := a.typeOf(n.Operand)
		if t == nil {
			return 0, false
		}
		return t.Size, true
	}
	return 0, false
}

func evalBinaryConst(op string, l, r int64) (int64, bool) {
	switch op {
	case "+":
		return l + r, true
	case "-":
		return l - r, true
	case "*":
		return l * r, true
	case "/":
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case "%":
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case "&":
		return l & r, true
	case "|":
		return l | r, true
	case "^":
		return l ^ r, true
	case "<<":
		return l << uint(r), true
	case ">>":
		return l >> uint(r), true
	case "==":
		return boolInt(l == r), true
	case "!=":
		return boolInt(l != r), true
	case "<":
		return boolInt(l < r), true
	case ">":
		return boolInt(l > r), true
	case "<=":
		return boolInt(l <= r), true
	case ">=":
		return boolInt(l >= r), true
	case "&&":
		return boolInt(l != 0 && r != 0), true
	case "||":
		return boolInt(l != 0 || r != 0), true
	}
	return 0, false
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// parseIntLiteral parses a lexed integer-literal lexeme (decimal, 0x hex, or
// 0-prefixed octal, with trailing u/U/l/L suffixes already present) into its
// numeric value.
func parseIntLiteral(lexeme string) (int64, bool) {
	s := strings.TrimRight(lexeme, "uUlL")
	base := 10
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		base = 16
		s = s[2:]
	case strings.HasPrefix(s, "0") && len(s) > 1:
		base = 8
		s = s[1:]
	}
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		uv, uerr := strconv.ParseUint(s, base, 64)
		if uerr != nil {
			return 0, false
		}
		return int64(uv), true
	}
	return v, true
}
