package sema

import (
	"github.com/splanck/vc/internal/ast"
	"github.com/splanck/vc/internal/ctype"
	"github.com/splanck/vc/internal/symtab"
)

// resolveType turns a parser-syntactic ast.TypeName into a *ctype.Type,
// resolving struct/union/enum tags and typedef names against tags/vars,
// and computing pointer/array/function wrapping in declarator order.
func (a *Analyzer) resolveType(tn ast.TypeName) *ctype.Type {
	base := a.resolveBase(tn.Specifiers)
	t := base
	for i := 0; i < tn.Pointers; i++ {
		t = ctype.NewPtr(t, a.wordSize())
	}
	// Arrays apply innermost-first in the declarator (the first `[]` written
	// is the outermost dimension of the resulting type).
	for i := len(tn.Arrays) - 1; i >= 0; i-- {
		length := int64(-1)
		if tn.Arrays[i] != nil {
			if v, ok := a.constIntEval(tn.Arrays[i]); ok {
				length = v
			}
		}
		t = ctype.NewArray(t, length)
	}
	if tn.Func != nil {
		var params []*ctype.Type
		for _, p := range tn.Func.Params {
			params = append(params, a.resolveType(p))
		}
		t = ctype.NewFunc(t, params, tn.Func.Variadic)
	}
	return t
}

func (a *Analyzer) wordSize() int64 {
	return int64(a.sess.Opts.Word)
}

// resolveBase maps a flat specifier-word list to a basic/aggregate type,
// per C99's "any order, count determines width" rule for int specifiers.
func (a *Analyzer) resolveBase(specs []string) *ctype.Type {
	if len(specs) == 0 {
		return ctype.TInt
	}
	// struct/union/enum Tag
	switch specs[0] {
	case "struct", "union":
		tag := ""
		if len(specs) > 1 {
			tag = specs[1]
		}
		if sym, ok := a.tags.LookupTag(tag); ok && sym.Type != nil {
			return sym.Type
		}
		kind := ctype.Struct
		if specs[0] == "union" {
			kind = ctype.Union
		}
		return &ctype.Type{Kind: kind, Tag: tag, Size: 0, Align: 1}
	case "enum":
		return ctype.TInt
	}
	// typedef name: a single identifier not matching any builtin keyword
	if len(specs) == 1 {
		if sym, ok := a.vars.Lookup(specs[0]); ok && sym.IsTypedef {
			return sym.Type
		}
	}

	var unsigned, signed, long, short, longlong, complex bool
	var base string
	for _, s := range specs {
		switch s {
		case "unsigned":
			unsigned = true
		case "signed":
			signed = true
		case "short":
			short = true
		case "long":
			if long {
				longlong = true
			}
			long = true
		case "_Complex":
			complex = true
		case "void", "char", "int", "float", "double", "_Bool":
			base = s
		}
	}
	_ = signed

	switch base {
	case "void":
		return ctype.TVoid
	case "_Bool":
		return ctype.TBool
	case "char":
		if unsigned {
			return ctype.TUChar
		}
		return ctype.TChar
	case "float":
		if complex {
			return &ctype.Type{Kind: ctype.FloatComplex, Size: 8, Align: 4}
		}
		return ctype.TFloat
	case "double":
		if long {
			return ctype.TLDouble
		}
		if complex {
			return &ctype.Type{Kind: ctype.DoubleComplex, Size: 16, Align: 8}
		}
		return ctype.TDouble
	default: // "int" or bare unsigned/short/long
		switch {
		case longlong && unsigned:
			return ctype.TULLong
		case longlong:
			return ctype.TLLong
		case long && unsigned:
			return ctype.TULong
		case long:
			return ctype.TLong
		case short && unsigned:
			return ctype.TUShort
		case short:
			return ctype.TShort
		case unsigned:
			return ctype.TUInt
		default:
			return ctype.TInt
		}
	}
}

// declareTag registers a struct/union declaration's tag with its laid-out
// type, used when sema walks a top-level Glob of kind GlobStructDecl/
// GlobUnionDecl (enums go through lowerEnumMembers instead). The parser
// builds no Glob of either kind, so parsed source never reaches this path.
func (a *Analyzer) declareTag(kind ctype.Kind, tag string, fields []ast.Param, packAlign int64) *ctype.Type {
	var laidOut []ctype.Field
	for _, f := range fields {
		laidOut = append(laidOut, ctype.Field{Name: f.Name, Type: a.resolveType(f.Type)})
	}
	t := ctype.Layout(kind, tag, laidOut, packAlign)
	a.tags.DeclareTag(&symtab.Symbol{Name: tag, Kind: symtab.KindTag, Type: t})
	return t
}

// specifierHasIdent reports whether name appears among a type-specifier
// word list. Nothing in the package calls it at present.
func specifierHasIdent(specs []string, name string) bool {
	for _, s := range specs {
		if s == name {
			return true
		}
	}
	return false
}
