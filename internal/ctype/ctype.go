// Package ctype implements vc's C type system: the tagged type
// representation of spec.md §3, usual arithmetic conversions, and
// aggregate layout (including the bit-field/pragma-pack policy decided in
// SPEC_FULL.md §4.4).
package ctype

// Kind tags the variant of a Type.
type Kind int

const (
	Void Kind = iota
	Bool
	Char
	UChar
	Short
	UShort
	Int
	UInt
	Long
	ULong
	LLong
	ULLong
	Float
	Double
	LDouble
	FloatComplex
	DoubleComplex
	Ptr
	Array
	Struct
	Union
	Enum
	Func
	Unknown
)

// Field describes one member of a struct/union, including bit-field width
// and computed byte offset.
type Field struct {
	Name       string
	Type       *Type
	Offset     int64
	BitOffset  int // bit offset within the storage unit, LSB-first
	BitWidth   int // 0 means "not a bit-field"
	IsBitField bool
}

// Type is the tagged union of spec.md §3's "Type" data model.
type Type struct {
	Kind Kind

	// Ptr / Array element type.
	Elem *Type
	// Array length; -1 means incomplete ("[]").
	Len int64

	// Struct / Union / Enum.
	Tag    string
	Fields []Field
	Size   int64
	Align  int64

	// Func.
	Ret      *Type
	Params   []*Type
	Variadic bool

	Const, Volatile, Restrict bool
}

// Basic type singletons; callers that need qualifiers clone via WithConst etc.
var (
	TVoid    = &Type{Kind: Void, Size: 0, Align: 1}
	TBool    = &Type{Kind: Bool, Size: 1, Align: 1}
	TChar    = &Type{Kind: Char, Size: 1, Align: 1}
	TUChar   = &Type{Kind: UChar, Size: 1, Align: 1}
	TShort   = &Type{Kind: Short, Size: 2, Align: 2}
	TUShort  = &Type{Kind: UShort, Size: 2, Align: 2}
	TInt     = &Type{Kind: Int, Size: 4, Align: 4}
	TUInt    = &Type{Kind: UInt, Size: 4, Align: 4}
	TLong    = &Type{Kind: Long, Size: 8, Align: 8}
	TULong   = &Type{Kind: ULong, Size: 8, Align: 8}
	TLLong   = &Type{Kind: LLong, Size: 8, Align: 8}
	TULLong  = &Type{Kind: ULLong, Size: 8, Align: 8}
	TFloat   = &Type{Kind: Float, Size: 4, Align: 4}
	TDouble  = &Type{Kind: Double, Size: 8, Align: 8}
	TLDouble = &Type{Kind: LDouble, Size: 16, Align: 16} // x87 80-bit stored 16-byte aligned
	TUnknown = &Type{Kind: Unknown}
)

// NewPtr builds a pointer-to-elem type; word determines pointer size (4 on
// 32-bit targets, 8 on 64-bit).
func NewPtr(elem *Type, word int64) *Type {
	return &Type{Kind: Ptr, Elem: elem, Size: word, Align: word}
}

// NewArray builds a fixed-length array type; elem.Size must be known.
func NewArray(elem *Type, length int64) *Type {
	size := int64(-1)
	if length >= 0 {
		size = elem.Size * length
	}
	return &Type{Kind: Array, Elem: elem, Len: length, Size: size, Align: elem.Align}
}

// NewFunc builds a function type.
func NewFunc(ret *Type, params []*Type, variadic bool) *Type {
	return &Type{Kind: Func, Ret: ret, Params: params, Variadic: variadic}
}

// IsInteger reports whether t is one of the integer kinds (including Bool).
func (t *Type) IsInteger() bool {
	switch t.Kind {
	case Bool, Char, UChar, Short, UShort, Int, UInt, Long, ULong, LLong, ULLong:
		return true
	}
	return false
}

// IsUnsigned reports whether t is an unsigned integer kind.
func (t *Type) IsUnsigned() bool {
	switch t.Kind {
	case Bool, UChar, UShort, UInt, ULong, ULLong:
		return true
	}
	return false
}

// IsFloating reports whether t is a real or complex floating kind.
func (t *Type) IsFloating() bool {
	switch t.Kind {
	case Float, Double, LDouble, FloatComplex, DoubleComplex:
		return true
	}
	return false
}

// IsComplex reports whether t is one of the _Complex kinds.
func (t *Type) IsComplex() bool { return t.Kind == FloatComplex || t.Kind == DoubleComplex }

// IsArithmetic reports whether t participates in arithmetic conversions.
func (t *Type) IsArithmetic() bool { return t.IsInteger() || t.IsFloating() }

// IsScalar reports whether t is arithmetic or a pointer.
func (t *Type) IsScalar() bool { return t.IsArithmetic() || t.Kind == Ptr }

// IsAggregate reports whether t is a struct or union.
func (t *Type) IsAggregate() bool { return t.Kind == Struct || t.Kind == Union }

// integerRank orders integer kinds by conversion rank (ignoring
// signedness), per C99 6.3.1.1.
func integerRank(k Kind) int {
	switch k {
	case Bool:
		return 0
	case Char, UChar:
		return 1
	case Short, UShort:
		return 2
	case Int, UInt:
		return 3
	case Long, ULong:
		return 4
	case LLong, ULLong:
		return 5
	}
	return -1
}

// unsignedOf returns the unsigned counterpart of an integer kind.
func unsignedOf(k Kind) Kind {
	switch k {
	case Char:
		return UChar
	case Short:
		return UShort
	case Int:
		return UInt
	case Long:
		return ULong
	case LLong:
		return ULLong
	}
	return k
}

func kindOf(k Kind) *Type {
	switch k {
	case Bool:
		return TBool
	case Char:
		return TChar
	case UChar:
		return TUChar
	case Short:
		return TShort
	case UShort:
		return TUShort
	case Int:
		return TInt
	case UInt:
		return TUInt
	case Long:
		return TLong
	case ULong:
		return TULong
	case LLong:
		return TLLong
	case ULLong:
		return TULLong
	case Float:
		return TFloat
	case Double:
		return TDouble
	case LDouble:
		return TLDouble
	}
	return TUnknown
}

// UsualArithmeticConversion computes the common type of a and b under C99's
// usual arithmetic conversions (6.3.1.8), used by sema to decide the result
// type of binary arithmetic and to drive implicit CAST insertion.
func UsualArithmeticConversion(a, b *Type) *Type {
	if a.Kind == LDouble || b.Kind == LDouble {
		return TLDouble
	}
	if a.Kind == Double || b.Kind == Double {
		return TDouble
	}
	if a.Kind == Float || b.Kind == Float {
		return TFloat
	}
	// Integer promotion: anything with rank below Int promotes to Int.
	pa, pb := promote(a), promote(b)
	if pa.Kind == pb.Kind {
		return pa
	}
	ra, rb := integerRank(pa.Kind), integerRank(pb.Kind)
	ua, ub := pa.IsUnsigned(), pb.IsUnsigned()
	switch {
	case ua == ub:
		if ra >= rb {
			return pa
		}
		return pb
	case ua && ra >= rb:
		return pa
	case ub && rb >= ra:
		return pb
	case !ua && ra > rb:
		return pa
	case !ub && rb > ra:
		return pb
	default:
		if ua {
			return kindOf(unsignedOf(pb.Kind))
		}
		return kindOf(unsignedOf(pa.Kind))
	}
}

// promote applies integer promotion: Bool/Char/Short (signed or unsigned)
// promote to Int; everything else (including Int and above) is unchanged.
func promote(t *Type) *Type {
	if !t.IsInteger() {
		return t
	}
	if integerRank(t.Kind) < integerRank(Int) {
		return TInt
	}
	return t
}

// Equal reports structural type equality, ignoring qualifiers.
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Ptr, Array:
		return Equal(a.Elem, b.Elem) && (a.Kind != Array || a.Len == b.Len)
	case Struct, Union, Enum:
		return a.Tag == b.Tag
	case Func:
		if !Equal(a.Ret, b.Ret) || a.Variadic != b.Variadic || len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if !Equal(a.Params[i], b.Params[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Layout computes field offsets for a struct/union body under the
// decided bit-field/pragma-pack policy (SPEC_FULL.md §4.4, Open Question):
// bit-fields are packed LSB-first within a storage unit sized by the
// field's declared base type; packAlign (0 = no #pragma pack in effect)
// aligns each storage unit's *start* offset, it never changes how bits are
// packed within the unit.
func Layout(kind Kind, tag string, fields []Field, packAlign int64) *Type {
	var offset int64
	var maxAlign int64 = 1
	var bitOffset int
	var curUnitOffset int64
	haveUnit := false

	out := make([]Field, len(fields))
	for i, f := range fields {
		if f.IsBitField {
			unitSize := f.Type.Size
			align := unitSize
			if packAlign > 0 && packAlign < align {
				align = packAlign
			}
			if !haveUnit || bitOffset+f.BitWidth > int(unitSize)*8 {
				if haveUnit {
					offset = curUnitOffset + unitSize
				}
				offset = alignUp(offset, align)
				curUnitOffset = offset
				bitOffset = 0
				haveUnit = true
			}
			out[i] = f
			out[i].Offset = curUnitOffset
			out[i].BitOffset = bitOffset
			bitOffset += f.BitWidth
			if unitSize > maxAlign {
				maxAlign = unitSize
			}
			if kind == Union {
				offset = 0
				curUnitOffset = 0
			}
			continue
		}
		haveUnit = false
		align := f.Type.Align
		if packAlign > 0 && packAlign < align {
			align = packAlign
		}
		if kind == Struct {
			offset = alignUp(offset, align)
			out[i] = f
			out[i].Offset = offset
			offset += f.Type.Size
		} else {
			out[i] = f
			out[i].Offset = 0
			if f.Type.Size > offset {
				offset = f.Type.Size
			}
		}
		if align > maxAlign {
			maxAlign = align
		}
	}
	if haveUnit {
		offset = curUnitOffset + out[len(out)-1].Type.Size
	}
	size := alignUp(offset, maxAlign)
	return &Type{Kind: kind, Tag: tag, Fields: out, Size: size, Align: maxAlign}
}

func alignUp(v, align int64) int64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
