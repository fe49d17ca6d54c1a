// Package token defines the lexical token kinds produced by internal/lex
// from preprocessed C source text.
package token

// Kind enumerates every distinct lexical category the lexer produces.
type Kind int

const (
	EOF Kind = iota
	UNKNOWN

	IDENT

	// Literals.
	INT_LIT
	FLOAT_LIT
	IMAGINARY_LIT
	CHAR_LIT
	WCHAR_LIT
	STRING_LIT
	WSTRING_LIT

	// Keywords.
	KW_AUTO
	KW_BREAK
	KW_CASE
	KW_CHAR
	KW_CONST
	KW_CONTINUE
	KW_DEFAULT
	KW_DO
	KW_DOUBLE
	KW_ELSE
	KW_ENUM
	KW_EXTERN
	KW_FLOAT
	KW_FOR
	KW_GOTO
	KW_IF
	KW_INLINE
	KW_INT
	KW_LONG
	KW_REGISTER
	KW_RESTRICT
	KW_RETURN
	KW_SHORT
	KW_SIGNED
	KW_SIZEOF
	KW_STATIC
	KW_STRUCT
	KW_SWITCH
	KW_TYPEDEF
	KW_UNION
	KW_UNSIGNED
	KW_VOID
	KW_VOLATILE
	KW_WHILE
	KW_BOOL        // _Bool
	KW_COMPLEX     // _Complex
	KW_STATIC_ASSERT // _Static_assert

	// Punctuation.
	LPAREN
	RPAREN
	LBRACE
	RBRACE
	LBRACKET
	RBRACKET
	COMMA
	SEMI
	COLON
	QUESTION
	DOT
	ARROW
	ELLIPSIS

	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	AMP
	PIPE
	CARET
	TILDE
	BANG
	LT
	GT
	EQ

	PLUSPLUS
	MINUSMINUS

	SHL
	SHR
	LE
	GE
	EQEQ
	NE
	ANDAND
	OROR

	ASSIGN
	PLUSEQ
	MINUSEQ
	STAREQ
	SLASHEQ
	PERCENTEQ
	AMPEQ
	PIPEEQ
	CARETEQ
	SHLEQ
	SHREQ
)

// Keywords maps reserved identifiers to their keyword Kind.
var Keywords = map[string]Kind{
	"auto":             KW_AUTO,
	"break":            KW_BREAK,
	"case":             KW_CASE,
	"char":             KW_CHAR,
	"const":            KW_CONST,
	"continue":         KW_CONTINUE,
	"default":          KW_DEFAULT,
	"do":               KW_DO,
	"double":           KW_DOUBLE,
	"else":             KW_ELSE,
	"enum":             KW_ENUM,
	"extern":           KW_EXTERN,
	"float":            KW_FLOAT,
	"for":              KW_FOR,
	"goto":             KW_GOTO,
	"if":               KW_IF,
	"inline":           KW_INLINE,
	"int":              KW_INT,
	"long":             KW_LONG,
	"register":         KW_REGISTER,
	"restrict":         KW_RESTRICT,
	"return":           KW_RETURN,
	"short":             KW_SHORT,
	"signed":           KW_SIGNED,
	"sizeof":           KW_SIZEOF,
	"static":           KW_STATIC,
	"struct":           KW_STRUCT,
	"switch":           KW_SWITCH,
	"typedef":          KW_TYPEDEF,
	"union":            KW_UNION,
	"unsigned":         KW_UNSIGNED,
	"void":             KW_VOID,
	"volatile":         KW_VOLATILE,
	"while":            KW_WHILE,
	"_Bool":            KW_BOOL,
	"_Complex":         KW_COMPLEX,
	"_Static_assert":   KW_STATIC_ASSERT,
}

// Punctuators lists multi-character punctuation longest-first so the lexer
// can greedily match it before falling back to single-character forms.
var Punctuators = []struct {
	Text string
	Kind Kind
}{
	{"...", ELLIPSIS},
	{"<<=", SHLEQ},
	{">>=", SHREQ},
	{"==", EQEQ},
	{"!=", NE},
	{"&&", ANDAND},
	{"||", OROR},
	{"<<", SHL},
	{">>", SHR},
	{"<=", LE},
	{">=", GE},
	{"->", ARROW},
	{"++", PLUSPLUS},
	{"--", MINUSMINUS},
	{"+=", PLUSEQ},
	{"-=", MINUSEQ},
	{"*=", STAREQ},
	{"/=", SLASHEQ},
	{"%=", PERCENTEQ},
	{"&=", AMPEQ},
	{"|=", PIPEEQ},
	{"^=", CARETEQ},
}

var singleCharKind = map[byte]Kind{
	'(': LPAREN, ')': RPAREN,
	'{': LBRACE, '}': RBRACE,
	'[': LBRACKET, ']': RBRACKET,
	',': COMMA, ';': SEMI, ':': COLON, '?': QUESTION, '.': DOT,
	'+': PLUS, '-': MINUS, '*': STAR, '/': SLASH, '%': PERCENT,
	'&': AMP, '|': PIPE, '^': CARET, '~': TILDE, '!': BANG,
	'<': LT, '>': GT, '=': ASSIGN,
}

// SingleCharKind looks up the Kind of a single-character punctuator.
func SingleCharKind(c byte) (Kind, bool) {
	k, ok := singleCharKind[c]
	return k, ok
}

// Token is one lexical unit: a kind, its source text, and its location.
type Token struct {
	Kind   Kind
	Lexeme string
	File   string
	Line   int
	Column int
}

var kindNames = map[Kind]string{
	EOF: "EOF", UNKNOWN: "UNKNOWN", IDENT: "IDENT",
	INT_LIT: "INT_LIT", FLOAT_LIT: "FLOAT_LIT", IMAGINARY_LIT: "IMAGINARY_LIT",
	CHAR_LIT: "CHAR_LIT", WCHAR_LIT: "WCHAR_LIT", STRING_LIT: "STRING_LIT", WSTRING_LIT: "WSTRING_LIT",
}

// String renders a token as "<kind> <lexeme> <file>:<line>:<column>" for
// the --dump-tokens format (spec §6).
func (t Token) String() string {
	name, ok := kindNames[t.Kind]
	if !ok {
		name = "PUNCT"
	}
	return name + " " + t.Lexeme + " " + t.File + ":" + itoa(t.Line) + ":" + itoa(t.Column)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
