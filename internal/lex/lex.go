// Package lex turns preprocessed C source text into a dense token stream.
//
// The scanner shape (source string, start/current indices, a running line
// counter) follows the teacher's internal/lexer.Scanner; unlike that
// scanner it also tracks columns and honors `# <n> "file"` line markers
// emitted by internal/preprocess, since C diagnostics are column-precise.
package lex

import (
	"strings"

	"github.com/splanck/vc/internal/diag"
	"github.com/splanck/vc/internal/token"
)

// Lexer scans one preprocessed translation unit into tokens.
type Lexer struct {
	source  string
	file    string
	start   int
	current int
	line    int
	column  int
	// startLine/startColumn record the position of the token currently
	// being scanned, so multi-character tokens report where they began.
	startLine   int
	startColumn int

	tokens []token.Token
	sink   *diag.Sink
}

// New creates a Lexer over src, attributing diagnostics to file.
func New(src, file string, sink *diag.Sink) *Lexer {
	return &Lexer{source: src, file: file, line: 1, column: 1, sink: sink}
}

// ScanTokens consumes the whole source and returns its tokens, terminated
// by an explicit EOF token.
func (l *Lexer) ScanTokens() []token.Token {
	for !l.isAtEnd() {
		l.skipWhitespaceAndComments()
		if l.isAtEnd() {
			break
		}
		l.start = l.current
		l.startLine, l.startColumn = l.line, l.column
		l.scanToken()
	}
	l.tokens = append(l.tokens, token.Token{Kind: token.EOF, File: l.file, Line: l.line, Column: l.column})
	return l.tokens
}

func (l *Lexer) isAtEnd() bool { return l.current >= len(l.source) }

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.current]
}

func (l *Lexer) peekAt(offset int) byte {
	if l.current+offset >= len(l.source) {
		return 0
	}
	return l.source[l.current+offset]
}

func (l *Lexer) advance() byte {
	c := l.source[l.current]
	l.current++
	if c == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return c
}

func (l *Lexer) match(c byte) bool {
	if l.peek() != c {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) addToken(kind token.Kind) {
	l.tokens = append(l.tokens, token.Token{
		Kind:   kind,
		Lexeme: l.source[l.start:l.current],
		File:   l.file,
		Line:   l.startLine,
		Column: l.startColumn,
	})
}

func (l *Lexer) errorf(format string, args ...interface{}) {
	l.sink.Add(diag.New(diag.Lex, diag.Location{File: l.file, Line: l.startLine, Column: l.startColumn}, format, args...))
}

// skipWhitespaceAndComments consumes whitespace, line comments ("//") and
// block comments ("/* */", not nested, per spec §4.2), plus `# <n> "file"`
// line-directive markers left behind by the preprocessor.
func (l *Lexer) skipWhitespaceAndComments() {
	for !l.isAtEnd() {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\v' || c == '\f':
			l.advance()
		case c == '/' && l.peekAt(1) == '/':
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		case c == '/' && l.peekAt(1) == '*':
			startLine, startCol := l.line, l.column
			l.advance()
			l.advance()
			closed := false
			for !l.isAtEnd() {
				if l.peek() == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				l.sink.Add(diag.New(diag.Lex, diag.Location{File: l.file, Line: startLine, Column: startCol}, "unterminated comment"))
			}
		case c == '#' && l.atLineStart() && l.looksLikeLineMarker():
			l.consumeLineMarker()
		default:
			return
		}
	}
}

// atLineStart reports whether current is the first non-space character on
// its physical line (line markers are always line-initial).
func (l *Lexer) atLineStart() bool {
	i := l.current - 1
	for i >= 0 {
		c := l.source[i]
		if c == '\n' {
			return true
		}
		if c != ' ' && c != '\t' {
			return false
		}
		i--
	}
	return true
}

func (l *Lexer) looksLikeLineMarker() bool {
	i := l.current + 1
	for i < len(l.source) && (l.source[i] == ' ' || l.source[i] == '\t') {
		i++
	}
	return i < len(l.source) && l.source[i] >= '0' && l.source[i] <= '9'
}

// consumeLineMarker parses `# <n> "file" [flags...]` and resets the
// tracked line/file so subsequent diagnostics point at original source.
func (l *Lexer) consumeLineMarker() {
	lineStart := l.current
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
	rest := l.source[lineStart+1 : l.current] // skip the leading '#'
	fields := strings.Fields(rest)
	if len(fields) >= 1 {
		if n, ok := parseDecimal(fields[0]); ok {
			// the marker's own newline, consumed next, advances to line n
			l.line = n - 1
			l.column = 1
		}
	}
	if len(fields) >= 2 && strings.HasPrefix(fields[1], "\"") {
		name := strings.Trim(fields[1], "\"")
		l.file = name
	}
}

func parseDecimal(s string) (int, bool) {
	n := 0
	if len(s) == 0 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func (l *Lexer) scanToken() {
	c := l.advance()

	switch {
	case c == 'L' && (l.peek() == '\'' || l.peek() == '"'):
		l.scanWideLiteral()
		return
	case isAlpha(c):
		l.scanIdentifier()
		return
	case isDigit(c):
		l.scanNumber()
		return
	case c == '.' && isDigit(l.peek()):
		l.scanNumber()
		return
	case c == '"':
		l.scanString(token.STRING_LIT)
		return
	case c == '\'':
		l.scanChar(token.CHAR_LIT)
		return
	}

	// Greedy longest-match punctuation.
	rest := l.source[l.start:]
	for _, p := range token.Punctuators {
		if strings.HasPrefix(rest, p.Text) {
			for i := 1; i < len(p.Text); i++ {
				l.advance()
			}
			l.addToken(p.Kind)
			return
		}
	}
	if kind, ok := token.SingleCharKind(c); ok {
		l.addToken(kind)
		return
	}
	l.errorf("unexpected character %q", c)
	l.addToken(token.UNKNOWN)
}

func (l *Lexer) scanIdentifier() {
	for isAlnum(l.peek()) {
		l.advance()
	}
	text := l.source[l.start:l.current]
	if kw, ok := token.Keywords[text]; ok {
		l.addToken(kw)
		return
	}
	l.addToken(token.IDENT)
}

// scanNumber handles decimal/hex/octal integers and floating literals with
// the full suffix repertoire (spec §4.2): u/U, l/L in any order and count
// for integers; f/F/l/L for floats; trailing i/I marks an imaginary
// literal.
func (l *Lexer) scanNumber() {
	isFloat := l.source[l.start] == '.'
	if l.source[l.start] == '0' && (l.peek() == 'x' || l.peek() == 'X') {
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
	} else {
		for isDigit(l.peek()) {
			l.advance()
		}
		if l.peek() == '.' {
			isFloat = true
			l.advance()
			for isDigit(l.peek()) {
				l.advance()
			}
		}
		if l.peek() == 'e' || l.peek() == 'E' {
			isFloat = true
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			for isDigit(l.peek()) {
				l.advance()
			}
		}
	}
	imaginary := false
	if isFloat {
		for strings.ContainsRune("fFlL", rune(l.peek())) {
			l.advance()
		}
	} else {
		for strings.ContainsRune("uUlL", rune(l.peek())) {
			l.advance()
		}
	}
	if l.peek() == 'i' || l.peek() == 'I' {
		imaginary = true
		l.advance()
	}
	switch {
	case imaginary:
		l.addToken(token.IMAGINARY_LIT)
	case isFloat:
		l.addToken(token.FLOAT_LIT)
	default:
		l.addToken(token.INT_LIT)
	}
}

// scanEscape consumes one backslash escape sequence (the caller has
// already consumed the backslash) per spec §3's repertoire: \n \t \r \b \f
// \v \\ \' \" \xHH \OOO. Octal escapes greater than 255 are clamped with a
// warning, matching spec §4.2.
func (l *Lexer) scanEscape() {
	if l.isAtEnd() {
		return
	}
	c := l.advance()
	switch c {
	case 'n', 't', 'r', 'b', 'f', 'v', '\\', '\'', '"', '?', 'a':
		return
	case 'x':
		for isHexDigit(l.peek()) {
			l.advance()
		}
	case '0', '1', '2', '3', '4', '5', '6', '7':
		n := int(c - '0')
		for i := 0; i < 2 && l.peek() >= '0' && l.peek() <= '7'; i++ {
			n = n*8 + int(l.advance()-'0')
		}
		if n > 255 {
			l.sink.Add(diag.Warn(diag.Lex, diag.Location{File: l.file, Line: l.startLine, Column: l.startColumn},
				"octal escape sequence out of range, clamped to 255"))
		}
	default:
		l.sink.Add(diag.Warn(diag.Lex, diag.Location{File: l.file, Line: l.startLine, Column: l.startColumn},
			"unknown escape sequence '\\%c'", c))
	}
}

func (l *Lexer) scanString(kind token.Kind) {
	for !l.isAtEnd() && l.peek() != '"' {
		if l.peek() == '\\' {
			l.advance()
			l.scanEscape()
			continue
		}
		if l.peek() == '\n' {
			break
		}
		l.advance()
	}
	if l.isAtEnd() || l.peek() != '"' {
		l.errorf("unterminated string literal")
		l.addToken(token.UNKNOWN)
		return
	}
	l.advance()
	l.addToken(kind)
}

func (l *Lexer) scanChar(kind token.Kind) {
	for !l.isAtEnd() && l.peek() != '\'' {
		if l.peek() == '\\' {
			l.advance()
			l.scanEscape()
			continue
		}
		if l.peek() == '\n' {
			break
		}
		l.advance()
	}
	if l.isAtEnd() || l.peek() != '\'' {
		l.errorf("unterminated character literal")
		l.addToken(token.UNKNOWN)
		return
	}
	l.advance()
	l.addToken(kind)
}

// scanWideLiteral handles the L'...' / L"..." wide-character/string forms.
// The caller has already consumed 'L'; l.peek() is the opening quote.
func (l *Lexer) scanWideLiteral() {
	q := l.advance()
	if q == '"' {
		l.scanString(token.WSTRING_LIT)
	} else {
		l.scanChar(token.WCHAR_LIT)
	}
}
