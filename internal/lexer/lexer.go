package lexer

import (
	"fmt"
	"strconv"
)

const (
	// Special
	EOF     = "EOF"
	ILLEGAL = "ILLEGAL"
	NEWLINE = "NEWLINE" // statements end at line breaks

	// Literals
	IDENT = "IDENT" // identifiers: main, counter, hl, …
	INT   = "INT"   // integer literals: 0, 42, 0xFF, …

	// Keywords
	VAR    = "VAR"
	FUNC   = "FUNC"
	END    = "END"
	RETURN = "RETURN"
	IF     = "IF"
	GOTO   = "GOTO"
	LOOP   = "LOOP"
	IN     = "IN"
	MEM    = "MEM"

	// Delimiters
	LPAREN   = "LPAREN"   // (
	RPAREN   = "RPAREN"   // )
	LBRACKET = "LBRACKET" // [
	RBRACKET = "RBRACKET" // ]
	COLON    = "COLON"    // :
	COMMA    = "COMMA"    // ,
	AT       = "AT"       // @
	PERCENT  = "PERCENT"  // %

	// Operators
	ASSIGN    = "ASSIGN"    // =
	PLUS      = "PLUS"      // +
	MINUS     = "MINUS"     // -
	AMPERSAND = "AMPERSAND" // &
	PIPE      = "PIPE"      // |
	CARET     = "CARET"     // ^

	// Comparison operators
	EQ  = "EQ"  // ==
	NEQ = "NEQ" // !=
	LT  = "LT"  // <
	GT  = "GT"  // >
	LTE = "LTE" // <=
	GTE = "GTE" // >=
)

// keywords maps reserved words to their token types.
var keywords = map[string]string{
	"var":    VAR,
	"func":   FUNC,
	"end":    END,
	"return": RETURN,
	"if":     IF,
	"goto":   GOTO,
	"loop":   LOOP,
	"in":     IN,
	"mem":    MEM,
}

// Token represents a single lexical token produced by the lexer.
type Token struct {
	Type   string
	Value  string
	Line   int
	Column int
}

// LexError represents a recoverable error encountered during lexing.
type LexError struct {
	Message string
	Lexeme  string
	Line    int
	Column  int
}

func (e LexError) Error() string {
	return fmt.Sprintf("line %d, col %d: %s (got %q)", e.Line, e.Column, e.Message, e.Lexeme)
}

// Lex splits a listing into tokens. Line breaks are significant and come out
// as NEWLINE tokens, collapsed so that blank and comment-only lines produce
// none. Errors are collected and lexing continues.
func Lex(input string) ([]Token, []LexError) {
	s := &scanner{src: input, line: 1, col: 1}
	for s.pos < len(s.src) {
		s.next()
	}
	s.endLine()
	s.tokens = append(s.tokens, Token{EOF, "", s.line, s.col})
	return s.tokens, s.errs
}

// ---------------------------------------------------------------------------
// Scanner
// ---------------------------------------------------------------------------

// scanner holds the position of the next unread byte.
type scanner struct {
	src       string
	pos       int
	line, col int

	tokens []Token
	errs   []LexError
}

func (s *scanner) peek(k int) byte {
	if s.pos+k < len(s.src) {
		return s.src[s.pos+k]
	}
	return 0
}

func (s *scanner) skip(n int) {
	s.pos += n
	s.col += n
}

// span consumes bytes while ok holds.
func (s *scanner) span(ok func(byte) bool) {
	for s.pos < len(s.src) && ok(s.src[s.pos]) {
		s.skip(1)
	}
}

func (s *scanner) emit(typ, text string, col int) {
	s.tokens = append(s.tokens, Token{Type: typ, Value: text, Line: s.line, Column: col})
}

func (s *scanner) fail(msg, lexeme string, col int) {
	s.errs = append(s.errs, LexError{Message: msg, Lexeme: lexeme, Line: s.line, Column: col})
}

// endLine emits a NEWLINE unless the line produced no tokens.
func (s *scanner) endLine() {
	if n := len(s.tokens); n > 0 && s.tokens[n-1].Type != NEWLINE {
		s.emit(NEWLINE, "", s.col)
	}
}

func (s *scanner) next() {
	ch, col := s.src[s.pos], s.col
	switch {
	case ch == '\n':
		s.endLine()
		s.pos++
		s.line, s.col = s.line+1, 1
	case ch == ' ' || ch == '\t' || ch == '\r':
		s.skip(1)
	case ch == ';' || (ch == '/' && s.peek(1) == '/'):
		s.span(func(b byte) bool { return b != '\n' })
	case isDigit(ch):
		s.number()
	case isIdentStart(ch):
		start := s.pos
		s.span(isIdentPart)
		word := s.src[start:s.pos]
		typ, ok := keywords[word]
		if !ok {
			typ = IDENT
		}
		s.emit(typ, word, col)
	default:
		if text := s.src[s.pos:min(s.pos+2, len(s.src))]; len(text) == 2 && pairs[text] != "" {
			s.emit(pairs[text], text, col)
			s.skip(2)
		} else if typ, ok := singles[ch]; ok {
			s.emit(typ, string(ch), col)
			s.skip(1)
		} else {
			s.fail("unexpected character", string(ch), col)
			s.skip(1)
		}
	}
}

// number scans a decimal or 0x-prefixed hexadecimal literal. Letters glued to
// the digits are taken into the lexeme so that 12ab is one bad literal.
func (s *scanner) number() {
	start, col := s.pos, s.col
	if s.peek(0) == '0' && (s.peek(1) == 'x' || s.peek(1) == 'X') {
		s.skip(2)
		s.span(isHexDigit)
	} else {
		s.span(isDigit)
	}
	s.span(isIdentPart)
	text := s.src[start:s.pos]
	if _, err := ParseInt(text); err != nil {
		s.fail("malformed integer literal", text, col)
		return
	}
	s.emit(INT, text, col)
}

// ParseInt converts the text of an INT token. Values are limited to 16 bits.
func ParseInt(text string) (int, error) {
	base, digits := 10, text
	if len(text) > 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		base, digits = 16, text[2:]
	}
	n, err := strconv.ParseUint(digits, base, 16)
	return int(n), err
}

// ---------------------------------------------------------------------------
// Character classes
// ---------------------------------------------------------------------------

var pairs = map[string]string{
	"==": EQ, "!=": NEQ, "<=": LTE, ">=": GTE,
}

var singles = map[byte]string{
	'(': LPAREN, ')': RPAREN, '[': LBRACKET, ']': RBRACKET,
	':': COLON, ',': COMMA, '@': AT, '%': PERCENT,
	'=': ASSIGN, '+': PLUS, '-': MINUS, '&': AMPERSAND, '|': PIPE, '^': CARET,
	'<': LT, '>': GT,
}

func isDigit(ch byte) bool { return '0' <= ch && ch <= '9' }

func isHexDigit(ch byte) bool {
	return isDigit(ch) || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isIdentPart(ch byte) bool { return isIdentStart(ch) || isDigit(ch) }
