package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenTypes(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Type
	}
	return out
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	tokens, errs := Lex("var func end return if goto loop in mem foo _bar baz42")
	require.Empty(t, errs)
	assert.Equal(t, []string{
		VAR, FUNC, END, RETURN, IF, GOTO, LOOP, IN, MEM,
		IDENT, IDENT, IDENT, NEWLINE, EOF,
	}, tokenTypes(tokens))
	assert.Equal(t, "baz42", tokens[11].Value)
}

func TestIntegerLiterals(t *testing.T) {
	tokens, errs := Lex("0 42 0xFF 0X1a 65535")
	require.Empty(t, errs)
	for i, want := range []string{"0", "42", "0xFF", "0X1a", "65535"} {
		assert.Equal(t, INT, tokens[i].Type)
		assert.Equal(t, want, tokens[i].Value)
	}

	n, err := ParseInt("0X1a")
	require.NoError(t, err)
	assert.Equal(t, 26, n)
	n, err = ParseInt("010")
	require.NoError(t, err)
	assert.Equal(t, 10, n, "leading zeros are decimal")
}

func TestMalformedIntegers(t *testing.T) {
	_, errs := Lex("12ab 70000 0xZ")
	require.Len(t, errs, 3)
	assert.Equal(t, "12ab", errs[0].Lexeme)
	assert.Equal(t, "70000", errs[1].Lexeme)
	assert.Equal(t, 1, errs[2].Line)
}

func TestOperatorsAndDelimiters(t *testing.T) {
	tokens, errs := Lex("( ) [ ] : , @ % = + - & | ^ == != < > <= >=")
	require.Empty(t, errs)
	assert.Equal(t, []string{
		LPAREN, RPAREN, LBRACKET, RBRACKET, COLON, COMMA, AT, PERCENT,
		ASSIGN, PLUS, MINUS, AMPERSAND, PIPE, CARET,
		EQ, NEQ, LT, GT, LTE, GTE, NEWLINE, EOF,
	}, tokenTypes(tokens))
}

func TestNewlinesAndComments(t *testing.T) {
	src := "; header comment\n\nvar g byte ; trailing\n\n// another\nx = 1\n"
	tokens, errs := Lex(src)
	require.Empty(t, errs)
	assert.Equal(t, []string{
		VAR, IDENT, IDENT, NEWLINE,
		IDENT, ASSIGN, INT, NEWLINE,
		EOF,
	}, tokenTypes(tokens))
	assert.Equal(t, 3, tokens[0].Line)
	assert.Equal(t, 6, tokens[4].Line)
}

func TestPositions(t *testing.T) {
	tokens, errs := Lex("top:\n  [p+2] = i")
	require.Empty(t, errs)
	assert.Equal(t, 1, tokens[0].Column)
	lbracket := tokens[3]
	assert.Equal(t, LBRACKET, lbracket.Type)
	assert.Equal(t, 2, lbracket.Line)
	assert.Equal(t, 3, lbracket.Column)
}

func TestUnexpectedCharacter(t *testing.T) {
	tokens, errs := Lex("x = 1 $ 2 !")
	require.Len(t, errs, 2)
	assert.Equal(t, "$", errs[0].Lexeme)
	assert.Equal(t, 7, errs[0].Column)
	assert.Equal(t, "!", errs[1].Lexeme)
	assert.Contains(t, errs[0].Error(), "line 1, col 7")
	assert.Equal(t, []string{IDENT, ASSIGN, INT, INT, NEWLINE, EOF}, tokenTypes(tokens))
}
