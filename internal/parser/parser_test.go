package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octet/internal/ast"
	"octet/internal/lexer"
	"octet/internal/parser"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func parseInput(t *testing.T, input string) *ast.Listing {
	t.Helper()
	tokens, lexErrs := lexer.Lex(input)
	require.Empty(t, lexErrs)
	listing, parseErrs := parser.Parse(tokens)
	require.Empty(t, parseErrs)
	return listing
}

func parseExpectErrors(t *testing.T, input string) (*ast.Listing, []parser.ParseError) {
	t.Helper()
	tokens, _ := lexer.Lex(input)
	return parser.Parse(tokens)
}

func body(t *testing.T, input string) []ast.Stmt {
	t.Helper()
	listing := parseInput(t, "func f()\n"+input+"\nend\n")
	require.Len(t, listing.Functions, 1)
	return listing.Functions[0].Body
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func TestParseGlobals(t *testing.T) {
	listing := parseInput(t, "var g byte\nvar w word in hl\n")
	require.Len(t, listing.Globals, 2)
	assert.Equal(t, &ast.VarDecl{Name: "g", Type: "byte", Pos: ast.Position{Line: 1, Column: 1}}, listing.Globals[0])
	assert.Equal(t, "hl", listing.Globals[1].Register)
}

func TestParseFunctionHeader(t *testing.T) {
	listing := parseInput(t, `
func add(x byte, y byte in c, z word in mem) byte
    var t byte
    var k byte in b
    return t
end
`)
	require.Len(t, listing.Functions, 1)
	fn := listing.Functions[0]
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, "byte", fn.Result)
	require.Len(t, fn.Params, 3)
	assert.Equal(t, "x", fn.Params[0].Name)
	assert.Empty(t, fn.Params[0].Register)
	assert.Equal(t, "c", fn.Params[1].Register)
	assert.True(t, fn.Params[2].Memory)
	assert.Equal(t, "word", fn.Params[2].Type)
	require.Len(t, fn.Locals, 2)
	assert.Equal(t, "b", fn.Locals[1].Register)
	require.Len(t, fn.Body, 1)
}

func TestParseVoidFunction(t *testing.T) {
	listing := parseInput(t, "func main()\nreturn\nend")
	fn := listing.Functions[0]
	assert.Empty(t, fn.Result)
	assert.Empty(t, fn.Params)
	ret, ok := fn.Body[0].(*ast.ReturnStmt)
	require.True(t, ok)
	assert.Nil(t, ret.Value)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func TestParseAssignments(t *testing.T) {
	stmts := body(t, "x = 10\ny = x + 0x20\n[p+2] = y\nz = [p-1]\nw = @table\n%a = x ^ y")
	require.Len(t, stmts, 6)

	a := stmts[0].(*ast.AssignStmt)
	assert.Equal(t, "x", a.Dest.String())
	assert.Equal(t, &ast.IntLit{Value: 10, Pos: ast.Position{Line: 2, Column: 5}}, a.Value)

	bin := stmts[1].(*ast.AssignStmt).Value.(*ast.BinaryExpr)
	assert.Equal(t, "+", bin.Op)
	assert.Equal(t, 32, bin.Right.(*ast.IntLit).Value)

	deref := stmts[2].(*ast.AssignStmt).Dest.(*ast.Deref)
	assert.Equal(t, "p", deref.Pointer)
	assert.Equal(t, 2, deref.Offset)
	assert.Equal(t, "[p+2]", deref.String())

	assert.Equal(t, -1, stmts[3].(*ast.AssignStmt).Value.(*ast.Deref).Offset)
	assert.Equal(t, "@table", stmts[4].(*ast.AssignStmt).Value.(ast.Operand).String())

	reg := stmts[5].(*ast.AssignStmt)
	assert.Equal(t, "%a", reg.Dest.String())
	assert.Equal(t, "^", reg.Value.(*ast.BinaryExpr).Op)
}

func TestParseCalls(t *testing.T) {
	stmts := body(t, "g = add(i, 3)\nreset()\nshow(-1, [p])")
	require.Len(t, stmts, 3)

	call := stmts[0].(*ast.AssignStmt).Value.(*ast.CallExpr)
	assert.Equal(t, "add(i, 3)", call.String())

	bare := stmts[1].(*ast.CallStmt)
	assert.Equal(t, "reset", bare.Call.Name)
	assert.Empty(t, bare.Call.Args)

	args := stmts[2].(*ast.CallStmt).Call.Args
	assert.Equal(t, -1, args[0].(*ast.IntLit).Value)
	assert.Equal(t, "[p]", args[1].String())
}

func TestParseControlFlow(t *testing.T) {
	stmts := body(t, "top:\nif i != 0 goto top\nif x <= y goto done\nloop i goto top\ngoto done\ndone:\nreturn x")
	require.Len(t, stmts, 7)

	assert.Equal(t, "top", stmts[0].(*ast.LabelStmt).Name)
	cond := stmts[1].(*ast.IfGotoStmt)
	assert.Equal(t, "!=", cond.Op)
	assert.Equal(t, "top", cond.Label)
	assert.Equal(t, "<=", stmts[2].(*ast.IfGotoStmt).Op)
	loop := stmts[3].(*ast.LoopStmt)
	assert.Equal(t, "i", loop.Counter.String())
	assert.Equal(t, "done", stmts[4].(*ast.GotoStmt).Label)
	assert.Equal(t, "x", stmts[6].(*ast.ReturnStmt).Value.String())
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestParseErrorsRecoverPerLine(t *testing.T) {
	listing, errs := parseExpectErrors(t, "func f()\nx = \nif x goto l\ny = 1\nend\n")
	require.Len(t, errs, 2)
	assert.Equal(t, 2, errs[0].Line)
	assert.Contains(t, errs[1].Message, "comparison operator")
	require.Len(t, listing.Functions, 1)
	require.Len(t, listing.Functions[0].Body, 1)
}

func TestParseMissingEnd(t *testing.T) {
	_, errs := parseExpectErrors(t, "func f()\nreturn\n")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "missing 'end' of function f")
}

func TestParseTopLevelGarbage(t *testing.T) {
	listing, errs := parseExpectErrors(t, "x = 1\nvar g byte\n")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "expected var or func")
	assert.Len(t, listing.Globals, 1)
}

func TestParseTrailingTokens(t *testing.T) {
	_, errs := parseExpectErrors(t, "var g byte extra\n")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "expected end of line")
}
