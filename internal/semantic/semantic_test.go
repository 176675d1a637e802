package semantic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octet/internal/ast"
	"octet/internal/lexer"
	"octet/internal/parser"
	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func registers() *reg.File {
	f := reg.NewFile(true)
	f.Byte("a")
	b, c := f.Byte("b"), f.Byte("c")
	h, l := f.Byte("h"), f.Byte("l")
	f.Pair("bc", b, c)
	f.Pair("hl", h, l, reg.Pointer())
	return f
}

func parse(t *testing.T, src string) *ast.Listing {
	t.Helper()
	tokens, lexErrs := lexer.Lex(src)
	require.Empty(t, lexErrs)
	listing, errs := parser.Parse(tokens)
	require.Empty(t, errs)
	return listing
}

func analyze(t *testing.T, src string) []Diagnostic {
	t.Helper()
	return Analyze(parse(t, src), registers())
}

func errorsOnly(diags []Diagnostic) []string {
	var out []string
	for _, d := range diags {
		if d.Severity == Error {
			out = append(out, d.Message)
		}
	}
	return out
}

func warningsOnly(diags []Diagnostic) []string {
	var out []string
	for _, d := range diags {
		if d.Severity == Warning {
			out = append(out, d.Message)
		}
	}
	return out
}

func requireError(t *testing.T, diags []Diagnostic, fragment string) {
	t.Helper()
	for _, msg := range errorsOnly(diags) {
		if strings.Contains(msg, fragment) {
			return
		}
	}
	t.Fatalf("no error containing %q in %v", fragment, diags)
}

// ---------------------------------------------------------------------------
// Valid listings
// ---------------------------------------------------------------------------

func TestValidListing(t *testing.T) {
	diags := analyze(t, `
var g byte
func add(x byte, y byte in c) byte
    var t byte
    t = x + y
    return t
end
func main()
    var i byte
    var p ptr
    i = 10
top:
    [p+2] = i
    g = add(i, 3)
    if i != 0 goto top
    loop i goto top
    return
end
`)
	assert.Empty(t, diags)
	assert.False(t, HasErrors(diags))
}

func TestFunctionsMayBeCalledBeforeDefinition(t *testing.T) {
	diags := analyze(t, "func main()\nlater()\nend\nfunc later()\nend\n")
	assert.Empty(t, errorsOnly(diags))
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func TestDeclarationErrors(t *testing.T) {
	diags := analyze(t, `
var g byte
var g word
var hl byte
var q float
func f(x byte in hl, y word in zz, z word in hl, w word in bc)
    var k byte in bc
end
`)
	requireError(t, diags, `"g" already declared`)
	requireError(t, diags, `cannot use register name "hl"`)
	requireError(t, diags, `unknown type "float"`)
	requireError(t, diags, "register hl holds 2 bytes, type byte needs 1")
	requireError(t, diags, `unknown register "zz"`)
	requireError(t, diags, "register bc holds 2 bytes")
}

func TestOverlappingParameterRegisters(t *testing.T) {
	diags := analyze(t, "func f(x word in bc, y byte in c)\nend\n")
	requireError(t, diags, "parameter register c overlaps bc")
}

func TestPinnedGlobalRejected(t *testing.T) {
	diags := analyze(t, "var g byte in a\n")
	requireError(t, diags, `global "g" cannot be pinned`)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func TestUndefinedNames(t *testing.T) {
	diags := analyze(t, "func f()\nx = 1\ngoto nowhere\nnope()\nend\n")
	requireError(t, diags, `undefined variable "x"`)
	requireError(t, diags, `undefined label "nowhere"`)
	requireError(t, diags, `undefined function "nope"`)
}

func TestWidthMismatches(t *testing.T) {
	diags := analyze(t, `
func f()
    var b byte
    var w word
    b = w
    b = w + b
    if b < w goto l
l:
    loop w goto l
end
`)
	requireError(t, diags, "cannot assign a 2-byte value to a 1-byte destination")
	requireError(t, diags, "operands of + differ in width")
	requireError(t, diags, "comparison of 1-byte and 2-byte values")
	requireError(t, diags, "loop counter must be a byte")
}

func TestIntegersAndDerefsTakeWidthFromContext(t *testing.T) {
	diags := analyze(t, `
func f(p ptr)
    var w word
    var b byte
    w = 0x1234
    b = [p+1]
    w = [p]
    w = @table
end
`)
	assert.Empty(t, errorsOnly(diags))
}

func TestDerefThroughByteRejected(t *testing.T) {
	diags := analyze(t, "func f(b byte)\n[b] = 1\nend\n")
	requireError(t, diags, "b is not a pointer")
}

func TestAssignToConstant(t *testing.T) {
	diags := analyze(t, "func f()\n3 = 4\n@x = 1\nend\n")
	requireError(t, diags, "cannot assign to 3")
	requireError(t, diags, "cannot assign to @x")
}

func TestCallChecks(t *testing.T) {
	diags := analyze(t, `
func two(x byte, y word) byte
    return x
end
func none()
end
func main()
    var b byte
    two(b)
    b = none()
    b = two(b, b)
    b = main
end
`)
	requireError(t, diags, "two takes 2 arguments, got 1")
	requireError(t, diags, "none returns no value")
	requireError(t, diags, "argument 2 of two: 1-byte value for a word parameter")
	requireError(t, diags, `"main" is not a variable`)
}

func TestReturnChecks(t *testing.T) {
	diags := analyze(t, `
func v()
    return 1
end
func b() byte
    return
end
func w() word
    var x byte
    return x
end
`)
	requireError(t, diags, "function v returns no value")
	requireError(t, diags, "function b must return a byte")
	requireError(t, diags, "returning a 1-byte value from a word function")
}

func TestDuplicateLabel(t *testing.T) {
	diags := analyze(t, "func f()\nl:\nl:\ngoto l\nend\n")
	requireError(t, diags, `label "l" already defined`)
}

// ---------------------------------------------------------------------------
// Warnings
// ---------------------------------------------------------------------------

func TestWarnings(t *testing.T) {
	diags := analyze(t, `
func f() byte
    var unused byte
    var x byte
    x = 1
spare:
    if x == 1 goto spare2
spare2:
end
`)
	assert.Empty(t, errorsOnly(diags))
	warnings := warningsOnly(diags)
	assert.Contains(t, warnings, `variable "unused" is never used`)
	assert.Contains(t, warnings, `label "spare" is never used`)
	assert.Contains(t, warnings, "function f ends without returning a value")
	assert.NotContains(t, warnings, `label "spare2" is never used`)
}

func TestDiagnosticFormatting(t *testing.T) {
	d := Diagnostic{Message: "boom", Pos: ast.Position{Line: 3, Column: 7}, Severity: Warning}
	assert.Equal(t, "line 3, col 7: warning: boom", d.Error())
	assert.Equal(t, "unknown", Severity(9).String())
}
