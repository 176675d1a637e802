package mos6502_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octet/internal/codegen"
	"octet/internal/target/mos6502"
)

func compiler(t *testing.T) *codegen.Compiler {
	t.Helper()
	c, err := codegen.NewCompiler(mos6502.New())
	require.NoError(t, err)
	return c
}

func hasPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func TestNewIsValid(t *testing.T) {
	arch := mos6502.New()
	require.NoError(t, arch.Validate())
	assert.Equal(t, codegen.PassViaPointer, arch.Passing)
	assert.Equal(t, "zw0", arch.WordReturn.Name())
	for _, b := range arch.ByteRegisters {
		assert.NotEqual(t, "y", b.Name())
	}
	assert.Equal(t, ">buf", arch.AddressByte("buf", true))
}

func TestGenerateDefinesZeroPage(t *testing.T) {
	g := codegen.NewGlobal("g", codegen.ByteType)
	fn := codegen.NewFunction("main", nil)
	fn.Load(codegen.NewVariable(g), codegen.NewInteger(codegen.ByteType, 3))
	fn.Return(nil)

	var buf bytes.Buffer
	require.NoError(t, compiler(t).Generate(&buf, &codegen.Program{
		Name:      "p",
		Globals:   []*codegen.Variable{g},
		Functions: []*codegen.Function{fn},
	}))
	out := buf.String()
	for _, want := range []string{"zp0 = $e0\n", "zp7 = $e7\n", "zt = $e8\n", "main:\n", "\tlda #3\n", "\tsta g\n", "\trts\n", "g:\t.res 1\n"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "zp0 = $e0"), strings.Index(out, "main:"))
}

func TestIndirectLoadIndexesWithY(t *testing.T) {
	dst := codegen.NewGlobal("dst", codegen.ByteType)
	fn := codegen.NewFunction("f", nil)
	p := fn.AddVariable("p", codegen.PointerType)
	fn.Load(codegen.NewVariable(dst), codegen.NewIndirect(codegen.ByteType, p, 2))
	fn.Return(nil)

	lines, err := compiler(t).LowerFunction(fn)
	require.NoError(t, err)
	assert.Contains(t, lines, "\tldy #2")
	assert.Contains(t, lines, "\tlda (zw0),y")
}

func TestCallPassesBytesInAAndX(t *testing.T) {
	callee := codegen.NewFunction("callee", nil)
	callee.AddParameter("x", codegen.ByteType)
	callee.AddParameter("y", codegen.ByteType)
	fn := codegen.NewFunction("f", nil)
	fn.Call(callee, nil, codegen.NewInteger(codegen.ByteType, 1), codegen.NewInteger(codegen.ByteType, 2))
	fn.Return(nil)

	lines, err := compiler(t).LowerFunction(fn)
	require.NoError(t, err)
	assert.Contains(t, lines, "\tlda #1")
	assert.Contains(t, lines, "\tldx #2")
	assert.Contains(t, lines, "\tjsr callee")
}

func TestUnsignedBranchIsLong(t *testing.T) {
	fn := codegen.NewFunction("f", nil)
	x := fn.AddVariable("x", codegen.ByteType)
	yes := fn.CreateNamedAnchor("yes")
	fn.CompareJump(codegen.CondLess, codegen.NewVariable(x), codegen.NewInteger(codegen.ByteType, 10), yes)
	fn.Return(nil)
	fn.PlaceAnchor(yes)
	fn.Return(nil)

	lines, err := compiler(t).LowerFunction(fn)
	require.NoError(t, err)
	assert.Contains(t, lines, "\tcmp #10")
	assert.True(t, hasPrefix(lines, "\tbcs f_S"), "%v", lines)
	assert.Contains(t, lines, "\tjmp f_yes")
}

func TestSignedBranchIsUnsupported(t *testing.T) {
	fn := codegen.NewFunction("f", nil)
	x := fn.AddVariable("x", codegen.SignedByteType)
	yes := fn.CreateNamedAnchor("yes")
	fn.CompareJump(codegen.CondLess, codegen.NewVariable(x), codegen.NewInteger(codegen.SignedByteType, 0), yes)
	fn.PlaceAnchor(yes)
	fn.Return(nil)

	_, err := compiler(t).LowerFunction(fn)
	require.Error(t, err)
	assert.True(t, codegen.IsInternal(err))
	assert.Contains(t, err.Error(), "not supported on 6502")
}
