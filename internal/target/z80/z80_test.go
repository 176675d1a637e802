package z80_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"octet/internal/codegen"
	"octet/internal/target/z80"
)

func lower(t *testing.T, arch *codegen.Architecture, fn *codegen.Function) []string {
	t.Helper()
	c, err := codegen.NewCompiler(arch)
	require.NoError(t, err)
	lines, err := c.LowerFunction(fn)
	require.NoError(t, err)
	return lines
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
	arch := z80.New()
	require.NoError(t, arch.Validate())
	assert.Equal(t, "a", arch.ByteReturn.Name())
	assert.Equal(t, "hl", arch.WordReturn.Name())
	assert.Equal(t, codegen.PassDirect, arch.Passing)
	assert.Equal(t, "low(buf)", arch.AddressByte("buf", false))
	assert.Equal(t, "high(buf)", arch.AddressByte("buf", true))
}

func TestByteCopyUsesAccumulator(t *testing.T) {
	src := codegen.NewGlobal("src", codegen.ByteType)
	dst := codegen.NewGlobal("dst", codegen.ByteType)
	fn := codegen.NewFunction("f", nil)
	fn.Load(codegen.NewVariable(dst), codegen.NewVariable(src))
	fn.Return(nil)

	lines := lower(t, z80.New(), fn)
	assert.Equal(t, []string{"f:", "\tld a,(src)", "\tld (dst),a", "\tret"}, lines)
}

func TestWordCopyIsDirect(t *testing.T) {
	src := codegen.NewGlobal("src", codegen.WordType)
	dst := codegen.NewGlobal("dst", codegen.WordType)
	fn := codegen.NewFunction("f", nil)
	fn.Load(codegen.NewVariable(dst), codegen.NewVariable(src))
	fn.Return(nil)

	lines := lower(t, z80.New(), fn)
	assert.Contains(t, lines, "\tld hl,(src)")
	assert.Contains(t, lines, "\tld (dst),hl")
}

func TestIndirectLoadThroughHL(t *testing.T) {
	dst := codegen.NewGlobal("dst", codegen.ByteType)
	fn := codegen.NewFunction("f", nil)
	p := fn.AddVariable("p", codegen.PointerType)
	fn.Load(codegen.NewVariable(dst), codegen.NewIndirect(codegen.ByteType, p, 0))
	fn.Return(nil)

	lines := lower(t, z80.New(), fn)
	assert.Contains(t, lines, "\tld hl,(f_p)")
	assert.True(t, hasPrefix(lines, "\tld a,(hl)"), "%v", lines)
}

func TestWordParametersSwapWithExchange(t *testing.T) {
	arch := z80.New()
	hl, de := arch.WordRegisters[0], arch.WordRegisters[1]
	callee := codegen.NewFunction("callee", nil)
	callee.AddRegisterParameter("x", codegen.WordType, hl)
	callee.AddRegisterParameter("y", codegen.WordType, de)

	fn := codegen.NewFunction("f", nil)
	u := fn.AddPinnedVariable("u", codegen.WordType, de)
	w := fn.AddPinnedVariable("w", codegen.WordType, hl)
	fn.Call(callee, nil, codegen.NewVariable(u), codegen.NewVariable(w))
	fn.Return(nil)

	lines := lower(t, arch, fn)
	assert.Contains(t, lines, "\tex de,hl")
	assert.Contains(t, lines, "\tcall callee")
}

func TestCompareJump(t *testing.T) {
	tests := []struct {
		name   string
		t      *codegen.Type
		cond   codegen.Condition
		branch string
	}{
		{"unsigned less", codegen.ByteType, codegen.CondLess, "\tjp c,f_yes"},
		{"unsigned greater or equal", codegen.ByteType, codegen.CondGreaterEqual, "\tjp nc,f_yes"},
		{"equal", codegen.ByteType, codegen.CondEqual, "\tjp z,f_yes"},
		{"signed less", codegen.SignedByteType, codegen.CondLess, "\tjp pe,"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := codegen.NewFunction("f", nil)
			x := fn.AddVariable("x", tt.t)
			y := fn.AddVariable("y", tt.t)
			yes := fn.CreateNamedAnchor("yes")
			fn.CompareJump(tt.cond, codegen.NewVariable(x), codegen.NewVariable(y), yes)
			fn.Return(nil)
			fn.PlaceAnchor(yes)
			fn.Return(nil)

			lines := lower(t, z80.New(), fn)
			assert.True(t, hasPrefix(lines, tt.branch), "%v", lines)
			assert.Contains(t, lines, "f_yes:")
		})
	}
}

func TestStorage(t *testing.T) {
	arch := z80.New()
	s, ok := arch.Flow.(codegen.StorageEmitter)
	require.True(t, ok)
	assert.Equal(t, "buf:\tds 4", s.Storage("buf", 4))
}
