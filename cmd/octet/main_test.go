package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listing = `
var total byte

func add(x byte, y byte) byte
    var s byte
    s = x + y
    return s
end

func main()
    var i byte
    i = 3
top:
    total = add(total, i)
    loop i goto top
    return
end
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, k := range []string{"OCTET_TARGET", "OCTET_BUILD_DIR", "OCTET_DEBUG", "OCTET_TRACE", "OCTET_LOG_LEVEL", "OCTET_ASSEMBLER"} {
		t.Setenv(k, "")
	}
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTargetsCommand(t *testing.T) {
	out, err := run(t, "targets")
	require.NoError(t, err)
	assert.Equal(t, "6502\nz80\n", out)
}

func TestRegsCommand(t *testing.T) {
	out, err := run(t, "regs", "--target", "6502")
	require.NoError(t, err)
	for _, want := range []string{"6502", "zw0", "via-pointer", "a x", "independent halves"} {
		assert.Contains(t, out, want)
	}
}

func TestRegsShowsAliasedHalves(t *testing.T) {
	out, err := run(t, "regs")
	require.NoError(t, err)
	assert.Contains(t, out, "z80")
	assert.Contains(t, out, "aliased halves")
}

func TestRegsUnknownTarget(t *testing.T) {
	_, err := run(t, "regs", "-t", "pdp11")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported target")
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sum.oct")
	require.NoError(t, os.WriteFile(src, []byte(listing), 0o644))

	out, err := run(t, "build", src, "--build-dir", filepath.Join(dir, "build"), "--dump-ir")
	require.NoError(t, err)
	asm := filepath.Join(dir, "build", "z80", "sum.asm")
	assert.Contains(t, out, "Assembly: "+asm)
	assert.Contains(t, out, "func add byte")

	data, err := os.ReadFile(asm)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\tcall add\n")
	assert.Contains(t, string(data), "total:\tds 1\n")
}

func TestBuildLogLevel(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sum.oct")
	require.NoError(t, os.WriteFile(src, []byte(listing), 0o644))

	out, err := run(t, "build", src, "--build-dir", dir, "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "level=DEBUG msg=\"lexing complete\"")
	assert.NotContains(t, out, "resolver round")

	out, err = run(t, "build", src, "--build-dir", dir, "--debug", "--log-level", "warn")
	require.NoError(t, err)
	assert.NotContains(t, out, "lexing complete")

	out, err = run(t, "build", src, "--build-dir", dir, "--log-level", "trace")
	require.NoError(t, err)
	assert.Contains(t, out, "level=TRACE msg=\"resolver round\"")
}

func TestBuildRejectsUnknownLogLevel(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sum.oct")
	require.NoError(t, os.WriteFile(src, []byte(listing), 0o644))

	_, err := run(t, "build", src, "--build-dir", dir, "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid level: loud")
}

func TestBuildReportsErrors(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.oct")
	require.NoError(t, os.WriteFile(src, []byte("func main()\n    x = 1\nend\n"), 0o644))

	_, err := run(t, "build", src, "--build-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Semantic errors:")
}

func TestBuildNeedsFile(t *testing.T) {
	_, err := run(t, "build")
	assert.Error(t, err)
}
