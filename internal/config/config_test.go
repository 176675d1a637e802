package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OCTET_TARGET", "")
	t.Setenv("OCTET_BUILD_DIR", "")
	t.Setenv("OCTET_DEBUG", "")
	t.Setenv("OCTET_TRACE", "")
	t.Setenv("OCTET_LOG_LEVEL", "")
	t.Setenv("OCTET_ASSEMBLER", "")

	cfg := Load()
	assert.Equal(t, DefaultTarget, cfg.Target)
	assert.Equal(t, DefaultBuildDir, cfg.BuildDir)
	assert.False(t, cfg.Debug)
	assert.False(t, cfg.Trace)
	assert.Empty(t, cfg.LogLevel)
	assert.Empty(t, cfg.Assembler)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("OCTET_TARGET", "6502")
	t.Setenv("OCTET_BUILD_DIR", "/tmp/out")
	t.Setenv("OCTET_DEBUG", "1")
	t.Setenv("OCTET_TRACE", "true")
	t.Setenv("OCTET_LOG_LEVEL", "info")
	t.Setenv("OCTET_ASSEMBLER", "ca65 {in} -o {out}")

	cfg := Load()
	assert.Equal(t, "6502", cfg.Target)
	assert.Equal(t, "/tmp/out", cfg.BuildDir)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.Trace)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "ca65 {in} -o {out}", cfg.Assembler)
}
