// Package config reads the settings of the octet command from the
// environment. Command-line flags override what is read here.
package config

import (
	"github.com/xyproto/env/v2"
)

const (
	DefaultTarget   = "z80"
	DefaultBuildDir = "build"
)

// Config holds the settings shared by all commands.
type Config struct {
	// Target names the architecture to generate code for.
	Target string
	// BuildDir receives <target>/<name>.asm.
	BuildDir string
	// Debug enables debug logging.
	Debug bool
	// Trace enables per-round logging of the call parameter resolver.
	Trace bool
	// LogLevel names the log level (trace, debug, info, warn, error). When
	// set it wins over Debug and Trace.
	LogLevel string
	// Assembler is an optional command run on the generated file, with
	// {in} and {out} replaced by the input and output paths.
	Assembler string
}

// Load reads OCTET_TARGET, OCTET_BUILD_DIR, OCTET_DEBUG, OCTET_TRACE,
// OCTET_LOG_LEVEL and OCTET_ASSEMBLER.
func Load() Config {
	return Config{
		Target:    env.Str("OCTET_TARGET", DefaultTarget),
		BuildDir:  env.Str("OCTET_BUILD_DIR", DefaultBuildDir),
		Debug:     env.Bool("OCTET_DEBUG"),
		Trace:     env.Bool("OCTET_TRACE"),
		LogLevel:  env.Str("OCTET_LOG_LEVEL"),
		Assembler: env.Str("OCTET_ASSEMBLER"),
	}
}
