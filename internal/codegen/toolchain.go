package codegen

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"octet/internal/log"
)

// ---------------------------------------------------------------------------
// Toolchain: assembly file output and external assembler invocation
// ---------------------------------------------------------------------------

// Toolchain writes the generated assembly and optionally hands it to an
// external cross-assembler.
type Toolchain struct {
	BuildDir string
	AsmFile  string // path to the assembly file
	ObjFile  string // path to the assembler output
	// Assembler is the command line of the external assembler. The words
	// {in} and {out} are replaced by the assembly and output paths; without
	// them the paths are appended as "<in> -o <out>".
	Assembler string
	Logger    *slog.Logger
}

// NewToolchain creates a Toolchain writing into buildDir.
func NewToolchain(buildDir, baseName string) *Toolchain {
	return &Toolchain{
		BuildDir: buildDir,
		AsmFile:  filepath.Join(buildDir, baseName+".asm"),
		ObjFile:  filepath.Join(buildDir, baseName+".bin"),
	}
}

// WriteAssembly writes the assembly text, creating the build directory.
func (tc *Toolchain) WriteAssembly(asm string) error {
	if err := os.MkdirAll(tc.BuildDir, 0755); err != nil {
		return fmt.Errorf("cannot create build directory %s: %w", tc.BuildDir, err)
	}
	return os.WriteFile(tc.AsmFile, []byte(asm), 0644)
}

// Assemble runs the configured assembler on the assembly file.
func (tc *Toolchain) Assemble() error {
	args := tc.assemblerArgs()
	if len(args) == 0 {
		return fmt.Errorf("no assembler configured")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return fmt.Errorf("assembler %s not found: %w", args[0], err)
	}
	return tc.runCmd(exec.Command(args[0], args[1:]...), "assemble")
}

func (tc *Toolchain) assemblerArgs() []string {
	fields := strings.Fields(tc.Assembler)
	substituted := false
	for i, f := range fields {
		switch f {
		case "{in}":
			fields[i] = tc.AsmFile
			substituted = true
		case "{out}":
			fields[i] = tc.ObjFile
			substituted = true
		}
	}
	if len(fields) > 0 && !substituted {
		fields = append(fields, tc.AsmFile, "-o", tc.ObjFile)
	}
	return fields
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (tc *Toolchain) runCmd(cmd *exec.Cmd, stage string) error {
	logger := tc.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger.Debug("toolchain", "stage", stage, "command", strings.Join(cmd.Args, " "))

	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.Stdout = os.Stdout

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %v\n%s", stage, err, stderr.String())
	}
	return nil
}
