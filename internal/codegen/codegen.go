package codegen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"octet/internal/ast"
	"octet/internal/log"
	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// Compiler drives the per-instruction lowering of whole functions.
// ---------------------------------------------------------------------------

// Program is the unit handed to Generate: global variables and functions.
type Program struct {
	Name      string
	Globals   []*Variable
	Functions []*Function
}

// Compiler lowers IR functions for one architecture.
type Compiler struct {
	arch   *Architecture
	logger *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger used for lowering diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// NewCompiler validates arch and returns a compiler for it.
func NewCompiler(arch *Architecture, opts ...Option) (*Compiler, error) {
	if arch == nil {
		return nil, fmt.Errorf("no architecture")
	}
	if err := arch.Validate(); err != nil {
		return nil, fmt.Errorf("architecture %s: %w", arch.Name, err)
	}
	c := &Compiler{arch: arch, logger: log.Discard()}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = log.Discard()
	}
	return c, nil
}

func (c *Compiler) Arch() *Architecture { return c.arch }

// LowerFunction returns the assembly lines of fn. Internal errors raised while
// lowering are returned, not propagated as panics.
func (c *Compiler) LowerFunction(fn *Function) (lines []string, err error) {
	var ctx *Context
	defer recoverInternal(&err)

	fn.AssignParameters(c.arch)
	c.logger.Debug("lowering function", "function", fn.Name, "instructions", len(fn.Instructions()))

	entry := &prologue{function: fn}
	ctx = newContext(c.arch, fn, entry, -1, state{}, c.logger)
	c.arch.Flow.Label(ctx, fn.Label())
	entry.Build(ctx)
	in := ctx.commit()
	lines = append(lines, ctx.Lines()...)

	for _, instr := range fn.Instructions() {
		ctx = newContext(c.arch, fn, instr, instr.Address(), in, c.logger)
		if c.placeAnchors(ctx, fn, instr.Address()) {
			ctx.bindings, ctx.constants = nil, make(map[reg.Register]string)
		}
		instr.Build(ctx)
		in = ctx.commit()
		lines = append(lines, ctx.Lines()...)
		if c.logger.Enabled(context.Background(), log.LevelTrace) {
			c.logger.Log(context.Background(), log.LevelTrace, "instruction lowered",
				"function", fn.Name, "address", instr.Address(), "ir", instr.String(),
				"lines", len(ctx.Lines()), "changed", len(ctx.Changed()))
		}
	}

	ctx = newContext(c.arch, fn, nil, fn.NextAddress(), in, c.logger)
	c.placeAnchors(ctx, fn, fn.NextAddress())
	last := fn.NextAddress() - 1
	for _, o := range fn.Exit.Origins() {
		if o != last {
			c.arch.Flow.Label(ctx, fn.Exit.Label)
			break
		}
	}
	c.arch.Flow.Return(ctx)
	lines = append(lines, ctx.Lines()...)
	return lines, nil
}

// placeAnchors emits the labels of the anchors at address. It reports whether
// one of them is a jump target, in which case nothing is known about the
// registers there.
func (c *Compiler) placeAnchors(ctx *Context, fn *Function, address int) bool {
	reached := false
	for _, a := range fn.Anchors() {
		if a.Address != address {
			continue
		}
		c.arch.Flow.Label(ctx, a.Label)
		if len(a.Origins()) > 0 {
			reached = true
		}
	}
	return reached
}

// Generate writes the assembly of every function followed by the storage of
// all variables and parameter blocks.
func (c *Compiler) Generate(w io.Writer, p *Program) error {
	var buf bytes.Buffer
	if pe, ok := c.arch.Flow.(PreambleEmitter); ok {
		for _, l := range pe.Preamble() {
			buf.WriteString(l)
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
	}
	for _, fn := range p.Functions {
		lines, err := c.LowerFunction(fn)
		if err != nil {
			return fmt.Errorf("function %s: %w", fn.Name, err)
		}
		for _, l := range lines {
			buf.WriteString(l)
			buf.WriteByte('\n')
		}
		buf.WriteByte('\n')
	}

	for _, v := range p.Globals {
		c.writeStorage(&buf, v.Label, v.Type.ByteCount)
	}
	for _, fn := range p.Functions {
		if n := fn.ParameterBlockSize(); n > 0 {
			c.writeStorage(&buf, fn.ParameterBlock(), n)
		}
		for _, v := range fn.Variables() {
			if v.HasStorage() {
				c.writeStorage(&buf, v.Label, v.Type.ByteCount)
			}
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func (c *Compiler) writeStorage(buf *bytes.Buffer, label string, size int) {
	if s, ok := c.arch.Flow.(StorageEmitter); ok {
		buf.WriteString(s.Storage(label, size))
	} else {
		fmt.Fprintf(buf, "%s:\t; %d bytes", label, size)
	}
	buf.WriteByte('\n')
}

// ---------------------------------------------------------------------------
// Options controls the behaviour of the build pipeline.
// ---------------------------------------------------------------------------

// Options configures Build.
type Options struct {
	// Arch is the target architecture. Required.
	Arch *Architecture

	// BuildDir is the directory where all build artifacts are written.
	// Defaults to "build".
	BuildDir string

	// OutputName is the base name for the output files (without extension).
	// Defaults to the listing name or "output".
	OutputName string

	// Assembler, when set, is run on the written assembly file.
	Assembler string

	// AsmOnly stops after writing the assembly file.
	AsmOnly bool

	Logger *slog.Logger
}

// DefaultOptions returns the defaults (build/ directory, no assembler).
func DefaultOptions() *Options {
	return &Options{
		BuildDir: "build",
	}
}

// Result is returned by Build with the paths of the produced artifacts.
type Result struct {
	AsmFile string // path to the assembly file
	ObjFile string // path to the assembler output (empty unless assembled)
	IRDump  string // human-readable IR dump
}

// ---------------------------------------------------------------------------
// Build: listing -> IR (lower) -> assembly text (generate) -> file (assemble)
// ---------------------------------------------------------------------------

// Build runs the whole pipeline on a parsed listing.
func Build(listing *ast.Listing, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Arch == nil {
		return nil, fmt.Errorf("no target architecture")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	outputName := opts.OutputName
	if outputName == "" {
		outputName = listing.Name
	}
	if outputName == "" {
		outputName = "output"
	}
	outputName = strings.Map(func(r rune) rune {
		if r == '.' || r == ' ' || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, outputName)

	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = "build"
	}

	logger.Debug("lowering listing", "name", listing.Name, "functions", len(listing.Functions))
	program, err := Lower(listing, opts.Arch)
	if err != nil {
		return nil, err
	}
	result := &Result{IRDump: Dump(program)}

	comp, err := NewCompiler(opts.Arch, WithLogger(logger))
	if err != nil {
		return nil, err
	}
	var asm bytes.Buffer
	if err := comp.Generate(&asm, program); err != nil {
		return nil, err
	}

	tc := NewToolchain(filepath.Join(buildDir, opts.Arch.Name), outputName)
	tc.Assembler = opts.Assembler
	tc.Logger = logger
	if err := tc.WriteAssembly(asm.String()); err != nil {
		return nil, fmt.Errorf("cannot write assembly file: %w", err)
	}
	result.AsmFile = tc.AsmFile
	logger.Debug("assembly written", "file", tc.AsmFile)

	if opts.AsmOnly || tc.Assembler == "" {
		return result, nil
	}
	if err := tc.Assemble(); err != nil {
		return result, fmt.Errorf("assembly failed: %w", err)
	}
	result.ObjFile = tc.ObjFile
	return result, nil
}
