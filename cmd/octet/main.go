package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"octet/internal/codegen"
	"octet/internal/config"
	"octet/internal/lexer"
	"octet/internal/log"
	"octet/internal/parser"
	"octet/internal/semantic"
	"octet/internal/target"
)

const VERSION = "0.3.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:           "octet",
		Short:         "Code generator for 8-bit processors",
		Version:       VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&cfg.Target, "target", "t", cfg.Target, "target architecture ("+strings.Join(target.Names(), ", ")+")")
	rootCmd.PersistentFlags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "log each lowering step")
	rootCmd.PersistentFlags().BoolVar(&cfg.Trace, "trace", cfg.Trace, "also log every round of call parameter placement")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error); overrides --debug and --trace")

	rootCmd.AddCommand(newBuildCmd(&cfg), newRegsCmd(&cfg), newTargetsCmd())
	return rootCmd
}

func newBuildCmd(cfg *config.Config) *cobra.Command {
	var (
		outputName string
		dumpIR     bool
	)
	cmd := &cobra.Command{
		Use:   "build <file>",
		Short: "Compile a listing to assembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			res, err := build(cmd, cfg, args[0], outputName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dumpIR {
				fmt.Fprintln(out, res.IRDump)
			}
			fmt.Fprintln(out, "Build artifacts:")
			fmt.Fprintf(out, "  Assembly: %s\n", res.AsmFile)
			if res.ObjFile != "" {
				fmt.Fprintf(out, "  Object:   %s\n", res.ObjFile)
			}
			fmt.Fprintf(out, "Compile time: %s\n", time.Since(start))
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BuildDir, "build-dir", cfg.BuildDir, "directory receiving <target>/<name>.asm")
	cmd.Flags().StringVarP(&outputName, "out", "o", "", "base name of the output files (default: the input name)")
	cmd.Flags().StringVar(&cfg.Assembler, "assembler", cfg.Assembler, "command run on the assembly ({in} and {out} are substituted)")
	cmd.Flags().BoolVar(&dumpIR, "dump-ir", false, "print the lowered functions")
	return cmd
}

func logLevel(cfg *config.Config) (slog.Level, error) {
	switch {
	case cfg.LogLevel != "":
		return log.ParseLevel(cfg.LogLevel)
	case cfg.Trace:
		return log.LevelTrace, nil
	case cfg.Debug:
		return log.LevelDebug, nil
	}
	return log.LevelWarn, nil
}

// build runs lex, parse, check and code generation on one file.
func build(cmd *cobra.Command, cfg *config.Config, path, outputName string) (*codegen.Result, error) {
	level, err := logLevel(cfg)
	if err != nil {
		return nil, err
	}
	logger := log.New(cmd.ErrOrStderr(), level)

	arch, err := target.Resolve(cfg.Target)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	tokens, lexErrors := lexer.Lex(string(src))
	if len(lexErrors) > 0 {
		return nil, report("Lexing errors", lexErrors)
	}
	logger.Debug("lexing complete", "tokens", len(tokens))

	listing, parseErrors := parser.Parse(tokens)
	if len(parseErrors) > 0 {
		return nil, report("Parse errors", parseErrors)
	}
	listing.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	diags := semantic.Analyze(listing, arch.Registers)
	var errs []semantic.Diagnostic
	for _, d := range diags {
		if d.Severity == semantic.Warning {
			logger.Warn(d.Message, "line", d.Pos.Line, "col", d.Pos.Column)
		} else {
			errs = append(errs, d)
		}
	}
	if len(errs) > 0 {
		return nil, report("Semantic errors", errs)
	}

	opts := codegen.DefaultOptions()
	opts.Arch = arch
	opts.BuildDir = cfg.BuildDir
	opts.OutputName = outputName
	opts.Assembler = cfg.Assembler
	opts.Logger = logger
	return codegen.Build(listing, opts)
}

// report joins diagnostics under a heading into one error.
func report[E error](heading string, errs []E) error {
	var b strings.Builder
	b.WriteString(heading + ":")
	for _, e := range errs {
		b.WriteString("\n  " + e.Error())
	}
	return fmt.Errorf("%s", b.String())
}

func newRegsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "regs",
		Short: "Show the register file and calling convention of the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			arch, err := target.Resolve(cfg.Target)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), codegen.RegisterTree(arch))
			return nil
		},
	}
}

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the supported targets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range target.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
