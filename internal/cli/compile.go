package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/geckode/internal/catalog"
	"github.com/roach88/geckode/internal/codegen"
	"github.com/roach88/geckode/internal/registry"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	ProgramSource
	Entity     string
	Label      string
	CatalogDir string
	Output     string
}

// CompileResult is the JSON payload of a compile.
type CompileResult struct {
	Scopes   []codegen.Scope       `json:"scopes"`
	Dispatch []codegen.Route       `json:"dispatch"`
	Failures []*codegen.ScopeError `json:"failures,omitempty"`
	Bundle   string                `json:"bundle"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Generate the runtime bundle for a program",
		Long: `Generate JavaScript for one entity's program.

The program is read from an exported state file, a channel in a relay
database, or a live channel on the configured relay. Every event block
becomes one function; a block that cannot be generated drops only its
own function and is reported.

Exit codes:
  0 - Every scope generated
  1 - One or more scopes failed (the bundle is still written)
  2 - Command error (missing source, unreachable relay, etc.)

Examples:
  geckode compile --state hero.state --entity hero
  geckode compile --db geckode.db --channel level-1 -o level-1.js
  geckode compile --remote --channel level-1 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StateFile, "state", "", "exported state file")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "relay database")
	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "fetch the channel from the configured relay")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "channel id (with --db or --remote)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "hero", "entity owning the program")
	cmd.Flags().StringVar(&opts.Label, "label", "", "display label of the entity")
	cmd.Flags().StringVar(&opts.CatalogDir, "catalog", "", "directory with a CUE block catalog (default: built-in)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the bundle to this file")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger(cmd.ErrOrStderr())

	cat, err := loadCatalog(opts.CatalogDir)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeCatalog, err.Error(), nil)
	}

	g, err := loadProgram(cmd.Context(), opts.ProgramSource, cfg, logger)
	if err != nil {
		return err
	}
	f.VerboseLog("loaded %d deltas", g.Len())

	reg := registry.New(registry.Entity{ID: opts.Entity, Label: opts.Label})
	out := codegen.New(codegen.WithLogger(logger)).Generate(g.Snapshot(), codegen.Context{
		Entity:   opts.Entity,
		Registry: reg.View(),
		Catalog:  cat,
	})
	bundle := out.Bundle()

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(bundle), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		f.VerboseLog("wrote %s", opts.Output)
	}

	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: CompileResult{
			Scopes:   out.Scopes,
			Dispatch: out.Dispatch,
			Failures: out.Failures,
			Bundle:   bundle,
		}}
		if n := len(out.Failures); n > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeGeneration, Message: fmt.Sprintf("%d scope(s) failed", n)}
		}
		if err := f.encode(resp); err != nil {
			return err
		}
	} else {
		if opts.Output == "" {
			fmt.Fprint(f.Writer, bundle)
		} else {
			fmt.Fprintf(f.Writer, "✓ %d scope(s) written to %s\n", len(out.Scopes), opts.Output)
		}
		for _, fail := range out.Failures {
			fmt.Fprintf(f.GetErrWriter(), "✗ %s\n", fail.Error())
		}
	}

	if n := len(out.Failures); n > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scope(s) failed", n))
	}
	return nil
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Load()
	}
	return catalog.LoadDir(dir)
}
