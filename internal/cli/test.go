package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/geckode/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run collaborative editing scenarios",
		Long: `Run multi-peer editing scenarios and compare them with golden files.

Each scenario's trace and generated bundle are compared with
golden/<name>.golden next to the scenario file, when one exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  geckode test ./scenarios
  geckode test ./scenarios --filter "undo_*"
  geckode test ./scenarios --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if _, err := os.Stat(dir); err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios directory not found: %s", dir), nil)
	}
	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	run := []harness.Option{harness.WithUndoDepth(cfg.UndoDepth)}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, path := range files {
		sr := runScenario(path, opts.Update, run...)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		if !f.JSON() {
			printScenario(f, sr, opts.Update)
		}
	}

	if f.JSON() {
		if err := f.encode(testResponse(result)); err != nil {
			return err
		}
	} else if result.Total == 0 {
		fmt.Fprintln(f.Writer, "No scenarios found.")
	} else {
		fmt.Fprintln(f.Writer)
		fmt.Fprintf(f.Writer, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		if result.Failed == 0 {
			fmt.Fprintln(f.Writer, "✓ All scenarios passed")
		}
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

func testResponse(r TestResult) CLIResponse {
	resp := CLIResponse{Status: "ok", Data: r}
	if r.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{Code: ErrCodeTestFailed, Message: fmt.Sprintf("%d scenario(s) failed", r.Failed)}
	}
	return resp
}

func printScenario(f *OutputFormatter, sr ScenarioResult, update bool) {
	if sr.Pass {
		if update {
			fmt.Fprintf(f.Writer, "✓ %s (golden updated)\n", sr.Name)
		} else {
			fmt.Fprintf(f.Writer, "✓ %s\n", sr.Name)
		}
		return
	}
	fmt.Fprintf(f.Writer, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(f.Writer, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
	}
}

// findScenarioFiles finds YAML scenario files directly under dir.
func findScenarioFiles(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func runScenario(path string, update bool, opts ...harness.Option) ScenarioResult {
	name := filepath.Base(path)
	s, err := harness.LoadScenario(path)
	if err != nil {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("load error: %v", err)}}
	}

	result, err := harness.Run(s, opts...)
	if err != nil {
		return ScenarioResult{Name: s.Name, Errors: []string{fmt.Sprintf("execution error: %v", err)}}
	}

	trace := []byte(harness.FormatTrace(s.Name, result))
	golden := goldenFilePath(path)
	if update {
		if err := writeGolden(golden, trace); err != nil {
			return ScenarioResult{Name: s.Name, Errors: []string{err.Error()}}
		}
	} else {
		want, err := os.ReadFile(golden)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// no golden file: assertions only
		case err != nil:
			return ScenarioResult{Name: s.Name, Errors: []string{fmt.Sprintf("failed to read golden file: %v", err)}}
		case !bytes.Equal(want, trace):
			result.AddError("trace does not match golden file (run with --update to regenerate)")
		}
	}

	return ScenarioResult{Name: s.Name, Pass: result.Pass, Errors: result.Errors}
}

// goldenFilePath returns golden/<name>.golden next to the scenario file.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}
