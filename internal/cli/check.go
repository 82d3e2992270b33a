package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rio/internal/check"
	"github.com/roach88/rio/internal/hrir"
	"github.com/roach88/rio/internal/ir"
	"github.com/roach88/rio/internal/manifest"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Expect string // YAML expectations file, overrides the manifest's expect list
}

// CheckResult is the check command's output.
type CheckResult struct {
	Source       string       `json:"source"`
	Cells        int          `json:"cells"`
	Expectations int          `json:"expectations"`
	Report       check.Report `json:"report"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <manifest>",
		Short: "Check a manifest's program for consistency",
		Long: `Lower a manifest's program and check it: first structurally (ids,
inverses, counts), then behaviorally by replaying it on a fresh machine.
Every R-term cell must step, undo and redo; every D-term effect is
matched against the expected side effects in order.

Expectations come from the manifest's expect list, or from --expect:

  - operation: print
    args: ["done"]
    should_succeed: true

Exit codes:
  0 - Program is consistent
  1 - Program is inconsistent
  2 - Command error (invalid manifest, unreadable expectations)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Expect, "expect", "", "YAML file of expected side effects")

	return cmd
}

func runCheck(opts *CheckOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	sess, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.close(cmd)

	m, err := loadManifest(formatter, path)
	if err != nil {
		return err
	}

	expected := m.Expect
	if opts.Expect != "" {
		expected, err = readExpectations(opts.Expect)
		if err != nil {
			return formatter.Fail(ExitCommandError, manifest.ErrCodeLoadFailed, "failed to read expectations", err)
		}
	}

	lowered, err := m.Lower(path, sess.logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, manifest.ErrCodeBuildFailed, "failed to lower program", err)
	}
	prog := lowered.Program
	formatter.VerboseLog("Checking %d cells against %d expected side effects", len(prog.Cells()), len(expected))

	checker := check.New(
		check.WithLogger(sess.logger),
		check.WithMetrics(opts.recorder),
		check.WithRuntimeFactory(func(p *ir.Program) (*hrir.Runtime, error) {
			rtOpts, err := m.RuntimeOptions()
			if err != nil {
				return nil, err
			}
			rtOpts = append(rtOpts, hrir.WithOutput(io.Discard), hrir.WithLogger(sess.logger))
			return hrir.New(p, rtOpts...)
		}),
	)
	report, err := checker.Run(commandContext(cmd), prog, expected)
	if err != nil {
		return formatter.Fail(ExitCommandError, manifest.ErrCodeGeneric, "check aborted", err)
	}

	result := CheckResult{
		Source:       prog.SourceName,
		Cells:        len(prog.Cells()),
		Expectations: len(expected),
		Report:       report,
	}
	verdict := report.First()

	errCode, errMsg := "", ""
	if !verdict.IsConsistent {
		errCode, errMsg = ErrCodeInconsistent, verdict.Message
	}
	if err := formatter.Render(result, errCode, errMsg, func(w io.Writer) {
		writeCheckText(w, result)
	}); err != nil {
		return err
	}
	if !verdict.IsConsistent {
		return NewExitError(ExitFailure, fmt.Sprintf("inconsistent: %s", verdict.Message))
	}
	return nil
}

func readExpectations(path string) ([]check.Expectation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return check.LoadExpectations(f)
}

func writeCheckText(w io.Writer, r CheckResult) {
	fmt.Fprintf(w, "Program %s: %d cells, %d expected side effects\n", r.Source, r.Cells, r.Expectations)
	writeCheckResult(w, "structural", r.Report.Structural)
	if r.Report.Behavioral != nil {
		writeCheckResult(w, "behavioral", *r.Report.Behavioral)
	}
}

func writeCheckResult(w io.Writer, kind string, res check.Result) {
	if res.IsConsistent {
		fmt.Fprintf(w, "✓ %s: %d operations checked, %d side effects verified\n",
			kind, res.OperationsChecked, res.SideEffectsVerified)
	} else {
		fmt.Fprintf(w, "✗ %s: %s\n", kind, res.Message)
		if res.CellID != 0 {
			fmt.Fprintf(w, "  cell: %d\n", res.CellID)
		}
		if res.Detail != "" {
			fmt.Fprintf(w, "  detail: %s\n", res.Detail)
		}
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}
