package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/rio/internal/hrir"
	"github.com/roach88/rio/internal/ir"
	"github.com/roach88/rio/internal/manifest"
	"github.com/roach88/rio/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	RunID    string // replay a stored run instead of a document
	Manifest string // take the machine from this manifest
	Bits     int
	Ancillas int
}

// ReplayResult holds the replay result.
type ReplayResult struct {
	RunID         string         `json:"run_id,omitempty"`
	Program       *ProgramReport `json:"program"`
	Recorded      int            `json:"recorded_effects"`
	Deterministic *bool          `json:"deterministic,omitempty"`
	Divergence    string         `json:"divergence,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [document.json]",
		Short: "Execute a program document or a stored run",
		Long: `Decode a serialized program document and execute it on a fresh
machine. The machine defaults to --bits data bits and --ancillas
ancilla bits, or is taken from --manifest.

With --db and --run, the stored run's program is re-executed instead and
its side effects are compared against the recorded ones.

Exit codes:
  0 - Program completed (and matched the recorded effects)
  1 - Program failed or diverged from the recording
  2 - Command error (unreadable document, unknown run)

Examples:
  rio replay ./calc.json
  rio replay --manifest ./calc.cue ./calc.json
  rio replay --db ./rio.db --run 0193...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "stored run to replay (requires --db)")
	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "take the machine configuration from this manifest")
	cmd.Flags().IntVar(&opts.Bits, "bits", 8, "data bits")
	cmd.Flags().IntVar(&opts.Ancillas, "ancillas", 0, "ancilla bits")

	return cmd
}

func runReplay(opts *ReplayOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	switch {
	case len(args) == 0 && opts.RunID == "":
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "need a document path or --run", nil)
	case len(args) == 1 && opts.RunID != "":
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "a document path and --run are exclusive", nil)
	case opts.RunID != "" && opts.Database == "":
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "--run requires --db", nil)
	}

	sess, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.close(cmd)
	ctx := commandContext(cmd)

	m := &manifest.Manifest{Machine: manifest.Machine{Bits: opts.Bits, Ancillas: opts.Ancillas}}
	if opts.Manifest != "" {
		if m, err = loadManifest(formatter, opts.Manifest); err != nil {
			return err
		}
	}
	rtOpts, err := m.RuntimeOptions()
	if err != nil {
		return formatter.Fail(ExitCommandError, manifest.ErrCodeInvalid, "failed to build machine", err)
	}

	var (
		prog     *ir.Program
		recorded []hrir.Effect
	)
	if opts.RunID != "" {
		stored, err := sess.store.LoadProgram(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to load run", err)
		}
		if recorded, err = sess.store.Effects(ctx, opts.RunID); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to load effects", err)
		}
		prog = stored.Fresh()
	} else {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDecode, "failed to read document", err)
		}
		if prog, err = ir.Decode(data); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDecode, "failed to decode document", err)
		}
		if err := sess.begin(ctx, prog.SourceName, args[0]); err != nil {
			return err
		}
	}
	formatter.VerboseLog("Replaying %s (%d cells)", prog.SourceName, len(prog.Cells()))

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		out = io.Discard
	}
	report, progErr, err := sess.runProgram(ctx, prog, rtOpts, out, 0)
	if err != nil {
		return err
	}

	result := ReplayResult{Program: report}
	if opts.RunID != "" {
		result.RunID = opts.RunID
		result.Recorded = len(recorded)
		divergence := compareEffects(recorded, effectsOf(report))
		same := divergence == ""
		result.Deterministic = &same
		result.Divergence = divergence
	} else {
		result.RunID = sess.runID
	}

	errCode, errMsg := "", ""
	switch {
	case result.Divergence != "":
		errCode, errMsg = ErrCodeDeterminism, result.Divergence
	case progErr != nil:
		errCode, errMsg = ErrCodeProgram, progErr.Error()
	}
	if err := formatter.Render(result, errCode, errMsg, func(w io.Writer) {
		writeReplayText(w, result)
	}); err != nil {
		return err
	}

	if result.Divergence != "" {
		return NewExitError(ExitFailure, "replay diverged from the recorded run")
	}
	if progErr != nil {
		return WrapExitError(ExitFailure, "program failed", progErr)
	}
	return nil
}

func effectsOf(r *ProgramReport) []hrir.Effect {
	out := make([]hrir.Effect, len(r.Effects))
	for i, e := range r.Effects {
		out[i] = hrir.Effect{CellID: e.CellID, Operation: e.Operation, Args: e.Args, Succeeded: e.Succeeded}
	}
	return out
}

// compareEffects describes the first difference between the recorded and
// replayed effect sequences, or returns "" when they agree.
func compareEffects(recorded, replayed []hrir.Effect) string {
	for i := 0; i < len(recorded) && i < len(replayed); i++ {
		a, b := recorded[i], replayed[i]
		if a.CellID != b.CellID || a.Operation != b.Operation || a.Succeeded != b.Succeeded || !slices.Equal(a.Args, b.Args) {
			return fmt.Sprintf("effect %d: recorded cell %d %s%v (ok=%v), replayed cell %d %s%v (ok=%v)",
				i+1, a.CellID, a.Operation, a.Args, a.Succeeded, b.CellID, b.Operation, b.Args, b.Succeeded)
		}
	}
	if len(recorded) != len(replayed) {
		return fmt.Sprintf("recorded %d effects, replayed %d", len(recorded), len(replayed))
	}
	return ""
}

func writeReplayText(w io.Writer, r ReplayResult) {
	writeProgramText(w, r.Program)
	if r.Deterministic == nil {
		if r.RunID != "" {
			fmt.Fprintf(w, "Run: %s\n", r.RunID)
		}
		return
	}
	if *r.Deterministic {
		fmt.Fprintf(w, "✓ Run %s replayed identically (%d effects)\n", r.RunID, r.Recorded)
	} else {
		fmt.Fprintf(w, "✗ Run %s diverged: %s\n", r.RunID, r.Divergence)
	}
}
