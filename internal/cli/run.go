package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rio/internal/lower"
	"github.com/roach88/rio/internal/manifest"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Undo int // cells to undo after the program completes
}

// RunResult is the run command's output.
type RunResult struct {
	RunID   string         `json:"run_id,omitempty"`
	Lower   *lower.Stats   `json:"lower,omitempty"`
	Program *ProgramReport `json:"program,omitempty"`
	Actors  *ActorReport   `json:"actors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Execute a machine manifest",
		Long: `Load a CUE machine manifest, lower its program into cells, execute
them on the configured bit store, then spawn the manifest's actors,
inject its sends and tick the scheduler.

With --db the run is persisted (cells, effects, checkpoints and the
actor journal) and can be inspected later with "rio trace".

Example:
  rio run ./calc.cue
  rio run --db ./rio.db ./machine/
  rio run --undo 2 --format json ./calc.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Undo, "undo", 0, "undo this many cells after the program completes")

	return cmd
}

func runManifest(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Undo < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "--undo must not be negative", nil)
	}

	sess, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.close(cmd)

	m, err := loadManifest(formatter, path)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Loaded manifest %s (%d bits, %d ancillas)", path, m.Machine.Bits, m.Machine.Ancillas)

	// Cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lowered, err := m.Lower(path, sess.logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, manifest.ErrCodeBuildFailed, "failed to lower program", err)
	}
	source := lowered.Program.SourceName
	if source == "" {
		source = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := sess.begin(ctx, source, path); err != nil {
		return err
	}

	result := RunResult{RunID: sess.runID}
	var progErr error
	if m.Program != nil {
		result.Lower = &lowered.Stats
		rtOpts, err := m.RuntimeOptions()
		if err != nil {
			return formatter.Fail(ExitCommandError, manifest.ErrCodeInvalid, "failed to build machine", err)
		}
		// print effects would corrupt the JSON envelope
		out := cmd.OutOrStdout()
		if opts.Format == "json" {
			out = io.Discard
		}
		result.Program, progErr, err = sess.runProgram(ctx, lowered.Program, rtOpts, out, opts.Undo)
		if err != nil {
			return err
		}
	}

	if errors.Is(progErr, context.Canceled) {
		return WrapExitError(ExitFailure, "run interrupted", progErr)
	}

	if m.Actors != nil {
		result.Actors, err = sess.runActors(ctx, actorPlan{
			name:    source,
			sources: m.ActorSources(),
			sends:   m.Actors.Sends,
			ticks:   m.Actors.Ticks,
		})
		if err != nil {
			return err
		}
	}

	errCode, errMsg := "", ""
	if progErr != nil {
		errCode, errMsg = ErrCodeProgram, progErr.Error()
	}
	if err := formatter.Render(result, errCode, errMsg, func(w io.Writer) {
		writeRunText(w, result)
	}); err != nil {
		return err
	}
	if progErr != nil {
		return WrapExitError(ExitFailure, "program failed", progErr)
	}
	return nil
}

// loadManifest loads path and reports load failures with their codes.
func loadManifest(formatter *OutputFormatter, path string) (*manifest.Manifest, error) {
	m, err := manifest.Load(path)
	if err == nil {
		return m, nil
	}
	var loadErr *manifest.LoadError
	if errors.As(err, &loadErr) {
		msg := loadErr.Message
		if loadErr.Pos.IsValid() {
			msg = fmt.Sprintf("%s:%d:%d: %s", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), msg)
		}
		if outErr := formatter.Error(loadErr.Code, msg, nil); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(ExitCommandError, "failed to load manifest", loadErr)
	}
	return nil, formatter.Fail(ExitCommandError, manifest.ErrCodeGeneric, "failed to load manifest", err)
}

func writeRunText(w io.Writer, r RunResult) {
	if r.Program != nil {
		writeProgramText(w, r.Program)
	}
	if r.Actors != nil {
		writeActorsText(w, r.Actors)
	}
	if r.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", r.RunID)
	}
}

func writeProgramText(w io.Writer, p *ProgramReport) {
	fmt.Fprintf(w, "Program %s: %d cells, %d steps, %d undos, pc %d\n",
		p.Source, p.Cells, p.Stats.Steps, p.Stats.Undos, p.Stats.PC)
	fmt.Fprintf(w, "Bits: %s\n", p.Bits)
	for _, e := range p.Effects {
		mark := "✓"
		outcome := e.Result
		if !e.Succeeded {
			mark, outcome = "✗", e.Error
		}
		fmt.Fprintf(w, "  %s cell %d %s(%s) %s\n", mark, e.CellID, e.Operation, strings.Join(e.Args, ", "), outcome)
	}
	if p.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", p.Error)
	}
}

func writeActorsText(w io.Writer, a *ActorReport) {
	fmt.Fprintf(w, "Actors: %d ticks, %d messages handled\n", a.Ticks, a.Handled)
	for _, l := range a.Logs {
		fmt.Fprintf(w, "  [%s] %s\n", l.Actor, l.Message)
	}
	for _, d := range a.Diagnostics {
		fmt.Fprintf(w, "  ! %s\n", d)
	}
	names := make([]string, 0, len(a.State))
	for name := range a.State {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fields := a.State[name]
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + fields[k]
		}
		fmt.Fprintf(w, "  %s {%s}\n", name, strings.Join(parts, ", "))
	}
}
