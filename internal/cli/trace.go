package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rio/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Incomplete bool // list only runs that did not finish
}

// TraceEvent is one timeline entry.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Type    string `json:"type"` // "effect" or "message"
	Summary string `json:"summary"`
}

// TraceCheckpoint is one stored checkpoint.
type TraceCheckpoint struct {
	ID    int    `json:"id"`
	PC    int    `json:"pc"`
	Label string `json:"label"`
	Bits  string `json:"bits"`
}

// TraceStats holds summary statistics for a run.
type TraceStats struct {
	Cells      int  `json:"cells"`
	Executed   int  `json:"executed"`
	Effects    int  `json:"effects"`
	Failed     int  `json:"failed_effects"`
	Messages   int  `json:"messages"`
	IsComplete bool `json:"is_complete"`
}

// TraceResult holds one run's trace.
type TraceResult struct {
	RunID       string            `json:"run_id"`
	Source      string            `json:"source"`
	Digest      string            `json:"digest"`
	Timeline    []TraceEvent      `json:"timeline"`
	Checkpoints []TraceCheckpoint `json:"checkpoints"`
	Stats       TraceStats        `json:"stats"`
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID  string     `json:"run_id"`
	Source string     `json:"source"`
	Stats  TraceStats `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show stored runs and their timelines",
		Long: `Inspect runs persisted with --db.

Without a run id, list every stored run with its completion status.
With a run id, print the run's timeline: side effects and actor
messages merged in sequence order, followed by its checkpoints.

Examples:
  rio trace --db ./rio.db
  rio trace --db ./rio.db --incomplete
  rio trace --db ./rio.db 0193...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Incomplete, "incomplete", false, "list only runs with unexecuted cells")

	return cmd
}

func runTrace(opts *TraceOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Database == "" {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "trace requires --db", nil)
	}

	sess, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.close(cmd)

	if len(args) == 0 {
		return listRuns(opts, sess.store, formatter, cmd)
	}
	return traceRun(sess.store, args[0], formatter, cmd)
}

func listRuns(opts *TraceOptions, st *store.Store, formatter *OutputFormatter, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	var states []store.RunState
	if opts.Incomplete {
		var err error
		if states, err = st.FindIncompleteRuns(ctx); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to find incomplete runs", err)
		}
	} else {
		runs, err := st.Runs(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to list runs", err)
		}
		for _, r := range runs {
			state, err := st.GetRunState(ctx, r.ID)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read run", err)
			}
			states = append(states, state)
		}
	}

	summaries := make([]RunSummary, len(states))
	for i, s := range states {
		summaries[i] = RunSummary{RunID: s.Run.ID, Source: s.Run.SourceName, Stats: traceStats(s)}
	}

	return formatter.Render(summaries, "", "", func(w io.Writer) {
		if len(summaries) == 0 {
			fmt.Fprintln(w, "No runs found.")
			return
		}
		for _, s := range summaries {
			fmt.Fprintf(w, "%s  %-20s %d/%d cells  %d effects  %d messages  %s\n",
				truncateID(s.RunID), s.Source, s.Stats.Executed, s.Stats.Cells,
				s.Stats.Effects, s.Stats.Messages, completeStatus(s.Stats.IsComplete))
		}
	})
}

func traceRun(st *store.Store, runID string, formatter *OutputFormatter, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	state, err := st.GetRunState(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeStore, fmt.Sprintf("run not found: %s", runID), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to get run state", err)
	}

	events, err := st.Trace(ctx, runID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read timeline", err)
	}
	checkpoints, err := st.Checkpoints(ctx, runID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read checkpoints", err)
	}

	result := TraceResult{
		RunID:       runID,
		Source:      state.Run.SourceName,
		Digest:      state.Run.Digest,
		Timeline:    make([]TraceEvent, len(events)),
		Checkpoints: make([]TraceCheckpoint, len(checkpoints)),
		Stats:       traceStats(state),
	}
	for i, e := range events {
		result.Timeline[i] = TraceEvent{Seq: e.Seq, Type: e.Type.String(), Summary: e.Summary}
	}
	for i, cp := range checkpoints {
		result.Checkpoints[i] = TraceCheckpoint{ID: cp.ID, PC: cp.PC, Label: cp.Label, Bits: bitString(cp.Bits)}
	}

	return formatter.Render(result, "", "", func(w io.Writer) {
		writeTraceText(w, result)
	})
}

func traceStats(s store.RunState) TraceStats {
	return TraceStats{
		Cells:      s.CellCount,
		Executed:   s.Executed,
		Effects:    s.Effects,
		Failed:     s.FailedCount,
		Messages:   s.Messages,
		IsComplete: s.IsComplete,
	}
}

func writeTraceText(w io.Writer, r TraceResult) {
	fmt.Fprintf(w, "Trace for Run: %s (%s)\n", r.RunID, r.Source)
	fmt.Fprintf(w, "Status: %s\n", completeStatus(r.Stats.IsComplete))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(r.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range r.Timeline {
		fmt.Fprintf(w, "  [%d] %-7s %s\n", e.Seq, e.Type, e.Summary)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Checkpoints ===")
	if len(r.Checkpoints) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, cp := range r.Checkpoints {
		fmt.Fprintf(w, "  #%d pc=%d %-8s %s\n", cp.ID, cp.PC, cp.Label, cp.Bits)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Cells:    %d/%d executed\n", r.Stats.Executed, r.Stats.Cells)
	fmt.Fprintf(w, "  Effects:  %d (%d failed)\n", r.Stats.Effects, r.Stats.Failed)
	fmt.Fprintf(w, "  Messages: %d\n", r.Stats.Messages)
}

func bitString(bits []bool) string {
	b := make([]byte, len(bits))
	for i, v := range bits {
		b[i] = '0'
		if v {
			b[i] = '1'
		}
	}
	return string(b)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// completeStatus returns a human-readable completion status.
func completeStatus(isComplete bool) string {
	if isComplete {
		return "complete"
	}
	return "incomplete"
}
