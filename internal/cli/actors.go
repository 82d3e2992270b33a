package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rio/internal/manifest"
)

// ActorsOptions holds flags for the actors command.
type ActorsOptions struct {
	*RootOptions
	Sends []string // Name:event[:payload]
	Ticks int
}

// NewActorsCommand creates the actors command.
func NewActorsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActorsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "actors <file.actor>...",
		Short: "Spawn actors and deliver messages",
		Long: `Spawn every actor defined in the given files, inject the --send
messages and tick the scheduler. Each tick delivers at most one message
per actor, in spawn order.

With --ticks 0 the scheduler runs until every mailbox is empty.

Example:
  rio actors counter.actor --send Counter:increment --ticks 3
  rio actors ping.actor pong.actor --send 'Ping:start:{"n": 3}'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActorsCommand(opts, args, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Sends, "send", nil, "message to inject as Name:event[:payload] (repeatable)")
	cmd.Flags().IntVar(&opts.Ticks, "ticks", 0, "scheduler ticks to run (0 runs until mailboxes drain)")

	return cmd
}

func runActorsCommand(opts *ActorsOptions, files []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Ticks < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "--ticks must not be negative", nil)
	}

	sends := make([]manifest.Message, 0, len(opts.Sends))
	for _, s := range opts.Sends {
		m, err := parseSend(s)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeUsage, "invalid --send", err)
		}
		sends = append(sends, m)
	}

	sess, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.close(cmd)

	ctx := commandContext(cmd)
	name := strings.TrimSuffix(filepath.Base(files[0]), filepath.Ext(files[0]))
	if err := sess.begin(ctx, name, files[0]); err != nil {
		return err
	}

	report, err := sess.runActors(ctx, actorPlan{
		name:    name,
		sources: files,
		sends:   sends,
		ticks:   opts.Ticks,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeActors, err.Error(), nil)
		return err
	}

	return formatter.Render(RunResult{RunID: sess.runID, Actors: report}, "", "", func(w io.Writer) {
		writeActorsText(w, report)
		if sess.runID != "" {
			fmt.Fprintf(w, "Run: %s\n", sess.runID)
		}
	})
}

// parseSend splits Name:event[:payload]. The payload may itself contain
// colons.
func parseSend(s string) (manifest.Message, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return manifest.Message{}, fmt.Errorf("%q: want Name:event[:payload]", s)
	}
	m := manifest.Message{Actor: parts[0], Event: parts[1], Payload: "{}"}
	if len(parts) == 3 && parts[2] != "" {
		m.Payload = parts[2]
	}
	return m, nil
}
