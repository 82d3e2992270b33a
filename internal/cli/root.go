package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"

	"github.com/roach88/rio/internal/ir"
	"github.com/roach88/rio/internal/metrics"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	LogFile  string // optional second log sink
	Database string // persist runs to this SQLite file when set
	Metrics  bool   // print the metrics exposition on exit

	level    slog.LevelVar
	logger   *slog.Logger
	logFile  *os.File
	recorder *metrics.Recorder
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rio CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "rio",
		Short:   "rio - reversible homoiconic runtime",
		Version: ir.RuntimeVersion,
		Long: `A reversible instruction runtime with a dissipative boolean layer
and an actor coordination layer.

Programs are built from send operations declared in a CUE manifest,
executed cell by cell on a reversible bit store, and checked for
consistency by replaying them on a fresh machine.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "also write logs to this file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "persist the run to this SQLite database")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print runtime metrics on exit")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewActorsCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setup builds the logger and metrics recorder for one command
// invocation. Callers defer finish.
func (o *RootOptions) setup(cmd *cobra.Command) (*slog.Logger, error) {
	if o.logger != nil {
		return o.logger, nil
	}

	o.level.Set(slog.LevelWarn)
	if o.Verbose {
		o.level.Set(slog.LevelDebug)
	}

	handlers := []slog.Handler{o.newHandler(cmd.ErrOrStderr())}
	if o.LogFile != "" {
		f, err := os.OpenFile(o.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open log file", err)
		}
		o.logFile = f
		handlers = append(handlers, o.newHandler(f))
	}

	if len(handlers) == 1 {
		o.logger = slog.New(handlers[0])
	} else {
		o.logger = slog.New(slogmulti.Fanout(handlers...))
	}
	if o.Metrics {
		o.recorder = metrics.New()
	}
	return o.logger, nil
}

func (o *RootOptions) newHandler(w io.Writer) slog.Handler {
	hopts := &slog.HandlerOptions{Level: &o.level}
	if o.Format == "json" {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

// finish prints metrics when requested and releases the log file.
func (o *RootOptions) finish(cmd *cobra.Command) {
	if o.recorder != nil {
		if err := o.recorder.WriteText(cmd.ErrOrStderr()); err != nil && o.logger != nil {
			o.logger.Error("failed to write metrics", "error", err)
		}
	}
	if o.logFile != nil {
		_ = o.logFile.Close()
		o.logFile = nil
	}
	o.logger = nil
	o.recorder = nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
