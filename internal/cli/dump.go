package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/rio/internal/manifest"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Output string // output file path
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <manifest>",
		Short: "Lower a manifest to a program document",
		Long: `Lower a manifest's program into cells and write the serialized
program document: source name, declared cell count, then one entry per
cell with its opcode, operands, reversibility and inverse.

The document can be executed later with "rio replay".`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runDump(opts *DumpOptions, path string, cmd *cobra.Command) error {
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
	lowered, err := m.Lower(path, sess.logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, manifest.ErrCodeBuildFailed, "failed to lower program", err)
	}

	data, err := lowered.Program.EncodeIndent()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeDecode, "failed to encode program", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, manifest.ErrCodeGeneric, "failed to write output file", err)
		}
		formatter.VerboseLog("Wrote %d cells to %s", len(lowered.Program.Cells()), opts.Output)
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%d cells)\n", opts.Output, len(lowered.Program.Cells()))
		return nil
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
