package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rio/internal/ir"
)

// execute runs the rio root command with args and returns stdout and
// stderr separately.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func testdata(name string) string {
	return filepath.Join("testdata", name)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rio", cmd.Use)
	assert.Contains(t, cmd.Long, "reversible")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "check", "actors", "dump", "replay", "test", "trace"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"log-file", "db", "metrics"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCommand_Version(t *testing.T) {
	stdout, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, ir.RuntimeVersion)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "yaml", "dump", testdata("calc.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootOptions_LogFileFanout(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rio.log")

	_, stderr, err := execute(t, "--verbose", "--log-file", logPath, "run", testdata("calc.cue"))
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "step")
	assert.Contains(t, stderr, "step")
}

func TestRootOptions_QuietByDefault(t *testing.T) {
	_, stderr, err := execute(t, "run", testdata("calc.cue"))
	require.NoError(t, err)
	assert.NotContains(t, stderr, "level=DEBUG")
}

func TestRootOptions_MetricsOnExit(t *testing.T) {
	_, stderr, err := execute(t, "--metrics", "run", testdata("calc.cue"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "# TYPE")
	assert.Contains(t, stderr, "rio_")
}
