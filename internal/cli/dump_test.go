package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rio/internal/ir"
)

func TestDump_Stdout(t *testing.T) {
	stdout, _, err := execute(t, "dump", testdata("calc.cue"))
	require.NoError(t, err)

	p, err := ir.Decode([]byte(stdout))
	require.NoError(t, err)
	assert.Equal(t, "calc", p.SourceName)
	require.Len(t, p.Cells(), 3)
	assert.Equal(t, ir.OpAdd, p.Cells()[0].Opcode)
	assert.True(t, p.Cells()[0].Reversible)
	assert.False(t, p.Cells()[2].Reversible)
	assert.False(t, p.Cells()[0].Executed, "dump does not execute")
}

func TestDump_OutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "calc.json")

	stdout, _, err := execute(t, "dump", "-o", out, testdata("calc.cue"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "(3 cells)")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	p, err := ir.Decode(data)
	require.NoError(t, err)
	assert.Len(t, p.Cells(), 3)
}

func TestDump_InvalidManifest(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(bad, []byte(`machine: {bits: "eight"}`), 0o644))

	stdout, _, err := execute(t, "dump", bad)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E006]")
}
