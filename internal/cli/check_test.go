package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_Consistent(t *testing.T) {
	stdout, _, err := execute(t, "check", testdata("calc.cue"))
	require.NoError(t, err)

	assert.Contains(t, stdout, "Program calc: 3 cells, 1 expected side effects")
	assert.Contains(t, stdout, "✓ structural")
	assert.Contains(t, stdout, "✓ behavioral: 3 operations checked, 1 side effects verified")
	assert.NotContains(t, stdout, "done\n", "replayed print effects are discarded")
}

func TestCheck_ExpectFileOverridesManifest(t *testing.T) {
	stdout, _, err := execute(t, "check", "--expect", testdata("expect-failure.yaml"), testdata("calc.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ behavioral")
	assert.Contains(t, stdout, "cell: 3")
}

func TestCheck_JSON(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "check", "--expect", testdata("expect-failure.yaml"), testdata("calc.cue"))
	require.Error(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   CheckResult `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInconsistent, resp.Error.Code)
	assert.True(t, resp.Data.Report.Structural.IsConsistent)
	require.NotNil(t, resp.Data.Report.Behavioral)
	assert.False(t, resp.Data.Report.Behavioral.IsConsistent)
	assert.Equal(t, int64(3), resp.Data.Report.Behavioral.CellID)
}

func TestCheck_UnexpectedEffectWarns(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "none.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("[]\n"), 0o644))

	stdout, _, err := execute(t, "check", "--expect", empty, testdata("calc.cue"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "warning: cell 3: unexpected side effect print")
}

func TestCheck_UnreadableExpectations(t *testing.T) {
	stdout, _, err := execute(t, "check", "--expect", filepath.Join(t.TempDir(), "absent.yaml"), testdata("calc.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "failed to read expectations")
}
