package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_CalcCounterGolden(t *testing.T) {
	s := loadTestScenario(t, "calc-counter")

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "1000", result.Bits)
	assert.Equal(t, map[string]string{"count": "2"}, result.State["Counter"])
	require.NotNil(t, result.Check)
	assert.True(t, result.Check.IsConsistent())
	assert.Equal(t, 1, result.Check.Behavioral.SideEffectsVerified)
	assert.NotEmpty(t, result.RunID)
}

func TestRun_PingPong(t *testing.T) {
	result, err := Run(context.Background(), loadTestScenario(t, "ping-pong"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Nil(t, result.Check, "no sends, nothing to check")
	assert.Equal(t, "1", result.State["Ping"]["sent"])
	assert.Equal(t, "1", result.State["Pong"]["got"])
}

func TestRun_ExpectedInconsistency(t *testing.T) {
	result, err := Run(context.Background(), loadTestScenario(t, "mismatch"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.NotNil(t, result.Check)
	assert.False(t, result.Check.IsConsistent())
	assert.Equal(t, "D-term side effect mismatch", result.Check.First().Message)
}

func TestRun_FailedAssertion(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong
description: asserts a value the program never produces
sends:
  - {target: Calc, selector: flip, args: ["1"]}
assertions:
  - {type: final_state, bit: 1, value: "0"}
  - {type: trace_count, subject: Calc.flip, count: 2}
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: final_state")
	assert.Contains(t, result.Errors[0], "bit 1 = 1")
	assert.Contains(t, result.Errors[1], "1 occurrences")
}

func TestRun_LowerErrorIsReported(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad-selector
description: a reversible send with no opcode
sends:
  - {target: Calc, selector: frobnicate}
assertions:
  - {type: trace_count, subject: Calc.frobnicate, count: 0}
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "lower: "), result.Errors[0])
	assert.Empty(t, result.Trace)
}

func TestRun_ProgramErrorIsReported(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: div-zero
description: divide by zero stops the program
sends:
  - {target: Calc, selector: divide, args: ["1", "0"]}
  - {target: Transcript, selector: output, args: [never], tag: io}
assertions:
  - {type: trace_count, kind: effect, subject: print, count: 0}
  - {type: consistent, consistent: false}
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "program: ")
	assert.Equal(t, "R-term operation failed", result.Check.First().Message)
}

func TestRunAll(t *testing.T) {
	outcomes, err := RunAll(context.Background(), filepath.Join("testdata", "scenarios"), 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	names := make([]string, len(outcomes))
	for i, o := range outcomes {
		require.NoError(t, o.Err, o.Path)
		assert.True(t, o.Result.Pass, "%s: %v", o.Name, o.Result.Errors)
		names[i] = o.Name
	}
	assert.Equal(t, []string{"calc-counter", "mismatch", "ping-pong"}, names)
}

func TestRunAll_ReportsLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.yaml"), "name: broken\n")

	outcomes, err := RunAll(context.Background(), dir, 0)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
	assert.Nil(t, outcomes[0].Result)
}

func TestRunAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunAll(ctx, filepath.Join("testdata", "scenarios"), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
