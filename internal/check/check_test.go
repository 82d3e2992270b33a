package check

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rio/internal/ir"
	"github.com/roach88/rio/internal/metrics"
)

func newChecker(opts ...Option) *Checker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(append([]Option{WithLogger(logger)}, opts...)...)
}

func program(t *testing.T, cells ...*ir.Cell) *ir.Program {
	t.Helper()
	p := ir.NewProgram("check_test")
	for _, c := range cells {
		_, err := p.Append(c)
		require.NoError(t, err)
	}
	return p
}

func endToEnd(t *testing.T) *ir.Program {
	return program(t,
		ir.NewCell(ir.OpAdd, "5", "3"),
		ir.NewCell(ir.OpMultiply, "result", "2"),
		ir.NewCell(ir.OpPrint, "done"),
	)
}

func TestCheckReplay_EndToEnd(t *testing.T) {
	p := endToEnd(t)
	expected := []Expectation{{Operation: "print", Args: []string{"done"}, ShouldSucceed: true}}

	res, err := newChecker().CheckReplay(context.Background(), p, expected)
	require.NoError(t, err)

	assert.True(t, res.IsConsistent, res.Message)
	assert.Equal(t, 3, res.OperationsChecked)
	assert.Equal(t, 1, res.SideEffectsVerified)
	assert.Empty(t, res.Warnings)

	// The caller's program is untouched.
	assert.Zero(t, p.PC())
	assert.Zero(t, p.Stats().Executed)
}

func TestValidateStructure_Valid(t *testing.T) {
	res := newChecker().ValidateStructure(endToEnd(t))
	assert.True(t, res.IsConsistent)
	assert.Equal(t, 3, res.OperationsChecked)
}

func TestValidateStructure_Failures(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) *ir.Program
		want  string
	}{
		{
			name: "missing inverse",
			build: func(t *testing.T) *ir.Program {
				p := ir.NewProgram("bad")
				require.NoError(t, p.AppendWithID(&ir.Cell{ID: 1, Opcode: ir.OpAdd, Operands: []string{"1", "2"}, Reversible: true}))
				return p
			},
			want: MsgMissingInverse,
		},
		{
			name: "missing inverse from document",
			build: func(t *testing.T) *ir.Program {
				p, err := ir.Decode([]byte(`{"source_name":"doc","cell_count":1,"cells":[{"id":1,"opcode":"print","args":["x"],"is_reversible":true,"executed":false}]}`))
				require.NoError(t, err)
				return p
			},
			want: MsgMissingInverse,
		},
		{
			name: "missing operands",
			build: func(t *testing.T) *ir.Program {
				p := ir.NewProgram("bad")
				require.NoError(t, p.AppendWithID(&ir.Cell{ID: 1, Opcode: ir.OpPrint}))
				return p
			},
			want: MsgMissingCellData,
		},
		{
			name: "missing opcode",
			build: func(t *testing.T) *ir.Program {
				p := ir.NewProgram("bad")
				require.NoError(t, p.AppendWithID(&ir.Cell{ID: 1, Operands: []string{}}))
				return p
			},
			want: MsgMissingCellData,
		},
		{
			name: "duplicate id",
			build: func(t *testing.T) *ir.Program {
				p, err := ir.Decode([]byte(`{"source_name":"doc","cell_count":2,"cells":[` +
					`{"id":1,"opcode":"print","args":["a"],"is_reversible":false,"executed":false},` +
					`{"id":1,"opcode":"print","args":["b"],"is_reversible":false,"executed":false}]}`))
				require.NoError(t, err)
				return p
			},
			want: MsgDuplicateID,
		},
		{
			name: "statistics mismatch",
			build: func(t *testing.T) *ir.Program {
				p, err := ir.Decode([]byte(`{"source_name":"doc","cell_count":4,"cells":[` +
					`{"id":1,"opcode":"print","args":["a"],"is_reversible":false,"executed":false}]}`))
				require.NoError(t, err)
				return p
			},
			want: MsgStatsMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newChecker().ValidateStructure(tt.build(t))
			assert.False(t, res.IsConsistent)
			assert.Equal(t, tt.want, res.Message)
		})
	}
}

func TestCheckReplay_RTermFailure(t *testing.T) {
	p := program(t,
		ir.NewCell(ir.OpAdd, "1", "1"),
		ir.NewCell(ir.OpDivide, "4", "0"),
		ir.NewCell(ir.OpPrint, "never"),
	)

	res, err := newChecker().CheckReplay(context.Background(), p, nil)
	require.NoError(t, err)

	assert.False(t, res.IsConsistent)
	assert.Equal(t, MsgRTermFailed, res.Message)
	assert.Equal(t, int64(2), res.CellID)
	assert.Equal(t, 2, res.OperationsChecked)
	assert.NotEmpty(t, res.Detail)
}

func TestCheckReplay_OutcomeMismatchFailsFast(t *testing.T) {
	p := program(t,
		ir.NewDTermCell(ir.OpRead),
		ir.NewCell(ir.OpPrint, "after"),
	)
	expected := []Expectation{
		{Operation: "read", ShouldSucceed: true},
		{Operation: "print", ShouldSucceed: true},
	}

	res, err := newChecker().CheckReplay(context.Background(), p, expected)
	require.NoError(t, err)

	assert.False(t, res.IsConsistent)
	assert.Equal(t, MsgSideEffectMismatch, res.Message)
	assert.Equal(t, 1, res.OperationsChecked)
	assert.Equal(t, 1, res.SideEffectsVerified)
}

func TestCheckReplay_ExpectedFailureContinues(t *testing.T) {
	p := program(t,
		ir.NewDTermCell(ir.OpRead),
		ir.NewCell(ir.OpPrint, "after"),
	)
	expected := []Expectation{
		{Operation: "read", ShouldSucceed: false},
		{Operation: "print", ShouldSucceed: true},
	}

	res, err := newChecker().CheckReplay(context.Background(), p, expected)
	require.NoError(t, err)

	assert.True(t, res.IsConsistent, res.Message)
	assert.Equal(t, 2, res.OperationsChecked)
	assert.Equal(t, 2, res.SideEffectsVerified)
}

func TestCheckReplay_OpcodeMismatchWarns(t *testing.T) {
	p := program(t, ir.NewCell(ir.OpPrint, "x"), ir.NewCell(ir.OpPrint, "y"))
	expected := []Expectation{
		{Operation: "read", ShouldSucceed: true},
		{Operation: "print", Args: []string{"other"}, ShouldSucceed: true},
	}

	res, err := newChecker().CheckReplay(context.Background(), p, expected)
	require.NoError(t, err)

	assert.True(t, res.IsConsistent)
	assert.Equal(t, 1, res.SideEffectsVerified)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "does not match expected read")
	assert.Contains(t, res.Warnings[1], "args")
}

func TestCheckReplay_UnexpectedAndUnobservedEffects(t *testing.T) {
	res, err := newChecker().CheckReplay(context.Background(), program(t, ir.NewCell(ir.OpPrint, "x")), nil)
	require.NoError(t, err)
	assert.True(t, res.IsConsistent)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "unexpected side effect")

	res, err = newChecker().CheckReplay(context.Background(), program(t, ir.NewCell(ir.OpAdd, "1", "2")),
		[]Expectation{{Operation: "print", ShouldSucceed: true}})
	require.NoError(t, err)
	assert.True(t, res.IsConsistent)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "not observed")
}

func TestCheckReplay_GatesRoundTrip(t *testing.T) {
	p := program(t,
		ir.NewCell(ir.OpFlip, "0"),
		ir.NewCell(ir.OpToggle1, "0", "1"),
		ir.NewCell(ir.OpToggle2, "0", "1", "2"),
		ir.NewCell(ir.OpSwap, "2", "3"),
	)
	res, err := newChecker().CheckReplay(context.Background(), p, nil)
	require.NoError(t, err)
	assert.True(t, res.IsConsistent, res.Message)
	assert.Equal(t, 4, res.OperationsChecked)
}

func TestCheckReplay_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newChecker().CheckReplay(ctx, endToEnd(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChecker_RunStopsAtStructuralFailure(t *testing.T) {
	m := metrics.New()
	c := newChecker(WithMetrics(m))

	bad := ir.NewProgram("bad")
	require.NoError(t, bad.AppendWithID(&ir.Cell{ID: 1, Opcode: ir.OpAdd, Operands: []string{"1", "2"}, Reversible: true}))

	rep, err := c.Run(context.Background(), bad, nil)
	require.NoError(t, err)
	assert.False(t, rep.IsConsistent())
	assert.Nil(t, rep.Behavioral)
	assert.Equal(t, MsgMissingInverse, rep.First().Message)

	rep, err = c.Run(context.Background(), endToEnd(t), []Expectation{{Operation: "print", ShouldSucceed: true}})
	require.NoError(t, err)
	assert.True(t, rep.IsConsistent())
	require.NotNil(t, rep.Behavioral)
	assert.Equal(t, 1, rep.First().SideEffectsVerified)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	out := buf.String()
	assert.Contains(t, out, `rio_check_runs_total{kind="structural",verdict="inconsistent"} 1`)
	assert.Contains(t, out, `rio_check_runs_total{kind="behavioral",verdict="consistent"} 1`)
}

func TestLoadExpectations(t *testing.T) {
	src := `
- operation: print
  args: ["done"]
- operation: read
  should_succeed: false
`
	exps, err := LoadExpectations(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []Expectation{
		{Operation: "print", Args: []string{"done"}, ShouldSucceed: true},
		{Operation: "read", ShouldSucceed: false},
	}, exps)

	exps, err = LoadExpectations(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, exps)

	_, err = LoadExpectations(strings.NewReader("- args: [x]\n"))
	assert.Error(t, err)

	_, err = LoadExpectations(strings.NewReader("- operation: print\n  bogus: 1\n"))
	assert.Error(t, err)
}
