package bits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, width int) *Store {
	t.Helper()
	s, err := New(width, WithInstanceID("test"))
	require.NoError(t, err)
	return s
}

// seed writes a 0/1 pattern into the low bits.
func seed(t *testing.T, s *Store, pattern string) {
	t.Helper()
	for i, ch := range pattern {
		require.NoError(t, s.Write(i, ch == '1'))
	}
}

func TestNew_RejectsNonPositiveWidth(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(-3)
	assert.Error(t, err)
}

func TestNew_GeneratesInstanceID(t *testing.T) {
	a, err := New(4)
	require.NoError(t, err)
	b, err := New(4)
	require.NoError(t, err)

	assert.NotEmpty(t, a.InstanceID())
	assert.NotEqual(t, a.InstanceID(), b.InstanceID())
}

func TestGates_Semantics(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		gate    Gate
		want    string
	}{
		{"toggle2 both set", "110", Gate{Kind: Toggle2, A: 0, B: 1, C: 2}, "111"},
		{"toggle2 one set", "100", Gate{Kind: Toggle2, A: 0, B: 1, C: 2}, "100"},
		{"toggle2 flips set target", "111", Gate{Kind: Toggle2, A: 0, B: 1, C: 2}, "110"},
		{"toggle1 control set", "10", Gate{Kind: Toggle1, A: 0, B: 1}, "11"},
		{"toggle1 control clear", "01", Gate{Kind: Toggle1, A: 0, B: 1}, "01"},
		{"flip", "0", Gate{Kind: Flip, A: 0}, "1"},
		{"swap", "10", Gate{Kind: Swap, A: 0, B: 1}, "01"},
		{"swap same index", "10", Gate{Kind: Swap, A: 0, B: 0}, "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, len(tt.initial))
			seed(t, s, tt.initial)

			require.NoError(t, s.Apply(tt.gate))
			assert.Equal(t, tt.want, s.String())
		})
	}
}

func TestGates_Involution(t *testing.T) {
	gates := []Gate{
		{Kind: Toggle2, A: 0, B: 1, C: 2},
		{Kind: Toggle1, A: 0, B: 2},
		{Kind: Flip, A: 1},
		{Kind: Swap, A: 0, B: 2},
	}

	for _, g := range gates {
		for mask := 0; mask < 8; mask++ {
			s := newStore(t, 3)
			for i := 0; i < 3; i++ {
				require.NoError(t, s.Write(i, mask&(1<<i) != 0))
			}
			before := s.Snapshot()

			require.NoError(t, s.Apply(g))
			require.NoError(t, s.Apply(g))

			assert.Equal(t, before, s.Snapshot(), "%s on mask %03b", g, mask)
		}
	}
}

func TestGates_OutOfRangeDoesNotMutate(t *testing.T) {
	s := newStore(t, 3)
	seed(t, s, "111")

	err := s.Toggle2(0, 1, 3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	err = s.Toggle1(-1, 0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	err = s.Flip(7)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	err = s.Swap(0, 3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	assert.Equal(t, "111", s.String())
	assert.Equal(t, 0, s.ExecIndex())
}

func TestGates_AliasedTargetRejected(t *testing.T) {
	s := newStore(t, 3)
	seed(t, s, "110")

	assert.ErrorIs(t, s.Toggle2(0, 1, 0), ErrAliasedOperands)
	assert.ErrorIs(t, s.Toggle1(1, 1), ErrAliasedOperands)
	assert.Equal(t, "110", s.String())
}

func TestStore_UndoLast(t *testing.T) {
	s := newStore(t, 4)
	seed(t, s, "1000")

	require.NoError(t, s.Toggle1(0, 1))
	require.NoError(t, s.Swap(1, 3))
	require.NoError(t, s.Flip(2))
	assert.Equal(t, "1011", s.String())
	assert.Equal(t, 3, s.ExecIndex())

	g, err := s.UndoLast()
	require.NoError(t, err)
	assert.Equal(t, Flip, g.Kind)
	assert.Equal(t, "1001", s.String())

	_, err = s.UndoLast()
	require.NoError(t, err)
	_, err = s.UndoLast()
	require.NoError(t, err)
	assert.Equal(t, "1000", s.String())

	_, err = s.UndoLast()
	assert.ErrorIs(t, err, ErrEmptyLog)
}

func TestStore_ReadWrite(t *testing.T) {
	s := newStore(t, 2)

	require.NoError(t, s.Write(1, true))
	v, err := s.Read(1)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = s.Read(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Write(-1, true), ErrIndexOutOfRange)
	assert.Equal(t, 0, s.ExecIndex(), "writes are not logged")
}

func TestCheckpoint_RestoreRewindsBitsAndLog(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := New(3, WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	require.NoError(t, s.Flip(0))

	cp := s.Checkpoint("after-flip")
	assert.Equal(t, 1, cp.ID)
	assert.Equal(t, 1, cp.ExecIndex)
	assert.Equal(t, "after-flip", cp.Label)
	assert.Equal(t, at, cp.CreatedAt)

	require.NoError(t, s.Toggle1(0, 1))
	require.NoError(t, s.Swap(1, 2))
	assert.Equal(t, "101", s.String())

	require.NoError(t, s.Restore(cp))
	assert.Equal(t, "100", s.String())
	assert.Equal(t, 1, s.ExecIndex())
}

func TestCheckpoint_IsImmutable(t *testing.T) {
	s := newStore(t, 2)
	cp := s.Checkpoint("")

	require.NoError(t, s.Flip(0))
	assert.Equal(t, []bool{false, false}, cp.Bits)

	stored, ok := s.LookupCheckpoint(cp.ID)
	require.True(t, ok)
	assert.Equal(t, []bool{false, false}, stored.Bits)
}

func TestCheckpoint_WidthMismatch(t *testing.T) {
	small := newStore(t, 2)
	big := newStore(t, 4)
	seed(t, big, "1010")

	err := big.Restore(small.Checkpoint("small"))
	assert.ErrorIs(t, err, ErrWidthMismatch)
	assert.Equal(t, "1010", big.String())
}

func TestCheckpoint_MultipleAndDiscard(t *testing.T) {
	s := newStore(t, 2)
	first := s.Checkpoint("a")
	require.NoError(t, s.Flip(0))
	second := s.Checkpoint("b")
	require.NoError(t, s.Flip(1))

	require.Len(t, s.Checkpoints(), 2)

	require.NoError(t, s.Restore(second))
	assert.Equal(t, "10", s.String())
	require.NoError(t, s.Restore(first))
	assert.Equal(t, "00", s.String())

	require.NoError(t, s.Discard(first.ID))
	_, ok := s.LookupCheckpoint(first.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Discard(first.ID), ErrCheckpointNotFound)
	assert.Len(t, s.Checkpoints(), 1)
}

func TestNewGate(t *testing.T) {
	g, err := NewGate(Toggle2, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, g.Operands())
	assert.Equal(t, "toggle2(1, 2, 3)", g.String())

	_, err = NewGate(Flip, 1, 2)
	assert.Error(t, err)

	kind, ok := ParseGateKind("swap")
	require.True(t, ok)
	assert.Equal(t, Swap, kind)

	_, ok = ParseGateKind("nope")
	assert.False(t, ok)
}
