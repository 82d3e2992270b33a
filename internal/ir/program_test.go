package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgram_AppendAssignsMonotonicIDs(t *testing.T) {
	p := NewProgram("ids")

	for i := 1; i <= 3; i++ {
		c, err := p.Append(NewCell(OpAdd, "1", "1"))
		require.NoError(t, err)
		assert.Equal(t, int64(i), c.ID)
	}
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 3, p.CellCount())

	_, err := p.Append(nil)
	assert.ErrorIs(t, err, ErrNilCell)
}

func TestProgram_AppendDerivesInverseOnce(t *testing.T) {
	p := NewProgram("inv")

	add, err := p.Append(NewCell(OpAdd, "5", "3"))
	require.NoError(t, err)
	require.NotNil(t, add.Inverse)
	assert.Equal(t, OpSubtract, add.Inverse.Opcode)
	assert.Nil(t, add.Inverse.Inverse)

	printCell, err := p.Append(NewDTermCell(OpPrint, "done"))
	require.NoError(t, err)
	assert.Nil(t, printCell.Inverse)

	// A reversible cell whose opcode has no inverse stays inverse-less.
	bogus := &Cell{Opcode: "teleport", Reversible: true}
	_, err = p.Append(bogus)
	require.NoError(t, err)
	assert.Nil(t, bogus.Inverse)
}

func TestProgram_Lookup(t *testing.T) {
	p := NewProgram("lookup")
	_, _ = p.Append(NewCell(OpAdd, "1", "2"))
	second, _ := p.Append(NewCell(OpFlip, "0"))

	got, ok := p.ByID(2)
	require.True(t, ok)
	assert.Same(t, second, got)

	got, ok = p.At(1)
	require.True(t, ok)
	assert.Same(t, second, got)

	_, ok = p.ByID(99)
	assert.False(t, ok)
	_, ok = p.At(2)
	assert.False(t, ok)
	_, ok = p.At(-1)
	assert.False(t, ok)
}

func TestProgram_Stats(t *testing.T) {
	p := NewProgram("stats")
	a, _ := p.Append(NewCell(OpAdd, "5", "3"))
	_, _ = p.Append(NewCell(OpMultiply, "result", "2"))
	_, _ = p.Append(NewDTermCell(OpPrint, "done"))
	a.Executed = true

	assert.Equal(t, Stats{Total: 3, RTerm: 2, DTerm: 1, Executed: 1}, p.Stats())
}

func TestProgram_SetPC(t *testing.T) {
	p := NewProgram("pc")
	_, _ = p.Append(NewCell(OpFlip, "0"))

	require.NoError(t, p.SetPC(1))
	assert.True(t, p.IsComplete())
	assert.Error(t, p.SetPC(2))
	assert.Error(t, p.SetPC(-1))
	assert.Equal(t, 1, p.PC())
}

func TestProgram_Checkpoints(t *testing.T) {
	p := NewProgram("cp")
	at := time.Unix(100, 0)

	first := p.AddCheckpoint(0, 1, "start", at)
	second := p.AddCheckpoint(2, 2, "", at)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)

	latest, ok := p.LatestCheckpoint()
	require.True(t, ok)
	assert.Equal(t, second, latest)

	got, ok := p.LookupCheckpoint(1)
	require.True(t, ok)
	assert.Equal(t, "start", got.Label)

	assert.True(t, p.DropCheckpoint(2))
	assert.False(t, p.DropCheckpoint(2))
	assert.Len(t, p.Checkpoints(), 1)
}

func TestProgram_FreshResetsExecutionState(t *testing.T) {
	p := NewProgram("fresh")
	a, _ := p.Append(NewCell(OpAdd, "5", "3"))
	_, _ = p.Append(NewDTermCell(OpPrint, "done"))
	a.Executed = true
	a.Result = IRInt(8)
	require.NoError(t, p.SetPC(1))
	p.AddCheckpoint(1, 0, "mid", time.Unix(0, 0))

	f := p.Fresh()
	assert.Equal(t, "fresh", f.SourceName)
	assert.Equal(t, 0, f.PC())
	assert.Empty(t, f.Checkpoints())
	require.Equal(t, 2, f.Len())

	got := f.Cells()[0]
	assert.NotSame(t, a, got)
	assert.Equal(t, int64(1), got.ID)
	assert.False(t, got.Executed)
	assert.Nil(t, got.Result)

	// the original keeps its state
	assert.True(t, a.Executed)
	assert.Equal(t, IRInt(8), a.Result)

	c, err := f.Append(NewCell(OpFlip, "0"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.ID)
}
