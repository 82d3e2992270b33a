package ir

import (
	"errors"
	"fmt"
	"time"
)

// ErrNilCell is returned when appending a nil cell.
var ErrNilCell = errors.New("nil cell")

// Checkpoint is a rollback target recorded on a program.
// BitsID links to the substrate checkpoint taken at the same moment.
type Checkpoint struct {
	ID        int
	PC        int
	BitsID    int
	Label     string
	CreatedAt time.Time
}

// Stats summarises a program's cells.
type Stats struct {
	Total    int `json:"total"`
	RTerm    int `json:"r_term"`
	DTerm    int `json:"d_term"`
	Executed int `json:"executed"`
}

// Program is an ordered, append-only sequence of cells.
//
// Ids are assigned from 1 in append order. The program counter indexes the
// next cell to execute; it is advanced and rewound by the runtime.
type Program struct {
	SourceName string

	cells       []*Cell
	declared    int
	nextID      int64
	pc          int
	checkpoints []Checkpoint
	nextCPID    int
}

// NewProgram creates an empty program.
func NewProgram(sourceName string) *Program {
	return &Program{
		SourceName: sourceName,
		cells:      make([]*Cell, 0, 16),
		nextID:     1,
		nextCPID:   1,
	}
}

// Append assigns c the next id and adds it to the end of the program.
// A reversible cell without an inverse gets one derived; the derived
// inverse is not itself linked back.
func (p *Program) Append(c *Cell) (*Cell, error) {
	if c == nil {
		return nil, ErrNilCell
	}
	c.ID = p.nextID
	p.nextID++
	if c.Reversible && c.Inverse == nil {
		if inv, ok := DeriveInverse(c); ok {
			c.Inverse = inv
		}
	}
	p.cells = append(p.cells, c)
	p.declared++
	return c, nil
}

// AppendWithID adds c keeping its id. Used when rebuilding a program from
// a document; no inverse derivation and no uniqueness check happen here.
func (p *Program) AppendWithID(c *Cell) error {
	if c == nil {
		return ErrNilCell
	}
	if c.ID >= p.nextID {
		p.nextID = c.ID + 1
	}
	p.cells = append(p.cells, c)
	p.declared++
	return nil
}

// Fresh returns a copy of p with every cell cloned and reset, the pc at
// zero and no checkpoints. Ids and the declared count are kept.
func (p *Program) Fresh() *Program {
	out := NewProgram(p.SourceName)
	for _, c := range p.cells {
		cc := c.Clone()
		cc.Reset()
		out.cells = append(out.cells, cc)
	}
	out.nextID = p.nextID
	out.declared = p.declared
	return out
}

// Len returns the number of cells.
func (p *Program) Len() int { return len(p.cells) }

// CellCount returns the count the program reports for itself. It equals Len
// unless the program was decoded from a document declaring otherwise.
func (p *Program) CellCount() int { return p.declared }

// At returns the cell at index i.
func (p *Program) At(i int) (*Cell, bool) {
	if i < 0 || i >= len(p.cells) {
		return nil, false
	}
	return p.cells[i], true
}

// ByID returns the first cell with the given id.
func (p *Program) ByID(id int64) (*Cell, bool) {
	for _, c := range p.cells {
		if c != nil && c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Cells returns the program's cells in order. The slice is a copy; the
// cells are shared.
func (p *Program) Cells() []*Cell {
	out := make([]*Cell, len(p.cells))
	copy(out, p.cells)
	return out
}

// PC returns the index of the next cell to execute.
func (p *Program) PC() int { return p.pc }

// SetPC moves the program counter. pc may equal Len (complete).
func (p *Program) SetPC(pc int) error {
	if pc < 0 || pc > len(p.cells) {
		return fmt.Errorf("pc %d outside [0, %d]", pc, len(p.cells))
	}
	p.pc = pc
	return nil
}

// IsComplete reports whether every cell has been stepped.
func (p *Program) IsComplete() bool { return p.pc >= len(p.cells) }

// Stats counts cells by kind and execution state.
func (p *Program) Stats() Stats {
	var s Stats
	s.Total = p.declared
	for _, c := range p.cells {
		if c == nil {
			continue
		}
		if c.Reversible {
			s.RTerm++
		} else {
			s.DTerm++
		}
		if c.Executed {
			s.Executed++
		}
	}
	return s
}

// AddCheckpoint records a rollback target at pc.
func (p *Program) AddCheckpoint(pc, bitsID int, label string, at time.Time) Checkpoint {
	cp := Checkpoint{ID: p.nextCPID, PC: pc, BitsID: bitsID, Label: label, CreatedAt: at}
	p.nextCPID++
	p.checkpoints = append(p.checkpoints, cp)
	return cp
}

// Checkpoints returns the program's checkpoints, oldest first.
func (p *Program) Checkpoints() []Checkpoint {
	out := make([]Checkpoint, len(p.checkpoints))
	copy(out, p.checkpoints)
	return out
}

// LookupCheckpoint returns the checkpoint with the given id.
func (p *Program) LookupCheckpoint(id int) (Checkpoint, bool) {
	for _, cp := range p.checkpoints {
		if cp.ID == id {
			return cp, true
		}
	}
	return Checkpoint{}, false
}

// LatestCheckpoint returns the most recent checkpoint.
func (p *Program) LatestCheckpoint() (Checkpoint, bool) {
	if len(p.checkpoints) == 0 {
		return Checkpoint{}, false
	}
	return p.checkpoints[len(p.checkpoints)-1], true
}

// DropCheckpoint removes the checkpoint with the given id.
func (p *Program) DropCheckpoint(id int) bool {
	for i, cp := range p.checkpoints {
		if cp.ID == id {
			p.checkpoints = append(p.checkpoints[:i], p.checkpoints[i+1:]...)
			return true
		}
	}
	return false
}
