package bits

import (
	"fmt"
	"time"
)

// Checkpoint is an immutable snapshot of a store.
type Checkpoint struct {
	ID        int
	Bits      []bool
	ExecIndex int
	Label     string
	CreatedAt time.Time
}

// Width returns the bit width recorded in the checkpoint.
func (c Checkpoint) Width() int { return len(c.Bits) }

// Checkpoint records the current bits and log position.
func (s *Store) Checkpoint(label string) Checkpoint {
	cp := Checkpoint{
		ID:        s.nextCPID,
		Bits:      s.Snapshot(),
		ExecIndex: len(s.log),
		Label:     label,
		CreatedAt: s.now(),
	}
	s.nextCPID++
	s.checkpoints = append(s.checkpoints, cp)
	return cp
}

// Checkpoints returns the store's checkpoints, oldest first.
func (s *Store) Checkpoints() []Checkpoint {
	out := make([]Checkpoint, len(s.checkpoints))
	copy(out, s.checkpoints)
	return out
}

// LookupCheckpoint returns the checkpoint with the given id.
func (s *Store) LookupCheckpoint(id int) (Checkpoint, bool) {
	for _, cp := range s.checkpoints {
		if cp.ID == id {
			return cp, true
		}
	}
	return Checkpoint{}, false
}

// Restore copies cp's bits into the store and truncates the log to the
// checkpoint's position. A checkpoint of a different width is rejected
// before anything changes.
func (s *Store) Restore(cp Checkpoint) error {
	if len(cp.Bits) != len(s.bits) {
		return fmt.Errorf("%w: checkpoint has %d bits, store has %d", ErrWidthMismatch, len(cp.Bits), len(s.bits))
	}
	copy(s.bits, cp.Bits)
	if cp.ExecIndex >= 0 && cp.ExecIndex < len(s.log) {
		clear(s.log[cp.ExecIndex:])
		s.log = s.log[:cp.ExecIndex]
	}
	return nil
}

// Discard drops the checkpoint with the given id.
func (s *Store) Discard(id int) error {
	for i, cp := range s.checkpoints {
		if cp.ID == id {
			s.checkpoints = append(s.checkpoints[:i], s.checkpoints[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrCheckpointNotFound, id)
}
