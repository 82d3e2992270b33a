package bits

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrIndexOutOfRange is returned when a gate or accessor addresses a bit
	// outside the store.
	ErrIndexOutOfRange = errors.New("bit index out of range")

	// ErrAliasedOperands is returned when a controlled gate names its target
	// as one of its controls. Such a gate would not be self-inverse.
	ErrAliasedOperands = errors.New("gate target aliases a control bit")

	// ErrWidthMismatch is returned when restoring a checkpoint taken from a
	// store of a different width.
	ErrWidthMismatch = errors.New("checkpoint width does not match store")

	// ErrEmptyLog is returned by UndoLast when no gate has been applied.
	ErrEmptyLog = errors.New("execution log is empty")

	// ErrCheckpointNotFound is returned when a checkpoint id is unknown.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// Store is a fixed-width bit array with an append-only gate log.
type Store struct {
	instanceID  string
	bits        []bool
	log         []Gate
	checkpoints []Checkpoint
	nextCPID    int
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used to stamp checkpoints.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithInstanceID overrides the generated instance identifier.
func WithInstanceID(id string) Option {
	return func(s *Store) {
		s.instanceID = id
	}
}

// New creates a store of width bits, all cleared.
func New(width int, opts ...Option) (*Store, error) {
	if width <= 0 {
		return nil, fmt.Errorf("store width must be positive, got %d", width)
	}
	s := &Store{
		bits:     make([]bool, width),
		log:      make([]Gate, 0, 64),
		nextCPID: 1,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.instanceID == "" {
		s.instanceID = uuid.Must(uuid.NewV7()).String()
	}
	return s, nil
}

// InstanceID distinguishes independently created stores.
func (s *Store) InstanceID() string { return s.instanceID }

// Width returns the number of bit cells.
func (s *Store) Width() int { return len(s.bits) }

// ExecIndex returns the number of gates in the execution log.
func (s *Store) ExecIndex() int { return len(s.log) }

// Log returns a copy of the execution log.
func (s *Store) Log() []Gate {
	out := make([]Gate, len(s.log))
	copy(out, s.log)
	return out
}

// Read returns the value of bit i.
func (s *Store) Read(i int) (bool, error) {
	if err := s.check(i); err != nil {
		return false, err
	}
	return s.bits[i], nil
}

// Write sets bit i directly. Writes initialise inputs and are not logged,
// so they cannot be undone through UndoLast.
func (s *Store) Write(i int, v bool) error {
	if err := s.check(i); err != nil {
		return err
	}
	s.bits[i] = v
	return nil
}

// Snapshot returns a copy of the current bit state.
func (s *Store) Snapshot() []bool {
	out := make([]bool, len(s.bits))
	copy(out, s.bits)
	return out
}

// String renders the bits as a string of 0s and 1s, index 0 first.
func (s *Store) String() string {
	var b strings.Builder
	b.Grow(len(s.bits))
	for _, v := range s.bits {
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Toggle2 flips bit c when bits a and b are both set.
func (s *Store) Toggle2(a, b, c int) error {
	return s.Apply(Gate{Kind: Toggle2, A: a, B: b, C: c})
}

// Toggle1 flips bit b when bit a is set.
func (s *Store) Toggle1(a, b int) error {
	return s.Apply(Gate{Kind: Toggle1, A: a, B: b})
}

// Flip inverts bit a.
func (s *Store) Flip(a int) error {
	return s.Apply(Gate{Kind: Flip, A: a})
}

// Swap exchanges bits a and b.
func (s *Store) Swap(a, b int) error {
	return s.Apply(Gate{Kind: Swap, A: a, B: b})
}

// Apply validates g, applies it and appends it to the log.
// On error the bit state and log are untouched.
func (s *Store) Apply(g Gate) error {
	if err := s.validate(g); err != nil {
		return err
	}
	s.apply(g)
	s.log = append(s.log, g)
	return nil
}

// UndoLast re-applies the most recent gate and removes it from the log.
func (s *Store) UndoLast() (Gate, error) {
	if len(s.log) == 0 {
		return Gate{}, ErrEmptyLog
	}
	g := s.log[len(s.log)-1]
	s.apply(g)
	s.log = s.log[:len(s.log)-1]
	return g, nil
}

func (s *Store) validate(g Gate) error {
	if g.Kind.Arity() == 0 {
		return fmt.Errorf("unknown gate kind %d", int(g.Kind))
	}
	for _, i := range g.Operands() {
		if err := s.check(i); err != nil {
			return fmt.Errorf("%s: %w", g, err)
		}
	}
	switch g.Kind {
	case Toggle2:
		if g.C == g.A || g.C == g.B {
			return fmt.Errorf("%s: %w", g, ErrAliasedOperands)
		}
	case Toggle1:
		if g.A == g.B {
			return fmt.Errorf("%s: %w", g, ErrAliasedOperands)
		}
	}
	return nil
}

func (s *Store) apply(g Gate) {
	switch g.Kind {
	case Toggle2:
		if s.bits[g.A] && s.bits[g.B] {
			s.bits[g.C] = !s.bits[g.C]
		}
	case Toggle1:
		if s.bits[g.A] {
			s.bits[g.B] = !s.bits[g.B]
		}
	case Flip:
		s.bits[g.A] = !s.bits[g.A]
	case Swap:
		s.bits[g.A], s.bits[g.B] = s.bits[g.B], s.bits[g.A]
	}
}

func (s *Store) check(i int) error {
	if i < 0 || i >= len(s.bits) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(s.bits))
	}
	return nil
}
