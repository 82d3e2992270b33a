// Package dlayer builds irreversible boolean gates out of the reversible
// primitives in package bits.
//
// Each gate clears its result bit and then recomputes it from the inputs,
// erasing whatever the result held before. That erasure is the only place
// the system discards information. OR and NOR borrow two ancilla bits from
// the top of the store and return them cleared.
package dlayer

import (
	"errors"
	"fmt"

	"github.com/roach88/rio/internal/bits"
)

var (
	// ErrAncillaExhausted is returned when a gate needs more ancilla bits
	// than the layer reserves.
	ErrAncillaExhausted = errors.New("not enough ancilla bits")

	// ErrAncillaOperand is returned when an operand addresses the ancilla
	// region.
	ErrAncillaOperand = errors.New("operand addresses an ancilla bit")

	// ErrResultAliased is returned when the result bit is also an input.
	ErrResultAliased = errors.New("result bit aliases an input")
)

// Op identifies a dissipative gate.
type Op int

const (
	And Op = iota + 1
	Or
	Xor
	Nand
	Nor
)

func (op Op) String() string {
	switch op {
	case And:
		return "and"
	case Or:
		return "or"
	case Xor:
		return "xor"
	case Nand:
		return "nand"
	case Nor:
		return "nor"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// ParseOp maps an opcode name to an Op.
func ParseOp(name string) (Op, bool) {
	switch name {
	case "and":
		return And, true
	case "or":
		return Or, true
	case "xor":
		return Xor, true
	case "nand":
		return Nand, true
	case "nor":
		return Nor, true
	}
	return 0, false
}

// Eval is the reference truth table for op.
func Eval(op Op, a, b bool) bool {
	switch op {
	case And:
		return a && b
	case Or:
		return a || b
	case Xor:
		return a != b
	case Nand:
		return !(a && b)
	case Nor:
		return !(a || b)
	default:
		return false
	}
}

// Layer runs dissipative gates against a bit store. Bits [0, AncillaBase)
// hold data; the remaining bits are ancillas.
type Layer struct {
	store    *bits.Store
	ancillas int
}

// New reserves the top ancillas bits of store as scratch space.
func New(store *bits.Store, ancillas int) (*Layer, error) {
	if ancillas < 0 {
		return nil, fmt.Errorf("ancilla count must not be negative, got %d", ancillas)
	}
	if ancillas >= store.Width() {
		return nil, fmt.Errorf("%d ancillas leave no data bits in a %d-bit store", ancillas, store.Width())
	}
	return &Layer{store: store, ancillas: ancillas}, nil
}

// NewWithStore creates a fresh store of dataBits+ancillas bits and a layer
// over it.
func NewWithStore(dataBits, ancillas int, opts ...bits.Option) (*Layer, error) {
	s, err := bits.New(dataBits+ancillas, opts...)
	if err != nil {
		return nil, err
	}
	return New(s, ancillas)
}

// Store returns the underlying bit store.
func (l *Layer) Store() *bits.Store { return l.store }

// AncillaBase is the index of the first ancilla bit.
func (l *Layer) AncillaBase() int { return l.store.Width() - l.ancillas }

// Ancillas returns the number of reserved ancilla bits.
func (l *Layer) Ancillas() int { return l.ancillas }

// Apply dispatches op.
func (l *Layer) Apply(op Op, a, b, result int) error {
	switch op {
	case And:
		return l.AND(a, b, result)
	case Or:
		return l.OR(a, b, result)
	case Xor:
		return l.XOR(a, b, result)
	case Nand:
		return l.NAND(a, b, result)
	case Nor:
		return l.NOR(a, b, result)
	default:
		return fmt.Errorf("unknown dissipative op %d", int(op))
	}
}

// AND sets result to a AND b.
func (l *Layer) AND(a, b, result int) error {
	if err := l.checkOperands(a, b, result); err != nil {
		return err
	}
	if err := l.clear(result); err != nil {
		return err
	}
	return l.store.Toggle2(a, b, result)
}

// OR sets result to a OR b via De Morgan: the inverted inputs are copied
// into two ancillas, ANDed into result and the result is inverted. The
// ancillas are cleared before use and restored afterwards.
func (l *Layer) OR(a, b, result int) error {
	if err := l.checkOperands(a, b, result); err != nil {
		return err
	}
	if l.ancillas < 2 {
		return fmt.Errorf("or needs 2 ancillas, layer has %d: %w", l.ancillas, ErrAncillaExhausted)
	}
	na, nb := l.AncillaBase(), l.AncillaBase()+1
	if err := l.clear(na); err != nil {
		return err
	}
	if err := l.clear(nb); err != nil {
		return err
	}

	steps := []func() error{
		func() error { return l.store.Toggle1(a, na) },
		func() error { return l.store.Toggle1(b, nb) },
		func() error { return l.store.Flip(na) },
		func() error { return l.store.Flip(nb) },
		func() error { return l.clear(result) },
		func() error { return l.store.Toggle2(na, nb, result) },
		func() error { return l.store.Flip(result) },
		// restore ancillas
		func() error { return l.store.Flip(nb) },
		func() error { return l.store.Flip(na) },
		func() error { return l.store.Toggle1(b, nb) },
		func() error { return l.store.Toggle1(a, na) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// XOR sets result to a XOR b.
func (l *Layer) XOR(a, b, result int) error {
	if err := l.checkOperands(a, b, result); err != nil {
		return err
	}
	if err := l.clear(result); err != nil {
		return err
	}
	if err := l.store.Toggle1(a, result); err != nil {
		return err
	}
	return l.store.Toggle1(b, result)
}

// NAND sets result to NOT (a AND b).
func (l *Layer) NAND(a, b, result int) error {
	if err := l.AND(a, b, result); err != nil {
		return err
	}
	return l.store.Flip(result)
}

// NOR sets result to NOT (a OR b).
func (l *Layer) NOR(a, b, result int) error {
	if err := l.OR(a, b, result); err != nil {
		return err
	}
	return l.store.Flip(result)
}

// clear forces bit i to zero. This is where information is lost.
func (l *Layer) clear(i int) error {
	v, err := l.store.Read(i)
	if err != nil {
		return err
	}
	if !v {
		return nil
	}
	return l.store.Flip(i)
}

// checkOperands runs before any gate so a rejected call never mutates.
func (l *Layer) checkOperands(a, b, result int) error {
	base := l.AncillaBase()
	for _, i := range []int{a, b, result} {
		if i < 0 || i >= l.store.Width() {
			return fmt.Errorf("%w: %d", bits.ErrIndexOutOfRange, i)
		}
		if i >= base {
			return fmt.Errorf("%w: %d", ErrAncillaOperand, i)
		}
	}
	if result == a || result == b {
		return fmt.Errorf("%w: %d", ErrResultAliased, result)
	}
	return nil
}
