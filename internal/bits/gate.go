package bits

import "fmt"

// GateKind identifies one of the four invertible primitives.
type GateKind int

const (
	// Toggle2 flips bit C when bits A and B are both set.
	Toggle2 GateKind = iota + 1
	// Toggle1 flips bit B when bit A is set.
	Toggle1
	// Flip unconditionally flips bit A.
	Flip
	// Swap exchanges bits A and B.
	Swap
)

// String returns the opcode name used for the gate in cells.
func (k GateKind) String() string {
	switch k {
	case Toggle2:
		return "toggle2"
	case Toggle1:
		return "toggle1"
	case Flip:
		return "flip"
	case Swap:
		return "swap"
	default:
		return fmt.Sprintf("GateKind(%d)", int(k))
	}
}

// Arity returns the number of bit operands the gate takes.
func (k GateKind) Arity() int {
	switch k {
	case Toggle2:
		return 3
	case Toggle1, Swap:
		return 2
	case Flip:
		return 1
	default:
		return 0
	}
}

// ParseGateKind maps an opcode name back to its GateKind.
func ParseGateKind(name string) (GateKind, bool) {
	switch name {
	case "toggle2":
		return Toggle2, true
	case "toggle1":
		return Toggle1, true
	case "flip":
		return Flip, true
	case "swap":
		return Swap, true
	}
	return 0, false
}

// Gate is one applied primitive as recorded in the execution log.
// Unused operands are zero.
type Gate struct {
	Kind GateKind
	A    int
	B    int
	C    int
}

// Operands returns the gate's bit indices in declaration order.
func (g Gate) Operands() []int {
	switch g.Kind.Arity() {
	case 3:
		return []int{g.A, g.B, g.C}
	case 2:
		return []int{g.A, g.B}
	case 1:
		return []int{g.A}
	default:
		return nil
	}
}

func (g Gate) String() string {
	switch g.Kind.Arity() {
	case 3:
		return fmt.Sprintf("%s(%d, %d, %d)", g.Kind, g.A, g.B, g.C)
	case 2:
		return fmt.Sprintf("%s(%d, %d)", g.Kind, g.A, g.B)
	default:
		return fmt.Sprintf("%s(%d)", g.Kind, g.A)
	}
}

// NewGate builds a Gate from a kind and its operands.
func NewGate(kind GateKind, operands ...int) (Gate, error) {
	if kind.Arity() == 0 {
		return Gate{}, fmt.Errorf("unknown gate kind %d", int(kind))
	}
	if len(operands) != kind.Arity() {
		return Gate{}, fmt.Errorf("%s takes %d operands, got %d", kind, kind.Arity(), len(operands))
	}
	g := Gate{Kind: kind}
	switch kind.Arity() {
	case 3:
		g.A, g.B, g.C = operands[0], operands[1], operands[2]
	case 2:
		g.A, g.B = operands[0], operands[1]
	case 1:
		g.A = operands[0]
	}
	return g, nil
}
