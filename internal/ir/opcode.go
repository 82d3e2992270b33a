package ir

import "strings"

// Opcode names an operation a cell performs.
type Opcode string

// Arithmetic, comparison, control and I/O opcodes.
const (
	OpAdd      Opcode = "add"
	OpSubtract Opcode = "subtract"
	OpMultiply Opcode = "multiply"
	OpDivide   Opcode = "divide"
	OpEqual    Opcode = "equal"
	OpLess     Opcode = "less"
	OpGreater  Opcode = "greater"
	OpJump     Opcode = "jump"
	OpJumpIf   Opcode = "jump_if"
	OpPrint    Opcode = "print"
	OpRead     Opcode = "read"
	OpStore    Opcode = "store"
	OpLoad     Opcode = "load"
	OpSend     Opcode = "send"
)

// Gate opcodes. Each is its own inverse.
const (
	OpToggle2 Opcode = "toggle2"
	OpToggle1 Opcode = "toggle1"
	OpFlip    Opcode = "flip"
	OpSwap    Opcode = "swap"
)

// Dissipative boolean opcodes. None has an inverse.
const (
	OpAnd  Opcode = "and"
	OpOr   Opcode = "or"
	OpXor  Opcode = "xor"
	OpNand Opcode = "nand"
	OpNor  Opcode = "nor"
)

// inverses lists composite opcodes with a table-defined inverse.
var inverses = map[Opcode]Opcode{
	OpAdd:      OpSubtract,
	OpSubtract: OpAdd,
	OpMultiply: OpDivide,
	OpDivide:   OpMultiply,
}

// IsGate reports whether op is one of the four self-inverse primitives.
func (op Opcode) IsGate() bool {
	switch op {
	case OpToggle2, OpToggle1, OpFlip, OpSwap:
		return true
	}
	return false
}

// IsDissipative reports whether op is a D-layer boolean gate.
func (op Opcode) IsDissipative() bool {
	switch op {
	case OpAnd, OpOr, OpXor, OpNand, OpNor:
		return true
	}
	return false
}

// IsArithmetic reports whether op computes an integer from two operands.
func (op Opcode) IsArithmetic() bool {
	switch op {
	case OpAdd, OpSubtract, OpMultiply, OpDivide:
		return true
	}
	return false
}

// IsComparison reports whether op compares two operands.
func (op Opcode) IsComparison() bool {
	switch op {
	case OpEqual, OpLess, OpGreater:
		return true
	}
	return false
}

// InverseOf returns the opcode that undoes op. Gates are their own inverse.
func InverseOf(op Opcode) (Opcode, bool) {
	if op.IsGate() {
		return op, true
	}
	inv, ok := inverses[op]
	return inv, ok
}

// HasInverse reports whether op has a resolvable inverse.
func HasInverse(op Opcode) bool {
	_, ok := InverseOf(op)
	return ok
}

// Upper returns the opcode in the upper-case form used by Cell.String.
func (op Opcode) Upper() string { return strings.ToUpper(string(op)) }
