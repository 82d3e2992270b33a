package hrir

import (
	"errors"
	"fmt"

	"github.com/roach88/rio/internal/ir"
)

var (
	// ErrAtEnd is returned by Step when the program is complete.
	ErrAtEnd = errors.New("program counter at end of program")

	// ErrAtStart is returned by Undo when nothing has been stepped.
	ErrAtStart = errors.New("program counter at start of program")

	// ErrNoCheckpoint is returned by Rollback when no checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint recorded")

	// ErrCheckpointAhead is returned when rolling back to a checkpoint
	// recorded at a later position than the current pc.
	ErrCheckpointAhead = errors.New("checkpoint is ahead of the program counter")

	// ErrIndexOutOfRange is returned by RewindToIndex for a bad index.
	ErrIndexOutOfRange = errors.New("rewind index out of range")
)

// RuntimeError describes a cell that failed to execute.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// CellID identifies the failing cell.
	CellID int64

	// Opcode is the failing cell's opcode.
	Opcode ir.Opcode

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeBadOperand indicates an operand could not be interpreted.
	ErrCodeBadOperand RuntimeErrorCode = "BAD_OPERAND"

	// ErrCodeUnknownOpcode indicates a reversible cell with no known
	// semantics.
	ErrCodeUnknownOpcode RuntimeErrorCode = "UNKNOWN_OPCODE"

	// ErrCodeDivideByZero indicates integer division by zero.
	ErrCodeDivideByZero RuntimeErrorCode = "DIVIDE_BY_ZERO"

	// ErrCodeSubstrate indicates the bit store or D-layer rejected the
	// operation.
	ErrCodeSubstrate RuntimeErrorCode = "SUBSTRATE"

	// ErrCodeEffectFailed indicates an effect handler returned an error.
	ErrCodeEffectFailed RuntimeErrorCode = "EFFECT_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: cell %d (%s): %s", e.Code, e.CellID, e.Opcode, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Err }

// IsEffectError reports whether err is a failed side effect.
func IsEffectError(err error) bool {
	return hasCode(err, ErrCodeEffectFailed)
}

// IsOperandError reports whether err is an operand or arity problem.
func IsOperandError(err error) bool {
	return hasCode(err, ErrCodeBadOperand)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newCellError(c *ir.Cell, code RuntimeErrorCode, cause error, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		CellID:  c.ID,
		Opcode:  c.Opcode,
		Err:     cause,
	}
}
