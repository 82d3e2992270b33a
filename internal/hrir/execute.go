package hrir

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/roach88/rio/internal/bits"
	"github.com/roach88/rio/internal/dlayer"
	"github.com/roach88/rio/internal/ir"
)

// ResultOperand refers to the result of the previous cell.
const ResultOperand = "result"

// execute computes c's result. It must not mutate runtime state when it
// returns an error.
func (r *Runtime) execute(ctx context.Context, c *ir.Cell) (ir.IRValue, error) {
	op := c.Opcode
	switch {
	case op.IsGate():
		g, err := gateFor(c)
		if err != nil {
			return nil, err
		}
		if err := r.store.Apply(g); err != nil {
			return nil, newCellError(c, ErrCodeSubstrate, err, "apply gate")
		}
		return r.bitValue(g.Operands()[len(g.Operands())-1]), nil

	case op.IsDissipative():
		return r.executeDissipative(c)

	case op.IsArithmetic():
		return r.executeArithmetic(c)

	case op.IsComparison():
		return r.executeComparison(c)
	}

	switch op {
	case ir.OpStore:
		if len(c.Operands) != 2 {
			return nil, arityError(c, 2)
		}
		v, err := r.operand(c, c.Operands[1])
		if err != nil {
			return nil, err
		}
		r.registers[c.Operands[0]] = v
		return v, nil

	case ir.OpLoad:
		if len(c.Operands) != 1 {
			return nil, arityError(c, 1)
		}
		v, ok := r.registers[c.Operands[0]]
		if !ok {
			return nil, newCellError(c, ErrCodeBadOperand, nil, "register %q not set", c.Operands[0])
		}
		return v, nil

	case ir.OpJump:
		// Execution order is strictly linear; branch opcodes evaluate their
		// target and record it without moving the pc.
		if len(c.Operands) != 1 {
			return nil, arityError(c, 1)
		}
		return r.intOperand(c, c.Operands[0])

	case ir.OpJumpIf:
		if len(c.Operands) != 2 {
			return nil, arityError(c, 2)
		}
		cond, err := r.operand(c, c.Operands[0])
		if err != nil {
			return nil, err
		}
		if _, err := r.intOperand(c, c.Operands[1]); err != nil {
			return nil, err
		}
		return ir.IRBool(truthy(cond)), nil
	}

	if c.Reversible {
		return nil, newCellError(c, ErrCodeUnknownOpcode, nil, "no semantics for reversible opcode")
	}
	return r.executeEffect(ctx, c)
}

func (r *Runtime) executeEffect(ctx context.Context, c *ir.Cell) (ir.IRValue, error) {
	h, ok := r.handlers[c.Opcode]
	if !ok {
		h = recordingHandler
	}
	v, err := h(ctx, c)
	if err != nil {
		return nil, newCellError(c, ErrCodeEffectFailed, err, "side effect failed")
	}
	return v, nil
}

func (r *Runtime) executeDissipative(c *ir.Cell) (ir.IRValue, error) {
	op, _ := dlayer.ParseOp(string(c.Opcode))
	idx, err := intOperands(c, 3)
	if err != nil {
		return nil, err
	}
	if err := r.layer.Apply(op, idx[0], idx[1], idx[2]); err != nil {
		return nil, newCellError(c, ErrCodeSubstrate, err, "apply %s", op)
	}
	return r.bitValue(idx[2]), nil
}

func (r *Runtime) executeArithmetic(c *ir.Cell) (ir.IRValue, error) {
	if len(c.Operands) != 2 {
		return nil, arityError(c, 2)
	}
	a, err := r.intOperand(c, c.Operands[0])
	if err != nil {
		return nil, err
	}
	b, err := r.intOperand(c, c.Operands[1])
	if err != nil {
		return nil, err
	}
	var (
		out int64
		ok  bool
	)
	switch c.Opcode {
	case ir.OpAdd:
		out, ok = ir.AddInt(a, b)
	case ir.OpSubtract:
		out, ok = ir.SubInt(a, b)
	case ir.OpMultiply:
		out, ok = ir.MulInt(a, b)
	default:
		if b == 0 {
			return nil, newCellError(c, ErrCodeDivideByZero, nil, "%d / 0", a)
		}
		out, ok = ir.DivInt(a, b)
	}
	if !ok {
		return nil, newCellError(c, ErrCodeBadOperand, nil, "%s(%d, %d) overflows int64", c.Opcode, a, b)
	}
	return ir.IRInt(out), nil
}

func (r *Runtime) executeComparison(c *ir.Cell) (ir.IRValue, error) {
	if len(c.Operands) != 2 {
		return nil, arityError(c, 2)
	}
	av, err := r.operand(c, c.Operands[0])
	if err != nil {
		return nil, err
	}
	bv, err := r.operand(c, c.Operands[1])
	if err != nil {
		return nil, err
	}
	a, aok := ir.AsInt(av)
	b, bok := ir.AsInt(bv)
	switch c.Opcode {
	case ir.OpEqual:
		if aok && bok {
			return ir.IRBool(a == b), nil
		}
		return ir.IRBool(ir.Display(av) == ir.Display(bv)), nil
	case ir.OpLess, ir.OpGreater:
		if !aok || !bok {
			return nil, newCellError(c, ErrCodeBadOperand, nil, "%s needs integer operands", c.Opcode)
		}
		if c.Opcode == ir.OpLess {
			return ir.IRBool(a < b), nil
		}
		return ir.IRBool(a > b), nil
	}
	return nil, newCellError(c, ErrCodeUnknownOpcode, nil, "not a comparison")
}

// operand resolves a literal or the previous cell's result.
func (r *Runtime) operand(c *ir.Cell, s string) (ir.IRValue, error) {
	if s == ResultOperand {
		prev, ok := r.program.At(r.program.PC() - 1)
		if !ok || prev.Result == nil {
			return nil, newCellError(c, ErrCodeBadOperand, nil, "no previous result")
		}
		return prev.Result, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ir.IRInt(n), nil
	}
	switch s {
	case "true":
		return ir.IRBool(true), nil
	case "false":
		return ir.IRBool(false), nil
	}
	return ir.IRString(strings.Trim(s, `"`)), nil
}

func (r *Runtime) intOperand(c *ir.Cell, s string) (int64, error) {
	v, err := r.operand(c, s)
	if err != nil {
		return 0, err
	}
	n, ok := ir.AsInt(v)
	if !ok {
		return 0, newCellError(c, ErrCodeBadOperand, nil, "operand %q is not an integer", s)
	}
	return n, nil
}

func (r *Runtime) bitValue(i int) ir.IRValue {
	v, err := r.store.Read(i)
	if err != nil {
		return ir.IRNull{}
	}
	return ir.IRBool(v)
}

// gateFor converts a gate cell's operands into a bits.Gate.
func gateFor(c *ir.Cell) (bits.Gate, error) {
	kind, ok := bits.ParseGateKind(string(c.Opcode))
	if !ok {
		return bits.Gate{}, newCellError(c, ErrCodeUnknownOpcode, nil, "not a gate")
	}
	idx, err := intOperands(c, kind.Arity())
	if err != nil {
		return bits.Gate{}, err
	}
	g, err := bits.NewGate(kind, idx...)
	if err != nil {
		return bits.Gate{}, newCellError(c, ErrCodeBadOperand, err, "build gate")
	}
	return g, nil
}

func intOperands(c *ir.Cell, n int) ([]int, error) {
	if len(c.Operands) != n {
		return nil, arityError(c, n)
	}
	out := make([]int, n)
	for i, s := range c.Operands {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, newCellError(c, ErrCodeBadOperand, err, "operand %d %q is not a bit index", i, s)
		}
		out[i] = v
	}
	return out, nil
}

func arityError(c *ir.Cell, want int) error {
	return newCellError(c, ErrCodeBadOperand, errArity, "want %d operands, got %d", want, len(c.Operands))
}

var errArity = errors.New("wrong operand count")

func truthy(v ir.IRValue) bool {
	switch val := v.(type) {
	case ir.IRBool:
		return bool(val)
	case ir.IRInt:
		return val != 0
	case ir.IRString:
		return val == "true"
	default:
		return false
	}
}

