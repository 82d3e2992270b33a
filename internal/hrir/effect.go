package hrir

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/rio/internal/ir"
)

// ErrNoInput is returned by the default read handler when no input source
// is configured or the input is exhausted.
var ErrNoInput = errors.New("no input available")

// Effect is one attempted irreversible side effect.
type Effect struct {
	CellID    int64
	Operation string
	Args      []string
	Succeeded bool
	Result    ir.IRValue
	Error     string
}

// EffectHandler performs the side effect for an irreversible cell and
// returns the cell's result.
type EffectHandler func(ctx context.Context, c *ir.Cell) (ir.IRValue, error)

// PrintHandler writes the cell's operands, space separated, to w.
func PrintHandler(w io.Writer) EffectHandler {
	return func(_ context.Context, c *ir.Cell) (ir.IRValue, error) {
		line := strings.Join(c.Operands, " ")
		if _, err := fmt.Fprintln(w, line); err != nil {
			return nil, err
		}
		return ir.IRString(line), nil
	}
}

// ReadHandler returns one line from r per call.
func ReadHandler(r io.Reader) EffectHandler {
	sc := bufio.NewScanner(r)
	return func(context.Context, *ir.Cell) (ir.IRValue, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, err
			}
			return nil, ErrNoInput
		}
		return ir.IRString(sc.Text()), nil
	}
}

// FailingHandler always fails with err. Useful for declaring effects that
// are expected not to succeed.
func FailingHandler(err error) EffectHandler {
	return func(context.Context, *ir.Cell) (ir.IRValue, error) {
		return nil, err
	}
}

// recordingHandler accepts any effect and returns its joined operands.
func recordingHandler(_ context.Context, c *ir.Cell) (ir.IRValue, error) {
	return ir.IRString(strings.Join(c.Operands, " ")), nil
}
