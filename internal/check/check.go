package check

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/rio/internal/hrir"
	"github.com/roach88/rio/internal/ir"
	"github.com/roach88/rio/internal/metrics"
)

// Check kinds, as recorded in metrics.
const (
	KindStructural = "structural"
	KindBehavioral = "behavioral"
)

// RuntimeFactory builds the runtime a replay runs on.
type RuntimeFactory func(p *ir.Program) (*hrir.Runtime, error)

// Checker runs consistency checks.
type Checker struct {
	logger     *slog.Logger
	metrics    *metrics.Recorder
	newRuntime RuntimeFactory
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// WithMetrics records verdicts on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Checker) { c.metrics = m }
}

// WithRuntimeFactory replaces how replay runtimes are built. The default
// is an 8-bit runtime whose print output is discarded.
func WithRuntimeFactory(f RuntimeFactory) Option {
	return func(c *Checker) { c.newRuntime = f }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.newRuntime == nil {
		logger := c.logger
		c.newRuntime = func(p *ir.Program) (*hrir.Runtime, error) {
			return hrir.New(p, hrir.WithLogger(logger), hrir.WithOutput(io.Discard))
		}
	}
	return c
}

// ValidateStructure checks that every cell has an opcode and operands,
// every reversible cell has an inverse, ids are unique, and the program's
// reported count matches its cells.
func (c *Checker) ValidateStructure(p *ir.Program) Result {
	res := Result{IsConsistent: true}
	defer func() { c.record(KindStructural, res) }()

	if p == nil {
		res.fail(MsgInvalidCell, 0, errors.New("nil program"))
		return res
	}

	seen := make(map[int64]bool, p.Len())
	for i := 0; i < p.Len(); i++ {
		res.OperationsChecked++
		cell, _ := p.At(i)
		if cell == nil {
			res.fail(MsgInvalidCell, 0, nil)
			return res
		}
		if cell.Opcode == "" || cell.Operands == nil {
			res.fail(MsgMissingCellData, cell.ID, nil)
			return res
		}
		if cell.Reversible && cell.Inverse == nil {
			res.fail(MsgMissingInverse, cell.ID, nil)
			return res
		}
		if seen[cell.ID] {
			res.fail(MsgDuplicateID, cell.ID, nil)
			return res
		}
		seen[cell.ID] = true
	}

	if stats := p.Stats(); stats.Total != p.Len() {
		res.IsConsistent = false
		res.Message = MsgStatsMismatch
		res.warn("reported %d cells, found %d", stats.Total, p.Len())
	}
	return res
}

// CheckReplay runs a fresh copy of p. Each reversible cell must step, undo
// and step again. Each irreversible cell consumes the next expectation: an
// opcode mismatch is a warning, an outcome mismatch is a failure. The
// returned error is non-nil only when ctx is done or the runtime cannot be
// built.
func (c *Checker) CheckReplay(ctx context.Context, p *ir.Program, expected []Expectation) (Result, error) {
	res := Result{IsConsistent: true}
	if p == nil {
		res.fail(MsgInvalidCell, 0, errors.New("nil program"))
		c.record(KindBehavioral, res)
		return res, nil
	}

	rt, err := c.newRuntime(p.Fresh())
	if err != nil {
		return res, err
	}

	next := 0
	for !rt.IsComplete() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cell, _ := rt.Program().At(rt.PC())
		res.OperationsChecked++

		if cell.Reversible {
			if err := rt.Step(ctx); err != nil {
				res.fail(MsgRTermFailed, cell.ID, err)
				break
			}
			if err := rt.Undo(); err != nil {
				res.fail(MsgRTermUndoFailed, cell.ID, err)
				break
			}
			if err := rt.Step(ctx); err != nil {
				res.fail(MsgRTermRedoFailed, cell.ID, err)
				break
			}
			c.logger.Debug("r-term reversible", "cell", cell.ID, "opcode", cell.Opcode)
			continue
		}

		stepErr := rt.Step(ctx)
		if errors.Is(stepErr, context.Canceled) || errors.Is(stepErr, context.DeadlineExceeded) {
			return res, stepErr
		}
		succeeded := stepErr == nil
		if !succeeded {
			if err := rt.Skip(); err != nil {
				return res, err
			}
		}

		if next >= len(expected) {
			res.warn("cell %d: unexpected side effect %s", cell.ID, cell.Opcode)
			c.logger.Warn("unexpected side effect", "cell", cell.ID, "opcode", cell.Opcode)
			continue
		}
		exp := expected[next]
		next++

		if exp.Operation != string(cell.Opcode) {
			res.warn("cell %d: %s does not match expected %s", cell.ID, cell.Opcode, exp.Operation)
			c.logger.Warn("side effect opcode mismatch", "cell", cell.ID, "opcode", cell.Opcode, "expected", exp.Operation)
			continue
		}
		if exp.Args != nil && !slices.Equal(exp.Args, cell.Operands) {
			res.warn("cell %d: %s args %v, expected %v", cell.ID, cell.Opcode, cell.Operands, exp.Args)
		}
		res.SideEffectsVerified++
		if succeeded != exp.ShouldSucceed {
			res.fail(MsgSideEffectMismatch, cell.ID, stepErr)
			break
		}
		c.logger.Debug("d-term verified", "cell", cell.ID, "opcode", cell.Opcode, "succeeded", succeeded)
	}

	if res.IsConsistent {
		if !rt.IsComplete() {
			res.fail(MsgIncomplete, 0, nil)
		} else if next < len(expected) {
			res.warn("%d expected side effects were not observed", len(expected)-next)
		}
	}
	c.record(KindBehavioral, res)
	return res, nil
}

// Report pairs the two checks.
type Report struct {
	Structural Result  `json:"structural"`
	Behavioral *Result `json:"behavioral,omitempty"`
}

// IsConsistent reports whether every check that ran passed.
func (r Report) IsConsistent() bool {
	return r.Structural.IsConsistent && r.Behavioral != nil && r.Behavioral.IsConsistent
}

// First returns the first failing result, or the last result run.
func (r Report) First() Result {
	if !r.Structural.IsConsistent || r.Behavioral == nil {
		return r.Structural
	}
	return *r.Behavioral
}

// Run validates structure and, only if that passes, replays.
func (c *Checker) Run(ctx context.Context, p *ir.Program, expected []Expectation) (Report, error) {
	rep := Report{Structural: c.ValidateStructure(p)}
	if !rep.Structural.IsConsistent {
		return rep, nil
	}
	b, err := c.CheckReplay(ctx, p, expected)
	if err != nil {
		return rep, err
	}
	rep.Behavioral = &b
	return rep, nil
}

func (c *Checker) record(kind string, res Result) {
	c.metrics.Check(kind, res.IsConsistent)
	if res.IsConsistent {
		c.logger.Info("consistency check passed", "kind", kind,
			"operations", res.OperationsChecked, "side_effects", res.SideEffectsVerified)
		return
	}
	c.logger.Warn("consistency check failed", "kind", kind, "message", res.Message,
		"cell", res.CellID, "detail", res.Detail)
}
