package hrir

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/rio/internal/bits"
	"github.com/roach88/rio/internal/dlayer"
	"github.com/roach88/rio/internal/ir"
	"github.com/roach88/rio/internal/metrics"
)

// DefaultWidth is the bit-store width used when no store is supplied.
const DefaultWidth = 8

// Stats are cumulative counters for one runtime.
type Stats struct {
	Steps     int `json:"steps"`
	Undos     int `json:"undos"`
	Rollbacks int `json:"rollbacks"`
	PC        int `json:"pc"`
}

// Runtime executes one Program against one bit store.
// It is not safe for concurrent use.
type Runtime struct {
	program   *ir.Program
	store     *bits.Store
	layer     *dlayer.Layer
	handlers  map[ir.Opcode]EffectHandler
	registers map[string]ir.IRValue
	effects   []Effect
	stats     Stats

	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithStore runs the program against s.
func WithStore(s *bits.Store) Option {
	return func(r *Runtime) { r.store = s }
}

// WithLayer runs dissipative cells through l; the runtime also uses l's
// store.
func WithLayer(l *dlayer.Layer) Option {
	return func(r *Runtime) {
		r.layer = l
		r.store = l.Store()
	}
}

// WithEffectHandler installs h for irreversible cells with opcode op,
// replacing any default.
func WithEffectHandler(op ir.Opcode, h EffectHandler) Option {
	return func(r *Runtime) { r.handlers[op] = h }
}

// WithOutput sends print effects to w. The default discards them.
func WithOutput(w io.Writer) Option {
	return func(r *Runtime) { r.handlers[ir.OpPrint] = PrintHandler(w) }
}

// WithInput feeds read effects from in, one line per read.
func WithInput(in io.Reader) Option {
	return func(r *Runtime) { r.handlers[ir.OpRead] = ReadHandler(in) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithMetrics records activity on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithClock sets the time source for checkpoints.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// New creates a runtime for p. Without WithStore or WithLayer a
// DefaultWidth store with no ancillas is created.
func New(p *ir.Program, opts ...Option) (*Runtime, error) {
	if p == nil {
		return nil, fmt.Errorf("hrir: nil program")
	}
	r := &Runtime{
		program:   p,
		handlers:  make(map[ir.Opcode]EffectHandler),
		registers: make(map[string]ir.IRValue),
		logger:    slog.Default(),
		now:       time.Now,
	}
	r.handlers[ir.OpPrint] = PrintHandler(io.Discard)
	r.handlers[ir.OpRead] = ReadHandler(eofReader{})

	for _, opt := range opts {
		opt(r)
	}

	if r.store == nil {
		s, err := bits.New(DefaultWidth, bits.WithClock(r.now))
		if err != nil {
			return nil, err
		}
		r.store = s
	}
	if r.layer == nil {
		l, err := dlayer.New(r.store, 0)
		if err != nil {
			return nil, err
		}
		r.layer = l
	}
	return r, nil
}

// Program returns the program being executed.
func (r *Runtime) Program() *ir.Program { return r.program }

// Store returns the bit store.
func (r *Runtime) Store() *bits.Store { return r.store }

// PC returns the index of the next cell to execute.
func (r *Runtime) PC() int { return r.program.PC() }

// IsComplete reports whether every cell has been stepped.
func (r *Runtime) IsComplete() bool { return r.program.IsComplete() }

// Stats returns the cumulative counters.
func (r *Runtime) Stats() Stats {
	s := r.stats
	s.PC = r.program.PC()
	return s
}

// Effects returns every recorded side effect in execution order.
func (r *Runtime) Effects() []Effect {
	out := make([]Effect, len(r.effects))
	copy(out, r.effects)
	return out
}

// Step executes cell[pc] and advances the pc. On error nothing changes
// except that a failed side effect is still recorded in Effects.
func (r *Runtime) Step(ctx context.Context) error {
	pc := r.program.PC()
	c, ok := r.program.At(pc)
	if !ok {
		return ErrAtEnd
	}

	result, err := r.execute(ctx, c)
	if !c.Reversible {
		r.recordEffect(c, result, err)
	}
	if err != nil {
		r.logger.Debug("step failed", "cell", c.ID, "opcode", c.Opcode, "pc", pc, "error", err)
		return err
	}

	c.Executed = true
	c.Result = result
	if err := r.program.SetPC(pc + 1); err != nil {
		return err
	}
	r.stats.Steps++
	r.metrics.Step()
	r.logger.Debug("step", "cell", c.ID, "opcode", c.Opcode, "pc", pc+1, "result", ir.Display(result))
	return nil
}

// Undo moves the pc back one cell and clears that cell's execution state.
// A gate cell is re-applied, which restores the bits it changed.
func (r *Runtime) Undo() error {
	pc := r.program.PC()
	if pc == 0 {
		return ErrAtStart
	}
	c, _ := r.program.At(pc - 1)
	if err := r.unexecute(c); err != nil {
		return err
	}
	if err := r.program.SetPC(pc - 1); err != nil {
		return err
	}
	r.stats.Undos++
	r.metrics.Undo()
	r.logger.Debug("undo", "cell", c.ID, "opcode", c.Opcode, "pc", pc-1)
	return nil
}

// Skip advances the pc past cell[pc] without executing it. The consistency
// checker uses it to move past an effect that was expected to fail.
func (r *Runtime) Skip() error {
	pc := r.program.PC()
	if pc >= r.program.Len() {
		return ErrAtEnd
	}
	return r.program.SetPC(pc + 1)
}

// Run steps until the program completes, a step fails or ctx is done.
func (r *Runtime) Run(ctx context.Context) error {
	for !r.IsComplete() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Checkpoint records the current pc and a full bit snapshot.
func (r *Runtime) Checkpoint(label string) ir.Checkpoint {
	bcp := r.store.Checkpoint(label)
	cp := r.program.AddCheckpoint(r.program.PC(), bcp.ID, label, r.now())
	r.logger.Debug("checkpoint", "id", cp.ID, "pc", cp.PC, "label", label)
	return cp
}

// Rollback returns to the most recent checkpoint.
func (r *Runtime) Rollback() error {
	cp, ok := r.program.LatestCheckpoint()
	if !ok {
		return ErrNoCheckpoint
	}
	return r.RollbackTo(cp.ID)
}

// RollbackTo undoes cells until the pc equals the checkpoint's, then
// restores the checkpoint's bit snapshot. The snapshot's width is checked
// before any cell is undone.
func (r *Runtime) RollbackTo(id int) error {
	cp, ok := r.program.LookupCheckpoint(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNoCheckpoint, id)
	}
	if cp.PC > r.program.PC() {
		return fmt.Errorf("%w: checkpoint pc %d, current pc %d", ErrCheckpointAhead, cp.PC, r.program.PC())
	}
	bcp, ok := r.store.LookupCheckpoint(cp.BitsID)
	if !ok {
		return fmt.Errorf("%w: bit snapshot %d", ErrNoCheckpoint, cp.BitsID)
	}
	if bcp.Width() != r.store.Width() {
		return fmt.Errorf("rollback to %d: %w", id, bits.ErrWidthMismatch)
	}

	for r.program.PC() > cp.PC {
		if err := r.Undo(); err != nil {
			return fmt.Errorf("rollback to %d: %w", id, err)
		}
	}
	if err := r.store.Restore(bcp); err != nil {
		return fmt.Errorf("rollback to %d: %w", id, err)
	}
	r.stats.Rollbacks++
	r.metrics.Rollback()
	r.logger.Debug("rollback", "checkpoint", id, "pc", cp.PC)
	return nil
}

// DiscardCheckpoint drops a checkpoint and its bit snapshot.
func (r *Runtime) DiscardCheckpoint(id int) error {
	cp, ok := r.program.LookupCheckpoint(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNoCheckpoint, id)
	}
	r.program.DropCheckpoint(id)
	return r.store.Discard(cp.BitsID)
}

// RewindToIndex unwinds every executed cell at or after index k, last
// first, then sets the pc to k.
func (r *Runtime) RewindToIndex(k int) error {
	pc := r.program.PC()
	if k < 0 || k > pc {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrIndexOutOfRange, k, pc)
	}
	for i := pc - 1; i >= k; i-- {
		c, _ := r.program.At(i)
		if !c.Executed {
			continue
		}
		if err := r.unexecute(c); err != nil {
			return fmt.Errorf("rewind to %d: %w", k, err)
		}
		// keep pc consistent with the cells already unwound
		if err := r.program.SetPC(i); err != nil {
			return err
		}
	}
	return r.program.SetPC(k)
}

// unexecute reverses c's substrate effect where one exists and clears its
// execution state.
func (r *Runtime) unexecute(c *ir.Cell) error {
	if c.Executed && c.Opcode.IsGate() {
		g, err := gateFor(c)
		if err != nil {
			return err
		}
		if err := r.reapply(g); err != nil {
			return newCellError(c, ErrCodeSubstrate, err, "undo gate")
		}
	}
	c.Reset()
	return nil
}

// reapply undoes g. When g is the newest log entry it is popped so the log
// stays aligned with the program; otherwise the gate is applied again.
func (r *Runtime) reapply(g bits.Gate) error {
	if n := r.store.ExecIndex(); n > 0 {
		if last := r.store.Log()[n-1]; last == g {
			_, err := r.store.UndoLast()
			return err
		}
	}
	return r.store.Apply(g)
}

func (r *Runtime) recordEffect(c *ir.Cell, result ir.IRValue, err error) {
	e := Effect{
		CellID:    c.ID,
		Operation: string(c.Opcode),
		Args:      append([]string(nil), c.Operands...),
		Succeeded: err == nil,
		Result:    result,
	}
	if err != nil {
		e.Error = err.Error()
	}
	r.effects = append(r.effects, e)
	r.metrics.Effect(e.Operation, e.Succeeded)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
