package script

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/rio/internal/metrics"
)

// MaxIterations is the default cap on while-loop iterations.
const MaxIterations = 10000

// State is the actor state a handler reads and writes.
type State interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Host receives the handler's observable actions.
type Host interface {
	// Log records a log line emitted by actor.
	Log(actor, message string)
	// Send enqueues event for target ("self" or an actor name). An error
	// is reported as a diagnostic and does not stop the handler.
	Send(from, target, event, payload string) error
}

// Env is the context for one handler invocation.
type Env struct {
	Actor   string
	State   State
	Payload string
	Host    Host
}

// Report summarises one invocation.
type Report struct {
	Statements  int
	LoopCapHits int
	Diagnostics []string
}

// Interpreter executes parsed handler bodies.
type Interpreter struct {
	maxIterations int
	logger        *slog.Logger
	metrics       *metrics.Recorder
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithMaxIterations overrides the while-loop cap.
func WithMaxIterations(n int) Option {
	return func(in *Interpreter) { in.maxIterations = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// WithMetrics records loop-cap hits on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(in *Interpreter) { in.metrics = m }
}

// NewInterpreter creates an interpreter.
func NewInterpreter(opts ...Option) *Interpreter {
	in := &Interpreter{maxIterations: MaxIterations, logger: slog.Default()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// MaxIterations returns the configured while-loop cap.
func (in *Interpreter) MaxIterations() int { return in.maxIterations }

// Run executes prog. Locals live only for this call; the message payload
// is bound to the local "data". Run returns an error only when ctx is done.
func (in *Interpreter) Run(ctx context.Context, prog *Program, env Env) (Report, error) {
	f := &frame{
		in:     in,
		env:    env,
		locals: map[string]string{"data": env.Payload},
	}
	err := f.exec(ctx, prog.Body)
	return f.report, err
}

type frame struct {
	in     *Interpreter
	env    Env
	locals map[string]string
	report Report
}

// lookup resolves state.x (missing fields are "0"), then locals, then bare
// state keys.
func (f *frame) lookup(name string) (string, bool) {
	if key, ok := strings.CutPrefix(name, "state."); ok {
		if v, ok := f.env.State.Get(key); ok {
			return v, true
		}
		return "0", true
	}
	if v, ok := f.locals[name]; ok {
		return v, true
	}
	return f.env.State.Get(name)
}

func (f *frame) exec(ctx context.Context, body []Stmt) error {
	for _, s := range body {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.report.Statements++

		switch s := s.(type) {
		case *Assign:
			v, _ := s.Value.Eval(f.lookup)
			if key, ok := strings.CutPrefix(s.Target, "state."); ok {
				f.env.State.Set(key, v)
			} else {
				f.locals[s.Target] = v
			}

		case *Log:
			msg, _ := s.Message.Eval(f.lookup)
			f.env.Host.Log(f.env.Actor, msg)

		case *Send:
			payload := f.env.Payload
			if s.Payload != nil {
				payload, _ = s.Payload.Eval(f.lookup)
			}
			if err := f.env.Host.Send(f.env.Actor, s.Target, s.Event, payload); err != nil {
				f.diagnose(s, "send %s -> %s: %v", s.Target, s.Event, err)
			}

		case *If:
			if s.Cond.Eval(f.lookup) {
				if err := f.exec(ctx, s.Body); err != nil {
					return err
				}
			}

		case *While:
			n := 0
			for n < f.in.maxIterations && s.Cond.Eval(f.lookup) {
				if err := f.exec(ctx, s.Body); err != nil {
					return err
				}
				n++
			}
			if n >= f.in.maxIterations && s.Cond.Eval(f.lookup) {
				f.report.LoopCapHits++
				f.in.metrics.LoopCap()
				f.diagnose(s, "while loop hit iteration limit (%d)", f.in.maxIterations)
			}

		case *For:
			start, err := f.bound(s.Start)
			if err != nil {
				f.diagnose(s, "for %s: %v", s.Var, err)
				continue
			}
			end, err := f.bound(s.End)
			if err != nil {
				f.diagnose(s, "for %s: %v", s.Var, err)
				continue
			}
			for i := start; i <= end; i++ {
				f.locals[s.Var] = strconv.FormatInt(i, 10)
				if err := f.exec(ctx, s.Body); err != nil {
					return err
				}
				if i == end {
					break
				}
			}

		default:
			return fmt.Errorf("line %d: unhandled statement %T", s.Pos(), s)
		}
	}
	return nil
}

func (f *frame) bound(e *Expr) (int64, error) {
	s, _ := e.Eval(f.lookup)
	v := parseValue(s)
	if !v.isInt {
		return 0, fmt.Errorf("bound %q is not an integer", e.Raw)
	}
	return v.i, nil
}

func (f *frame) diagnose(s Stmt, format string, args ...any) {
	msg := fmt.Sprintf("%s line %d: %s", f.env.Actor, s.Pos(), fmt.Sprintf(format, args...))
	f.report.Diagnostics = append(f.report.Diagnostics, msg)
	f.in.logger.Warn("handler diagnostic", "actor", f.env.Actor, "line", s.Pos(), "message", fmt.Sprintf(format, args...))
}
