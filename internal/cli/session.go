package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rio/internal/actor"
	"github.com/roach88/rio/internal/harness"
	"github.com/roach88/rio/internal/hrir"
	"github.com/roach88/rio/internal/ir"
	"github.com/roach88/rio/internal/manifest"
	"github.com/roach88/rio/internal/store"
)

// session is one command invocation's logger, metrics and optional
// run record.
type session struct {
	opts   *RootOptions
	logger *slog.Logger
	store  *store.Store
	runID  string
}

// openSession prepares logging and, when --db is set, opens the database.
func (o *RootOptions) openSession(cmd *cobra.Command) (*session, error) {
	logger, err := o.setup(cmd)
	if err != nil {
		return nil, err
	}
	s := &session{opts: o, logger: logger}
	if o.Database != "" {
		logger.Debug("opening database", "path", o.Database)
		st, err := store.Open(o.Database)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		s.store = st
	}
	return s, nil
}

func (s *session) close(cmd *cobra.Command) {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("error closing database", "error", err)
		}
	}
	s.opts.finish(cmd)
}

// begin records a new run when a database is attached.
func (s *session) begin(ctx context.Context, source, instanceID string) error {
	if s.store == nil {
		return nil
	}
	id, err := s.store.CreateRun(ctx, store.Run{
		SourceName: source,
		InstanceID: instanceID,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to record run", err)
	}
	s.runID = id
	s.logger.Info("run recorded", "run_id", id, "source", source)
	return nil
}

// EffectView is the printable form of one side effect.
type EffectView struct {
	CellID    int64    `json:"cell_id"`
	Operation string   `json:"operation"`
	Args      []string `json:"args"`
	Succeeded bool     `json:"succeeded"`
	Result    string   `json:"result,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// ProgramReport summarizes one program execution.
type ProgramReport struct {
	Source  string       `json:"source"`
	Digest  string       `json:"digest"`
	Cells   int          `json:"cells"`
	Stats   hrir.Stats   `json:"stats"`
	Bits    string       `json:"bits"`
	Effects []EffectView `json:"effects"`
	Error   string       `json:"error,omitempty"`
}

// runProgram executes p to completion, undoes the last undo cells and
// persists the result. A program failure is reported in the report and
// returned as the second error; the first is for infrastructure.
func (s *session) runProgram(ctx context.Context, p *ir.Program, opts []hrir.Option, out io.Writer, undo int) (*ProgramReport, error, error) {
	opts = append(opts,
		hrir.WithOutput(out),
		hrir.WithLogger(s.logger),
		hrir.WithMetrics(s.opts.recorder),
	)
	rt, err := hrir.New(p, opts...)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to create runtime", err)
	}

	rt.Checkpoint("start")
	progErr := rt.Run(ctx)
	for i := 0; progErr == nil && i < undo; i++ {
		if err := rt.Undo(); err != nil {
			progErr = fmt.Errorf("undo %d: %w", i+1, err)
		}
	}
	rt.Checkpoint("end")

	digest, err := p.Digest()
	if err != nil {
		return nil, nil, WrapExitError(ExitFailure, "failed to hash program", err)
	}
	report := &ProgramReport{
		Source:  p.SourceName,
		Digest:  digest,
		Cells:   len(p.Cells()),
		Stats:   rt.Stats(),
		Bits:    rt.Store().String(),
		Effects: effectViews(rt.Effects()),
	}
	if progErr != nil {
		report.Error = progErr.Error()
	}

	if err := s.persistProgram(ctx, rt); err != nil {
		return nil, nil, err
	}
	return report, progErr, nil
}

func (s *session) persistProgram(ctx context.Context, rt *hrir.Runtime) error {
	if s.store == nil || s.runID == "" {
		return nil
	}
	p := rt.Program()
	if err := s.store.SaveProgram(ctx, s.runID, p); err != nil {
		return WrapExitError(ExitCommandError, "failed to save program", err)
	}
	if err := s.store.RecordEffects(ctx, s.runID, rt.Effects()); err != nil {
		return WrapExitError(ExitCommandError, "failed to save effects", err)
	}
	for _, cp := range p.Checkpoints() {
		snap, ok := rt.Store().LookupCheckpoint(cp.BitsID)
		if !ok {
			continue
		}
		if err := s.store.RecordCheckpoint(ctx, s.runID, cp, snap); err != nil {
			return WrapExitError(ExitCommandError, "failed to save checkpoint", err)
		}
	}
	return nil
}

func effectViews(effects []hrir.Effect) []EffectView {
	out := make([]EffectView, len(effects))
	for i, e := range effects {
		v := EffectView{
			CellID:    e.CellID,
			Operation: e.Operation,
			Args:      e.Args,
			Succeeded: e.Succeeded,
			Error:     e.Error,
		}
		if e.Result != nil {
			v.Result = ir.Display(e.Result)
		}
		out[i] = v
	}
	return out
}

// MessageView is one send recorded in the actor journal.
type MessageView struct {
	Actor   string `json:"actor"`
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

// LogView is one line an actor handler logged.
type LogView struct {
	Actor   string `json:"actor"`
	Message string `json:"message"`
}

// ActorReport summarizes an actor run.
type ActorReport struct {
	Ticks       int                          `json:"ticks"`
	Handled     int                          `json:"handled"`
	Messages    []MessageView                `json:"messages"`
	Logs        []LogView                    `json:"logs"`
	Diagnostics []string                     `json:"diagnostics,omitempty"`
	State       map[string]map[string]string `json:"state"`
}

// actorPlan is what to spawn, what to send and how long to tick. Zero
// ticks means run until every mailbox drains, up to DefaultMaxTicks.
type actorPlan struct {
	name    string
	sources []string
	sends   []manifest.Message
	ticks   int
}

func (s *session) runActors(ctx context.Context, plan actorPlan) (*ActorReport, error) {
	journal := ir.NewProgram(plan.name + ".journal")
	rt := actor.New(
		actor.WithLogger(s.logger),
		actor.WithMetrics(s.opts.recorder),
		actor.WithJournal(journal),
	)

	for _, path := range plan.sources {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read actor file", err)
		}
		defs, err := actor.ParseDefinitions(string(data))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, path, err)
		}
		for _, d := range defs {
			id, err := rt.Spawn(d)
			if err != nil {
				return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to spawn %s", d.Name), err)
			}
			s.logger.Debug("spawned actor", "id", id, "name", d.Name, "file", path)
		}
	}

	rt.Start()
	defer rt.Stop()

	for _, m := range plan.sends {
		if err := rt.SendByName(m.Actor, m.Event, m.Payload); err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("send %s.%s", m.Actor, m.Event), err)
		}
	}

	report := &ActorReport{State: make(map[string]map[string]string)}
	limit := plan.ticks
	if limit == 0 {
		limit = harness.DefaultMaxTicks
	}
	for i := 0; i < limit; i++ {
		if plan.ticks == 0 && rt.Pending() == 0 {
			break
		}
		tick, err := rt.Tick(ctx)
		if err != nil {
			return nil, WrapExitError(ExitFailure, fmt.Sprintf("tick %d", i+1), err)
		}
		report.Ticks++
		report.Handled += tick.Handled
	}

	for _, c := range journal.Cells() {
		report.Messages = append(report.Messages, MessageView{
			Actor:   c.Operands[0],
			Event:   c.Operands[1],
			Payload: c.Operands[2],
		})
	}
	for _, l := range rt.Logs() {
		report.Logs = append(report.Logs, LogView{Actor: l.Actor, Message: l.Message})
	}
	report.Diagnostics = rt.Diagnostics()
	for _, a := range rt.Actors() {
		report.State[a.Name] = a.State.Map()
	}

	if err := s.persistMessages(ctx, journal); err != nil {
		return nil, err
	}
	return report, nil
}

// persistMessages appends journaled sends after the run's last seq.
func (s *session) persistMessages(ctx context.Context, journal *ir.Program) error {
	if s.store == nil || s.runID == "" {
		return nil
	}
	last, err := s.store.LastSeq(ctx, s.runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	for i, c := range journal.Cells() {
		err := s.store.RecordMessage(ctx, s.runID, store.Message{
			Seq:     last + i + 1,
			Actor:   c.Operands[0],
			Event:   c.Operands[1],
			Payload: c.Operands[2],
			SentAt:  time.Now(),
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to save message", err)
		}
	}
	return nil
}

// commandContext returns the command's context or Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
