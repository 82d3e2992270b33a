package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/rio/internal/actor"
	"github.com/roach88/rio/internal/bits"
	"github.com/roach88/rio/internal/check"
	"github.com/roach88/rio/internal/dlayer"
	"github.com/roach88/rio/internal/hrir"
	"github.com/roach88/rio/internal/ir"
	"github.com/roach88/rio/internal/lower"
	"github.com/roach88/rio/internal/store"
	"github.com/roach88/rio/internal/testutil"
)

// Harness holds the per-scenario execution state.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
	runID    string
	result   *Result
}

// Run executes a scenario and returns its result. The error is reserved
// for infrastructure failures; program and assertion failures are
// reported in Result.Errors.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Lower the sends into a program
//  2. Execute it on a fresh bit store and persist it
//  3. Run the consistency checker against the expect section
//  4. Spawn actors, inject messages, tick
//  5. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		store:    st,
		clock:    testutil.NewDeterministicClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		result:   NewResult(),
	}

	h.runID, err = st.CreateRun(ctx, store.Run{SourceName: scenario.Name, CreatedAt: testutil.Epoch})
	if err != nil {
		return nil, err
	}
	h.result.RunID = h.runID

	layer, err := h.newLayer()
	if err != nil {
		return nil, fmt.Errorf("failed to build machine: %w", err)
	}
	if err := h.executeProgram(ctx, layer); err != nil {
		return nil, err
	}
	if err := h.executeActors(ctx); err != nil {
		return nil, err
	}
	h.result.Bits = layer.Store().String()

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// newLayer builds the scenario's seeded machine.
func (h *Harness) newLayer() (*dlayer.Layer, error) {
	s := h.scenario
	layer, err := dlayer.NewWithStore(s.Bits, s.Ancillas, bits.WithClock(h.clock.Now), bits.WithInstanceID(s.Name))
	if err != nil {
		return nil, err
	}
	for _, b := range s.Seed {
		if err := layer.Store().Write(b, true); err != nil {
			return nil, err
		}
	}
	return layer, nil
}

func (h *Harness) runtimeOptions(layer *dlayer.Layer) []hrir.Option {
	return []hrir.Option{
		hrir.WithLayer(layer),
		hrir.WithOutput(io.Discard),
		hrir.WithLogger(h.logger),
		hrir.WithClock(h.clock.Now),
	}
}

func (h *Harness) executeProgram(ctx context.Context, layer *dlayer.Layer) error {
	s := h.scenario
	if len(s.Sends) == 0 {
		return nil
	}

	lowered, err := lower.Lower(s.Name, s.Sends, s.Inherits, lower.Options{
		Strict: s.Strict,
		Origin: s.Name,
		Logger: h.logger,
	})
	if err != nil {
		h.result.AddError(fmt.Sprintf("lower: %v", err))
		return nil
	}
	prog := lowered.Program

	rt, err := hrir.New(prog, h.runtimeOptions(layer)...)
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	if err := rt.Run(ctx); err != nil {
		h.result.AddError(fmt.Sprintf("program: %v", err))
	}

	effects := rt.Effects()
	next := 0
	for _, c := range prog.Cells() {
		if !c.Executed {
			continue
		}
		h.result.add(KindCell, cellSubject(c), cellDetail(c))
		for next < len(effects) && effects[next].CellID == c.ID {
			e := effects[next]
			h.result.add(KindEffect, e.Operation, effectDetail(e))
			next++
		}
	}
	for _, e := range effects[next:] {
		h.result.add(KindEffect, e.Operation, effectDetail(e))
	}

	if err := h.store.SaveProgram(ctx, h.runID, prog); err != nil {
		return err
	}
	if err := h.store.RecordEffects(ctx, h.runID, effects); err != nil {
		return err
	}

	checker := check.New(
		check.WithLogger(h.logger),
		check.WithRuntimeFactory(func(p *ir.Program) (*hrir.Runtime, error) {
			fresh, err := h.newLayer()
			if err != nil {
				return nil, err
			}
			return hrir.New(p, h.runtimeOptions(fresh)...)
		}),
	)
	report, err := checker.Run(ctx, prog, s.Expectations())
	if err != nil {
		return fmt.Errorf("failed to check program: %w", err)
	}
	h.result.Check = &report
	return nil
}

func (h *Harness) executeActors(ctx context.Context) error {
	s := h.scenario
	src, err := h.actorSource()
	if err != nil {
		return err
	}
	if strings.TrimSpace(src) == "" {
		return nil
	}

	defs, err := actor.ParseDefinitions(src)
	if err != nil {
		h.result.AddError(fmt.Sprintf("actors: %v", err))
		return nil
	}

	journal := ir.NewProgram(s.Name + ".journal")
	rt := actor.New(
		actor.WithClock(h.clock.Now),
		actor.WithLogger(h.logger),
		actor.WithJournal(journal),
	)
	for _, d := range defs {
		if _, err := rt.Spawn(d); err != nil {
			h.result.AddError(fmt.Sprintf("spawn %s: %v", d.Name, err))
			return nil
		}
	}
	rt.Start()

	var seen traceCursor
	for _, m := range s.Messages {
		if err := rt.SendByName(m.Actor, m.Event, m.Payload); err != nil {
			h.result.AddError(fmt.Sprintf("send %s %s: %v", m.Actor, m.Event, err))
		}
	}
	if err := h.collect(ctx, rt, journal, &seen); err != nil {
		return err
	}

	limit := s.Ticks
	if limit == 0 {
		limit = DefaultMaxTicks
	}
	for i := 0; i < limit; i++ {
		if s.Ticks == 0 && rt.Pending() == 0 {
			break
		}
		if _, err := rt.Tick(ctx); err != nil {
			h.result.AddError(fmt.Sprintf("tick %d: %v", i+1, err))
			break
		}
		if err := h.collect(ctx, rt, journal, &seen); err != nil {
			return err
		}
	}
	rt.Stop()

	for _, a := range rt.Actors() {
		h.result.State[a.Name] = a.State.Map()
	}
	return nil
}

func (h *Harness) actorSource() (string, error) {
	s := h.scenario
	parts := []string{s.Actors}
	for _, f := range s.ActorFiles {
		data, err := os.ReadFile(s.resolve(f))
		if err != nil {
			return "", fmt.Errorf("failed to read actor file: %w", err)
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n"), nil
}

// traceCursor remembers how much of each actor runtime log was traced.
type traceCursor struct {
	journal, logs, diagnostics int
}

// collect traces and persists whatever the actor runtime produced since
// the last call: journaled sends, then log lines, then diagnostics.
func (h *Harness) collect(ctx context.Context, rt *actor.Runtime, journal *ir.Program, cur *traceCursor) error {
	cells := journal.Cells()
	for _, c := range cells[cur.journal:] {
		target, event, payload := c.Operands[0], c.Operands[1], c.Operands[2]
		h.result.add(KindMessage, target+"."+event, payload)
		err := h.store.RecordMessage(ctx, h.runID, store.Message{
			Seq:     len(h.result.Trace),
			Actor:   target,
			Event:   event,
			Payload: payload,
			SentAt:  h.clock.Now(),
		})
		if err != nil {
			return err
		}
	}
	cur.journal = len(cells)

	logs := rt.Logs()
	for _, l := range logs[cur.logs:] {
		h.result.add(KindLog, l.Actor, l.Message)
	}
	cur.logs = len(logs)

	diags := rt.Diagnostics()
	for _, d := range diags[cur.diagnostics:] {
		h.result.add(KindDiagnostic, "runtime", d)
	}
	cur.diagnostics = len(diags)
	return nil
}

func cellSubject(c *ir.Cell) string {
	if c.Provenance.Path != "" {
		return c.Provenance.Path
	}
	return string(c.Opcode)
}

func cellDetail(c *ir.Cell) string {
	d := fmt.Sprintf("%s(%s)", c.Opcode, strings.Join(c.Operands, ", "))
	if c.Result != nil {
		d += " = " + ir.Display(c.Result)
	}
	return d
}

func effectDetail(e hrir.Effect) string {
	if e.Succeeded {
		return strings.Join(e.Args, " ") + " -> ok"
	}
	return strings.Join(e.Args, " ") + " -> " + e.Error
}

// Outcome is one scenario file's result from RunAll.
type Outcome struct {
	Path   string
	Name   string
	Result *Result
	Err    error
}

// FindScenarios returns the .yaml and .yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// RunAll loads and runs every scenario under dir with at most parallel
// scenarios in flight. See RunFiles.
func RunAll(ctx context.Context, dir string, parallel int) ([]Outcome, error) {
	files, err := FindScenarios(dir)
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	return RunFiles(ctx, files, parallel)
}

// RunFiles loads and runs the given scenario files with at most parallel
// scenarios in flight. Outcomes come back in file order. Load and run
// failures are reported per outcome; the error is for context
// cancellation.
func RunFiles(ctx context.Context, files []string, parallel int) ([]Outcome, error) {
	if parallel < 1 {
		parallel = 1
	}

	outcomes := make([]Outcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := Outcome{Path: path}
			s, err := LoadScenario(path)
			if err != nil {
				out.Err = err
				outcomes[i] = out
				return nil
			}
			out.Name = s.Name
			out.Result, out.Err = Run(gctx, s)
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
