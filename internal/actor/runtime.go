package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rio/internal/actor/script"
	"github.com/roach88/rio/internal/ir"
	"github.com/roach88/rio/internal/metrics"
)

var (
	// ErrActorNotFound is returned when an id or name matches no actor.
	ErrActorNotFound = errors.New("actor not found")
	// ErrNotRunning is returned by Run before Start.
	ErrNotRunning = errors.New("runtime not running")
	// ErrEmptyEvent is returned when a message has no event name.
	ErrEmptyEvent = errors.New("empty event name")
	// ErrNoCheckpoint is returned when a checkpoint id is unknown.
	ErrNoCheckpoint = errors.New("checkpoint not found")
)

// DefaultPayload is the payload of a message sent without one.
const DefaultPayload = "{}"

// Actor is a live actor instance.
type Actor struct {
	ID    int64
	Name  string
	Role  string
	State *State

	handlers map[string]*script.Program
	events   []string
}

// Events returns the handled event names in declaration order.
func (a *Actor) Events() []string {
	out := make([]string, len(a.events))
	copy(out, a.events)
	return out
}

// HasHandler reports whether a handles event.
func (a *Actor) HasHandler(event string) bool {
	_, ok := a.handlers[event]
	return ok
}

// LogEntry is one line written by a handler's log statement.
type LogEntry struct {
	Actor   string
	Message string
	Time    time.Time
}

// TickReport summarises one Tick.
type TickReport struct {
	Processed   int
	Handled     int
	Diagnostics []string
}

// Runtime schedules actors. It is owned by one goroutine; nothing in it
// locks.
type Runtime struct {
	ids       *IDGen
	actors    []*Actor
	mailboxes []*mailbox
	byID      map[int64]int
	running   bool

	interp  *script.Interpreter
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
	journal *ir.Program

	logs        []LogEntry
	diagnostics []string

	checkpoints []Checkpoint
	nextCP      int
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClock sets the clock used to stamp messages and log entries.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// WithMetrics records ticks and message outcomes on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithIDGen replaces the runtime's id generator.
func WithIDGen(g *IDGen) Option {
	return func(r *Runtime) { r.ids = g }
}

// WithInterpreter replaces the handler interpreter.
func WithInterpreter(in *script.Interpreter) Option {
	return func(r *Runtime) { r.interp = in }
}

// WithJournal appends every delivered send to p as a D-term send cell.
func WithJournal(p *ir.Program) Option {
	return func(r *Runtime) { r.journal = p }
}

// New creates an empty runtime. It starts stopped.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		byID:   make(map[int64]int),
		logger: slog.Default(),
		now:    time.Now,
		nextCP: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.ids == nil {
		r.ids = NewIDGen()
	}
	if r.interp == nil {
		r.interp = script.NewInterpreter(script.WithLogger(r.logger), script.WithMetrics(r.metrics))
	}
	return r
}

// Spawn creates an actor from def. Handler bodies are parsed here, so a
// malformed body fails the spawn and nothing is added.
func (r *Runtime) Spawn(def *Definition) (int64, error) {
	if def == nil || def.Name == "" {
		return 0, &DefinitionError{Line: 0, Message: "actor needs a name"}
	}

	handlers := make(map[string]*script.Program, len(def.Handlers))
	events := make([]string, 0, len(def.Handlers))
	for _, h := range def.Handlers {
		prog, err := script.Parse(h.Body)
		if err != nil {
			var pe *script.ParseError
			if errors.As(err, &pe) {
				return 0, &DefinitionError{Line: h.Line + pe.Line, Message: fmt.Sprintf("on %s: %s", h.Event, pe.Message)}
			}
			return 0, fmt.Errorf("spawn %s: on %s: %w", def.Name, h.Event, err)
		}
		handlers[h.Event] = prog
		events = append(events, h.Event)
	}

	state := NewState()
	for _, f := range def.State {
		state.Set(f.Key, f.Value)
	}

	a := &Actor{
		ID:       r.ids.Next(),
		Name:     norm.NFC.String(def.Name),
		Role:     def.Role,
		State:    state,
		handlers: handlers,
		events:   events,
	}
	r.byID[a.ID] = len(r.actors)
	r.actors = append(r.actors, a)
	r.mailboxes = append(r.mailboxes, newMailbox())

	r.logger.Info("spawned actor", "actor", a.Name, "id", a.ID, "role", a.Role)
	return a.ID, nil
}

// Start marks the runtime running.
func (r *Runtime) Start() {
	if !r.running {
		r.running = true
		r.logger.Info("actor runtime started", "actors", len(r.actors))
	}
}

// Stop marks the runtime stopped. A running Run returns after its
// current tick.
func (r *Runtime) Stop() {
	if r.running {
		r.running = false
		r.logger.Info("actor runtime stopped")
	}
}

// Running reports whether Start has been called without a later Stop.
func (r *Runtime) Running() bool { return r.running }

// Lookup returns the actor with id.
func (r *Runtime) Lookup(id int64) (*Actor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.actors[i], true
}

// LookupByName returns the first actor, in spawn order, named name.
func (r *Runtime) LookupByName(name string) (*Actor, bool) {
	name = norm.NFC.String(name)
	for _, a := range r.actors {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Actors returns the live actors in spawn order.
func (r *Runtime) Actors() []*Actor {
	out := make([]*Actor, len(r.actors))
	copy(out, r.actors)
	return out
}

// Send enqueues event for the actor with id. An empty payload becomes
// DefaultPayload.
func (r *Runtime) Send(id int64, event, payload string) error {
	if event == "" {
		return ErrEmptyEvent
	}
	i, ok := r.byID[id]
	if !ok {
		r.metrics.Message(metrics.MessageUndeliverable)
		return fmt.Errorf("send %s to %d: %w", event, id, ErrActorNotFound)
	}
	if payload == "" {
		payload = DefaultPayload
	}
	r.mailboxes[i].push(Message{Event: event, Payload: payload, Timestamp: r.now()})
	r.metrics.Message(metrics.MessageSent)
	r.logger.Debug("sent message", "actor", r.actors[i].Name, "event", event)

	if r.journal != nil {
		c := ir.NewDTermCell(ir.OpSend, r.actors[i].Name, event, payload)
		c.Provenance = ir.Provenance{Origin: "actor", Path: r.actors[i].Name + "." + event}
		if _, err := r.journal.Append(c); err != nil {
			return fmt.Errorf("journal send: %w", err)
		}
	}
	return nil
}

// SendByName is Send addressed by actor name.
func (r *Runtime) SendByName(name, event, payload string) error {
	a, ok := r.LookupByName(name)
	if !ok {
		r.metrics.Message(metrics.MessageUndeliverable)
		return fmt.Errorf("send %s to %q: %w", event, name, ErrActorNotFound)
	}
	return r.Send(a.ID, event, payload)
}

// Pending returns the total number of queued messages.
func (r *Runtime) Pending() int {
	n := 0
	for _, m := range r.mailboxes {
		n += m.len()
	}
	return n
}

// Mailbox returns a copy of the messages queued for id, oldest first.
func (r *Runtime) Mailbox(id int64) ([]Message, error) {
	i, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("mailbox %d: %w", id, ErrActorNotFound)
	}
	return r.mailboxes[i].snapshot(), nil
}

// Tick lets each actor, in spawn order, handle at most one message. A
// handler's sends are queued immediately, so an actor later in spawn order
// may handle a message sent earlier in the same tick. A message with no
// matching handler is dropped with a diagnostic. Tick fails with
// ErrNotRunning until Start is called.
func (r *Runtime) Tick(ctx context.Context) (TickReport, error) {
	var rep TickReport
	if !r.running {
		return rep, ErrNotRunning
	}
	r.metrics.Tick()

	for i := 0; i < len(r.actors); i++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		msg, ok := r.mailboxes[i].pop()
		if !ok {
			continue
		}
		a := r.actors[i]
		rep.Processed++

		prog, ok := a.handlers[msg.Event]
		if !ok {
			d := fmt.Sprintf("No handler for %s on %s", msg.Event, a.Name)
			rep.Diagnostics = append(rep.Diagnostics, d)
			r.diagnostics = append(r.diagnostics, d)
			r.metrics.Message(metrics.MessageUnhandled)
			r.logger.Warn("no handler", "actor", a.Name, "event", msg.Event)
			continue
		}

		r.logger.Debug("handling message", "actor", a.Name, "event", msg.Event)
		hr, err := r.interp.Run(ctx, prog, script.Env{
			Actor:   a.Name,
			State:   a.State,
			Payload: msg.Payload,
			Host:    &host{r: r, self: a},
		})
		rep.Handled++
		r.metrics.Message(metrics.MessageHandled)
		rep.Diagnostics = append(rep.Diagnostics, hr.Diagnostics...)
		r.diagnostics = append(r.diagnostics, hr.Diagnostics...)
		if err != nil {
			return rep, fmt.Errorf("%s on %s: %w", a.Name, msg.Event, err)
		}
	}
	return rep, nil
}

// Run ticks until the mailboxes drain, Stop is called, or ctx is done.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.running {
		return ErrNotRunning
	}
	for r.running && r.Pending() > 0 {
		if _, err := r.Tick(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Logs returns every handler log line so far.
func (r *Runtime) Logs() []LogEntry {
	out := make([]LogEntry, len(r.logs))
	copy(out, r.logs)
	return out
}

// Diagnostics returns every non-fatal diagnostic so far.
func (r *Runtime) Diagnostics() []string {
	out := make([]string, len(r.diagnostics))
	copy(out, r.diagnostics)
	return out
}

// host routes a handler's log and send statements back to the runtime.
type host struct {
	r    *Runtime
	self *Actor
}

func (h *host) Log(actor, message string) {
	h.r.logs = append(h.r.logs, LogEntry{Actor: actor, Message: message, Time: h.r.now()})
	h.r.logger.Info("actor log", "actor", actor, "message", message)
}

func (h *host) Send(_, target, event, payload string) error {
	if target == "self" {
		return h.r.Send(h.self.ID, event, payload)
	}
	a, ok := h.r.LookupByName(target)
	if !ok {
		h.r.metrics.Message(metrics.MessageUndeliverable)
		return fmt.Errorf("target actor %q: %w", target, ErrActorNotFound)
	}
	return h.r.Send(a.ID, event, payload)
}
