package actor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rio/internal/ir"
	"github.com/roach88/rio/internal/metrics"
	rtest "github.com/roach88/rio/internal/testutil"
)

const counterSrc = `// counts increments
actor Counter
    role is "counts things"
    state has
        count -> 0
        label is 'ticks'
    handlers
        on inc
            state.count -> state.count + 1
        on record
            log data
            if data > 2
                log "big"
`

const pingPongSrc = `
actor Ping
    state has
        sent -> 0
    handlers
        on go
            state.sent -> state.sent + 1
            Pong -> ping state.sent

actor Pong
    state has
        got -> 0
    handlers
        on ping
            state.got -> data
            Ghost -> ping
`

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	clock := rtest.NewDeterministicClock()
	r := New(append([]Option{WithLogger(quietLogger()), WithClock(clock.Now)}, opts...)...)
	r.Start()
	return r
}

func spawn(t *testing.T, r *Runtime, src string) []int64 {
	t.Helper()
	defs, err := ParseDefinitions(src)
	require.NoError(t, err)
	var ids []int64
	for _, d := range defs {
		id, err := r.Spawn(d)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func messages(entries []LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestParseDefinition_Sections(t *testing.T) {
	def, err := ParseDefinition(counterSrc)
	require.NoError(t, err)

	assert.Equal(t, "Counter", def.Name)
	assert.Equal(t, "counts things", def.Role)
	assert.Equal(t, []Field{{"count", "0"}, {"label", "ticks"}}, def.State)

	require.Len(t, def.Handlers, 2)
	assert.Equal(t, "inc", def.Handlers[0].Event)
	assert.Equal(t, "state.count -> state.count + 1", def.Handlers[0].Body)
	assert.Equal(t, 8, def.Handlers[0].Line)

	rec, ok := def.Handler("record")
	require.True(t, ok)
	assert.Equal(t, "log data\nif data > 2\n    log \"big\"", rec.Body)
}

func TestParseDefinitions_Multiple(t *testing.T) {
	defs, err := ParseDefinitions(pingPongSrc)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "Ping", defs[0].Name)
	assert.Equal(t, "Pong", defs[1].Name)
	assert.Len(t, defs[1].Handlers, 1)
}

func TestParseDefinition_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"no actor", "state has\n  x -> 1", 1},
		{"empty", "// nothing\n", 1},
		{"bad field", "actor A\nstate has\n  just a value", 3},
		{"duplicate handler", "actor A\nhandlers\n  on e\n    log 1\n  on e\n    log 2", 5},
		{"stray line", "actor A\n  flies away", 2},
		{"two actors", "actor A\nactor B", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition(tt.src)
			var de *DefinitionError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.line, de.Line)
		})
	}
}

func TestRuntime_SpawnAssignsIDsFromOne(t *testing.T) {
	r := newRuntime(t)
	ids := spawn(t, r, pingPongSrc)
	assert.Equal(t, []int64{1, 2}, ids)

	a, ok := r.LookupByName("Pong")
	require.True(t, ok)
	assert.Equal(t, int64(2), a.ID)
	assert.Equal(t, []string{"ping"}, a.Events())

	_, ok = r.Lookup(3)
	assert.False(t, ok)
}

func TestRuntime_SpawnCopiesDefinitionState(t *testing.T) {
	def, err := ParseDefinition(counterSrc)
	require.NoError(t, err)

	r := newRuntime(t)
	first, err := r.Spawn(def)
	require.NoError(t, err)
	second, err := r.Spawn(def)
	require.NoError(t, err)

	require.NoError(t, r.Send(first, "inc", ""))
	_, err = r.Tick(context.Background())
	require.NoError(t, err)

	a, _ := r.Lookup(first)
	b, _ := r.Lookup(second)
	v, _ := a.State.Get("count")
	assert.Equal(t, "1", v)
	v, _ = b.State.Get("count")
	assert.Equal(t, "0", v)
	assert.Equal(t, "0", def.State[0].Value)
}

func TestRuntime_SpawnRejectsBadHandler(t *testing.T) {
	def := &Definition{Name: "Bad", Handlers: []HandlerDef{{Event: "e", Body: "log 1\n???", Line: 4}}}

	r := newRuntime(t)
	_, err := r.Spawn(def)
	var de *DefinitionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 6, de.Line)
	assert.Empty(t, r.Actors())
}

func TestRuntime_FIFOOnePerTick(t *testing.T) {
	src := "actor Echo\n  handlers\n    on e\n      log data\n"
	r := newRuntime(t)
	id := spawn(t, r, src)[0]

	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, r.Send(id, "e", p))
	}
	assert.Equal(t, 3, r.Pending())

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		rep, err := r.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Processed)
		assert.Len(t, r.Logs(), i)
	}
	assert.Equal(t, []string{"1", "2", "3"}, messages(r.Logs()))
	assert.Zero(t, r.Pending())

	rep, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Processed)
}

func TestRuntime_TickRoundRobin(t *testing.T) {
	r := newRuntime(t)
	ids := spawn(t, r, counterSrc+"\n"+counterSrc)

	require.NoError(t, r.Send(ids[0], "inc", ""))
	require.NoError(t, r.Send(ids[0], "inc", ""))
	require.NoError(t, r.Send(ids[1], "inc", ""))

	rep, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)

	a, _ := r.Lookup(ids[0])
	b, _ := r.Lookup(ids[1])
	v, _ := a.State.Get("count")
	assert.Equal(t, "1", v)
	v, _ = b.State.Get("count")
	assert.Equal(t, "1", v)
	assert.Equal(t, 1, r.Pending())
}

func TestRuntime_SendToLaterActorHandledSameTick(t *testing.T) {
	r := newRuntime(t)
	spawn(t, r, pingPongSrc)

	require.NoError(t, r.SendByName("Ping", "go", ""))
	rep, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)

	pong, _ := r.LookupByName("Pong")
	v, _ := pong.State.Get("got")
	assert.Equal(t, "1", v)

	require.Len(t, rep.Diagnostics, 1)
	assert.Contains(t, rep.Diagnostics[0], `target actor "Ghost"`)
}

func TestRuntime_NoHandlerIsDiagnostic(t *testing.T) {
	m := metrics.New()
	r := newRuntime(t, WithMetrics(m))
	id := spawn(t, r, counterSrc)[0]

	require.NoError(t, r.Send(id, "unknown", ""))
	rep, err := r.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"No handler for unknown on Counter"}, rep.Diagnostics)
	assert.Equal(t, rep.Diagnostics, r.Diagnostics())
	assert.Zero(t, rep.Handled)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	assert.Contains(t, buf.String(), `rio_actor_messages_total{outcome="unhandled"} 1`)
}

func TestRuntime_SendErrors(t *testing.T) {
	r := newRuntime(t)
	id := spawn(t, r, counterSrc)[0]

	assert.ErrorIs(t, r.Send(99, "inc", ""), ErrActorNotFound)
	assert.ErrorIs(t, r.SendByName("Nobody", "inc", ""), ErrActorNotFound)
	assert.ErrorIs(t, r.Send(id, "", ""), ErrEmptyEvent)
	assert.Zero(t, r.Pending())
}

func TestRuntime_SendDefaultsPayloadAndStamps(t *testing.T) {
	r := newRuntime(t)
	id := spawn(t, r, counterSrc)[0]

	require.NoError(t, r.Send(id, "record", ""))
	require.NoError(t, r.Send(id, "record", "5"))

	box, err := r.Mailbox(id)
	require.NoError(t, err)
	require.Len(t, box, 2)
	assert.Equal(t, DefaultPayload, box[0].Payload)
	assert.Equal(t, "5", box[1].Payload)
	assert.True(t, box[1].Timestamp.After(box[0].Timestamp))
}

func TestRuntime_SelfSendQueuesForNextTick(t *testing.T) {
	src := `
actor Loop
    state has
        n -> 0
    handlers
        on step
            state.n -> state.n + 1
            if state.n < 3
                self -> step
`
	r := newRuntime(t)
	spawn(t, r, src)
	require.NoError(t, r.SendByName("Loop", "step", ""))

	ctx := context.Background()
	_, err := r.Tick(ctx)
	require.NoError(t, err)
	a, _ := r.LookupByName("Loop")
	v, _ := a.State.Get("n")
	assert.Equal(t, "1", v)
	assert.Equal(t, 1, r.Pending())

	r.Start()
	require.NoError(t, r.Run(ctx))
	v, _ = a.State.Get("n")
	assert.Equal(t, "3", v)
	assert.Zero(t, r.Pending())
}

func TestRuntime_RunRequiresStart(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	assert.False(t, r.Running())
	assert.ErrorIs(t, r.Run(context.Background()), ErrNotRunning)

	r.Start()
	assert.True(t, r.Running())
	r.Stop()
	assert.False(t, r.Running())
}

func TestRuntime_TickRequiresStart(t *testing.T) {
	r := New(WithLogger(quietLogger()))
	id := spawn(t, r, counterSrc)[0]
	require.NoError(t, r.Send(id, "inc", ""))

	_, err := r.Tick(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, 1, r.Pending(), "a stopped runtime leaves mailboxes untouched")

	r.Start()
	rep, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Handled)

	r.Stop()
	_, err = r.Tick(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRuntime_TickHonorsContext(t *testing.T) {
	r := newRuntime(t)
	id := spawn(t, r, counterSrc)[0]
	require.NoError(t, r.Send(id, "inc", ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, r.Pending())
}

func TestRuntime_CheckpointRollback(t *testing.T) {
	r := newRuntime(t)
	id := spawn(t, r, counterSrc)[0]
	ctx := context.Background()

	require.NoError(t, r.Send(id, "inc", ""))
	require.NoError(t, r.Send(id, "inc", ""))
	cp := r.Checkpoint("two queued")

	_, err := r.Tick(ctx)
	require.NoError(t, err)
	_, err = r.Tick(ctx)
	require.NoError(t, err)
	later := spawn(t, r, pingPongSrc)
	assert.Len(t, r.Actors(), 3)

	require.NoError(t, r.Rollback(cp))

	a, _ := r.Lookup(id)
	v, _ := a.State.Get("count")
	assert.Equal(t, "0", v)
	assert.Equal(t, 2, r.Pending())
	assert.Len(t, r.Actors(), 1)
	_, ok := r.Lookup(later[0])
	assert.False(t, ok)

	newID := spawn(t, r, pingPongSrc)
	assert.Equal(t, []int64{4, 5}, newID)

	// The checkpoint survives and can be reused.
	_, err = r.Tick(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Rollback(cp))
	assert.Equal(t, 2, r.Pending())
}

func TestRuntime_CheckpointErrors(t *testing.T) {
	r := newRuntime(t)
	cp := r.Checkpoint("empty")
	assert.Len(t, r.Checkpoints(), 1)

	require.NoError(t, r.DiscardCheckpoint(cp))
	assert.ErrorIs(t, r.Rollback(cp), ErrNoCheckpoint)
	assert.ErrorIs(t, r.DiscardCheckpoint(cp), ErrNoCheckpoint)
}

func TestRuntime_Journal(t *testing.T) {
	prog := ir.NewProgram("actors")
	r := newRuntime(t, WithJournal(prog))
	spawn(t, r, pingPongSrc)

	require.NoError(t, r.SendByName("Ping", "go", ""))
	_, err := r.Tick(context.Background())
	require.NoError(t, err)

	cells := prog.Cells()
	require.Len(t, cells, 2)
	assert.Equal(t, ir.OpSend, cells[0].Opcode)
	assert.False(t, cells[0].Reversible)
	assert.Equal(t, []string{"Ping", "go", DefaultPayload}, cells[0].Operands)
	assert.Equal(t, []string{"Pong", "ping", "1"}, cells[1].Operands)
	assert.Equal(t, "Pong.ping", cells[1].Provenance.Path)
}

func TestRuntime_WhileCapInHandler(t *testing.T) {
	src := `
actor Spinner
    state has
        n -> 0
    handlers
        on spin
            while true
                state.n -> state.n + 1
`
	r := newRuntime(t)
	spawn(t, r, src)
	require.NoError(t, r.SendByName("Spinner", "spin", ""))

	rep, err := r.Tick(context.Background())
	require.NoError(t, err)

	a, _ := r.LookupByName("Spinner")
	v, _ := a.State.Get("n")
	assert.Equal(t, "10000", v)
	require.Len(t, rep.Diagnostics, 1)
	assert.Contains(t, rep.Diagnostics[0], "iteration limit")
}
