package store

import (
	"context"
	"fmt"
	"sort"
)

// RunState summarises how far a stored run got.
type RunState struct {
	Run         Run
	CellCount   int // cells saved
	Executed    int // cells marked executed
	Effects     int
	FailedCount int // effects that did not succeed
	Messages    int
	LastSeq     int
	IsComplete  bool // every saved cell executed and at least one cell exists
}

// GetRunState loads the run row and counts its stored records.
func (s *Store) GetRunState(ctx context.Context, runID string) (RunState, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("get run state: %w", err)
	}
	state := RunState{Run: run}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(executed), 0) FROM cells WHERE run_id = ?
	`, runID).Scan(&state.CellCount, &state.Executed)
	if err != nil {
		return state, fmt.Errorf("get run state: count cells: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(1 - succeeded), 0), COALESCE(MAX(seq), 0)
		FROM effects WHERE run_id = ?
	`, runID).Scan(&state.Effects, &state.FailedCount, &state.LastSeq)
	if err != nil {
		return state, fmt.Errorf("get run state: count effects: %w", err)
	}

	var msgSeq int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(seq), 0) FROM messages WHERE run_id = ?
	`, runID).Scan(&state.Messages, &msgSeq)
	if err != nil {
		return state, fmt.Errorf("get run state: count messages: %w", err)
	}
	if msgSeq > state.LastSeq {
		state.LastSeq = msgSeq
	}

	state.IsComplete = state.CellCount > 0 && state.Executed == state.CellCount
	return state, nil
}

// FindIncompleteRuns returns runs with at least one unexecuted cell, or
// with no cells saved at all.
func (s *Store) FindIncompleteRuns(ctx context.Context) ([]RunState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id
		FROM runs r
		LEFT JOIN cells c ON c.run_id = r.id
		GROUP BY r.id
		HAVING COUNT(c.seq) = 0 OR COALESCE(SUM(c.executed), 0) < COUNT(c.seq)
		ORDER BY r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("find incomplete runs: scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find incomplete runs: %w", err)
	}

	states := make([]RunState, 0, len(ids))
	for _, id := range ids {
		st, err := s.GetRunState(ctx, id)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// TraceEventType distinguishes effects from journaled sends.
type TraceEventType int

const (
	EventEffect TraceEventType = iota
	EventMessage
)

// String returns the event type as a string.
func (t TraceEventType) String() string {
	switch t {
	case EventEffect:
		return "effect"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// TraceEvent is one entry of a merged run trace.
type TraceEvent struct {
	Type    TraceEventType
	Seq     int
	Summary string
}

// Trace returns a run's effects and messages merged into one stream,
// ordered by seq with effects first on ties.
func (s *Store) Trace(ctx context.Context, runID string) ([]TraceEvent, error) {
	effects, err := s.effectRecords(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	messages, err := s.Messages(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}

	events := make([]TraceEvent, 0, len(effects)+len(messages))
	for _, e := range effects {
		status := "ok"
		if !e.Succeeded {
			status = "failed: " + e.Error
		}
		events = append(events, TraceEvent{
			Type:    EventEffect,
			Seq:     e.Seq,
			Summary: fmt.Sprintf("cell %d %s%v %s", e.CellID, e.Operation, e.Args, status),
		})
	}
	for _, m := range messages {
		events = append(events, TraceEvent{
			Type:    EventMessage,
			Seq:     m.Seq,
			Summary: fmt.Sprintf("%s <- %s %s", m.Actor, m.Event, m.Payload),
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Seq != events[j].Seq {
			return events[i].Seq < events[j].Seq
		}
		return events[i].Type < events[j].Type
	})
	return events, nil
}

// LastSeq returns the highest effect or message seq recorded for a run.
func (s *Store) LastSeq(ctx context.Context, runID string) (int, error) {
	var seq int
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			(SELECT COALESCE(MAX(seq), 0) FROM effects WHERE run_id = ?),
			(SELECT COALESCE(MAX(seq), 0) FROM messages WHERE run_id = ?)
		)
	`, runID, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
