package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/rio/internal/hrir"
	"github.com/roach88/rio/internal/ir"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// ReadRun returns a single run.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_name, digest, instance_id, cell_count, created_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Runs returns every run, oldest first. UUIDv7 ids sort by creation time,
// so ordering by id is deterministic even when timestamps tie.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_name, digest, instance_id, cell_count, created_at
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LoadProgram rebuilds the program saved under runID. Execution flags and
// results come back as saved; the program counter starts at 0.
func (s *Store) LoadProgram(ctx context.Context, runID string) (*ir.Program, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, opcode, args, is_reversible, executed, result, origin, line, path
		FROM cells
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()

	doc := ir.Document{SourceName: run.SourceName, CellCount: run.CellCount, Cells: []ir.DocumentCell{}}
	for rows.Next() {
		var (
			dc         ir.DocumentCell
			argsJSON   string
			reversible int
			executed   int
			result     sql.NullString
		)
		if err := rows.Scan(&dc.ID, &dc.Opcode, &argsJSON, &reversible, &executed, &result,
			&dc.Origin, &dc.Line, &dc.Path); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		if dc.Args, err = unmarshalArgs(argsJSON); err != nil {
			return nil, fmt.Errorf("cell %d: %w", dc.ID, err)
		}
		dc.IsReversible = reversible != 0
		dc.Executed = executed != 0
		if result.Valid {
			dc.Result = json.RawMessage(result.String)
		}
		doc.Cells = append(doc.Cells, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cells: %w", err)
	}

	p, err := ir.FromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("load program %s: %w", runID, err)
	}
	return p, nil
}

// Effects returns a run's effects in seq order.
func (s *Store) Effects(ctx context.Context, runID string) ([]hrir.Effect, error) {
	records, err := s.effectRecords(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]hrir.Effect, len(records))
	for i, r := range records {
		out[i] = r.Effect
	}
	return out, nil
}

type effectRecord struct {
	Seq int
	hrir.Effect
}

func (s *Store) effectRecords(ctx context.Context, runID string) ([]effectRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, cell_id, operation, args, succeeded, result, error
		FROM effects
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query effects: %w", err)
	}
	defer rows.Close()

	records := []effectRecord{}
	for rows.Next() {
		var (
			r         effectRecord
			argsJSON  string
			succeeded int
			result    sql.NullString
		)
		if err := rows.Scan(&r.Seq, &r.CellID, &r.Operation, &argsJSON, &succeeded, &result, &r.Error); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		if r.Args, err = unmarshalArgs(argsJSON); err != nil {
			return nil, fmt.Errorf("effect %d: %w", r.Seq, err)
		}
		if r.Result, err = unmarshalResult(result); err != nil {
			return nil, fmt.Errorf("effect %d: %w", r.Seq, err)
		}
		r.Succeeded = succeeded != 0
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate effects: %w", err)
	}
	return records, nil
}

// Checkpoints returns a run's checkpoints in id order.
func (s *Store) Checkpoints(ctx context.Context, runID string) ([]StoredCheckpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pc, label, bits, created_at
		FROM checkpoints
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	out := []StoredCheckpoint{}
	for rows.Next() {
		var (
			cp        StoredCheckpoint
			bitsText  string
			createdAt string
		)
		if err := rows.Scan(&cp.ID, &cp.PC, &cp.Label, &bitsText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if cp.Bits, err = unmarshalBits(bitsText); err != nil {
			return nil, fmt.Errorf("checkpoint %d: %w", cp.ID, err)
		}
		if cp.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("checkpoint %d: %w", cp.ID, err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

// Messages returns a run's journaled sends in seq order.
func (s *Store) Messages(ctx context.Context, runID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, actor, event, payload, sent_at
		FROM messages
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			m      Message
			sentAt string
		)
		if err := rows.Scan(&m.Seq, &m.Actor, &m.Event, &m.Payload, &sentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.SentAt, err = parseTime(sentAt); err != nil {
			return nil, fmt.Errorf("message %d: %w", m.Seq, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		createdAt string
	)
	if err := row.Scan(&run.ID, &run.SourceName, &run.Digest, &run.InstanceID, &run.CellCount, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Run{}, err
	}
	run.CreatedAt = t
	return run, nil
}
