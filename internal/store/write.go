package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/rio/internal/bits"
	"github.com/roach88/rio/internal/hrir"
	"github.com/roach88/rio/internal/ir"
)

// Run is one stored execution.
type Run struct {
	ID         string
	SourceName string
	Digest     string
	InstanceID string
	CellCount  int
	CreatedAt  time.Time
}

// NewRunID returns a fresh time-ordered run id.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// CreateRun inserts run, generating an id when run.ID is empty, and
// returns the id. Creating the same id twice is a no-op.
func (s *Store) CreateRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		id, err := NewRunID()
		if err != nil {
			return "", err
		}
		run.ID = id
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source_name, digest, instance_id, cell_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.SourceName, run.Digest, run.InstanceID, run.CellCount, formatTime(run.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.ID, nil
}

// SaveProgram writes every cell of p under runID in one transaction.
// Saving again updates execution state and the run's digest and count.
func (s *Store) SaveProgram(ctx context.Context, runID string, p *ir.Program) error {
	digest, err := p.Digest()
	if err != nil {
		return fmt.Errorf("save program: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save program: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `UPDATE runs SET digest = ?, cell_count = ? WHERE id = ?`,
		digest, p.CellCount(), runID)
	if err != nil {
		return fmt.Errorf("save program: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save program: %w: %s", ErrRunNotFound, runID)
	}

	for seq, c := range p.Cells() {
		if c == nil {
			continue
		}
		args, err := marshalArgs(c.Operands)
		if err != nil {
			return fmt.Errorf("save program: cell %d: %w", c.ID, err)
		}
		result, err := marshalResult(c.Result)
		if err != nil {
			return fmt.Errorf("save program: cell %d: %w", c.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cells
			(run_id, seq, id, opcode, args, is_reversible, executed, result, origin, line, path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, seq) DO UPDATE SET executed = excluded.executed, result = excluded.result
		`,
			runID, seq, c.ID, string(c.Opcode), args, boolToInt(c.Reversible), boolToInt(c.Executed),
			result, c.Provenance.Origin, c.Provenance.Line, c.Provenance.Path,
		)
		if err != nil {
			return fmt.Errorf("save program: cell %d: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save program: commit: %w", err)
	}
	return nil
}

// RecordEffect stores the seq'th effect of a run. Duplicate writes are
// ignored.
func (s *Store) RecordEffect(ctx context.Context, runID string, seq int, e hrir.Effect) error {
	args, err := marshalArgs(e.Args)
	if err != nil {
		return fmt.Errorf("record effect: %w", err)
	}
	result, err := marshalResult(e.Result)
	if err != nil {
		return fmt.Errorf("record effect: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO effects (run_id, seq, cell_id, operation, args, succeeded, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, runID, seq, e.CellID, e.Operation, args, boolToInt(e.Succeeded), result, e.Error)
	if err != nil {
		return fmt.Errorf("record effect: %w", err)
	}
	return nil
}

// RecordEffects stores effects in order, numbering them from 1.
func (s *Store) RecordEffects(ctx context.Context, runID string, effects []hrir.Effect) error {
	for i, e := range effects {
		if err := s.RecordEffect(ctx, runID, i+1, e); err != nil {
			return err
		}
	}
	return nil
}

// StoredCheckpoint is a checkpoint as persisted.
type StoredCheckpoint struct {
	ID        int
	PC        int
	Label     string
	Bits      []bool
	CreatedAt time.Time
}

// RecordCheckpoint stores a program checkpoint together with the bit
// snapshot it refers to.
func (s *Store) RecordCheckpoint(ctx context.Context, runID string, cp ir.Checkpoint, snap bits.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, id, pc, label, bits, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, runID, cp.ID, cp.PC, cp.Label, marshalBits(snap.Bits), formatTime(cp.CreatedAt))
	if err != nil {
		return fmt.Errorf("record checkpoint: %w", err)
	}
	return nil
}

// Message is one journaled actor send.
type Message struct {
	Seq     int
	Actor   string
	Event   string
	Payload string
	SentAt  time.Time
}

// RecordMessage stores a journaled send. Duplicate seqs are ignored.
func (s *Store) RecordMessage(ctx context.Context, runID string, m Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (run_id, seq, actor, event, payload, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, runID, m.Seq, m.Actor, m.Event, m.Payload, formatTime(m.SentAt))
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}
