package actor

import (
	"fmt"
	"time"
)

// Checkpoint is a saved copy of every actor's state and mailbox.
type Checkpoint struct {
	ID        int
	Label     string
	CreatedAt time.Time

	actors []actorSnapshot
}

type actorSnapshot struct {
	actor   *Actor
	state   *State
	mailbox []Message
}

// Actors returns how many actors existed when the checkpoint was taken.
func (c Checkpoint) Actors() int { return len(c.actors) }

// Checkpoint saves the runtime and returns the checkpoint id.
func (r *Runtime) Checkpoint(label string) int {
	cp := Checkpoint{ID: r.nextCP, Label: label, CreatedAt: r.now()}
	r.nextCP++
	for i, a := range r.actors {
		cp.actors = append(cp.actors, actorSnapshot{
			actor:   a,
			state:   a.State.Clone(),
			mailbox: r.mailboxes[i].snapshot(),
		})
	}
	r.checkpoints = append(r.checkpoints, cp)
	r.logger.Debug("actor checkpoint", "id", cp.ID, "label", label, "actors", len(cp.actors))
	return cp.ID
}

// Checkpoints returns the saved checkpoints, oldest first.
func (r *Runtime) Checkpoints() []Checkpoint {
	out := make([]Checkpoint, len(r.checkpoints))
	copy(out, r.checkpoints)
	return out
}

// Rollback restores the checkpoint with id. Actors spawned after it are
// removed; their ids are not reissued. Logs and diagnostics are kept.
// The checkpoint itself stays available.
func (r *Runtime) Rollback(id int) error {
	var cp *Checkpoint
	for i := range r.checkpoints {
		if r.checkpoints[i].ID == id {
			cp = &r.checkpoints[i]
			break
		}
	}
	if cp == nil {
		return fmt.Errorf("rollback %d: %w", id, ErrNoCheckpoint)
	}

	actors := make([]*Actor, len(cp.actors))
	boxes := make([]*mailbox, len(cp.actors))
	byID := make(map[int64]int, len(cp.actors))
	for i, s := range cp.actors {
		s.actor.State = s.state.Clone()
		actors[i] = s.actor
		boxes[i] = newMailbox()
		boxes[i].restore(s.mailbox)
		byID[s.actor.ID] = i
	}
	r.actors, r.mailboxes, r.byID = actors, boxes, byID

	r.logger.Debug("actor rollback", "checkpoint", id, "actors", len(actors))
	return nil
}

// DiscardCheckpoint drops the checkpoint with id.
func (r *Runtime) DiscardCheckpoint(id int) error {
	for i, cp := range r.checkpoints {
		if cp.ID == id {
			r.checkpoints = append(r.checkpoints[:i], r.checkpoints[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("discard %d: %w", id, ErrNoCheckpoint)
}
