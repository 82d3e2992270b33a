package actor

import "sync/atomic"

// IDGen hands out actor ids. Each Runtime owns one; ids are never reused,
// even after a rollback removes the actor that held them.
type IDGen struct {
	last atomic.Int64
}

// NewIDGen creates a generator whose first id is 1.
func NewIDGen() *IDGen {
	return &IDGen{}
}

// NewIDGenAt creates a generator whose next id is last+1.
// Used when resuming a journal.
func NewIDGenAt(last int64) *IDGen {
	g := &IDGen{}
	g.last.Store(last)
	return g
}

// Next returns the next id.
func (g *IDGen) Next() int64 {
	return g.last.Add(1)
}

// Last returns the most recently issued id, or 0.
func (g *IDGen) Last() int64 {
	return g.last.Load()
}
