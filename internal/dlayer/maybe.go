package dlayer

import "errors"

// ErrAlreadyResolved is returned when resolving a Maybe a second time.
var ErrAlreadyResolved = errors.New("maybe already resolved")

// Maybe is a boolean that has not been decided yet. It can be resolved
// exactly once; the decision is irreversible.
type Maybe struct {
	// Data is caller context carried alongside the undecided value.
	Data any

	resolved bool
	value    bool
}

// NewMaybe creates an unresolved Maybe carrying data.
func NewMaybe(data any) *Maybe {
	return &Maybe{Data: data}
}

// Resolve fixes the value. Later calls fail with ErrAlreadyResolved and
// leave the first value in place.
func (m *Maybe) Resolve(v bool) error {
	if m.resolved {
		return ErrAlreadyResolved
	}
	m.resolved = true
	m.value = v
	return nil
}

// Resolved reports whether Resolve has succeeded.
func (m *Maybe) Resolved() bool { return m.resolved }

// Value returns the resolved value. ok is false while unresolved.
func (m *Maybe) Value() (v bool, ok bool) {
	return m.value, m.resolved
}

// Commit resolves m from bit i of the layer's store.
func (m *Maybe) Commit(l *Layer, i int) error {
	if m.resolved {
		return ErrAlreadyResolved
	}
	v, err := l.store.Read(i)
	if err != nil {
		return err
	}
	return m.Resolve(v)
}
