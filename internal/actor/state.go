package actor

// State is an actor's key/value state. Values are text; keys keep their
// insertion order.
type State struct {
	keys   []string
	values map[string]string
}

// NewState creates an empty state.
func NewState() *State {
	return &State{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key, appending key if it is new.
func (s *State) Set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Keys returns the keys in insertion order.
func (s *State) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of keys.
func (s *State) Len() int { return len(s.keys) }

// Map returns a copy of the state as a plain map.
func (s *State) Map() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c := &State{
		keys:   make([]string, len(s.keys)),
		values: make(map[string]string, len(s.values)),
	}
	copy(c.keys, s.keys)
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}
