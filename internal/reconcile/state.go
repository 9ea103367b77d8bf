package reconcile

import "maps"

// State is the reconciled view of a room: entity id to latest live payload.
// It is not safe for concurrent use.
type State struct {
	entries map[string]string
}

func NewState() *State {
	return &State{entries: make(map[string]string)}
}

// Apply folds op into the state. It reports whether the state changed.
func (s *State) Apply(op Op) bool {
	switch o := op.(type) {
	case Insert:
		if prev, ok := s.entries[o.ID]; ok && prev == o.Payload {
			return false
		}
		s.entries[o.ID] = o.Payload
		return true
	case Delete:
		if _, ok := s.entries[o.ID]; !ok {
			return false
		}
		delete(s.entries, o.ID)
		return true
	}
	return false
}

func (s *State) Get(id string) (string, bool) {
	v, ok := s.entries[id]
	return v, ok
}

func (s *State) Len() int { return len(s.entries) }

// Snapshot returns a copy of the current mapping.
func (s *State) Snapshot() map[string]string {
	return maps.Clone(s.entries)
}

// Fold applies ops in order to an empty state.
func Fold(ops ...Op) *State {
	s := NewState()
	for _, op := range ops {
		s.Apply(op)
	}
	return s
}
