package session

// seenEvents remembers the most recent event ids, forgetting the oldest once
// full.
type seenEvents struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newSeenEvents(capacity int) *seenEvents {
	if capacity <= 0 {
		capacity = 1
	}
	return &seenEvents{
		ids:  make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

// add records id and reports whether it was new.
func (s *seenEvents) add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.ids[id] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
	return true
}
