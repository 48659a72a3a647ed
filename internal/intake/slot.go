package intake

import "sync"

// Slot holds the currently staged candidate of one session. Every Put
// starts a new selection with its own sequence number.
type Slot struct {
	mu      sync.Mutex
	current *Candidate
	seq     uint64
}

// Put replaces whatever was staged before.
func (s *Slot) Put(c Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.current = &c
}

func (s *Slot) Current() (Candidate, bool) {
	c, _, ok := s.Selection()
	return c, ok
}

// Selection returns the staged candidate and the sequence number of the
// Put that staged it.
func (s *Slot) Selection() (Candidate, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Candidate{}, 0, false
	}
	return *s.current, s.seq, true
}

// Take returns the staged candidate and empties the slot.
func (s *Slot) Take() (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Candidate{}, false
	}
	c := *s.current
	s.current = nil
	return c, true
}

func (s *Slot) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// ClearIf empties the slot only while it still holds selection seq. A
// newer selection is left in place.
func (s *Slot) ClearIf(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.seq != seq {
		return false
	}
	s.current = nil
	return true
}
