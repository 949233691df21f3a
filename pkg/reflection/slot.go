package reflection

import "sync"

// Slot holds at most one value. Store overwrites whatever is there and Take
// empties it, so each stored value is delivered at most once. The zero value
// is an empty slot ready for use.
type Slot[T any] struct {
	mu    sync.Mutex
	value T
	full  bool
}

func (s *Slot[T]) Store(v T) {
	s.mu.Lock()
	s.value = v
	s.full = true
	s.mu.Unlock()
}

// Take returns the held value and clears the slot.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.full {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.full = false
	return v, true
}

// Peek returns the held value without clearing it.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.full
}
