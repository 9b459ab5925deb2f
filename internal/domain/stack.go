package domain

// Stack is the ordered history of screen activations for one session.
// The zero value is an empty stack ready to use. It is not safe for
// concurrent use; callers serialise access per session.
type Stack[T any] struct {
	entries []T
}

func NewStack[T any]() *Stack[T] {
	return &Stack[T]{entries: make([]T, 0)}
}

// Push adds a new entry on top of the stack.
func (s *Stack[T]) Push(entry T) {
	s.entries = append(s.entries, entry)
}

// Pop removes and returns the top entry. ok is false on an empty stack.
func (s *Stack[T]) Pop() (entry T, ok bool) {
	if len(s.entries) == 0 {
		return entry, false
	}
	entry = s.entries[len(s.entries)-1]
	var zero T
	s.entries[len(s.entries)-1] = zero
	s.entries = s.entries[:len(s.entries)-1]
	return entry, true
}

// Peek returns the top entry without removing it.
func (s *Stack[T]) Peek() (entry T, ok bool) {
	if len(s.entries) == 0 {
		return entry, false
	}
	return s.entries[len(s.entries)-1], true
}

// Replace swaps the top entry, returning false on an empty stack.
func (s *Stack[T]) Replace(entry T) bool {
	if len(s.entries) == 0 {
		return false
	}
	s.entries[len(s.entries)-1] = entry
	return true
}

func (s *Stack[T]) IsEmpty() bool {
	return len(s.entries) == 0
}

func (s *Stack[T]) Len() int {
	return len(s.entries)
}

// Clear removes all entries and returns how many were dropped.
func (s *Stack[T]) Clear() int {
	n := len(s.entries)
	clear(s.entries)
	s.entries = s.entries[:0]
	return n
}

// Entries returns a copy ordered bottom to top.
func (s *Stack[T]) Entries() []T {
	out := make([]T, len(s.entries))
	copy(out, s.entries)
	return out
}
