package trusted

import "sync/atomic"

// Store publishes the current table generation to readers.
//
// Readers load the pointer once per lookup and never block. A reload builds
// a complete table off to the side and installs it with Swap; readers still
// holding the previous generation finish against it, and it is reclaimed by
// the garbage collector once the last of them returns.
type Store struct {
	current atomic.Pointer[Table]
}

// NewStore returns a store publishing t, which may be nil.
func NewStore(t *Table) *Store {
	s := &Store{}
	if t != nil {
		s.current.Store(t)
	}
	return s
}

// Current returns the published table, or nil before the first Swap.
func (s *Store) Current() *Table {
	return s.current.Load()
}

// Swap publishes t and returns the previous generation. The previous table
// must not be emptied or destroyed by the caller while lookups may still be
// running against it.
func (s *Store) Swap(t *Table) *Table {
	return s.current.Swap(t)
}
