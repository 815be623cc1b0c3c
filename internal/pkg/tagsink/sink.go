package tagsink

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStoreFull is returned by MemoryStore when a slot has reached its limit.
var ErrStoreFull = errors.New("tagsink: attribute slot full")

// ErrNoStore is returned when a binding is configured but no store was given.
var ErrNoStore = errors.New("tagsink: no attribute store")

// AttributeStore is the per-request key/value store that later processing
// stages read the tag from.
type AttributeStore interface {
	Set(kind Kind, key Key, value string) error
}

// Adapter binds one request's attribute store to the configured slot.
// It implements the matcher's tag sink.
type Adapter struct {
	binding Binding
	store   AttributeStore
}

// NewAdapter returns an adapter writing to store under binding.
func NewAdapter(binding Binding, store AttributeStore) Adapter {
	return Adapter{binding: binding, store: store}
}

// Forward writes tag into the store. It does nothing when the binding is
// unset.
func (a Adapter) Forward(tag string) error {
	return Forward(a.binding, a.store, tag)
}

// Forward writes tag to store under binding; a no-op for an unset binding.
func Forward(binding Binding, store AttributeStore, tag string) error {
	if !binding.IsSet() {
		return nil
	}
	if store == nil {
		return ErrNoStore
	}
	if err := store.Set(binding.Kind(), binding.Key(), tag); err != nil {
		return fmt.Errorf("set %s: %w", binding, err)
	}
	return nil
}

type slot struct {
	kind Kind
	key  Key
}

// MemoryStore is an in-memory attribute store for one request. Attributes
// are multi-valued; the most recent value is returned first.
type MemoryStore struct {
	mu        sync.RWMutex
	values    map[slot][]string
	maxValues int
}

// NewMemoryStore returns an empty store. maxValues bounds the values per
// slot; zero means unbounded.
func NewMemoryStore(maxValues int) *MemoryStore {
	return &MemoryStore{
		values:    make(map[slot][]string),
		maxValues: maxValues,
	}
}

// Set adds value to the slot.
func (s *MemoryStore) Set(kind Kind, key Key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := slot{kind: kind, key: key}
	if s.maxValues > 0 && len(s.values[k]) >= s.maxValues {
		return ErrStoreFull
	}
	s.values[k] = append(s.values[k], value)
	return nil
}

// Get returns the most recent value stored under binding.
func (s *MemoryStore) Get(binding Binding) (string, bool) {
	vals := s.Values(binding)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// Values returns every value stored under binding, newest first.
func (s *MemoryStore) Values(binding Binding) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.values[slot{kind: binding.Kind(), key: binding.Key()}]
	out := make([]string, len(stored))
	for i, v := range stored {
		out[len(stored)-1-i] = v
	}
	return out
}
