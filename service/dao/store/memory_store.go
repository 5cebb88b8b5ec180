package store

import (
	"context"
	"sync"

	"github.com/viant/taskd/service/dao"
	"github.com/viant/taskd/service/dao/criteria"
)

// MemoryStore is a generic in-memory implementation of dao.Service.
// It keeps entities of type *T mapped by a comparable key K. Values are cloned
// on the way in and on the way out so that callers never share state with the
// store.
type MemoryStore[K comparable, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
	clone       func(*T) *T
	field       func(*T, string) (string, bool)
}

// NewMemoryStore creates a new MemoryStore.
// keySelector extracts the entity key, clone deep-copies an entity and field
// exposes named values to List parameters (may be nil to disable filtering).
func NewMemoryStore[K comparable, T any](keySelector func(*T) K, clone func(*T) *T, field func(*T, string) (string, bool)) *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
		clone:       clone,
		field:       field,
	}
}

// Save stores or overwrites a record.
func (s *MemoryStore[K, T]) Save(_ context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	var zero K
	key := s.keySelector(v)
	if key == zero {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = s.clone(v)
	return nil
}

// Load returns a record by key or dao.ErrNotFound.
func (s *MemoryStore[K, T]) Load(_ context.Context, key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return s.clone(v), nil
}

// Delete removes a record.
func (s *MemoryStore[K, T]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return dao.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

// List returns copies of the records matching parameters.
func (s *MemoryStore[K, T]) List(_ context.Context, parameters ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*T, 0, len(s.records))
	for _, v := range s.records {
		if !s.matches(v, parameters) {
			continue
		}
		out = append(out, s.clone(v))
	}
	return out, nil
}

func (s *MemoryStore[K, T]) matches(v *T, parameters []*dao.Parameter) bool {
	if s.field == nil || len(parameters) == 0 {
		return true
	}
	return criteria.Match(func(name string) (string, bool) { return s.field(v, name) }, parameters)
}
