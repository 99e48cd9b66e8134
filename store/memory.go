package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store used in sequential (cluster) mode and
// in tests. Documents round-trip through JSON so behavior matches the
// KV-backed store, including loss of non-serializable fields.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // collection -> id -> document
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

// InsertOne implements Store.
func (s *MemoryStore) InsertOne(_ context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.data[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.data[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	coll[id] = data
	return nil
}

// FindOne implements Store.
func (s *MemoryStore) FindOne(_ context.Context, collection, id string, out any) error {
	s.mu.RLock()
	data, ok := s.data[collection][id]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}

// UpdateOne implements Store.
func (s *MemoryStore) UpdateOne(_ context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.data[collection]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if _, exists := coll[id]; !exists {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	coll[id] = data
	return nil
}
