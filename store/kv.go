package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// bucketPrefix namespaces forgeline buckets on a shared NATS deployment.
const bucketPrefix = "FORGELINE_"

// KVStore is a Store backed by NATS JetStream key-value buckets, one bucket
// per collection. Buckets are created lazily on first use.
type KVStore struct {
	js jetstream.JetStream

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

// NewKVStore creates a KV-backed store over the given JetStream context.
func NewKVStore(js jetstream.JetStream) *KVStore {
	return &KVStore{
		js:      js,
		buckets: make(map[string]jetstream.KeyValue),
	}
}

// InsertOne implements Store.
func (s *KVStore) InsertOne(ctx context.Context, collection, id string, doc any) error {
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	if _, err := kv.Create(ctx, id, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
		}
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

// FindOne implements Store.
func (s *KVStore) FindOne(ctx context.Context, collection, id string, out any) error {
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return err
	}

	entry, err := kv.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("get document: %w", err)
	}

	if err := json.Unmarshal(entry.Value(), out); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	return nil
}

// UpdateOne implements Store.
func (s *KVStore) UpdateOne(ctx context.Context, collection, id string, doc any) error {
	kv, err := s.bucket(ctx, collection)
	if err != nil {
		return err
	}

	if _, err := kv.Get(ctx, id); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("get document: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	if _, err := kv.Put(ctx, id, data); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// bucket returns the KV bucket for a collection, creating it on first use.
func (s *KVStore) bucket(ctx context.Context, collection string) (jetstream.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kv, ok := s.buckets[collection]; ok {
		return kv, nil
	}

	name := bucketPrefix + strings.ToUpper(collection)
	kv, err := s.js.KeyValue(ctx, name)
	if err != nil {
		// Bucket doesn't exist, create it
		kv, err = s.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      name,
			Description: fmt.Sprintf("forgeline %s storage", collection),
			History:     5, // Keep last 5 revisions
		})
		if err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", name, err)
		}
	}

	s.buckets[collection] = kv
	return kv, nil
}
