package logstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hamchapman/jottly/internal/kv"
)

const defaultMaxEntries = 500

// KVStore keeps the newest entries as one JSON array under a single key.
type KVStore struct {
	store      kv.Store
	key        string
	maxEntries int

	mu sync.Mutex
}

// NewKVStore stores entries under key, keeping at most maxEntries
// (500 when maxEntries <= 0).
func NewKVStore(store kv.Store, key string, maxEntries int) *KVStore {
	if key == "" {
		key = "jottly.logs"
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &KVStore{store: store, key: key, maxEntries: maxEntries}
}

func (s *KVStore) Append(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, e)
	if over := len(entries) - s.maxEntries; over > 0 {
		entries = entries[over:]
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	if err := s.store.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("store logs: %w", err)
	}
	return nil
}

func (s *KVStore) Fetch(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (s *KVStore) loadLocked(ctx context.Context) ([]Entry, error) {
	raw, ok, err := s.store.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	return entries, nil
}

var _ Store = (*KVStore)(nil)
