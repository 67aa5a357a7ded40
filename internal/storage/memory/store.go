// Package memory provides an in-process storage implementation.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/musicbox/internal/storage"
)

// Store keeps all records in maps guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	configs map[string]storage.ConfigRecord
	states  map[string]bool
	kv      map[string][]byte
	closed  bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		configs: make(map[string]storage.ConfigRecord),
		states:  make(map[string]bool),
		kv:      make(map[string][]byte),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// ListConfigs returns all descriptors sorted by id.
func (s *Store) ListConfigs(ctx context.Context) ([]storage.ConfigRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	out := make([]storage.ConfigRecord, 0, len(s.configs))
	for _, rec := range s.configs {
		rec.Descriptor = append([]byte(nil), rec.Descriptor...)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutConfig inserts or replaces a descriptor.
func (s *Store) PutConfig(ctx context.Context, id string, descriptor []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.configs[id] = storage.ConfigRecord{
		ID:         id,
		Descriptor: append([]byte(nil), descriptor...),
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

// DeleteConfig removes a descriptor.
func (s *Store) DeleteConfig(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	delete(s.configs, id)
	return nil
}

// ListStates returns a copy of the enabled flags.
func (s *Store) ListStates(ctx context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(s.states))
	for id, enabled := range s.states {
		out[id] = enabled
	}
	return out, nil
}

// PutState records the enabled flag for id.
func (s *Store) PutState(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.states[id] = enabled
	return nil
}

// DeleteState removes the enabled flag for id.
func (s *Store) DeleteState(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	delete(s.states, id)
	return nil
}

// Get returns the value for key or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	v, ok := s.kv[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.kv[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	delete(s.kv, key)
	return nil
}

// DeletePrefix removes every key with the given prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	for k := range s.kv {
		if strings.HasPrefix(k, prefix) {
			delete(s.kv, k)
			n++
		}
	}
	return n, nil
}

// Keys returns the sorted keys with the given prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var keys []string
	for k := range s.kv {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
