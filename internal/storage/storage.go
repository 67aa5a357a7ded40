// Package storage defines persistence contracts for plugin runtime state:
// installed descriptors, enabled flags and per-plugin key/value data.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// ConfigRecord is one persisted plugin descriptor, JSON encoded.
type ConfigRecord struct {
	ID         string
	Descriptor []byte
	UpdatedAt  time.Time
}

// ConfigStore persists plugin descriptors (pluginConfigs) and desired
// enabled flags (pluginStates).
type ConfigStore interface {
	ListConfigs(ctx context.Context) ([]ConfigRecord, error)
	PutConfig(ctx context.Context, id string, descriptor []byte) error
	DeleteConfig(ctx context.Context, id string) error

	ListStates(ctx context.Context) (map[string]bool, error)
	PutState(ctx context.Context, id string, enabled bool) error
	DeleteState(ctx context.Context, id string) error
}

// KV is a flat key/value store holding JSON-encoded plugin data.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Store is the full persistence surface used by musicboxd.
type Store interface {
	ConfigStore
	KV
	Close() error
}

// PluginKey returns the storage key for a plugin-scoped key.
func PluginKey(pluginID, key string) string {
	return PluginPrefix(pluginID) + key
}

// PluginPrefix returns the key prefix shared by all of a plugin's keys.
func PluginPrefix(pluginID string) string {
	return "plugin-" + pluginID + "-"
}
