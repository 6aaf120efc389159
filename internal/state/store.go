// Package state provides the runtime key-value store that holds bundle
// mappings and dev server information between processes.
package state

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is the interface for runtime state backends:
// - local: JSON file on disk, shared by the CLI and the server on one host
// - memory: process local, for tests and single-process setups
// - redis: shared between hosts (works with Redis, Dragonfly, Valkey)
// - postgres: shared between hosts without additional infrastructure
type Store interface {
	// Get returns the raw value of key, or nil when the key is not set.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value of key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GetJSON decodes the value of key into v. It reports false when the key is
// not set, leaving v untouched.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode state %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode state %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
