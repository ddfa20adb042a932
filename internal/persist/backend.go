// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package persist stores cache snapshots behind a small key-value Backend.
// Each cache owns one key and writes a versioned, schema-checked envelope;
// unreadable snapshots load as empty instead of failing the caller.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pdiddy/research-hub/pkg/types"
)

// ErrNotFound is returned by Backend.Load when the key has never been saved.
var ErrNotFound = errors.New("persist: key not found")

// Backend is a process-local or shared key-value store for snapshot blobs.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open returns the backend selected by cfg.
func Open(cfg types.StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case types.StorageMemory:
		return NewMemoryBackend(), nil
	case types.StorageFile, "":
		return NewFileBackend(cfg.Dir), nil
	case types.StorageSQLite:
		return NewSQLiteBackend(cfg.Dir)
	case types.StorageRedis:
		return NewRedisBackend(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q: use memory, file, sqlite, or redis", cfg.Backend)
	}
}

// MemoryBackend keeps snapshots in a map. Used by tests and --storage memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Load returns a copy of the stored blob.
func (m *MemoryBackend) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Save stores a copy of data under key.
func (m *MemoryBackend) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }
