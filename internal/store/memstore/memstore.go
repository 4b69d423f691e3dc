// Package memstore provides an in-memory store implementation for testing.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/discochess/cachesim/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store is an in-memory store for testing and for generated traces.
type Store struct {
	mu     sync.RWMutex
	traces map[string][]byte
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		traces: make(map[string][]byte),
	}
}

// SetTrace stores data under name. Data is kept as given, so a name
// ending in ".zst" must hold zstd bytes. The data is copied.
func (s *Store) SetTrace(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces[name] = bytes.Clone(data)
}

// ReadTrace reads a trace from memory.
func (s *Store) ReadTrace(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.traces[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}
	return store.Decompress(name, bytes.NewReader(data))
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}
