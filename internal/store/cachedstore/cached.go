// Package cachedstore keeps recently decoded traces in memory so repeated
// runs over the same trace skip the download and decompression.
package cachedstore

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/discochess/cachesim/internal/stats"
	"github.com/discochess/cachesim/internal/store"
)

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Stats contains cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int // Current number of entries
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Store wraps another Store with an LRU of decoded traces.
type Store struct {
	underlying store.Store
	cache      *lru.Cache[string, []byte]
	collector  stats.Collector

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cached store holding up to capacity traces.
// The collector is optional; if nil, a no-op collector is used.
func New(underlying store.Store, capacity int, collector stats.Collector) (*Store, error) {
	c, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, err
	}
	if collector == nil {
		collector = stats.NewNoop()
	}
	return &Store{
		underlying: underlying,
		cache:      c,
		collector:  collector,
	}, nil
}

// ReadTrace returns the trace from memory, reading it from the underlying
// store on a miss. Callers must not modify the returned bytes.
func (s *Store) ReadTrace(ctx context.Context, name string) ([]byte, error) {
	if data, ok := s.cache.Get(name); ok {
		s.hits.Add(1)
		s.collector.IncCounter(stats.MetricTraceCacheHits, 1)
		return data, nil
	}
	s.misses.Add(1)
	s.collector.IncCounter(stats.MetricTraceCacheMisses, 1)

	data, err := s.underlying.ReadTrace(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Add(name, data)
	return data, nil
}

// Close drops the cached traces and closes the underlying store.
func (s *Store) Close() error {
	s.cache.Purge()
	return s.underlying.Close()
}

// Stats returns cache statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Size:   s.cache.Len(),
	}
}
