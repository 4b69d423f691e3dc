// Package lru implements a byte-capacity LRU baseline policy.
package lru

import (
	"math"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/discochess/cachesim/internal/policy"
	"github.com/discochess/cachesim/internal/request"
)

// Compile-time check that Cache implements policy.Cache.
var _ policy.Cache = (*Cache)(nil)

// Cache evicts the least recently used object until the new object fits.
type Cache struct {
	params   policy.CommonParams
	lru      *simplelru.LRU[uint64, int64]
	occupied int64
}

// New creates an LRU cache.
func New(params policy.CommonParams) (*Cache, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	c := &Cache{params: params}
	// Capacity is enforced in bytes, so the entry limit is effectively unbounded.
	l, err := simplelru.NewLRU[uint64, int64](math.MaxInt, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Name returns "lru".
func (c *Cache) Name() string {
	return "lru"
}

// Get looks up the object and admits it on a miss.
func (c *Cache) Get(req *request.Request) bool {
	if req.Op == request.OpDelete {
		c.Remove(req.ID)
		return false
	}

	if size, ok := c.lru.Get(req.ID); ok {
		if size == req.Size || req.Size <= 0 {
			return true
		}
		// Object changed size: charge the new size.
		c.lru.Remove(req.ID)
		c.admit(req)
		return true
	}

	c.admit(req)
	return false
}

// Remove drops an object.
func (c *Cache) Remove(id uint64) bool {
	return c.lru.Remove(id)
}

// OccupiedBytes returns the charged bytes.
func (c *Cache) OccupiedBytes() int64 {
	return c.occupied
}

// NumObjects returns the number of cached objects.
func (c *Cache) NumObjects() int64 {
	return int64(c.lru.Len())
}

// Close purges the cache.
func (c *Cache) Close() error {
	c.lru.Purge()
	return nil
}

func (c *Cache) admit(req *request.Request) {
	size := req.Size
	if size <= 0 {
		size = 1
	}
	need := size + c.params.PerObjectOverhead
	if need > c.params.CacheSize {
		return
	}
	for c.occupied+need > c.params.CacheSize {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	c.lru.Add(req.ID, size)
	c.occupied += need
}

func (c *Cache) onEvict(_ uint64, size int64) {
	c.occupied -= size + c.params.PerObjectOverhead
}
