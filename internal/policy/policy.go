// Package policy defines the contract every simulated cache implements.
package policy

import (
	"errors"
	"fmt"

	"github.com/discochess/cachesim/internal/request"
)

// ErrInvalidCommonParams indicates unusable CommonParams.
var ErrInvalidCommonParams = errors.New("policy: invalid common params")

// CommonParams are the parameters shared by all cache policies.
type CommonParams struct {
	// CacheSize is the capacity in bytes.
	CacheSize int64
	// PerObjectOverhead is charged against the capacity for every object.
	PerObjectOverhead int64
	// HashPowerHint pre-sizes the object index to 1<<HashPowerHint entries.
	HashPowerHint int
}

// Validate checks the parameters.
func (p CommonParams) Validate() error {
	if p.CacheSize <= 0 {
		return fmt.Errorf("%w: cache size must be positive, got %d", ErrInvalidCommonParams, p.CacheSize)
	}
	if p.PerObjectOverhead < 0 {
		return fmt.Errorf("%w: per-object overhead must not be negative, got %d", ErrInvalidCommonParams, p.PerObjectOverhead)
	}
	return nil
}

// Cache is a simulated cache. Implementations are not safe for concurrent
// use: the simulator drives each instance from a single goroutine.
type Cache interface {
	// Name returns the algorithm name.
	Name() string

	// Get processes one request and reports whether it was a hit.
	// Misses admit the object when it fits.
	Get(req *request.Request) bool

	// Remove drops an object. It reports whether the object was cached.
	Remove(id uint64) bool

	// OccupiedBytes returns the bytes currently charged against the capacity.
	OccupiedBytes() int64

	// NumObjects returns the number of cached objects.
	NumObjects() int64

	// Close releases the cache's resources.
	Close() error
}
