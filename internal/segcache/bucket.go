package segcache

import (
	"github.com/cespare/xxhash/v2"

	"github.com/discochess/cachesim/internal/request"
)

// bucketFunc maps a request to a bucket index in [0, MaxBuckets).
type bucketFunc func(req *request.Request, size int64) int

func newBucketFunc(p Params) bucketFunc {
	switch p.BucketMode {
	case BucketSize:
		base := int64(p.SizeBucketBase)
		return func(_ *request.Request, size int64) int {
			return sizeBucket(size, base)
		}
	case BucketTenant:
		return func(req *request.Request, _ int64) int {
			return tenantBucket(req.Namespace)
		}
	case BucketContentType:
		return func(req *request.Request, _ int64) int {
			return int(req.ContentType) % MaxBuckets
		}
	default:
		return func(*request.Request, int64) int { return 0 }
	}
}

// sizeBucket returns floor(log_base(size)), clamped to the bucket range.
func sizeBucket(size, base int64) int {
	b := 0
	for size >= base && b < MaxBuckets-1 {
		size /= base
		b++
	}
	return b
}

// tenantBucket reserves bucket 0 for requests without a namespace.
func tenantBucket(ns string) int {
	if ns == "" {
		return 0
	}
	return 1 + int(xxhash.Sum64String(ns)%(MaxBuckets-1))
}
