// Package segcache implements a segment-structured cache whose eviction
// merges several low-value segments into one.
//
// Objects are appended to the open tail segment of their bucket. When the
// cache is over capacity, NMerge consecutive segments of one bucket are
// merged: the objects scoring above a cutoff are copied into a new segment
// and the rest are evicted. Segment groups are chosen FIFO, by oracle
// utility, or by a model trained online on retired segments.
//
// A Cache is not safe for concurrent use.
package segcache

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/discochess/cachesim/internal/hashtable"
	"github.com/discochess/cachesim/internal/model"
	"github.com/discochess/cachesim/internal/model/gbdt"
	"github.com/discochess/cachesim/internal/model/linear"
	"github.com/discochess/cachesim/internal/policy"
	"github.com/discochess/cachesim/internal/request"
	"github.com/discochess/cachesim/internal/stats"
)

// Compile-time check that Cache implements policy.Cache.
var _ policy.Cache = (*Cache)(nil)

// ErrClosed is returned by Close on a closed cache.
var ErrClosed = errors.New("segcache: cache closed")

// Stats are cumulative engine counters.
type Stats struct {
	Requests          int64
	Misses            int64
	Evictions         int64
	Merges            int64
	FallbackEvictions int64
	EvictedBytes      int64
	TrainingRounds    int64
	Inferences        int64
	Reranks           int64
	Segments          int
	TrainingSegments  int
	UsedBuckets       int
}

// Cache is the segment-structured cache.
type Cache struct {
	common    policy.CommonParams
	params    Params
	retain    int
	scoreMode ScoreMode

	logger  *zap.Logger
	stats   stats.Collector
	learner model.Learner

	table    *hashtable.Table[*Object]
	st       *store
	state    cacheState
	bucketOf bucketFunc
	rng      *rand.Rand

	occupied int64
	nObjects int64

	rank     ranking
	rrBucket int
	train    *trainingPool

	lastHitProbUpdate int64

	// Scratch buffers reused across evictions.
	group       []segID
	toTrain     []bool
	scores      []float64
	sorted      []float64
	utilScratch []float64
	fallback    []int
	inferIdx    []int
	inferX      *mat.Dense
	inferOut    []float64

	counters Stats
	closed   bool
}

// New creates a cache.
func New(common policy.CommonParams, params Params, opts ...Option) (*Cache, error) {
	if err := common.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	c := &Cache{
		common:    common,
		params:    params,
		retain:    params.retain(),
		scoreMode: params.objectScoreMode(),
		logger:    cfg.logger.Named("segcache"),
		stats:     cfg.stats,
		learner:   cfg.learner,
		table:     hashtable.New[*Object](common.HashPowerHint),
		st:        newStore(params.SegmentSize),
		bucketOf:  newBucketFunc(params),
		rng:       rand.New(rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15)),
		group:     make([]segID, params.NMerge),
		toTrain:   make([]bool, params.NMerge),
		scores:    make([]float64, 0, params.NMerge*params.SegmentSize),
		sorted:    make([]float64, 0, params.NMerge*params.SegmentSize),
	}

	if params.Type == TypeLearned {
		if c.learner == nil {
			c.learner = newLearner(params.Learner)
		}
		c.train = newTrainingPool(params.MaxTrainingSegs)
	}

	c.logger.Debug("cache initialized",
		zap.String("type", params.Type.String()),
		zap.Int64("cacheSize", common.CacheSize),
		zap.Int("segmentSize", params.SegmentSize),
		zap.Int("nMerge", params.NMerge),
		zap.Stringer("score", c.scoreMode),
		zap.Stringer("bucket", params.BucketMode),
	)
	return c, nil
}

func newLearner(name string) model.Learner {
	if name == "ridge" {
		return linear.New(linear.DefaultLambda)
	}
	return gbdt.New(gbdt.DefaultConfig())
}

// Name returns "segcache-" followed by the eviction type.
func (c *Cache) Name() string {
	return "segcache-" + c.params.Type.String()
}

// Params returns the engine parameters.
func (c *Cache) Params() Params {
	return c.params
}

// Get processes one request and reports whether it hit. A closed cache
// misses every request and admits nothing.
func (c *Cache) Get(req *request.Request) bool {
	if c.closed {
		return false
	}
	c.state.advance(req.Vtime, req.Time)
	c.state.nReq++

	size := max(req.Size, 1)
	c.state.nReqBytes += size
	if req.Op == request.OpSet {
		c.state.nWrite++
	}

	if req.Op == request.OpDelete {
		c.Remove(req.ID)
		c.tick()
		return false
	}

	hit := c.lookup(req, size)
	if !hit {
		c.state.nMiss++
		c.state.nMissBytes += size
		c.insert(req, size)
	}
	c.tick()
	return hit
}

// tick runs the periodic estimator and training work.
func (c *Cache) tick() {
	c.state.maybeUpdate()
	if c.scoreMode == ScoreHitDensity && c.state.vtime-c.lastHitProbUpdate >= c.params.HitProbComputeInterval {
		c.lastHitProbUpdate = c.state.vtime
		for b := range c.st.buckets {
			if hp := c.st.buckets[b].hitProb; hp != nil {
				hp.update()
			}
		}
	}
	if c.train != nil {
		c.maybeTrain()
	}
}

// lookup handles the hashtable probe. Expired and resized objects are
// removed; ghosts credit their training segment and are discarded.
func (c *Cache) lookup(req *request.Request, size int64) bool {
	obj, ok := c.table.Find(req.ID)
	if !ok {
		return false
	}

	switch obj.state {
	case slotLive:
	case slotGhost:
		c.credit(obj)
		c.table.Delete(obj.ID)
		obj.state = slotDead
		return false
	default:
		panic(fmt.Sprintf("segcache: hashtable references object %d in slot state %d", req.ID, obj.state))
	}

	if obj.expired(c.state.rtime) {
		c.removeObject(obj)
		return false
	}
	if req.Size > 0 && obj.Size != size {
		c.removeObject(obj)
		return c.insert(req, size)
	}

	c.onHit(obj, req)
	return true
}

func (c *Cache) onHit(obj *Object, req *request.Request) {
	seg := c.st.seg(obj.seg)
	if hp := c.st.buckets[seg.bucket].hitProb; hp != nil {
		hp.onHit(c.state.vtime - obj.LastAccessVtime)
	}

	if obj.Freq < math.MaxInt32 {
		obj.Freq++
	}
	obj.LastAccessVtime = c.state.vtime
	obj.LastAccessRtime = c.state.rtime
	obj.NextAccessVtime = nextAccess(req)
	if req.Op == request.OpSet && req.TTL > 0 {
		obj.ExpireRtime = c.state.rtime + req.TTL
	}

	seg.nHit++
	if !obj.active {
		obj.active = true
		seg.nActive++
	}
	seg.windows.hit(c.state.rtime)

	if obj.trainSeg != noSeg {
		c.credit(obj)
	}
}

// insert admits an object, evicting until it fits, and reports whether it
// was admitted. Objects larger than the cache are not.
func (c *Cache) insert(req *request.Request, size int64) bool {
	need := size + c.common.PerObjectOverhead
	if need > c.common.CacheSize {
		return false
	}

	b := c.bucketOf(req, size)
	c.ensureOpenSegment(b)

	limit := c.st.nResident + c.st.nTraining + 2
	for i := 0; c.occupied+need > c.common.CacheSize; i++ {
		if i > limit {
			panic(fmt.Sprintf("segcache: eviction did not converge after %d rounds (occupied %d, need %d, capacity %d)",
				i, c.occupied, need, c.common.CacheSize))
		}
		c.evict()
	}

	tail := c.ensureOpenSegment(b)
	seg := c.st.seg(tail)
	pos := len(seg.objs)
	seg.objs = seg.objs[:pos+1]
	obj := &seg.objs[pos]
	obj.fill(req, size, c.state.vtime, tail, pos)
	seg.nLive++
	seg.liveBytes += size

	c.table.Insert(req.ID, obj)
	c.occupied += need
	c.nObjects++
	return true
}

// ensureOpenSegment returns the tail of bucket b, appending a new segment
// when the bucket is empty or its tail is full.
func (c *Cache) ensureOpenSegment(b int) segID {
	bucket := &c.st.buckets[b]
	if bucket.tail != noSeg && !c.st.seg(bucket.tail).full(c.params.SegmentSize) {
		return bucket.tail
	}
	if c.scoreMode == ScoreHitDensity && bucket.hitProb == nil {
		bucket.hitProb = newHitProb(c.params.AgeShift)
	}
	id := c.st.alloc(b, c.state.rtime, c.state.vtime, &c.state)
	c.st.appendToBucket(id)
	return id
}

// Remove drops an object and reports whether it was cached.
func (c *Cache) Remove(id uint64) bool {
	if c.closed {
		return false
	}
	obj, ok := c.table.Find(id)
	if !ok {
		return false
	}
	if obj.state == slotGhost {
		c.table.Delete(id)
		obj.state = slotDead
		return false
	}
	c.removeObject(obj)
	return true
}

// removeObject tombstones a live object in place.
func (c *Cache) removeObject(obj *Object) {
	seg := c.st.seg(obj.seg)
	seg.nLive--
	seg.liveBytes -= obj.Size
	c.occupied -= obj.Size + c.common.PerObjectOverhead
	c.nObjects--
	c.table.Delete(obj.ID)
	obj.state = slotDead
}

// OccupiedBytes returns the bytes charged against the capacity.
func (c *Cache) OccupiedBytes() int64 {
	return c.occupied
}

// NumObjects returns the number of cached objects.
func (c *Cache) NumObjects() int64 {
	return c.nObjects
}

// NumSegments returns the number of resident segments.
func (c *Cache) NumSegments() int {
	return c.st.nResident
}

// Stats returns a snapshot of the engine counters.
func (c *Cache) Stats() Stats {
	s := c.counters
	s.Requests = c.state.nReq
	s.Misses = c.state.nMiss
	s.Segments = c.st.nResident
	s.TrainingSegments = c.st.nTraining
	s.UsedBuckets = c.st.nUsedBuckets
	return s
}

// Close releases all segments.
func (c *Cache) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.logger.Debug("cache closed",
		zap.Int64("requests", c.state.nReq),
		zap.Int64("misses", c.state.nMiss),
		zap.Int64("evictions", c.counters.Evictions),
		zap.Int64("fallbackEvictions", c.counters.FallbackEvictions),
		zap.Int64("trainingRounds", c.counters.TrainingRounds),
	)
	c.table = hashtable.New[*Object](0)
	c.st = newStore(c.params.SegmentSize)
	c.rank = ranking{}
	c.train = nil
	c.occupied, c.nObjects = 0, 0
	return nil
}
