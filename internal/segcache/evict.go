package segcache

import (
	"fmt"
	"math"
	"math/bits"
	"slices"

	"go.uber.org/zap"

	"github.com/discochess/cachesim/internal/stats"
)

// selectGroup picks the next NMerge same-bucket segments to merge.
func (c *Cache) selectGroup(group []segID) bool {
	switch c.params.Type {
	case TypeFIFO, TypeItemOracle:
		return c.selectFIFO(group)
	case TypeLearned:
		if !c.trained() {
			return c.selectFIFO(group)
		}
	}
	return c.selectRanked(group)
}

// evict reclaims space by merging one group of segments, or by dropping a
// single segment when no group is eligible.
func (c *Cache) evict() {
	group := c.group
	if c.selectGroup(group) {
		c.merge(group)
		c.counters.Merges++
		c.stats.IncCounter(stats.MetricMerges, 1)
	} else {
		c.evictFallback()
	}
	c.rank.evictedSince++
	c.counters.Evictions++
	c.stats.IncCounter(stats.MetricEvictions, 1)
	c.stats.SetGauge(stats.MetricSegments, int64(c.st.nResident))
	c.stats.SetGauge(stats.MetricOccupiedBytes, c.occupied)
}

// merge copies the highest-scoring objects of group into one new segment
// placed before the group, drops the rest and retires the old segments.
func (c *Cache) merge(group []segID) {
	first := c.st.seg(group[0])
	bucketID := first.bucket
	bucket := &c.st.buckets[bucketID]
	vt, rt := c.state.vtime, c.state.rtime
	mode := c.scoreMode

	scores := c.scores[:0]
	nMerged := 0
	for _, id := range group {
		seg := c.st.seg(id)
		if seg.bucket != bucketID {
			panic(fmt.Sprintf("segcache: merge group spans buckets %d and %d", bucketID, seg.bucket))
		}
		nMerged = max(nMerged, seg.nMerged)
		for i := range seg.objs {
			scores = append(scores, objectScore(mode, &seg.objs[i], bucket, vt, rt))
		}
	}
	c.scores = scores

	cutoff, ties := c.cutoff(scores)

	for i, id := range group {
		c.toTrain[i] = c.shouldSample()
		if c.toTrain[i] {
			c.snapshot(id)
		}
	}

	newID := c.st.alloc(bucketID, rt, vt, &c.state)
	c.st.insertBefore(group[0], newID)
	dst := c.st.seg(newID)
	dst.nMerged = nMerged + 1

	k := 0
	for i, id := range group {
		src := c.st.seg(id)
		for j := range src.objs {
			obj := &src.objs[j]
			score := scores[k]
			k++
			if obj.state != slotLive {
				continue
			}
			keep := false
			switch {
			case math.IsInf(score, -1):
			case score > cutoff:
				keep = true
			case score == cutoff && ties > 0:
				keep = true
				ties--
			}
			if keep && len(dst.objs) < c.params.SegmentSize {
				c.relocate(obj, newID, dst, id, src.uid, c.toTrain[i])
			} else {
				c.drop(obj, bucket, c.toTrain[i])
			}
		}
	}

	if len(dst.objs) == 0 {
		c.st.unlink(newID)
		c.st.release(newID)
	}
	for i, id := range group {
		c.st.unlink(id)
		if c.toTrain[i] {
			c.st.toTraining(id)
		} else {
			c.st.release(id)
		}
	}
}

// cutoff returns the retention threshold for a merge and how many objects
// scoring exactly the threshold may be kept. Scores strictly above the
// threshold always fit into one segment.
func (c *Cache) cutoff(scores []float64) (float64, int) {
	sorted := append(c.sorted[:0], scores...)
	slices.Sort(sorted)
	c.sorted = sorted

	nValid := 0
	for _, s := range sorted {
		if !math.IsInf(s, -1) {
			nValid++
		}
	}
	segSize := c.params.SegmentSize
	if nValid <= segSize {
		return math.Inf(-1), 0
	}

	cut := sorted[len(sorted)-segSize]
	above := len(sorted) - sort64Upper(sorted, cut)
	return cut, segSize - above
}

// sort64Upper returns the index of the first element greater than v.
func sort64Upper(sorted []float64, v float64) int {
	i, found := slices.BinarySearch(sorted, v)
	if !found {
		return i
	}
	for i < len(sorted) && sorted[i] == v {
		i++
	}
	return i
}

// relocate moves a retained object into dst.
func (c *Cache) relocate(obj *Object, dstID segID, dst *Segment, srcID segID, srcUID int64, srcTraining bool) {
	n := len(dst.objs)
	dst.objs = dst.objs[:n+1]
	moved := &dst.objs[n]
	*moved = *obj
	moved.seg = dstID
	moved.pos = int32(n)
	moved.Freq >>= c.params.RetainFreqDecayShift
	moved.active = false
	if srcTraining {
		moved.trainSeg = srcID
		moved.trainUID = srcUID
		moved.seenAfterSnapshot = false
	}
	c.table.Insert(moved.ID, moved)

	dst.nLive++
	dst.liveBytes += moved.Size
	obj.state = slotDead
}

// drop evicts obj. Objects of segments entering the training pool stay in
// the hashtable as ghosts when labels are collected online.
func (c *Cache) drop(obj *Object, bucket *Bucket, srcTraining bool) {
	c.occupied -= obj.Size + c.common.PerObjectOverhead
	c.nObjects--
	c.state.nEvictedBytes += obj.Size
	c.counters.EvictedBytes += obj.Size
	if bucket.hitProb != nil {
		bucket.hitProb.onEvict(c.state.vtime - obj.LastAccessVtime)
	}

	if srcTraining && c.params.TrainSource == TrainOnline {
		obj.state = slotGhost
		obj.seenAfterSnapshot = false
		return
	}
	c.table.Delete(obj.ID)
	obj.state = slotDead
}

// evictFallback drops the oldest non-empty segment of a random bucket
// without merging.
func (c *Cache) evictFallback() {
	candidates := c.fallback[:0]
	for b := range c.st.buckets {
		if c.oldestNonEmpty(b) != noSeg {
			candidates = append(candidates, b)
		}
	}
	c.fallback = candidates
	if len(candidates) == 0 {
		panic("segcache: cache is over capacity but holds no objects")
	}

	b := candidates[c.rng.IntN(len(candidates))]
	bucket := &c.st.buckets[b]
	id := c.oldestNonEmpty(b)
	seg := c.st.seg(id)
	for i := range seg.objs {
		if obj := &seg.objs[i]; obj.state == slotLive {
			c.drop(obj, bucket, false)
		}
	}
	c.st.unlink(id)
	c.st.release(id)

	c.counters.FallbackEvictions++
	c.stats.IncCounter(stats.MetricFallbackEvictions, 1)
	if n := c.counters.FallbackEvictions; bits.OnesCount64(uint64(n)) == 1 {
		c.logger.Warn("no mergeable segment group; evicted a single segment",
			zap.Int64("fallbackEvictions", n),
			zap.Int("bucket", b),
			zap.Int("bucketSegments", bucket.nSegs+1),
			zap.Int("segments", c.st.nResident),
		)
	}
}

func (c *Cache) oldestNonEmpty(b int) segID {
	for id := c.st.buckets[b].head; id != noSeg; id = c.st.seg(id).next {
		if c.st.seg(id).nLive > 0 {
			return id
		}
	}
	return noSeg
}
