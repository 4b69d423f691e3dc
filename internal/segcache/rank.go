package segcache

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/discochess/cachesim/internal/stats"
)

type rankEntry struct {
	id      segID
	uid     int64
	utility float64
	vtime   int64
}

// ranking orders resident segments from most to least evictable.
type ranking struct {
	entries      []rankEntry
	cursor       int
	evictedSince int
	threshold    int
	valid        bool
}

func (r *ranking) invalidate() {
	r.valid = false
}

// stale reports whether the ranking must be refreshed before selection.
func (r *ranking) stale() bool {
	return !r.valid || r.evictedSince >= r.threshold || r.cursor > len(r.entries)/2
}

// rerank recomputes every resident segment's utility and sorts ascending.
func (c *Cache) rerank() {
	r := &c.rank
	r.entries = r.entries[:0]
	for b := range c.st.buckets {
		bk := &c.st.buckets[b]
		for id := bk.head; id != noSeg; id = c.st.seg(id).next {
			seg := c.st.seg(id)
			r.entries = append(r.entries, rankEntry{id: id, uid: seg.uid, vtime: seg.createVtime})
		}
	}

	if c.params.Type == TypeLearned {
		c.predictUtilities(r.entries)
	} else {
		for i := range r.entries {
			seg := c.st.seg(r.entries[i].id)
			seg.utility = c.oracleUtility(seg)
			r.entries[i].utility = seg.utility
		}
	}

	slices.SortFunc(r.entries, func(a, b rankEntry) int {
		if d := cmp.Compare(a.utility, b.utility); d != 0 {
			return d
		}
		return cmp.Compare(a.vtime, b.vtime)
	})

	r.cursor = 0
	r.evictedSince = 0
	r.threshold = max(int(math.Ceil(c.params.RankInterval*float64(len(r.entries)))), 1)
	r.valid = true
	c.counters.Reranks++
}

// oracleUtility sums the oracle scores of a segment's objects, leaving out
// the retain count of highest scorers.
func (c *Cache) oracleUtility(seg *Segment) float64 {
	buf := c.utilScratch[:0]
	for i := range seg.objs {
		obj := &seg.objs[i]
		if obj.state != slotLive {
			continue
		}
		buf = append(buf, objectScore(ScoreOracle, obj, nil, c.state.vtime, c.state.rtime))
	}
	slices.Sort(buf)
	n := len(buf) - c.retain
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += buf[i]
	}
	c.utilScratch = buf
	return sum
}

// predictUtilities scores entries with the current predictor. Segments of
// buckets that never produced a training row get -Inf.
func (c *Cache) predictUtilities(entries []rankEntry) {
	rows := c.inferIdx[:0]
	for i := range entries {
		seg := c.st.seg(entries[i].id)
		if !c.st.buckets[seg.bucket].trained {
			seg.utility = math.Inf(-1)
			entries[i].utility = seg.utility
			continue
		}
		rows = append(rows, i)
	}
	c.inferIdx = rows
	if len(rows) == 0 {
		return
	}

	if c.inferX == nil || c.inferX.RawMatrix().Rows < len(rows) {
		c.inferX = mat.NewDense(max(len(rows), 2*c.st.nResident), NFeatures, nil)
	}
	x := c.inferX.Slice(0, len(rows), 0, NFeatures).(*mat.Dense)
	for j, i := range rows {
		prepareRow(c.st.seg(entries[i].id), false, c.state.rtime, x.RawRowView(j))
	}
	if cap(c.inferOut) < len(rows) {
		c.inferOut = make([]float64, len(rows))
	}
	out := c.inferOut[:len(rows)]
	c.train.predictor.Predict(x, out)
	c.counters.Inferences++
	c.stats.IncCounter(stats.MetricInferences, 1)

	for j, i := range rows {
		seg := c.st.seg(entries[i].id)
		seg.utility = out[j]
		entries[i].utility = out[j]
	}
}

// selectRanked fills group with consecutive segments starting from the
// lowest-utility valid entry.
func (c *Cache) selectRanked(group []segID) bool {
	r := &c.rank
	if r.stale() {
		c.rerank()
	}
	for attempt := 0; ; attempt++ {
		for r.cursor < len(r.entries) {
			e := r.entries[r.cursor]
			r.cursor++
			if c.formGroup(e.id, e.uid, group) {
				return true
			}
		}
		if attempt > 0 {
			return false
		}
		c.rerank()
	}
}

// selectFIFO walks buckets round-robin and takes the oldest eligible group
// at each bucket's cursor, restarting from the head when the cursor runs
// out of segments.
func (c *Cache) selectFIFO(group []segID) bool {
	for i := 0; i < MaxBuckets; i++ {
		bi := (c.rrBucket + i) % MaxBuckets
		b := &c.st.buckets[bi]
		if !b.inUse || b.nSegs <= c.params.NMerge {
			continue
		}
		start := b.nextEvict
		if start == noSeg || !c.formGroup(start, c.st.seg(start).uid, group) {
			start = b.head
			if !c.formGroup(start, c.st.seg(start).uid, group) {
				continue
			}
		}
		c.rrBucket = (bi + 1) % MaxBuckets
		b.nextEvict = c.st.seg(group[len(group)-1]).next
		return true
	}
	return false
}

// formGroup fills group with len(group) consecutive segments starting at
// id. Every member must be resident and have a successor, so the bucket's
// open tail segment is never merged.
func (c *Cache) formGroup(id segID, uid int64, group []segID) bool {
	seg := c.st.seg(id)
	if seg.state != segResident || seg.uid != uid {
		return false
	}
	for i := range group {
		if seg.state != segResident || seg.next == noSeg {
			return false
		}
		group[i] = id
		id = seg.next
		seg = c.st.seg(id)
	}
	return true
}
