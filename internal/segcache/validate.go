package segcache

import "fmt"

// Validate walks every bucket chain, segment and object and checks the
// engine's bookkeeping. It is meant for tests and debugging.
func (c *Cache) Validate() error {
	st := c.st
	segSize := c.params.SegmentSize

	var occupied, nObjects int64
	nResident, nUsedBuckets := 0, 0
	for b := range st.buckets {
		bucket := &st.buckets[b]
		n := 0
		prev := noSeg
		for id := bucket.head; id != noSeg; id = st.seg(id).next {
			seg := st.seg(id)
			if seg.state != segResident {
				return fmt.Errorf("segcache: bucket %d links segment %d in state %s", b, id, seg.state)
			}
			if seg.bucket != b {
				return fmt.Errorf("segcache: segment %d of bucket %d claims bucket %d", id, b, seg.bucket)
			}
			if seg.prev != prev {
				return fmt.Errorf("segcache: segment %d prev = %d, want %d", id, seg.prev, prev)
			}
			if len(seg.objs) > segSize {
				return fmt.Errorf("segcache: segment %d holds %d objects, max %d", id, len(seg.objs), segSize)
			}
			if seg.next != noSeg && seg.nMerged == 0 && len(seg.objs) != segSize {
				return fmt.Errorf("segcache: closed segment %d holds %d objects, want %d", id, len(seg.objs), segSize)
			}

			live, bytes := 0, int64(0)
			for i := range seg.objs {
				obj := &seg.objs[i]
				if obj.state != slotLive {
					continue
				}
				if obj.seg != id || int(obj.pos) != i {
					return fmt.Errorf("segcache: object %d at %d/%d points to %d/%d", obj.ID, id, i, obj.seg, obj.pos)
				}
				if cur, ok := c.table.Find(obj.ID); !ok || cur != obj {
					return fmt.Errorf("segcache: hashtable entry of object %d does not point to its slot", obj.ID)
				}
				live++
				bytes += obj.Size
				occupied += obj.Size + c.common.PerObjectOverhead
			}
			if live != seg.nLive || bytes != seg.liveBytes {
				return fmt.Errorf("segcache: segment %d counts %d objects/%d bytes, found %d/%d",
					id, seg.nLive, seg.liveBytes, live, bytes)
			}
			nObjects += int64(live)
			prev = id
			n++
		}
		if bucket.tail != prev {
			return fmt.Errorf("segcache: bucket %d tail = %d, want %d", b, bucket.tail, prev)
		}
		if bucket.nSegs != n {
			return fmt.Errorf("segcache: bucket %d counts %d segments, found %d", b, bucket.nSegs, n)
		}
		if bucket.inUse != (n > 0) {
			return fmt.Errorf("segcache: bucket %d in-use = %t with %d segments", b, bucket.inUse, n)
		}
		if n > 0 {
			nUsedBuckets++
		}
		nResident += n
	}

	if nResident != st.nResident {
		return fmt.Errorf("segcache: %d resident segments counted, %d linked", st.nResident, nResident)
	}
	if nUsedBuckets != st.nUsedBuckets {
		return fmt.Errorf("segcache: %d used buckets counted, %d found", st.nUsedBuckets, nUsedBuckets)
	}
	if occupied != c.occupied {
		return fmt.Errorf("segcache: occupied = %d, objects sum to %d", c.occupied, occupied)
	}
	if nObjects != c.nObjects {
		return fmt.Errorf("segcache: %d objects counted, %d found", c.nObjects, nObjects)
	}
	if c.occupied > c.common.CacheSize {
		return fmt.Errorf("segcache: occupied %d exceeds capacity %d", c.occupied, c.common.CacheSize)
	}

	nTraining := 0
	if c.train != nil {
		nTraining = len(c.train.refs)
	}
	if nTraining != st.nTraining {
		return fmt.Errorf("segcache: %d training segments counted, %d pooled", st.nTraining, nTraining)
	}
	if got := len(st.segs) - len(st.free); got != nResident+nTraining {
		return fmt.Errorf("segcache: %d allocated segments, want %d", got, nResident+nTraining)
	}
	return nil
}
