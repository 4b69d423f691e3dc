package segcache

import "fmt"

// MaxBuckets bounds the number of buckets.
const MaxBuckets = 128

// segID is an arena index. noSeg marks a missing link.
type segID int32

const noSeg segID = -1

type segState uint8

const (
	segFree segState = iota
	segResident
	segTraining
)

func (s segState) String() string {
	switch s {
	case segFree:
		return "free"
	case segResident:
		return "resident"
	case segTraining:
		return "training"
	default:
		return "unknown"
	}
}

// Segment is a fixed-capacity array of objects plus the metadata used for
// ranking and training.
type Segment struct {
	uid    int64
	state  segState
	bucket int

	prev, next segID

	objs      []Object
	nLive     int
	liveBytes int64

	createRtime int64
	createVtime int64
	reqRate     float64
	writeRate   float64
	missRatio   float64
	nMerged     int

	nHit    int32
	nActive int32
	windows featureWindows

	// utility is the ranking score: predicted in learned mode, oracle
	// otherwise.
	utility float64

	// Training fields, valid while state == segTraining.
	trainUtility  float64
	trainRow      int
	snapshotRtime int64
	snapshotVtime int64
}

// full reports whether every slot has been written.
func (s *Segment) full(segSize int) bool {
	return len(s.objs) >= segSize
}

// Bucket is one partition of segment space.
type Bucket struct {
	id        int
	head      segID
	tail      segID
	nSegs     int
	nextEvict segID
	inUse     bool
	// trained is set once a segment of this bucket produced a training row.
	trained bool
	hitProb *hitProb
}

// store owns the segment arena and the bucket chains. It implements no
// policy; all misuse panics.
type store struct {
	segs    []*Segment
	free    []segID
	buckets [MaxBuckets]Bucket
	segSize int
	nextUID int64

	nResident    int
	nTraining    int
	nUsedBuckets int
}

func newStore(segSize int) *store {
	s := &store{segSize: segSize}
	for i := range s.buckets {
		s.buckets[i] = Bucket{id: i, head: noSeg, tail: noSeg, nextEvict: noSeg}
	}
	return s
}

func (s *store) seg(id segID) *Segment {
	return s.segs[id]
}

// alloc returns a fresh, unlinked resident segment for bucket.
func (s *store) alloc(bucket int, rtime, vtime int64, st *cacheState) segID {
	var id segID
	if n := len(s.free); n > 0 {
		id = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		id = segID(len(s.segs))
		s.segs = append(s.segs, &Segment{objs: make([]Object, 0, s.segSize)})
	}

	seg := s.segs[id]
	if seg.state != segFree {
		panic(fmt.Sprintf("segcache: allocating segment %d in state %s", id, seg.state))
	}
	objs := seg.objs[:0]
	s.nextUID++
	*seg = Segment{
		uid:         s.nextUID,
		state:       segResident,
		bucket:      bucket,
		prev:        noSeg,
		next:        noSeg,
		objs:        objs,
		createRtime: rtime,
		createVtime: vtime,
		reqRate:     st.reqRate,
		writeRate:   st.writeRate,
		missRatio:   st.missRatio,
	}
	seg.windows.reset(rtime)
	s.nResident++
	return id
}

// release returns a segment to the free list. The segment must be unlinked.
func (s *store) release(id segID) {
	seg := s.segs[id]
	switch seg.state {
	case segFree:
		panic(fmt.Sprintf("segcache: double free of segment %d", id))
	case segResident:
		if seg.prev != noSeg || seg.next != noSeg || s.buckets[seg.bucket].head == id {
			panic(fmt.Sprintf("segcache: freeing linked segment %d", id))
		}
		s.nResident--
	case segTraining:
		s.nTraining--
	}
	clear(seg.objs)
	seg.objs = seg.objs[:0]
	seg.state = segFree
	seg.uid = 0
	s.free = append(s.free, id)
}

// toTraining moves an unlinked resident segment into the training pool.
func (s *store) toTraining(id segID) {
	seg := s.segs[id]
	if seg.state != segResident || seg.prev != noSeg || seg.next != noSeg || s.buckets[seg.bucket].head == id {
		panic(fmt.Sprintf("segcache: segment %d cannot enter training in state %s", id, seg.state))
	}
	seg.state = segTraining
	s.nResident--
	s.nTraining++
}

// appendToBucket links id at the tail of its bucket.
func (s *store) appendToBucket(id segID) {
	seg := s.segs[id]
	s.checkUnlinked(id, seg)
	b := &s.buckets[seg.bucket]

	seg.prev = b.tail
	seg.next = noSeg
	if b.tail != noSeg {
		s.segs[b.tail].next = id
	} else {
		b.head = id
	}
	b.tail = id
	s.linked(b)
}

// insertBefore links id immediately before anchor in anchor's bucket.
func (s *store) insertBefore(anchor, id segID) {
	seg := s.segs[id]
	s.checkUnlinked(id, seg)
	a := s.segs[anchor]
	if a.state != segResident || a.bucket != seg.bucket {
		panic(fmt.Sprintf("segcache: anchor %d is not in bucket %d", anchor, seg.bucket))
	}
	b := &s.buckets[seg.bucket]

	seg.prev = a.prev
	seg.next = anchor
	if a.prev != noSeg {
		s.segs[a.prev].next = id
	} else {
		b.head = id
	}
	a.prev = id
	s.linked(b)
}

func (s *store) linked(b *Bucket) {
	b.nSegs++
	if !b.inUse {
		b.inUse = true
		s.nUsedBuckets++
	}
	if b.nextEvict == noSeg {
		b.nextEvict = b.head
	}
}

// unlink removes id from its bucket chain.
func (s *store) unlink(id segID) {
	seg := s.segs[id]
	if seg.state != segResident {
		panic(fmt.Sprintf("segcache: unlinking segment %d in state %s", id, seg.state))
	}
	b := &s.buckets[seg.bucket]

	if seg.prev == noSeg {
		if b.head != id {
			panic(fmt.Sprintf("segcache: segment %d is not in bucket %d", id, seg.bucket))
		}
		b.head = seg.next
	} else {
		s.segs[seg.prev].next = seg.next
	}
	if seg.next == noSeg {
		if b.tail != id {
			panic(fmt.Sprintf("segcache: segment %d is not the tail of bucket %d", id, seg.bucket))
		}
		b.tail = seg.prev
	} else {
		s.segs[seg.next].prev = seg.prev
	}
	if b.nextEvict == id {
		b.nextEvict = seg.next
	}

	seg.prev, seg.next = noSeg, noSeg
	b.nSegs--
	if b.nSegs == 0 {
		b.inUse = false
		b.nextEvict = noSeg
		s.nUsedBuckets--
	}
}

func (s *store) checkUnlinked(id segID, seg *Segment) {
	if seg.state != segResident {
		panic(fmt.Sprintf("segcache: linking segment %d in state %s", id, seg.state))
	}
	if seg.prev != noSeg || seg.next != noSeg || s.buckets[seg.bucket].head == id {
		panic(fmt.Sprintf("segcache: segment %d is already linked", id))
	}
}
