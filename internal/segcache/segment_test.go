package segcache

import (
	"strings"
	"testing"
)

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("%s did not panic", name)
			return
		}
		if msg, ok := r.(string); !ok || !strings.HasPrefix(msg, "segcache: ") {
			t.Errorf("%s panicked with %v, want a segcache: message", name, r)
		}
	}()
	fn()
}

func chain(s *store, b int) []segID {
	var ids []segID
	for id := s.buckets[b].head; id != noSeg; id = s.seg(id).next {
		ids = append(ids, id)
	}
	return ids
}

func equalIDs(a, b []segID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStore_Linkage(t *testing.T) {
	s := newStore(4)
	st := &cacheState{}

	a := s.alloc(3, 0, 0, st)
	b := s.alloc(3, 0, 0, st)
	c := s.alloc(3, 0, 0, st)
	s.appendToBucket(a)
	s.appendToBucket(b)
	if !s.buckets[3].inUse || s.nUsedBuckets != 1 {
		t.Fatalf("bucket 3 inUse = %t, nUsedBuckets = %d, want true, 1", s.buckets[3].inUse, s.nUsedBuckets)
	}

	s.insertBefore(a, c)
	if got, want := chain(s, 3), []segID{c, a, b}; !equalIDs(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}
	if s.buckets[3].nSegs != 3 {
		t.Errorf("nSegs = %d, want 3", s.buckets[3].nSegs)
	}

	s.unlink(a)
	if got, want := chain(s, 3), []segID{c, b}; !equalIDs(got, want) {
		t.Errorf("chain after unlink = %v, want %v", got, want)
	}
	s.release(a)

	s.unlink(b)
	s.unlink(c)
	if s.buckets[3].inUse || s.nUsedBuckets != 0 {
		t.Errorf("bucket 3 inUse = %t, nUsedBuckets = %d, want false, 0", s.buckets[3].inUse, s.nUsedBuckets)
	}
	if s.buckets[3].head != noSeg || s.buckets[3].tail != noSeg {
		t.Errorf("empty bucket head, tail = %d, %d, want none", s.buckets[3].head, s.buckets[3].tail)
	}
}

func TestStore_ReusesFreedSegments(t *testing.T) {
	s := newStore(4)
	st := &cacheState{}
	a := s.alloc(0, 0, 0, st)
	uid := s.seg(a).uid
	s.release(a)

	b := s.alloc(0, 10, 20, st)
	if b != a {
		t.Errorf("alloc after release = %d, want reused %d", b, a)
	}
	seg := s.seg(b)
	if seg.uid == uid {
		t.Errorf("reused segment kept uid %d", uid)
	}
	if seg.createRtime != 10 || seg.createVtime != 20 || len(seg.objs) != 0 || cap(seg.objs) != 4 {
		t.Errorf("reused segment = rtime %d vtime %d len %d cap %d, want 10 20 0 4",
			seg.createRtime, seg.createVtime, len(seg.objs), cap(seg.objs))
	}
	if s.nResident != 1 {
		t.Errorf("nResident = %d, want 1", s.nResident)
	}
}

func TestStore_MisusePanics(t *testing.T) {
	st := &cacheState{}

	mustPanic(t, "double free", func() {
		s := newStore(4)
		a := s.alloc(0, 0, 0, st)
		s.release(a)
		s.release(a)
	})
	mustPanic(t, "unlink of unlinked segment", func() {
		s := newStore(4)
		a := s.alloc(0, 0, 0, st)
		s.unlink(a)
	})
	mustPanic(t, "double append", func() {
		s := newStore(4)
		a := s.alloc(0, 0, 0, st)
		s.appendToBucket(a)
		s.appendToBucket(a)
	})
	mustPanic(t, "free of linked segment", func() {
		s := newStore(4)
		a := s.alloc(0, 0, 0, st)
		s.appendToBucket(a)
		s.release(a)
	})
	mustPanic(t, "insert before anchor in another bucket", func() {
		s := newStore(4)
		a := s.alloc(0, 0, 0, st)
		b := s.alloc(1, 0, 0, st)
		s.appendToBucket(a)
		s.insertBefore(a, b)
	})
	mustPanic(t, "training a linked segment", func() {
		s := newStore(4)
		a := s.alloc(0, 0, 0, st)
		s.appendToBucket(a)
		s.toTraining(a)
	})
}

func TestStore_TrainingLifecycle(t *testing.T) {
	s := newStore(4)
	a := s.alloc(0, 0, 0, &cacheState{})
	s.appendToBucket(a)
	s.unlink(a)
	s.toTraining(a)
	if s.nResident != 0 || s.nTraining != 1 {
		t.Errorf("nResident, nTraining = %d, %d, want 0, 1", s.nResident, s.nTraining)
	}
	s.release(a)
	if s.nTraining != 0 || len(s.free) != 1 {
		t.Errorf("nTraining, free = %d, %d, want 0, 1", s.nTraining, len(s.free))
	}
}

func TestSizeBucket(t *testing.T) {
	tests := []struct {
		size, base int64
		want       int
	}{
		{1, 2, 0},
		{2, 2, 1},
		{3, 2, 1},
		{1024, 2, 10},
		{999, 10, 2},
		{1000, 10, 3},
		{1 << 62, 2, 62},
	}
	for _, tt := range tests {
		if got := sizeBucket(tt.size, tt.base); got != tt.want {
			t.Errorf("sizeBucket(%d, %d) = %d, want %d", tt.size, tt.base, got, tt.want)
		}
	}
}

func TestTenantBucket(t *testing.T) {
	if got := tenantBucket(""); got != 0 {
		t.Errorf("tenantBucket(\"\") = %d, want 0", got)
	}
	for _, ns := range []string{"a", "tenant-42", "images"} {
		b := tenantBucket(ns)
		if b < 1 || b >= MaxBuckets {
			t.Errorf("tenantBucket(%q) = %d, want in [1, %d)", ns, b, MaxBuckets)
		}
		if b != tenantBucket(ns) {
			t.Errorf("tenantBucket(%q) is not stable", ns)
		}
	}
}
