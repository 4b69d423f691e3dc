package segcache

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"

	"github.com/discochess/cachesim/internal/model"
	"github.com/discochess/cachesim/internal/request"
)

// fakeLearner records calls and returns a predictor scoring segments by
// their hit count feature.
type fakeLearner struct {
	fits     int
	predicts int
	rows     int
	err      error
}

func (l *fakeLearner) Name() string { return "fake" }

func (l *fakeLearner) Fit(train, valid model.Dataset) (model.Predictor, error) {
	l.fits++
	l.rows += train.Len() + valid.Len()
	if l.err != nil {
		return nil, l.err
	}
	return fakePredictor{l}, nil
}

type fakePredictor struct {
	l *fakeLearner
}

func (p fakePredictor) Predict(x mat.Matrix, dst []float64) {
	p.l.predicts++
	r, _ := x.Dims()
	for i := 0; i < r; i++ {
		dst[i] = x.At(i, 8)
	}
}

func TestCache_ColdStartSkipsInference(t *testing.T) {
	l := &fakeLearner{}
	c := newTestCache(t, 10000,
		"type=learned,segment-size=8,sample-every=1,min-training-segs=4000,max-training-segs=4000,retrain-interval=1000000",
		WithLearner(l))

	for _, req := range testTrace(3000, 600, 3) {
		c.Get(&req)
	}

	s := c.Stats()
	if s.Merges == 0 {
		t.Fatal("Merges = 0, want > 0")
	}
	if l.fits != 0 || l.predicts != 0 || s.Inferences != 0 {
		t.Errorf("fits, predicts, inferences = %d, %d, %d, want 0, 0, 0", l.fits, l.predicts, s.Inferences)
	}
	if s.TrainingSegments == 0 {
		t.Error("TrainingSegments = 0, want retired segments pooled")
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
}

func TestCache_LearnedTrainsAndRanks(t *testing.T) {
	l := &fakeLearner{}
	c := newTestCache(t, 10000,
		"type=learned,segment-size=8,sample-every=1,min-training-segs=8,max-training-segs=16,retrain-interval=0",
		WithLearner(l))

	for i, req := range testTrace(5000, 600, 5) {
		c.Get(&req)
		if i%101 == 0 {
			if err := c.Validate(); err != nil {
				t.Fatalf("request %d: %v", i, err)
			}
		}
	}

	s := c.Stats()
	if l.fits == 0 || s.TrainingRounds == 0 {
		t.Fatalf("fits, TrainingRounds = %d, %d, want > 0", l.fits, s.TrainingRounds)
	}
	if l.predicts == 0 || s.Inferences == 0 {
		t.Errorf("predicts, Inferences = %d, %d, want > 0", l.predicts, s.Inferences)
	}
	if got := int64(l.fits); got != s.TrainingRounds {
		t.Errorf("TrainingRounds = %d, want %d", s.TrainingRounds, got)
	}
	if s.TrainingSegments > 16 {
		t.Errorf("TrainingSegments = %d, want <= 16", s.TrainingSegments)
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
}

func TestCache_LearnedWithDefaultLearners(t *testing.T) {
	for _, learner := range []string{"gbdt", "ridge"} {
		t.Run(learner, func(t *testing.T) {
			c := newTestCache(t, 10000,
				"type=learned,learner="+learner+",segment-size=8,sample-every=1,min-training-segs=20,max-training-segs=40,retrain-interval=0")
			for _, req := range testTrace(4000, 600, 11, 100, 50) {
				c.Get(&req)
			}
			if s := c.Stats(); s.TrainingRounds == 0 || s.Inferences == 0 {
				t.Errorf("TrainingRounds, Inferences = %d, %d, want > 0", s.TrainingRounds, s.Inferences)
			}
			if err := c.Validate(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestCache_FitErrorKeepsUnlearnedPath(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := &fakeLearner{err: errors.New("boom")}
	c := newTestCache(t, 10000,
		"type=learned,segment-size=8,sample-every=1,min-training-segs=8,max-training-segs=16,retrain-interval=0",
		WithLearner(l), WithLogger(zap.New(core)))

	for _, req := range testTrace(3000, 600, 8) {
		c.Get(&req)
	}
	if l.fits == 0 {
		t.Fatal("fits = 0, want > 0")
	}
	if l.predicts != 0 || c.trained() {
		t.Errorf("predicts = %d, trained = %t, want 0, false", l.predicts, c.trained())
	}
	if logs.FilterMessage("training failed; keeping previous model").Len() == 0 {
		t.Error("no warning logged for failed training")
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
}

// retireOne drives distinct objects through c until a segment has been
// pooled for training.
func retireOne(t *testing.T, c *Cache) *Segment {
	t.Helper()
	for id := uint64(1); id < 10000; id++ {
		c.Get(&request.Request{Vtime: int64(id), Time: int64(id), ID: id, Size: 100})
		if len(c.train.refs) > 0 {
			return c.st.seg(c.train.refs[0].id)
		}
	}
	t.Fatal("no segment entered the training pool")
	return nil
}

func TestCache_GhostCreditsTrainingSegment(t *testing.T) {
	c := newTestCache(t, 1600,
		"type=learned,segment-size=4,sample-every=1,min-training-segs=1000,max-training-segs=1000,retrain-interval=1000000")
	retireOne(t, c)

	var seg *Segment
	var ghost *Object
	for _, ref := range c.train.refs {
		s := c.st.seg(ref.id)
		for i := range s.objs {
			if s.objs[i].state == slotGhost {
				seg, ghost = s, &s.objs[i]
				break
			}
		}
		if ghost != nil {
			break
		}
	}
	if ghost == nil {
		t.Fatal("no training segment holds a ghost")
	}
	if seg.trainUtility != 0 {
		t.Fatalf("trainUtility before any request = %g, want 0", seg.trainUtility)
	}

	id := ghost.ID
	vt := c.state.vtime + 10
	if c.Get(&request.Request{Vtime: vt, Time: vt, ID: id, Size: 100}) {
		t.Error("Get(ghost) = hit, want miss")
	}
	age := float64(vt - seg.snapshotVtime)
	if want := scoreScale / (age * 100); seg.trainUtility != want {
		t.Errorf("trainUtility = %g, want %g", seg.trainUtility, want)
	}
	if !cached(c, id) {
		t.Error("ghost id not re-admitted")
	}

	// A second request is a plain hit and credits nothing more.
	before := seg.trainUtility
	c.Get(&request.Request{Vtime: vt + 1, Time: vt + 1, ID: id, Size: 100})
	if seg.trainUtility != before {
		t.Errorf("trainUtility after second request = %g, want %g", seg.trainUtility, before)
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
}

func TestCache_RetainedCopyCreditsOnce(t *testing.T) {
	c := newTestCache(t, 1600,
		"type=learned,segment-size=4,sample-every=1,min-training-segs=1000,max-training-segs=1000,retrain-interval=1000000")
	seg := retireOne(t, c)
	uid := c.train.refs[0].uid

	var copied *Object
	c.table.Range(func(_ uint64, obj *Object) bool {
		if obj.InCache() && obj.trainUID == uid {
			copied = obj
			return false
		}
		return true
	})
	if copied == nil {
		t.Fatal("no retained copy references the training segment")
	}

	vt := c.state.vtime + 1
	if !c.Get(&request.Request{Vtime: vt, Time: vt, ID: copied.ID, Size: 100}) {
		t.Fatal("Get(retained) = miss, want hit")
	}
	first := seg.trainUtility
	if first <= 0 {
		t.Fatalf("trainUtility after hit = %g, want > 0", first)
	}
	c.Get(&request.Request{Vtime: vt + 1, Time: vt + 1, ID: copied.ID, Size: 100})
	if seg.trainUtility != first {
		t.Errorf("trainUtility after second hit = %g, want %g", seg.trainUtility, first)
	}
}

func TestCache_TrainingRoundReleasesPool(t *testing.T) {
	l := &fakeLearner{}
	c := newTestCache(t, 1600,
		"type=learned,segment-size=4,sample-every=1,min-training-segs=1000,max-training-segs=1000,retrain-interval=1000000",
		WithLearner(l))
	retireOne(t, c)
	for id := uint64(20000); len(c.train.refs) < 12; id++ {
		c.Get(&request.Request{Vtime: c.state.vtime + 1, Time: c.state.rtime + 1, ID: id, Size: 100})
	}

	c.trainRound()

	if l.fits != 1 {
		t.Errorf("fits = %d, want 1", l.fits)
	}
	if l.rows < 12 {
		t.Errorf("rows = %d, want >= 12", l.rows)
	}
	if n := c.Stats().TrainingSegments; n != 0 {
		t.Errorf("TrainingSegments = %d, want 0", n)
	}
	c.table.Range(func(id uint64, obj *Object) bool {
		if !obj.InCache() {
			t.Errorf("hashtable keeps non-resident object %d after training", id)
		}
		return true
	})
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
}

func TestCache_OracleLabels(t *testing.T) {
	c := newTestCache(t, 3200,
		"type=learned,train-source=oracle,segment-size=4,sample-every=1,min-training-segs=1000,max-training-segs=1000,retrain-interval=1000000")
	for i, req := range testTrace(2000, 200, 13) {
		c.Get(&req)
		if len(c.train.refs) > 0 && i > 500 {
			break
		}
	}
	if len(c.train.refs) == 0 {
		t.Fatal("no segment entered the training pool")
	}
	positive := false
	for i := range c.train.refs {
		if c.train.labels[i] > 0 {
			positive = true
		}
		seg := c.st.seg(c.train.refs[i].id)
		for j := range seg.objs {
			if seg.objs[j].state == slotGhost {
				t.Fatal("oracle labels keep ghosts")
			}
		}
	}
	if !positive {
		t.Error("all oracle labels are 0, want some positive")
	}
}

func TestRelevanceGrades(t *testing.T) {
	raw := []float64{10, 1, 9, 2, 8, 3, 7, 4, 6, 5}
	got := relevanceGrades(raw, [2]float64{1.0 / 3, 2.0 / 3})
	want := []float64{2, 0, 2, 0, 2, 0, 1, 0, 1, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("grade(%g) = %g, want %g", raw[i], got[i], want[i])
		}
	}
}

func TestSplitSamples(t *testing.T) {
	c := newTestCache(t, 1600,
		"type=learned,segment-size=4,min-training-segs=10,max-training-segs=30,zero-label-weight=0.25")
	raw := make([]float64, 25)
	for i := range raw {
		if i%2 == 0 {
			raw[i] = float64(i)
		}
	}
	train, valid := c.splitSamples(raw, raw)
	if train.Len() != 23 || valid.Len() != 2 {
		t.Fatalf("train, valid = %d, %d rows, want 23, 2", train.Len(), valid.Len())
	}
	if valid.Y[0] != 0 || valid.Y[1] != 0 {
		// Rows 9 and 19 are odd, so their labels are zero.
		t.Errorf("valid labels = %v, want [0 0]", valid.Y)
	}
	if valid.W[0] != 0.25 {
		t.Errorf("zero-label weight = %g, want 0.25", valid.W[0])
	}
	if train.W[0] != 0.25 || train.W[1] != 0.25 || train.W[2] != 1 {
		t.Errorf("train weights = %v, want [0.25 0.25 1 ...]", train.W[:3])
	}
}
