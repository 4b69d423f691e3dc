package segcache

import (
	"math"
	"slices"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/discochess/cachesim/internal/model"
	"github.com/discochess/cachesim/internal/stats"
)

const (
	// validationEvery sends every Nth training row to the validation set.
	validationEvery = 10
	// zeroLabel is the magnitude below which a label counts as zero.
	zeroLabel = 1e-12
)

type trainRef struct {
	id  segID
	uid int64
}

// trainingPool buffers the feature rows of retired segments until the next
// training round. The backing matrix is allocated once and reused.
type trainingPool struct {
	x         *mat.Dense
	labels    []float64
	refs      []trainRef
	lastRtime int64
	started   bool
	rounds    int
	predictor model.Predictor
}

func newTrainingPool(maxRows int) *trainingPool {
	return &trainingPool{
		x:      mat.NewDense(maxRows, NFeatures, nil),
		labels: make([]float64, maxRows),
		refs:   make([]trainRef, 0, maxRows),
	}
}

// shouldSample decides whether a retiring segment becomes a training sample.
func (c *Cache) shouldSample() bool {
	if c.train == nil || len(c.train.refs) >= c.params.MaxTrainingSegs {
		return false
	}
	if c.state.nEvictedBytes < c.common.CacheSize {
		return false
	}
	n := c.params.SampleEveryNSegForTraining
	return n == 1 || c.rng.IntN(n) == 0
}

// snapshot records the feature row and, for oracle labels, the label of a
// resident segment that is about to retire into the training pool.
func (c *Cache) snapshot(id segID) {
	seg := c.st.seg(id)
	p := c.train
	row := len(p.refs)

	seg.snapshotRtime = c.state.rtime
	seg.snapshotVtime = c.state.vtime
	seg.trainUtility = 0
	seg.trainRow = row
	seg.windows.roll(c.state.rtime)
	prepareRow(seg, true, c.state.rtime, p.x.RawRowView(row))

	label := 0.0
	if c.params.TrainSource == TrainOracle {
		for i := range seg.objs {
			label += objectScore(ScoreOracle, &seg.objs[i], nil, c.state.vtime, c.state.rtime)
		}
	}
	p.labels[row] = label
	p.refs = append(p.refs, trainRef{id: id, uid: seg.uid})
}

// credit adds the online utility of obj to the training segments it was
// part of. Each object credits at most once.
func (c *Cache) credit(obj *Object) {
	if c.train == nil || c.params.TrainSource != TrainOnline || obj.seenAfterSnapshot {
		return
	}
	credited := false
	if obj.state == slotGhost {
		credited = c.creditSegment(obj.seg, c.st.seg(obj.seg).uid, obj.Size)
	}
	if obj.trainSeg != noSeg && c.creditSegment(obj.trainSeg, obj.trainUID, obj.Size) {
		credited = true
	}
	if credited {
		obj.seenAfterSnapshot = true
	}
}

func (c *Cache) creditSegment(id segID, uid int64, size int64) bool {
	seg := c.st.seg(id)
	if seg.state != segTraining || seg.uid != uid {
		return false
	}
	age := max(c.state.vtime-seg.snapshotVtime, 1)
	seg.trainUtility += scoreScale / (float64(age) * float64(max(size, 1)))
	return true
}

// maybeTrain runs a training round when the pool is full, or when it holds
// enough rows and the retrain interval has elapsed.
func (c *Cache) maybeTrain() {
	p := c.train
	if p == nil {
		return
	}
	if !p.started {
		p.started = true
		p.lastRtime = c.state.rtime
	}
	n := len(p.refs)
	switch {
	case n >= c.params.MaxTrainingSegs:
	case n >= c.params.MinTrainingSegs && c.state.rtime-p.lastRtime >= c.params.RetrainInterval:
	default:
		return
	}
	c.trainRound()
}

func (c *Cache) trainRound() {
	p := c.train
	n := len(p.refs)
	start := time.Now()

	raw := p.labels[:n]
	for i, ref := range p.refs {
		seg := c.st.seg(ref.id)
		if c.params.TrainSource == TrainOnline {
			raw[i] = seg.trainUtility
		}
		c.st.buckets[seg.bucket].trained = true
	}

	y := raw
	if c.params.LabelTransform == LabelRelevance {
		y = relevanceGrades(raw, c.params.RelevanceCutoffs)
	}

	train, valid := c.splitSamples(raw, y)
	if train.Len() == 0 {
		c.releaseTraining()
		return
	}

	pred, err := c.learner.Fit(train, valid)
	if err != nil {
		c.logger.Warn("training failed; keeping previous model",
			zap.Error(err),
			zap.Int("rows", n),
			zap.Int("round", p.rounds),
		)
	} else {
		p.predictor = pred
		p.rounds++
		c.counters.TrainingRounds++
		c.stats.IncCounter(stats.MetricTrainingRounds, 1)
		c.logger.Debug("trained segment model",
			zap.String("learner", c.learner.Name()),
			zap.Int("round", p.rounds),
			zap.Int("trainRows", train.Len()),
			zap.Int("validRows", valid.Len()),
			zap.Float64("validLoss", model.SquaredError(pred, valid)),
			zap.Duration("duration", time.Since(start)),
		)
		c.rank.invalidate()
	}
	c.releaseTraining()
}

// splitSamples copies the buffered rows into train and validation sets.
// Rows labeled ~0 are down-weighted.
func (c *Cache) splitSamples(raw, y []float64) (model.Dataset, model.Dataset) {
	n := len(raw)
	nValid := n / validationEvery
	nTrain := n - nValid

	train := model.Dataset{Y: make([]float64, 0, nTrain), W: make([]float64, 0, nTrain)}
	valid := model.Dataset{Y: make([]float64, 0, nValid), W: make([]float64, 0, nValid)}
	if nTrain > 0 {
		train.X = mat.NewDense(nTrain, NFeatures, nil)
	}
	if nValid > 0 {
		valid.X = mat.NewDense(nValid, NFeatures, nil)
	}

	for i := 0; i < n; i++ {
		w := 1.0
		if math.Abs(raw[i]) < zeroLabel {
			w = c.params.ZeroLabelWeight
		}
		dst := &train
		if i%validationEvery == validationEvery-1 {
			dst = &valid
		}
		dst.X.SetRow(len(dst.Y), c.train.x.RawRowView(i))
		dst.Y = append(dst.Y, y[i])
		dst.W = append(dst.W, w)
	}
	return train, valid
}

// relevanceGrades maps utilities to 0, 1 or 2 by their empirical quantiles.
func relevanceGrades(raw []float64, cutoffs [2]float64) []float64 {
	sorted := slices.Clone(raw)
	slices.Sort(sorted)
	lo := stat.Quantile(cutoffs[0], stat.Empirical, sorted, nil)
	hi := stat.Quantile(cutoffs[1], stat.Empirical, sorted, nil)

	grades := make([]float64, len(raw))
	for i, v := range raw {
		switch {
		case v > hi:
			grades[i] = 2
		case v > lo:
			grades[i] = 1
		}
	}
	return grades
}

// releaseTraining frees every training segment and drops their ghosts.
func (c *Cache) releaseTraining() {
	p := c.train
	for _, ref := range p.refs {
		seg := c.st.seg(ref.id)
		if seg.state != segTraining || seg.uid != ref.uid {
			panic("segcache: training pool references a reused segment")
		}
		for i := range seg.objs {
			obj := &seg.objs[i]
			if obj.state != slotGhost {
				continue
			}
			if cur, ok := c.table.Find(obj.ID); ok && cur == obj {
				c.table.Delete(obj.ID)
			}
		}
		c.st.release(ref.id)
	}
	p.refs = p.refs[:0]
	p.lastRtime = c.state.rtime
}

// trained reports whether a predictor is available.
func (c *Cache) trained() bool {
	return c.train != nil && c.train.predictor != nil
}
