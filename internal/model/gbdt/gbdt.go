// Package gbdt implements a small gradient-boosted regression tree learner.
//
// Trees are grown depth-first with exact split search on squared loss.
// Boosting stops early when the validation error has not improved for
// Config.EarlyStoppingRounds rounds; the best prefix of trees is kept.
package gbdt

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/discochess/cachesim/internal/model"
)

// Compile-time checks.
var (
	_ model.Learner   = (*Learner)(nil)
	_ model.Predictor = (*Ensemble)(nil)
)

// Config controls boosting.
type Config struct {
	NumTrees            int
	MaxDepth            int
	LearningRate        float64
	MinSamplesLeaf      int
	EarlyStoppingRounds int
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		NumTrees:            64,
		MaxDepth:            4,
		LearningRate:        0.1,
		MinSamplesLeaf:      4,
		EarlyStoppingRounds: 8,
	}
}

// Learner fits Ensembles.
type Learner struct {
	cfg Config
}

// New creates a learner. Zero fields of cfg take their DefaultConfig value.
func New(cfg Config) *Learner {
	def := DefaultConfig()
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = def.NumTrees
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = def.MinSamplesLeaf
	}
	if cfg.EarlyStoppingRounds <= 0 {
		cfg.EarlyStoppingRounds = def.EarlyStoppingRounds
	}
	return &Learner{cfg: cfg}
}

// Name returns "gbdt".
func (l *Learner) Name() string {
	return "gbdt"
}

// Fit boosts trees on train, early-stopping on valid when it is non-empty.
func (l *Learner) Fit(train, valid model.Dataset) (model.Predictor, error) {
	n := train.Len()
	if n == 0 {
		return nil, model.ErrEmptyDataset
	}
	if len(train.Y) != n {
		return nil, fmt.Errorf("gbdt: %d labels for %d rows", len(train.Y), n)
	}
	_, nCols := train.X.Dims()

	w := train.W
	if w == nil {
		w = make([]float64, n)
		floats.AddConst(1, w)
	}

	ens := &Ensemble{
		base:  stat.Mean(train.Y, w),
		nCols: nCols,
	}

	residual := make([]float64, n)
	pred := make([]float64, n)
	floats.AddConst(ens.base, pred)

	var validPred []float64
	if valid.Len() > 0 {
		validPred = make([]float64, valid.Len())
		floats.AddConst(ens.base, validPred)
	}

	b := &builder{
		x:        train.X,
		w:        w,
		residual: residual,
		cfg:      l.cfg,
	}

	bestLoss := math.Inf(1)
	bestTrees := 0
	sinceBest := 0

	rows := make([]int, n)
	for t := 0; t < l.cfg.NumTrees; t++ {
		floats.SubTo(residual, train.Y, pred)
		for i := range rows {
			rows[i] = i
		}

		tr := b.build(rows)
		ens.trees = append(ens.trees, tr)

		for i := 0; i < n; i++ {
			pred[i] += tr.eval(rowOf(train.X, i))
		}

		if validPred == nil {
			continue
		}
		var loss, wsum float64
		for i := range validPred {
			validPred[i] += tr.eval(rowOf(valid.X, i))
			d := validPred[i] - valid.Y[i]
			vw := valid.Weight(i)
			loss += vw * d * d
			wsum += vw
		}
		if wsum > 0 {
			loss /= wsum
		}

		if loss < bestLoss {
			bestLoss = loss
			bestTrees = len(ens.trees)
			sinceBest = 0
		} else {
			sinceBest++
			if sinceBest >= l.cfg.EarlyStoppingRounds {
				break
			}
		}
	}

	if validPred != nil && bestTrees > 0 {
		ens.trees = ens.trees[:bestTrees]
	}
	return ens, nil
}

// Ensemble is a fitted boosted model.
type Ensemble struct {
	base  float64
	trees []tree
	nCols int
}

// NumTrees returns the number of trees kept after early stopping.
func (e *Ensemble) NumTrees() int {
	return len(e.trees)
}

// Predict scores each row of x.
func (e *Ensemble) Predict(x mat.Matrix, dst []float64) {
	r, _ := x.Dims()
	for i := 0; i < r; i++ {
		row := rowOf(x, i)
		v := e.base
		for t := range e.trees {
			v += e.trees[t].eval(row)
		}
		dst[i] = v
	}
}

// rowOf returns row i of x, avoiding a copy for raw row views.
func rowOf(x mat.Matrix, i int) []float64 {
	if rv, ok := x.(mat.RawRowViewer); ok {
		return rv.RawRowView(i)
	}
	return mat.Row(nil, i, x)
}

type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
	leaf      bool
}

type tree struct {
	nodes []node
}

func (t *tree) eval(row []float64) float64 {
	i := 0
	for {
		nd := &t.nodes[i]
		if nd.leaf {
			return nd.value
		}
		if row[nd.feature] <= nd.threshold {
			i = nd.left
		} else {
			i = nd.right
		}
	}
}

type builder struct {
	x        *mat.Dense
	w        []float64
	residual []float64
	cfg      Config

	scratch []int
}

func (b *builder) build(rows []int) tree {
	t := tree{}
	b.grow(&t, rows, 0)
	return t
}

// grow appends the subtree for rows to t and returns its node index.
func (b *builder) grow(t *tree, rows []int, depth int) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{})

	sum, wsum := b.sums(rows)
	leafValue := 0.0
	if wsum > 0 {
		leafValue = b.cfg.LearningRate * sum / wsum
	}

	if depth >= b.cfg.MaxDepth || len(rows) < 2*b.cfg.MinSamplesLeaf {
		t.nodes[idx] = node{leaf: true, value: leafValue}
		return idx
	}

	feature, threshold, ok := b.bestSplit(rows, sum, wsum)
	if !ok {
		t.nodes[idx] = node{leaf: true, value: leafValue}
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, r := range rows {
		if b.x.At(r, feature) <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.grow(t, left, depth+1)
	rt := b.grow(t, right, depth+1)
	t.nodes[idx] = node{feature: feature, threshold: threshold, left: l, right: rt}
	return idx
}

func (b *builder) sums(rows []int) (sum, wsum float64) {
	for _, r := range rows {
		sum += b.w[r] * b.residual[r]
		wsum += b.w[r]
	}
	return sum, wsum
}

// bestSplit searches every feature for the split with the largest
// reduction in weighted squared error.
func (b *builder) bestSplit(rows []int, sum, wsum float64) (int, float64, bool) {
	_, nCols := b.x.Dims()
	if cap(b.scratch) < len(rows) {
		b.scratch = make([]int, len(rows))
	}
	sorted := b.scratch[:len(rows)]

	parent := 0.0
	if wsum > 0 {
		parent = sum * sum / wsum
	}

	bestGain := 1e-12
	bestFeature := -1
	bestThreshold := 0.0
	minLeaf := b.cfg.MinSamplesLeaf

	for f := 0; f < nCols; f++ {
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool {
			return b.x.At(sorted[i], f) < b.x.At(sorted[j], f)
		})

		var ls, lw float64
		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			ls += b.w[r] * b.residual[r]
			lw += b.w[r]

			if i+1 < minLeaf || len(sorted)-i-1 < minLeaf {
				continue
			}
			v, next := b.x.At(r, f), b.x.At(sorted[i+1], f)
			if v == next {
				continue
			}
			rw := wsum - lw
			if lw <= 0 || rw <= 0 {
				continue
			}
			rs := sum - ls
			gain := ls*ls/lw + rs*rs/rw - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (v + next) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
