// Package model defines the scoring-model contract used by the learned
// eviction policy.
//
// The engine owns feature and label preparation. A Learner only sees a
// row-major feature matrix with labels and weights, and returns a Predictor
// that maps feature rows to predicted segment utility.
package model

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrEmptyDataset is returned when a learner is asked to fit zero rows.
var ErrEmptyDataset = errors.New("model: empty dataset")

// Dataset is a set of labeled samples.
type Dataset struct {
	// X holds one sample per row.
	X *mat.Dense
	// Y holds one label per row.
	Y []float64
	// W holds optional per-row weights. A nil W weights every row 1.
	W []float64
}

// Len returns the number of samples.
func (d Dataset) Len() int {
	if d.X == nil {
		return 0
	}
	r, _ := d.X.Dims()
	return r
}

// Weight returns the weight of row i.
func (d Dataset) Weight(i int) float64 {
	if d.W == nil {
		return 1
	}
	return d.W[i]
}

// Learner fits a regression model.
type Learner interface {
	// Name returns the learner name.
	Name() string

	// Fit trains a new model on train. The validation set may be empty;
	// learners that support early stopping use it.
	Fit(train, valid Dataset) (Predictor, error)
}

// Predictor scores feature rows.
type Predictor interface {
	// Predict writes one score per row of x into dst. dst must have at
	// least as many elements as x has rows.
	Predict(x mat.Matrix, dst []float64)
}

// SquaredError returns the weighted mean squared error of p on d.
func SquaredError(p Predictor, d Dataset) float64 {
	n := d.Len()
	if n == 0 {
		return 0
	}
	pred := make([]float64, n)
	p.Predict(d.X, pred)

	var sum, wsum float64
	for i := 0; i < n; i++ {
		w := d.Weight(i)
		diff := pred[i] - d.Y[i]
		sum += w * diff * diff
		wsum += w
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}
