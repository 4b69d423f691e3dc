// Package linear implements a ridge-regression learner.
package linear

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/discochess/cachesim/internal/model"
)

// Compile-time checks.
var (
	_ model.Learner   = (*Ridge)(nil)
	_ model.Predictor = (*Model)(nil)
)

// ErrSingular is returned when the regularized normal equations cannot be
// factorized.
var ErrSingular = errors.New("linear: normal equations are not positive definite")

// DefaultLambda is the L2 penalty used when none is configured.
const DefaultLambda = 1.0

// Ridge fits standardized linear models with an L2 penalty.
type Ridge struct {
	lambda float64
}

// New creates a ridge learner. A non-positive lambda uses DefaultLambda.
func New(lambda float64) *Ridge {
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	return &Ridge{lambda: lambda}
}

// Name returns "ridge".
func (r *Ridge) Name() string {
	return "ridge"
}

// Fit solves (ZᵀWZ + λI)β = ZᵀW(y-ȳ) on standardized features Z.
// The validation set is not used.
func (r *Ridge) Fit(train, _ model.Dataset) (model.Predictor, error) {
	n := train.Len()
	if n == 0 {
		return nil, model.ErrEmptyDataset
	}
	_, d := train.X.Dims()

	w := train.W
	if w == nil {
		w = make([]float64, n)
		for i := range w {
			w[i] = 1
		}
	}

	m := &Model{
		mean:      make([]float64, d),
		scale:     make([]float64, d),
		coef:      make([]float64, d),
		intercept: stat.Mean(train.Y, w),
	}

	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, train.X)
		mean, std := stat.MeanStdDev(col, w)
		m.mean[j] = mean
		if std > 0 {
			m.scale[j] = 1 / std
		}
	}

	a := mat.NewSymDense(d, nil)
	b := mat.NewVecDense(d, nil)
	z := make([]float64, d)
	for i := 0; i < n; i++ {
		row := train.X.RawRowView(i)
		for j := 0; j < d; j++ {
			z[j] = (row[j] - m.mean[j]) * m.scale[j]
		}
		yc := train.Y[i] - m.intercept
		for j := 0; j < d; j++ {
			if z[j] == 0 {
				continue
			}
			b.SetVec(j, b.AtVec(j)+w[i]*z[j]*yc)
			for k := j; k < d; k++ {
				a.SetSym(j, k, a.At(j, k)+w[i]*z[j]*z[k])
			}
		}
	}
	for j := 0; j < d; j++ {
		a.SetSym(j, j, a.At(j, j)+r.lambda)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, ErrSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, b); err != nil {
		return nil, fmt.Errorf("solving normal equations: %w", err)
	}
	for j := 0; j < d; j++ {
		m.coef[j] = beta.AtVec(j) * m.scale[j]
	}
	return m, nil
}

// Model is a fitted linear model on raw (unstandardized) features.
type Model struct {
	mean      []float64
	scale     []float64
	coef      []float64
	intercept float64
}

// Coefficients returns the per-feature slopes on raw feature values.
func (m *Model) Coefficients() []float64 {
	out := make([]float64, len(m.coef))
	copy(out, m.coef)
	return out
}

// Predict scores each row of x.
func (m *Model) Predict(x mat.Matrix, dst []float64) {
	r, c := x.Dims()
	for i := 0; i < r; i++ {
		v := m.intercept
		for j := 0; j < c && j < len(m.coef); j++ {
			v += m.coef[j] * (x.At(i, j) - m.mean[j])
		}
		dst[i] = v
	}
}
