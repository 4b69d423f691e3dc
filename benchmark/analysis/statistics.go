// Package analysis compares miss-ratio series produced by cache replays.
package analysis

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// SignificanceLevel is the p-value below which a difference is reported as
// significant.
const SignificanceLevel = 0.05

// bootstrapSeed keeps resampling reproducible across runs.
const bootstrapSeed = 0x5eed

// MannWhitneyResult contains the result of a Mann-Whitney U test.
type MannWhitneyResult struct {
	U           float64 // U statistic.
	Z           float64 // Z score (normal approximation).
	PValue      float64 // Two-tailed p-value.
	Significant bool    // True if PValue < SignificanceLevel.
}

// MannWhitneyU tests whether two samples come from different
// distributions. Ties receive their average rank and the variance is
// corrected for them.
func MannWhitneyU(a, b []float64) *MannWhitneyResult {
	n1, n2 := float64(len(a)), float64(len(b))
	if n1 == 0 || n2 == 0 {
		return &MannWhitneyResult{PValue: 1}
	}

	type obs struct {
		v     float64
		fromA bool
	}
	all := make([]obs, 0, len(a)+len(b))
	for _, v := range a {
		all = append(all, obs{v, true})
	}
	for _, v := range b {
		all = append(all, obs{v, false})
	}
	slices.SortFunc(all, func(x, y obs) int {
		switch {
		case x.v < y.v:
			return -1
		case x.v > y.v:
			return 1
		}
		return 0
	})

	var rankA, tieTerm float64
	for i := 0; i < len(all); {
		j := i
		for j < len(all) && all[j].v == all[i].v {
			j++
		}
		rank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if all[k].fromA {
				rankA += rank
			}
		}
		if t := float64(j - i); t > 1 {
			tieTerm += t*t*t - t
		}
		i = j
	}

	u1 := rankA - n1*(n1+1)/2
	u := math.Min(u1, n1*n2-u1)

	n := n1 + n2
	mu := n1 * n2 / 2
	variance := n1 * n2 / 12 * ((n + 1) - tieTerm/(n*(n-1)))
	res := &MannWhitneyResult{U: u, PValue: 1}
	if variance > 0 {
		res.Z = (u - mu) / math.Sqrt(variance)
		res.PValue = 2 * distuv.UnitNormal.CDF(-math.Abs(res.Z))
	}
	res.Significant = res.PValue < SignificanceLevel
	return res
}

// EffectSize contains effect size metrics.
type EffectSize struct {
	CohensD        float64 // (mean1 - mean2) / pooled standard deviation.
	Interpretation string  // "negligible", "small", "medium", "large".
}

// ComputeEffectSize computes Cohen's d between two samples.
func ComputeEffectSize(a, b []float64) *EffectSize {
	if len(a) == 0 || len(b) == 0 {
		return &EffectSize{Interpretation: "undefined"}
	}

	m1, v1 := stat.MeanVariance(a, nil)
	m2, v2 := stat.MeanVariance(b, nil)
	n1, n2 := float64(len(a)), float64(len(b))

	var d float64
	if dof := n1 + n2 - 2; dof > 0 {
		pooled := math.Sqrt(((n1-1)*nanZero(v1) + (n2-1)*nanZero(v2)) / dof)
		if pooled > 0 {
			d = (m1 - m2) / pooled
		}
	}
	return &EffectSize{CohensD: d, Interpretation: interpretCohensD(math.Abs(d))}
}

// nanZero maps the NaN variance of a single-element sample to 0.
func nanZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func interpretCohensD(d float64) string {
	switch {
	case d < 0.2:
		return "negligible"
	case d < 0.5:
		return "small"
	case d < 0.8:
		return "medium"
	default:
		return "large"
	}
}

// BootstrapResult is a bootstrap confidence interval for a mean difference.
type BootstrapResult struct {
	MeanDiff   float64
	LowerBound float64
	UpperBound float64
	Confidence float64 // e.g. 0.95 for a 95% interval.
}

// Contains reports whether v lies inside the interval.
func (r *BootstrapResult) Contains(v float64) bool {
	return r.LowerBound <= v && v <= r.UpperBound
}

// BootstrapConfidenceInterval estimates a confidence interval for
// mean(a) - mean(b) with the percentile method.
func BootstrapConfidenceInterval(a, b []float64, iterations int, confidence float64) *BootstrapResult {
	res := &BootstrapResult{Confidence: confidence}
	if len(a) == 0 || len(b) == 0 {
		return res
	}
	res.MeanDiff = stat.Mean(a, nil) - stat.Mean(b, nil)
	if iterations <= 0 {
		res.LowerBound, res.UpperBound = res.MeanDiff, res.MeanDiff
		return res
	}

	rng := rand.New(rand.NewPCG(bootstrapSeed, uint64(len(a))<<32|uint64(len(b))))
	diffs := make([]float64, iterations)
	for i := range diffs {
		diffs[i] = resampleMean(rng, a) - resampleMean(rng, b)
	}
	slices.Sort(diffs)

	alpha := (1 - confidence) / 2
	res.LowerBound = stat.Quantile(alpha, stat.Empirical, diffs, nil)
	res.UpperBound = stat.Quantile(1-alpha, stat.Empirical, diffs, nil)
	return res
}

// resampleMean draws len(sample) values with replacement and returns
// their mean.
func resampleMean(rng *rand.Rand, sample []float64) float64 {
	var sum float64
	for range sample {
		sum += sample[rng.IntN(len(sample))]
	}
	return sum / float64(len(sample))
}

// DescriptiveStats contains basic descriptive statistics.
type DescriptiveStats struct {
	N      int
	Mean   float64
	Median float64
	StdDev float64
	Min    float64
	Max    float64
	P25    float64
	P75    float64
}

// Describe computes descriptive statistics for a sample.
func Describe(sample []float64) *DescriptiveStats {
	if len(sample) == 0 {
		return &DescriptiveStats{}
	}

	sorted := slices.Clone(sample)
	slices.Sort(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)

	return &DescriptiveStats{
		N:      len(sorted),
		Mean:   mean,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		StdDev: nanZero(std),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P25:    stat.Quantile(0.25, stat.Empirical, sorted, nil),
		P75:    stat.Quantile(0.75, stat.Empirical, sorted, nil),
	}
}
