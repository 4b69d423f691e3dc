package simulation

import (
	"slices"
)

// Metrics summarizes the windows of a result.
type Metrics struct {
	Requests      int64
	MissRatio     float64
	ByteMissRatio float64
	// WarmMissRatio excludes the first window, when the cache fills.
	WarmMissRatio float64

	// Distribution of window miss ratios.
	MedianWindowMiss float64
	P90WindowMiss    float64
	P99WindowMiss    float64
	MinWindowMiss    float64
	MaxWindowMiss    float64
}

// ComputeMetrics computes detailed metrics from a result.
func ComputeMetrics(r *Result) *Metrics {
	m := &Metrics{
		Requests:      r.Total.Requests,
		MissRatio:     r.MissRatio(),
		ByteMissRatio: r.ByteMissRatio(),
		WarmMissRatio: r.MissRatio(),
	}

	if len(r.Windows) > 1 {
		var warm Window
		for _, w := range r.Windows[1:] {
			warm.Requests += w.Requests
			warm.Misses += w.Misses
		}
		m.WarmMissRatio = warm.MissRatio()
	}

	sorted := r.WindowMissRatios()
	if len(sorted) > 0 {
		slices.Sort(sorted)
		m.MinWindowMiss = sorted[0]
		m.MaxWindowMiss = sorted[len(sorted)-1]
		m.MedianWindowMiss = percentile(sorted, 50)
		m.P90WindowMiss = percentile(sorted, 90)
		m.P99WindowMiss = percentile(sorted, 99)
	}
	return m
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// MetricsComparison compares the metrics of two results.
type MetricsComparison struct {
	Algorithm1 string
	Algorithm2 string

	// MissRatioDiff is positive when Algorithm1 misses more.
	MissRatioDiff     float64
	MissRatioDiffPct  float64
	ByteMissRatioDiff float64
	WarmMissRatioDiff float64
}

// Compare compares two metrics and returns the differences.
func Compare(m1, m2 *Metrics, name1, name2 string) *MetricsComparison {
	return &MetricsComparison{
		Algorithm1:        name1,
		Algorithm2:        name2,
		MissRatioDiff:     m1.MissRatio - m2.MissRatio,
		MissRatioDiffPct:  safeDiffPct(m1.MissRatio, m2.MissRatio),
		ByteMissRatioDiff: m1.ByteMissRatio - m2.ByteMissRatio,
		WarmMissRatioDiff: m1.WarmMissRatio - m2.WarmMissRatio,
	}
}

func safeDiffPct(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return (a - b) / b * 100
}
