package analysis

import (
	"fmt"
	"slices"

	"github.com/discochess/cachesim/benchmark/simulation"
)

// Comparison is a statistical comparison of the window miss ratios of two
// replays.
type Comparison struct {
	Algorithm1      string
	Algorithm2      string
	CacheSize       int64
	Stats1          *DescriptiveStats
	Stats2          *DescriptiveStats
	MannWhitney     *MannWhitneyResult
	EffectSize      *EffectSize
	BootstrapCI     *BootstrapResult
	Winner          string // Algorithm with the lower mean miss ratio, or "tie".
	WinnerConfident bool   // True if the difference is significant.
}

// CompareResults compares two replays window by window. Both replays should
// have used the same trace and report interval.
func CompareResults(r1, r2 *simulation.Result, bootstrapIterations int, confidence float64) *Comparison {
	s1 := r1.WindowMissRatios()
	s2 := r2.WindowMissRatios()

	c := &Comparison{
		Algorithm1:  r1.Algorithm,
		Algorithm2:  r2.Algorithm,
		CacheSize:   r1.CacheSize,
		Stats1:      Describe(s1),
		Stats2:      Describe(s2),
		MannWhitney: MannWhitneyU(s1, s2),
		EffectSize:  ComputeEffectSize(s1, s2),
		BootstrapCI: BootstrapConfidenceInterval(s1, s2, bootstrapIterations, confidence),
		Winner:      "tie",
	}
	switch {
	case c.Stats1.Mean < c.Stats2.Mean:
		c.Winner = r1.Algorithm
	case c.Stats2.Mean < c.Stats1.Mean:
		c.Winner = r2.Algorithm
	}
	c.WinnerConfident = c.Winner != "tie" && c.MannWhitney.Significant
	return c
}

// Summary returns a human-readable summary of the comparison.
func (c *Comparison) Summary() string {
	sig := "not statistically significant"
	if c.MannWhitney.Significant {
		sig = fmt.Sprintf("statistically significant (p=%.4f)", c.MannWhitney.PValue)
	}

	return fmt.Sprintf(
		"%s vs %s at %d bytes:\n"+
			"  %s: mean=%.4f, median=%.4f, std=%.4f\n"+
			"  %s: mean=%.4f, median=%.4f, std=%.4f\n"+
			"  Difference: %+.4f miss ratio (%+.1f%%)\n"+
			"  Effect size: %.2f (%s)\n"+
			"  Result: %s, %s",
		c.Algorithm1, c.Algorithm2, c.CacheSize,
		c.Algorithm1, c.Stats1.Mean, c.Stats1.Median, c.Stats1.StdDev,
		c.Algorithm2, c.Stats2.Mean, c.Stats2.Median, c.Stats2.StdDev,
		c.Stats1.Mean-c.Stats2.Mean,
		safePctDiff(c.Stats1.Mean, c.Stats2.Mean),
		c.EffectSize.CohensD, c.EffectSize.Interpretation,
		c.Winner, sig,
	)
}

func safePctDiff(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return (a - b) / b * 100
}

// CompareAll compares every result against the baseline algorithm's result
// of the same cache size. Results without a baseline at their size are
// skipped. Comparisons are ordered by cache size, then algorithm.
func CompareAll(results []*simulation.Result, baseline string, bootstrapIterations int, confidence float64) []*Comparison {
	base := make(map[int64]*simulation.Result)
	for _, r := range results {
		if r.Algorithm == baseline {
			base[r.CacheSize] = r
		}
	}

	var out []*Comparison
	for _, r := range results {
		b, ok := base[r.CacheSize]
		if !ok || r.Algorithm == baseline {
			continue
		}
		out = append(out, CompareResults(b, r, bootstrapIterations, confidence))
	}
	slices.SortStableFunc(out, func(a, b *Comparison) int {
		if a.CacheSize != b.CacheSize {
			if a.CacheSize < b.CacheSize {
				return -1
			}
			return 1
		}
		switch {
		case a.Algorithm2 < b.Algorithm2:
			return -1
		case a.Algorithm2 > b.Algorithm2:
			return 1
		}
		return 0
	})
	return out
}
