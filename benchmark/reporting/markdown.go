// Package reporting renders replay results as Markdown and JSON.
package reporting

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/discochess/cachesim/benchmark/analysis"
	"github.com/discochess/cachesim/benchmark/simulation"
	"github.com/discochess/cachesim/internal/trace"
)

// MarkdownReport generates replay reports in Markdown format.
type MarkdownReport struct {
	w   io.Writer
	now func() time.Time
}

// NewMarkdownReport creates a new Markdown report writer.
func NewMarkdownReport(w io.Writer) *MarkdownReport {
	return &MarkdownReport{w: w, now: time.Now}
}

// WriteHeader writes the report header.
func (r *MarkdownReport) WriteHeader(title string) {
	fmt.Fprintf(r.w, "# %s\n\n", title)
	fmt.Fprintf(r.w, "Generated: %s\n\n", r.now().Format(time.RFC3339))
}

// WriteTrace writes the trace section.
func (r *MarkdownReport) WriteTrace(name string, s trace.Summary) {
	fmt.Fprintln(r.w, "## Trace")
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "- **Trace:** %s\n", name)
	fmt.Fprintf(r.w, "- **Requests:** %s\n", humanize.Comma(s.Requests))
	fmt.Fprintf(r.w, "- **Objects:** %s (%s one-hit)\n", humanize.Comma(s.UniqueObjects), humanize.Comma(s.OneHitObjects))
	fmt.Fprintf(r.w, "- **Working set:** %s\n", humanize.IBytes(uint64(s.WorkingSetBytes)))
	fmt.Fprintf(r.w, "- **Duration:** %s\n", time.Duration(s.Duration())*time.Second)
	fmt.Fprintf(r.w, "- **Next-access hints:** %t\n", s.HasOracle)
	fmt.Fprintln(r.w, "- **Metric:** miss ratio (lower is better)")
	fmt.Fprintln(r.w)
}

// WriteSummaryTable writes one row per result, ordered by cache size and
// then algorithm.
func (r *MarkdownReport) WriteSummaryTable(results []*simulation.Result) {
	fmt.Fprintln(r.w, "## Summary")
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "| Algorithm | Cache Size | Miss Ratio | Byte Miss Ratio | Warm Miss Ratio | P90 Window | Throughput |")
	fmt.Fprintln(r.w, "|-----------|------------|------------|-----------------|-----------------|------------|------------|")

	for _, res := range sorted(results) {
		m := simulation.ComputeMetrics(res)
		fmt.Fprintf(r.w, "| %s | %s | %.4f | %.4f | %.4f | %.4f | %s req/s |\n",
			res.Algorithm, humanize.IBytes(uint64(res.CacheSize)),
			m.MissRatio, m.ByteMissRatio, m.WarmMissRatio, m.P90WindowMiss,
			humanize.Comma(int64(res.Throughput())))
	}
	fmt.Fprintln(r.w)
}

func sorted(results []*simulation.Result) []*simulation.Result {
	out := slices.Clone(results)
	slices.SortStableFunc(out, func(a, b *simulation.Result) int {
		if a.CacheSize != b.CacheSize {
			if a.CacheSize < b.CacheSize {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Algorithm, b.Algorithm)
	})
	return out
}

// WriteComparison writes a detailed comparison section.
func (r *MarkdownReport) WriteComparison(comp *analysis.Comparison) {
	fmt.Fprintf(r.w, "## %s vs %s (%s)\n\n", comp.Algorithm1, comp.Algorithm2, humanize.IBytes(uint64(comp.CacheSize)))

	fmt.Fprintln(r.w, "### Window Miss Ratios")
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "| Metric | "+comp.Algorithm1+" | "+comp.Algorithm2+" |")
	fmt.Fprintln(r.w, "|--------|"+strings.Repeat("-", len(comp.Algorithm1)+2)+"|"+strings.Repeat("-", len(comp.Algorithm2)+2)+"|")
	fmt.Fprintf(r.w, "| Mean | %.4f | %.4f |\n", comp.Stats1.Mean, comp.Stats2.Mean)
	fmt.Fprintf(r.w, "| Median | %.4f | %.4f |\n", comp.Stats1.Median, comp.Stats2.Median)
	fmt.Fprintf(r.w, "| Std Dev | %.4f | %.4f |\n", comp.Stats1.StdDev, comp.Stats2.StdDev)
	fmt.Fprintf(r.w, "| Min | %.4f | %.4f |\n", comp.Stats1.Min, comp.Stats2.Min)
	fmt.Fprintf(r.w, "| Max | %.4f | %.4f |\n", comp.Stats1.Max, comp.Stats2.Max)
	fmt.Fprintln(r.w)

	fmt.Fprintln(r.w, "### Statistical Analysis")
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "- **Mann-Whitney U:** %.2f (z=%.2f, p=%.4f)\n",
		comp.MannWhitney.U, comp.MannWhitney.Z, comp.MannWhitney.PValue)
	fmt.Fprintf(r.w, "- **Effect size (Cohen's d):** %.2f (%s)\n",
		comp.EffectSize.CohensD, comp.EffectSize.Interpretation)
	fmt.Fprintf(r.w, "- **%.0f%% CI for mean difference:** [%.4f, %.4f]\n",
		comp.BootstrapCI.Confidence*100, comp.BootstrapCI.LowerBound, comp.BootstrapCI.UpperBound)
	fmt.Fprintln(r.w)

	fmt.Fprintln(r.w, "### Conclusion")
	fmt.Fprintln(r.w)
	if comp.WinnerConfident {
		fmt.Fprintf(r.w, "**%s** misses significantly less than %s ",
			comp.Winner, other(comp.Winner, comp.Algorithm1, comp.Algorithm2))
		fmt.Fprintf(r.w, "(p < %.2f, effect size: %s).\n", analysis.SignificanceLevel, comp.EffectSize.Interpretation)
	} else {
		fmt.Fprintf(r.w, "No statistically significant difference detected (p >= %.2f).\n", analysis.SignificanceLevel)
	}
	fmt.Fprintln(r.w)
}

func other(winner, a, b string) string {
	if winner == a {
		return b
	}
	return a
}

// WriteMissRatioCurve writes an ASCII bar chart of miss ratio against cache
// size for one algorithm.
func (r *MarkdownReport) WriteMissRatioCurve(algorithm string, results []*simulation.Result) {
	fmt.Fprintf(r.w, "### %s Miss Ratio Curve\n\n", algorithm)
	fmt.Fprintln(r.w, "```")

	const width = 40
	for _, res := range sorted(results) {
		if res.Algorithm != algorithm {
			continue
		}
		mr := res.MissRatio()
		bar := strings.Repeat("█", int(mr*width+0.5))
		fmt.Fprintf(r.w, "%10s │ %s %.4f\n", humanize.IBytes(uint64(res.CacheSize)), bar, mr)
	}

	fmt.Fprintln(r.w, "```")
	fmt.Fprintln(r.w)
}

// WriteFooter writes the report footer.
func (r *MarkdownReport) WriteFooter() {
	fmt.Fprintln(r.w, "---")
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "*Report generated by cachesim*")
}
