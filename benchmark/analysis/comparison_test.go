package analysis

import (
	"strings"
	"testing"

	"github.com/discochess/cachesim/benchmark/simulation"
)

func result(name string, size int64, missRatios ...float64) *simulation.Result {
	r := &simulation.Result{Algorithm: name, CacheSize: size}
	for _, m := range missRatios {
		w := simulation.Window{Requests: 1000, Misses: int64(m * 1000)}
		r.Windows = append(r.Windows, w)
		r.Total.Requests += w.Requests
		r.Total.Misses += w.Misses
	}
	return r
}

func TestCompareResults(t *testing.T) {
	lru := result("lru", 100, 0.50, 0.52, 0.49, 0.51, 0.50, 0.53, 0.48, 0.50)
	seg := result("segcache-fifo", 100, 0.30, 0.31, 0.29, 0.32, 0.30, 0.28, 0.31, 0.30)

	c := CompareResults(lru, seg, 500, 0.95)
	if c.Winner != "segcache-fifo" {
		t.Errorf("Winner = %q, want segcache-fifo", c.Winner)
	}
	if !c.WinnerConfident {
		t.Errorf("WinnerConfident = false, want true (p=%f)", c.MannWhitney.PValue)
	}
	if c.BootstrapCI.MeanDiff <= 0 {
		t.Errorf("MeanDiff = %f, want > 0", c.BootstrapCI.MeanDiff)
	}
	if s := c.Summary(); !strings.Contains(s, "lru vs segcache-fifo at 100 bytes") {
		t.Errorf("Summary() = %q, want the compared algorithms", s)
	}
}

func TestCompareResults_Tie(t *testing.T) {
	a := result("a", 10, 0.4, 0.4)
	b := result("b", 10, 0.4, 0.4)
	c := CompareResults(a, b, 10, 0.95)
	if c.Winner != "tie" || c.WinnerConfident {
		t.Errorf("Winner, WinnerConfident = %q, %v, want tie, false", c.Winner, c.WinnerConfident)
	}
}

func TestCompareAll(t *testing.T) {
	results := []*simulation.Result{
		result("lru", 200, 0.3, 0.3),
		result("segcache-fifo", 200, 0.2, 0.2),
		result("lru", 100, 0.5, 0.5),
		result("segcache-fifo", 100, 0.4, 0.4),
		result("both-oracle", 100, 0.1, 0.1),
		result("segcache-fifo", 300, 0.1, 0.1),
	}

	got := CompareAll(results, "lru", 10, 0.95)
	want := []struct {
		size int64
		alg  string
	}{
		{100, "both-oracle"},
		{100, "segcache-fifo"},
		{200, "segcache-fifo"},
	}
	if len(got) != len(want) {
		t.Fatalf("len(CompareAll) = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].CacheSize != w.size || got[i].Algorithm2 != w.alg || got[i].Algorithm1 != "lru" {
			t.Errorf("comparison %d = %s vs %s at %d, want lru vs %s at %d",
				i, got[i].Algorithm1, got[i].Algorithm2, got[i].CacheSize, w.alg, w.size)
		}
	}
}
