package prometheus

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/discochess/cachesim/internal/stats"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()
		}
	}
	return nil
}

func TestNew_DefaultRegistry(t *testing.T) {
	c := New(nil)
	if c.registry != prometheus.DefaultRegisterer {
		t.Error("New(nil) did not fall back to the default registerer")
	}
}

func TestCollector_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.IncCounter(stats.MetricRequests, 5)
	c.IncCounter(stats.MetricRequests, 3)
	c.SetGauge(stats.MetricSegments, 42)
	c.ObserveHistogram(stats.MetricWindowMiss, 0.25)
	c.ObserveHistogram(stats.MetricWindowMiss, 0.75)

	if m := gather(t, reg, stats.MetricRequests); len(m) != 1 || m[0].GetCounter().GetValue() != 8 {
		t.Errorf("%s = %v, want one series of 8", stats.MetricRequests, m)
	}
	if m := gather(t, reg, stats.MetricSegments); len(m) != 1 || m[0].GetGauge().GetValue() != 42 {
		t.Errorf("%s = %v, want one series of 42", stats.MetricSegments, m)
	}
	m := gather(t, reg, stats.MetricWindowMiss)
	if len(m) != 1 {
		t.Fatalf("%s has %d series, want 1", stats.MetricWindowMiss, len(m))
	}
	if got := m[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("histogram count = %d, want 2", got)
	}
	if got := len(m[0].GetHistogram().GetBucket()); got != 21 {
		t.Errorf("histogram buckets = %d, want 21", got)
	}
}

func TestCollector_ConstLabelsSeparateSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, WithConstLabels(prometheus.Labels{"algorithm": "lru", "size": "1000"}))
	b := New(reg, WithConstLabels(prometheus.Labels{"algorithm": "segcache", "size": "1000"}))

	a.IncCounter(stats.MetricMisses, 1)
	b.IncCounter(stats.MetricMisses, 2)

	series := gather(t, reg, stats.MetricMisses)
	if len(series) != 2 {
		t.Fatalf("%s has %d series, want 2", stats.MetricMisses, len(series))
	}
	got := map[string]float64{}
	for _, m := range series {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "algorithm" {
				got[lp.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if got["lru"] != 1 || got["segcache"] != 2 {
		t.Errorf("series = %v, want lru=1 segcache=2", got)
	}
}

func TestCollector_AlreadyRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	existing := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preexisting_counter",
		Help: "preexisting_counter",
	})
	reg.MustRegister(existing)
	existing.Add(100)

	c := New(reg)
	c.IncCounter("preexisting_counter", 5)

	if m := gather(t, reg, "preexisting_counter"); len(m) != 1 || m[0].GetCounter().GetValue() != 105 {
		t.Errorf("preexisting_counter = %v, want one series of 105", m)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncCounter("concurrent_counter", 1)
				c.SetGauge("concurrent_gauge", int64(j))
				c.ObserveHistogram("concurrent_histogram", float64(j)/100)
			}
		}()
	}
	wg.Wait()

	if m := gather(t, reg, "concurrent_counter"); len(m) != 1 || m[0].GetCounter().GetValue() != 1000 {
		t.Errorf("concurrent_counter = %v, want 1000", m)
	}
	if m := gather(t, reg, "concurrent_histogram"); len(m) != 1 || m[0].GetHistogram().GetSampleCount() != 1000 {
		t.Errorf("concurrent_histogram = %v, want 1000 samples", m)
	}
}
