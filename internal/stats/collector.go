// Package stats provides a unified interface for collecting metrics.
package stats

// Metric names used throughout the library.
const (
	// Replay metrics.
	MetricRequests     = "cachesim_requests_total"
	MetricMisses       = "cachesim_misses_total"
	MetricRequestBytes = "cachesim_request_bytes_total"
	MetricMissBytes    = "cachesim_miss_bytes_total"
	MetricWindowMiss   = "cachesim_window_miss_ratio"

	// Engine metrics.
	MetricEvictions         = "cachesim_evictions_total"
	MetricMerges            = "cachesim_merges_total"
	MetricFallbackEvictions = "cachesim_fallback_evictions_total"
	MetricTrainingRounds    = "cachesim_training_rounds_total"
	MetricInferences        = "cachesim_inferences_total"
	MetricSegments          = "cachesim_segments"
	MetricOccupiedBytes     = "cachesim_occupied_bytes"

	// Trace loading metrics.
	MetricTraceCacheHits   = "cachesim_trace_cache_hits_total"
	MetricTraceCacheMisses = "cachesim_trace_cache_misses_total"
	MetricTraceBytes       = "cachesim_trace_bytes_total"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value int64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}
