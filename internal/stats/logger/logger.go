// Package logger provides a zap-based stats collector that logs metrics.
package logger

import (
	"sync"

	"go.uber.org/zap"

	"github.com/discochess/cachesim/internal/stats"
)

// Collector implements stats.Collector by logging metrics via zap at debug
// level. Counter entries carry the running total next to the delta. Gauge
// entries are only written when the value changes, since caches report
// their size on every eviction. Safe for concurrent use.
type Collector struct {
	logger *zap.Logger

	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]int64
}

// Compile-time check that Collector implements stats.Collector.
var _ stats.Collector = (*Collector)(nil)

// New creates a new logger-based collector. fields are attached to every
// entry, e.g. the algorithm a replay runs.
// If logger is nil, a no-op logger is used.
func New(logger *zap.Logger, fields ...zap.Field) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		logger:   logger.With(fields...),
		counters: make(map[string]int64),
		gauges:   make(map[string]int64),
	}
}

// IncCounter logs a counter increment.
func (c *Collector) IncCounter(name string, delta int64) {
	c.mu.Lock()
	c.counters[name] += delta
	total := c.counters[name]
	c.mu.Unlock()

	c.logger.Debug("counter",
		zap.String("metric", name),
		zap.Int64("delta", delta),
		zap.Int64("total", total),
	)
}

// SetGauge logs a gauge value if it differs from the last one.
func (c *Collector) SetGauge(name string, value int64) {
	c.mu.Lock()
	last, seen := c.gauges[name]
	c.gauges[name] = value
	c.mu.Unlock()
	if seen && last == value {
		return
	}

	c.logger.Debug("gauge",
		zap.String("metric", name),
		zap.Int64("value", value),
	)
}

// ObserveHistogram logs a histogram observation.
func (c *Collector) ObserveHistogram(name string, value float64) {
	c.logger.Debug("histogram",
		zap.String("metric", name),
		zap.Float64("value", value),
	)
}

// Counter returns the running total of a counter.
func (c *Collector) Counter(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}
