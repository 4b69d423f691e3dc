package cachesim

import (
	"go.uber.org/zap"

	"github.com/discochess/cachesim/benchmark/simulation"
	"github.com/discochess/cachesim/internal/stats"
	"github.com/discochess/cachesim/internal/store"
	"github.com/discochess/cachesim/internal/trace"
)

// Option configures a Simulator.
type Option interface {
	apply(*options)
}

// options holds the simulator configuration.
type options struct {
	store          store.Store
	stats          stats.Collector
	jobStats       func(name string, cacheSize int64) stats.Collector
	logger         *zap.Logger
	csvOptions     trace.CSVOptions
	reportInterval int64
	workers        int
	traceCache     int
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		stats:          stats.NewNoop(),
		logger:         zap.NewNop(),
		csvOptions:     trace.DefaultCSVOptions(),
		reportInterval: simulation.DefaultReportInterval,
		workers:        1,
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithStore sets the backend traces are read from.
func WithStore(s store.Store) Option {
	return optionFunc(func(o *options) {
		o.store = s
	})
}

// WithStats sets the stats collector shared by every replay.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithJobStats gives every replay of a sweep its own collector, keyed by
// the cache's display name and size. It takes precedence over WithStats.
func WithJobStats(fn func(name string, cacheSize int64) stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.jobStats = fn
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithCSVOptions sets the column layout used for CSV traces.
func WithCSVOptions(opts trace.CSVOptions) Option {
	return optionFunc(func(o *options) {
		o.csvOptions = opts
	})
}

// WithReportInterval sets the number of requests per result window.
func WithReportInterval(n int64) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.reportInterval = n
		}
	})
}

// WithWorkers sets how many caches a sweep replays concurrently.
// Default is 1.
func WithWorkers(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.workers = n
		}
	})
}

// WithTraceCache keeps up to n decoded traces in memory, so loading the
// same trace twice reads the store once.
func WithTraceCache(n int) Option {
	return optionFunc(func(o *options) {
		o.traceCache = n
	})
}
