package segcache

import (
	"go.uber.org/zap"

	"github.com/discochess/cachesim/internal/model"
	"github.com/discochess/cachesim/internal/stats"
)

// Option configures a Cache.
type Option interface {
	apply(*options)
}

type options struct {
	logger  *zap.Logger
	stats   stats.Collector
	learner model.Learner
}

func defaultOptions() options {
	return options{
		logger: zap.NewNop(),
		stats:  stats.NewNoop(),
	}
}

type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger sets the logger. If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithStats sets the stats collector. If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLearner overrides the learner named by Params.Learner.
func WithLearner(l model.Learner) Option {
	return optionFunc(func(o *options) {
		o.learner = l
	})
}
