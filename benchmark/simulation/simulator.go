// Package simulation replays traces against caches and records miss ratios.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/discochess/cachesim/internal/policy"
	"github.com/discochess/cachesim/internal/request"
	"github.com/discochess/cachesim/internal/stats"
	"github.com/discochess/cachesim/internal/trace"
)

// DefaultReportInterval is the number of requests per result window.
const DefaultReportInterval = 100_000

// cancelCheckMask sets how often the replay loop polls the context.
const cancelCheckMask = 4096 - 1

// Option configures a replay.
type Option interface {
	apply(*options)
}

type options struct {
	reportInterval int64
	logger         *zap.Logger
	collector      func(Job) stats.Collector
}

func defaultOptions() options {
	return options{
		reportInterval: DefaultReportInterval,
		logger:         zap.NewNop(),
		collector:      func(Job) stats.Collector { return stats.NewNoop() },
	}
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithReportInterval sets the number of requests per window.
func WithReportInterval(n int64) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.reportInterval = n
		}
	})
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithCollector reports every replay to c.
func WithCollector(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.collector = func(Job) stats.Collector { return c }
	})
}

// WithCollectorFactory gives every sweep job its own collector, for
// example one Prometheus collector labelled per job.
func WithCollectorFactory(fn func(Job) stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.collector = fn
	})
}

// Window counts the requests of one report interval.
type Window struct {
	Requests     int64
	Misses       int64
	RequestBytes int64
	MissBytes    int64
}

// MissRatio returns misses per request.
func (w Window) MissRatio() float64 {
	return ratio(w.Misses, w.Requests)
}

// ByteMissRatio returns missed bytes per requested byte.
func (w Window) ByteMissRatio() float64 {
	return ratio(w.MissBytes, w.RequestBytes)
}

// Result is the outcome of replaying one trace against one cache.
type Result struct {
	Algorithm string
	CacheSize int64
	// Total sums every window.
	Total   Window
	Windows []Window
	// Deletes counts delete requests, which are applied but not counted as
	// requests.
	Deletes  int64
	Duration time.Duration
}

// MissRatio returns the overall miss ratio.
func (r *Result) MissRatio() float64 {
	return r.Total.MissRatio()
}

// ByteMissRatio returns the overall byte miss ratio.
func (r *Result) ByteMissRatio() float64 {
	return r.Total.ByteMissRatio()
}

// WindowMissRatios returns the miss ratio of every window.
func (r *Result) WindowMissRatios() []float64 {
	out := make([]float64, len(r.Windows))
	for i, w := range r.Windows {
		out[i] = w.MissRatio()
	}
	return out
}

// Throughput returns replayed requests per second.
func (r *Result) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Total.Requests) / r.Duration.Seconds()
}

// Run replays r from the start against c. The context is polled every 4096
// requests.
func Run(ctx context.Context, r trace.Reader, c policy.Cache, opts ...Option) (*Result, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	job := Job{Name: c.Name()}
	return run(ctx, r, c, job, o.collector(job), o)
}

func run(ctx context.Context, r trace.Reader, c policy.Cache, job Job, collector stats.Collector, o options) (*Result, error) {
	res := &Result{Algorithm: job.Name, CacheSize: job.CacheSize}
	logger := o.logger.With(zap.String("algorithm", job.Name), zap.Int64("cacheSize", job.CacheSize))
	start := time.Now()

	var (
		req request.Request
		win Window
		n   int64
	)
	flush := func() {
		if win.Requests == 0 {
			return
		}
		res.Windows = append(res.Windows, win)
		res.Total.Requests += win.Requests
		res.Total.Misses += win.Misses
		res.Total.RequestBytes += win.RequestBytes
		res.Total.MissBytes += win.MissBytes

		collector.IncCounter(stats.MetricRequests, win.Requests)
		collector.IncCounter(stats.MetricMisses, win.Misses)
		collector.IncCounter(stats.MetricRequestBytes, win.RequestBytes)
		collector.IncCounter(stats.MetricMissBytes, win.MissBytes)
		collector.ObserveHistogram(stats.MetricWindowMiss, win.MissRatio())
		collector.SetGauge(stats.MetricOccupiedBytes, c.OccupiedBytes())
		logger.Debug("window",
			zap.Int("window", len(res.Windows)),
			zap.Float64("missRatio", win.MissRatio()),
			zap.Float64("byteMissRatio", win.ByteMissRatio()),
		)
		win = Window{}
	}

	r.Reset()
	for {
		if n&cancelCheckMask == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		n++

		err := r.Read(&req)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading request %d: %w", n, err)
		}

		if req.Op == request.OpDelete {
			c.Remove(req.ID)
			res.Deletes++
			continue
		}

		win.Requests++
		win.RequestBytes += req.Size
		if !c.Get(&req) {
			win.Misses++
			win.MissBytes += req.Size
		}
		if win.Requests == o.reportInterval {
			flush()
		}
	}
	flush()

	res.Duration = time.Since(start)
	logger.Info("replay finished",
		zap.Int64("requests", res.Total.Requests),
		zap.Float64("missRatio", res.MissRatio()),
		zap.Float64("byteMissRatio", res.ByteMissRatio()),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// Job is one cache to build and replay in a sweep.
type Job struct {
	// Name labels the result, usually the algorithm name.
	Name      string
	CacheSize int64
	// New builds a fresh cache that reports to collector.
	New func(collector stats.Collector) (policy.Cache, error)
}

// Sweep replays r against every job using at most workers goroutines.
// Each worker replays its own clone of r. Results are returned in job
// order. The first error cancels the remaining jobs.
func Sweep(ctx context.Context, r trace.Reader, jobs []Job, workers int, opts ...Option) ([]*Result, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]*Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		g.Go(func() error {
			collector := o.collector(job)
			c, err := job.New(collector)
			if err != nil {
				return fmt.Errorf("creating cache %s at %d bytes: %w", job.Name, job.CacheSize, err)
			}
			defer c.Close()

			res, err := run(ctx, r.Clone(), c, job, collector, o)
			if err != nil {
				return fmt.Errorf("replaying %s at %d bytes: %w", job.Name, job.CacheSize, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
