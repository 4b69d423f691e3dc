// Package cachesim replays request traces against simulated caches and
// reports their miss ratios.
//
// Example usage:
//
//	st, err := diskstore.New("/path/to/traces")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sim, err := cachesim.New(cachesim.WithStore(st))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sim.Close()
//
//	r, err := sim.LoadTrace(ctx, "wiki.oracleGeneral.zst")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := sim.Run(ctx, r, cachesim.CacheSpec{Algorithm: "learned", Size: 1 << 30})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("miss ratio: %.4f\n", res.MissRatio())
package cachesim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/discochess/cachesim/benchmark/simulation"
	"github.com/discochess/cachesim/internal/config"
	"github.com/discochess/cachesim/internal/policy"
	"github.com/discochess/cachesim/internal/stats"
	"github.com/discochess/cachesim/internal/store"
	"github.com/discochess/cachesim/internal/store/cachedstore"
	"github.com/discochess/cachesim/internal/trace"
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrClosed indicates the simulator has been closed.
	ErrClosed = errors.New("cachesim: simulator closed")

	// ErrNoStore indicates no store was provided.
	ErrNoStore = errors.New("cachesim: no store provided")

	// ErrUnknownAlgorithm indicates a CacheSpec names no known algorithm.
	ErrUnknownAlgorithm = errors.New("cachesim: unknown algorithm")
)

// Simulator loads traces from a store and replays them against caches.
// A Simulator is safe for concurrent use by multiple goroutines; each
// replay builds its own cache.
type Simulator struct {
	store          store.Store
	stats          stats.Collector
	jobStats       func(name string, cacheSize int64) stats.Collector
	logger         *zap.Logger
	csvOptions     trace.CSVOptions
	reportInterval int64
	workers        int
	closed         atomic.Bool
}

// New creates a new Simulator with the given options.
func New(opts ...Option) (*Simulator, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.store == nil {
		return nil, ErrNoStore
	}

	s := &Simulator{
		store:          cfg.store,
		stats:          cfg.stats,
		jobStats:       cfg.jobStats,
		logger:         cfg.logger,
		csvOptions:     cfg.csvOptions,
		reportInterval: cfg.reportInterval,
		workers:        cfg.workers,
	}

	if cfg.traceCache > 0 {
		cached, err := cachedstore.New(cfg.store, cfg.traceCache, cfg.stats)
		if err != nil {
			return nil, fmt.Errorf("creating trace cache: %w", err)
		}
		s.store = cached
	}

	s.logger.Debug("simulator initialized",
		zap.Int("workers", s.workers),
		zap.Int64("reportInterval", s.reportInterval),
		zap.Int("traceCache", cfg.traceCache),
	)
	return s, nil
}

// LoadTrace reads the named trace and opens a reader over it. The format
// follows the name: ".csv" and ".txt" are CSV, "oracleGeneral" and ".bin"
// are binary, after any compression suffix is removed.
func (s *Simulator) LoadTrace(ctx context.Context, name string) (trace.Reader, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	format, err := trace.FormatFromName(name)
	if err != nil {
		return nil, err
	}
	data, err := s.store.ReadTrace(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reading trace %s: %w", name, err)
	}
	s.stats.IncCounter(stats.MetricTraceBytes, int64(len(data)))

	r, err := trace.Open(data, format, s.csvOptions)
	if err != nil {
		return nil, fmt.Errorf("opening trace %s: %w", name, err)
	}
	s.logger.Debug("trace loaded",
		zap.String("trace", name),
		zap.String("format", string(format)),
		zap.Int("bytes", len(data)),
	)
	return r, nil
}

// Run replays r from the start against a fresh cache built from spec.
func (s *Simulator) Run(ctx context.Context, r trace.Reader, spec CacheSpec) (*simulation.Result, error) {
	results, err := s.Sweep(ctx, r, []CacheSpec{spec})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// Sweep replays r against every spec, running up to the configured number
// of workers concurrently. Results are returned in spec order.
func (s *Simulator) Sweep(ctx context.Context, r trace.Reader, specs []CacheSpec) ([]*simulation.Result, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	jobs := make([]simulation.Job, len(specs))
	for i, spec := range specs {
		logger := s.logger.With(zap.String("cache", spec.Name()), zap.Int64("cacheSize", spec.Size))
		jobs[i] = simulation.Job{
			Name:      spec.Name(),
			CacheSize: spec.Size,
			New: func(collector stats.Collector) (policy.Cache, error) {
				return NewCache(spec, collector, logger)
			},
		}
	}

	return simulation.Sweep(ctx, r, jobs, s.workers,
		simulation.WithReportInterval(s.reportInterval),
		simulation.WithLogger(s.logger.Named("sim")),
		simulation.WithCollectorFactory(s.collectorFor),
	)
}

func (s *Simulator) collectorFor(job simulation.Job) stats.Collector {
	if s.jobStats != nil {
		return s.jobStats(job.Name, job.CacheSize)
	}
	return s.stats
}

// SweepResult is the outcome of a configured sweep.
type SweepResult struct {
	Trace   trace.Summary
	Specs   []CacheSpec
	Results []*simulation.Result
}

// RunSweep loads the configured trace, resolves working-set fractions to
// byte sizes and replays every algorithm at every size. The simulator's
// CSV options are used unless cfg sets its own.
func (s *Simulator) RunSweep(ctx context.Context, cfg *config.Sweep) (*SweepResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sim := s
	if cfg.CSVOptions != "" {
		opts, err := trace.ParseCSVOptions(cfg.CSVOptions)
		if err != nil {
			return nil, err
		}
		sim = s.with(WithCSVOptions(opts))
	}
	sim = sim.with(WithWorkers(cfg.Workers), WithReportInterval(cfg.ReportInterval))

	r, err := sim.LoadTrace(ctx, cfg.Trace)
	if err != nil {
		return nil, err
	}
	summary, err := trace.Summarize(r)
	if err != nil {
		return nil, fmt.Errorf("summarizing trace: %w", err)
	}

	specs := make([]CacheSpec, 0, len(cfg.Sizes)*len(cfg.Algorithms))
	for _, size := range cfg.Sizes {
		bytes := size.Resolve(summary.WorkingSetBytes)
		for _, a := range cfg.Algorithms {
			specs = append(specs, CacheSpec{
				Algorithm:         a.Name,
				Label:             a.Label,
				Size:              bytes,
				Params:            a.Params,
				PerObjectOverhead: cfg.PerObjectOverhead,
			})
		}
	}
	s.logger.Info("sweep starting",
		zap.String("trace", cfg.Trace),
		zap.Int64("requests", summary.Requests),
		zap.Int64("workingSetBytes", summary.WorkingSetBytes),
		zap.Int("jobs", len(specs)),
	)

	results, err := sim.Sweep(ctx, r, specs)
	if err != nil {
		return nil, err
	}
	return &SweepResult{Trace: summary, Specs: specs, Results: results}, nil
}

// with returns a shallow copy of s with opts applied on top of its
// settings. The copy shares the store.
func (s *Simulator) with(opts ...Option) *Simulator {
	o := options{
		stats:          s.stats,
		jobStats:       s.jobStats,
		logger:         s.logger,
		csvOptions:     s.csvOptions,
		reportInterval: s.reportInterval,
		workers:        s.workers,
	}
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &Simulator{
		store:          s.store,
		stats:          o.stats,
		jobStats:       o.jobStats,
		logger:         o.logger,
		csvOptions:     o.csvOptions,
		reportInterval: o.reportInterval,
		workers:        o.workers,
	}
}

// Store returns the storage backend used by this simulator.
func (s *Simulator) Store() store.Store {
	return s.store
}

// Close releases the store. After Close, the simulator should not be used.
func (s *Simulator) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}
