// Package cachesimfx provides fx modules for a cache simulator backed by a
// trace directory or by memory.
package cachesimfx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/discochess/cachesim"
	"github.com/discochess/cachesim/internal/stats"
	"github.com/discochess/cachesim/internal/stats/logger"
	"github.com/discochess/cachesim/internal/store"
	"github.com/discochess/cachesim/internal/store/diskstore"
	"github.com/discochess/cachesim/internal/store/memstore"
)

// Config holds configuration for the disk-backed simulator.
type Config struct {
	// TraceDir is the directory traces are read from.
	TraceDir string

	// TraceCache is the number of decoded traces kept in memory.
	// Zero disables the cache.
	TraceCache int

	// Workers is the number of replays a sweep runs concurrently.
	// Default is 1.
	Workers int
}

// DiskModule provides a simulator reading traces from Config.TraceDir.
// Requires a *zap.Logger and a Config to be provided.
var DiskModule = fx.Module("cachesim.disk",
	fx.Provide(
		newStatsCollector,
		newDiskStore,
		newSimulator,
	),
)

// MemoryModule provides a simulator over an in-memory store. The store is
// exposed so tests can load traces into it.
// Requires a *zap.Logger to be provided.
var MemoryModule = fx.Module("cachesim.memory",
	fx.Provide(
		newStatsCollector,
		memstore.New,
		func(s *memstore.Store) store.Store { return s },
		func() Config { return Config{} },
		newSimulator,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("cachesim.stats"))
}

func newDiskStore(cfg Config) (store.Store, error) {
	return diskstore.New(cfg.TraceDir)
}

// Params holds dependencies for creating the simulator.
type Params struct {
	fx.In

	Config    Config
	Logger    *zap.Logger
	Collector stats.Collector
	Store     store.Store
	Lifecycle fx.Lifecycle
}

func newSimulator(p Params) (*cachesim.Simulator, error) {
	opts := []cachesim.Option{
		cachesim.WithStore(p.Store),
		cachesim.WithStats(p.Collector),
		cachesim.WithLogger(p.Logger.Named("cachesim")),
		cachesim.WithTraceCache(p.Config.TraceCache),
	}
	if p.Config.Workers > 0 {
		opts = append(opts, cachesim.WithWorkers(p.Config.Workers))
	}
	sim, err := cachesim.New(opts...)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sim.Close()
		},
	})
	return sim, nil
}
