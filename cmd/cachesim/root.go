package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/discochess/cachesim"
	"github.com/discochess/cachesim/internal/trace"
)

var (
	// Global flags.
	verbose        bool
	csvOptions     string
	reportInterval int64
	traceCacheSize int
)

var rootCmd = &cobra.Command{
	Use:   "cachesim",
	Short: "Trace-driven cache simulator",
	Long: `cachesim replays request traces against simulated caches and reports
their miss ratio and byte miss ratio.

Traces are CSV or oracleGeneral binary files, optionally zstd or gzip
compressed, read from a local path, s3://, gs:// or http(s)://.

Examples:
  # Replay a trace against the learned segment cache at 10% of the working set
  cachesim run traces/wiki.oracleGeneral.zst --algorithm learned --size 0.1

  # Sweep several algorithms and sizes described in a config file
  cachesim sweep --config sweep.yaml

  # Show statistics about a trace
  cachesim stats traces/wiki.oracleGeneral.zst`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&csvOptions, "csv-options", "", "CSV column layout, e.g. time-col=1,obj-id-col=2,obj-size-col=3,has-header=true")
	rootCmd.PersistentFlags().Int64Var(&reportInterval, "report-interval", 100_000, "requests per result window")
	rootCmd.PersistentFlags().IntVar(&traceCacheSize, "trace-cache", 0, "number of decoded traces kept in memory")
}

// newLogger builds a production logger writing to stderr.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// openSimulator opens the store holding location and returns a simulator
// over it plus the trace name within the store.
func openSimulator(ctx context.Context, location string, logger *zap.Logger, opts ...cachesim.Option) (*cachesim.Simulator, string, error) {
	st, name, err := cachesim.OpenStore(ctx, location)
	if err != nil {
		return nil, "", err
	}

	base := []cachesim.Option{
		cachesim.WithStore(st),
		cachesim.WithLogger(logger),
		cachesim.WithReportInterval(reportInterval),
		cachesim.WithTraceCache(traceCacheSize),
	}
	if csvOptions != "" {
		parsed, err := trace.ParseCSVOptions(csvOptions)
		if err != nil {
			st.Close()
			return nil, "", err
		}
		base = append(base, cachesim.WithCSVOptions(parsed))
	}

	sim, err := cachesim.New(append(base, opts...)...)
	if err != nil {
		st.Close()
		return nil, "", fmt.Errorf("creating simulator: %w", err)
	}
	return sim, name, nil
}
