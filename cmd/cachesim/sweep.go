package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/cachesim"
	"github.com/discochess/cachesim/benchmark/analysis"
	"github.com/discochess/cachesim/benchmark/reporting"
	"github.com/discochess/cachesim/internal/config"
	"github.com/discochess/cachesim/internal/stats"
	promstats "github.com/discochess/cachesim/internal/stats/prometheus"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Replay a trace against several algorithms and sizes",
	Long: `Replay a trace against every algorithm of a sweep file at every size and
write a Markdown report.

Example sweep file:

  trace: s3://traces/wiki.oracleGeneral.zst?region=us-east-1
  workers: 4
  sizes: ["0.01", "0.1", "4GiB"]
  algorithms:
    - name: lru
    - name: fifo
    - name: learned
      params: segment-size=100,n-merge=2

Settings can be overridden with CACHESIM_TRACE, CACHESIM_WORKERS and
CACHESIM_METRICS_ADDR.

Examples:
  cachesim sweep --config sweep.yaml --output report.md
  cachesim sweep --config sweep.yaml --metrics-addr :9090
  cachesim sweep --config sweep.yaml --json results.json`,
	RunE: runSweep,
}

var (
	sweepConfigFile  string
	sweepOutput      string
	sweepMetricsAddr string
	sweepWorkers     int
	sweepBaseline    string
	sweepIterations  int
	sweepJSON        string
)

func init() {
	sweepCmd.Flags().StringVarP(&sweepConfigFile, "config", "c", "", "sweep file (YAML)")
	sweepCmd.Flags().StringVarP(&sweepOutput, "output", "o", "", "report file (default: config output or stdout)")
	sweepCmd.Flags().StringVar(&sweepMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the sweep")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "concurrent replays (default: config workers)")
	sweepCmd.Flags().StringVar(&sweepBaseline, "baseline", "", "algorithm the others are compared against (default: the first)")
	sweepCmd.Flags().IntVar(&sweepIterations, "iterations", 10000, "bootstrap iterations for comparisons")
	sweepCmd.Flags().StringVar(&sweepJSON, "json", "", "also write the results as a JSON manifest to this file")
	sweepCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(sweepConfigFile)
	if err != nil {
		return err
	}
	if sweepWorkers > 0 {
		cfg.Workers = sweepWorkers
	}
	if sweepMetricsAddr != "" {
		cfg.MetricsAddr = sweepMetricsAddr
	}
	if sweepOutput != "" {
		cfg.Output = sweepOutput
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	var opts []cachesim.Option
	if cfg.MetricsAddr != "" {
		stop, jobStats, err := serveMetrics(cfg.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer stop()
		opts = append(opts, cachesim.WithJobStats(jobStats))
	}

	location := cfg.Trace
	sim, name, err := openSimulator(ctx, location, logger, opts...)
	if err != nil {
		return err
	}
	defer sim.Close()
	cfg.Trace = name

	res, err := sim.RunSweep(ctx, cfg)
	if err != nil {
		return err
	}

	baseline := sweepBaseline
	if baseline == "" {
		baseline = cfg.Algorithms[0].DisplayName()
	}

	var w io.Writer = cmd.OutOrStdout()
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	writeMarkdownReport(w, "Cache Sweep", location, res, baseline, sweepIterations)

	if sweepJSON != "" {
		m := reporting.NewManifest(location, res.Trace, res.Results, time.Now())
		if err := reporting.WriteManifest(sweepJSON, m); err != nil {
			return err
		}
		logger.Info("manifest written", zap.String("path", sweepJSON))
	}
	return nil
}

// serveMetrics starts a Prometheus endpoint and returns a stop function and
// a collector factory labelling every replay by algorithm and size.
func serveMetrics(addr string, logger *zap.Logger) (func(), func(string, int64) stats.Collector, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening for metrics: %w", err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
	jobStats := func(name string, cacheSize int64) stats.Collector {
		return promstats.New(registry, promstats.WithConstLabels(prometheus.Labels{
			"algorithm":  name,
			"cache_size": strconv.FormatInt(cacheSize, 10),
		}))
	}
	return stop, jobStats, nil
}

func writeMarkdownReport(w io.Writer, title, traceName string, res *cachesim.SweepResult, baseline string, iterations int) {
	report := reporting.NewMarkdownReport(w)
	report.WriteHeader(title)
	report.WriteTrace(traceName, res.Trace)
	report.WriteSummaryTable(res.Results)

	var names []string
	for _, spec := range res.Specs {
		if !slices.Contains(names, spec.Name()) {
			names = append(names, spec.Name())
		}
	}
	for _, name := range names {
		report.WriteMissRatioCurve(name, res.Results)
	}
	for _, comp := range analysis.CompareAll(res.Results, baseline, iterations, 0.95) {
		report.WriteComparison(comp)
	}
	report.WriteFooter()
}
