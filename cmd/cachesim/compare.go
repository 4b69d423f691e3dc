package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/discochess/cachesim"
	"github.com/discochess/cachesim/benchmark/analysis"
	"github.com/discochess/cachesim/internal/config"
)

var compareCmd = &cobra.Command{
	Use:   "compare [TRACE]",
	Short: "Compare algorithms against a baseline",
	Long: `Replay a trace against a baseline and other algorithms at each size, then
compare their window miss ratios with a Mann-Whitney U test, Cohen's d and
a bootstrap confidence interval.

Examples:
  # Learned and FIFO segment caches against LRU
  cachesim compare wiki.oracleGeneral.zst --baseline lru --algorithms fifo,learned

  # Markdown report at two sizes
  cachesim compare trace.csv --sizes 0.01,0.1 --format markdown --output report.md`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

var (
	compareBaseline   string
	compareAlgorithms []string
	compareSizes      []string
	compareFormat     string
	compareOutput     string
	compareIterations int
	compareWorkers    int
)

func init() {
	compareCmd.Flags().StringVarP(&compareBaseline, "baseline", "b", "lru", "baseline algorithm")
	compareCmd.Flags().StringSliceVarP(&compareAlgorithms, "algorithms", "a", []string{"fifo", "learned"}, "algorithms to compare")
	compareCmd.Flags().StringSliceVarP(&compareSizes, "sizes", "s", []string{"0.1"}, "cache sizes in bytes or as working-set fractions")
	compareCmd.Flags().StringVarP(&compareFormat, "format", "f", "text", "output format: text, markdown")
	compareCmd.Flags().StringVarP(&compareOutput, "output", "o", "", "output file (default: stdout)")
	compareCmd.Flags().IntVar(&compareIterations, "iterations", 10000, "bootstrap iterations")
	compareCmd.Flags().IntVar(&compareWorkers, "workers", runtime.GOMAXPROCS(0), "concurrent replays")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg := config.NewDefault()
	cfg.Workers = compareWorkers
	cfg.ReportInterval = reportInterval
	for _, s := range compareSizes {
		size, err := config.ParseSize(s)
		if err != nil {
			return err
		}
		cfg.Sizes = append(cfg.Sizes, size)
	}
	cfg.Algorithms = append(cfg.Algorithms, config.Algorithm{Name: compareBaseline})
	for _, name := range compareAlgorithms {
		cfg.Algorithms = append(cfg.Algorithms, config.Algorithm{Name: name})
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	sim, name, err := openSimulator(ctx, args[0], logger)
	if err != nil {
		return err
	}
	defer sim.Close()
	cfg.Trace = name

	res, err := sim.RunSweep(ctx, cfg)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if compareOutput != "" {
		f, err := os.Create(compareOutput)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch compareFormat {
	case "markdown":
		writeMarkdownReport(w, "Cache Algorithm Comparison", args[0], res, compareBaseline, compareIterations)
	default:
		writeTextComparison(w, args[0], res, compareBaseline, compareIterations)
	}
	return nil
}

func writeTextComparison(w io.Writer, traceName string, res *cachesim.SweepResult, baseline string, iterations int) {
	fmt.Fprintf(w, "Cache Algorithm Comparison\n")
	fmt.Fprintf(w, "==========================\n\n")
	fmt.Fprintf(w, "Trace: %s\n", traceName)
	fmt.Fprintf(w, "Requests: %d\n\n", res.Trace.Requests)

	fmt.Fprintf(w, "Results:\n")
	fmt.Fprintf(w, "--------\n\n")
	for _, r := range res.Results {
		printResult(w, r, false)
		fmt.Fprintln(w)
	}

	comps := analysis.CompareAll(res.Results, baseline, iterations, 0.95)
	if len(comps) == 0 {
		return
	}
	fmt.Fprintf(w, "Statistical Analysis:\n")
	fmt.Fprintf(w, "---------------------\n\n")
	for _, c := range comps {
		fmt.Fprintln(w, c.Summary())
		fmt.Fprintln(w)
	}
}
