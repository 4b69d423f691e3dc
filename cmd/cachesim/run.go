package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discochess/cachesim"
	"github.com/discochess/cachesim/benchmark/simulation"
	"github.com/discochess/cachesim/internal/config"
	statslogger "github.com/discochess/cachesim/internal/stats/logger"
	"github.com/discochess/cachesim/internal/trace"
)

var runCmd = &cobra.Command{
	Use:   "run [TRACE]",
	Short: "Replay a trace against one cache",
	Long: `Replay a trace against one cache and print its miss ratios.

Sizes are byte counts ("4GiB", "1000000") or fractions of the trace's
working set ("0.1").

Examples:
  # Learned segment cache at 10% of the working set
  cachesim run wiki.oracleGeneral.zst --algorithm learned --size 0.1

  # FIFO segment cache with 3-way merges and per-window output
  cachesim run trace.csv --algorithm fifo --size 512MiB --params n-merge=3 --windows

Algorithms: ` + strings.Join(cachesim.Algorithms(), ", "),
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runAlgorithm   string
	runSize        string
	runParams      string
	runOverhead    int64
	runShowWindows bool
)

func init() {
	runCmd.Flags().StringVarP(&runAlgorithm, "algorithm", "a", "learned", "cache algorithm")
	runCmd.Flags().StringVarP(&runSize, "size", "s", "0.1", "cache size in bytes or as a working-set fraction")
	runCmd.Flags().StringVarP(&runParams, "params", "p", "", "algorithm params as key=value,...")
	runCmd.Flags().Int64Var(&runOverhead, "per-object-overhead", 0, "bytes charged per cached object")
	runCmd.Flags().BoolVar(&runShowWindows, "windows", false, "print the miss ratio of every window")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	size, err := config.ParseSize(runSize)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	var opts []cachesim.Option
	if verbose {
		opts = append(opts, cachesim.WithStats(statslogger.New(logger.Named("stats"), zap.String("algorithm", runAlgorithm))))
	}
	sim, name, err := openSimulator(ctx, args[0], logger, opts...)
	if err != nil {
		return err
	}
	defer sim.Close()

	r, err := sim.LoadTrace(ctx, name)
	if err != nil {
		return err
	}
	var workingSet int64
	if size.Bytes == 0 {
		summary, err := trace.Summarize(r)
		if err != nil {
			return fmt.Errorf("summarizing trace: %w", err)
		}
		workingSet = summary.WorkingSetBytes
	}

	res, err := sim.Run(ctx, r, cachesim.CacheSpec{
		Algorithm:         runAlgorithm,
		Size:              size.Resolve(workingSet),
		Params:            runParams,
		PerObjectOverhead: runOverhead,
	})
	if err != nil {
		return err
	}

	printResult(cmd.OutOrStdout(), res, runShowWindows)
	return nil
}

func printResult(w io.Writer, res *simulation.Result, windows bool) {
	fmt.Fprintf(w, "Algorithm:       %s\n", res.Algorithm)
	fmt.Fprintf(w, "Cache size:      %s\n", humanize.IBytes(uint64(res.CacheSize)))
	fmt.Fprintf(w, "Requests:        %s\n", humanize.Comma(res.Total.Requests))
	if res.Deletes > 0 {
		fmt.Fprintf(w, "Deletes:         %s\n", humanize.Comma(res.Deletes))
	}
	fmt.Fprintf(w, "Miss ratio:      %.4f\n", res.MissRatio())
	fmt.Fprintf(w, "Byte miss ratio: %.4f\n", res.ByteMissRatio())
	fmt.Fprintf(w, "Throughput:      %s req/s\n", humanize.Comma(int64(res.Throughput())))
	fmt.Fprintf(w, "Duration:        %s\n", res.Duration)

	if !windows {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Window  Requests  Miss ratio  Byte miss ratio")
	for i, win := range res.Windows {
		fmt.Fprintf(w, "%6d  %8d  %10.4f  %15.4f\n", i+1, win.Requests, win.MissRatio(), win.ByteMissRatio())
	}
}
