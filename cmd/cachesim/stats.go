package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/discochess/cachesim/internal/trace"
)

var statsCmd = &cobra.Command{
	Use:   "stats [TRACE]",
	Short: "Show statistics about a trace",
	Long: `Display statistics about a trace including:
- Number of requests and unique objects
- Working-set size (sum of each object's first-seen size)
- One-hit objects
- Whether next-access hints are present`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
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

	r, err := sim.LoadTrace(ctx, name)
	if err != nil {
		return err
	}
	s, err := trace.Summarize(r)
	if err != nil {
		return fmt.Errorf("summarizing trace: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Trace:            %s\n", args[0])
	fmt.Fprintf(w, "Requests:         %s\n", humanize.Comma(s.Requests))
	fmt.Fprintf(w, "Unique objects:   %s\n", humanize.Comma(s.UniqueObjects))
	fmt.Fprintf(w, "One-hit objects:  %s\n", humanize.Comma(s.OneHitObjects))
	fmt.Fprintf(w, "Working set:      %s\n", humanize.IBytes(uint64(s.WorkingSetBytes)))
	fmt.Fprintf(w, "Requested bytes:  %s\n", humanize.IBytes(uint64(s.RequestBytes)))
	fmt.Fprintf(w, "Duration:         %s\n", time.Duration(s.Duration())*time.Second)
	fmt.Fprintf(w, "Next-access hint: %t\n", s.HasOracle)
	return nil
}
