package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discochess/cachesim/internal/trace"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [TRACE]",
	Short: "Verify the integrity of a trace",
	Long: `Verify that a trace decodes completely and, when it carries next-access
hints, that every hint names the next request for the same object.

Oracle algorithms (item-oracle, log-oracle, both-oracle) depend on exact
hints.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

var verifyLimit int

func init() {
	verifyCmd.Flags().IntVar(&verifyLimit, "limit", 10, "maximum number of mismatches to report")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
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
	w := cmd.OutOrStdout()

	s, err := trace.Summarize(r)
	if err != nil {
		return fmt.Errorf("decoding trace: %w", err)
	}
	fmt.Fprintf(w, "Decoded %d requests.\n", s.Requests)
	if !s.HasOracle {
		fmt.Fprintln(w, "Trace carries no next-access hints.")
		return nil
	}

	mismatches, err := trace.VerifyOracle(r, verifyLimit)
	if err != nil {
		return fmt.Errorf("verifying hints: %w", err)
	}
	for _, m := range mismatches {
		fmt.Fprintf(w, "  ERROR: %s\n", m)
	}
	switch n := len(mismatches); {
	case n > 0 && n == verifyLimit:
		return fmt.Errorf("at least %d next-access hints are wrong", n)
	case n > 0:
		return fmt.Errorf("%d next-access hints are wrong", n)
	}

	fmt.Fprintln(w, "All next-access hints verified successfully.")
	return nil
}
