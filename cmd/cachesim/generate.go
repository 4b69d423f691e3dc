package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/discochess/cachesim/internal/codec"
	"github.com/discochess/cachesim/internal/trace"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a synthetic Zipf trace",
	Long: `Write an oracleGeneral trace with Zipf-distributed object popularity and
exact next-access hints. The output is compressed according to its
extension (".zst", ".gz").

Examples:
  cachesim generate --output zipf.oracleGeneral.zst
  cachesim generate --output small.oracleGeneral.bin --requests 100000 --objects 10000 --alpha 1.2`,
	RunE: runGenerate,
}

var (
	genOutput string
	genConfig = trace.DefaultGenerateConfig()
)

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genOutput, "output", "o", "zipf.oracleGeneral.zst", "output file")
	f.IntVar(&genConfig.Requests, "requests", genConfig.Requests, "number of requests")
	f.IntVar(&genConfig.Objects, "objects", genConfig.Objects, "number of popular objects")
	f.Float64Var(&genConfig.Alpha, "alpha", genConfig.Alpha, "Zipf exponent (> 1)")
	f.Int64Var(&genConfig.MinSize, "min-size", genConfig.MinSize, "minimum object size in bytes")
	f.Int64Var(&genConfig.MaxSize, "max-size", genConfig.MaxSize, "maximum object size in bytes")
	f.IntVar(&genConfig.RequestsPerSecond, "rate", genConfig.RequestsPerSecond, "requests per trace second")
	f.Float64Var(&genConfig.ScanFraction, "scan-fraction", genConfig.ScanFraction, "fraction of one-hit scan requests")
	f.Uint64Var(&genConfig.Seed, "seed", genConfig.Seed, "random seed")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if format, _ := trace.FormatFromName(genOutput); format != trace.FormatOracleGeneral {
		return fmt.Errorf("output name %q must end in .bin or contain oracleGeneral", genOutput)
	}

	data, err := trace.Generate(genConfig)
	if err != nil {
		return err
	}
	raw := len(data)

	c := codec.ForName(genOutput)
	if data, err = codec.Encode(c, data); err != nil {
		return fmt.Errorf("compressing trace: %w", err)
	}
	if err := os.WriteFile(genOutput, data, 0o644); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s requests to %s (%s, %s raw)\n",
		humanize.Comma(int64(genConfig.Requests)), genOutput,
		humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(raw)))
	return nil
}
