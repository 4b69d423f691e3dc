package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/discochess/cachesim/benchmark/simulation"
)

func TestPrintResult(t *testing.T) {
	res := &simulation.Result{
		Algorithm: "segcache-fifo",
		CacheSize: 1 << 20,
		Total:     simulation.Window{Requests: 2000, Misses: 500, RequestBytes: 4000, MissBytes: 2000},
		Windows: []simulation.Window{
			{Requests: 1000, Misses: 300, RequestBytes: 2000, MissBytes: 1200},
			{Requests: 1000, Misses: 200, RequestBytes: 2000, MissBytes: 800},
		},
		Duration: time.Second,
	}

	var buf bytes.Buffer
	printResult(&buf, res, true)
	out := buf.String()
	for _, want := range []string{
		"Algorithm:       segcache-fifo",
		"Cache size:      1.0 MiB",
		"Requests:        2,000",
		"Miss ratio:      0.2500",
		"Byte miss ratio: 0.5000",
		"     1      1000      0.3000           0.6000",
		"     2      1000      0.2000           0.4000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Deletes:") {
		t.Errorf("output lists deletes for a trace without any:\n%s", out)
	}
}

func TestGenerateAndRunCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zipf.oracleGeneral.bin")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"generate", "--output", path, "--requests", "20000", "--objects", "2000", "--seed", "7"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out.String(), "Wrote 20,000 requests") {
		t.Errorf("generate output = %q", out.String())
	}

	out.Reset()
	rootCmd.SetArgs([]string{"run", path, "--algorithm", "fifo", "--size", "0.1", "--report-interval", "5000"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"Algorithm:       fifo", "Requests:        20,000", "Miss ratio:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("run output missing %q:\n%s", want, out.String())
		}
	}
}
