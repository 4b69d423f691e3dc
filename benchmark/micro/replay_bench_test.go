package micro

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/discochess/cachesim"
	"github.com/discochess/cachesim/internal/codec"
	"github.com/discochess/cachesim/internal/request"
	"github.com/discochess/cachesim/internal/store/diskstore"
	"github.com/discochess/cachesim/internal/store/memstore"
	"github.com/discochess/cachesim/internal/trace"
)

const benchTrace = "bench.oracleGeneral.bin"

// benchRequests generates a Zipfian trace and decodes it into memory.
func benchRequests(b *testing.B) ([]byte, []request.Request, trace.Summary) {
	b.Helper()
	cfg := trace.DefaultGenerateConfig()
	cfg.Requests = 200_000
	cfg.Objects = 20_000
	data, err := trace.Generate(cfg)
	if err != nil {
		b.Fatalf("generating trace: %v", err)
	}
	r, err := trace.Open(data, trace.FormatOracleGeneral, trace.DefaultCSVOptions())
	if err != nil {
		b.Fatalf("opening trace: %v", err)
	}
	summary, err := trace.Summarize(r)
	if err != nil {
		b.Fatalf("summarizing trace: %v", err)
	}
	reqs := make([]request.Request, 0, cfg.Requests)
	for {
		var req request.Request
		if err := r.Read(&req); err == io.EOF {
			break
		} else if err != nil {
			b.Fatalf("reading trace: %v", err)
		}
		reqs = append(reqs, req)
	}
	return data, reqs, summary
}

// BenchmarkGet measures per-request cost of each algorithm at a cache
// holding a tenth of the working set.
func BenchmarkGet(b *testing.B) {
	_, reqs, summary := benchRequests(b)

	for _, algorithm := range []string{"lru", "fifo", "log-oracle", "learned"} {
		b.Run(algorithm, func(b *testing.B) {
			c, err := cachesim.NewCache(cachesim.CacheSpec{
				Algorithm: algorithm,
				Size:      summary.WorkingSetBytes / 10,
			}, nil, nil)
			if err != nil {
				b.Fatalf("creating cache: %v", err)
			}
			defer c.Close()

			var hits int
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				req := reqs[i%len(reqs)]
				if c.Get(&req) {
					hits++
				}
			}
			b.StopTimer()
			b.ReportMetric(float64(hits)/float64(b.N), "hits/op")
		})
	}
}

// BenchmarkSweep measures a full replay of four algorithms, sequentially
// and on four workers.
func BenchmarkSweep(b *testing.B) {
	data, _, summary := benchRequests(b)
	st := memstore.New()
	st.SetTrace(benchTrace, data)

	specs := []cachesim.CacheSpec{
		{Algorithm: "lru", Size: summary.WorkingSetBytes / 10},
		{Algorithm: "fifo", Size: summary.WorkingSetBytes / 10},
		{Algorithm: "item-oracle", Size: summary.WorkingSetBytes / 10},
		{Algorithm: "learned", Size: summary.WorkingSetBytes / 10},
	}

	for _, bc := range []struct {
		name    string
		workers int
	}{
		{"sequential", 1},
		{"parallel", 4},
	} {
		b.Run(bc.name, func(b *testing.B) {
			sim, err := cachesim.New(cachesim.WithStore(st), cachesim.WithWorkers(bc.workers))
			if err != nil {
				b.Fatalf("creating simulator: %v", err)
			}
			ctx := context.Background()
			r, err := sim.LoadTrace(ctx, benchTrace)
			if err != nil {
				b.Fatalf("loading trace: %v", err)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := sim.Sweep(ctx, r, specs); err != nil {
					b.Fatalf("sweep: %v", err)
				}
			}
		})
	}
}

// BenchmarkLoadTrace_Zstd measures reading and decompressing a trace from
// disk. Set TRACE_DIR and TRACE_NAME to benchmark a real trace instead of a
// generated one.
func BenchmarkLoadTrace_Zstd(b *testing.B) {
	dir, name := os.Getenv("TRACE_DIR"), os.Getenv("TRACE_NAME")
	if dir == "" || name == "" {
		data, _, _ := benchRequests(b)
		zst, err := codec.Encode(codec.NewZstd(), data)
		if err != nil {
			b.Fatalf("compressing trace: %v", err)
		}
		dir, name = b.TempDir(), "bench.oracleGeneral.zst"
		if err := os.WriteFile(filepath.Join(dir, name), zst, 0o644); err != nil {
			b.Fatalf("writing trace: %v", err)
		}
	}

	st, err := diskstore.New(dir)
	if err != nil {
		b.Fatalf("creating store: %v", err)
	}
	sim, err := cachesim.New(cachesim.WithStore(st))
	if err != nil {
		b.Fatalf("creating simulator: %v", err)
	}
	defer sim.Close()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sim.LoadTrace(ctx, name); err != nil {
			b.Fatalf("loading trace: %v", err)
		}
	}
}
