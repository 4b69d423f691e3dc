package trace

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/discochess/cachesim/internal/request"
)

// GenerateConfig describes a synthetic Zipf workload.
type GenerateConfig struct {
	// Requests is the trace length.
	Requests int
	// Objects is the size of the Zipf-distributed catalogue.
	Objects int
	// Alpha is the Zipf exponent s (> 1) and V its offset (>= 1).
	Alpha float64
	V     float64
	// Object sizes are uniform in [MinSize, MaxSize].
	MinSize int64
	MaxSize int64
	// RequestsPerSecond spaces timestamps.
	RequestsPerSecond int
	// ScanFraction of requests go to objects that are never requested
	// again.
	ScanFraction float64
	Seed         uint64
}

// DefaultGenerateConfig returns a moderately skewed workload of one million
// requests.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		Requests:          1_000_000,
		Objects:           100_000,
		Alpha:             1.05,
		V:                 1,
		MinSize:           100,
		MaxSize:           10_000,
		RequestsPerSecond: 100,
		ScanFraction:      0.05,
		Seed:              1,
	}
}

func (c GenerateConfig) validate() error {
	switch {
	case c.Requests <= 0:
		return errors.New("trace: requests must be positive")
	case c.Objects <= 0:
		return errors.New("trace: objects must be positive")
	case c.Alpha <= 1:
		return fmt.Errorf("trace: zipf alpha %g must be > 1", c.Alpha)
	case c.V < 1:
		return fmt.Errorf("trace: zipf v %g must be >= 1", c.V)
	case c.MinSize <= 0 || c.MaxSize < c.MinSize:
		return fmt.Errorf("trace: invalid size range [%d, %d]", c.MinSize, c.MaxSize)
	case c.RequestsPerSecond <= 0:
		return errors.New("trace: requests per second must be positive")
	case c.ScanFraction < 0 || c.ScanFraction >= 1:
		return fmt.Errorf("trace: scan fraction %g must be in [0, 1)", c.ScanFraction)
	}
	return nil
}

// Generate returns an oracleGeneral buffer with exact next-access hints.
// The same config always yields the same bytes.
func Generate(cfg GenerateConfig) ([]byte, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d))
	zipf := rand.NewZipf(rng, cfg.Alpha, cfg.V, uint64(cfg.Objects-1))

	sizes := make([]int64, cfg.Objects)
	span := cfg.MaxSize - cfg.MinSize + 1
	for i := range sizes {
		sizes[i] = cfg.MinSize + rng.Int64N(span)
	}

	reqs := make([]request.Request, cfg.Requests)
	scanID := uint64(cfg.Objects) + 1
	for i := range reqs {
		req := &reqs[i]
		req.Vtime = int64(i + 1)
		req.Time = int64(i / cfg.RequestsPerSecond)
		if cfg.ScanFraction > 0 && rng.Float64() < cfg.ScanFraction {
			req.ID = scanID
			req.Size = cfg.MinSize + rng.Int64N(span)
			scanID++
			continue
		}
		rank := zipf.Uint64()
		req.ID = rank + 1
		req.Size = sizes[rank]
	}

	annotateNextAccess(reqs)

	buf := make([]byte, 0, len(reqs)*RecordSize)
	for i := range reqs {
		var err error
		if buf, err = AppendRecord(buf, &reqs[i]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// annotateNextAccess sets NextAccessVtime on every request by scanning
// backwards.
func annotateNextAccess(reqs []request.Request) {
	next := make(map[uint64]int64, len(reqs)/4)
	for i := len(reqs) - 1; i >= 0; i-- {
		req := &reqs[i]
		if v, ok := next[req.ID]; ok {
			req.NextAccessVtime = v
		} else {
			req.NextAccessVtime = request.NeverAccessed
		}
		next[req.ID] = req.Vtime
	}
}
