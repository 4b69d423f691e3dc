package trace

import (
	"fmt"
	"math"

	"github.com/discochess/cachesim/internal/request"
)

// Summary describes a trace.
type Summary struct {
	Requests      int64
	UniqueObjects int64
	// WorkingSetBytes sums the first-seen size of every object.
	WorkingSetBytes int64
	RequestBytes    int64
	StartTime       int64
	EndTime         int64
	// OneHitObjects were requested exactly once.
	OneHitObjects int64
	// HasOracle is true when at least one request carries a next-access hint.
	HasOracle bool
}

// Summarize reads r from the start and leaves it rewound.
func Summarize(r Reader) (Summary, error) {
	var s Summary
	counts := make(map[uint64]int32)
	s.StartTime = math.MaxInt64
	err := ForEach(r, func(req *request.Request) error {
		s.Requests++
		s.RequestBytes += req.Size
		s.StartTime = min(s.StartTime, req.Time)
		s.EndTime = max(s.EndTime, req.Time)
		if req.HasOracle() {
			s.HasOracle = true
		}
		n, seen := counts[req.ID]
		if !seen {
			s.WorkingSetBytes += req.Size
		}
		counts[req.ID] = n + 1
		return nil
	})
	r.Reset()
	if err != nil {
		return s, err
	}
	if s.Requests == 0 {
		s.StartTime = 0
	}
	s.UniqueObjects = int64(len(counts))
	for _, n := range counts {
		if n == 1 {
			s.OneHitObjects++
		}
	}
	return s, nil
}

// Duration is the span between the first and last timestamp in seconds.
func (s Summary) Duration() int64 {
	return s.EndTime - s.StartTime
}

// FractionSizes converts working-set fractions to cache sizes in bytes.
// Sizes round down and are at least one byte.
func (s Summary) FractionSizes(fractions []float64) ([]int64, error) {
	sizes := make([]int64, len(fractions))
	for i, f := range fractions {
		if f <= 0 || f > 1 {
			return nil, fmt.Errorf("trace: working set fraction %g must be in (0, 1]", f)
		}
		sizes[i] = max(int64(f*float64(s.WorkingSetBytes)), 1)
	}
	return sizes, nil
}

// Mismatch is a next-access hint that disagrees with the trace.
type Mismatch struct {
	ID    uint64
	Vtime int64
	// Want is the hinted vtime; Got is where the object actually reappears,
	// or request.NeverAccessed.
	Want, Got int64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("object %d at vtime %d: hint %d, next request %d", m.ID, m.Vtime, m.Want, m.Got)
}

// VerifyOracle checks every next-access hint of r against the requests
// that follow. It returns at most limit mismatches and leaves r rewound.
// Only meaningful for traces whose Summary reports HasOracle.
func VerifyOracle(r Reader, limit int) ([]Mismatch, error) {
	type pending struct {
		vtime, want int64
	}
	var out []Mismatch
	report := func(m Mismatch) {
		if len(out) < limit {
			out = append(out, m)
		}
	}

	last := make(map[uint64]pending)
	err := ForEach(r, func(req *request.Request) error {
		if p, ok := last[req.ID]; ok && p.want != req.Vtime {
			report(Mismatch{ID: req.ID, Vtime: p.vtime, Want: p.want, Got: req.Vtime})
		}
		last[req.ID] = pending{vtime: req.Vtime, want: req.NextAccessVtime}
		return nil
	})
	r.Reset()
	if err != nil {
		return nil, err
	}
	for id, p := range last {
		if p.want != request.NeverAccessed {
			report(Mismatch{ID: id, Vtime: p.vtime, Want: p.want, Got: request.NeverAccessed})
		}
	}
	return out, nil
}
