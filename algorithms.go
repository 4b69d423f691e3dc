package cachesim

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/discochess/cachesim/internal/policy"
	"github.com/discochess/cachesim/internal/policy/lru"
	"github.com/discochess/cachesim/internal/segcache"
	"github.com/discochess/cachesim/internal/stats"
)

// CacheSpec describes one cache to build.
type CacheSpec struct {
	// Algorithm is a name listed by Algorithms.
	Algorithm string
	// Label overrides the algorithm name in results.
	Label string
	// Size is the capacity in bytes.
	Size int64
	// Params is a comma-separated key=value list understood by the
	// algorithm, e.g. "segment-size=50,n-merge=3".
	Params            string
	PerObjectOverhead int64
}

// Name returns the label, or the algorithm when no label is set.
func (s CacheSpec) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Algorithm
}

type builder func(spec CacheSpec, common policy.CommonParams, collector stats.Collector, logger *zap.Logger) (policy.Cache, error)

var algorithms = map[string]builder{
	"lru":         newLRU,
	"segcache":    newSegcache(""),
	"fifo":        newSegcache("fifo"),
	"item-oracle": newSegcache("item-oracle"),
	"log-oracle":  newSegcache("log-oracle"),
	"both-oracle": newSegcache("both-oracle"),
	"learned":     newSegcache("learned"),
	"glcache":     newSegcache("learned"),
}

// Algorithms returns the names NewCache accepts, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewCache builds the cache described by spec. The cache reports engine
// metrics to collector and logs to logger; nil means no-op.
func NewCache(spec CacheSpec, collector stats.Collector, logger *zap.Logger) (policy.Cache, error) {
	build, ok := algorithms[strings.ToLower(spec.Algorithm)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownAlgorithm, spec.Algorithm, strings.Join(Algorithms(), ", "))
	}
	if collector == nil {
		collector = stats.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	common := policy.CommonParams{
		CacheSize:         spec.Size,
		PerObjectOverhead: spec.PerObjectOverhead,
	}
	return build(spec, common, collector, logger)
}

func newLRU(spec CacheSpec, common policy.CommonParams, _ stats.Collector, _ *zap.Logger) (policy.Cache, error) {
	if strings.TrimSpace(spec.Params) != "" {
		return nil, fmt.Errorf("%w: lru takes no params, got %q", policy.ErrInvalidCommonParams, spec.Params)
	}
	return lru.New(common)
}

// newSegcache returns a builder that fixes the eviction type. An empty
// type leaves it to the params.
func newSegcache(typ string) builder {
	return func(spec CacheSpec, common policy.CommonParams, collector stats.Collector, logger *zap.Logger) (policy.Cache, error) {
		raw := spec.Params
		if typ != "" {
			raw = "type=" + typ + "," + raw
		}
		params, err := segcache.ParseParams(raw)
		if err != nil {
			return nil, err
		}
		if typ != "" && params.Type.String() != typ {
			return nil, fmt.Errorf("%w: algorithm %s cannot run as type %s", segcache.ErrInvalidParams, spec.Algorithm, params.Type)
		}
		return segcache.New(common, params,
			segcache.WithStats(collector),
			segcache.WithLogger(logger),
		)
	}
}
