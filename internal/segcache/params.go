package segcache

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidParams indicates a rejected engine configuration.
var ErrInvalidParams = errors.New("segcache: invalid params")

// EvictionType selects how segments are chosen for merging.
type EvictionType int

const (
	// TypeFIFO merges the oldest segments of each bucket, round-robin.
	TypeFIFO EvictionType = iota
	// TypeItemOracle selects like TypeFIFO but retains objects by their
	// oracle score.
	TypeItemOracle
	// TypeLogOracle ranks segments by oracle utility and retains objects by
	// the configured score mode.
	TypeLogOracle
	// TypeBothOracle ranks segments and retains objects by oracle scores.
	TypeBothOracle
	// TypeLearned ranks segments by a model trained online.
	TypeLearned
)

var evictionTypeNames = map[string]EvictionType{
	"fifo":        TypeFIFO,
	"segcache":    TypeFIFO,
	"item-oracle": TypeItemOracle,
	"log-oracle":  TypeLogOracle,
	"both-oracle": TypeBothOracle,
	"learned":     TypeLearned,
	"glcache":     TypeLearned,
}

func (t EvictionType) String() string {
	switch t {
	case TypeFIFO:
		return "fifo"
	case TypeItemOracle:
		return "item-oracle"
	case TypeLogOracle:
		return "log-oracle"
	case TypeBothOracle:
		return "both-oracle"
	case TypeLearned:
		return "learned"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// ScoreMode selects the per-object retention score.
type ScoreMode int

const (
	ScoreFreq ScoreMode = iota
	ScoreFreqByte
	ScoreFreqAge
	ScoreHitDensity
	ScoreOracle
)

var scoreModeNames = map[string]ScoreMode{
	"freq":        ScoreFreq,
	"freq-byte":   ScoreFreqByte,
	"freq-age":    ScoreFreqAge,
	"hit-density": ScoreHitDensity,
	"oracle":      ScoreOracle,
}

func (m ScoreMode) String() string {
	switch m {
	case ScoreFreq:
		return "freq"
	case ScoreFreqByte:
		return "freq-byte"
	case ScoreFreqAge:
		return "freq-age"
	case ScoreHitDensity:
		return "hit-density"
	case ScoreOracle:
		return "oracle"
	default:
		return "score(" + strconv.Itoa(int(m)) + ")"
	}
}

// BucketMode selects how requests are partitioned into buckets.
type BucketMode int

const (
	BucketNone BucketMode = iota
	BucketSize
	BucketTenant
	BucketContentType
)

var bucketModeNames = map[string]BucketMode{
	"none":         BucketNone,
	"size":         BucketSize,
	"tenant":       BucketTenant,
	"content-type": BucketContentType,
}

func (m BucketMode) String() string {
	switch m {
	case BucketNone:
		return "none"
	case BucketSize:
		return "size"
	case BucketTenant:
		return "tenant"
	case BucketContentType:
		return "content-type"
	default:
		return "bucket(" + strconv.Itoa(int(m)) + ")"
	}
}

// TrainSource selects where training labels come from.
type TrainSource int

const (
	// TrainOnline labels segments with utility accumulated from hits
	// observed after the segment was snapshotted.
	TrainOnline TrainSource = iota
	// TrainOracle labels segments with their oracle utility at snapshot time.
	TrainOracle
)

var trainSourceNames = map[string]TrainSource{
	"online": TrainOnline,
	"oracle": TrainOracle,
}

func (s TrainSource) String() string {
	if s == TrainOracle {
		return "oracle"
	}
	return "online"
}

// LabelTransform selects how utilities become regression targets.
type LabelTransform int

const (
	// LabelUtility trains on raw utilities.
	LabelUtility LabelTransform = iota
	// LabelRelevance trains on grades 0, 1, 2 split by RelevanceCutoffs.
	LabelRelevance
)

var labelTransformNames = map[string]LabelTransform{
	"utility":   LabelUtility,
	"relevance": LabelRelevance,
}

func (l LabelTransform) String() string {
	if l == LabelRelevance {
		return "relevance"
	}
	return "utility"
}

// Params configures the engine.
type Params struct {
	Type EvictionType

	// SegmentSize is the number of objects per segment.
	SegmentSize int
	// NMerge is the number of segments merged into one per eviction.
	NMerge int
	// NRetain is the number of objects excluded from a segment's oracle
	// utility. Zero means SegmentSize/NMerge.
	NRetain int

	ScoreMode      ScoreMode
	BucketMode     BucketMode
	SizeBucketBase int

	// RankInterval is the fraction of ranked segments evicted before the
	// ranking is refreshed.
	RankInterval float64

	TrainSource      TrainSource
	LabelTransform   LabelTransform
	RelevanceCutoffs [2]float64

	// SampleEveryNSegForTraining keeps one in N retiring segments as a
	// training sample.
	SampleEveryNSegForTraining int
	MinTrainingSegs            int
	MaxTrainingSegs            int
	// RetrainInterval is in trace seconds.
	RetrainInterval int64
	// ZeroLabelWeight is the sample weight of rows whose label is ~0.
	ZeroLabelWeight float64

	// RetainFreqDecayShift right-shifts the frequency of objects that
	// survive a merge.
	RetainFreqDecayShift uint

	// HitProbComputeInterval is in requests.
	HitProbComputeInterval int64
	// AgeShift right-shifts ages before indexing the hit-density histogram.
	AgeShift uint

	// Learner names the model adapter: "gbdt" or "ridge".
	Learner string
	Seed    uint64
}

// DefaultParams returns the segcache defaults: FIFO selection, 100-object
// segments and 2-way merges.
func DefaultParams() Params {
	return Params{
		Type:                       TypeFIFO,
		SegmentSize:                100,
		NMerge:                     2,
		ScoreMode:                  ScoreFreqByte,
		BucketMode:                 BucketNone,
		SizeBucketBase:             2,
		RankInterval:               0.02,
		TrainSource:                TrainOnline,
		LabelTransform:             LabelUtility,
		RelevanceCutoffs:           [2]float64{1.0 / 3, 2.0 / 3},
		SampleEveryNSegForTraining: 4,
		MinTrainingSegs:            256,
		MaxTrainingSegs:            4096,
		RetrainInterval:            86400,
		ZeroLabelWeight:            0.1,
		RetainFreqDecayShift:       1,
		HitProbComputeInterval:     1000000,
		Learner:                    "gbdt",
		Seed:                       1,
	}
}

// retain returns the effective NRetain.
func (p Params) retain() int {
	if p.NRetain > 0 {
		return p.NRetain
	}
	return p.SegmentSize / p.NMerge
}

// objectScoreMode returns the score mode used for retention decisions.
func (p Params) objectScoreMode() ScoreMode {
	switch p.Type {
	case TypeItemOracle, TypeBothOracle:
		return ScoreOracle
	default:
		return p.ScoreMode
	}
}

// Validate rejects configurations the engine cannot run.
func (p Params) Validate() error {
	if p.SegmentSize <= 1 {
		return fmt.Errorf("%w: segment size must be > 1, got %d", ErrInvalidParams, p.SegmentSize)
	}
	if p.NMerge <= 1 {
		return fmt.Errorf("%w: n-merge must be > 1, got %d", ErrInvalidParams, p.NMerge)
	}
	if p.NRetain < 0 || p.retain() < 1 || p.retain() >= p.SegmentSize {
		return fmt.Errorf("%w: retain count must be in [1, %d), got %d", ErrInvalidParams, p.SegmentSize, p.retain())
	}
	if !(p.RankInterval > 0 && p.RankInterval <= 1) {
		return fmt.Errorf("%w: rank interval must be in (0, 1], got %g", ErrInvalidParams, p.RankInterval)
	}
	if p.Type < TypeFIFO || p.Type > TypeLearned {
		return fmt.Errorf("%w: unknown eviction type %d", ErrInvalidParams, p.Type)
	}
	if p.ScoreMode < ScoreFreq || p.ScoreMode > ScoreOracle {
		return fmt.Errorf("%w: unknown score mode %d", ErrInvalidParams, p.ScoreMode)
	}
	if p.BucketMode < BucketNone || p.BucketMode > BucketContentType {
		return fmt.Errorf("%w: unknown bucket mode %d", ErrInvalidParams, p.BucketMode)
	}
	if p.BucketMode == BucketSize && p.SizeBucketBase < 2 {
		return fmt.Errorf("%w: size bucket base must be >= 2, got %d", ErrInvalidParams, p.SizeBucketBase)
	}
	if p.Type == TypeBothOracle && p.ScoreMode != ScoreOracle {
		return fmt.Errorf("%w: both-oracle retains by oracle score, score mode %s is unsupported", ErrInvalidParams, p.ScoreMode)
	}
	if p.HitProbComputeInterval <= 0 {
		return fmt.Errorf("%w: hit-prob interval must be positive, got %d", ErrInvalidParams, p.HitProbComputeInterval)
	}
	if p.AgeShift > 40 {
		return fmt.Errorf("%w: age shift must be <= 40, got %d", ErrInvalidParams, p.AgeShift)
	}

	if p.Type != TypeLearned {
		return nil
	}
	if p.SampleEveryNSegForTraining < 1 {
		return fmt.Errorf("%w: sample-every must be >= 1, got %d", ErrInvalidParams, p.SampleEveryNSegForTraining)
	}
	if p.MinTrainingSegs < 1 || p.MinTrainingSegs > p.MaxTrainingSegs {
		return fmt.Errorf("%w: training segment bounds [%d, %d] are invalid", ErrInvalidParams, p.MinTrainingSegs, p.MaxTrainingSegs)
	}
	if p.RetrainInterval < 0 {
		return fmt.Errorf("%w: retrain interval must not be negative, got %d", ErrInvalidParams, p.RetrainInterval)
	}
	if p.ZeroLabelWeight < 0 || p.ZeroLabelWeight > 1 {
		return fmt.Errorf("%w: zero-label weight must be in [0, 1], got %g", ErrInvalidParams, p.ZeroLabelWeight)
	}
	c := p.RelevanceCutoffs
	if p.LabelTransform == LabelRelevance && !(c[0] > 0 && c[0] < c[1] && c[1] < 1) {
		return fmt.Errorf("%w: relevance cutoffs must satisfy 0 < a < b < 1, got %v", ErrInvalidParams, c)
	}
	switch p.Learner {
	case "gbdt", "ridge":
	default:
		return fmt.Errorf("%w: unknown learner %q", ErrInvalidParams, p.Learner)
	}
	return nil
}

// ParseParams parses a comma-separated key=value list on top of
// DefaultParams, e.g. "type=learned,segment-size=50,n-merge=3".
// Keys accept '-' or '_' as separators.
func ParseParams(s string) (Params, error) {
	p := DefaultParams()
	s = strings.TrimSpace(s)
	if s == "" {
		return p, p.Validate()
	}

	scoreSet := false
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return p, fmt.Errorf("%w: %q is not key=value", ErrInvalidParams, kv)
		}
		key = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", "-")
		value = strings.TrimSpace(value)
		if err := p.set(key, value); err != nil {
			return p, fmt.Errorf("%w: %s: %v", ErrInvalidParams, key, err)
		}
		if key == "score" || key == "obj-score" {
			scoreSet = true
		}
	}
	if p.Type == TypeBothOracle && !scoreSet {
		p.ScoreMode = ScoreOracle
	}
	return p, p.Validate()
}

func (p *Params) set(key, value string) error {
	var err error
	switch key {
	case "type":
		p.Type, err = lookup(evictionTypeNames, value)
	case "segment-size":
		p.SegmentSize, err = strconv.Atoi(value)
	case "n-merge":
		p.NMerge, err = strconv.Atoi(value)
	case "n-retain":
		p.NRetain, err = strconv.Atoi(value)
	case "score", "obj-score":
		p.ScoreMode, err = lookup(scoreModeNames, value)
	case "bucket":
		p.BucketMode, err = lookup(bucketModeNames, value)
	case "size-bucket-base":
		p.SizeBucketBase, err = strconv.Atoi(value)
	case "rank-interval":
		p.RankInterval, err = strconv.ParseFloat(value, 64)
	case "train-source":
		p.TrainSource, err = lookup(trainSourceNames, value)
	case "label":
		p.LabelTransform, err = lookup(labelTransformNames, value)
	case "relevance-cutoffs":
		lo, hi, ok := strings.Cut(value, ":")
		if !ok {
			return fmt.Errorf("want low:high, got %q", value)
		}
		if p.RelevanceCutoffs[0], err = strconv.ParseFloat(lo, 64); err != nil {
			return err
		}
		p.RelevanceCutoffs[1], err = strconv.ParseFloat(hi, 64)
	case "sample-every":
		p.SampleEveryNSegForTraining, err = strconv.Atoi(value)
	case "min-training-segs":
		p.MinTrainingSegs, err = strconv.Atoi(value)
	case "max-training-segs":
		p.MaxTrainingSegs, err = strconv.Atoi(value)
	case "retrain-interval":
		p.RetrainInterval, err = strconv.ParseInt(value, 10, 64)
	case "zero-label-weight":
		p.ZeroLabelWeight, err = strconv.ParseFloat(value, 64)
	case "freq-decay-shift":
		var v uint64
		v, err = strconv.ParseUint(value, 10, 8)
		p.RetainFreqDecayShift = uint(v)
	case "hit-prob-interval":
		p.HitProbComputeInterval, err = strconv.ParseInt(value, 10, 64)
	case "age-shift":
		var v uint64
		v, err = strconv.ParseUint(value, 10, 8)
		p.AgeShift = uint(v)
	case "learner":
		p.Learner = value
	case "seed":
		p.Seed, err = strconv.ParseUint(value, 10, 64)
	default:
		return errors.New("unknown key")
	}
	return err
}

func lookup[T any](names map[string]T, value string) (T, error) {
	v, ok := names[strings.ToLower(value)]
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown value %q", value)
	}
	return v, nil
}
