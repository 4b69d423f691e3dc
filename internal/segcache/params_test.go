package segcache

import (
	"errors"
	"testing"
)

func TestParseParams(t *testing.T) {
	p, err := ParseParams("type=learned, segment_size=50, n-merge=3, score=freq-age, bucket=size, " +
		"size-bucket-base=10, rank-interval=0.05, train-source=oracle, label=relevance, " +
		"relevance-cutoffs=0.2:0.8, sample-every=2, min-training-segs=8, max-training-segs=64, " +
		"retrain-interval=60, zero-label-weight=0.5, freq-decay-shift=2, age-shift=3, learner=ridge, seed=9")
	if err != nil {
		t.Fatalf("ParseParams() error = %v", err)
	}

	want := Params{
		Type:                       TypeLearned,
		SegmentSize:                50,
		NMerge:                     3,
		ScoreMode:                  ScoreFreqAge,
		BucketMode:                 BucketSize,
		SizeBucketBase:             10,
		RankInterval:               0.05,
		TrainSource:                TrainOracle,
		LabelTransform:             LabelRelevance,
		RelevanceCutoffs:           [2]float64{0.2, 0.8},
		SampleEveryNSegForTraining: 2,
		MinTrainingSegs:            8,
		MaxTrainingSegs:            64,
		RetrainInterval:            60,
		ZeroLabelWeight:            0.5,
		RetainFreqDecayShift:       2,
		HitProbComputeInterval:     DefaultParams().HitProbComputeInterval,
		AgeShift:                   3,
		Learner:                    "ridge",
		Seed:                       9,
	}
	if p != want {
		t.Errorf("ParseParams() = %+v, want %+v", p, want)
	}
}

func TestParseParams_Empty(t *testing.T) {
	p, err := ParseParams("")
	if err != nil {
		t.Fatalf("ParseParams() error = %v", err)
	}
	if p != DefaultParams() {
		t.Errorf("ParseParams(\"\") = %+v, want defaults", p)
	}
	if got := p.retain(); got != 50 {
		t.Errorf("retain() = %d, want 50", got)
	}
}

func TestParseParams_Aliases(t *testing.T) {
	tests := []struct {
		in   string
		want EvictionType
	}{
		{"type=segcache", TypeFIFO},
		{"type=FIFO", TypeFIFO},
		{"type=glcache", TypeLearned},
		{"type=item-oracle", TypeItemOracle},
	}
	for _, tt := range tests {
		p, err := ParseParams(tt.in)
		if err != nil {
			t.Errorf("ParseParams(%q) error = %v", tt.in, err)
			continue
		}
		if p.Type != tt.want {
			t.Errorf("ParseParams(%q).Type = %s, want %s", tt.in, p.Type, tt.want)
		}
	}
}

func TestParseParams_BothOracleForcesOracleScore(t *testing.T) {
	p, err := ParseParams("type=both-oracle")
	if err != nil {
		t.Fatalf("ParseParams() error = %v", err)
	}
	if p.ScoreMode != ScoreOracle {
		t.Errorf("ScoreMode = %s, want oracle", p.ScoreMode)
	}

	if _, err := ParseParams("type=both-oracle,score=freq"); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("both-oracle with freq score error = %v, want ErrInvalidParams", err)
	}
}

func TestParseParams_Errors(t *testing.T) {
	tests := []string{
		"segment-size=1",
		"segment-size=abc",
		"n-merge=1",
		"n-retain=100",
		"n-retain=-1",
		"segment-size=10,n-merge=20",
		"rank-interval=0",
		"rank-interval=1.5",
		"type=lfu",
		"score=random",
		"bucket=color",
		"bucket=size,size-bucket-base=1",
		"type=learned,sample-every=0",
		"type=learned,min-training-segs=100,max-training-segs=10",
		"type=learned,learner=forest",
		"type=learned,label=relevance,relevance-cutoffs=0.8:0.2",
		"type=learned,relevance-cutoffs=0.5",
		"type=learned,zero-label-weight=2",
		"hit-prob-interval=0",
		"unknown=1",
		"segment-size",
	}
	for _, in := range tests {
		if _, err := ParseParams(in); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("ParseParams(%q) error = %v, want ErrInvalidParams", in, err)
		}
	}
}

func TestParams_LearnedFieldsIgnoredForFIFO(t *testing.T) {
	p := DefaultParams()
	p.SampleEveryNSegForTraining = 0
	p.MinTrainingSegs = 10
	p.MaxTrainingSegs = 1
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for fifo", err)
	}
}

func TestParams_ObjectScoreMode(t *testing.T) {
	tests := []struct {
		typ   EvictionType
		score ScoreMode
		want  ScoreMode
	}{
		{TypeFIFO, ScoreFreq, ScoreFreq},
		{TypeItemOracle, ScoreFreq, ScoreOracle},
		{TypeLogOracle, ScoreFreqByte, ScoreFreqByte},
		{TypeBothOracle, ScoreOracle, ScoreOracle},
		{TypeLearned, ScoreHitDensity, ScoreHitDensity},
	}
	for _, tt := range tests {
		p := Params{Type: tt.typ, ScoreMode: tt.score}
		if got := p.objectScoreMode(); got != tt.want {
			t.Errorf("objectScoreMode(%s, %s) = %s, want %s", tt.typ, tt.score, got, tt.want)
		}
	}
}
