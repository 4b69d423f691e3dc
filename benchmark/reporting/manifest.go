package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/discochess/cachesim/benchmark/simulation"
	"github.com/discochess/cachesim/internal/trace"
)

// ManifestVersion is the current results manifest layout.
const ManifestVersion = 1

// Manifest is a machine-readable record of a sweep.
type Manifest struct {
	Version         int            `json:"version"`
	Trace           string         `json:"trace"`
	Requests        int64          `json:"requests"`
	UniqueObjects   int64          `json:"unique_objects"`
	WorkingSetBytes int64          `json:"working_set_bytes"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Results         []ResultRecord `json:"results"`
}

// ResultRecord is one replay of a manifest.
type ResultRecord struct {
	Algorithm     string    `json:"algorithm"`
	CacheSize     int64     `json:"cache_size"`
	Requests      int64     `json:"requests"`
	MissRatio     float64   `json:"miss_ratio"`
	ByteMissRatio float64   `json:"byte_miss_ratio"`
	Windows       []float64 `json:"windows"`
	DurationMS    int64     `json:"duration_ms"`
}

// NewManifest records results in size then algorithm order.
func NewManifest(traceName string, s trace.Summary, results []*simulation.Result, now time.Time) *Manifest {
	m := &Manifest{
		Version:         ManifestVersion,
		Trace:           traceName,
		Requests:        s.Requests,
		UniqueObjects:   s.UniqueObjects,
		WorkingSetBytes: s.WorkingSetBytes,
		GeneratedAt:     now.UTC(),
		Results:         make([]ResultRecord, 0, len(results)),
	}
	for _, res := range sorted(results) {
		m.Results = append(m.Results, ResultRecord{
			Algorithm:     res.Algorithm,
			CacheSize:     res.CacheSize,
			Requests:      res.Total.Requests,
			MissRatio:     res.MissRatio(),
			ByteMissRatio: res.ByteMissRatio(),
			Windows:       res.WindowMissRatios(),
			DurationMS:    res.Duration.Milliseconds(),
		})
	}
	return m
}

// WriteManifest writes m as indented JSON to path.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest reads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return &m, nil
}
