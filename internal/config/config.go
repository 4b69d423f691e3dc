// Package config loads sweep configuration files.
//
// A sweep file names a trace, a set of cache sizes and the algorithms to
// replay at each size:
//
//	trace: traces/wiki.oracleGeneral.zst
//	workers: 4
//	sizes: ["0.01", "0.1", "4GiB"]
//	algorithms:
//	  - name: lru
//	  - name: learned
//	    params: segment-size=100,n-merge=2
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"
)

// ErrInvalid is returned for a configuration that fails validation.
var ErrInvalid = errors.New("config: invalid configuration")

// Sweep is a complete sweep configuration.
type Sweep struct {
	Trace      string `yaml:"trace"`
	CSVOptions string `yaml:"csv_options"`

	Workers           int   `yaml:"workers"`
	ReportInterval    int64 `yaml:"report_interval"`
	PerObjectOverhead int64 `yaml:"per_object_overhead"`

	// Sizes are byte sizes ("4GiB", "1000000") or fractions of the trace
	// working set ("0.1").
	Sizes      []Size      `yaml:"sizes"`
	Algorithms []Algorithm `yaml:"algorithms"`

	// MetricsAddr, when set, serves Prometheus metrics during the sweep.
	MetricsAddr string `yaml:"metrics_addr"`
	// Output is the path of the Markdown report; empty writes to stdout.
	Output string `yaml:"output"`
}

// Algorithm is one cache configuration to replay.
type Algorithm struct {
	Name   string `yaml:"name"`
	Params string `yaml:"params"`
	// Label distinguishes several entries of the same algorithm in reports.
	Label string `yaml:"label"`
}

// DisplayName returns the label, or the name when no label is set.
func (a Algorithm) DisplayName() string {
	if a.Label != "" {
		return a.Label
	}
	return a.Name
}

// NewDefault returns a configuration with default worker and report
// settings and no trace.
func NewDefault() *Sweep {
	return &Sweep{
		Workers:        runtime.GOMAXPROCS(0),
		ReportInterval: 100_000,
	}
}

// LoadFromFile reads a YAML file over the defaults and validates it.
func LoadFromFile(filename string) (*Sweep, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates it. Unknown keys are
// rejected.
func Parse(data []byte) (*Sweep, error) {
	c := NewDefault()
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFromEnv overrides settings from CACHESIM_* environment variables.
func (c *Sweep) LoadFromEnv() error {
	if val := os.Getenv("CACHESIM_TRACE"); val != "" {
		c.Trace = val
	}
	if val := os.Getenv("CACHESIM_WORKERS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: CACHESIM_WORKERS=%q", ErrInvalid, val)
		}
		c.Workers = n
	}
	if val := os.Getenv("CACHESIM_METRICS_ADDR"); val != "" {
		c.MetricsAddr = val
	}
	return nil
}

// Validate validates the configuration.
func (c *Sweep) Validate() error {
	if c.Trace == "" {
		return fmt.Errorf("%w: trace is required", ErrInvalid)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be greater than 0", ErrInvalid)
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("%w: report_interval must be greater than 0", ErrInvalid)
	}
	if c.PerObjectOverhead < 0 {
		return fmt.Errorf("%w: per_object_overhead must not be negative", ErrInvalid)
	}
	if len(c.Sizes) == 0 {
		return fmt.Errorf("%w: at least one size is required", ErrInvalid)
	}
	if len(c.Algorithms) == 0 {
		return fmt.Errorf("%w: at least one algorithm is required", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Algorithms))
	for i, a := range c.Algorithms {
		if a.Name == "" {
			return fmt.Errorf("%w: algorithm %d has no name", ErrInvalid, i)
		}
		name := a.DisplayName()
		if seen[name] {
			return fmt.Errorf("%w: algorithm %q listed twice; set a label", ErrInvalid, name)
		}
		seen[name] = true
	}
	return nil
}

// Size is a cache size: absolute bytes or a fraction of the working set.
type Size struct {
	Bytes    int64
	Fraction float64
}

// ParseSize accepts humanized byte sizes ("512MiB", "4GB"), plain byte
// counts ("1000000") and working-set fractions in (0, 1] ("0.05").
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		switch {
		case f > 0 && f <= 1 && strings.ContainsAny(s, ".eE"):
			return Size{Fraction: f}, nil
		case f >= 1 && f == float64(int64(f)):
			return Size{Bytes: int64(f)}, nil
		default:
			return Size{}, fmt.Errorf("%w: size %q is neither a fraction in (0, 1] nor a byte count", ErrInvalid, s)
		}
	}
	b, err := humanize.ParseBytes(s)
	if err != nil {
		return Size{}, fmt.Errorf("%w: size %q: %v", ErrInvalid, s, err)
	}
	if b == 0 {
		return Size{}, fmt.Errorf("%w: size %q is zero", ErrInvalid, s)
	}
	return Size{Bytes: int64(b)}, nil
}

// UnmarshalYAML decodes a size from a string or a number.
func (s *Size) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := ParseSize(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Resolve returns the size in bytes for a trace with the given working set.
func (s Size) Resolve(workingSet int64) int64 {
	if s.Bytes > 0 {
		return s.Bytes
	}
	return max(int64(s.Fraction*float64(workingSet)), 1)
}

// String formats the size the way it was written.
func (s Size) String() string {
	if s.Bytes > 0 {
		return humanize.IBytes(uint64(s.Bytes))
	}
	return strconv.FormatFloat(s.Fraction, 'g', -1, 64)
}
