// Package histogram accumulates CSV value columns into Prometheus native
// histograms and converts native histograms into interpolated ECDFs.
package histogram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Config holds the settings for a histogram Builder.
type Config struct {
	// Name is the metric name, stored as the __name__ label.
	Name string

	// Label is the name of the per-column label. When empty the input
	// must have exactly one value column named "value" and the series
	// carries only __name__. When set, every column after the
	// timestamp pair becomes its own series with Label set to the
	// column name.
	Label string

	// Factor is the native histogram bucket growth factor.
	Factor float64
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("metric name is required")
	}
	if c.Factor <= 1 {
		return errors.New("bucket factor must be greater than 1")
	}
	return nil
}

// Series is one labeled histogram being accumulated.
type Series struct {
	// Labels is the canonical JSON encoding of the series label set.
	// Key order is deterministic, so equal label sets encode to equal
	// bytes and can be used as a lookup key.
	Labels []byte

	hist prometheus.Histogram
}

// Snapshot returns the current contents of the series as a protobuf
// histogram.
func (s *Series) Snapshot() (*dto.Histogram, error) {
	var m dto.Metric
	if err := s.hist.Write(&m); err != nil {
		return nil, fmt.Errorf("failed to snapshot histogram: %w", err)
	}
	return m.Histogram, nil
}

// Builder accumulates CSV rows into one native histogram per series.
//
// The first two columns of the input are the timestamp pair
// (timestamp_secs, timestamp_nanos) and are ignored here; every later
// column is a value column.
type Builder struct {
	cfg    Config
	series []*Series
}

// New builds the series set for a CSV header.
func New(cfg Config, header []string) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(header) < 3 {
		return nil, fmt.Errorf("expected at least 3 columns, got %d", len(header))
	}

	b := &Builder{cfg: cfg}
	if cfg.Label == "" {
		if header[2] != "value" {
			return nil, fmt.Errorf("expected third column to be %q, got %q", "value", header[2])
		}
		s, err := newSeries(cfg, map[string]string{"__name__": cfg.Name})
		if err != nil {
			return nil, err
		}
		b.series = append(b.series, s)
		return b, nil
	}
	for _, column := range header[2:] {
		s, err := newSeries(cfg, map[string]string{"__name__": cfg.Name, cfg.Label: column})
		if err != nil {
			return nil, err
		}
		b.series = append(b.series, s)
	}
	return b, nil
}

func newSeries(cfg Config, labelSet map[string]string) (*Series, error) {
	labels, err := json.Marshal(labelSet)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal label set: %w", err)
	}
	return &Series{
		Labels: labels,
		hist: prometheus.NewHistogram(prometheus.HistogramOpts{
			NativeHistogramBucketFactor: cfg.Factor,
		}),
	}, nil
}

// Series returns the accumulated series in input column order.
func (b *Builder) Series() []*Series {
	return b.series
}

// Observe adds one CSV record, feeding each value column into its series.
func (b *Builder) Observe(record []string) error {
	if len(record) < len(b.series)+2 {
		return fmt.Errorf("expected %d columns, got %d", len(b.series)+2, len(record))
	}
	for i, s := range b.series {
		v, err := strconv.ParseFloat(record[i+2], 64)
		if err != nil {
			return fmt.Errorf("failed to parse value %q: %w", record[i+2], err)
		}
		s.hist.Observe(v)
	}
	return nil
}
