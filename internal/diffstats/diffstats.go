// Package diffstats measures the accuracy cost of the histogram and cluster
// encodings by comparing stored samples against the full-resolution
// distributions recorded alongside them.
package diffstats

import (
	"context"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/corestat/corestat/internal/ecdf"
	"github.com/corestat/corestat/internal/histogram"
	"github.com/corestat/corestat/internal/store"
)

// A MinMeanMax accumulates error samples and reports their spread. The
// deviations are one-sided: the low bound uses only samples at or below the
// mean, the high bound only samples at or above it, which keeps a skewed
// error distribution from hiding its tail. The zero value is ready to use.
type MinMeanMax struct {
	samples []float64
	sum     float64
}

func (m *MinMeanMax) Update(x float64) {
	m.samples = append(m.samples, x)
	m.sum += x
}

func (m *MinMeanMax) Count() int {
	return len(m.samples)
}

func (m *MinMeanMax) Min() float64 {
	min := 0.0
	for i, x := range m.samples {
		if i == 0 || x < min {
			min = x
		}
	}
	return min
}

func (m *MinMeanMax) Max() float64 {
	max := 0.0
	for i, x := range m.samples {
		if i == 0 || x > max {
			max = x
		}
	}
	return max
}

func (m *MinMeanMax) Mean() float64 {
	if len(m.samples) == 0 {
		return 0
	}
	return m.sum / float64(len(m.samples))
}

func (m *MinMeanMax) loStdev(mean float64) float64 {
	if len(m.samples) == 0 {
		return 0
	}
	sum := 0.0
	count := 0
	for _, x := range m.samples {
		if x > mean {
			continue
		}
		diff := mean - x
		sum += diff * diff
		count++
	}
	if count == 0 {
		return 0
	}
	return mean - math.Sqrt(sum/float64(count))
}

func (m *MinMeanMax) hiStdev(mean float64) float64 {
	if len(m.samples) == 0 {
		return 0
	}
	sum := 0.0
	count := 0
	for _, x := range m.samples {
		if x < mean {
			continue
		}
		diff := x - mean
		sum += diff * diff
		count++
	}
	if count == 0 {
		return 0
	}
	return mean + math.Sqrt(sum/float64(count))
}

// A Summary is one rendered view of the accumulated errors.
type Summary struct {
	Min   float64
	Lo    float64 // mean minus the low-side deviation
	Mean  float64
	Hi    float64 // mean plus the high-side deviation
	Max   float64
	Count int
}

func (m *MinMeanMax) Summarize() Summary {
	mean := m.Mean()
	return Summary{
		Min:   m.Min(),
		Lo:    m.loStdev(mean),
		Mean:  mean,
		Hi:    m.hiStdev(mean),
		Max:   m.Max(),
		Count: len(m.samples),
	}
}

func (m *MinMeanMax) String() string {
	s := m.Summarize()
	return fmt.Sprintf("%.4f, %.4f, %.4f, %.4f, %.4f, %d",
		s.Min, s.Lo, s.Mean, s.Hi, s.Max, s.Count)
}

// Histograms reports how much accuracy the native histogram encoding lost,
// comparing every stored histogram against the full-resolution sample
// recorded at the same instant.
func Histograms(ctx context.Context, s *store.Store) (*MinMeanMax, error) {
	rows, err := s.HistogramRows(ctx)
	if err != nil {
		return nil, err
	}
	m := &MinMeanMax{}
	for _, row := range rows {
		var full ecdf.ECDF
		if err := msgpack.Unmarshal(row.Full, &full); err != nil {
			return nil, fmt.Errorf("failed to decode full sample at %s: %w", row.Timestamp, err)
		}
		h, err := histogram.Parse(row.Histogram)
		if err != nil {
			return nil, err
		}
		other, err := histogram.ToECDF(h)
		if err != nil {
			return nil, fmt.Errorf("failed to convert histogram at %s: %w", row.Timestamp, err)
		}
		m.Update(full.Interpolate().AreaDifference(other))
	}
	return m, nil
}

// Clusters reports the further loss from normalization, comparing each
// full-resolution sample against the centroid its histogram was folded into.
// It also returns the number of clusters in the store.
func Clusters(ctx context.Context, s *store.Store) (*MinMeanMax, int64, error) {
	count, err := s.CountClusters(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.CentroidRows(ctx)
	if err != nil {
		return nil, 0, err
	}
	m := &MinMeanMax{}
	for _, row := range rows {
		var full ecdf.ECDF
		if err := msgpack.Unmarshal(row.Full, &full); err != nil {
			return nil, 0, fmt.Errorf("failed to decode full sample at %s: %w", row.Timestamp, err)
		}
		var centroid ecdf.InterpolatedECDF
		if err := msgpack.Unmarshal(row.Centroid, &centroid); err != nil {
			return nil, 0, fmt.Errorf("failed to decode centroid at %s: %w", row.Timestamp, err)
		}
		m.Update(full.Interpolate().AreaDifference(&centroid))
	}
	return m, count, nil
}
