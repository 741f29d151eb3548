// Package ecdf collects empirical cumulative distribution functions.
//
// An ECDF records every distinct observed value together with the number
// of times it was observed. The representation stays exact until Compact
// is called, which trades resolution for space by folding low-information
// points into their neighbors.
package ecdf

import (
	"math"
	"slices"
	"sort"
)

// Sample is one distinct observed value and the number of times it occurred.
type Sample struct {
	Value float64
	Count uint64
}

// Point is one point on a CDF curve: Fraction = P(X <= Value).
type Point struct {
	Value    float64
	Fraction float64
}

// ECDF is an exact empirical cumulative distribution function. The zero
// value is an empty distribution ready for use.
type ECDF struct {
	samples []Sample
}

// FromValues builds an ECDF from unsorted observations.
func FromValues(values []float64) *ECDF {
	vs := slices.Clone(values)
	sort.Float64s(vs)
	var samples []Sample
	for i := 0; i < len(vs); {
		j := i + 1
		for j < len(vs) && vs[j] == vs[i] {
			j++
		}
		samples = append(samples, Sample{Value: vs[i], Count: uint64(j - i)})
		i = j
	}
	return &ECDF{samples: samples}
}

// Clear removes all samples collected so far.
func (e *ECDF) Clear() {
	e.samples = e.samples[:0]
}

// Len returns the total number of observations.
func (e *ECDF) Len() uint64 {
	var n uint64
	for _, s := range e.samples {
		n += s.Count
	}
	return n
}

// IsEmpty reports whether the ECDF has no samples.
func (e *ECDF) IsEmpty() bool {
	return len(e.samples) == 0
}

// Stats calculates the sample mean, standard deviation, and count.
func (e *ECDF) Stats() (mean, stddev float64, count uint64) {
	var sum float64
	for _, s := range e.samples {
		sum += s.Value * float64(s.Count)
		count += s.Count
	}
	mean = sum / float64(count)
	sum = 0
	for _, s := range e.samples {
		err := s.Value - mean
		sum += err * err * float64(s.Count)
	}
	stddev = math.Sqrt(sum / (float64(count) - 1))
	return mean, stddev, count
}

// Add records a single observation.
func (e *ECDF) Add(value float64) {
	e.AddN(value, 1)
}

// AddN records an observation seen count times.
func (e *ECDF) AddN(value float64, count uint64) {
	i := sort.Search(len(e.samples), func(i int) bool {
		return e.samples[i].Value >= value
	})
	if i < len(e.samples) && e.samples[i].Value == value {
		e.samples[i].Count += count
		return
	}
	e.samples = slices.Insert(e.samples, i, Sample{Value: value, Count: count})
}

// MergeSorted folds a value-ordered sample stream into the ECDF.
// Counts of equal values are added together.
func (e *ECDF) MergeSorted(samples []Sample) {
	i := 0
	n := len(e.samples)
	for _, s := range samples {
		for {
			if i == n {
				e.samples = append(e.samples, s)
				n++
				break
			}
			if s.Value < e.samples[i].Value {
				e.samples = slices.Insert(e.samples, i, s)
				n++
				break
			}
			if s.Value == e.samples[i].Value {
				e.samples[i].Count += s.Count
				break
			}
			i++
		}
		i++
	}
}

// Compact reduces the ECDF to at most target distinct values.
func (e *ECDF) Compact(target int) {
	e.CompactIf(target, target)
}

// CompactIf reduces the ECDF to at most target distinct values, but only
// once it holds more than over values. Dropped points fold their counts
// into the next greater sample, so Len is preserved. The minimum usable
// target is 3: smaller targets are treated as 3.
func (e *ECDF) CompactIf(over, target int) {
	if target < 3 {
		target = 3
	}
	n := len(e.samples)
	if n <= over || n <= target {
		return
	}

	// Error of dropping each interior point, judged against a linear
	// interpolation between its neighbors. errs[i] belongs to samples[i+1].
	errs := make([]float64, 0, n-1)
	x0 := e.samples[0].Value
	x1, y1 := e.samples[1].Value, e.samples[1].Count
	for i := 2; i < n; i++ {
		x2, y2 := e.samples[i].Value, e.samples[i].Count
		y := (x1 - x0) * float64(y1+y2) / (x2 - x0)
		errs = append(errs, math.Abs(float64(y1)-y))
		x0 = x1
		x1, y1 = x2, y2
	}

	for n > target {
		best := 0
		bestErr := errs[0]
		if bestErr > 0 {
			for i, err := range errs[1:] {
				if err < bestErr {
					best = i + 1
					if err == 0 {
						break
					}
					bestErr = err
				}
			}
		}

		errs = slices.Delete(errs, best, best+1)
		c := e.samples[best+1].Count
		e.samples = slices.Delete(e.samples, best+1, best+2)
		e.samples[best+1].Count += c
		n--

		// Recompute the errors of the two points next to the removed one.
		if best > 0 {
			i := best - 1
			x0 = e.samples[i].Value
			x1, y1 = e.samples[best].Value, e.samples[best].Count
			x2, y2 := e.samples[best+1].Value, e.samples[best+1].Count
			y := (x1 - x0) * float64(y1+y2) / (x2 - x0)
			errs[i] = math.Abs(float64(y1) - y)
			x0 = x1
			x1, y1 = x2, y2
		} else {
			x0 = e.samples[0].Value
			x1, y1 = e.samples[1].Value, e.samples[1].Count
		}
		if best < len(errs) {
			x2, y2 := e.samples[best+2].Value, e.samples[best+2].Count
			y := (x1 - x0) * float64(y1+y2) / (x2 - x0)
			errs[best] = math.Abs(float64(y1) - y)
		}
	}
}

// Points returns every point on the CDF curve in ascending value order.
func (e *ECDF) Points() []Point {
	total := float64(e.Len())
	points := make([]Point, len(e.samples))
	var sum uint64
	for i, s := range e.samples {
		sum += s.Count
		points[i] = Point{Value: s.Value, Fraction: float64(sum) / total}
	}
	return points
}

// zipPoint is a point of comparison between two CDF curves:
// a = P(A <= v), b = P(B <= v).
type zipPoint struct {
	v, a, b float64
}

// zip walks two CDF curves in lockstep, emitting one point per distinct
// value across both. A curve that has ended holds at probability 1.
func zip(a, b *ECDF) []zipPoint {
	pa, pb := a.Points(), b.Points()
	out := make([]zipPoint, 0, len(pa)+len(pb))
	var i, j int
	var ca, cb float64
	for i < len(pa) && j < len(pb) {
		av, bv := pa[i].Value, pb[j].Value
		var v float64
		if av <= bv {
			v = av
			ca = pa[i].Fraction
			i++
		} else {
			v = bv
		}
		if av >= bv {
			cb = pb[j].Fraction
			j++
		}
		out = append(out, zipPoint{v: v, a: ca, b: cb})
	}
	for ; i < len(pa); i++ {
		out = append(out, zipPoint{v: pa[i].Value, a: pa[i].Fraction, b: 1})
	}
	for ; j < len(pb); j++ {
		out = append(out, zipPoint{v: pb[j].Value, a: 1, b: pb[j].Fraction})
	}
	return out
}

// AreaDifference calculates the area between the two ECDF step curves.
func (e *ECDF) AreaDifference(other *ECDF) float64 {
	points := zip(e, other)
	if len(points) == 0 {
		return 0
	}
	var sum float64
	last := points[0]
	for _, now := range points[1:] {
		// Between last.v and now.v both curves are flat, so the gap is a
		// rectangle of width (now.v - last.v) and height |a - b| at last.
		sum += (now.v - last.v) * math.Abs(last.a-last.b)
		last = now
	}
	return sum
}

// DrawnFromDistribution runs a one-sample Kolmogorov-Smirnov test against
// a reference distribution given by its CDF. It returns the confidence
// level that the samples were drawn from that distribution.
func (e *ECDF) DrawnFromDistribution(cdf func(float64) float64) float64 {
	total := float64(e.Len())
	var maxDiff, p float64
	var sum uint64
	for _, s := range e.samples {
		pDist := cdf(s.Value)
		if diff := math.Abs(pDist - p); diff > maxDiff {
			maxDiff = diff
		}
		sum += s.Count
		p = float64(sum) / total
		if diff := math.Abs(pDist - p); diff > maxDiff {
			maxDiff = diff
		}
	}
	return kprob(maxDiff * math.Sqrt(total))
}

// DrawnFromSameDistributionAs runs a two-sample Kolmogorov-Smirnov test.
// It returns the confidence level that both sample sets were drawn from
// the same underlying distribution.
func (e *ECDF) DrawnFromSameDistributionAs(other *ECDF) float64 {
	var maxDiff float64
	for _, p := range zip(e, other) {
		if diff := math.Abs(p.a - p.b); diff > maxDiff {
			maxDiff = diff
		}
	}
	n := e.Len()
	m := other.Len()
	z := maxDiff * math.Sqrt(float64(n*m)/float64(n+m))
	return kprob(z)
}

// Interpolate converts the step curve into a piecewise-linear curve.
func (e *ECDF) Interpolate() *InterpolatedECDF {
	samples := make([]weighted, len(e.samples))
	for i, s := range e.samples {
		samples[i] = weighted{value: s.Value, count: float64(s.Count)}
	}
	return &InterpolatedECDF{samples: samples}
}
