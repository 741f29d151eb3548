package ecdf

import (
	"math"
	"slices"
)

// weighted is one sample of an interpolated curve. Unlike Sample the
// count is fractional, since merging spreads counts across values.
type weighted struct {
	value float64
	count float64
}

// InterpolatedECDF is a piecewise-linear cumulative distribution
// function. Between two adjacent values the curve rises linearly by the
// count attached to the greater value. It supports merging and exact
// area comparison, which the exact step form does not.
type InterpolatedECDF struct {
	samples []weighted
}

// Len returns the total number of observations behind the curve.
func (e *InterpolatedECDF) Len() float64 {
	var n float64
	for _, s := range e.samples {
		n += s.count
	}
	return n
}

// IsEmpty reports whether the curve has no samples.
func (e *InterpolatedECDF) IsEmpty() bool {
	return len(e.samples) == 0
}

func (e *InterpolatedECDF) clone() *InterpolatedECDF {
	return &InterpolatedECDF{samples: slices.Clone(e.samples)}
}

// Quantile returns the value at quantile q, interpolating between
// samples. q below 0 or above 1 maps to -Inf or +Inf. NaN is returned
// for a NaN q or when the curve has too few samples to answer.
func (e *InterpolatedECDF) Quantile(q float64) float64 {
	if math.IsNaN(q) {
		return math.NaN()
	}
	if q < 0 {
		return math.Inf(-1)
	}
	if q > 1 {
		return math.Inf(1)
	}
	if len(e.samples) == 0 {
		return math.NaN()
	}

	rank := e.Len() * q
	lv := e.samples[0].value
	first := e.samples[0].count
	if first > rank {
		if len(e.samples) < 2 {
			return math.NaN()
		}
		// Project backwards along the slope of the first segment.
		m := (e.samples[1].value - lv) / e.samples[1].count
		return lv + (rank-first)*m
	}
	rank -= first
	for _, s := range e.samples[1:] {
		if s.count > rank {
			return lv + (s.value-lv)*(rank/s.count)
		}
		lv = s.value
		rank -= s.count
	}
	return lv
}

// Fraction returns P(X <= v), interpolating between samples. Values
// below the first sample project backwards along the first segment.
// The result is clamped to [0, 1].
func (e *InterpolatedECDF) Fraction(v float64) float64 {
	if math.IsNaN(v) || len(e.samples) == 0 {
		return math.NaN()
	}

	lastV := e.samples[0].value
	lastCount := e.samples[0].count
	sum := lastCount
	i := 1
	var rank float64
	if v < lastV {
		if len(e.samples) < 2 {
			return math.NaN()
		}
		next := e.samples[1]
		sum += next.count
		i = 2
		m := next.count / (next.value - lastV)
		rank = lastCount + (v-lastV)*m
	} else {
		for {
			if i == len(e.samples) {
				rank = sum
				break
			}
			next := e.samples[i]
			sum += next.count
			i++
			if v < next.value {
				m := next.count / (next.value - lastV)
				rank = sum + (v-next.value)*m
				break
			}
			lastV = next.value
		}
	}
	for ; i < len(e.samples); i++ {
		sum += e.samples[i].count
	}
	return min(max(rank/sum, 0), 1)
}

func (e *InterpolatedECDF) values() []float64 {
	vs := make([]float64, len(e.samples))
	for i, s := range e.samples {
		vs[i] = s.value
	}
	return vs
}

// interpolateCounts redistributes the curve's counts over the union of
// its own values and the given extra points, which must be sorted. The
// result covers every value of both with the same total count, letting
// two curves be compared or merged point by point.
func (e *InterpolatedECDF) interpolateCounts(points []float64) []weighted {
	if len(e.samples) == 0 {
		out := make([]weighted, len(points))
		for i, v := range points {
			out[i] = weighted{value: v}
		}
		return out
	}
	if len(points) == 0 {
		return slices.Clone(e.samples)
	}

	out := make([]weighted, 0, len(e.samples)+len(points))
	var pi, si int
	var lowerV float64
	if points[pi] < e.samples[si].value {
		lowerV = points[pi]
		out = append(out, weighted{value: lowerV})
		pi++
	} else {
		lowerV = e.samples[si].value
		out = append(out, e.samples[si])
		si++
	}

	for ; si < len(e.samples); si++ {
		s := e.samples[si]
		if pi < len(points) && points[pi] == lowerV {
			pi++
		}
		start := pi
		for pi < len(points) && points[pi] < s.value {
			pi++
		}
		if between := points[start:pi]; len(between) > 0 {
			// Split the segment's count linearly across the points inside it.
			m := s.count / (s.value - lowerV)
			last := 0.0
			for _, v := range between {
				c := (v - lowerV) * m
				out = append(out, weighted{value: v, count: c - last})
				last = c
			}
			out = append(out, weighted{value: s.value, count: s.count - last})
		} else {
			out = append(out, s)
		}
		lowerV = s.value
	}

	// Points beyond the last sample carry no counts.
	if pi < len(points) {
		if points[pi] > lowerV {
			out = append(out, weighted{value: points[pi]})
		}
		for pi++; pi < len(points); pi++ {
			out = append(out, weighted{value: points[pi]})
		}
	}
	return out
}

// Merge combines two curves into one holding the observations of both.
func (e *InterpolatedECDF) Merge(other *InterpolatedECDF) *InterpolatedECDF {
	if len(e.samples) == 0 {
		return other.clone()
	}
	if len(other.samples) == 0 {
		return e.clone()
	}
	a := e.interpolateCounts(other.values())
	b := other.interpolateCounts(e.values())
	merged := make([]weighted, len(a))
	for i := range a {
		merged[i] = weighted{value: a[i].value, count: a[i].count + b[i].count}
	}
	return &InterpolatedECDF{samples: merged}
}

// AreaDifference calculates the area between the two interpolated curves.
func (e *InterpolatedECDF) AreaDifference(other *InterpolatedECDF) float64 {
	a := cdfPoints(e.interpolateCounts(other.values()), e.Len())
	b := cdfPoints(other.interpolateCounts(e.values()), other.Len())
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var sum float64
	for i := 1; i < len(a) && i < len(b); i++ {
		// Both interpolations cover the same values, so each step is a
		// pair of line segments sharing x coordinates.
		x1, x2 := a[i-1].Value, a[i].Value
		y1a, y2a := a[i-1].Fraction, a[i].Fraction
		y1b, y2b := b[i-1].Fraction, b[i].Fraction
		// Swap so line A starts on top.
		if y1b > y1a {
			y1a, y1b = y1b, y1a
			y2a, y2b = y2b, y2a
		}
		if y2b > y2a {
			// The lines cross in the middle, making two triangles that
			// meet at the intersection point.
			dx := x2 - x1
			ma := (y2a - y1a) / dx
			mb := (y2b - y1b) / dx
			ba := y1a - ma*x1
			bb := y1b - mb*x1
			xInt := (bb - ba) / (ma - mb)
			h1 := y1a - y1b
			h2 := y2b - y2a
			sum += 0.5 * ((xInt-x1)*h1 + (x2-xInt)*h2)
		} else {
			dx := x2 - x1
			dy1 := y1a - y1b
			dy2 := y2a - y2b
			sum += 0.5 * dx * (dy1 + dy2)
		}
	}
	return sum
}

func cdfPoints(samples []weighted, total float64) []Point {
	points := make([]Point, len(samples))
	var sum float64
	for i, s := range samples {
		sum += s.count
		points[i] = Point{Value: s.value, Fraction: sum / total}
	}
	return points
}
