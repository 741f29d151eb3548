package ecdf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECDF_FromValues(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		x := FromValues(nil)
		assert.Empty(t, x.samples)
		assert.Equal(t, uint64(0), x.Len())
		assert.True(t, x.IsEmpty())
	})

	t.Run("counts runs of equal values", func(t *testing.T) {
		t.Parallel()
		x := FromValues([]float64{1, 1, 2, 3, 3, 3})
		assert.Equal(t, []Sample{{1, 2}, {2, 1}, {3, 3}}, x.samples)
	})

	t.Run("sorts unsorted input", func(t *testing.T) {
		t.Parallel()
		x := FromValues([]float64{1, 1, 3, 3, 2, 10, 3, 2, 1})
		assert.Equal(t, []Sample{{1, 3}, {2, 2}, {3, 3}, {10, 1}}, x.samples)
		assert.Equal(t, uint64(9), x.Len())
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		t.Parallel()
		values := []float64{3, 1, 2}
		FromValues(values)
		assert.Equal(t, []float64{3, 1, 2}, values)
	})
}

func TestECDF_Add(t *testing.T) {
	t.Parallel()

	t.Run("grows from empty", func(t *testing.T) {
		t.Parallel()
		var x ECDF
		assert.Empty(t, x.samples)
		assert.Equal(t, uint64(0), x.Len())

		x.Add(3)
		assert.Equal(t, []Sample{{3, 1}}, x.samples)
		assert.Equal(t, uint64(1), x.Len())

		x.AddN(1, 2)
		assert.Equal(t, []Sample{{1, 2}, {3, 1}}, x.samples)
		assert.Equal(t, uint64(3), x.Len())

		x.Add(5)
		assert.Equal(t, []Sample{{1, 2}, {3, 1}, {5, 1}}, x.samples)
		assert.Equal(t, uint64(4), x.Len())
	})

	t.Run("inserts at the beginning", func(t *testing.T) {
		t.Parallel()
		x := ECDF{samples: []Sample{{1, 1}, {3, 1}, {5, 1}}}
		x.Add(0)
		assert.Equal(t, []Sample{{0, 1}, {1, 1}, {3, 1}, {5, 1}}, x.samples)
		x.Add(0)
		assert.Equal(t, []Sample{{0, 2}, {1, 1}, {3, 1}, {5, 1}}, x.samples)
		assert.Equal(t, uint64(5), x.Len())
	})

	t.Run("inserts at the end", func(t *testing.T) {
		t.Parallel()
		x := ECDF{samples: []Sample{{1, 1}, {3, 1}, {5, 1}}}
		x.Add(6)
		assert.Equal(t, []Sample{{1, 1}, {3, 1}, {5, 1}, {6, 1}}, x.samples)
		x.Add(6)
		assert.Equal(t, []Sample{{1, 1}, {3, 1}, {5, 1}, {6, 2}}, x.samples)
		assert.Equal(t, uint64(5), x.Len())
	})

	t.Run("inserts in the middle", func(t *testing.T) {
		t.Parallel()
		x := ECDF{samples: []Sample{{1, 1}, {3, 2}, {5, 2}}}
		x.Add(2)
		assert.Equal(t, []Sample{{1, 1}, {2, 1}, {3, 2}, {5, 2}}, x.samples)
		x.Add(2)
		assert.Equal(t, []Sample{{1, 1}, {2, 2}, {3, 2}, {5, 2}}, x.samples)
		assert.Equal(t, uint64(7), x.Len())
	})
}

func TestECDF_Clear(t *testing.T) {
	t.Parallel()
	x := FromValues([]float64{1, 2, 3})
	require.Equal(t, uint64(3), x.Len())
	x.Clear()
	assert.True(t, x.IsEmpty())
	assert.Equal(t, uint64(0), x.Len())
}

func TestECDF_Stats(t *testing.T) {
	t.Parallel()
	x := FromValues([]float64{1, 1, 2, 3, 5, 8})
	mean, stddev, count := x.Stats()
	assert.InDelta(t, 3.33333, mean, 0.00001)
	assert.InDelta(t, 2.73252, stddev, 0.00001)
	assert.Equal(t, uint64(6), count)
}

func TestECDF_MergeSorted(t *testing.T) {
	t.Parallel()

	t.Run("into empty", func(t *testing.T) {
		t.Parallel()
		var x ECDF
		x.MergeSorted(nil)
		assert.Equal(t, uint64(0), x.Len())

		x.MergeSorted([]Sample{{1, 1}, {2, 1}, {3, 1}})
		assert.Equal(t, []Sample{{1, 1}, {2, 1}, {3, 1}}, x.samples)
		assert.Equal(t, uint64(3), x.Len())
	})

	t.Run("into non-empty", func(t *testing.T) {
		t.Parallel()
		y := ECDF{samples: []Sample{{1, 1}, {2, 1}, {3, 1}}}
		y.MergeSorted(nil)
		assert.Equal(t, uint64(3), y.Len())

		y.MergeSorted([]Sample{{0, 1}})
		assert.Equal(t, []Sample{{0, 1}, {1, 1}, {2, 1}, {3, 1}}, y.samples)
		assert.Equal(t, uint64(4), y.Len())

		y.MergeSorted([]Sample{{2, 2}, {4, 1}, {10, 2}})
		assert.Equal(t, []Sample{{0, 1}, {1, 1}, {2, 3}, {3, 1}, {4, 1}, {10, 2}}, y.samples)
		assert.Equal(t, uint64(9), y.Len())
	})
}

func TestECDF_Compact(t *testing.T) {
	t.Parallel()

	t.Run("samples in a straight line", func(t *testing.T) {
		t.Parallel()
		x := ECDF{samples: []Sample{{1, 1}, {2, 1}, {3, 1}, {4, 1}, {5, 1}}}
		x.Compact(4)
		assert.Equal(t, []Sample{{1, 1}, {3, 2}, {4, 1}, {5, 1}}, x.samples)
		assert.Equal(t, uint64(5), x.Len())
	})

	t.Run("minimum size is three", func(t *testing.T) {
		t.Parallel()
		x := ECDF{samples: []Sample{{1, 1}, {2, 1}, {3, 1}, {4, 1}, {5, 1}}}
		x.Compact(1)
		assert.Equal(t, []Sample{{1, 1}, {4, 3}, {5, 1}}, x.samples)
		assert.Equal(t, uint64(5), x.Len())
	})

	t.Run("no-op when already small enough", func(t *testing.T) {
		t.Parallel()
		x := ECDF{samples: []Sample{{1, 1}, {2, 1}, {3, 1}, {4, 1}, {5, 1}}}
		x.Compact(5)
		assert.Equal(t, []Sample{{1, 1}, {2, 1}, {3, 1}, {4, 1}, {5, 1}}, x.samples)
		x.Compact(100)
		assert.Equal(t, []Sample{{1, 1}, {2, 1}, {3, 1}, {4, 1}, {5, 1}}, x.samples)
	})

	t.Run("below threshold", func(t *testing.T) {
		t.Parallel()
		x := ECDF{samples: []Sample{{1, 1}, {2, 1}, {3, 1}, {4, 1}, {5, 1}}}
		x.CompactIf(5, 3)
		assert.Len(t, x.samples, 5)
		x.CompactIf(4, 3)
		assert.Len(t, x.samples, 3)
	})

	t.Run("non-zero errors", func(t *testing.T) {
		t.Parallel()
		x := ECDF{samples: []Sample{{1, 1}, {2, 1}, {3, 2}, {4, 4}, {5, 10}}}
		x.Compact(4)
		assert.Equal(t, []Sample{{1, 1}, {3, 3}, {4, 4}, {5, 10}}, x.samples)
		assert.Equal(t, uint64(18), x.Len())

		x = ECDF{samples: []Sample{{1, 10}, {2, 4}, {3, 3}, {4, 2}, {5, 1}, {25, 10}, {100, 100}}}
		before := x.Len()
		x.Compact(4)
		assert.Equal(t, []Sample{{1, 10}, {4, 9}, {25, 11}, {100, 100}}, x.samples)
		assert.Equal(t, before, x.Len())
	})
}

func TestECDF_Points(t *testing.T) {
	t.Parallel()
	x := FromValues([]float64{1, 2, 2, 3})
	assert.Equal(t, []Point{{1, 0.25}, {2, 0.75}, {3, 1.0}}, x.Points())
}

func TestECDF_Zip(t *testing.T) {
	t.Parallel()

	t.Run("interleaved values", func(t *testing.T) {
		t.Parallel()
		a := FromValues([]float64{1, 3, 3, 5})
		b := FromValues([]float64{2, 2, 3, 4})
		assert.Equal(t, []zipPoint{
			{1, 0.25, 0.00},
			{2, 0.25, 0.50},
			{3, 0.75, 0.75},
			{4, 0.75, 1.00},
			{5, 1.00, 1.00},
		}, zip(a, b))
	})

	t.Run("one side empty", func(t *testing.T) {
		t.Parallel()
		empty := &ECDF{}
		not := FromValues([]float64{1, 2})
		assert.Equal(t, []zipPoint{{1, 1.0, 0.5}, {2, 1.0, 1.0}}, zip(empty, not))
		assert.Equal(t, []zipPoint{{1, 0.5, 1.0}, {2, 1.0, 1.0}}, zip(not, empty))
	})

	t.Run("with itself", func(t *testing.T) {
		t.Parallel()
		a := FromValues([]float64{1, 2})
		assert.Equal(t, []zipPoint{{1, 0.5, 0.5}, {2, 1.0, 1.0}}, zip(a, a))
	})

	t.Run("no overlap", func(t *testing.T) {
		t.Parallel()
		a := FromValues([]float64{1, 2})
		b := FromValues([]float64{3, 4})
		assert.Equal(t, []zipPoint{
			{1, 0.5, 0.0},
			{2, 1.0, 0.0},
			{3, 1.0, 0.5},
			{4, 1.0, 1.0},
		}, zip(a, b))
	})
}

func TestECDF_AreaDifference(t *testing.T) {
	t.Parallel()
	a := FromValues([]float64{1, 2, 3, 4})
	b := FromValues([]float64{1, 3, 3, 4})
	c := FromValues([]float64{4, 4, 4, 4})
	assert.Equal(t, 0.0, a.AreaDifference(a))
	assert.Equal(t, 0.25, a.AreaDifference(b))
	assert.Equal(t, 1.5, a.AreaDifference(c))

	d := FromValues([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	e := FromValues([]float64{2, 4, 6, 8})
	assert.Equal(t, 0.5, d.AreaDifference(e))
	assert.Equal(t, 0.5, e.AreaDifference(d))
}

// normalCDF returns the CDF of a normal distribution at x.
func normalCDF(mean, stddev, x float64) float64 {
	return 0.5 * (1 + math.Erf((x-mean)/(stddev*math.Sqrt2)))
}

func TestECDF_DrawnFromDistribution(t *testing.T) {
	t.Parallel()
	x := FromValues([]float64{1, 2, 3, 4, 5})
	mean, stddev, _ := x.Stats()
	p := x.DrawnFromDistribution(func(v float64) float64 {
		return normalCDF(mean, stddev, v)
	})
	assert.Greater(t, p, 0.99)
}

func TestECDF_DrawnFromSameDistribution(t *testing.T) {
	t.Parallel()

	t.Run("matches itself", func(t *testing.T) {
		t.Parallel()
		x := FromValues([]float64{1, 2, 3, 4, 5})
		assert.Equal(t, 1.0, x.DrawnFromSameDistributionAs(x))
	})

	t.Run("rejects a disjoint sample", func(t *testing.T) {
		t.Parallel()
		x := FromValues([]float64{1, 2, 3, 4, 5})
		y := FromValues([]float64{11, 12, 13, 14, 15})
		p := x.DrawnFromSameDistributionAs(y)
		assert.Less(t, p, 0.02)
	})
}
