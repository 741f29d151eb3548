package ecdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNint(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   float64
		want int64
	}{
		{0.0, 0},
		{1.0, 1},
		{1.1, 1},
		{1.5, 2},
		{1.9, 2},
		{2.1, 2},
		{2.5, 2},
		{2.50001, 3},
		{2.6, 3},
		{-1.0, -1},
		{-1.1, -1},
		{-1.5, -2},
		{-1.9, -2},
		{-2.1, -2},
		{-2.5, -2},
		{-2.50001, -3},
		{-2.6, -3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, nint(tc.in), "nint(%v)", tc.in)
	}
}

func TestKprob(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, kprob(0.0))
	assert.Equal(t, 1.0, kprob(0.19))
	assert.Equal(t, 0.0, kprob(7.0))

	// Q(1.0) = 2*(e^-2 - e^-8 + e^-18).
	assert.InDelta(t, 0.2699996716773798, kprob(1.0), 1e-12)
	assert.InDelta(t, 0.9639, kprob(0.5), 0.0005)

	// Decreasing in z.
	assert.Greater(t, kprob(0.5), kprob(1.0))
	assert.Greater(t, kprob(1.0), kprob(2.0))
	assert.Greater(t, kprob(6.8), 0.0)
}
