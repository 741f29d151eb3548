package ecdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestECDF_Msgpack(t *testing.T) {
	t.Parallel()

	t.Run("wire format is an array of pairs", func(t *testing.T) {
		t.Parallel()
		x := ECDF{samples: []Sample{{1.5, 3}}}
		b, err := msgpack.Marshal(&x)
		require.NoError(t, err)
		assert.Equal(t, []byte{
			0x91,                                                 // array, 1 element
			0x92,                                                 // array, 2 elements
			0xcb, 0x3f, 0xf8, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // float64 1.5
			0x03, // uint 3
		}, b)
	})

	t.Run("roundtrip", func(t *testing.T) {
		t.Parallel()
		x := FromValues([]float64{1, 1, 3, 3, 2, 10, 3, 2, 1})
		b, err := msgpack.Marshal(x)
		require.NoError(t, err)

		var got ECDF
		require.NoError(t, msgpack.Unmarshal(b, &got))
		assert.Equal(t, x.samples, got.samples)
	})

	t.Run("empty roundtrip", func(t *testing.T) {
		t.Parallel()
		b, err := msgpack.Marshal(&ECDF{})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x90}, b)

		var got ECDF
		require.NoError(t, msgpack.Unmarshal(b, &got))
		assert.True(t, got.IsEmpty())
	})

	t.Run("rejects malformed pairs", func(t *testing.T) {
		t.Parallel()
		var got ECDF
		err := msgpack.Unmarshal([]byte{0x91, 0x91, 0x01}, &got)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pair")
	})
}

func TestInterpolatedECDF_Msgpack(t *testing.T) {
	t.Parallel()

	a := FromValues([]float64{0.0, 1.0, 2.0, 3.0, 4.0}).Interpolate()
	b := FromValues([]float64{8.0, 8.0, 9.0}).Interpolate()
	merged := a.Merge(b)

	raw, err := msgpack.Marshal(merged)
	require.NoError(t, err)

	var got InterpolatedECDF
	require.NoError(t, msgpack.Unmarshal(raw, &got))
	assert.Equal(t, merged.samples, got.samples)
	assert.Equal(t, merged.Len(), got.Len())
}
