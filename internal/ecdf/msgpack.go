package ecdf

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Both curve types travel as MessagePack arrays of [value, count] pairs,
// with nothing else around them. Counts are integers for ECDF and floats
// for InterpolatedECDF.

var (
	_ msgpack.CustomEncoder = (*ECDF)(nil)
	_ msgpack.CustomDecoder = (*ECDF)(nil)
	_ msgpack.CustomEncoder = (*InterpolatedECDF)(nil)
	_ msgpack.CustomDecoder = (*InterpolatedECDF)(nil)
)

func (e *ECDF) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(len(e.samples)); err != nil {
		return err
	}
	for _, s := range e.samples {
		if err := enc.EncodeArrayLen(2); err != nil {
			return err
		}
		if err := enc.EncodeFloat64(s.Value); err != nil {
			return err
		}
		if err := enc.EncodeUint(s.Count); err != nil {
			return err
		}
	}
	return nil
}

func (e *ECDF) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n <= 0 {
		e.samples = nil
		return nil
	}
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		if err := decodePairLen(dec, i); err != nil {
			return err
		}
		v, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		c, err := dec.DecodeUint64()
		if err != nil {
			return err
		}
		samples = append(samples, Sample{Value: v, Count: c})
	}
	e.samples = samples
	return nil
}

func (e *InterpolatedECDF) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(len(e.samples)); err != nil {
		return err
	}
	for _, s := range e.samples {
		if err := enc.EncodeArrayLen(2); err != nil {
			return err
		}
		if err := enc.EncodeFloat64(s.value); err != nil {
			return err
		}
		if err := enc.EncodeFloat64(s.count); err != nil {
			return err
		}
	}
	return nil
}

func (e *InterpolatedECDF) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n <= 0 {
		e.samples = nil
		return nil
	}
	samples := make([]weighted, 0, n)
	for i := 0; i < n; i++ {
		if err := decodePairLen(dec, i); err != nil {
			return err
		}
		v, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		c, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		samples = append(samples, weighted{value: v, count: c})
	}
	e.samples = samples
	return nil
}

func decodePairLen(dec *msgpack.Decoder, i int) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("sample %d: expected a [value, count] pair, got array of length %d", i, n)
	}
	return nil
}
