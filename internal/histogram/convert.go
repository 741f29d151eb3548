package histogram

import (
	"errors"
	"fmt"
	"math"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"

	"github.com/corestat/corestat/internal/ecdf"
)

// Parse decodes a histogram serialized with proto.Marshal, the form the
// corestat tools store in the database.
func Parse(data []byte) (*dto.Histogram, error) {
	var h dto.Histogram
	if err := proto.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse histogram: %w", err)
	}
	return &h, nil
}

// upperBound returns the upper boundary of the native histogram bucket
// with the given index. Boundaries follow the Prometheus exposition
// model: bucket idx covers (upperBound(idx-1), upperBound(idx)], with
// base 2^(2^-schema). The bucket just below the overflow bucket reports
// math.MaxFloat64 instead of +Inf so that only actual observations of
// +/-Inf land in the overflow bucket.
func upperBound(idx, schema int32) float64 {
	if schema < 0 {
		exp := int(idx) << -schema
		if exp == 1024 {
			return math.MaxFloat64
		}
		return math.Ldexp(1, exp)
	}
	fracIdx := idx & ((1 << schema) - 1)
	frac := math.Exp2(float64(fracIdx)/math.Exp2(float64(schema)) - 1)
	exp := int(idx>>schema) + 1
	if frac == 0.5 && exp == 1025 {
		return math.MaxFloat64
	}
	return math.Ldexp(frac, exp)
}

// positiveCounts expands the positive bucket spans into ECDF samples in
// ascending value order. Every span contributes a zero-count sample at
// its lower edge, then one sample per bucket at the bucket's upper bound
// carrying the bucket count, so the interpolated CDF rises linearly
// across each bucket and stays flat across span gaps.
func positiveCounts(spans []*dto.BucketSpan, deltas []int64, schema int32) []ecdf.Sample {
	out := make([]ecdf.Sample, 0, len(deltas)+len(spans))
	var lastSchemaIdx int32
	var bucketSum int64
	bucketIdx := 0
	for _, span := range spans {
		startSchemaIdx := lastSchemaIdx + span.GetOffset()
		endSchemaIdx := startSchemaIdx + int32(span.GetLength())
		lastSchemaIdx = endSchemaIdx

		out = append(out, ecdf.Sample{Value: upperBound(startSchemaIdx-1, schema)})
		for schemaIdx := startSchemaIdx; schemaIdx < endSchemaIdx; schemaIdx++ {
			bucketSum += deltas[bucketIdx]
			bucketIdx++
			out = append(out, ecdf.Sample{Value: upperBound(schemaIdx, schema), Count: uint64(bucketSum)})
		}
	}
	return out
}

// negativeCounts mirrors positiveCounts for the negative bucket spans.
// Negative bucket idx covers [-upperBound(idx), -upperBound(idx-1)), so
// spans are walked in reverse and each bucket's count lands on its edge
// closest to zero, keeping the output in ascending value order.
func negativeCounts(spans []*dto.BucketSpan, deltas []int64, schema int32) []ecdf.Sample {
	var lastSchemaIdx int32
	lastBucketIdx := 0
	for _, span := range spans {
		lastSchemaIdx += span.GetOffset() + int32(span.GetLength())
		lastBucketIdx += int(span.GetLength())
	}
	var bucketSum int64
	for _, d := range deltas {
		bucketSum += d
	}

	out := make([]ecdf.Sample, 0, len(deltas)+len(spans))
	for i := len(spans) - 1; i >= 0; i-- {
		span := spans[i]
		endBucketIdx := lastBucketIdx
		startBucketIdx := endBucketIdx - int(span.GetLength())
		lastBucketIdx = startBucketIdx

		endSchemaIdx := lastSchemaIdx
		startSchemaIdx := endSchemaIdx - int32(span.GetLength())
		lastSchemaIdx = startSchemaIdx - span.GetOffset()

		out = append(out, ecdf.Sample{Value: -upperBound(endSchemaIdx-1, schema)})
		schemaIdx := endSchemaIdx - 1
		for bucketIdx := endBucketIdx - 1; bucketIdx >= startBucketIdx; bucketIdx-- {
			out = append(out, ecdf.Sample{Value: -upperBound(schemaIdx-1, schema), Count: uint64(bucketSum)})
			bucketSum -= deltas[bucketIdx]
			schemaIdx--
		}
	}
	return out
}

// ToECDF converts a native histogram into an interpolated ECDF covering
// its negative buckets, zero bucket, and positive buckets.
func ToECDF(h *dto.Histogram) (*ecdf.InterpolatedECDF, error) {
	if len(h.GetBucket()) > 0 {
		return nil, errors.New("classic bucket histograms are not supported")
	}
	if len(h.GetPositiveCount()) > 0 || len(h.GetNegativeCount()) > 0 {
		return nil, errors.New("float histograms are not supported")
	}

	schema := h.GetSchema()
	zeroThreshold := h.GetZeroThreshold()

	samples := negativeCounts(h.GetNegativeSpan(), h.GetNegativeDelta(), schema)
	// A negative bucket edge must not cross into the zero bucket.
	if n := len(samples); n > 0 && samples[n-1].Value > -zeroThreshold {
		samples[n-1].Value = -zeroThreshold
	}
	samples = append(samples, ecdf.Sample{Value: zeroThreshold, Count: h.GetZeroCount()})
	samples = append(samples, positiveCounts(h.GetPositiveSpan(), h.GetPositiveDelta(), schema)...)

	var e ecdf.ECDF
	e.MergeSorted(samples)
	return e.Interpolate(), nil
}
