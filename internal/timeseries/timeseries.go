package timeseries

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Value is a single sample of a time series.
type Value struct {
	TimestampSecs  int64
	TimestampNanos int32
	Value          float64
}

// Timestamp combines the seconds and nanoseconds fields into one instant.
func (v Value) Timestamp() time.Time {
	return time.Unix(v.TimestampSecs, int64(v.TimestampNanos))
}

// Fraction is a single point of an empirical CDF.
type Fraction struct {
	Value    float64
	Fraction float64
}

// Open opens a file for reading, transparently decompressing it if the
// path ends in ".gz".
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
	}
	return &gzipReadCloser{gz: gz, f: f}, nil
}

// Create creates a file for writing, compressing it if the path ends in ".gz".
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	return &gzipWriteCloser{gz: gzip.NewWriter(f), f: f}, nil
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (r *gzipReadCloser) Read(p []byte) (int, error) {
	return r.gz.Read(p)
}

func (r *gzipReadCloser) Close() error {
	if err := r.gz.Close(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}

type gzipWriteCloser struct {
	gz *gzip.Writer
	f  *os.File
}

func (w *gzipWriteCloser) Write(p []byte) (int, error) {
	return w.gz.Write(p)
}

func (w *gzipWriteCloser) Close() error {
	if err := w.gz.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
