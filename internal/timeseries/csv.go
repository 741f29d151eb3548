package timeseries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
)

var (
	valueHeader    = []string{"timestamp_secs", "timestamp_nanos", "value"}
	fractionHeader = []string{"value", "fraction"}
)

// Scanner reads time series samples from a CSV stream one row at a time.
// Rows that fail to parse are logged and skipped.
type Scanner struct {
	log  *slog.Logger
	r    *csv.Reader
	idx  [3]int
	cur  Value
	err  error
	line int
}

// NewScanner reads the CSV header from r and resolves the canonical
// timestamp_secs, timestamp_nanos and value columns.
func NewScanner(log *slog.Logger, r io.Reader) (*Scanner, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	s := &Scanner{log: log, r: cr, line: 1}
	for i, name := range valueHeader {
		s.idx[i] = -1
		for j, col := range header {
			if col == name {
				s.idx[i] = j
				break
			}
		}
		if s.idx[i] < 0 {
			return nil, fmt.Errorf("missing column %q in CSV header", name)
		}
	}
	return s, nil
}

// Scan advances to the next well-formed row. It returns false at end of
// stream or on a read error; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	for {
		record, err := s.r.Read()
		if err == io.EOF {
			return false
		}
		s.line++
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			s.log.Warn("skipping malformed row", "line", s.line, "error", err)
			continue
		}
		if err != nil {
			s.err = fmt.Errorf("failed to read CSV row: %w", err)
			return false
		}
		v, err := s.parse(record)
		if err != nil {
			s.log.Warn("skipping malformed row", "line", s.line, "error", err)
			continue
		}
		s.cur = v
		return true
	}
}

// Value returns the row read by the last successful call to Scan.
func (s *Scanner) Value() Value {
	return s.cur
}

// Err returns the first read error encountered, if any.
func (s *Scanner) Err() error {
	return s.err
}

func (s *Scanner) parse(record []string) (Value, error) {
	secs, err := strconv.ParseInt(record[s.idx[0]], 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("failed to parse timestamp_secs: %w", err)
	}
	nanos, err := strconv.ParseInt(record[s.idx[1]], 10, 32)
	if err != nil {
		return Value{}, fmt.Errorf("failed to parse timestamp_nanos: %w", err)
	}
	value, err := strconv.ParseFloat(record[s.idx[2]], 64)
	if err != nil {
		return Value{}, fmt.Errorf("failed to parse value: %w", err)
	}
	return Value{TimestampSecs: secs, TimestampNanos: int32(nanos), Value: value}, nil
}

// ReadValues reads all time series samples from a CSV stream.
func ReadValues(log *slog.Logger, r io.Reader) ([]Value, error) {
	s, err := NewScanner(log, r)
	if err != nil {
		return nil, err
	}
	var values []Value
	for s.Scan() {
		values = append(values, s.Value())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// WriteValues writes time series samples to a CSV stream.
func WriteValues(w io.Writer, values []Value) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(valueHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, v := range values {
		row := []string{
			strconv.FormatInt(v.TimestampSecs, 10),
			strconv.FormatInt(int64(v.TimestampNanos), 10),
			strconv.FormatFloat(v.Value, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFractions writes points of an empirical CDF to a CSV stream.
func WriteFractions(w io.Writer, fractions []Fraction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fractionHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, f := range fractions {
		row := []string{
			strconv.FormatFloat(f.Value, 'f', -1, 64),
			strconv.FormatFloat(f.Fraction, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
