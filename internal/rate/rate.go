package rate

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// jiffy is the duration of one CPU accounting tick.
	jiffy = 10 * time.Millisecond

	// maxInterval bounds the validity window. Samples further apart than
	// this measure a gap the sampler did not intend to cover continuously.
	maxInterval = 2 * time.Second
)

var outputHeader = []string{"timestamp_secs", "timestamp_nanos", "value"}

// ColumnNotFoundError reports that the requested counter column is not
// present in the input header.
type ColumnNotFoundError struct {
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found", e.Column)
}

// CounterDecreasedError reports a cumulative counter going backwards between
// consecutive rows. The input contract is a monotonic counter; a decrease
// invalidates every rate derived from it, so the run must abort.
type CounterDecreasedError struct {
	Row  int
	Last int64
	Cur  int64
}

func (e *CounterDecreasedError) Error() string {
	return fmt.Sprintf("counter decreased from %d to %d at row %d", e.Last, e.Cur, e.Row)
}

// Converter turns a cumulative jiffy counter time series into core-usage
// values. The first two input columns are read positionally as Unix seconds
// and a nanoseconds fraction; the counter column is selected by header name.
type Converter struct {
	column string
}

func NewConverter(column string) *Converter {
	return &Converter{column: column}
}

// Run streams CSV from r to w, one row at a time in input order. The first
// data row only seeds the baseline. Each later row emits
// Δcounter / (Δt in jiffies) rounded to 3 decimal places, but only when
// 0 < Δt < 2s; the baseline advances after every row either way.
func (c *Converter) Run(r io.Reader, w io.Writer) error {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := -1
	for i, name := range header {
		if name == c.column {
			col = i
			break
		}
	}
	if col < 0 {
		return &ColumnNotFoundError{Column: c.column}
	}

	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write(outputHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	var (
		seeded    bool
		lastTime  time.Time
		lastValue int64
		row       = 1
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV row: %w", err)
		}
		row++
		ts, value, err := parseRow(record, col)
		if err != nil {
			return fmt.Errorf("failed to parse row %d: %w", row, err)
		}
		if seeded {
			dv := value - lastValue
			if dv < 0 {
				return &CounterDecreasedError{Row: row, Last: lastValue, Cur: value}
			}
			if dt := ts.Sub(lastTime); dt > 0 && dt < maxInterval {
				ticks := float64(dt) / float64(jiffy)
				cores := float64(dv) / ticks
				out := []string{record[0], record[1], formatValue(round3(cores))}
				if err := cw.Write(out); err != nil {
					return fmt.Errorf("failed to write row: %w", err)
				}
				cw.Flush()
				if err := cw.Error(); err != nil {
					return fmt.Errorf("failed to write row: %w", err)
				}
			}
		} else {
			seeded = true
		}
		lastTime, lastValue = ts, value
	}
	cw.Flush()
	return cw.Error()
}

func parseRow(record []string, col int) (time.Time, int64, error) {
	secs, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("failed to parse timestamp seconds: %w", err)
	}
	nanos, err := strconv.ParseInt(record[1], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("failed to parse timestamp nanoseconds: %w", err)
	}
	value, err := strconv.ParseInt(record[col], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("failed to parse counter value: %w", err)
	}
	return time.Unix(secs, nanos), value, nil
}

func round3(v float64) float64 {
	return math.RoundToEven(v*1000) / 1000
}

// formatValue renders the rounded rate as a decimal with up to 3 fractional
// digits, keeping a ".0" on integral values.
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
