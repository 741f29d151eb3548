package partition

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/corestat/corestat/internal/timeseries"
)

type Config struct {
	Logger *slog.Logger

	// Interval is the amount of time covered by each partition, in seconds.
	Interval int64

	// OutputDir is where the partitioned files are written.
	OutputDir string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if cfg.OutputDir == "" {
		return errors.New("output dir is required")
	}
	return nil
}

// Partitioner breaks a time series up into one file per time window, named
// <window end>.csv. Only the current window is held in memory.
type Partitioner struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Partitioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Partitioner{log: cfg.Logger, cfg: cfg}, nil
}

// Run consumes samples from r in order. A row whose timestamp falls before
// the current window start is logged and dropped; a row at or past the
// window end flushes the buffered window and starts a new one aligned to
// the interval.
func (p *Partitioner) Run(r io.Reader) error {
	s, err := timeseries.NewScanner(p.log, r)
	if err != nil {
		return err
	}

	var (
		start     int64
		end       = p.cfg.Interval
		partition []timeseries.Value
	)
	for s.Scan() {
		v := s.Value()
		t := v.TimestampSecs
		if t < start {
			p.log.Warn("input is not sorted", "timestamp", t, "window_start", start)
			continue
		}
		if t >= end {
			if len(partition) > 0 {
				if err := p.flush(end, partition); err != nil {
					return err
				}
				partition = partition[:0]
			}
			start = t - t%p.cfg.Interval
			end = start + p.cfg.Interval
		}
		partition = append(partition, v)
	}
	if err := s.Err(); err != nil {
		return err
	}
	if len(partition) > 0 {
		return p.flush(end, partition)
	}
	return nil
}

func (p *Partitioner) flush(end int64, values []timeseries.Value) error {
	path := filepath.Join(p.cfg.OutputDir, fmt.Sprintf("%d.csv", end))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create partition file: %w", err)
	}
	if err := timeseries.WriteValues(f, values); err != nil {
		f.Close()
		return fmt.Errorf("failed to write partition %s: %w", path, err)
	}
	p.log.Debug("wrote partition", "path", path, "rows", len(values))
	return f.Close()
}
