// Package monitor periodically samples the kernel CPU counters and appends
// them to a CSV file.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/corestat/corestat/internal/metrics"
	"github.com/corestat/corestat/internal/sampler"
)

// Header is the column layout of the output file: the sample timestamp split
// into seconds and nanoseconds, then cumulative jiffy counters per mode.
var Header = []string{
	"timestamp_secs", "timestamp_nanos",
	"busy", "user", "nice", "system", "idle", "iowait", "irq", "softirq", "steal",
}

const DefaultInterval = time.Second

// minFractionTicks gates mode-fraction recording on intervals covering at
// least this many jiffies.
const minFractionTicks = 10

type Sampler interface {
	Sample() (sampler.Counters, error)
}

type Writer interface {
	Write(record []string) error
	Flush() error
	Fresh() bool
}

type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Sampler Sampler
	Writer  Writer

	// Interval between samples. Defaults to DefaultInterval.
	Interval time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		return errors.New("clock is required")
	}
	if cfg.Sampler == nil {
		return errors.New("sampler is required")
	}
	if cfg.Writer == nil {
		return errors.New("writer is required")
	}
	if cfg.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	return nil
}

type Runner struct {
	log      *slog.Logger
	clock    clockwork.Clock
	sampler  Sampler
	writer   Writer
	interval time.Duration

	last *sampler.Counters
}

func New(cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	return &Runner{
		log:      cfg.Logger,
		clock:    cfg.Clock,
		sampler:  cfg.Sampler,
		writer:   cfg.Writer,
		interval: cfg.Interval,
	}, nil
}

func (r *Runner) Start(ctx context.Context) <-chan error {
	errCh := make(chan error)
	go func() {
		if err := r.Run(ctx); err != nil {
			select {
			case errCh <- err:
			default:
				r.log.Error("monitor: error channel is full, skipping error", "error", err)
			}
		}
		close(errCh)
	}()
	return errCh
}

// Run samples at every tick until the context is cancelled. The first row is
// written immediately; a header is prepended when the output file is empty.
func (r *Runner) Run(ctx context.Context) error {
	if r.writer.Fresh() {
		if err := r.writer.Write(Header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if err := r.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush header: %w", err)
		}
	}

	r.log.Info("monitor: starting", "interval", r.interval)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("monitor: context done, stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			r.tick()
		}
	}
}

func (r *Runner) tick() {
	startedAt := r.clock.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(startedAt).Seconds())
	}()

	c, err := r.sampler.Sample()
	if err != nil {
		r.log.Error("monitor: failed to sample cpu counters", "error", err)
		metrics.TickTotal.WithLabelValues("sample_err").Inc()
		return
	}

	if err := r.writer.Write(row(c)); err != nil {
		r.log.Error("monitor: failed to write row", "error", err)
		metrics.TickTotal.WithLabelValues("write_err").Inc()
		return
	}
	if err := r.writer.Flush(); err != nil {
		r.log.Error("monitor: failed to flush output", "error", err)
		metrics.TickTotal.WithLabelValues("flush_err").Inc()
		return
	}

	r.observeFractions(c)

	metrics.RowsWrittenTotal.Inc()
	metrics.LastSampleUnixSeconds.Set(float64(c.Time.Unix()))
	metrics.TickTotal.WithLabelValues("ok").Inc()
}

// observeFractions records what share of the elapsed CPU time went to each
// mode. When fewer than minFractionTicks jiffies elapsed, the sample is
// folded into the next interval instead.
func (r *Runner) observeFractions(c sampler.Counters) {
	if r.last != nil {
		total := c.Total() - r.last.Total()
		if total < minFractionTicks {
			return
		}
		ticks := float64(total)
		metrics.KernelCPUFraction.WithLabelValues("user").Observe(float64(c.User-r.last.User) / ticks)
		metrics.KernelCPUFraction.WithLabelValues("nice").Observe(float64(c.Nice-r.last.Nice) / ticks)
		metrics.KernelCPUFraction.WithLabelValues("system").Observe(float64(c.System-r.last.System) / ticks)
		metrics.KernelCPUFraction.WithLabelValues("idle").Observe(float64(c.Idle-r.last.Idle) / ticks)
		metrics.KernelCPUFraction.WithLabelValues("iowait").Observe(float64(c.Iowait-r.last.Iowait) / ticks)
		metrics.KernelCPUFraction.WithLabelValues("irq").Observe(float64(c.IRQ-r.last.IRQ) / ticks)
		metrics.KernelCPUFraction.WithLabelValues("softirq").Observe(float64(c.SoftIRQ-r.last.SoftIRQ) / ticks)
		metrics.KernelCPUFraction.WithLabelValues("steal").Observe(float64(c.Steal-r.last.Steal) / ticks)
	}
	r.last = &c
}

func row(c sampler.Counters) []string {
	return []string{
		strconv.FormatInt(c.Time.Unix(), 10),
		strconv.Itoa(c.Time.Nanosecond()),
		strconv.FormatUint(c.Busy, 10),
		strconv.FormatUint(c.User, 10),
		strconv.FormatUint(c.Nice, 10),
		strconv.FormatUint(c.System, 10),
		strconv.FormatUint(c.Idle, 10),
		strconv.FormatUint(c.Iowait, 10),
		strconv.FormatUint(c.IRQ, 10),
		strconv.FormatUint(c.SoftIRQ, 10),
		strconv.FormatUint(c.Steal, 10),
	}
}
