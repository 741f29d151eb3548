// Package sampler reads cumulative CPU time counters from the proc
// filesystem.
package sampler

import (
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/procfs"
)

// userHZ is the kernel clock tick rate. procfs reports CPU time in seconds;
// multiplying by userHZ recovers the raw jiffy counters.
const userHZ = 100

// Counters holds cumulative jiffy counts since boot, aggregated over all
// CPUs, plus the instant they were read.
type Counters struct {
	Time time.Time

	Busy    uint64 // user + nice + system + irq + softirq + steal
	User    uint64
	Nice    uint64
	System  uint64
	Idle    uint64
	Iowait  uint64
	IRQ     uint64
	SoftIRQ uint64
	Steal   uint64
}

// Total returns the jiffies spent in all modes combined.
func (c Counters) Total() uint64 {
	return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
}

type Config struct {
	// Clock stamps each sample. Defaults to the real clock.
	Clock clockwork.Clock

	// Mount is the proc filesystem mount point. Defaults to /proc.
	Mount string
}

type Sampler struct {
	clock clockwork.Clock
	fs    procfs.FS
}

func New(cfg Config) (*Sampler, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Mount == "" {
		cfg.Mount = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(cfg.Mount)
	if err != nil {
		return nil, fmt.Errorf("failed to open proc filesystem: %w", err)
	}
	return &Sampler{clock: cfg.Clock, fs: fs}, nil
}

// Sample reads the aggregate CPU counters.
func (s *Sampler) Sample() (Counters, error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return Counters{}, fmt.Errorf("failed to read kernel stats: %w", err)
	}
	cpu := stat.CPUTotal
	c := Counters{
		Time:    s.clock.Now(),
		User:    jiffies(cpu.User),
		Nice:    jiffies(cpu.Nice),
		System:  jiffies(cpu.System),
		Idle:    jiffies(cpu.Idle),
		Iowait:  jiffies(cpu.Iowait),
		IRQ:     jiffies(cpu.IRQ),
		SoftIRQ: jiffies(cpu.SoftIRQ),
		Steal:   jiffies(cpu.Steal),
	}
	c.Busy = c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	return c, nil
}

func jiffies(seconds float64) uint64 {
	return uint64(math.Round(seconds * userHZ))
}
