// Package metrics exposes Prometheus instrumentation for the CPU monitor
// daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cpumon_build_info",
		Help: "Build information of the CPU monitor",
	}, []string{"version", "commit", "date"})

	TickTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpumon_tick_total",
		Help: "Total number of sample ticks by result",
	}, []string{"result"})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:                            "cpumon_tick_duration_seconds",
		Help:                            "Duration of one sample-and-append tick",
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  160,
		NativeHistogramMinResetDuration: time.Hour,
	})

	RowsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cpumon_rows_written_total",
		Help: "Total number of rows appended to the output file",
	})

	LastSampleUnixSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cpumon_last_sample_unix_seconds",
		Help: "Timestamp of the most recent successful sample",
	})

	KernelCPUFraction = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:                            "cpumon_kernel_cpu_fraction",
		Help:                            "Fraction of CPU time spent in each mode between consecutive samples",
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  160,
		NativeHistogramMinResetDuration: time.Hour,
	}, []string{"mode"})
)
