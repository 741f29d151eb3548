package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/corestat/corestat/internal/metrics"
	"github.com/corestat/corestat/internal/monitor"
	"github.com/corestat/corestat/internal/sampler"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultOutput      = "cpu.csv.gz"
	defaultMetricsAddr = ":9100"
	defaultProcMount   = "/proc"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists
	_ = godotenv.Load()

	output := defaultOutput
	if v := os.Getenv("CPUMON_OUTPUT"); v != "" {
		output = v
	}
	metricsAddr := defaultMetricsAddr
	if v := os.Getenv("CPUMON_METRICS_ADDR"); v != "" {
		metricsAddr = v
	}

	showVersionFlag := flag.Bool("version", false, "show version and exit")
	verboseFlag := flag.Bool("verbose", false, "verbose mode - show debug logs")
	outputFlag := flag.String("output", output, "file to append CPU counter rows to (.gz compresses)")
	intervalFlag := flag.Duration("interval", monitor.DefaultInterval, "interval between samples")
	procFlag := flag.String("proc", defaultProcMount, "proc filesystem mount point")
	metricsAddrFlag := flag.String("metrics-addr", metricsAddr, "Address to listen on for prometheus metrics")
	flag.Parse()

	if *showVersionFlag {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		os.Exit(0)
	}

	log := newLogger(*verboseFlag)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Set up prometheus metrics server if enabled.
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("Failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("Prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("Failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	s, err := sampler.New(sampler.Config{Mount: *procFlag})
	if err != nil {
		log.Error("failed to create sampler", "error", err)
		return err
	}

	writer, err := monitor.NewRowWriter(*outputFlag)
	if err != nil {
		log.Error("failed to open output file", "error", err)
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			log.Error("failed to close output file", "error", err)
		}
	}()

	runner, err := monitor.New(monitor.Config{
		Logger:   log,
		Clock:    clockwork.NewRealClock(),
		Sampler:  s,
		Writer:   writer,
		Interval: *intervalFlag,
	})
	if err != nil {
		log.Error("failed to create monitor", "error", err)
		return err
	}

	errCh := runner.Start(ctx)
	select {
	case err := <-errCh:
		if err != nil {
			log.Error("monitor: error", "error", err)
			return err
		}
	case <-ctx.Done():
		log.Info("context done, stopping")
	}

	return nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
