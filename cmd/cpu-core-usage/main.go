// Converts the raw CPU data, a cumulative count of jiffies, to the number of
// cores used over each sampled interval.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/lmittmann/tint"

	"github.com/corestat/corestat/internal/rate"
)

const inputPath = "cpu.csv.gz"

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: cpu-core-usage <column>")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		var notFound *rate.ColumnNotFoundError
		if errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Column %q not found.\n", notFound.Column)
		} else {
			newLogger().Error("conversion failed", "error", err)
		}
		os.Exit(1)
	}
}

func run(column string) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", inputPath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to decompress %s: %w", inputPath, err)
	}
	defer gz.Close()

	return rate.NewConverter(column).Run(gz, os.Stdout)
}

// newLogger writes to stderr because stdout carries the converted CSV.
func newLogger() *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
}
