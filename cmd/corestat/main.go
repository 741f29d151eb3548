package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"

	"github.com/corestat/corestat/internal/cluster"
	"github.com/corestat/corestat/internal/diffstats"
	"github.com/corestat/corestat/internal/ecdf"
	"github.com/corestat/corestat/internal/histogram"
	"github.com/corestat/corestat/internal/partition"
	"github.com/corestat/corestat/internal/store"
	"github.com/corestat/corestat/internal/timeseries"
)

var (
	verbose bool

	partitionInterval int64
	partitionOutput   string

	database    string
	timestamp   int64
	metricName  string
	metricLabel string
	factor      float64
	dumpCDF     bool

	eps float64

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "corestat",
	Short: "Tools for turning CPU core-usage series into compressed distributions",
	Long: `corestat partitions core-usage time series, compresses each window into a
native histogram or full-resolution CDF, clusters the results, and reports
how much accuracy the compression gave up.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("corestat %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var partitionCmd = &cobra.Command{
	Use:   "partition <input.csv[.gz]>",
	Short: "Split a time series into one file per time window",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)

		in, err := timeseries.Open(args[0])
		if err != nil {
			log.Error("Failed to open input", "error", err)
			os.Exit(1)
		}
		defer in.Close()

		p, err := partition.New(partition.Config{
			Logger:    log,
			Interval:  partitionInterval,
			OutputDir: partitionOutput,
		})
		if err != nil {
			log.Error("Failed to create partitioner", "error", err)
			os.Exit(1)
		}
		if err := p.Run(in); err != nil {
			log.Error("Failed to partition input", "error", err)
			os.Exit(1)
		}
	},
}

var histogramCmd = &cobra.Command{
	Use:   "histogram <input.csv[.gz]>",
	Short: "Accumulate a window of samples into native histograms",
	Long: `Reads a window of core-usage samples and folds the value columns into
Prometheus native histograms, one series per value column. The serialized
histograms are written to the database under the given timestamp.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)
		if database == "" {
			log.Error("database is required")
			os.Exit(1)
		}
		if timestamp == 0 {
			log.Error("timestamp is required")
			os.Exit(1)
		}
		if metricName == "" {
			log.Error("metric name is required")
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st, db, err := openStore(ctx, log, database, false)
		if err != nil {
			log.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		in, err := timeseries.Open(args[0])
		if err != nil {
			log.Error("Failed to open input", "error", err)
			os.Exit(1)
		}
		defer in.Close()

		cr := csv.NewReader(in)
		cr.ReuseRecord = true
		header, err := cr.Read()
		if err != nil {
			log.Error("Failed to read CSV header", "error", err)
			os.Exit(1)
		}
		b, err := histogram.New(histogram.Config{
			Name:   metricName,
			Label:  metricLabel,
			Factor: factor,
		}, header)
		if err != nil {
			log.Error("Failed to create histogram builder", "error", err)
			os.Exit(1)
		}
		for {
			record, err := cr.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				log.Error("Failed to read CSV", "error", err)
				os.Exit(1)
			}
			if err := b.Observe(record); err != nil {
				log.Error("Failed to observe record", "error", err)
				os.Exit(1)
			}
		}

		ts := time.Unix(timestamp, 0).UTC()
		for _, s := range b.Series() {
			id, err := st.LabelSetID(ctx, s.Labels)
			if err != nil {
				log.Error("Failed to resolve label set", "error", err)
				os.Exit(1)
			}
			h, err := s.Snapshot()
			if err != nil {
				log.Error("Failed to snapshot histogram", "error", err)
				os.Exit(1)
			}
			data, err := proto.Marshal(h)
			if err != nil {
				log.Error("Failed to serialize histogram", "error", err)
				os.Exit(1)
			}
			if err := st.InsertHistogram(ctx, ts, id, data); err != nil {
				log.Error("Failed to write histogram", "error", err)
				os.Exit(1)
			}
		}
		log.Info("Wrote histograms", "series", len(b.Series()), "timestamp", ts)
	},
}

var sampleCmd = &cobra.Command{
	Use:   "sample <input.csv[.gz]>",
	Short: "Aggregate a window of samples into a full-resolution CDF",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)
		if database == "" {
			log.Error("database is required")
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		in, err := timeseries.Open(args[0])
		if err != nil {
			log.Error("Failed to open input", "error", err)
			os.Exit(1)
		}
		defer in.Close()

		values, err := timeseries.ReadValues(log, in)
		if err != nil {
			log.Error("Failed to read values", "error", err)
			os.Exit(1)
		}
		floats := make([]float64, len(values))
		for i, v := range values {
			floats[i] = v.Value
		}
		e := ecdf.FromValues(floats)
		data, err := msgpack.Marshal(e)
		if err != nil {
			log.Error("Failed to serialize sample", "error", err)
			os.Exit(1)
		}

		if dumpCDF {
			points := e.Points()
			fractions := make([]timeseries.Fraction, len(points))
			for i, p := range points {
				fractions[i] = timeseries.Fraction{Value: p.Value, Fraction: p.Fraction}
			}
			if err := timeseries.WriteFractions(os.Stdout, fractions); err != nil {
				log.Error("Failed to write CDF", "error", err)
				os.Exit(1)
			}
		}

		st, db, err := openStore(ctx, log, database, false)
		if err != nil {
			log.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		ts := time.Unix(timestamp, 0).UTC()
		if err := st.InsertFullSample(ctx, ts, data); err != nil {
			log.Error("Failed to write full sample", "error", err)
			os.Exit(1)
		}
		log.Info("Wrote full sample", "values", len(values), "timestamp", ts)
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster <input-db> <output-db>",
	Short: "Cluster stored histograms and write the normalized form",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		input, inDB, err := openStore(ctx, log, args[0], true)
		if err != nil {
			log.Error("Failed to open input database", "error", err)
			os.Exit(1)
		}
		defer inDB.Close()

		output, outDB, err := openStore(ctx, log, args[1], true)
		if err != nil {
			log.Error("Failed to open output database", "error", err)
			os.Exit(1)
		}
		defer outDB.Close()

		c, err := cluster.New(cluster.Config{
			Logger: log,
			Input:  input,
			Output: output,
			Eps:    eps,
		})
		if err != nil {
			log.Error("Failed to create collector", "error", err)
			os.Exit(1)
		}
		if err := c.Run(ctx); err != nil {
			log.Error("Failed to cluster samples", "error", err)
			os.Exit(1)
		}
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Measure approximation error against full-resolution samples",
}

var diffHistogramsCmd = &cobra.Command{
	Use:   "histograms <database>",
	Short: "Compare stored histograms against the full samples",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st, db, err := openStore(ctx, log, args[0], true)
		if err != nil {
			log.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		stats, err := diffstats.Histograms(ctx, st)
		if err != nil {
			log.Error("Failed to diff histograms", "error", err)
			os.Exit(1)
		}
		printSummary(stats.Summarize())
	},
}

var diffClustersCmd = &cobra.Command{
	Use:   "clusters <database>",
	Short: "Compare cluster centroids against the full samples",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(verbose)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st, db, err := openStore(ctx, log, args[0], true)
		if err != nil {
			log.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		stats, count, err := diffstats.Clusters(ctx, st)
		if err != nil {
			log.Error("Failed to diff clusters", "error", err)
			os.Exit(1)
		}
		fmt.Printf("cluster count: %d\n", count)
		printSummary(stats.Summarize())
	},
}

// openStore opens the database and prepares the schema. readOnly skips the
// schema setup so that diffing never mutates the database it inspects.
func openStore(ctx context.Context, log *slog.Logger, path string, readOnly bool) (*store.Store, *sql.DB, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(store.Config{Logger: log, DB: db})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if !readOnly {
		if err := st.EnsureDenormalized(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return st, db, nil
}

func printSummary(s diffstats.Summary) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetRowLine(true)
	table.SetHeader([]string{"Min", "Mean\n-1σ", "Mean", "Mean\n+1σ", "Max", "Samples\n(#)"})
	table.Append([]string{
		fmt.Sprintf("%.4f", s.Min),
		fmt.Sprintf("%.4f", s.Lo),
		fmt.Sprintf("%.4f", s.Mean),
		fmt.Sprintf("%.4f", s.Hi),
		fmt.Sprintf("%.4f", s.Max),
		fmt.Sprintf("%d", s.Count),
	})
	table.Render()
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	partitionCmd.Flags().Int64VarP(&partitionInterval, "interval", "i", 1, "Amount of time covered by each partition, in seconds")
	partitionCmd.Flags().StringVarP(&partitionOutput, "output", "o", ".", "Directory where the partitioned files are written")

	histogramCmd.Flags().StringVar(&database, "database", "", "The database to write to")
	histogramCmd.Flags().Int64Var(&timestamp, "timestamp", 0, "The time of the sample, in seconds since the epoch")
	histogramCmd.Flags().StringVar(&metricName, "var", "", "The name of the metric")
	histogramCmd.Flags().StringVar(&metricLabel, "label", "", "The name of the metric label")
	histogramCmd.Flags().Float64Var(&factor, "factor", 1.1, "The growth factor for the native histogram buckets")

	sampleCmd.Flags().StringVar(&database, "database", "", "The database to write to")
	sampleCmd.Flags().Int64VarP(&timestamp, "timestamp", "t", 0, "The time of the sample, in seconds since the epoch")
	sampleCmd.Flags().BoolVar(&dumpCDF, "dump-cdf", false, "Also write the CDF points to stdout as CSV")

	clusterCmd.Flags().Float64VarP(&eps, "eps", "e", 1.0, "Minimum distance between samples in a cluster")

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(partitionCmd)
	rootCmd.AddCommand(histogramCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(diffCmd)

	diffCmd.AddCommand(diffHistogramsCmd)
	diffCmd.AddCommand(diffClustersCmd)
}

func main() {
	// Add version command last so it appears after auto-generated commands
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
