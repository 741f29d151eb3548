package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/corestat/corestat/internal/ecdf"
	"github.com/corestat/corestat/internal/histogram"
	"github.com/corestat/corestat/internal/store"
)

const (
	DefaultGroupID = 1
	DefaultWindow  = 30 * time.Minute
)

type Config struct {
	Logger *slog.Logger
	Input  *store.Store
	Output *store.Store

	// Eps is the maximum area difference between a sample and its
	// cluster's centroid.
	Eps float64

	// GroupID is the cluster group new clusters are filed under.
	// Defaults to DefaultGroupID.
	GroupID int64

	// Window is the amount of time covered by one clustering batch.
	// Defaults to DefaultWindow.
	Window time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Input == nil {
		return errors.New("input store is required")
	}
	if cfg.Output == nil {
		return errors.New("output store is required")
	}
	if cfg.Eps <= 0 {
		return errors.New("eps must be greater than 0")
	}
	return nil
}

// A Collector normalizes a database of histogram samples: it clusters their
// distribution shapes and rewrites each sample as a cluster reference plus
// an observation count.
type Collector struct {
	log     *slog.Logger
	input   *store.Store
	output  *store.Store
	group   *Group
	groupID int64
	window  time.Duration
	written int // clusters already persisted
}

func New(cfg Config) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.GroupID == 0 {
		cfg.GroupID = DefaultGroupID
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Collector{
		log:     cfg.Logger,
		input:   cfg.Input,
		output:  cfg.Output,
		group:   NewGroup(cfg.Eps),
		groupID: cfg.GroupID,
		window:  cfg.Window,
	}, nil
}

type observation struct {
	timestamp  time.Time
	labelSetID int64
	shape      *ecdf.InterpolatedECDF
}

// Run reads every denormalized sample from the input store in timestamp
// order, clusters them one window at a time, and writes new clusters and
// normalized samples to the output store.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.output.EnsureNormalized(ctx); err != nil {
		return err
	}
	samples, err := c.input.DenormalizedRows(ctx)
	if err != nil {
		return err
	}

	var batches [][]observation
	var batch []observation
	var batchEnd time.Time
	for _, sample := range samples {
		h, err := histogram.Parse(sample.Data)
		if err != nil {
			return err
		}
		shape, err := histogram.ToECDF(h)
		if err != nil {
			return fmt.Errorf("failed to convert histogram at %s: %w", sample.Timestamp, err)
		}
		if !sample.Timestamp.Before(batchEnd) {
			if len(batch) > 0 {
				batches = append(batches, batch)
			}
			batch = nil
			batchEnd = sample.Timestamp.Add(c.window)
		}
		batch = append(batch, observation{
			timestamp:  sample.Timestamp,
			labelSetID: sample.LabelSetID,
			shape:      shape,
		})
	}
	if len(batch) > 0 {
		batches = append(batches, batch)
	}

	for _, batch := range batches {
		if err := c.processBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) processBatch(ctx context.Context, batch []observation) error {
	c.log.Info("Processing batch", "samples", len(batch))

	shapes := make([]*ecdf.InterpolatedECDF, len(batch))
	for i, obs := range batch {
		shapes[i] = obs.shape
	}
	assignments := c.group.ProcessBatch(shapes)

	// Persist any clusters this batch opened.
	centroids := c.group.Centroids()
	for id := c.written; id < len(centroids); id++ {
		c.log.Debug("Opened new cluster", "cluster", id)
		data, err := msgpack.Marshal(centroids[id].Shape)
		if err != nil {
			return fmt.Errorf("failed to serialize centroid: %w", err)
		}
		if err := c.output.InsertCluster(ctx, int64(id), c.groupID, data, centroids[id].Eps); err != nil {
			return err
		}
	}
	c.written = len(centroids)

	// The count preserves how many values the original histogram held,
	// which is what keeps the normalized form summable.
	for i, obs := range batch {
		count := int64(math.Round(obs.shape.Len()))
		if err := c.output.InsertClusterSample(ctx, obs.timestamp, obs.labelSetID, int64(assignments[i]), count); err != nil {
			return err
		}
	}
	return nil
}
