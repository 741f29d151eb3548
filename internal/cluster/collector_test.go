package cluster

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/proto"

	"github.com/corestat/corestat/internal/ecdf"
	"github.com/corestat/corestat/internal/histogram"
	"github.com/corestat/corestat/internal/store"
)

func newStore(t *testing.T) (*store.Store, *sql.DB) {
	t.Helper()
	db, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := store.New(store.Config{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		DB:     db,
	})
	require.NoError(t, err)
	return s, db
}

func histogramBlob(t *testing.T, values ...string) []byte {
	t.Helper()
	b, err := histogram.New(histogram.Config{Name: "cpu", Factor: 1.1},
		[]string{"timestamp_secs", "timestamp_nanos", "value"})
	require.NoError(t, err)
	for _, v := range values {
		require.NoError(t, b.Observe([]string{"0", "0", v}))
	}
	h, err := b.Series()[0].Snapshot()
	require.NoError(t, err)
	data, err := proto.Marshal(h)
	require.NoError(t, err)
	return data
}

func TestCollectorConfig_Validate(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	input, _ := newStore(t)
	output, _ := newStore(t)

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing logger",
			cfg:     Config{Input: input, Output: output, Eps: 1},
			wantErr: "logger is required",
		},
		{
			name:    "missing input",
			cfg:     Config{Logger: logger, Output: output, Eps: 1},
			wantErr: "input store is required",
		},
		{
			name:    "missing output",
			cfg:     Config{Logger: logger, Input: input, Eps: 1},
			wantErr: "output store is required",
		},
		{
			name:    "zero eps",
			cfg:     Config{Logger: logger, Input: input, Output: output},
			wantErr: "eps must be greater than 0",
		},
		{
			name: "valid",
			cfg:  Config{Logger: logger, Input: input, Output: output, Eps: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Nil(t, c)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c)
		})
	}
}

func TestCollector_Run(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	input, _ := newStore(t)
	output, outputDB := newStore(t)

	require.NoError(t, input.EnsureDenormalized(ctx))
	id, err := input.LabelSetID(ctx, []byte(`{"__name__":"cpu"}`))
	require.NoError(t, err)

	low := histogramBlob(t, "1", "2", "3")
	high := histogramBlob(t, "5000", "9000")

	// Two similar samples in the first half hour, then a different shape
	// and a recurrence of the first one in the next window.
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, input.InsertHistogram(ctx, t0, id, low))
	require.NoError(t, input.InsertHistogram(ctx, t0.Add(time.Second), id, low))
	require.NoError(t, input.InsertHistogram(ctx, t0.Add(40*time.Minute), id, high))
	require.NoError(t, input.InsertHistogram(ctx, t0.Add(41*time.Minute), id, low))

	c, err := New(Config{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		Input:  input,
		Output: output,
		Eps:    1.0,
	})
	require.NoError(t, err)
	require.NoError(t, c.Run(ctx))

	count, err := output.CountClusters(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	rows, err := outputDB.Query(
		`SELECT cluster_id, count FROM monitoring_data ORDER BY timestamp ASC`)
	require.NoError(t, err)
	defer rows.Close()

	var clusters []int64
	var counts []int64
	for rows.Next() {
		var cluster, n int64
		require.NoError(t, rows.Scan(&cluster, &n))
		clusters = append(clusters, cluster)
		counts = append(counts, n)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []int64{0, 0, 1, 0}, clusters)
	require.Equal(t, []int64{3, 3, 2, 3}, counts)

	// The stored centroid for the low cluster is the merge of the two
	// members that formed it; the later recurrence reuses it unchanged.
	var blob []byte
	var eps float64
	err = outputDB.QueryRow(`SELECT centroid, eps FROM cluster WHERE id = 0`).Scan(&blob, &eps)
	require.NoError(t, err)
	require.Equal(t, 1.0, eps)

	var centroid ecdf.InterpolatedECDF
	require.NoError(t, msgpack.Unmarshal(blob, &centroid))
	require.InDelta(t, 6.0, centroid.Len(), 1e-9)

	h, err := histogram.Parse(low)
	require.NoError(t, err)
	member, err := histogram.ToECDF(h)
	require.NoError(t, err)
	require.InDelta(t, 0.0, centroid.AreaDifference(member), 1e-9)
}

func TestCollector_RunEmptyInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	input, _ := newStore(t)
	output, _ := newStore(t)
	require.NoError(t, input.EnsureDenormalized(ctx))

	c, err := New(Config{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		Input:  input,
		Output: output,
		Eps:    1.0,
	})
	require.NoError(t, err)
	require.NoError(t, c.Run(ctx))

	count, err := output.CountClusters(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}
