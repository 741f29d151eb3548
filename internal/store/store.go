// Package store persists histogram samples, full-resolution samples and
// cluster centroids in a DuckDB database shared by the corestat tools.
//
// Two layouts exist. The denormalized layout keeps one serialized native
// histogram per row. The normalized layout replaces each histogram with a
// reference to a cluster centroid plus an observation count, which is what
// makes long retention affordable.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/duckdb/duckdb-go/v2"
)

// maxWriteTries bounds write retries under file-lock contention between
// tools sharing a database.
const maxWriteTries = 5

var denormalizedDDL = []string{
	`CREATE SEQUENCE IF NOT EXISTS label_set_id_seq`,
	`CREATE TABLE IF NOT EXISTS label_set (
		id BIGINT PRIMARY KEY DEFAULT nextval('label_set_id_seq'),
		labels VARCHAR NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS monitoring_data (
		timestamp TIMESTAMP NOT NULL,
		label_set_id BIGINT NOT NULL,
		data BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS full_sample (
		timestamp TIMESTAMP NOT NULL,
		data BLOB NOT NULL
	)`,
}

var normalizedDDL = []string{
	`CREATE SEQUENCE IF NOT EXISTS label_set_id_seq`,
	`CREATE TABLE IF NOT EXISTS label_set (
		id BIGINT PRIMARY KEY DEFAULT nextval('label_set_id_seq'),
		labels VARCHAR NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS cluster (
		id BIGINT PRIMARY KEY,
		group_id BIGINT NOT NULL,
		centroid BLOB NOT NULL,
		eps DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS monitoring_data (
		timestamp TIMESTAMP NOT NULL,
		label_set_id BIGINT NOT NULL,
		cluster_id BIGINT NOT NULL,
		count BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS full_sample (
		timestamp TIMESTAMP NOT NULL,
		data BLOB NOT NULL
	)`,
}

// Open opens the DuckDB database at path, creating the file if it does not
// exist. An empty path opens an in-memory database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

type Config struct {
	Logger *slog.Logger
	DB     *sql.DB
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DB == nil {
		return errors.New("db is required")
	}
	return nil
}

type Store struct {
	log *slog.Logger
	db  *sql.DB
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		db:  cfg.DB,
	}, nil
}

// EnsureDenormalized creates the denormalized tables if they do not exist.
func (s *Store) EnsureDenormalized(ctx context.Context) error {
	for _, stmt := range denormalizedDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create denormalized schema: %w", err)
		}
	}
	return nil
}

// EnsureNormalized creates the normalized tables if they do not exist.
func (s *Store) EnsureNormalized(ctx context.Context) error {
	for _, stmt := range normalizedDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create normalized schema: %w", err)
		}
	}
	return nil
}

// LabelSetID returns the id of the given canonical label set JSON, inserting
// a new row the first time the label set is seen.
func (s *Store) LabelSetID(ctx context.Context, labels []byte) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM label_set WHERE labels = ?`, string(labels)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up label set: %w", err)
	}

	attempt := 0
	id, err = backoff.Retry(ctx, func() (int64, error) {
		if attempt > 1 {
			s.log.Warn("Failed to insert label set, retrying", "attempt", attempt)
		}
		attempt++
		var id int64
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO label_set (labels) VALUES (?) RETURNING id`, string(labels)).Scan(&id)
		if err != nil {
			return 0, err
		}
		return id, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxWriteTries))
	if err != nil {
		return 0, fmt.Errorf("failed to insert label set: %w", err)
	}
	return id, nil
}

// InsertHistogram writes one serialized native histogram observed at ts for
// the given label set.
func (s *Store) InsertHistogram(ctx context.Context, ts time.Time, labelSetID int64, data []byte) error {
	return s.exec(ctx, "insert histogram",
		`INSERT INTO monitoring_data (timestamp, label_set_id, data) VALUES (?, ?, ?)`,
		ts.UTC(), labelSetID, data)
}

// InsertFullSample writes one serialized full-resolution ECDF observed at ts.
func (s *Store) InsertFullSample(ctx context.Context, ts time.Time, data []byte) error {
	return s.exec(ctx, "insert full sample",
		`INSERT INTO full_sample (timestamp, data) VALUES (?, ?)`,
		ts.UTC(), data)
}

// InsertCluster writes one cluster centroid.
func (s *Store) InsertCluster(ctx context.Context, id, groupID int64, centroid []byte, eps float64) error {
	return s.exec(ctx, "insert cluster",
		`INSERT INTO cluster (id, group_id, centroid, eps) VALUES (?, ?, ?, ?)`,
		id, groupID, centroid, eps)
}

// InsertClusterSample writes one normalized observation: a cluster reference
// plus the number of values the original histogram held.
func (s *Store) InsertClusterSample(ctx context.Context, ts time.Time, labelSetID, clusterID, count int64) error {
	return s.exec(ctx, "insert cluster sample",
		`INSERT INTO monitoring_data (timestamp, label_set_id, cluster_id, count) VALUES (?, ?, ?, ?)`,
		ts.UTC(), labelSetID, clusterID, count)
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (sql.Result, error) {
		if attempt > 1 {
			s.log.Warn("Write failed, retrying", "operation", op, "attempt", attempt)
		}
		attempt++
		return s.db.ExecContext(ctx, query, args...)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxWriteTries))
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

// A Sample is one denormalized monitoring_data row: a serialized native
// histogram observed at an instant for one label set.
type Sample struct {
	Timestamp  time.Time
	LabelSetID int64
	Data       []byte
}

// DenormalizedRows returns all denormalized samples ordered by timestamp.
func (s *Store) DenormalizedRows(ctx context.Context) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, label_set_id, data FROM monitoring_data ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := make([]Sample, 0)
	for rows.Next() {
		var sample Sample
		if err := rows.Scan(&sample.Timestamp, &sample.LabelSetID, &sample.Data); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}
	return samples, nil
}

// A HistogramRow joins a stored histogram with the full-resolution sample
// recorded at the same instant.
type HistogramRow struct {
	Timestamp time.Time
	Full      []byte
	Histogram []byte
}

// HistogramRows returns every denormalized histogram paired with its
// full-resolution sample.
func (s *Store) HistogramRows(ctx context.Context) ([]HistogramRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT md.timestamp, f.data, md.data
		FROM monitoring_data md
		INNER JOIN full_sample f ON f.timestamp = md.timestamp`)
	if err != nil {
		return nil, fmt.Errorf("failed to query histogram rows: %w", err)
	}
	defer rows.Close()

	joined := make([]HistogramRow, 0)
	for rows.Next() {
		var row HistogramRow
		if err := rows.Scan(&row.Timestamp, &row.Full, &row.Histogram); err != nil {
			return nil, fmt.Errorf("failed to scan histogram row: %w", err)
		}
		joined = append(joined, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating histogram rows: %w", err)
	}
	return joined, nil
}

// A CentroidRow joins a full-resolution sample with the centroid of the
// cluster its histogram was assigned to.
type CentroidRow struct {
	Timestamp time.Time
	Full      []byte
	Centroid  []byte
}

// CentroidRows returns every normalized sample paired with its
// full-resolution sample and its cluster centroid.
func (s *Store) CentroidRows(ctx context.Context) ([]CentroidRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT md.timestamp, f.data, c.centroid
		FROM monitoring_data md
		INNER JOIN full_sample f ON f.timestamp = md.timestamp
		INNER JOIN cluster c ON c.id = md.cluster_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query centroid rows: %w", err)
	}
	defer rows.Close()

	joined := make([]CentroidRow, 0)
	for rows.Next() {
		var row CentroidRow
		if err := rows.Scan(&row.Timestamp, &row.Full, &row.Centroid); err != nil {
			return nil, fmt.Errorf("failed to scan centroid row: %w", err)
		}
		joined = append(joined, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating centroid rows: %w", err)
	}
	return joined, nil
}

// CountClusters returns the number of clusters written so far.
func (s *Store) CountClusters(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cluster`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count clusters: %w", err)
	}
	return count, nil
}
