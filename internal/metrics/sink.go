package metrics

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Sink persists individual performance records. Save failures never
// propagate to request handling; the collector counts and drops them.
type Sink interface {
	Save(ctx context.Context, rec PerformanceRecord) error
	Close() error
}

// NoopSink discards records. Used when metrics persistence is disabled.
type NoopSink struct{}

func (NoopSink) Save(context.Context, PerformanceRecord) error { return nil }
func (NoopSink) Close() error                                  { return nil }

const perfMetricsSchema = `
CREATE TABLE IF NOT EXISTS perf_metrics (
    id            VARCHAR(36)  PRIMARY KEY,
    kind          VARCHAR(16)  NOT NULL,
    endpoint      VARCHAR(255) NOT NULL,
    method        VARCHAR(10)  NOT NULL,
    path_template VARCHAR(512) NOT NULL,
    status_code   INTEGER      NOT NULL,
    duration_ms   DOUBLE PRECISION NOT NULL,
    heap_bytes    BIGINT       NOT NULL,
    recorded_at   TIMESTAMP    NOT NULL
)`

// SQLSink writes records into the perf_metrics table of its own database.
// It never shares pools with dispatched queries so metrics pressure cannot
// starve the gateway's data sources.
type SQLSink struct {
	db *sqlx.DB
}

// NewSQLSink opens the metrics database and ensures the table exists.
func NewSQLSink(driver, dsn string) (*SQLSink, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}
	if _, err := db.Exec(perfMetricsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure perf_metrics table: %w", err)
	}
	return &SQLSink{db: db}, nil
}

// NewSQLSinkFromDB wraps an existing handle. The table must exist or be
// creatable by the connected role.
func NewSQLSinkFromDB(db *sqlx.DB) (*SQLSink, error) {
	if _, err := db.Exec(perfMetricsSchema); err != nil {
		return nil, fmt.Errorf("ensure perf_metrics table: %w", err)
	}
	return &SQLSink{db: db}, nil
}

func (s *SQLSink) Save(ctx context.Context, rec PerformanceRecord) error {
	query := s.db.Rebind(`INSERT INTO perf_metrics
        (id, kind, endpoint, method, path_template, status_code, duration_ms, heap_bytes, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Kind, rec.Endpoint, rec.Method, rec.PathTemplate,
		rec.StatusCode, rec.DurationMs, rec.HeapBytes, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert perf_metrics row: %w", err)
	}
	return nil
}

func (s *SQLSink) Close() error { return s.db.Close() }
