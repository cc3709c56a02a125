package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagecheck/api/schemas"
)

// ErrReportNotFound is returned by GetReport for an unknown id.
var ErrReportNotFound = errors.New("report not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists finished reports in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

const sqlCreateReports = `
        CREATE TABLE IF NOT EXISTS reports (
            id TEXT PRIMARY KEY,
            batch_id TEXT,
            host_target TEXT,
            host_order INTEGER NOT NULL DEFAULT 0,
            script_description TEXT,
            start_time TIMESTAMPTZ NOT NULL,
            end_time TIMESTAMPTZ NOT NULL,
            elapsed_seconds DOUBLE PRECISION NOT NULL,
            fatal TEXT,
            stats JSONB NOT NULL,
            body JSONB NOT NULL
        );
    `

const sqlUpsertReport = `
        INSERT INTO reports (id, batch_id, host_target, host_order, script_description, start_time, end_time, elapsed_seconds, fatal, stats, body)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO UPDATE SET
            end_time = EXCLUDED.end_time,
            elapsed_seconds = EXCLUDED.elapsed_seconds,
            fatal = EXCLUDED.fatal,
            stats = EXCLUDED.stats,
            body = EXCLUDED.body;
    `

const sqlSelectReport = `SELECT body FROM reports WHERE id = $1;`

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pool for databaseURL, verifies it and ensures the schema exists.
// The returned function closes the pool.
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the reports table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateReports); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	return nil
}

// SaveReport inserts the report, or refreshes its outcome when the id already exists.
func (s *Store) SaveReport(ctx context.Context, r *schemas.Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", r.ID, err)
	}
	stats, err := json.Marshal(r.SessionStats)
	if err != nil {
		return fmt.Errorf("failed to encode session stats: %w", err)
	}

	var target string
	if r.Host != nil {
		target = r.Host.Target
	}
	tag, err := s.pool.Exec(ctx, sqlUpsertReport,
		r.ID, nullable(r.BatchID), nullable(target), r.HostOrder, r.ScriptDescription,
		r.StartTime.UTC(), r.EndTime.UTC(), r.ElapsedSeconds, nullable(r.Fatal),
		stats, body,
	)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", r.ID, err)
	}
	s.log.Debug("Report saved.", zap.String("report_id", r.ID), zap.Int64("rows", tag.RowsAffected()))
	return nil
}

// GetReport loads a report by id.
func (s *Store) GetReport(ctx context.Context, id string) (*schemas.Report, error) {
	var body []byte
	if err := s.pool.QueryRow(ctx, sqlSelectReport, id).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
		}
		return nil, fmt.Errorf("failed to query report %s: %w", id, err)
	}
	var r schemas.Report
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	return &r, nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
