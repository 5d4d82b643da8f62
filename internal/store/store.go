// Package store persists run summaries and test case results to PostgreSQL
// so failures can be tracked across runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiharness/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Run summarizes one harness invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Options    schemas.RunOptions
}

// Store writes runs and their results.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS test_runs (
    id          UUID PRIMARY KEY,
    browser     TEXT NOT NULL,
    client      TEXT NOT NULL,
    environment TEXT NOT NULL,
    headless    BOOLEAN NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    passed      INTEGER NOT NULL,
    failed      INTEGER NOT NULL,
    broken      INTEGER NOT NULL,
    skipped     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS test_results (
    id          UUID PRIMARY KEY,
    run_id      UUID NOT NULL REFERENCES test_runs (id),
    name        TEXT NOT NULL,
    full_name   TEXT NOT NULL,
    status      TEXT NOT NULL,
    phase       TEXT NOT NULL,
    message     TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL,
    screenshot  TEXT NOT NULL
);`

const insertRunSQL = `
INSERT INTO test_runs (id, browser, client, environment, headless, started_at, finished_at, passed, failed, broken, skipped)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`

const flakySQL = `
SELECT full_name, COUNT(*) FILTER (WHERE status IN ('failed', 'broken')) AS failures, COUNT(*) AS runs
FROM test_results
WHERE started_at >= $1
GROUP BY full_name
HAVING COUNT(*) FILTER (WHERE status IN ('failed', 'broken')) > 0
ORDER BY failures DESC, full_name ASC
LIMIT $2;`

var resultColumns = []string{"id", "run_id", "name", "full_name", "status", "phase", "message", "started_at", "duration_ms", "screenshot"}

// New wraps pool.
func New(pool DBPool, logger *zap.Logger) *Store {
	return &Store{pool: pool, log: logger.Named("store")}
}

// Open connects to databaseURL and verifies the connection. The returned
// close function releases the pool.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(pool, logger), pool.Close, nil
}

// EnsureSchema creates the result tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun inserts run and all of its results in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, results []*schemas.TestResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	counts := map[schemas.Status]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	_, err = tx.Exec(ctx, insertRunSQL,
		run.ID,
		string(run.Options.Browser), string(run.Options.Client), string(run.Options.Environment), run.Options.Headless,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
		counts[schemas.StatusPassed], counts[schemas.StatusFailed], counts[schemas.StatusBroken], counts[schemas.StatusSkipped],
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(results) > 0 {
		if err := s.copyResults(ctx, tx, run.ID, results); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Stored run results.", zap.String("run_id", run.ID), zap.Int("results", len(results)))
	return nil
}

func (s *Store) copyResults(ctx context.Context, tx pgx.Tx, runID string, results []*schemas.TestResult) error {
	rows := make([][]any, len(results))
	for i, r := range results {
		screenshot := ""
		for _, a := range r.Attachments {
			if a.Path != "" {
				screenshot = a.Path
				break
			}
		}
		rows[i] = []any{
			r.ID, runID, r.Name, r.FullName,
			string(r.Status), string(r.Phase), r.Message,
			r.Start.UTC(), r.Duration().Milliseconds(), screenshot,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"test_results"}, resultColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy results: %w", err)
	}
	if int(copyCount) != len(results) {
		return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(results), copyCount)
	}
	return nil
}

// Flaky is a test case that failed at least once in a window of runs. Cases
// are keyed by full name, so subtests sharing a leaf name stay apart.
type Flaky struct {
	FullName string
	Failures int
	Runs     int
}

// FlakyTests lists test cases with failures since the given time, most
// failures first.
func (s *Store) FlakyTests(ctx context.Context, since time.Time, limit int) ([]Flaky, error) {
	rows, err := s.pool.Query(ctx, flakySQL, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query flaky tests: %w", err)
	}
	defer rows.Close()

	var out []Flaky
	for rows.Next() {
		var f Flaky
		if err := rows.Scan(&f.FullName, &f.Failures, &f.Runs); err != nil {
			return nil, fmt.Errorf("failed to scan flaky row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
