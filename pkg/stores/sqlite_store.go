// Package stores persists run history so repeated invocations leave an
// auditable idempotence trail (second-run reports show "skipped" rows).
package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/piwi3910/searchbench/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunRecord is one stored run summary.
type RunRecord struct {
	RunID          string    `json:"run_id"`
	Environment    string    `json:"environment"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	ProfileCreated bool      `json:"profile_created"`
	Failed         bool      `json:"failed"`
}

// SQLiteStore persists reports in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new store instance for the given database path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SaveReport stores one run report with all per-engine outcomes.
func (s *SQLiteStore) SaveReport(ctx context.Context, r *engine.Report) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, environment, started_at, finished_at, profile_created, failed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Environment, r.StartedAt, r.FinishedAt, r.ProfileCreated, r.Failed())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, o := range r.Engines {
		warnings, err := json.Marshal(o.Warnings)
		if err != nil {
			return fmt.Errorf("failed to encode warnings: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO engine_outcomes (run_id, engine, container, status, endpoint, error, warnings, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, o.Engine, o.Container, string(o.Status), o.Endpoint, o.Error,
			string(warnings), o.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to insert engine outcome: %w", err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, environment, started_at, finished_at, profile_created, failed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.Environment, &r.StartedAt, &r.FinishedAt,
			&r.ProfileCreated, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outcomes returns the per-engine outcomes of one run.
func (s *SQLiteStore) Outcomes(ctx context.Context, runID string) ([]engine.EngineOutcome, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT engine, container, status, endpoint, error, warnings, duration_ms
		 FROM engine_outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []engine.EngineOutcome
	for rows.Next() {
		var (
			o          engine.EngineOutcome
			status     string
			warnings   string
			durationMS int64
		)
		if err := rows.Scan(&o.Engine, &o.Container, &status, &o.Endpoint, &o.Error,
			&warnings, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Status = engine.EngineStatus(status)
		o.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(warnings), &o.Warnings); err != nil {
			return nil, fmt.Errorf("failed to decode warnings: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
