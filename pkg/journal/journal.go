package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run and step statuses recorded in the journal.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusWarned    = "warned"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Run is one workflow run.
type Run struct {
	ID         string
	Document   string
	DryRun     bool
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// StepEvent is the recorded outcome of one workflow step.
type StepEvent struct {
	ID          string
	RunID       string
	Seq         int
	Description string
	Actor       string
	Array       string
	Status      string
	Error       string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Config holds journal store configuration.
type Config struct {
	// Path is the SQLite database file path.
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store persists runs and step events in SQLite.
type Store struct {
	db   *sql.DB
	path string
	cfg  Config
}

// NewStore creates a journal store. Call Init to open the database and run
// migrations.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &Store{path: cfg.Path, cfg: cfg}, nil
}

// Init opens the database, enables WAL mode, and runs migrations.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("opening journal database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("pinging journal database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("enabling foreign keys: %w", err)
	}

	s.db = db
	return s.migrate()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// StartRun records the beginning of a workflow run.
func (s *Store) StartRun(ctx context.Context, id, document string, dryRun bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, document, dry_run, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, document, dryRun, StatusRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal status.
func (s *Store) FinishRun(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// RecordStep persists one step outcome. A zero event ID gets a fresh UUID.
func (s *Store) RecordStep(ctx context.Context, event StepEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.StartedAt.IsZero() {
		event.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (id, run_id, seq, description, actor, array_name, status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.RunID, event.Seq, event.Description, event.Actor,
		event.Array, event.Status, event.Error, event.StartedAt, event.FinishedAt)
	if err != nil {
		return fmt.Errorf("recording step: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, dry_run, status, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Document, &r.DryRun, &r.Status, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Steps returns a run's step events in execution order.
func (s *Store) Steps(ctx context.Context, runID string) ([]StepEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, seq, description, actor, array_name, status, error, started_at, finished_at
		 FROM steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing steps: %w", err)
	}
	defer rows.Close()

	var events []StepEvent
	for rows.Next() {
		var e StepEvent
		var finished sql.NullTime
		if err := rows.Scan(&e.ID, &e.RunID, &e.Seq, &e.Description, &e.Actor,
			&e.Array, &e.Status, &e.Error, &e.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		if finished.Valid {
			e.FinishedAt = &finished.Time
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
