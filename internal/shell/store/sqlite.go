package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/shipper/internal/core/release"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteJournal
// =============================================================================

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sqlx.DB
}

// NewSQLiteJournal opens the journal database and runs migrations.
func NewSQLiteJournal(dsn string) (*SQLiteJournal, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteJournal", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteJournal", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteJournal", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteJournal{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Mapping
// =============================================================================

// runRow is the database representation of a release run.
type runRow struct {
	ID         string       `db:"id"`
	CommitRef  string       `db:"commit_ref"`
	Repository string       `db:"repository"`
	Version    string       `db:"version"`
	Status     string       `db:"status"`
	RolledBack bool         `db:"rolled_back"`
	Error      string       `db:"error"`
	Stages     string       `db:"stages"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
}

func toRow(run *release.Run) (*runRow, error) {
	stages, err := json.Marshal(run.Stages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stages: %w", err)
	}
	row := &runRow{
		ID:         run.ID,
		CommitRef:  run.Commit,
		Repository: run.Repository,
		Version:    run.Version.String(),
		Status:     string(run.Status),
		RolledBack: run.RolledBack,
		Error:      run.Error,
		Stages:     string(stages),
		StartedAt:  run.StartedAt,
	}
	if run.FinishedAt != nil {
		row.FinishedAt = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	return row, nil
}

func fromRow(row *runRow) (*release.Run, error) {
	run := &release.Run{
		ID:         row.ID,
		Commit:     row.CommitRef,
		Repository: row.Repository,
		Version:    release.VersionTag(row.Version),
		Status:     release.Status(row.Status),
		RolledBack: row.RolledBack,
		Error:      row.Error,
		StartedAt:  row.StartedAt,
	}
	if row.FinishedAt.Valid {
		t := row.FinishedAt.Time
		run.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(row.Stages), &run.Stages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stages: %w", err)
	}
	return run, nil
}

// =============================================================================
// Journal Operations
// =============================================================================

// RecordRun appends a finished run to the journal.
func (s *SQLiteJournal) RecordRun(ctx context.Context, run *release.Run) error {
	row, err := toRow(run)
	if err != nil {
		return NewStoreError("RecordRun", run.ID, err.Error(), err)
	}

	query := `
		INSERT INTO runs (id, commit_ref, repository, version, status, rolled_back, error, stages, started_at, finished_at)
		VALUES (:id, :commit_ref, :repository, :version, :status, :rolled_back, :error, :stages, :started_at, :finished_at)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return NewStoreError("RecordRun", run.ID, "run already recorded", ErrDuplicateRun)
		}
		return NewStoreError("RecordRun", run.ID, err.Error(), err)
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *SQLiteJournal) GetRun(ctx context.Context, id string) (*release.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", id, "run not found", ErrRunNotFound)
		}
		return nil, NewStoreError("GetRun", id, err.Error(), err)
	}
	return fromRow(&row)
}

// ListRuns returns runs ordered most recent first.
func (s *SQLiteJournal) ListRuns(ctx context.Context, opts ListOptions) ([]release.Run, error) {
	opts = opts.Normalize()

	var rows []runRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, NewStoreError("ListRuns", "", err.Error(), err)
	}

	runs := make([]release.Run, 0, len(rows))
	for i := range rows {
		run, err := fromRow(&rows[i])
		if err != nil {
			return nil, NewStoreError("ListRuns", rows[i].ID, err.Error(), err)
		}
		runs = append(runs, *run)
	}
	return runs, nil
}
