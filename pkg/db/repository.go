package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/containerbox/boxprov/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the run ledger
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Create schema
	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateRun inserts a new run record in the running state
func (r *Repository) CreateRun(run *Run) error {
	slog.Info("database_create_run", "release_before", run.ReleaseBefore, "first_run", run.FirstRun)

	query := `
		INSERT INTO runs (status, first_run, release_before)
		VALUES (?, ?, ?)
	`
	result, err := r.db.Exec(query, StatusRunning, boolFlag(run.FirstRun), run.ReleaseBefore)
	if err != nil {
		slog.Error("database_insert_failed", "error", err)
		return errors.Wrap(err, "failed to insert run")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	run.ID = id
	run.Status = StatusRunning

	slog.Info("database_run_created", "run_id", run.ID)
	return nil
}

// CompleteRun finishes a run record with its outcome
func (r *Repository) CompleteRun(run *Run) error {
	slog.Info("database_complete_run", "run_id", run.ID, "status", run.Status)

	query := `
		UPDATE runs
		SET status = ?, release_after = ?, upgraded_packages = ?, tool_version = ?,
		    reboot_scheduled = ?, error_message = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		run.Status, run.ReleaseAfter, run.UpgradedPackages, run.ToolVersion,
		boolFlag(run.RebootScheduled), run.ErrorMessage, run.ID)
	if err != nil {
		slog.Error("database_update_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to update run")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "run_id", run.ID, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_run_not_found_for_update", "run_id", run.ID)
		return fmt.Errorf("run not found: id=%d", run.ID)
	}

	slog.Info("database_run_completed", "run_id", run.ID, "status", run.Status)
	return nil
}

const runColumns = `
	SELECT id, status, first_run, release_before, release_after,
	       upgraded_packages, tool_version, reboot_scheduled, error_message,
	       started_at, finished_at
	FROM runs
`

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var firstRun, rebootScheduled int
	var releaseAfter, toolVersion, errorMessage, finishedAt sql.NullString
	var upgraded sql.NullInt64

	err := scan(
		&run.ID, &run.Status, &firstRun, &run.ReleaseBefore, &releaseAfter,
		&upgraded, &toolVersion, &rebootScheduled, &errorMessage,
		&run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	// Handle nullable fields
	run.FirstRun = firstRun != 0
	run.RebootScheduled = rebootScheduled != 0
	run.ReleaseAfter = releaseAfter.String
	run.ToolVersion = toolVersion.String
	run.UpgradedPackages = int(upgraded.Int64)
	run.ErrorMessage = errorMessage.String
	run.FinishedAt = finishedAt.String

	return &run, nil
}

// Latest retrieves the most recent run
func (r *Repository) Latest() (*Run, error) {
	slog.Info("database_query_latest_run")

	row := r.db.QueryRow(runColumns + " ORDER BY id DESC LIMIT 1")
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		slog.Info("database_no_runs")
		return nil, nil // Not found
	}
	if err != nil {
		slog.Error("database_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to query latest run")
	}

	slog.Info("database_latest_run", "run_id", run.ID, "status", run.Status)
	return run, nil
}

// List retrieves runs, newest first. A non-positive limit returns all runs.
func (r *Repository) List(limit int) ([]*Run, error) {
	slog.Info("database_list_runs", "limit", limit)

	if limit <= 0 {
		limit = -1 // SQLite treats a negative limit as unbounded
	}
	rows, err := r.db.Query(runColumns+" ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "run_count", len(runs))
	return runs, nil
}
