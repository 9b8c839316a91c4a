package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"webpilot/internal/domain"
)

// SQLiteRunStore implements domain.RunStore using SQLite.
type SQLiteRunStore struct {
	db *sql.DB
}

// NewSQLiteRunStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteRunStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS task_runs (
			id          TEXT PRIMARY KEY,
			input       TEXT NOT NULL,
			intent      TEXT NOT NULL,
			site        TEXT NOT NULL DEFAULT '',
			state       TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			steps       TEXT NOT NULL DEFAULT '[]',
			started_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteRunStore) SaveRun(_ context.Context, run domain.TaskRun) error {
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal run steps: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO task_runs (id, input, intent, site, state, error, steps, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		run.ID, run.Input, string(run.Intent), run.Site, string(run.State), run.Error,
		string(stepsJSON),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteRunStore) GetRun(_ context.Context, id string) (*domain.TaskRun, error) {
	row := s.db.QueryRow(
		"SELECT id, input, intent, site, state, error, steps, started_at, finished_at FROM task_runs WHERE id = ?", id,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task run %s: %w", id, domain.ErrRunNotFound)
	}
	return run, err
}

func (s *SQLiteRunStore) ListRuns(_ context.Context, limit int) ([]domain.TaskRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, input, intent, site, state, error, steps, started_at, finished_at FROM task_runs ORDER BY started_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.TaskRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.TaskRun, error) {
	var run domain.TaskRun
	var intent, state, stepsStr, startedStr, finishedStr string
	if err := row.Scan(&run.ID, &run.Input, &intent, &run.Site, &state, &run.Error, &stepsStr, &startedStr, &finishedStr); err != nil {
		return nil, err
	}
	run.Intent = domain.Intent(intent)
	run.State = domain.TaskState(state)
	if err := json.Unmarshal([]byte(stepsStr), &run.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal run steps: %w", err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
	run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedStr)
	return &run, nil
}
