package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"
	"github.com/lsilvatti/modxlate/internal/task"
)

// SQLiteStore is the default Store, opened against modernc.org/sqlite
// with the same WAL-mode/pool settings as the teacher's db.newCache.
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if necessary) the task database at dsn. Every
// connection is opened with _txlock=immediate and a busy_timeout pragma
// so Update's read-modify-write transaction (below) takes its row lock
// up front instead of upgrading a deferred read lock, and a concurrent
// writer blocks for busy_timeout rather than failing instantly with
// SQLITE_BUSY.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withImmediateTxDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &SQLiteStore{db: db, log: slog.Default().With("component", "store")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

// withImmediateTxDSN appends modernc.org/sqlite's _txlock and
// busy_timeout query parameters to dsn, preserving whatever parameters
// the caller already supplied.
func withImmediateTxDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_txlock=immediate&_pragma=busy_timeout(5000)"
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id               TEXT PRIMARY KEY,
	source_url       TEXT NOT NULL,
	dest_bucket      TEXT NOT NULL,
	dest_key         TEXT NOT NULL,
	target_language  TEXT NOT NULL,
	style_hint       TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	progress         REAL NOT NULL DEFAULT 0,
	total_files      INTEGER NOT NULL DEFAULT 0,
	processed_files  INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	completed_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks(updated_at);
`

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

// Create implements Store.Create as an idempotent upsert.
func (s *SQLiteStore) Create(ctx context.Context, t task.Task) error {
	now := t.CreatedAt
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, source_url, dest_bucket, dest_key, target_language, style_hint, status, progress, total_files, processed_files, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, t.ID.String(), t.SourceURL, t.DestBucket, t.DestKey, t.TargetLanguage, t.StyleHint, string(t.Status), t.Progress, t.TotalFiles, t.ProcessedFiles, t.ErrorMessage, now, now)
	if err != nil {
		return fmt.Errorf("store: create task %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

const selectCols = "id, source_url, dest_bucket, dest_key, target_language, style_hint, status, progress, total_files, processed_files, error_message, created_at, updated_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (task.Task, error) {
	var t task.Task
	var id string
	var status string
	var completedAt sql.NullTime

	err := row.Scan(&id, &t.SourceURL, &t.DestBucket, &t.DestKey, &t.TargetLanguage, &t.StyleHint,
		&status, &t.Progress, &t.TotalFiles, &t.ProcessedFiles, &t.ErrorMessage,
		&t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return task.Task{}, &task.NotFoundError{ID: id}
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("store: scan task: %w", err)
	}

	parsed, parseErr := uuid.Parse(id)
	if parseErr != nil {
		return task.Task{}, fmt.Errorf("store: parse task id %q: %w", id, parseErr)
	}
	t.ID = parsed
	t.Status = task.Status(status)
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

func (s *SQLiteStore) List(ctx context.Context, statuses ...task.Status) ([]task.Task, error) {
	query := `SELECT ` + selectCols + ` FROM tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (`
		for i, st := range statuses {
			if i > 0 {
				query += ", "
			}
			query += "?"
			args = append(args, string(st))
		}
		query += ")"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete task %s: %w", id, err)
	}
	return nil
}

// Update implements Store.Update: a single row-locked transaction that
// reads the current row, lets mutate apply in-memory changes, validates
// the resulting status transition, and writes the row back.
func (s *SQLiteStore) Update(ctx context.Context, id string, mutate func(t *task.Task) error) (task.Task, error) {
	// The connection's _txlock=immediate DSN option (set in Open) makes
	// this BeginTx issue BEGIN IMMEDIATE under the hood, taking the
	// write lock before the SELECT below runs. A deferred transaction
	// would take a read lock first and only attempt to upgrade it on
	// the UPDATE, so two concurrent Updates could both acquire the read
	// lock and then fail the upgrade with SQLITE_BUSY instead of
	// serializing; BEGIN IMMEDIATE plus the busy_timeout pragma makes a
	// second writer block and wait its turn instead.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return task.Task{}, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+selectCols+` FROM tasks WHERE id = ?`, id)
	current, err := scanTask(row)
	if err != nil {
		return task.Task{}, err
	}

	before := current.Status
	if err := mutate(&current); err != nil {
		return task.Task{}, err
	}

	if err := task.ValidateTransition(before, current.Status); err != nil {
		return task.Task{}, err
	}

	current.UpdatedAt = time.Now()
	var completedAt any
	if current.Status.IsTerminal() {
		if current.CompletedAt == nil {
			current.CompletedAt = &current.UpdatedAt
		}
		completedAt = *current.CompletedAt
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET source_url=?, dest_bucket=?, dest_key=?, target_language=?, style_hint=?,
			status=?, progress=?, total_files=?, processed_files=?, error_message=?, updated_at=?, completed_at=?
		WHERE id=?
	`, current.SourceURL, current.DestBucket, current.DestKey, current.TargetLanguage, current.StyleHint,
		string(current.Status), current.Progress, current.TotalFiles, current.ProcessedFiles, current.ErrorMessage,
		current.UpdatedAt, completedAt, id)
	if err != nil {
		return task.Task{}, fmt.Errorf("store: write task %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return task.Task{}, fmt.Errorf("store: commit task %s: %w", id, err)
	}

	s.log.Debug("task updated", "id", id, "from", before, "to", current.Status)
	return current, nil
}
