// Package jobstore persists job state in SQLite.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
)

// Status of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the job has stopped.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 50

const busyTimeoutMS = 10_000

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	input         TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	progress      INTEGER NOT NULL DEFAULT 0,
	message       TEXT NOT NULL DEFAULT '',
	frames_total  INTEGER NOT NULL DEFAULT 0,
	frames_unique INTEGER NOT NULL DEFAULT 0,
	texts_total   INTEGER NOT NULL DEFAULT 0,
	texts_unique  INTEGER NOT NULL DEFAULT 0,
	document      TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_created_at ON jobs(created_at DESC);
`

const columns = `id, input, title, status, progress, message, frames_total, frames_unique,
	texts_total, texts_unique, document, error, created_at, updated_at`

// Job is one processing request and its outcome.
type Job struct {
	ID           string    `json:"id"`
	Input        string    `json:"input"`
	Title        string    `json:"title"`
	Status       Status    `json:"status"`
	Progress     int       `json:"progress"`
	Message      string    `json:"message"`
	FramesTotal  int       `json:"frames_total"`
	FramesUnique int       `json:"frames_unique"`
	TextsTotal   int       `json:"texts_total"`
	TextsUnique  int       `json:"texts_unique"`
	Document     string    `json:"document,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is a SQLite-backed job table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path with WAL journaling and a busy
// timeout applied to every connection.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(err, apperrors.Internal, "create store dir")
		}
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "synchronous(NORMAL)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "open job store")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.Internal, "create jobs schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Create inserts a queued job with a fresh id.
func (s *Store) Create(ctx context.Context, input, title string) (*Job, error) {
	now := s.now().UTC()
	j := &Job{
		ID:        uuid.NewString(),
		Input:     input,
		Title:     title,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, input, title, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.Input, j.Title, j.Status, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "insert job")
	}
	return j, nil
}

// Update writes every mutable field of j and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, j *Job) error {
	j.UpdatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ?, progress = ?, message = ?,
		frames_total = ?, frames_unique = ?, texts_total = ?, texts_unique = ?,
		document = ?, error = ?, updated_at = ? WHERE id = ?`,
		j.Status, j.Progress, j.Message, j.FramesTotal, j.FramesUnique, j.TextsTotal, j.TextsUnique,
		j.Document, j.Error, j.UpdatedAt.UnixMilli(), j.ID)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.Internal, "update job %s", j.ID)
	}
	return checkAffected(res, j.ID)
}

// SetProgress records a progress update without touching the counters.
func (s *Store) SetProgress(ctx context.Context, id string, percent int, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = ?, message = ?, updated_at = ? WHERE id = ?`,
		StatusRunning, percent, message, s.now().UTC().UnixMilli(), id)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.Internal, "update job %s", id)
	}
	return checkAffected(res, id)
}

// Get returns the job with id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM jobs WHERE id = ?`, id)
	j, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.JobNotFound, "job %s not found", id)
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.Internal, "get job %s", id)
	}
	return j, nil
}

// List returns the newest jobs first.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "list jobs")
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scan(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.Internal, "scan job")
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "list jobs")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (*Job, error) {
	var j Job
	var created, updated int64
	err := r.Scan(&j.ID, &j.Input, &j.Title, &j.Status, &j.Progress, &j.Message,
		&j.FramesTotal, &j.FramesUnique, &j.TextsTotal, &j.TextsUnique,
		&j.Document, &j.Error, &created, &updated)
	if err != nil {
		return nil, err
	}
	j.CreatedAt = time.UnixMilli(created).UTC()
	j.UpdatedAt = time.UnixMilli(updated).UTC()
	return &j, nil
}

func checkAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "rows affected")
	}
	if n == 0 {
		return apperrors.Newf(apperrors.JobNotFound, "job %s not found", id)
	}
	return nil
}
