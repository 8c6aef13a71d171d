package core

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed record of past job submissions.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

// Submission is one recorded `batchkit submit`.
type Submission struct {
	ID          string
	JobID       string
	Region      string
	WorkDir     string
	TaskCount   int
	SubmittedAt time.Time
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordSubmission appends a submission to the history.
func (s *Store) RecordSubmission(ctx context.Context, sub Submission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, job_id, region, work_dir, task_count, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.JobID, sub.Region, sub.WorkDir, sub.TaskCount, sub.SubmittedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// ListSubmissions returns recorded submissions, most recent first.
func (s *Store) ListSubmissions(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, region, work_dir, task_count, submitted_at
		 FROM submissions ORDER BY submitted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var sub Submission
		var at string
		if err := rows.Scan(&sub.ID, &sub.JobID, &sub.Region, &sub.WorkDir, &sub.TaskCount, &at); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.SubmittedAt, err = time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, fmt.Errorf("parse submitted_at %q: %w", at, err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
