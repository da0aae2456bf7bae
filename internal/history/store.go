// Package history records every spawned project process in SQLite.
//
// History is an audit trail: it is never read back to restore project status.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit caps ListRuns when the caller passes no limit.
const DefaultListLimit = 50

// End reasons.
const (
	ReasonStopped = "stopped"
	ReasonExited  = "exited"
)

// Run is one spawned process of a project.
type Run struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Type      string     `json:"type"`
	Port      int        `json:"port"`
	PID       int        `json:"pid"`
	Command   string     `json:"command"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
}

// Store reads and writes project_runs.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RecordStart inserts an open run. run.ID is generated when empty.
func (s *Store) RecordStart(ctx context.Context, run Run) error {
	if run.ProjectID == "" {
		return fmt.Errorf("project id is empty")
	}
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO project_runs(id, project_id, type, port, pid, command, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, run.ID, run.ProjectID, run.Type, run.Port, run.PID, run.Command, formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordEnd closes a run. exitCode is nil when the exit status is unknown.
func (s *Store) RecordEnd(ctx context.Context, runID, reason string, exitCode *int, at time.Time) error {
	var code sql.NullInt64
	if exitCode != nil {
		code = sql.NullInt64{Int64: int64(*exitCode), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE project_runs SET ended_at = ?, end_reason = ?, exit_code = ?
WHERE id = ? AND ended_at IS NULL;
`, formatTime(at), reason, code, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %q not found or already ended", runID)
	}
	return nil
}

// ListRuns returns the most recent runs of a project, newest first.
func (s *Store) ListRuns(ctx context.Context, projectID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, project_id, type, port, pid, command, started_at, ended_at, end_reason, exit_code
FROM project_runs
WHERE project_id = ?
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := make([]Run, 0)
	for rows.Next() {
		var (
			r         Run
			startedAt string
			endedAt   sql.NullString
			reason    sql.NullString
			exitCode  sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Type, &r.Port, &r.PID, &r.Command, &startedAt, &endedAt, &reason, &exitCode); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if endedAt.Valid {
			t, err := parseTime(endedAt.String)
			if err != nil {
				return nil, err
			}
			r.EndedAt = &t
		}
		r.EndReason = reason.String
		if exitCode.Valid {
			code := int(exitCode.Int64)
			r.ExitCode = &code
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
