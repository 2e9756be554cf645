// Package journal persists a record of every command the host dispatched.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultRecentLimit = 50

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts e. An empty ID is filled with a fresh uuid.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Command == "" {
		return fmt.Errorf("command is empty")
	}
	if e.Status == "" {
		return fmt.Errorf("status is empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	var message any
	if e.Message != "" {
		message = e.Message
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO command_log(id, command, class, status, message, duration_us, remote, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Command, e.Class, string(e.Status), message, e.Duration.Microseconds(), e.Remote,
		e.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Command, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// uses the default.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, command, class, status, message, duration_us, remote, started_at
FROM command_log
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			status    string
			message   sql.NullString
			durUS     int64
			startedAt string
		)
		if err := rows.Scan(&e.ID, &e.Command, &e.Class, &status, &message, &durUS, &e.Remote, &startedAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Status = Status(status)
		e.Message = message.String
		e.Duration = time.Duration(durUS) * time.Microsecond
		t, err := time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at for %s: %w", e.ID, err)
		}
		e.StartedAt = t
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}

// Prune deletes entries that started more than retention ago and returns
// how many were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := time.Now().Add(-retention).UTC().Format(timeLayout)

	res, err := s.db.ExecContext(ctx, `DELETE FROM command_log WHERE started_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal rows affected: %w", err)
	}
	return n, nil
}
