package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository stores activity entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an activity-log repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes one entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.User == "" {
		entry.User = "Unknown"
	}
	if entry.Category == "" {
		entry.Category = CategoryGeneral
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO activity_log (id, username, action, category, created_at)
VALUES ($1,$2,$3,$4,$5)`,
		entry.ID, entry.User, entry.Action, entry.Category, entry.Timestamp)
	return err
}

// List returns entries newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, username, action, category, created_at
FROM activity_log
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.User, &entry.Action, &entry.Category, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.Timestamp = entry.Timestamp.UTC()
		result = append(result, entry)
	}
	return result, rows.Err()
}
