// Package store persists the durable subset of the session set: the ordered
// list of (name, webhook, createdAt) records. Runtime status is never stored.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/clevio/dashboard/internal/model"
)

// Store provides data access for persisted sessions.
type Store struct {
	db *sql.DB
}

// New creates a Store over an opened database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Load returns every persisted session, oldest first. A read failure degrades
// to an empty set: restoration must proceed even when the backing store is
// missing or unreadable.
func (s *Store) Load(ctx context.Context) []model.PersistedSession {
	query := `
		SELECT name, webhook, created_at
		FROM sessions
		ORDER BY created_at, name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Printf("store: failed to load sessions, starting empty: %v", err)
		return nil
	}
	defer rows.Close()

	var sessions []model.PersistedSession
	for rows.Next() {
		var rec model.PersistedSession
		if err := rows.Scan(&rec.Name, &rec.Webhook, &rec.CreatedAt); err != nil {
			log.Printf("store: skipping unreadable session row: %v", err)
			continue
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		log.Printf("store: error iterating sessions: %v", err)
	}

	return sessions
}

// Save replaces the persisted set with records. The write is transactional so
// a failure never leaves a half-updated set behind.
func (s *Store) Save(ctx context.Context, records []model.PersistedSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}

	insert := `INSERT INTO sessions (name, webhook, created_at) VALUES (?, ?, ?)`
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, insert, rec.Name, rec.Webhook, rec.CreatedAt); err != nil {
			return fmt.Errorf("failed to save session %q: %w", rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save: %w", err)
	}
	return nil
}
