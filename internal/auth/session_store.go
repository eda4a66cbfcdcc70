package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sessionTimeLayout is fixed-width so expires_at compares correctly as text.
const sessionTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SessionStore persists web sessions.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteSessionStore implements SessionStore on the sessions table.
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore creates a session store.
func NewSQLiteSessionStore(db *sql.DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db}
}

// Create inserts a session.
func (r *SQLiteSessionStore) Create(ctx context.Context, s *Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_dn, username, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserDN, s.Username,
		s.CreatedAt.UTC().Format(sessionTimeLayout),
		s.ExpiresAt.UTC().Format(sessionTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Get returns a session by id. Expiry is not checked here.
func (r *SQLiteSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		s                    Session
		createdAt, expiresAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_dn, username, created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserDN, &s.Username, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	if s.CreatedAt, err = time.Parse(sessionTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing session created_at: %w", err)
	}
	if s.ExpiresAt, err = time.Parse(sessionTimeLayout, expiresAt); err != nil {
		return nil, fmt.Errorf("parsing session expires_at: %w", err)
	}
	return &s, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *SQLiteSessionStore) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpired removes every session that expired at or before now.
func (r *SQLiteSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, now.UTC().Format(sessionTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return result.RowsAffected()
}
