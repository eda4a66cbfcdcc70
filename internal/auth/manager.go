package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the auth package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Directory Directory
	Sessions  SessionStore
	Secret    string
	TTL       time.Duration
	Logger    Logger // auth category; optional
}

// Manager ties the directory, the session store and token signing together.
type Manager struct {
	directory Directory
	sessions  SessionStore
	secret    string
	ttl       time.Duration
	logger    Logger
	now       func() time.Time
}

// NewManager creates a Manager.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Directory == nil || opts.Sessions == nil {
		return nil, errors.New("auth: directory and session store are required")
	}
	if opts.Secret == "" {
		return nil, errors.New("auth: token secret is required")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("auth: session TTL must be positive")
	}
	m := &Manager{
		directory: opts.Directory,
		sessions:  opts.Sessions,
		secret:    opts.Secret,
		ttl:       opts.TTL,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	return m, nil
}

// Login authenticates credentials and opens a session.
//
// Returns:
//   - string: Signed session token
//   - *Session: The stored session
//   - error: ErrInvalidCredentials, ErrAccessDenied, ErrDirectoryUnavailable,
//     or a wrapped store error
func (m *Manager) Login(ctx context.Context, username, password string) (string, *Session, error) {
	user, err := m.directory.Authenticate(ctx, username, password)
	switch {
	case errors.Is(err, ErrAccessDenied):
		m.logger.Warn("LDAP Auth Failed (Access Denied)",
			"description", fmt.Sprintf("user %s authenticated but is not in the allowed group", username),
			"username", username)
		return "", nil, err
	case errors.Is(err, ErrInvalidCredentials):
		m.logger.Warn("Login Attempt Failed",
			"description", fmt.Sprintf("invalid credentials for user %s", username),
			"username", username)
		return "", nil, err
	case err != nil:
		m.logger.Error("LDAP Connection Error",
			"description", "could not reach the user directory",
			"username", username, "error", err)
		return "", nil, err
	}

	now := m.now().UTC()
	session := &Session{
		ID:        uuid.NewString(),
		UserDN:    user.DN,
		Username:  user.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		m.logger.Error("Session Create Error",
			"description", "could not store new session",
			"username", username, "error", err)
		return "", nil, fmt.Errorf("creating session: %w", err)
	}

	token, err := IssueToken(session, m.secret)
	if err != nil {
		_ = m.sessions.Delete(ctx, session.ID)
		return "", nil, err
	}

	m.logger.Info("LDAP Auth Success",
		"description", fmt.Sprintf("user %s logged in", user.Username),
		"username", user.Username, "dn", user.DN)
	return token, session, nil
}

// Authenticate resolves a session token to a live session.
//
// The token must carry a valid signature and expiry, and its session
// record must still exist and not be expired.
func (m *Manager) Authenticate(ctx context.Context, token string) (*Session, error) {
	claims, err := parseToken(token, m.secret, m.now)
	if err != nil {
		return nil, err
	}

	session, err := m.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(m.now()) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Logout deletes the session.
func (m *Manager) Logout(ctx context.Context, session *Session) error {
	if err := m.sessions.Delete(ctx, session.ID); err != nil {
		return err
	}
	m.logger.Info("User Logout",
		"description", fmt.Sprintf("user %s logged out", session.Username),
		"username", session.Username)
	return nil
}

// PurgeExpired deletes expired sessions once.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.sessions.DeleteExpired(ctx, m.now())
	if err != nil {
		m.logger.Error("Session Purge Error",
			"description", "could not delete expired sessions", "error", err)
		return 0, err
	}
	return n, nil
}

// RunPurge deletes expired sessions every interval until ctx is cancelled.
func (m *Manager) RunPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = m.PurgeExpired(ctx)
		}
	}
}
