package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// User is a directory entry that passed authentication.
type User struct {
	Username string   `json:"username"`
	DN       string   `json:"dn"`
	Groups   []string `json:"groups,omitempty"`
}

// Session is a logged-in staff member.
type Session struct {
	ID        string    `json:"id"`
	UserDN    string    `json:"user_dn"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Domain errors for the auth package.
var (
	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccessDenied is returned for valid credentials outside the allowed group.
	ErrAccessDenied = errors.New("access denied")

	// ErrDirectoryUnavailable is returned when the directory cannot be reached.
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	// ErrSessionNotFound is returned for unknown, deleted or expired sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenInvalid is returned for tokens with a bad signature, expiry or claims.
	ErrTokenInvalid = errors.New("invalid token")
)
