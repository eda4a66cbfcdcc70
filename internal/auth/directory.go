package auth

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/module-manager/internal/infrastructure/config"
)

// Directory authenticates staff credentials.
type Directory interface {
	// Authenticate returns the user on success, or ErrInvalidCredentials,
	// ErrAccessDenied or ErrDirectoryUnavailable.
	Authenticate(ctx context.Context, username, password string) (*User, error)
}

// directoryEntry is one configured account.
type directoryEntry struct {
	user         User
	passwordHash string
}

// StaticDirectory authenticates against the configured user list.
type StaticDirectory struct {
	entries      map[string]directoryEntry
	allowedGroup string

	// dummyHash is verified for unknown usernames so both failure paths
	// cost the same.
	dummyOnce sync.Once
	dummyHash string
}

// NewStaticDirectory builds a directory from configuration.
//
// An empty allowedGroup admits every configured user.
func NewStaticDirectory(users []config.UserConfig, allowedGroup string) (*StaticDirectory, error) {
	d := &StaticDirectory{
		entries:      make(map[string]directoryEntry, len(users)),
		allowedGroup: allowedGroup,
	}
	for _, u := range users {
		if !IsValidUsername(u.Username) {
			return nil, fmt.Errorf("invalid username %q", u.Username)
		}
		if _, _, _, err := decodePHC(u.PasswordHash); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Username, err)
		}
		if _, dup := d.entries[u.Username]; dup {
			return nil, fmt.Errorf("duplicate user %q", u.Username)
		}

		dn := u.DN
		if dn == "" {
			dn = "uid=" + u.Username
		}
		d.entries[u.Username] = directoryEntry{
			user: User{
				Username: u.Username,
				DN:       dn,
				Groups:   slices.Clone(u.Groups),
			},
			passwordHash: u.PasswordHash,
		}
	}
	return d, nil
}

// Authenticate implements Directory.
func (d *StaticDirectory) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	entry, ok := d.entries[username]
	if !ok || password == "" {
		d.burnDummyHash(password)
		return nil, ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, entry.passwordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	if d.allowedGroup != "" && !slices.Contains(entry.user.Groups, d.allowedGroup) {
		return nil, ErrAccessDenied
	}

	user := entry.user
	user.Groups = slices.Clone(entry.user.Groups)
	return &user, nil
}

func (d *StaticDirectory) burnDummyHash(password string) {
	d.dummyOnce.Do(func() {
		d.dummyHash, _ = HashPassword("dummy-password-for-timing")
	})
	if d.dummyHash != "" {
		_, _ = VerifyPassword(password, d.dummyHash)
	}
}
