// Package auth authenticates staff and tracks their web sessions.
//
// Credentials are checked against a Directory. StaticDirectory is backed
// by the configured user list with Argon2id password hashes; only members
// of the configured group may log in.
//
// A successful login creates a server-side Session and returns an HS256
// token carrying its id. Every request re-checks the session record, so
// logging out (deleting the record) revokes the token immediately even
// though it has not expired.
package auth
