// Package api implements the HTTP API and WebSocket stream for the module manager.
//
// This package provides:
//   - Module endpoints: overview, detail, edit and delete
//   - Session login/logout backed by the user directory
//   - The module event log
//   - A WebSocket hub relaying committed module changes
//
// # Architecture
//
// The API is a thin layer over module.Service. Handlers decode the request,
// call the service with the session's username as actor, and map domain
// errors to HTTP status codes. Configuration pushes to devices happen inside
// the service, never here.
//
// # Security
//
// Every route except /health and /auth/login requires a session token, sent
// either in the session cookie or as a Bearer header. Tokens are checked
// against the session store on every request, so logout takes effect
// immediately.
package api
