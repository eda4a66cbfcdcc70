// Package database provides SQLite connectivity for the module manager.
//
// This package manages:
//   - Database connection with WAL mode and a busy timeout
//   - Schema migrations embedded in the binary
//   - Transaction helpers used by every store mutation
//
// The pool holds one connection. SQLite serialises writers anyway, and a
// single connection keeps transactional read-modify-write sequences from
// MQTT callbacks and HTTP handlers strictly ordered.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
