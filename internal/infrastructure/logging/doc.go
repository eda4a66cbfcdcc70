// Package logging provides structured logging for the module manager.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Categories
//
// Records are tagged with one of four categories: app, auth, api and
// microcontrollers. With output "file" each category is written to its own
// file under logging.file.dir, rotated by lumberjack.
//
// # Message convention
//
// Domain events use a short title as the message and carry the long form in
// a "description" attribute:
//
//	mc := logger.Category(logging.CategoryMicrocontrollers)
//	mc.Info("Module Disconnected (Last Will)",
//	    "description", "module marked as offline due to last will",
//	    "mac", mac, "place", place)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    dir: "./logs"
//	    max_size: 50     # MB
//	    max_backups: 1
//	    max_age: 7       # days
//
// Never log secrets, tokens, or passwords.
package logging
