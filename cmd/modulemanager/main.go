// Module Manager - configuration and liveness service for display modules.
//
// Display modules announce themselves over MQTT; the service records them in
// SQLite, pushes their configuration back, and lets staff edit and remove
// them through a small authenticated web API.
//
// Commands:
//
//	modulemanager serve           run the service (default)
//	modulemanager migrate up      apply pending database migrations
//	modulemanager migrate down    roll back the latest migration
//	modulemanager migrate status  list applied and pending migrations
//	modulemanager hash-password   print an argon2id hash for security.users
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. Tests run it with their own args and writer.
func newApp() *cli.App {
	return &cli.App{
		Name:    "modulemanager",
		Usage:   "manage display modules over MQTT",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags:   []cli.Flag{FlagConfig},
		Action: func(c *cli.Context) error {
			return serve(c.Context, c.String(FlagConfig.Name))
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the MQTT gateway and web API",
				Action: func(c *cli.Context) error {
					return serve(c.Context, c.String(FlagConfig.Name))
				},
			},
			migrateCommand(),
			hashPasswordCommand(),
		},
	}
}
