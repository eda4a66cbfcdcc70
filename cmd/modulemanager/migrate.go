package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/nerrad567/module-manager/internal/infrastructure/config"
	"github.com/nerrad567/module-manager/internal/infrastructure/database"
	_ "github.com/nerrad567/module-manager/migrations"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "manage the database schema",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: func(c *cli.Context) error {
					return withDatabase(c, func(ctx context.Context, db *database.DB, out io.Writer) error {
						_, pending, err := db.MigrationStatus(ctx)
						if err != nil {
							return err
						}
						if err := db.Migrate(ctx); err != nil {
							return fmt.Errorf("running migrations: %w", err)
						}
						fmt.Fprintf(out, "applied %d migration(s)\n", len(pending))
						return nil
					})
				},
			},
			{
				Name:  "down",
				Usage: "roll back the latest migration",
				Action: func(c *cli.Context) error {
					return withDatabase(c, func(ctx context.Context, db *database.DB, out io.Writer) error {
						version, err := db.MigrateDown(ctx)
						if err != nil {
							return fmt.Errorf("rolling back: %w", err)
						}
						if version == "" {
							fmt.Fprintln(out, "nothing to roll back")
							return nil
						}
						fmt.Fprintf(out, "rolled back %s\n", version)
						return nil
					})
				},
			},
			{
				Name:  "status",
				Usage: "list applied and pending migrations",
				Action: func(c *cli.Context) error {
					return withDatabase(c, func(ctx context.Context, db *database.DB, out io.Writer) error {
						applied, pending, err := db.MigrationStatus(ctx)
						if err != nil {
							return err
						}
						for _, r := range applied {
							fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
						}
						for _, m := range pending {
							fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
						}
						return nil
					})
				},
			},
		},
	}
}

// withDatabase loads the configuration, opens the database and runs fn.
func withDatabase(c *cli.Context, fn func(ctx context.Context, db *database.DB, out io.Writer) error) error {
	cfg, err := config.Load(c.String(FlagConfig.Name))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(c.Context, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Read-mostly command

	return fn(c.Context, db, c.App.Writer)
}
