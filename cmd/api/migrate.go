package main

import (
	"context"
	"database/sql"
	"fmt"

	"settlement-gateway/config"
	"settlement-gateway/migrations"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|status|version|redo|up-to|down-to> [version]",
		Short: "Run database migrations",
		Args:  cobra.RangeArgs(1, 2),
		ValidArgs: []string{
			"up", "down", "status", "version", "redo", "up-to", "down-to",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("migrations need the postgres driver, got %q", cfg.Database.Driver)
			}
			return runMigrations(cmd.Context(), cfg.Database.DSN(), args[0], args[1:]...)
		},
	}
}

func runMigrations(ctx context.Context, dsn, command string, args ...string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	return nil
}
