package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/forgehook/forgehostd/internal/config"
	"github.com/forgehook/forgehostd/internal/store"
)

// buildMigrateCmd creates the "migrate" command group, grounded on the
// teacher's cmd/nexus commands_migrate.go up/down/status trio (the
// workspace- and session-import subcommands there have no analogue in
// this domain and are dropped).
func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres-backed store's schema",
	}
	cmd.AddCommand(buildMigrateUpCmd(), buildMigrateDownCmd(), buildMigrateStatusCmd())
	return cmd
}

func buildMigrateUpCmd() *cobra.Command {
	var configPath string
	var steps int

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context(), resolveConfigPath(configPath), steps)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().IntVarP(&steps, "steps", "n", 0, "Number of migrations to apply (0 = all)")
	return cmd
}

func buildMigrateDownCmd() *cobra.Command {
	var configPath string
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last N migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateDown(cmd.Context(), resolveConfigPath(configPath), steps)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to roll back")
	return cmd
}

func buildMigrateStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	return cmd
}

func runMigrateUp(ctx context.Context, configPath string, steps int) error {
	db, migrator, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := migrator.Up(ctx, steps)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		slog.Info("no pending migrations")
		return nil
	}
	for _, id := range applied {
		slog.Info("applied migration", "id", id)
	}
	return nil
}

func runMigrateDown(ctx context.Context, configPath string, steps int) error {
	db, migrator, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rolled, err := migrator.Down(ctx, steps)
	if err != nil {
		return err
	}
	if len(rolled) == 0 {
		slog.Info("no migrations to roll back")
		return nil
	}
	for _, id := range rolled {
		slog.Info("rolled back migration", "id", id)
	}
	return nil
}

func runMigrateStatus(cmd *cobra.Command, configPath string) error {
	db, migrator, err := openMigrator(configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, pending, err := migrator.Status(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Applied migrations:")
	if len(applied) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, a := range applied {
		fmt.Fprintf(out, "  - %s (%s)\n", a.ID, a.AppliedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	fmt.Fprintln(out, "Pending migrations:")
	if len(pending) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, p := range pending {
		fmt.Fprintf(out, "  - %s\n", p.ID)
	}
	return nil
}

func openMigrator(configPath string) (*sql.DB, *store.Migrator, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Persistence.Driver != "postgres" {
		return nil, nil, fmt.Errorf("migrations require persistence.driver=postgres, got %q", cfg.Persistence.Driver)
	}
	db, err := sql.Open("postgres", cfg.Persistence.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	pool := store.DefaultPostgresConfig()
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(context.Background(), pool.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	migrator, err := store.NewMigrator(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("initialize migrator: %w", err)
	}
	return db, migrator, nil
}
