package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	upMarker   = "-- Up Migration"
	downMarker = "-- Down Migration"
)

var (
	migrationsDir string

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage postgres schema migrations",
		Long:  `Create and run the SQL migrations used by the postgres poll store.`,
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(cmd.Context(), func(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
				return migrateUp(ctx, db, migrationsDir, logger)
			})
		},
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back the last applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(cmd.Context(), func(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
				return migrateDown(ctx, db, migrationsDir, logger)
			})
		},
	}

	migrateCreateCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := createMigration(migrationsDir, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Created migration: %s\n", path)
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "directory holding the .sql migration files")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateCreateCmd)
}

func withMigrationDB(ctx context.Context, fn func(context.Context, *sqlx.DB, *zap.Logger) error) error {
	cfg := GetConfig()
	if err := cfg.ValidatePostgres(); err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	db, err := connectPostgres(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, db, logger)
}

type migration struct {
	name string
	up   string
	down string
}

func parseMigration(name, content string) (migration, error) {
	parts := strings.Split(content, downMarker)
	if len(parts) != 2 {
		return migration{}, fmt.Errorf("migration %s: expected exactly one %q section", name, downMarker)
	}

	up := parts[0]
	if i := strings.Index(up, upMarker); i >= 0 {
		up = up[i+len(upMarker):]
	}
	up = strings.TrimSpace(up)
	if up == "" {
		return migration{}, fmt.Errorf("migration %s: empty up section", name)
	}

	return migration{
		name: name,
		up:   up,
		down: strings.TrimSpace(parts[1]),
	}, nil
}

func loadMigrations(dir string) ([]migration, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}
	sort.Strings(files)

	migrations := make([]migration, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read migration file: %w", err)
		}
		m, err := parseMigration(filepath.Base(file), string(content))
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}
	return migrations, nil
}

func pendingMigrations(all []migration, applied map[string]bool) []migration {
	var pending []migration
	for _, m := range all {
		if !applied[m.name] {
			pending = append(pending, m)
		}
	}
	return pending
}

// lastApplied returns the newest migration file that has been applied.
func lastApplied(all []migration, applied map[string]bool) (migration, bool) {
	for i := len(all) - 1; i >= 0; i-- {
		if applied[all[i].name] {
			return all[i], true
		}
	}
	return migration{}, false
}

func createMigrationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

func appliedMigrations(ctx context.Context, db *sqlx.DB) (map[string]bool, error) {
	var names []string
	if err := db.SelectContext(ctx, &names, `SELECT name FROM schema_migrations ORDER BY applied_at`); err != nil {
		return nil, err
	}

	applied := make(map[string]bool, len(names))
	for _, name := range names {
		applied[name] = true
	}
	return applied, nil
}

func prepareMigrations(ctx context.Context, db *sqlx.DB, dir string) ([]migration, map[string]bool, error) {
	if err := createMigrationsTable(ctx, db); err != nil {
		return nil, nil, fmt.Errorf("create migrations table: %w", err)
	}
	all, err := loadMigrations(dir)
	if err != nil {
		return nil, nil, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("get applied migrations: %w", err)
	}
	return all, applied, nil
}

func migrateUp(ctx context.Context, db *sqlx.DB, dir string, logger *zap.Logger) error {
	all, applied, err := prepareMigrations(ctx, db, dir)
	if err != nil {
		return err
	}

	pending := pendingMigrations(all, applied)
	for _, m := range pending {
		if err := runMigration(ctx, db, m, true, logger); err != nil {
			return fmt.Errorf("run migration %s: %w", m.name, err)
		}
	}
	logger.Info("Migrations applied", zap.Int("count", len(pending)))
	return nil
}

func migrateDown(ctx context.Context, db *sqlx.DB, dir string, logger *zap.Logger) error {
	all, applied, err := prepareMigrations(ctx, db, dir)
	if err != nil {
		return err
	}

	m, ok := lastApplied(all, applied)
	if !ok {
		logger.Info("No migrations to roll back")
		return nil
	}
	if err := runMigration(ctx, db, m, false, logger); err != nil {
		return fmt.Errorf("roll back migration %s: %w", m.name, err)
	}
	return nil
}

func runMigration(ctx context.Context, db *sqlx.DB, m migration, up bool, logger *zap.Logger) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, record := m.up, `INSERT INTO schema_migrations (name) VALUES ($1)`
	if !up {
		stmt, record = m.down, `DELETE FROM schema_migrations WHERE name = $1`
	}

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("execute migration: %w", err)
	}
	if _, err := tx.ExecContext(ctx, record, m.name); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	logger.Info("Executed migration",
		zap.String("name", m.name),
		zap.Bool("up", up),
	)
	return nil
}

func createMigration(dir, name string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations directory: %w", err)
	}

	slug := strings.ToLower(strings.Join(strings.Fields(name), "_"))
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now.UTC().Format("20060102150405"), slug))

	content := fmt.Sprintf("-- Migration: %s\n-- Created at: %s\n\n%s\n\n%s\n",
		name, now.UTC().Format(time.RFC3339), upMarker, downMarker)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write migration file: %w", err)
	}
	return path, nil
}
