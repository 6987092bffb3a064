package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// Migrator handles database migrations
type Migrator struct {
	store  *Storage
	files  fs.FS
	logger *zap.Logger
}

// NewMigrator creates a migrator for the store's dialect using the embedded
// migration set
func NewMigrator(store *Storage, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sub, err := fs.Sub(migrationFS, path.Join("migrations", string(store.Dialect())))
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations for %s: %w", store.Dialect(), err)
	}

	return &Migrator{store: store, files: sub, logger: logger}, nil
}

// Migrate is a convenience wrapper applying every pending migration
func Migrate(ctx context.Context, store *Storage, logger *zap.Logger) error {
	m, err := NewMigrator(store, logger)
	if err != nil {
		return err
	}
	return m.Up(ctx)
}

// Up runs all pending migrations
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	upFiles, err := fs.Glob(m.files, "*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		applied, err := m.isMigrationApplied(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if applied {
			m.logger.Debug("migration already applied, skipping", zap.String("migration", name))
			continue
		}

		body, err := fs.ReadFile(m.files, name)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		m.logger.Info("applying migration", zap.String("migration", name))
		err = m.store.WithTx(ctx, func(tx *Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", name, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)", name, Now()); err != nil {
				return fmt.Errorf("failed to record migration: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Down rolls back the last applied migration
func (m *Migrator) Down(ctx context.Context) error {
	var lastMigration string
	err := m.store.QueryRowContext(ctx,
		"SELECT name FROM schema_migrations ORDER BY name DESC LIMIT 1").Scan(&lastMigration)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no migrations to rollback")
	}
	if err != nil {
		return fmt.Errorf("failed to get last migration: %w", err)
	}

	downFile := strings.Replace(lastMigration, ".up.sql", ".down.sql", 1)
	body, err := fs.ReadFile(m.files, downFile)
	if err != nil {
		return fmt.Errorf("down migration file not found: %s", downFile)
	}

	m.logger.Info("rolling back migration", zap.String("migration", lastMigration))
	return m.store.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to execute down migration: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE name = ?", lastMigration); err != nil {
			return fmt.Errorf("failed to remove migration record: %w", err)
		}
		return nil
	})
}

// Applied lists applied migration names in order
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	if err := m.createMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := m.store.QueryContext(ctx, "SELECT name FROM schema_migrations ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Create writes an empty up/down migration pair into dir for the store's dialect
func (m *Migrator) Create(dir, name string) error {
	upFiles, _ := fs.Glob(m.files, "*.up.sql")
	nextNum := nextMigrationNumber(upFiles)

	upFile := filepath.Join(dir, fmt.Sprintf("%s_%s.up.sql", nextNum, name))
	downFile := filepath.Join(dir, fmt.Sprintf("%s_%s.down.sql", nextNum, name))

	if err := os.WriteFile(upFile, []byte("-- Migration up\n"), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(downFile, []byte("-- Migration down\n"), 0o644); err != nil {
		return err
	}

	m.logger.Info("created migration files", zap.String("up", upFile), zap.String("down", downFile))
	return nil
}

func (m *Migrator) createMigrationsTable(ctx context.Context) error {
	_, err := m.store.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (m *Migrator) isMigrationApplied(ctx context.Context, name string) (bool, error) {
	var count int
	err := m.store.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE name = ?", name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func nextMigrationNumber(upFiles []string) string {
	maxNum := 0
	for _, name := range upFiles {
		var num int
		parts := strings.SplitN(name, "_", 2)
		if _, err := fmt.Sscanf(parts[0], "%d", &num); err == nil && num > maxNum {
			maxNum = num
		}
	}
	return fmt.Sprintf("%03d", maxNum+1)
}
