// internal/store/migrations.go
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

func migrationsFor(dialect goose.Dialect) (fs.FS, error) {
	switch dialect {
	case goose.DialectPostgres:
		return fs.Sub(migrationFS, "migrations/postgres")
	case goose.DialectSQLite3:
		return fs.Sub(migrationFS, "migrations/sqlite")
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
}

// Migrate applies every pending migration for dialect and returns what ran.
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, logger *zap.Logger) ([]*goose.MigrationResult, error) {
	fsys, err := migrationsFor(dialect)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		if r.Source == nil {
			continue
		}
		logger.Info("Applied migration.",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("took", r.Duration),
		)
	}
	return results, nil
}
