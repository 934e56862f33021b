// internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/config"
)

// ErrNotFound is returned when a scan ID is unknown.
var ErrNotFound = errors.New("scan not found")

const defaultListLimit = 20

// Repository persists finished scans.
type Repository interface {
	SaveResult(ctx context.Context, scan StoredScan) error
	GetResult(ctx context.Context, id string) (*StoredScan, error)
	ListScans(ctx context.Context, limit int) ([]ScanSummary, error)
	Close() error
}

// StoredScan is a scan result together with its identity and timing.
type StoredScan struct {
	ID         string             `json:"id"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	Result     schemas.ScanResult `json:"result"`
}

// ScanSummary is one row of the scan history.
type ScanSummary struct {
	ID            string    `json:"id"`
	Site          string    `json:"site"`
	Score         int       `json:"score"`
	ConsentBanner bool      `json:"consentBannerDetected"`
	PrivacyPolicy bool      `json:"privacyPolicyFound"`
	StartedAt     time.Time `json:"startedAt"`
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// Open connects to the configured store and brings its schema up to date.
// The "none" driver yields a nil Repository and no error.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Repository, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverNone, "":
		return nil, nil
	case config.DriverSQLite:
		path, err := config.ExpandPath(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s, err := OpenSQLite(ctx, path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		if err := MigratePostgres(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
		s, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// MigratePostgres runs the embedded PostgreSQL migrations over pool.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	_, err := Migrate(ctx, db, goose.DialectPostgres, logger.Named("migrations"))
	return err
}
