// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore keeps scan history in a local SQLite file. Results are stored
// whole as JSON; there are no child tables.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

var _ Repository = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := Migrate(ctx, db, goose.DialectSQLite3, logger.Named("migrations")); err != nil {
		_ = db.Close()
		return nil, err
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	logger.Debug("SQLite store opened.", zap.String("path", path))
	return &SQLiteStore{db: db, log: logger.Named("store")}, nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, scan StoredScan) error {
	payload, err := json.Marshal(scan.Result)
	if err != nil {
		return fmt.Errorf("failed to encode scan result: %w", err)
	}
	r := scan.Result
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO scans (id, site, score, consent_banner, privacy_policy, started_at, finished_at, result)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.ID, r.Site, r.Score, r.ConsentBannerDetected, r.PrivacyPolicyFound,
		formatTime(scan.StartedAt), formatTime(scan.FinishedAt), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*StoredScan, error) {
	var started, finished, payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at, finished_at, result FROM scans WHERE id = ?`, id,
	).Scan(&started, &finished, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scan: %w", err)
	}

	scan := StoredScan{ID: id}
	if scan.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if scan.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &scan.Result); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &scan, nil
}

func (s *SQLiteStore) ListScans(ctx context.Context, limit int) ([]ScanSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, site, score, consent_banner, privacy_policy, started_at
	FROM scans
	ORDER BY started_at DESC
	LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	summaries := make([]ScanSummary, 0)
	for rows.Next() {
		var (
			sum     ScanSummary
			started string
		)
		if err := rows.Scan(&sum.ID, &sum.Site, &sum.Score, &sum.ConsentBanner, &sum.PrivacyPolicy, &started); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		if sum.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return summaries, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}
