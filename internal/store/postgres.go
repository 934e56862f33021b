// internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlInsertScan = `
        INSERT INTO scans (id, site, score, consent_banner, privacy_policy, started_at, finished_at, result)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `
	sqlSelectScan = `
        SELECT started_at, finished_at, result
        FROM scans
        WHERE id = $1;
    `
	sqlListScans = `
        SELECT id, site, score, consent_banner, privacy_policy, started_at
        FROM scans
        ORDER BY started_at DESC
        LIMIT $1;
    `
)

var (
	pageColumns       = []string{"scan_id", "position", "url"}
	cookieColumns     = []string{"scan_id", "name", "domain", "path", "first_party", "purpose", "lifetime_days", "secure"}
	thirdPartyColumns = []string{"scan_id", "host"}
)

// PostgresStore is the PostgreSQL Repository. The full result is kept as
// JSONB; pages, cookies and third-party hosts are also written to their own
// tables for querying.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Repository = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection and returns the store.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// SaveResult writes the scan and its child rows in one transaction.
func (s *PostgresStore) SaveResult(ctx context.Context, scan StoredScan) error {
	payload, err := json.Marshal(scan.Result)
	if err != nil {
		return fmt.Errorf("failed to encode scan result: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	r := scan.Result
	if _, err := tx.Exec(ctx, sqlInsertScan,
		scan.ID, r.Site, r.Score, r.ConsentBannerDetected, r.PrivacyPolicyFound,
		scan.StartedAt.UTC(), scan.FinishedAt.UTC(), payload,
	); err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	if err := s.copyPages(ctx, tx, scan.ID, r.ScannedPages); err != nil {
		return err
	}
	if err := s.copyCookies(ctx, tx, scan.ID, r.CookieReport); err != nil {
		return err
	}
	if err := s.copyThirdParties(ctx, tx, scan.ID, r.ThirdPartyHosts); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Scan persisted.", zap.String("scan_id", scan.ID), zap.Int("pages", len(r.ScannedPages)))
	return nil
}

func copyRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", table, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("mismatch in copied %s count: expected %d, got %d", table, len(rows), n)
	}
	return nil
}

func (s *PostgresStore) copyPages(ctx context.Context, tx pgx.Tx, scanID string, pages []string) error {
	rows := make([][]any, len(pages))
	for i, p := range pages {
		rows[i] = []any{scanID, i, p}
	}
	return copyRows(ctx, tx, "scan_pages", pageColumns, rows)
}

func (s *PostgresStore) copyCookies(ctx context.Context, tx pgx.Tx, scanID string, cookies []schemas.CookieReportRow) error {
	rows := make([][]any, len(cookies))
	for i, c := range cookies {
		rows[i] = []any{scanID, c.Name, c.Domain, c.Path, c.FirstParty, c.Purpose, c.LifetimeDays, c.Secure}
	}
	return copyRows(ctx, tx, "scan_cookies", cookieColumns, rows)
}

func (s *PostgresStore) copyThirdParties(ctx context.Context, tx pgx.Tx, scanID string, hosts []string) error {
	rows := make([][]any, len(hosts))
	for i, h := range hosts {
		rows[i] = []any{scanID, h}
	}
	return copyRows(ctx, tx, "scan_third_parties", thirdPartyColumns, rows)
}

func (s *PostgresStore) GetResult(ctx context.Context, id string) (*StoredScan, error) {
	scan := StoredScan{ID: id}
	var payload []byte
	err := s.pool.QueryRow(ctx, sqlSelectScan, id).Scan(&scan.StartedAt, &scan.FinishedAt, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scan: %w", err)
	}
	if err := json.Unmarshal(payload, &scan.Result); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &scan, nil
}

func (s *PostgresStore) ListScans(ctx context.Context, limit int) ([]ScanSummary, error) {
	rows, err := s.pool.Query(ctx, sqlListScans, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	summaries := make([]ScanSummary, 0)
	for rows.Next() {
		var sum ScanSummary
		if err := rows.Scan(&sum.ID, &sum.Site, &sum.Score, &sum.ConsentBanner, &sum.PrivacyPolicy, &sum.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return summaries, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
