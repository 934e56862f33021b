// File: cmd/report.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/internal/config"
	"github.com/xkilldash9x/consentscan/internal/reporting"
	"github.com/xkilldash9x/consentscan/internal/store"
)

// openStore is swapped out in tests.
var openStore = store.Open

func newReportCmd(a *app) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:     "report <scan-id>",
		Short:   "Render a stored scan as a report",
		Example: `  consentscan report 6f1c... -f markdown -o report.md`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bindFlags(cmd.Flags(), map[string]string{
				"report.output": "output",
				"report.format": "format",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			return runReport(cmd.Context(), cfg, a.logger, args[0], cmd.OutOrStdout())
		},
	}

	reportCmd.Flags().StringP("output", "o", "", "Report file (default stdout)")
	reportCmd.Flags().StringP("format", "f", config.FormatJSON, "Report format: json or markdown")
	return reportCmd
}

func runReport(ctx context.Context, cfg *config.Config, logger *zap.Logger, scanID string, stdout io.Writer) error {
	repo, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeHistory(repo, logger)

	scan, err := repo.GetResult(ctx, scanID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no scan with id %q in history", scanID)
	}
	if err != nil {
		return fmt.Errorf("failed to load scan %s: %w", scanID, err)
	}

	if err := writeReport(stdout, cfg.Report, *scan); err != nil {
		return err
	}
	if cfg.Report.Output != "" {
		fmt.Fprintf(stdout, "Report written to %s\n", cfg.Report.Output)
	}
	return nil
}

// writeReport renders scan to cfg.Output, or to stdout when no output is set.
func writeReport(stdout io.Writer, cfg config.ReportConfig, scan store.StoredScan) error {
	var (
		reporter reporting.Reporter
		err      error
	)
	if cfg.Output == "" {
		reporter, err = reporting.NewWithWriter(cfg.Format, nopWriteCloser{stdout}, Version)
	} else {
		reporter, err = reporting.New(cfg.Format, cfg.Output, Version)
	}
	if err != nil {
		return fmt.Errorf("failed to create reporter: %w", err)
	}

	if err := reporter.Write(scan); err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}
	return nil
}

// openHistory opens the configured store and refuses a disabled one.
func openHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Repository, error) {
	repo, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	if repo == nil {
		return nil, fmt.Errorf("scan history is disabled (database.driver is %q)", cfg.Database.Driver)
	}
	return repo, nil
}

func closeHistory(repo store.Repository, logger *zap.Logger) {
	if err := repo.Close(); err != nil {
		logger.Warn("Error closing result store", zap.Error(err))
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
