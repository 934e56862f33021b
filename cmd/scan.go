// File: cmd/scan.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/config"
	"github.com/xkilldash9x/consentscan/internal/events"
	"github.com/xkilldash9x/consentscan/internal/service"
	"github.com/xkilldash9x/consentscan/internal/store"
)

// componentFactory is swapped out in tests.
var componentFactory = service.NewComponentFactory()

func newScanCmd(a *app) *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan <url>",
		Short: "Crawl a site and report its cookie consent compliance",
		Long: `Crawls up to --max-pages same-origin pages starting at <url>, records the
cookies and third-party requests of every page, looks for a consent banner
and a privacy policy link, and scores the result.

The report is written to --output, or to stdout when no output is given.`,
		Example: `  consentscan scan https://example.com
  consentscan scan https://example.com --max-pages 10 -f markdown -o report.md`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bindFlags(cmd.Flags(), map[string]string{
				"scan.max_pages":          "max-pages",
				"scan.navigation_timeout": "nav-timeout",
				"scan.respect_robots":     "respect-robots",
				"report.output":           "output",
				"report.format":           "format",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			noStore, _ := cmd.Flags().GetBool("no-store")
			return runScan(cmd.Context(), cfg, a.logger, args[0], noStore, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	scanCmd.Flags().Int("max-pages", schemas.DefaultMaxPages, "Maximum number of pages to visit")
	scanCmd.Flags().Duration("nav-timeout", time.Duration(schemas.DefaultNavigationTimeoutMs)*time.Millisecond, "Per-page navigation timeout")
	scanCmd.Flags().Bool("respect-robots", false, "Skip pages disallowed by robots.txt")
	scanCmd.Flags().StringP("output", "o", "", "Report file (default stdout)")
	scanCmd.Flags().StringP("format", "f", config.FormatJSON, "Report format: json or markdown")
	scanCmd.Flags().Bool("no-store", false, "Do not save the result to scan history")
	return scanCmd
}

func runScan(ctx context.Context, cfg *config.Config, logger *zap.Logger, target string, noStore bool, stdout, stderr io.Writer) error {
	logger = logger.With(zap.String("command", "scan"))

	components, err := componentFactory.Create(ctx, cfg, logger, service.Options{SkipStore: noStore})
	if err != nil {
		return fmt.Errorf("failed to initialize scan components: %w", err)
	}
	defer components.Shutdown()

	req := schemas.ScanRequest{URL: target, Options: cfg.Scan.Options(schemas.ScanOptions{})}
	scanID := components.Orchestrator.NewScanID()
	startedAt := time.Now().UTC()

	result, err := components.Orchestrator.RunWithID(ctx, scanID, req, newProgressPrinter(stderr))
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	scan := store.StoredScan{
		ID:         scanID,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Result:     *result,
	}

	if components.Store != nil {
		// History failures are logged; the report is still written.
		if err := components.Store.SaveResult(ctx, scan); err != nil {
			logger.Warn("Failed to save scan to history", zap.String("scanID", scanID), zap.Error(err))
		} else {
			logger.Debug("Scan saved to history", zap.String("scanID", scanID))
		}
	}

	if err := writeReport(stdout, cfg.Report, scan); err != nil {
		return err
	}

	// The summary goes to stderr when the report owns stdout.
	summaryOut := stderr
	if cfg.Report.Output != "" {
		summaryOut = stdout
	}
	printSummary(summaryOut, scan)
	return nil
}

// newProgressPrinter renders scan events as terminal progress lines.
func newProgressPrinter(w io.Writer) events.Emitter {
	return events.EmitterFunc(func(ev events.Event) {
		switch p := ev.Payload.(type) {
		case events.ScanStarted:
			fmt.Fprintf(w, "Scanning %s\n", p.URL)
		case events.Progress:
			if p.Step == events.StepNavigating {
				fmt.Fprintf(w, "[%3d%%] %s\n", p.Progress, p.Page)
			}
		case events.BannerDetected:
			fmt.Fprintf(w, "       consent banner found (visible: %t)\n", p.Visible)
		case events.Warning:
			fmt.Fprintf(w, "       warning: %s\n", p.Message)
		case events.ScanError:
			fmt.Fprintf(w, "Error: %s\n", p.Message)
		}
	})
}

func printSummary(w io.Writer, scan store.StoredScan) {
	r := scan.Result
	fmt.Fprintf(w, "\nScan %s\n", scan.ID)
	fmt.Fprintf(w, "Site:           %s\n", r.Site)
	fmt.Fprintf(w, "Pages scanned:  %d\n", len(r.ScannedPages))
	fmt.Fprintf(w, "Cookies:        %d\n", len(r.CookieReport))
	fmt.Fprintf(w, "Third parties:  %d\n", len(r.ThirdPartyHosts))
	fmt.Fprintf(w, "Consent banner: %s\n", yesNo(r.ConsentBannerDetected))
	fmt.Fprintf(w, "Privacy policy: %s\n", yesNo(r.PrivacyPolicyFound))
	fmt.Fprintf(w, "Score:          %d/100\n", r.Score)
	if len(r.Violations) > 0 {
		fmt.Fprintf(w, "Violations:\n  - %s\n", strings.Join(r.Violations, "\n  - "))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
