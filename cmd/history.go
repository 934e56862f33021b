// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/internal/config"
)

const defaultHistoryLimit = 20

func newHistoryCmd(a *app) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent scans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return fmt.Errorf("--limit must be a positive integer")
			}
			return runHistory(cmd.Context(), cfg, a.logger, limit, cmd.OutOrStdout())
		},
	}
	historyCmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Number of scans to list")
	return historyCmd
}

func runHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger, limit int, stdout io.Writer) error {
	repo, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeHistory(repo, logger)

	scans, err := repo.ListScans(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list scans: %w", err)
	}
	if len(scans) == 0 {
		fmt.Fprintln(stdout, "No scans recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSITE\tSCORE\tBANNER\tPOLICY\tSTARTED")
	for _, s := range scans {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			s.ID, s.Site, s.Score, yesNo(s.ConsentBanner), yesNo(s.PrivacyPolicy),
			s.StartedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
