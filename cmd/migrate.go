// File: cmd/migrate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Opens the configured database and brings its schema up to date. The scan
and serve commands migrate on startup as well; this command is for
provisioning a database ahead of time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			repo, err := openHistory(cmd.Context(), cfg, a.logger)
			if err != nil {
				return err
			}
			closeHistory(repo, a.logger)
			fmt.Fprintf(cmd.OutOrStdout(), "Database schema is up to date (%s).\n", cfg.Database.Driver)
			return nil
		},
	}
}
