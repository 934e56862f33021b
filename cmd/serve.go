// File: cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/internal/server"
	"github.com/xkilldash9x/consentscan/internal/service"
)

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan API and websocket endpoint",
		Long: `Starts the HTTP server. Scans are submitted over POST /api/v1/scans or
the /ws websocket, which streams every scan event back to the client.

The listen address comes from --listen, server.listen_addr, or PORT.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.bindFlags(cmd.Flags(), map[string]string{
				"server.listen_addr":          "listen",
				"server.max_concurrent_scans": "max-scans",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := a.logger.With(zap.String("command", "serve"))

			components, err := componentFactory.Create(ctx, cfg, logger, service.Options{})
			if err != nil {
				return fmt.Errorf("failed to initialize server components: %w", err)
			}
			defer components.Shutdown()

			srv, err := server.New(cfg, components.Orchestrator, components.Store, logger)
			if err != nil {
				return err
			}
			// Run returns once ctx is cancelled and running scans have stopped.
			return srv.Run(ctx)
		},
	}

	serveCmd.Flags().String("listen", ":8080", "Address to listen on")
	serveCmd.Flags().Int("max-scans", 4, "Maximum number of scans running at once")
	return serveCmd
}
