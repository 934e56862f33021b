// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/orchestrator"
	"github.com/xkilldash9x/consentscan/internal/store"
)

const shutdownTimeout = 30 * time.Second

// Components holds the initialized services a command needs and owns their
// lifecycle.
type Components struct {
	// Store is nil when persistence is disabled.
	Store        store.Repository
	Backend      schemas.BrowserBackend
	Orchestrator *orchestrator.Orchestrator

	logger *zap.Logger
}

// Shutdown releases everything in reverse order of creation. Safe on a
// partially initialized value.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.Backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.Backend.Close(ctx); err != nil {
			logger.Warn("Error during browser shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser shut down.")
		}
		c.Backend = nil
	}

	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Error closing result store.", zap.Error(err))
		} else {
			logger.Debug("Result store closed.")
		}
		c.Store = nil
	}

	logger.Info("All components shut down.")
}
