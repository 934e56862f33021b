// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/browser"
	"github.com/xkilldash9x/consentscan/internal/config"
	"github.com/xkilldash9x/consentscan/internal/store"
)

// Options selects which components Create builds.
type Options struct {
	// SkipStore leaves Components.Store nil even when a driver is configured.
	SkipStore bool
}

// ComponentFactory builds the components for a command. Commands depend on
// the interface so tests can substitute the browser and the store.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Components, error)
}

// StoreOpener opens the configured result store.
type StoreOpener func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.Repository, error)

// BackendLauncher starts a browser backend.
type BackendLauncher func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (schemas.BrowserBackend, error)

type concreteFactory struct {
	openStore     StoreOpener
	launchBackend BackendLauncher
}

// NewComponentFactory creates the production factory: chromedp backend and
// the configured store.
func NewComponentFactory() ComponentFactory {
	return NewComponentFactoryWith(store.Open, launchChrome)
}

// NewComponentFactoryWith builds a factory over custom constructors.
func NewComponentFactoryWith(openStore StoreOpener, launchBackend BackendLauncher) ComponentFactory {
	return &concreteFactory{openStore: openStore, launchBackend: launchBackend}
}

func launchChrome(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (schemas.BrowserBackend, error) {
	b, err := browser.NewBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Create wires store, browser and orchestrator. Anything already created is
// shut down when a later step fails.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Components, error) {
	if cfg == nil || logger == nil {
		return nil, fmt.Errorf("cannot create components with nil dependencies")
	}
	components := &Components{logger: logger}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Result store
	if !opts.SkipStore {
		repo, err := f.openStore(ctx, cfg.Database, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to open result store: %w", err)
			return nil, initializationErr
		}
		components.Store = repo
		if repo == nil {
			logger.Info("Result persistence disabled.")
		} else {
			logger.Debug("Result store opened.", zap.String("driver", cfg.Database.Driver))
		}
	}

	// 2. Browser
	backend, err := f.launchBackend(ctx, cfg.Browser, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to start browser: %w", err)
		return nil, initializationErr
	}
	components.Backend = backend
	logger.Debug("Browser backend started.")

	// 3. Orchestrator
	orch, err := NewOrchestrator(backend, cfg.Scan, cfg.Browser.UserAgent, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	components.Orchestrator = orch
	logger.Debug("Orchestrator initialized.")

	logger.Info("All scan components initialized successfully.")
	return components, nil
}
