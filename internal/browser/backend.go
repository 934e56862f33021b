// internal/browser/backend.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/config"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	disposeTimeout           = 10 * time.Second
)

// Backend drives a single Chrome process. Every session is an isolated
// browser context inside it, so scans never share cookies.
type Backend struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// Browser contexts are created one at a time.
	createMu  sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ schemas.BrowserBackend = (*Backend)(nil)

// NewBackend starts Chrome. The process lives until Close is called or ctx
// is cancelled.
func NewBackend(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Backend, error) {
	logger = logger.Named("browser")
	sugar := logger.Sugar()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)

	// The first Run allocates the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("Browser started.",
		zap.Bool("headless", cfg.Headless),
		zap.Int("idle_max_inflight", cfg.NetworkIdle.MaxInflight),
		zap.Duration("idle_quiet_period", cfg.NetworkIdle.QuietPeriod),
	)

	return &Backend{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// executor binds ctx to the browser-level CDP connection.
func (b *Backend) executor(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(b.browserCtx).Browser)
}

func (b *Backend) alive() error {
	if err := b.browserCtx.Err(); err != nil {
		return fmt.Errorf("browser is gone: %w", err)
	}
	return nil
}

// LaunchSession creates a fresh incognito-like browser context.
func (b *Backend) LaunchSession(ctx context.Context) (schemas.BrowserSession, error) {
	if err := b.alive(); err != nil {
		return nil, &schemas.BackendFatalError{Op: "launch", Err: err}
	}

	b.createMu.Lock()
	id, err := target.CreateBrowserContext().WithDisposeOnDetach(true).Do(b.executor(ctx))
	b.createMu.Unlock()
	if err != nil {
		return nil, &schemas.BackendFatalError{Op: "launch", Err: fmt.Errorf("failed to create browser context: %w", err)}
	}

	sessionID := uuid.NewString()
	s := &Session{
		id:        sessionID,
		contextID: id,
		backend:   b,
		logger:    b.logger.With(zap.String("session_id", sessionID)),
		pages:     make(map[*Page]struct{}),
	}
	s.logger.Debug("Browser context created.", zap.String("browser_context_id", string(id)))
	return s, nil
}

// Close shuts the browser down and then the allocator. Safe to call twice.
func (b *Backend) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(b.browserCtx) }()

		select {
		case err := <-done:
			if err != nil && b.browserCtx.Err() == nil {
				b.closeErr = fmt.Errorf("failed to close browser: %w", err)
			}
		case <-ctx.Done():
			b.closeErr = fmt.Errorf("browser close interrupted: %w", ctx.Err())
		}
		b.browserCancel()
		b.allocCancel()
		b.logger.Info("Browser stopped.")
	})
	return b.closeErr
}
