// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

// Session is one browser context. Pages opened through it share its cookie
// jar and nothing else.
type Session struct {
	id        string
	contextID cdp.BrowserContextID
	backend   *Backend
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
	pages  map[*Page]struct{}
}

var _ schemas.BrowserSession = (*Session)(nil)

func (s *Session) ID() string { return s.id }

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Navigate opens a new tab, loads url and waits for the network to settle.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) (schemas.BrowserPage, error) {
	if s.isClosed() {
		return nil, schemas.ErrSessionClosed
	}
	if err := s.backend.alive(); err != nil {
		return nil, &schemas.BackendFatalError{Op: "navigate", Err: err}
	}
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}

	navCtx, navCancel := context.WithTimeout(ctx, timeout)
	defer navCancel()

	idle := s.backend.cfg.NetworkIdle
	tabCtx, tabCancel := chromedp.NewContext(s.backend.browserCtx, chromedp.WithExistingBrowserContext(s.contextID))
	tracker := newRequestTracker(idle.MaxInflight, time.Now)
	// Listening before the first Run catches the document request too.
	chromedp.ListenTarget(tabCtx, tracker.handle)

	page := &Page{
		ctx:     tabCtx,
		cancel:  tabCancel,
		tracker: tracker,
		session: s,
		url:     url,
	}

	// The first Run creates the tab and must use the tab context itself, so
	// the deadline is applied by cancelling the tab instead.
	stop := context.AfterFunc(navCtx, tabCancel)
	err := chromedp.Run(tabCtx)
	stop()

	if err == nil {
		opCtx, opCancel := CombineContext(tabCtx, navCtx)
		err = chromedp.Run(opCtx, network.Enable(), chromedp.Navigate(url))
		if err == nil {
			err = tracker.waitIdle(navCtx, idle.QuietPeriod)
		}
		if err == nil {
			var final string
			if err = chromedp.Run(opCtx, chromedp.Location(&final)); err == nil && final != "" {
				page.url = final
			}
		}
		opCancel()
	}

	if err != nil {
		tabCancel()
		return nil, s.navigationError(url, navCtx, timeout, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		tabCancel()
		return nil, schemas.ErrSessionClosed
	}
	s.pages[page] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("Page loaded.",
		zap.String("url", url),
		zap.String("final_url", page.url),
		zap.Int("requests", len(tracker.snapshot())),
		zap.Int("still_inflight", tracker.inflightCount()),
	)
	return page, nil
}

func (s *Session) navigationError(url string, navCtx context.Context, timeout time.Duration, err error) error {
	if aliveErr := s.backend.alive(); aliveErr != nil {
		return &schemas.BackendFatalError{Op: "navigate", Err: errors.Join(aliveErr, err)}
	}
	if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("navigation timeout of %s exceeded: %w", timeout, context.DeadlineExceeded)
	}
	return &schemas.NavigationError{URL: url, Err: err}
}

func (s *Session) forget(p *Page) {
	s.mu.Lock()
	delete(s.pages, p)
	s.mu.Unlock()
}

// EnumerateCookies returns every cookie in the session's browser context.
func (s *Session) EnumerateCookies(ctx context.Context) ([]schemas.RawCookie, error) {
	if s.isClosed() {
		return nil, schemas.ErrSessionClosed
	}
	if err := s.backend.alive(); err != nil {
		return nil, &schemas.BackendFatalError{Op: "cookies", Err: err}
	}

	cookies, err := storage.GetCookies().WithBrowserContextID(s.contextID).Do(s.backend.executor(ctx))
	if err != nil {
		if aliveErr := s.backend.alive(); aliveErr != nil {
			return nil, &schemas.BackendFatalError{Op: "cookies", Err: errors.Join(aliveErr, err)}
		}
		return nil, fmt.Errorf("failed to enumerate cookies: %w", err)
	}
	return convertCookies(cookies), nil
}

// Close closes any open tabs and disposes the browser context.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pages := make([]*Page, 0, len(s.pages))
	for p := range s.pages {
		pages = append(pages, p)
	}
	s.pages = nil
	s.mu.Unlock()

	for _, p := range pages {
		p.cancel()
	}

	if s.backend.alive() != nil {
		return nil
	}
	disposeCtx, cancel := context.WithTimeout(ctx, disposeTimeout)
	defer cancel()
	if err := target.DisposeBrowserContext(s.contextID).Do(s.backend.executor(disposeCtx)); err != nil {
		s.logger.Warn("Failed to dispose browser context. It may be orphaned.", zap.Error(err))
		return fmt.Errorf("failed to dispose browser context: %w", err)
	}
	s.logger.Debug("Browser context disposed.")
	return nil
}

func convertCookies(cookies []*network.Cookie) []schemas.RawCookie {
	out := make([]schemas.RawCookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		raw := schemas.RawCookie{
			Name:     c.Name,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		}
		if !c.Session && c.Expires > 0 {
			expires := c.Expires
			raw.ExpiresAt = &expires
		}
		out = append(out, raw)
	}
	return out
}
