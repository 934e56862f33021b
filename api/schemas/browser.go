package schemas

import (
	"context"
	"time"
)

// BrowserBackend launches isolated browser sessions. One session serves one
// scan; sessions are not safe to share across scans.
type BrowserBackend interface {
	LaunchSession(ctx context.Context) (BrowserSession, error)
	Close(ctx context.Context) error
}

// BrowserSession is a browser context owning its own cookie jar.
type BrowserSession interface {
	ID() string
	// Navigate opens a fresh page, loads url and waits for network quiescence,
	// all within timeout. Failures are reported as *NavigationError unless the
	// session itself is unusable (*BackendFatalError).
	Navigate(ctx context.Context, url string, timeout time.Duration) (BrowserPage, error)
	// EnumerateCookies returns every cookie held by the session.
	EnumerateCookies(ctx context.Context) ([]RawCookie, error)
	// Close releases the session. Calling it more than once is a no-op.
	Close(ctx context.Context) error
}

// BrowserPage is a loaded page.
type BrowserPage interface {
	// URL is the final URL after redirects.
	URL() string
	// EvaluateScript runs script in the page and decodes its JSON value into out.
	EvaluateScript(ctx context.Context, script string, out any) error
	// ObserveRequests returns the outgoing requests recorded since the page
	// was opened, in the order they were issued.
	ObserveRequests() []ObservedRequest
	Close(ctx context.Context) error
}
