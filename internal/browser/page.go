// internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

// Page is a loaded tab.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	tracker *requestTracker
	session *Session

	mu        sync.Mutex
	url       string
	closeOnce sync.Once
}

var _ schemas.BrowserPage = (*Page)(nil)

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// EvaluateScript runs script and decodes its JSON value into out.
func (p *Page) EvaluateScript(ctx context.Context, script string, out any) error {
	if err := p.ctx.Err(); err != nil {
		return fmt.Errorf("page is closed: %w", err)
	}
	opCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()

	var raw []byte
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, &raw)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

func (p *Page) ObserveRequests() []schemas.ObservedRequest {
	return p.tracker.snapshot()
}

// Close closes the tab.
func (p *Page) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.session != nil {
			p.session.forget(p)
		}
	})
	return nil
}
