// internal/browser/context.go
package browser

import "context"

// CombineContext derives a context from primary that is also cancelled when
// secondary is done. Values come from primary only, which is what chromedp
// needs: primary carries the tab, secondary carries the caller's deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
