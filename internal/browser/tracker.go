// internal/browser/tracker.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

const maxIdlePoll = 250 * time.Millisecond

// requestTracker records the requests a tab issues and counts the ones still
// in flight. A page is idle once at most maxInflight requests have been
// outstanding for a full quiet period.
type requestTracker struct {
	mu          sync.Mutex
	now         func() time.Time
	maxInflight int
	inflight    map[network.RequestID]struct{}
	requests    []schemas.ObservedRequest
	// lastBusy is the last moment the in-flight count was above maxInflight.
	lastBusy time.Time
}

func newRequestTracker(maxInflight int, now func() time.Time) *requestTracker {
	if now == nil {
		now = time.Now
	}
	if maxInflight < 0 {
		maxInflight = 0
	}
	return &requestTracker{
		now:         now,
		maxInflight: maxInflight,
		inflight:    make(map[network.RequestID]struct{}),
		requests:    make([]schemas.ObservedRequest, 0, 32),
		lastBusy:    now(),
	}
}

// handle is registered with chromedp.ListenTarget.
func (t *requestTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		// Redirect hops reuse the request ID but are separate outgoing requests.
		t.started(e.RequestID, e.Request.URL)
	case *network.EventLoadingFinished:
		t.finished(e.RequestID)
	case *network.EventLoadingFailed:
		t.finished(e.RequestID)
	}
}

func (t *requestTracker) started(id network.RequestID, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, schemas.ObservedRequest{URL: url})
	t.inflight[id] = struct{}{}
	if len(t.inflight) > t.maxInflight {
		t.lastBusy = t.now()
	}
}

func (t *requestTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[id]; !ok {
		return
	}
	if len(t.inflight) > t.maxInflight {
		t.lastBusy = t.now()
	}
	delete(t.inflight, id)
}

// restartQuietPeriod makes the next idle window start now.
func (t *requestTracker) restartQuietPeriod() {
	t.mu.Lock()
	t.lastBusy = t.now()
	t.mu.Unlock()
}

func (t *requestTracker) idle(quiet time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) <= t.maxInflight && t.now().Sub(t.lastBusy) >= quiet
}

func (t *requestTracker) inflightCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// waitIdle blocks until the page is idle or ctx is done.
func (t *requestTracker) waitIdle(ctx context.Context, quiet time.Duration) error {
	if quiet <= 0 {
		return ctx.Err()
	}
	t.restartQuietPeriod()

	poll := quiet / 2
	if poll > maxIdlePoll {
		poll = maxIdlePoll
	}
	if poll < 5*time.Millisecond {
		poll = 5 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.idle(quiet) {
				return nil
			}
		}
	}
}

// snapshot returns the requests recorded so far, oldest first.
func (t *requestTracker) snapshot() []schemas.ObservedRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]schemas.ObservedRequest{}, t.requests...)
}
