// internal/browser/browser_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/config"
)

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{
		"--no-zygote",
		"mute-audio",
		"--lang=en-US",
		"window-size=1280,720",
		"  --proxy-server=  ",
		"",
		"--",
		"--=orphan",
	})

	assert.Equal(t, []commandFlag{
		{name: "no-zygote", value: true},
		{name: "mute-audio", value: true},
		{name: "lang", value: "en-US"},
		{name: "window-size", value: "1280,720"},
		{name: "proxy-server", value: ""},
	}, got)
}

func TestExecOptions(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions) + 1

	t.Run("headful minimal", func(t *testing.T) {
		// Only the headless override is added.
		assert.Len(t, ExecOptions(config.BrowserConfig{}), base+1)
	})

	t.Run("everything configured", func(t *testing.T) {
		cfg := config.BrowserConfig{
			Headless:   true,
			NoSandbox:  true,
			DisableGPU: true,
			ExecPath:   "/usr/bin/chromium",
			UserAgent:  "consentscan-test",
			Args:       []string{"--no-zygote", "--lang=en-US"},
		}
		assert.Len(t, ExecOptions(cfg), base+6)
	})

	t.Run("does not alias the defaults", func(t *testing.T) {
		before := len(chromedp.DefaultExecAllocatorOptions)
		_ = ExecOptions(config.BrowserConfig{NoSandbox: true})
		assert.Equal(t, before, len(chromedp.DefaultExecAllocatorOptions))
	})
}

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func requestSent(id, url string) *network.EventRequestWillBeSent {
	return &network.EventRequestWillBeSent{
		RequestID: network.RequestID(id),
		Request:   &network.Request{URL: url},
	}
}

func TestRequestTracker(t *testing.T) {
	t.Run("records requests in order including redirects", func(t *testing.T) {
		tr := newRequestTracker(2, nil)
		tr.handle(requestSent("1", "https://example.com/"))
		tr.handle(requestSent("2", "https://cdn.example.net/app.js"))
		tr.handle(requestSent("1", "https://www.example.com/"))
		tr.handle(&network.EventRequestWillBeSent{RequestID: "3"})

		assert.Equal(t, []schemas.ObservedRequest{
			{URL: "https://example.com/"},
			{URL: "https://cdn.example.net/app.js"},
			{URL: "https://www.example.com/"},
		}, tr.snapshot())
		assert.Equal(t, 2, tr.inflightCount())
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		tr := newRequestTracker(0, nil)
		tr.handle(requestSent("1", "https://example.com/"))
		snap := tr.snapshot()
		snap[0].URL = "mutated"
		assert.Equal(t, "https://example.com/", tr.snapshot()[0].URL)
	})

	t.Run("idle needs a quiet period at or below the threshold", func(t *testing.T) {
		clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
		tr := newRequestTracker(1, clock.Now)
		quiet := 500 * time.Millisecond

		tr.handle(requestSent("a", "https://example.com/a"))
		tr.handle(requestSent("b", "https://example.com/b"))
		clock.Advance(time.Second)
		assert.False(t, tr.idle(quiet), "two in flight exceeds the threshold")

		tr.handle(&network.EventLoadingFinished{RequestID: "a"})
		assert.False(t, tr.idle(quiet), "quiet period restarts when the count drops")

		clock.Advance(499 * time.Millisecond)
		assert.False(t, tr.idle(quiet))
		clock.Advance(time.Millisecond)
		assert.True(t, tr.idle(quiet), "one long-poll request is tolerated")

		tr.handle(requestSent("c", "https://example.com/c"))
		assert.False(t, tr.idle(quiet))
		tr.handle(&network.EventLoadingFailed{RequestID: "c"})
		tr.handle(&network.EventLoadingFailed{RequestID: "unknown"})
		clock.Advance(quiet)
		assert.True(t, tr.idle(quiet))
		assert.Equal(t, 1, tr.inflightCount())
	})

	t.Run("waitIdle returns once quiet", func(t *testing.T) {
		tr := newRequestTracker(0, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		start := time.Now()
		require.NoError(t, tr.waitIdle(ctx, 30*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("waitIdle honours the deadline", func(t *testing.T) {
		tr := newRequestTracker(0, nil)
		tr.handle(requestSent("hanging", "https://example.com/poll"))
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := tr.waitIdle(ctx, 20*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("zero quiet period is immediately idle", func(t *testing.T) {
		tr := newRequestTracker(0, nil)
		tr.handle(requestSent("x", "https://example.com/"))
		assert.NoError(t, tr.waitIdle(context.Background(), 0))
	})
}

func TestConvertCookies(t *testing.T) {
	got := convertCookies([]*network.Cookie{
		{
			Name:     "_ga",
			Domain:   ".example.com",
			Path:     "/",
			Expires:  1_800_000_000.5,
			Secure:   true,
			SameSite: network.CookieSameSiteLax,
		},
		nil,
		{Name: "sid", Domain: "example.com", Path: "/app", HTTPOnly: true, Session: true, Expires: -1},
		{Name: "odd", Domain: "example.com", Path: "/", Expires: 0},
	})

	require.Len(t, got, 3)
	require.NotNil(t, got[0].ExpiresAt)
	assert.Equal(t, 1_800_000_000.5, *got[0].ExpiresAt)
	assert.Equal(t, "Lax", got[0].SameSite)
	assert.True(t, got[0].Secure)

	assert.Nil(t, got[1].ExpiresAt, "session cookies have no expiry")
	assert.True(t, got[1].HTTPOnly)
	assert.Equal(t, "/app", got[1].Path)
	assert.Empty(t, got[1].SameSite)

	assert.Nil(t, got[2].ExpiresAt)
}

type ctxKey struct{}

func TestCombineContext(t *testing.T) {
	t.Run("secondary cancels combined", func(t *testing.T) {
		primary := context.WithValue(context.Background(), ctxKey{}, "tab")
		secondary, cancelSecondary := context.WithCancel(context.Background())

		ctx, cancel := CombineContext(primary, secondary)
		defer cancel()

		assert.Equal(t, "tab", ctx.Value(ctxKey{}))
		assert.NoError(t, ctx.Err())
		cancelSecondary()
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not cancelled")
		}
	})

	t.Run("primary cancels combined", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		ctx, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		<-ctx.Done()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("cancel leaves parents alone", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		defer cancelPrimary()
		secondary, cancelSecondary := context.WithCancel(context.Background())
		defer cancelSecondary()

		ctx, cancel := CombineContext(primary, secondary)
		cancel()
		assert.Error(t, ctx.Err())
		assert.NoError(t, primary.Err())
		assert.NoError(t, secondary.Err())
	})
}
