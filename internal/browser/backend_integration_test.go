// internal/browser/backend_integration_test.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/config"
)

// These tests drive a real Chrome and only run when CONSENTSCAN_CHROME_TESTS is set.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	if os.Getenv("CONSENTSCAN_CHROME_TESTS") == "" {
		t.Skip("set CONSENTSCAN_CHROME_TESTS=1 to run tests against a local Chrome")
	}

	cfg := config.NewDefaultConfig().Browser
	cfg.NetworkIdle.QuietPeriod = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	b, err := NewBackend(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

func TestBackend_Chrome(t *testing.T) {
	b := newTestBackend(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "_ga", Value: "1", Path: "/", Expires: time.Now().Add(400 * 24 * time.Hour)})
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "2", Path: "/", HttpOnly: true})
		fmt.Fprint(w, `<html><body><div id="cookie-banner">We use cookies</div><a href="/privacy">Privacy</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	session, err := b.LaunchSession(ctx)
	require.NoError(t, err)

	page, err := session.Navigate(ctx, srv.URL+"/", 20*time.Second)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", page.URL())
	require.NotEmpty(t, page.ObserveRequests())
	assert.Equal(t, srv.URL+"/", page.ObserveRequests()[0].URL)

	var out struct {
		Title string `json:"title"`
		Count int    `json:"count"`
	}
	require.NoError(t, page.EvaluateScript(ctx, `({title: document.title, count: document.querySelectorAll('a').length})`, &out))
	assert.Equal(t, 1, out.Count)

	cookies, err := session.EnumerateCookies(ctx)
	require.NoError(t, err)
	names := map[string]schemas.RawCookie{}
	for _, c := range cookies {
		names[c.Name] = c
	}
	require.Contains(t, names, "_ga")
	require.Contains(t, names, "sid")
	assert.NotNil(t, names["_ga"].ExpiresAt)
	assert.Nil(t, names["sid"].ExpiresAt)
	assert.True(t, names["sid"].HTTPOnly)

	require.NoError(t, page.Close(ctx))

	// A second session starts with an empty jar.
	other, err := b.LaunchSession(ctx)
	require.NoError(t, err)
	otherCookies, err := other.EnumerateCookies(ctx)
	require.NoError(t, err)
	assert.Empty(t, otherCookies)
	require.NoError(t, other.Close(ctx))

	require.NoError(t, session.Close(ctx))
	require.NoError(t, session.Close(ctx), "close is idempotent")
	_, err = session.Navigate(ctx, srv.URL, time.Second)
	assert.ErrorIs(t, err, schemas.ErrSessionClosed)
}

func TestBackend_ChromeNavigationFailures(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	session, err := b.LaunchSession(ctx)
	require.NoError(t, err)
	defer session.Close(ctx)

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		_, err := session.Navigate(ctx, addr+"/", 10*time.Second)
		var navErr *schemas.NavigationError
		require.True(t, errors.As(err, &navErr), "got %v", err)
		assert.False(t, schemas.IsFatal(err))
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer srv.Close()

		_, err := session.Navigate(ctx, srv.URL+"/", 300*time.Millisecond)
		var navErr *schemas.NavigationError
		require.True(t, errors.As(err, &navErr), "got %v", err)
		assert.True(t, navErr.Timeout())
	})
}
