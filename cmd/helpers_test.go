// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/config"
	"github.com/xkilldash9x/consentscan/internal/mocks"
	"github.com/xkilldash9x/consentscan/internal/service"
	"github.com/xkilldash9x/consentscan/internal/store"
)

// writeTestConfig writes a config file that keeps history in a temp SQLite
// database and returns its path.
func writeTestConfig(t *testing.T, driver string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`logger:
  level: error
database:
  driver: %s
  sqlite_path: %s
`, driver, filepath.Join(dir, "history.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// executeCommand runs a pristine root command and captures its output.
func executeCommand(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := NewRootCommand()
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return outBuf.String(), errBuf.String(), err
}

// useFactory swaps the scan component factory for the duration of a test.
func useFactory(t *testing.T, f service.ComponentFactory) {
	t.Helper()
	orig := componentFactory
	componentFactory = f
	t.Cleanup(func() { componentFactory = orig })
}

// useStoreOpener swaps the history store opener for the duration of a test.
func useStoreOpener(t *testing.T, open service.StoreOpener) {
	t.Helper()
	orig := openStore
	openStore = open
	t.Cleanup(func() { openStore = orig })
}

// newFakeBackend returns a backend whose every page is an empty document
// setting one analytics cookie.
func newFakeBackend() *mocks.MockBrowserBackend {
	page := new(mocks.MockBrowserPage)
	page.On("URL").Return("https://example.com/").Maybe()
	page.On("EvaluateScript", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	page.On("ObserveRequests").Return([]schemas.ObservedRequest{})
	page.On("Close", mock.Anything).Return(nil)

	session := new(mocks.MockBrowserSession)
	session.On("ID").Return("session-1").Maybe()
	session.On("Navigate", mock.Anything, mock.Anything, mock.Anything).Return(page, nil)
	session.On("EnumerateCookies", mock.Anything).Return([]schemas.RawCookie{
		{Name: "_ga", Domain: ".example.com", Path: "/"},
	}, nil)
	session.On("Close", mock.Anything).Return(nil)

	backend := new(mocks.MockBrowserBackend)
	backend.On("LaunchSession", mock.Anything).Return(session, nil)
	backend.On("Close", mock.Anything).Return(nil)
	return backend
}

// fakeBrowserFactory builds real components over backend and the real store.
func fakeBrowserFactory(backend schemas.BrowserBackend) service.ComponentFactory {
	return service.NewComponentFactoryWith(store.Open,
		func(context.Context, config.BrowserConfig, *zap.Logger) (schemas.BrowserBackend, error) {
			return backend, nil
		})
}
