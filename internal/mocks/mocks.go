// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/consentscan/api/schemas"
	"github.com/xkilldash9x/consentscan/internal/store"
)

// -- Browser Backend Mocks --

// MockBrowserBackend mocks schemas.BrowserBackend.
type MockBrowserBackend struct {
	mock.Mock
}

func (m *MockBrowserBackend) LaunchSession(ctx context.Context) (schemas.BrowserSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.BrowserSession), args.Error(1)
}

func (m *MockBrowserBackend) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockBrowserSession mocks schemas.BrowserSession.
type MockBrowserSession struct {
	mock.Mock
}

func (m *MockBrowserSession) ID() string {
	return m.Called().String(0)
}

func (m *MockBrowserSession) Navigate(ctx context.Context, url string, timeout time.Duration) (schemas.BrowserPage, error) {
	args := m.Called(ctx, url, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.BrowserPage), args.Error(1)
}

func (m *MockBrowserSession) EnumerateCookies(ctx context.Context) ([]schemas.RawCookie, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.RawCookie), args.Error(1)
}

func (m *MockBrowserSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockBrowserPage mocks schemas.BrowserPage. Tests fill the EvaluateScript
// out argument from a .Run callback.
type MockBrowserPage struct {
	mock.Mock
}

func (m *MockBrowserPage) URL() string {
	return m.Called().String(0)
}

func (m *MockBrowserPage) EvaluateScript(ctx context.Context, script string, out any) error {
	return m.Called(ctx, script, out).Error(0)
}

func (m *MockBrowserPage) ObserveRequests() []schemas.ObservedRequest {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]schemas.ObservedRequest)
}

func (m *MockBrowserPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Store Mock --

// MockRepository mocks store.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) SaveResult(ctx context.Context, scan store.StoredScan) error {
	return m.Called(ctx, scan).Error(0)
}

func (m *MockRepository) GetResult(ctx context.Context, id string) (*store.StoredScan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.StoredScan), args.Error(1)
}

func (m *MockRepository) ListScans(ctx context.Context, limit int) ([]store.ScanSummary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.ScanSummary), args.Error(1)
}

func (m *MockRepository) Close() error {
	return m.Called().Error(0)
}

var (
	_ schemas.BrowserBackend = (*MockBrowserBackend)(nil)
	_ schemas.BrowserSession = (*MockBrowserSession)(nil)
	_ schemas.BrowserPage    = (*MockBrowserPage)(nil)
	_ store.Repository       = (*MockRepository)(nil)
)
