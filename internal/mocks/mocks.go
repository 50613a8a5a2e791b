// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Server() config.ServerConfig {
	args := m.Called()
	return args.Get(0).(config.ServerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Resilience() config.ResilienceConfig {
	args := m.Called()
	return args.Get(0).(config.ResilienceConfig)
}

func (m *MockConfig) Workflow() config.WorkflowConfig {
	args := m.Called()
	return args.Get(0).(config.WorkflowConfig)
}

func (m *MockConfig) Content() config.ContentConfig {
	args := m.Called()
	return args.Get(0).(config.ContentConfig)
}

func (m *MockConfig) Engine() config.EngineConfig {
	args := m.Called()
	return args.Get(0).(config.EngineConfig)
}

// --- Setters ---

func (m *MockConfig) SetServerListenAddr(addr string) {
	m.Called(addr)
}

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetBrowserRemoteURL(url string) {
	m.Called(url)
}

func (m *MockConfig) SetBrowserExecPath(path string) {
	m.Called(path)
}

// -- Driver Mocks --

// MockBrowser mocks schemas.Browser.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) Open(ctx context.Context) (schemas.Page, error) {
	args := m.Called(ctx)
	if p := args.Get(0); p != nil {
		return p.(schemas.Page), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowser) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockPage mocks schemas.Page.
type MockPage struct {
	mock.Mock
}

// NewMockPage returns a page mock whose Close always succeeds.
func NewMockPage() *MockPage {
	m := new(MockPage)
	m.On("Close", mock.Anything).Return(nil).Maybe()
	return m
}

func (m *MockPage) Navigate(ctx context.Context, url string) (schemas.PageInfo, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(schemas.PageInfo), args.Error(1)
}

func (m *MockPage) GoBack(ctx context.Context) (schemas.PageInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.PageInfo), args.Error(1)
}

func (m *MockPage) Reload(ctx context.Context) (schemas.PageInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.PageInfo), args.Error(1)
}

func (m *MockPage) Content(ctx context.Context, format schemas.ContentFormat) (string, error) {
	args := m.Called(ctx, format)
	return args.String(0), args.Error(1)
}

func (m *MockPage) FindSelectors(ctx context.Context, query schemas.SelectorQuery) ([]schemas.ElementMatch, error) {
	args := m.Called(ctx, query)
	if v := args.Get(0); v != nil {
		return v.([]schemas.ElementMatch), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Type(ctx context.Context, selector, text string) error {
	return m.Called(ctx, selector, text).Error(0)
}

func (m *MockPage) WaitFor(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Scroll(ctx context.Context, direction string) error {
	return m.Called(ctx, direction).Error(0)
}

func (m *MockPage) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	args := m.Called(ctx, script)
	if v := args.Get(0); v != nil {
		return v.(json.RawMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) Screenshot(ctx context.Context, opts schemas.ScreenshotOptions) ([]byte, error) {
	args := m.Called(ctx, opts)
	if v := args.Get(0); v != nil {
		return v.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPage) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var (
	_ config.Interface = (*MockConfig)(nil)
	_ schemas.Browser  = (*MockBrowser)(nil)
	_ schemas.Page     = (*MockPage)(nil)
)
