// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/pagecheck/internal/browser"
)

// -- Browser Layer Mocks --

// MockLauncher mocks browser.Launcher.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, engine string) (browser.Browser, error) {
	args := m.Called(ctx, engine)
	b, _ := args.Get(0).(browser.Browser)
	return b, args.Error(1)
}

func (m *MockLauncher) Engines() []string {
	args := m.Called()
	engines, _ := args.Get(0).([]string)
	return engines
}

// MockBrowser mocks browser.Browser.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) Engine() string { return m.Called().String(0) }

func (m *MockBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).(browser.Page)
	return p, args.Error(1)
}

func (m *MockBrowser) WaitForNewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	p, _ := args.Get(0).(browser.Page)
	return p, args.Error(1)
}

func (m *MockBrowser) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// MockPage mocks browser.Page. Console handlers are recorded rather than mocked so tests
// can drive the stream with Emit.
type MockPage struct {
	mock.Mock

	mu       sync.Mutex
	handlers []func(browser.ConsoleMessage)
}

func (m *MockPage) Navigate(ctx context.Context, url string, wait browser.WaitCondition) (*browser.Response, error) {
	args := m.Called(ctx, url, wait)
	r, _ := args.Get(0).(*browser.Response)
	return r, args.Error(1)
}

func (m *MockPage) WaitForState(ctx context.Context, wait browser.WaitCondition) error {
	return m.Called(ctx, wait).Error(0)
}

func (m *MockPage) URL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) BodyText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) BodyHTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Evaluate(ctx context.Context, expression string, res any) error {
	return m.Called(ctx, expression, res).Error(0)
}

// Inspect returns Get(0) as a browser.ElementState, or calls it when it is a
// func(browser.ElementRef) browser.ElementState.
func (m *MockPage) Inspect(ctx context.Context, el browser.ElementRef) (browser.ElementState, error) {
	args := m.Called(ctx, el)
	switch v := args.Get(0).(type) {
	case func(browser.ElementRef) browser.ElementState:
		return v(el), args.Error(1)
	case browser.ElementState:
		return v, args.Error(1)
	}
	return browser.ElementState{}, args.Error(1)
}

func (m *MockPage) Click(ctx context.Context, el browser.ElementRef) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPage) Check(ctx context.Context, el browser.ElementRef) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPage) Focus(ctx context.Context, el browser.ElementRef) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPage) Type(ctx context.Context, el browser.ElementRef, text string) error {
	return m.Called(ctx, el, text).Error(0)
}

func (m *MockPage) SelectOption(ctx context.Context, el browser.ElementRef, option string) (string, error) {
	args := m.Called(ctx, el, option)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Press(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockPage) InsertText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockPage) DismissedDialogs() int { return m.Called().Int(0) }

func (m *MockPage) OnConsole(handler func(browser.ConsoleMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Emit delivers msg to every registered console handler.
func (m *MockPage) Emit(msg browser.ConsoleMessage) {
	m.mu.Lock()
	handlers := append([]func(browser.ConsoleMessage){}, m.handlers...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (m *MockPage) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

var (
	_ browser.Launcher = (*MockLauncher)(nil)
	_ browser.Browser  = (*MockBrowser)(nil)
	_ browser.Page     = (*MockPage)(nil)
)
