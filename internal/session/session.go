// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/browser"
	"github.com/xkilldash9x/pagecheck/internal/config"
	"github.com/xkilldash9x/pagecheck/internal/observability"
)

// ErrNoSession is returned by page operations before the first successful launch.
var ErrNoSession = errors.New("no browser session")

// Outcome classifies a single navigation attempt.
type Outcome string

const (
	OK                    Outcome = "ok"
	BadStatus             Outcome = "badStatus"
	BadRedirect           Outcome = "badRedirect"
	TimeoutOrNetworkError Outcome = "timeoutOrNetworkError"
)

// Attempt is the classified result of one navigation.
type Attempt struct {
	Stage   string
	Outcome Outcome
	URL     string
	Status  int
	Err     error
}

func (a Attempt) String() string {
	switch a.Outcome {
	case BadStatus:
		return fmt.Sprintf("status %d", a.Status)
	case BadRedirect:
		return fmt.Sprintf("redirected to %s", a.URL)
	case TimeoutOrNetworkError:
		return fmt.Sprintf("navigation failed: %v", a.Err)
	default:
		return "ok"
	}
}

// Visit is the outcome of the escalation policy. Err is set only when every stage failed.
type Visit struct {
	URL      string
	Attempts []Attempt
	// Warning carries a tolerated redirect.
	Warning string
	Err     error
}

type stage struct {
	name     string
	timeout  time.Duration
	wait     browser.WaitCondition
	failover bool
}

// Manager owns the single live browser session of a run. It is not safe for concurrent
// use; the console observers it installs only touch atomic counters.
type Manager struct {
	launcher browser.Launcher
	failover []string
	nav      config.NavigationConfig
	logger   *zap.Logger

	browser browser.Browser
	page    browser.Page
	engine  string

	stats stats
}

// NewManager creates a manager with empty statistics and no session.
func NewManager(launcher browser.Launcher, browserCfg config.BrowserConfig, navCfg config.NavigationConfig, logger *zap.Logger) *Manager {
	return &Manager{
		launcher: launcher,
		failover: browserCfg.Failover,
		nav:      navCfg,
		logger:   logger.Named("session"),
	}
}

// Launch closes any existing session and starts engine with one fresh page.
// An unconfigured engine yields an error wrapping browser.ErrUnknownEngine.
func (m *Manager) Launch(ctx context.Context, engine string) error {
	if err := m.Close(ctx); err != nil {
		m.logger.Warn("Failed to close previous session cleanly.", zap.Error(err))
	}

	b, page, err := m.start(ctx, engine)
	if err != nil {
		return err
	}
	m.adopt(b, page, engine)
	return nil
}

// start launches engine and opens its first page without touching the current session.
func (m *Manager) start(ctx context.Context, engine string) (browser.Browser, browser.Page, error) {
	b, err := m.launcher.Launch(ctx, engine)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch %s: %w", engine, err)
	}
	page, err := b.NewPage(ctx)
	if err != nil {
		_ = b.Close(context.Background())
		return nil, nil, fmt.Errorf("failed to open page on %s: %w", engine, err)
	}
	return b, page, nil
}

func (m *Manager) adopt(b browser.Browser, page browser.Page, engine string) {
	m.browser, m.engine = b, engine
	m.setPage(page)
	m.logger.Info("Browser session started.", zap.String("engine", engine))
}

func (m *Manager) setPage(page browser.Page) {
	page.OnConsole(m.stats.observe)
	m.page = page
}

// Engine is the name of the running engine, empty without a session.
func (m *Manager) Engine() string { return m.engine }

// Page returns the current page.
func (m *Manager) Page() (browser.Page, error) {
	if m.page == nil {
		return nil, ErrNoSession
	}
	return m.page, nil
}

// WaitForNewPage makes the next tab opened by page content current.
func (m *Manager) WaitForNewPage(ctx context.Context) error {
	if m.browser == nil {
		return ErrNoSession
	}
	page, err := m.browser.WaitForNewPage(ctx)
	if err != nil {
		return err
	}
	m.setPage(page)
	return nil
}

// Stats returns a snapshot of the counters accumulated since the manager was created.
func (m *Manager) Stats() schemas.SessionStats {
	return m.stats.snapshot()
}

// Navigate performs one navigation attempt and classifies it. Rejections and timeouts are
// counted. The returned error is reserved for the absence of a session.
func (m *Manager) Navigate(ctx context.Context, target string, timeout time.Duration, wait browser.WaitCondition, strict bool) (Attempt, error) {
	if m.page == nil {
		return Attempt{}, ErrNoSession
	}

	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := m.page.Navigate(navCtx, target, wait)
	if err != nil {
		m.stats.visitTimeouts.Add(1)
		return Attempt{Outcome: TimeoutOrNetworkError, Err: err}, nil
	}

	finalURL := resp.URL
	if finalURL == "" {
		if u, err := m.page.URL(ctx); err == nil {
			finalURL = u
		}
	}
	attempt := Attempt{Outcome: OK, URL: finalURL, Status: resp.Status}

	if isFileURL(target) {
		return attempt, nil
	}
	if resp.Status != 200 && resp.Status != 304 {
		m.stats.visitRejections.Add(1)
		attempt.Outcome = BadStatus
		return attempt, nil
	}
	if strict && canonical(finalURL) != canonical(target) {
		attempt.Outcome = BadRedirect
	}
	return attempt, nil
}

// Visit runs the escalation policy: long/networkidle, short/domcontentloaded, engine
// failover then long/networkidle, short/load. The first ok or badRedirect wins. When all
// fail the page is reset to the blank URL.
func (m *Manager) Visit(ctx context.Context, target string, strict bool) Visit {
	stages := []stage{
		{name: "1", timeout: m.nav.LongTimeout, wait: browser.WaitNetworkIdle},
		{name: "2", timeout: m.nav.ShortTimeout, wait: browser.WaitDOMContentLoaded},
		{name: "3", timeout: m.nav.LongTimeout, wait: browser.WaitNetworkIdle, failover: true},
		{name: "4", timeout: m.nav.ShortTimeout, wait: browser.WaitLoad},
	}

	var visit Visit
	for _, st := range stages {
		if st.failover {
			if err := m.failoverEngine(ctx); err != nil {
				m.logger.Error("Engine failover failed.", zap.Error(err))
			}
		}

		attempt, err := m.Navigate(ctx, target, st.timeout, st.wait, strict)
		if err != nil {
			m.stats.visitTimeouts.Add(1)
			attempt = Attempt{Outcome: TimeoutOrNetworkError, Err: err}
		}
		attempt.Stage = st.name
		visit.Attempts = append(visit.Attempts, attempt)
		observability.RecordNavigation(st.name, string(attempt.Outcome))
		m.logger.Debug("Navigation attempt.",
			zap.String("stage", st.name),
			zap.String("url", target),
			zap.String("outcome", string(attempt.Outcome)),
			zap.Int("status", attempt.Status),
			zap.Error(attempt.Err))

		switch attempt.Outcome {
		case OK:
			visit.URL = attempt.URL
			return visit
		case BadRedirect:
			visit.URL = attempt.URL
			visit.Warning = fmt.Sprintf("requested %s but landed on %s", target, attempt.URL)
			return visit
		}
	}

	last := visit.Attempts[len(visit.Attempts)-1]
	visit.Err = fmt.Errorf("visit failed after %d attempts: %s", len(visit.Attempts), last)
	m.logger.Warn("Visit escalation exhausted.", zap.String("url", target), zap.Error(visit.Err))
	m.resetPage(ctx)
	return visit
}

func (m *Manager) resetPage(ctx context.Context) {
	if m.page == nil {
		return
	}
	resetCtx, cancel := context.WithTimeout(ctx, m.nav.ShortTimeout)
	defer cancel()
	if _, err := m.page.Navigate(resetCtx, m.nav.BlankURL, browser.WaitNone); err != nil {
		m.logger.Warn("Failed to reset page to blank.", zap.Error(err))
	}
}

// failoverEngine switches to the first failover engine that differs from the current one,
// or a fresh instance of the current engine when no other is configured. The replacement
// is started before the current session is closed: when the other engine cannot start the
// current engine is relaunched fresh, and when that fails too the current session stays.
func (m *Manager) failoverEngine(ctx context.Context) error {
	next := m.engine
	for _, name := range m.failover {
		if name != m.engine {
			next = name
			break
		}
	}
	if next == "" {
		return ErrNoSession
	}
	m.logger.Info("Failing over browser engine.", zap.String("from", m.engine), zap.String("to", next))

	b, page, err := m.start(ctx, next)
	if err != nil && next != m.engine && m.engine != "" {
		m.logger.Warn("Failover engine did not start, relaunching current engine.",
			zap.String("engine", next), zap.Error(err))
		next = m.engine
		b, page, err = m.start(ctx, next)
	}
	if err != nil {
		if m.page != nil {
			m.logger.Warn("Keeping current browser session.", zap.String("engine", m.engine))
		}
		return err
	}

	old := m.browser
	m.adopt(b, page, next)
	if old != nil && old != b {
		if err := old.Close(ctx); err != nil {
			m.logger.Warn("Failed to close previous session cleanly.", zap.Error(err))
		}
	}
	return nil
}

// Close ends the session. It is safe to call without a session.
func (m *Manager) Close(ctx context.Context) error {
	if m.browser == nil {
		return nil
	}
	b := m.browser
	m.browser, m.page, m.engine = nil, nil, ""
	if err := b.Close(ctx); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func isFileURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.EqualFold(u.Scheme, "file")
}

func canonical(raw string) string {
	return strings.TrimSuffix(raw, "/")
}
