// internal/executor/executor_test.go
package executor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagecheck/api/schemas"
	"github.com/xkilldash9x/pagecheck/internal/browser"
	"github.com/xkilldash9x/pagecheck/internal/command"
	"github.com/xkilldash9x/pagecheck/internal/config"
	"github.com/xkilldash9x/pagecheck/internal/mocks"
	"github.com/xkilldash9x/pagecheck/internal/plugins"
	"github.com/xkilldash9x/pagecheck/internal/resolver"
	"github.com/xkilldash9x/pagecheck/internal/session"
)

const home = "https://example.com/"

// -- Test Doubles --

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Launch(ctx context.Context, engine string) error {
	return m.Called(ctx, engine).Error(0)
}

func (m *mockSession) Visit(ctx context.Context, target string, strict bool) session.Visit {
	return m.Called(ctx, target, strict).Get(0).(session.Visit)
}

func (m *mockSession) WaitForNewPage(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSession) Page() (browser.Page, error) {
	args := m.Called()
	p, _ := args.Get(0).(browser.Page)
	return p, args.Error(1)
}

// stubTest returns a fixed result.
type stubTest struct {
	plugins.BaseTest
	result any
}

func (s stubTest) Run(context.Context, browser.Page, map[string]any) (any, error) {
	return s.result, nil
}

type brokenTest struct{ plugins.BaseTest }

func (brokenTest) Run(context.Context, browser.Page, map[string]any) (any, error) {
	panic("rule exploded")
}

type harness struct {
	sess *mockSession
	page *mocks.MockPage
	exec *Executor
	// live answers Inspect; it defaults to a DOM that agrees with formBody.
	live func(browser.ElementRef) browser.ElementState
}

// liveFrom answers Inspect the way a browser whose DOM agrees with html would.
func liveFrom(html string) func(browser.ElementRef) browser.ElementState {
	return func(el browser.ElementRef) browser.ElementState {
		c, err := resolver.Candidates(html, el.Selector)
		if err != nil || el.Ordinal >= len(c) {
			return browser.ElementState{Count: len(c)}
		}
		return browser.ElementState{Count: len(c), Exists: true, Tag: c[el.Ordinal].Tag, Text: c[el.Ordinal].Content}
	}
}

const formBody = `<body><form>
<label for="q">Search terms</label><input id="q" type="text">
<label for="lang">Language</label><select id="lang"><option>English</option><option>Swedish</option></select>
<button>Search</button><button>Search again</button>
<a href="/help">Help</a>
</form></body>`

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := config.NewDefaultConfig().Executor
	cfg.WaitTimeout = 300 * time.Millisecond
	cfg.StateTimeout = 100 * time.Millisecond
	cfg.SettleTimeout = 100 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.MaxPresses = 10

	registry := plugins.NewDefaultRegistry(logger)
	registry.RegisterTest(stubTest{BaseTest: plugins.NewBaseTest("counter", "", nil, false), result: map[string]any{"count": 3, "label": "items"}})
	registry.RegisterTest(brokenTest{plugins.NewBaseTest("broken", "", nil, false)})
	validator := command.NewValidator([]string{"chromium", "ghost"}, registry)

	h := &harness{sess: new(mockSession), page: new(mocks.MockPage), live: liveFrom(formBody)}
	h.sess.On("Page").Return(h.page, nil).Maybe()
	h.sess.On("Launch", mock.Anything, "chromium").Return(nil).Maybe()
	h.sess.On("Launch", mock.Anything, "ghost").Return(browser.ErrUnknownEngine).Maybe()
	h.sess.On("Visit", mock.Anything, home, mock.Anything).Return(session.Visit{URL: home}).Maybe()

	h.page.On("BodyText", mock.Anything).Return("Search terms Language English Swedish Search Search again Help", nil).Maybe()
	h.page.On("BodyHTML", mock.Anything).Return(formBody, nil).Maybe()
	h.page.On("DismissedDialogs").Return(0).Maybe()
	h.page.On("Inspect", mock.Anything, mock.Anything).
		Return(func(el browser.ElementRef) browser.ElementState { return h.live(el) }, nil).Maybe()

	res := resolver.New(50*time.Millisecond, 5*time.Millisecond, logger)
	h.exec = New(h.sess, res, registry, validator, cfg, logger)
	return h
}

// stubURL answers every URL read with u.
func (h *harness) stubURL(u string) {
	h.page.On("URL", mock.Anything).Return(u, nil).Maybe()
}

func act(t schemas.ActType, params map[string]any) *schemas.Act {
	return schemas.NewAct(t, params)
}

func script(acts ...*schemas.Act) *schemas.Report {
	all := append([]*schemas.Act{
		act(schemas.ActLaunch, map[string]any{"which": "chromium"}),
		act(schemas.ActURL, map[string]any{"which": home}),
	}, acts...)
	return &schemas.Report{Acts: all}
}

// -- Basic Flow --

func TestRunLaunchAndVisit(t *testing.T) {
	h := newHarness(t)
	h.stubURL(home)
	report := script()
	report.Strict = true
	h.sess.On("Visit", mock.Anything, home, true).Return(session.Visit{URL: home})

	require.NoError(t, h.exec.Run(context.Background(), report))
	assert.Equal(t, "chromium", report.Acts[0].Result)
	assert.Equal(t, home, report.Acts[1].Result)
	assert.Empty(t, report.Acts[1].Error)
	assert.Equal(t, home, report.Acts[1].URL)
}

func TestRunUnknownEngineIsFatal(t *testing.T) {
	h := newHarness(t)
	report := &schemas.Report{Acts: []*schemas.Act{
		act(schemas.ActLaunch, map[string]any{"which": "netscape"}),
		act(schemas.ActURL, map[string]any{"which": home}),
	}}

	err := h.exec.Run(context.Background(), report)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
	assert.Contains(t, report.Acts[0].Error, "unknown browser engine")
	assert.False(t, report.Acts[1].Executed())
	h.sess.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)
}

func TestRunLauncherRejectsEngine(t *testing.T) {
	h := newHarness(t)
	report := &schemas.Report{Acts: []*schemas.Act{
		act(schemas.ActLaunch, map[string]any{"which": "ghost"}),
		act(schemas.ActURL, map[string]any{"which": home}),
	}}
	assert.ErrorIs(t, h.exec.Run(context.Background(), report), ErrFatal)
	assert.False(t, report.Acts[1].Executed())
}

func TestRunInvalidActsAreSkipped(t *testing.T) {
	h := newHarness(t)
	h.stubURL(home)
	report := script(
		act("dance", nil),
		act(schemas.ActWait, map[string]any{"what": "smell", "which": "x"}),
		act(schemas.ActTest, map[string]any{"which": "counter"}),
	)

	require.NoError(t, h.exec.Run(context.Background(), report))
	assert.Equal(t, `invalid command type "dance"`, report.Acts[2].Error)
	assert.Contains(t, report.Acts[3].Error, `"smell" is not url, title or body`)
	assert.Nil(t, report.Acts[3].Result)
	assert.Equal(t, map[string]any{"count": float64(3), "label": "items"}, report.Acts[4].Result)

	// Rejected acts never touched the page, so they carry no URL.
	assert.Empty(t, report.Acts[2].URL)
	assert.Empty(t, report.Acts[3].URL)
	assert.Equal(t, home, report.Acts[4].URL)
}

func TestRunRejectedActDoesNotReadThePage(t *testing.T) {
	h := newHarness(t)
	report := &schemas.Report{Acts: []*schemas.Act{
		act(schemas.ActLaunch, map[string]any{"which": "chromium"}),
		act(schemas.ActWait, map[string]any{"what": "smell", "which": "x"}),
	}}
	// Only the launch act reads the URL.
	h.page.On("URL", mock.Anything).Return(home, nil).Once()

	require.NoError(t, h.exec.Run(context.Background(), report))
	assert.NotEmpty(t, report.Acts[1].Error)
	assert.Empty(t, report.Acts[1].URL)
	h.page.AssertNumberOfCalls(t, "URL", 1)
}

func TestRunVisitFailure(t *testing.T) {
	h := newHarness(t)
	h.stubURL("about:blank")
	down := "https://down.example/"
	report := script(act(schemas.ActURL, map[string]any{"which": down}))
	h.sess.On("Visit", mock.Anything, down, false).
		Return(session.Visit{Err: errors.New("visit failed after 4 attempts: navigation failed: net::ERR_CONNECTION_REFUSED")})

	require.NoError(t, h.exec.Run(context.Background(), report))
	assert.Contains(t, report.Acts[2].Error, "visit failed after 4 attempts")
	assert.Nil(t, report.Acts[2].Result)
	assert.Equal(t, "about:blank", report.Acts[2].URL)
}

func TestRunVisitRedirectWarning(t *testing.T) {
	h := newHarness(t)
	h.stubURL(home)
	moved := "https://example.com/old"
	report := script(act(schemas.ActURL, map[string]any{"which": moved}))
	h.sess.On("Visit", mock.Anything, moved, false).
		Return(session.Visit{URL: "https://example.com/new", Warning: "requested https://example.com/old but landed on https://example.com/new"})

	require.NoError(t, h.exec.Run(context.Background(), report))
	assert.Equal(t, "https://example.com/new", report.Acts[2].Result)
	assert.True(t, strings.HasPrefix(report.Acts[2].Error, "badRedirect: "))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.exec.Run(ctx, script())
	assert.ErrorIs(t, err, context.Canceled)
}

// -- Moves --

func TestRunMoves(t *testing.T) {
	t.Run("not found is recorded, not thrown", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		report := script(
			act(schemas.ActButton, map[string]any{"which": "Submit"}),
			act(schemas.ActTest, map[string]any{"which": "counter"}),
		)
		require.NoError(t, h.exec.Run(context.Background(), report))

		rec := report.Acts[2].Result.(map[string]any)
		assert.Contains(t, []any{string(resolver.NotFound), string(resolver.Insufficient)}, rec["status"])
		assert.NotEmpty(t, report.Acts[2].Error)
		assert.True(t, report.Acts[3].Executed())
		h.page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
	})

	t.Run("ambiguous lists candidates", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		report := script(act(schemas.ActButton, map[string]any{"which": "search"}))
		require.NoError(t, h.exec.Run(context.Background(), report))

		rec := report.Acts[2].Result.(map[string]any)
		assert.Equal(t, "ambiguous", rec["status"])
		assert.Equal(t, []any{"search", "search again"}, rec["candidates"])
		assert.Contains(t, report.Acts[2].Error, "ambiguous: 2 candidates")
	})

	t.Run("click by index", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		want := browser.ElementRef{Selector: command.DefaultSelector(schemas.ActButton), Ordinal: 1}
		h.page.On("Click", mock.Anything, want).Return(nil).Once()
		report := script(act(schemas.ActButton, map[string]any{"which": "search", "index": float64(1)}))

		require.NoError(t, h.exec.Run(context.Background(), report))
		assert.Empty(t, report.Acts[2].Error)
		assert.Equal(t, map[string]any{"status": "found", "text": "search again"}, report.Acts[2].Result)
		h.page.AssertExpectations(t)
	})

	t.Run("text and select", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		h.page.On("Type", mock.Anything, mock.Anything, "golang").Return(nil).Once()
		h.page.On("SelectOption", mock.Anything, mock.Anything, "Swed").Return("Swedish", nil).Once()
		report := script(
			act(schemas.ActText, map[string]any{"which": "search terms", "value": "golang"}),
			act(schemas.ActSelect, map[string]any{"which": "language", "option": "Swed"}),
		)

		require.NoError(t, h.exec.Run(context.Background(), report))
		assert.Empty(t, report.Acts[2].Error)
		assert.Empty(t, report.Acts[3].Error)
		assert.Equal(t, "Swedish", report.Acts[3].Result.(map[string]any)["option"])
	})

	t.Run("live page disagreeing with the snapshot is not clicked", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		// The live DOM has a different element at the snapshot's ordinal.
		h.live = func(browser.ElementRef) browser.ElementState {
			return browser.ElementState{Count: 2, Exists: true, Tag: "button", Text: "Delete account"}
		}
		report := script(act(schemas.ActButton, map[string]any{"which": "search", "index": float64(1)}))

		require.NoError(t, h.exec.Run(context.Background(), report))
		rec := report.Acts[2].Result.(map[string]any)
		assert.Equal(t, string(resolver.Stale), rec["status"])
		assert.Contains(t, report.Acts[2].Error, `reads "delete account"`)
		h.page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
	})

	t.Run("interaction error is recorded", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		h.page.On("Click", mock.Anything, mock.Anything).Return(errors.New("element is disabled"))
		report := script(act(schemas.ActLink, map[string]any{"which": "help"}))

		require.NoError(t, h.exec.Run(context.Background(), report))
		assert.Equal(t, "link failed: element is disabled", report.Acts[2].Error)
	})
}

// -- Waits and Page State --

func TestRunWait(t *testing.T) {
	t.Run("succeeds once the body contains the text", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		body := new(mocks.MockPage)
		body.On("BodyText", mock.Anything).Return("Loading", nil).Twice()
		body.On("BodyText", mock.Anything).Return("Welcome back", nil)
		body.On("WaitForState", mock.Anything, browser.WaitNetworkIdle).Return(nil).Once()
		body.On("URL", mock.Anything).Return(home, nil).Maybe()
		h.sess.ExpectedCalls = nil
		h.sess.On("Page").Return(body, nil)
		h.sess.On("Launch", mock.Anything, "chromium").Return(nil)
		h.sess.On("Visit", mock.Anything, home, false).Return(session.Visit{URL: home})

		report := script(act(schemas.ActWait, map[string]any{"what": "body", "which": "Welcome"}))
		require.NoError(t, h.exec.Run(context.Background(), report))
		assert.Empty(t, report.Acts[2].Error)
		assert.Equal(t, map[string]any{"what": "body", "found": "Welcome"}, report.Acts[2].Result)
		body.AssertExpectations(t)
	})

	t.Run("times out without aborting", func(t *testing.T) {
		h := newHarness(t)
		h.page.On("Title", mock.Anything).Return("Loading", nil)
		h.stubURL(home)
		report := script(
			act(schemas.ActWait, map[string]any{"what": "title", "which": "Dashboard"}),
			act(schemas.ActTest, map[string]any{"which": "counter"}),
		)
		require.NoError(t, h.exec.Run(context.Background(), report))
		assert.Contains(t, report.Acts[2].Error, `title did not contain "Dashboard"`)
		assert.True(t, report.Acts[3].Executed())
	})
}

func TestRunState(t *testing.T) {
	h := newHarness(t)
	h.stubURL(home)
	h.page.On("WaitForState", mock.Anything, browser.WaitDOMContentLoaded).Return(nil).Once()
	h.page.On("WaitForState", mock.Anything, browser.WaitNetworkIdle).Return(context.DeadlineExceeded).Once()
	report := script(
		act(schemas.ActState, map[string]any{"which": "loaded"}),
		act(schemas.ActState, map[string]any{"which": "idle"}),
	)

	require.NoError(t, h.exec.Run(context.Background(), report))
	assert.Equal(t, "loaded", report.Acts[2].Result)
	assert.Contains(t, report.Acts[3].Error, "page did not reach idle")
}

func TestRunNewPageAndReveal(t *testing.T) {
	h := newHarness(t)
	h.stubURL("https://example.com/popup")
	h.sess.On("WaitForNewPage", mock.Anything).Return(nil).Once()
	h.page.On("Evaluate", mock.Anything, revealScript, mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*int) = 4
	}).Return(nil)
	report := script(act(schemas.ActPage, nil), act(schemas.ActReveal, nil))

	require.NoError(t, h.exec.Run(context.Background(), report))
	assert.Equal(t, "https://example.com/popup", report.Acts[2].Result)
	assert.Equal(t, map[string]any{"revealed": 4}, report.Acts[3].Result)
}

func TestRunPress(t *testing.T) {
	h := newHarness(t)
	h.stubURL(home)
	h.page.On("Press", mock.Anything, "Shift+Tab").Return(nil).Times(3)
	report := script(act(schemas.ActPress, map[string]any{"which": "Shift+Tab", "again": float64(2)}))

	require.NoError(t, h.exec.Run(context.Background(), report))
	assert.Equal(t, map[string]any{"presses": 3}, report.Acts[2].Result)
	h.page.AssertExpectations(t)
}

// -- Presses --

// focusSequence answers successive focus probes with infos.
func focusSequence(page *mocks.MockPage, infos ...focusInfo) {
	var n atomic.Int32
	page.On("Evaluate", mock.Anything, mock.MatchedBy(func(expr string) bool {
		return strings.Contains(expr, "data-pagecheck-visit")
	}), mock.Anything).Run(func(args mock.Arguments) {
		i := int(n.Add(1)) - 1
		if i >= len(infos) {
			i = len(infos) - 1
		}
		*args.Get(2).(*focusInfo) = infos[i]
	}).Return(nil)
}

func TestRunPresses(t *testing.T) {
	t.Run("reaches the target and acts on it", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		h.page.On("Press", mock.Anything, "Tab").Return(nil)
		h.page.On("Press", mock.Anything, "Enter").Return(nil).Once()
		h.page.On("InsertText", mock.Anything, "hello").Return(nil).Once()
		focusSequence(h.page,
			focusInfo{Tag: "a", Text: "Home"},
			focusInfo{Tag: "input", Text: ""},
			focusInfo{Tag: "button", Text: "Search now"},
		)
		report := script(act(schemas.ActPresses, map[string]any{
			"navKey": "Tab", "what": "BUTTON", "which": "search", "text": "hello", "action": "Enter",
		}))

		require.NoError(t, h.exec.Run(context.Background(), report))
		assert.Empty(t, report.Acts[2].Error)
		assert.Equal(t, map[string]any{
			"presses": 4, "charsRead": 14, "dialogsDismissed": 0,
			"status": "reached", "tag": "button", "text": "Search now",
		}, report.Acts[2].Result)
		h.page.AssertExpectations(t)
	})

	t.Run("revisit is local exhaustion", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		h.page.On("Press", mock.Anything, "Tab").Return(nil)
		focusSequence(h.page,
			focusInfo{Tag: "a", Text: "Home"},
			focusInfo{None: true},
			focusInfo{Tag: "a", Text: "Home", Seen: true},
		)
		report := script(act(schemas.ActPresses, map[string]any{"navKey": "Tab", "what": "select"}))

		require.NoError(t, h.exec.Run(context.Background(), report))
		assert.Equal(t, "every focusable element was visited without reaching the target", report.Acts[2].Error)
		assert.Equal(t, locallyExhausted, report.Acts[2].Result.(map[string]any)["status"])
		assert.Equal(t, 3, report.Acts[2].Result.(map[string]any)["presses"])
	})

	t.Run("nothing focusable is global exhaustion", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		h.page.On("Press", mock.Anything, "ArrowDown").Return(nil)
		focusSequence(h.page, focusInfo{None: true})
		report := script(act(schemas.ActPresses, map[string]any{"navKey": "ArrowDown"}))

		require.NoError(t, h.exec.Run(context.Background(), report))
		assert.Equal(t, "no element on the page is focusable", report.Acts[2].Error)
		assert.Equal(t, 2, report.Acts[2].Result.(map[string]any)["presses"])
	})

	t.Run("press limit", func(t *testing.T) {
		h := newHarness(t)
		h.stubURL(home)
		h.page.On("Press", mock.Anything, "Tab").Return(nil)
		infos := make([]focusInfo, 20)
		for i := range infos {
			infos[i] = focusInfo{Tag: "a", Text: "x"}
		}
		focusSequence(h.page, infos...)
		report := script(act(schemas.ActPresses, map[string]any{"navKey": "Tab", "what": "textarea"}))

		require.NoError(t, h.exec.Run(context.Background(), report))
		assert.Equal(t, "target not reached within 10 presses", report.Acts[2].Error)
	})
}

// -- Tests, Scores and Control Flow --

func TestRunTestExpectations(t *testing.T) {
	h := newHarness(t)
	h.stubURL(home)
	report := script(act(schemas.ActTest, map[string]any{
		"which":  "counter",
		"expect": []any{[]any{"count", "=", float64(3)}, []any{"count", "<", float64(2)}, []any{"missing", "defined", false}},
	}))

	require.NoError(t, h.exec.Run(context.Background(), report))
	res := report.Acts[2].Result.(map[string]any)
	assert.Equal(t, float64(3), res["count"])
	assert.Equal(t, 1, res[plugins.ExpectationFailuresKey])
	exps := res[plugins.ExpectationsKey].([]any)
	require.Len(t, exps, 3)
	assert.Equal(t, true, exps[0].(map[string]any)["passed"])
	assert.Equal(t, false, exps[1].(map[string]any)["passed"])
	assert.Equal(t, true, exps[2].(map[string]any)["passed"])
}

func TestRunPluginPanicIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.stubURL(home)
	report := script(
		act(schemas.ActTest, map[string]any{"which": "broken"}),
		act(schemas.ActScore, map[string]any{"which": "summary"}),
	)

	require.NoError(t, h.exec.Run(context.Background(), report))
	assert.Contains(t, report.Acts[2].Error, "plugin broken panicked: rule exploded")
	assert.Contains(t, report.Acts[2].Error, "goroutine")
	score := report.Acts[3].Result.(map[string]any)
	assert.Equal(t, float64(3), score["executed"])
	assert.Equal(t, float64(1), score["errors"])
}

func TestRunNext(t *testing.T) {
	named := func(params map[string]any) *schemas.Act {
		return act(schemas.ActTest, params)
	}
	tests := []struct {
		name     string
		next     map[string]any
		executed []bool // acts after the next act
		jumped   bool
	}{
		{
			name:     "numeric jump skips acts",
			next:     map[string]any{"if": []any{"priorTest.count", ">", float64(0)}, "jump": float64(2)},
			executed: []bool{false, true, true},
			jumped:   true,
		},
		{
			name:     "false condition falls through",
			next:     map[string]any{"if": []any{"priorTest.count", ">", float64(5)}, "jump": float64(2)},
			executed: []bool{true, true, true},
		},
		{
			name:     "stop halts",
			next:     map[string]any{"if": []any{"count", "=", float64(3)}, "stop": true, "jump": float64(1), "next": "last"},
			executed: []bool{false, false, false},
			jumped:   true,
		},
		{
			name:     "jump wins over a named target",
			next:     map[string]any{"if": []any{"count", "!=", float64(4)}, "jump": float64(1), "next": "last"},
			executed: []bool{true, true, true},
			jumped:   true,
		},
		{
			name:     "named target",
			next:     map[string]any{"if": []any{"label", "=", "items"}, "next": "last"},
			executed: []bool{false, false, true},
			jumped:   true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.stubURL(home)
			report := script(
				named(map[string]any{"which": "counter", "name": "priorTest"}),
				act(schemas.ActNext, tc.next),
				named(map[string]any{"which": "title"}),
				named(map[string]any{"which": "counter"}),
				named(map[string]any{"which": "counter", "name": "last"}),
			)
			h.page.On("Title", mock.Anything).Return("Home", nil).Maybe()

			require.NoError(t, h.exec.Run(context.Background(), report))
			rec := report.Acts[3].Result.(map[string]any)
			assert.Equal(t, tc.jumped, rec["jumped"])
			for i, want := range tc.executed {
				assert.Equal(t, want, report.Acts[4+i].Executed(), "act %d", 4+i)
			}
		})
	}
}

func TestRunNextReadsTheReferencedResult(t *testing.T) {
	h := newHarness(t)
	h.stubURL(home)
	report := script(
		act(schemas.ActTest, map[string]any{"which": "counter", "name": "priorTest"}),
		act(schemas.ActNext, map[string]any{"if": []any{"priorTest.count", ">", float64(0)}, "jump": float64(1)}),
		act(schemas.ActNext, map[string]any{"if": []any{"count", "defined"}, "jump": float64(1)}),
	)

	require.NoError(t, h.exec.Run(context.Background(), report))
	first := report.Acts[3].Result.(map[string]any)
	assert.Equal(t, float64(3), first["actual"])
	assert.Equal(t, "priorTest.count", first["property"])
	assert.Equal(t, true, first["jumped"])

	// The first next jumped over the second.
	assert.False(t, report.Acts[4].Executed())
}

func TestRunConsecutiveNextsShareTheirSource(t *testing.T) {
	h := newHarness(t)
	h.stubURL(home)
	report := script(
		act(schemas.ActTest, map[string]any{"which": "counter"}),
		act(schemas.ActNext, map[string]any{"if": []any{"count", "<", float64(0)}, "stop": true}),
		act(schemas.ActNext, map[string]any{"if": []any{"count", "=", float64(3)}, "stop": true}),
	)

	require.NoError(t, h.exec.Run(context.Background(), report))
	assert.Equal(t, false, report.Acts[3].Result.(map[string]any)["jumped"])
	second := report.Acts[4].Result.(map[string]any)
	assert.Equal(t, float64(3), second["actual"])
	assert.Equal(t, true, second["jumped"])
}
