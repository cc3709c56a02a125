// internal/browser/browser_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pagecheck/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("InheritsValuesFromPrimary", func(t *testing.T) {
		ctx1 := context.WithValue(context.Background(), key, "tab")
		combined, cancel := CombineContext(ctx1, context.Background())
		defer cancel()
		assert.Equal(t, "tab", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("CancelledBySecondary", func(t *testing.T) {
		ctx2, cancel2 := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), ctx2)
		defer cancel()
		cancel2()
		assert.Eventually(t, func() bool { return combined.Err() != nil }, time.Second, 5*time.Millisecond)
	})

	t.Run("AdoptsSecondaryDeadline", func(t *testing.T) {
		deadline := time.Now().Add(time.Minute)
		ctx2, cancel2 := context.WithDeadline(context.Background(), deadline)
		defer cancel2()
		combined, cancel := CombineContext(context.Background(), ctx2)
		defer cancel()
		got, ok := combined.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, deadline, got, time.Millisecond)
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey("k"), "v"))
	cancel()
	detached := Detach(parent)
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	assert.Equal(t, "v", detached.Value(ctxKey("k")))
}

func TestParseKey(t *testing.T) {
	seq, mods, ok := ParseKey("Tab")
	require.True(t, ok)
	assert.Equal(t, kb.Tab, seq)
	assert.Empty(t, mods)

	seq, mods, ok = ParseKey("Shift+Tab")
	require.True(t, ok)
	assert.Equal(t, kb.Tab, seq)
	assert.Equal(t, []input.Modifier{input.ModifierShift}, mods)

	_, _, ok = ParseKey("Hyper+Tab")
	assert.False(t, ok)
	assert.False(t, IsKnownKey("F13"))
	assert.True(t, IsKnownKey("Enter"))

	assert.True(t, IsNavigationKey("ArrowDown"))
	assert.False(t, IsNavigationKey("Enter"))
}

func TestJSPath(t *testing.T) {
	got := jsPath(ElementRef{Selector: `input[name="q"]`, Ordinal: 2})
	assert.Equal(t, `document.body.querySelectorAll("input[name=\"q\"]")[2]`, got)
}

func TestConsoleText(t *testing.T) {
	args := []*runtime.RemoteObject{
		{Value: []byte(`"Failed with"`)},
		{Value: []byte(`403`)},
		{Description: "Error: forbidden"},
		nil,
	}
	assert.Equal(t, "Failed with 403 Error: forbidden", consoleText(args))
}

func TestNetWatch(t *testing.T) {
	t.Run("DocumentResponses", func(t *testing.T) {
		w := newNetWatch()
		w.responseReceived(&network.EventResponseReceived{
			FrameID:  cdp.FrameID("main"),
			Type:     network.ResourceTypeDocument,
			Response: &network.Response{Status: 404, URL: "https://example.com/missing"},
		})
		w.responseReceived(&network.EventResponseReceived{
			FrameID:  cdp.FrameID("main"),
			Type:     network.ResourceTypeImage,
			Response: &network.Response{Status: 200, URL: "https://example.com/logo.png"},
		})

		got, ok := w.documentResponse("main")
		require.True(t, ok)
		assert.Equal(t, Response{Status: 404, URL: "https://example.com/missing"}, got)

		w.resetDocuments()
		_, ok = w.documentResponse("main")
		assert.False(t, ok)
	})

	t.Run("IdleAfterQuietPeriod", func(t *testing.T) {
		w := newNetWatch()
		w.requestStarted(&network.EventRequestWillBeSent{RequestID: "1"})
		// Redirect hops reuse the ID.
		w.requestStarted(&network.EventRequestWillBeSent{RequestID: "1"})
		assert.Equal(t, 1, w.active())

		go func() {
			time.Sleep(50 * time.Millisecond)
			w.requestDone("1")
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		start := time.Now()
		require.NoError(t, w.waitIdle(ctx, 100*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("NeverIdle", func(t *testing.T) {
		w := newNetWatch()
		w.requestStarted(&network.EventRequestWillBeSent{RequestID: "stuck"})
		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, w.waitIdle(ctx, 50*time.Millisecond), context.DeadlineExceeded)
	})
}

func TestBuildAllocatorOptions(t *testing.T) {
	logger := zaptest.NewLogger(t)
	base := config.BrowserConfig{Headless: true}
	baseline := len(NewChromeLauncher(base, config.ExecutorConfig{}, logger).buildAllocatorOptions(config.EngineConfig{}))

	withTLS := base
	withTLS.IgnoreTLSErrors = true
	assert.Equal(t, baseline+1, len(NewChromeLauncher(withTLS, config.ExecutorConfig{}, logger).buildAllocatorOptions(config.EngineConfig{})))

	withArgs := base
	withArgs.Args = []string{"--lang=en-US", "--disable-extensions", ""}
	engine := config.EngineConfig{ExecPath: "/usr/bin/chromium", Args: []string{"--incognito"}}
	assert.Equal(t, baseline+4, len(NewChromeLauncher(withArgs, config.ExecutorConfig{}, logger).buildAllocatorOptions(engine)))
}

func TestLaunchUnknownEngine(t *testing.T) {
	cfg := config.NewDefaultConfig()
	l := NewChromeLauncher(cfg.Browser, cfg.Executor, zaptest.NewLogger(t))

	_, err := l.Launch(context.Background(), "netscape")
	assert.ErrorIs(t, err, ErrUnknownEngine)
	assert.Equal(t, []string{"chrome", "chromium"}, l.Engines())
}
