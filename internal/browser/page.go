// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagecheck/internal/config"
)

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	// root is the tab created with the browser; closing it closes the process.
	root   bool
	exec   config.ExecutorConfig
	logger *zap.Logger
	net    *netWatch

	mu       sync.RWMutex
	handlers []func(ConsoleMessage)

	dialogs atomic.Int64
	closed  atomic.Bool
}

func newChromePage(ctx context.Context, cancel context.CancelFunc, root bool, exec config.ExecutorConfig, logger *zap.Logger) *chromePage {
	return &chromePage{
		ctx:    ctx,
		cancel: cancel,
		root:   root,
		exec:   exec,
		logger: logger.Named("page"),
		net:    newNetWatch(),
	}
}

// init attaches to the target and enables the domains the event listener depends on.
func (p *chromePage) init(ctx context.Context) error {
	if !p.root {
		// The first Run attaches the target. It must use the tab context itself, a derived
		// deadline would tear the tab down when it expires.
		attached := make(chan error, 1)
		go func() { attached <- chromedp.Run(p.ctx) }()
		select {
		case err := <-attached:
			if err != nil {
				return fmt.Errorf("failed to attach page: %w", err)
			}
		case <-ctx.Done():
			return fmt.Errorf("failed to attach page: %w", ctx.Err())
		}
	}

	p.listen()

	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx,
		network.Enable(),
		cdplog.Enable(),
		runtime.Enable(),
		page.Enable(),
	); err != nil {
		return fmt.Errorf("failed to enable page domains: %w", err)
	}
	return nil
}

func (p *chromePage) listen() {
	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			p.net.requestStarted(ev)
		case *network.EventResponseReceived:
			p.net.responseReceived(ev)
		case *network.EventLoadingFinished:
			p.net.requestDone(ev.RequestID)
		case *network.EventLoadingFailed:
			p.net.requestDone(ev.RequestID)
		case *runtime.EventConsoleAPICalled:
			p.emit(ConsoleMessage{Type: string(ev.Type), Text: consoleText(ev.Args), Time: time.Now()})
		case *cdplog.EventEntryAdded:
			if ev.Entry != nil {
				p.emit(ConsoleMessage{Type: string(ev.Entry.Level), Text: ev.Entry.Text, Time: time.Now()})
			}
		case *page.EventJavascriptDialogOpening:
			p.dialogs.Add(1)
			// CDP calls cannot be made from the listener goroutine.
			go func() {
				c := chromedp.FromContext(p.ctx)
				if c == nil || c.Target == nil {
					return
				}
				if err := page.HandleJavaScriptDialog(false).Do(cdp.WithExecutor(p.ctx, c.Target)); err != nil {
					p.logger.Debug("Failed to dismiss dialog.", zap.Error(err))
				}
			}()
		}
	})
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if len(arg.Value) > 0 {
			var s string
			if err := json.Unmarshal(arg.Value, &s); err == nil {
				parts = append(parts, s)
			} else {
				parts = append(parts, string(arg.Value))
			}
			continue
		}
		parts = append(parts, arg.Description)
	}
	return strings.Join(parts, " ")
}

func (p *chromePage) emit(msg ConsoleMessage) {
	p.mu.RLock()
	handlers := p.handlers
	p.mu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (p *chromePage) OnConsole(handler func(ConsoleMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
}

func (p *chromePage) DismissedDialogs() int {
	return int(p.dialogs.Swap(0))
}

// run executes actions on this tab bounded by the caller's context.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.closed.Load() {
		return errors.New("page is closed")
	}
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string, wait WaitCondition) (*Response, error) {
	p.net.resetDocuments()

	var frame cdp.FrameID
	err := p.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(c, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return fmt.Errorf("navigation to %s failed: %s", url, res.ErrorText)
		}
		frame = res.FrameID
		return nil
	}))
	if err != nil {
		return nil, err
	}
	if err := p.WaitForState(ctx, wait); err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", wait, err)
	}

	resp := &Response{}
	if doc, ok := p.net.documentResponse(frame); ok {
		*resp = doc
	}
	// The document URL reflects client-side redirects the response cannot.
	if final, err := p.URL(ctx); err == nil {
		resp.URL = final
	}
	return resp, nil
}

func (p *chromePage) WaitForState(ctx context.Context, wait WaitCondition) error {
	switch wait {
	case WaitNone, "":
		return nil
	case WaitDOMContentLoaded:
		return p.waitReadyState(ctx, "interactive", "complete")
	case WaitLoad:
		return p.waitReadyState(ctx, "complete")
	case WaitNetworkIdle:
		if err := p.waitReadyState(ctx, "complete"); err != nil {
			return err
		}
		quiet := p.exec.IdleQuietPeriod
		if quiet <= 0 {
			quiet = 500 * time.Millisecond
		}
		return p.net.waitIdle(ctx, quiet)
	default:
		return fmt.Errorf("unknown wait condition %q", wait)
	}
}

func (p *chromePage) waitReadyState(ctx context.Context, states ...string) error {
	ticker := time.NewTicker(networkIdleCheckFrequency)
	defer ticker.Stop()
	for {
		var state string
		// Evaluation fails while the old execution context is torn down; keep polling.
		if err := p.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err == nil {
			for _, s := range states {
				if state == s {
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	var t string
	err := p.run(ctx, chromedp.Title(&t))
	return t, err
}

func (p *chromePage) BodyText(ctx context.Context) (string, error) {
	var s string
	err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &s))
	return s, err
}

func (p *chromePage) BodyHTML(ctx context.Context) (string, error) {
	var s string
	err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.outerHTML : ""`, &s))
	return s, err
}

func (p *chromePage) Evaluate(ctx context.Context, expression string, res any) error {
	return p.run(ctx, chromedp.Evaluate(expression, res, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
}

// jsPath renders an element reference as a JS expression for ByJSPath queries.
func jsPath(el ElementRef) string {
	sel, _ := json.Marshal(el.Selector)
	return fmt.Sprintf("document.body.querySelectorAll(%s)[%d]", sel, el.Ordinal)
}

const inspectJS = `((sel, i) => {
	const all = document.body ? document.body.querySelectorAll(sel) : [];
	const el = all[i];
	return {count: all.length, exists: !!el, tag: el ? el.tagName.toLowerCase() : "", text: el ? (el.textContent || "") : ""};
})(%s, %d)`

func (p *chromePage) Inspect(ctx context.Context, el ElementRef) (ElementState, error) {
	sel, _ := json.Marshal(el.Selector)
	var st ElementState
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(inspectJS, sel, el.Ordinal), &st))
	return st, err
}

func (p *chromePage) Click(ctx context.Context, el ElementRef) error {
	return p.run(ctx, chromedp.Click(jsPath(el), chromedp.ByJSPath))
}

func (p *chromePage) Check(ctx context.Context, el ElementRef) error {
	var state string
	probe := fmt.Sprintf(`(el => !el ? "missing" : (el.checked ? "checked" : "unchecked"))(%s)`, jsPath(el))
	if err := p.run(ctx, chromedp.Evaluate(probe, &state)); err != nil {
		return err
	}
	switch state {
	case "missing":
		return fmt.Errorf("element %s[%d] is gone", el.Selector, el.Ordinal)
	case "checked":
		return nil
	}
	return p.Click(ctx, el)
}

func (p *chromePage) Focus(ctx context.Context, el ElementRef) error {
	return p.run(ctx, chromedp.Focus(jsPath(el), chromedp.ByJSPath))
}

func (p *chromePage) Type(ctx context.Context, el ElementRef, text string) error {
	path := jsPath(el)
	return p.run(ctx,
		chromedp.Clear(path, chromedp.ByJSPath),
		chromedp.SendKeys(path, text, chromedp.ByJSPath),
	)
}

const selectOptionJS = `((sel, want) => {
	if (!sel || !sel.options) return "";
	const norm = s => (s || "").replace(/\s+/g, " ").trim().toLowerCase();
	const target = norm(want);
	for (const opt of sel.options) {
		if (norm(opt.textContent).includes(target)) {
			sel.value = opt.value;
			opt.selected = true;
			sel.dispatchEvent(new Event("input", {bubbles: true}));
			sel.dispatchEvent(new Event("change", {bubbles: true}));
			return opt.textContent.trim();
		}
	}
	return "";
})(%s, %s)`

func (p *chromePage) SelectOption(ctx context.Context, el ElementRef, option string) (string, error) {
	want, _ := json.Marshal(option)
	var chosen string
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(selectOptionJS, jsPath(el), want), &chosen)); err != nil {
		return "", err
	}
	if chosen == "" {
		return "", fmt.Errorf("no option matching %q", option)
	}
	return chosen, nil
}

func (p *chromePage) Press(ctx context.Context, key string) error {
	seq, mods, ok := ParseKey(key)
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	return p.run(ctx, chromedp.KeyEvent(seq, chromedp.KeyModifiers(mods...)))
}

func (p *chromePage) InsertText(ctx context.Context, text string) error {
	return p.run(ctx, input.InsertText(text))
}

func (p *chromePage) Close(ctx context.Context) error {
	if p.closed.Swap(true) || p.root {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(p.ctx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
