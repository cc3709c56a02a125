// internal/browser/launcher.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagecheck/internal/config"
)

const closeTimeout = 10 * time.Second

// ChromeLauncher starts the chromium-family engines configured under browser.engines.
type ChromeLauncher struct {
	cfg    config.BrowserConfig
	exec   config.ExecutorConfig
	logger *zap.Logger
}

// NewChromeLauncher creates a launcher over the configured engines.
func NewChromeLauncher(cfg config.BrowserConfig, exec config.ExecutorConfig, logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg, exec: exec, logger: logger.Named("launcher")}
}

// Engines lists the configured engine names.
func (l *ChromeLauncher) Engines() []string {
	return l.cfg.EngineNames()
}

// buildAllocatorOptions assembles the exec allocator flags for one engine.
func (l *ChromeLauncher) buildAllocatorOptions(engine config.EngineConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("hide-scrollbars", l.cfg.Headless),
		chromedp.Flag("mute-audio", l.cfg.Headless),
		chromedp.Flag("disable-popup-blocking", true),
	)
	if l.cfg.ViewportWidth > 0 && l.cfg.ViewportHeight > 0 {
		opts = append(opts, chromedp.WindowSize(l.cfg.ViewportWidth, l.cfg.ViewportHeight))
	}
	if l.cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	if engine.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(engine.ExecPath))
	}

	args := append(append([]string{}, l.cfg.Args...), engine.Args...)
	for _, arg := range args {
		arg = strings.TrimLeft(arg, "-")
		if key, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else if arg != "" {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

// Launch starts the named engine and waits for its first tab to attach.
func (l *ChromeLauncher) Launch(ctx context.Context, name string) (Browser, error) {
	engine, ok := l.cfg.Engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.buildAllocatorOptions(engine)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	timeout := l.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	startCtx, cancelStart := context.WithTimeout(ctx, timeout)
	defer cancelStart()

	// chromedp.Run with tabCtx starts the process. It cannot take the deadline directly since
	// cancelling tabCtx would kill the browser.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("failed to start engine %q: %w", name, err)
		}
	case <-startCtx.Done():
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("engine %q did not start: %w", name, startCtx.Err())
	}

	c := chromedp.FromContext(tabCtx)
	b := &chromeBrowser{
		engine:      name,
		allocCancel: allocCancel,
		rootCtx:     tabCtx,
		rootCancel:  tabCancel,
		rootTarget:  c.Target.TargetID,
		known:       map[target.ID]bool{c.Target.TargetID: true},
		exec:        l.exec,
		logger:      l.logger.With(zap.String("engine", name)),
	}

	// Everything already open at launch is never reported as a new page.
	infos, err := target.GetTargets().Do(b.browserExecutor())
	if err != nil {
		_ = b.Close(ctx)
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	for _, info := range infos {
		b.known[info.TargetID] = true
	}

	b.logger.Info("Browser engine launched.")
	return b, nil
}

type chromeBrowser struct {
	engine      string
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc
	rootTarget  target.ID
	rootClaimed bool
	exec        config.ExecutorConfig
	logger      *zap.Logger

	mu     sync.Mutex
	known  map[target.ID]bool
	pages  []*chromePage
	closed bool
}

func (b *chromeBrowser) Engine() string { return b.engine }

// browserExecutor addresses browser-level CDP domains such as Target.
func (b *chromeBrowser) browserExecutor() context.Context {
	return cdp.WithExecutor(b.rootCtx, chromedp.FromContext(b.rootCtx).Browser)
}

func (b *chromeBrowser) NewPage(ctx context.Context) (Page, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser %q is closed", b.engine)
	}
	if !b.rootClaimed {
		b.rootClaimed = true
		b.mu.Unlock()
		return b.attach(ctx, b.rootCtx, b.rootCancel, true)
	}
	b.mu.Unlock()

	id, err := target.CreateTarget("about:blank").Do(b.browserExecutor())
	if err != nil {
		return nil, fmt.Errorf("failed to create target: %w", err)
	}
	b.mu.Lock()
	b.known[id] = true
	b.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(b.rootCtx, chromedp.WithTargetID(id))
	return b.attach(ctx, tabCtx, cancel, false)
}

func (b *chromeBrowser) WaitForNewPage(ctx context.Context) (Page, error) {
	ticker := time.NewTicker(b.pollInterval())
	defer ticker.Stop()

	for {
		infos, err := target.GetTargets().Do(b.browserExecutor())
		if err != nil {
			return nil, fmt.Errorf("failed to list targets: %w", err)
		}
		b.mu.Lock()
		var found target.ID
		for _, info := range infos {
			if info.Type == "page" && !b.known[info.TargetID] {
				found = info.TargetID
				b.known[found] = true
				break
			}
		}
		b.mu.Unlock()

		if found != "" {
			b.logger.Debug("Claimed new page.", zap.String("target_id", string(found)))
			tabCtx, cancel := chromedp.NewContext(b.rootCtx, chromedp.WithTargetID(found))
			return b.attach(ctx, tabCtx, cancel, false)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrNoNewPage, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *chromeBrowser) pollInterval() time.Duration {
	if b.exec.PollInterval > 0 {
		return b.exec.PollInterval
	}
	return 250 * time.Millisecond
}

func (b *chromeBrowser) attach(ctx context.Context, tabCtx context.Context, cancel context.CancelFunc, root bool) (Page, error) {
	p := newChromePage(tabCtx, cancel, root, b.exec, b.logger)
	if err := p.init(ctx); err != nil {
		if !root {
			cancel()
		}
		return nil, err
	}
	b.mu.Lock()
	b.pages = append(b.pages, p)
	b.mu.Unlock()
	return p, nil
}

// Close closes every secondary tab in parallel, then stops the browser process through
// the root tab.
func (b *chromeBrowser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pages := b.pages
	b.pages = nil
	b.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(Detach(ctx), closeTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(closeCtx)
	for _, p := range pages {
		if p.root {
			continue
		}
		g.Go(func() error { return p.Close(gctx) })
	}
	err := g.Wait()

	// Cancelling the first tab's context shuts the process down and waits for it to exit.
	if cerr := chromedp.Cancel(b.rootCtx); cerr != nil && err == nil && !errors.Is(cerr, context.Canceled) {
		err = cerr
	}
	b.rootCancel()
	b.allocCancel()
	b.logger.Info("Browser engine closed.")
	return err
}
