package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"autoria_scraper/config"
)

// ChromeRenderer is the chromedp alternative to PlaywrightRenderer. It
// talks to a local Chrome over the DevTools protocol, so no playwright
// driver install is needed.
type ChromeRenderer struct {
	cfg       *config.ScraperConfig
	userAgent string

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

func NewChromeRenderer(cfg *config.ScraperConfig, userAgent string) *ChromeRenderer {
	return &ChromeRenderer{cfg: cfg, userAgent: userAgent}
}

func (r *ChromeRenderer) allocator() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.allocCtx == nil {
		r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), r.execOptions()...)
	}
	return r.allocCtx
}

func (r *ChromeRenderer) execOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(r.userAgent),
	}
	if r.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if r.cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(r.cfg.ProxyURL))
	}
	return opts
}

// Render opens pageURL in a fresh tab, waits for Chrome's networkIdle
// lifecycle event on the navigation's own loader and returns the document's
// outer HTML.
func (r *ChromeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	tabCtx, tabCancel := chromedp.NewContext(r.allocator())
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, r.cfg.PageTimeout)
	defer cancel()

	// Tie the tab to the caller's context as well.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	watcher := newIdleWatcher()
	chromedp.ListenTarget(tabCtx, watcher.observe)

	var frameID cdp.FrameID
	var loaderID cdp.LoaderID
	if err := chromedp.Run(tabCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var errText string
			var err error
			frameID, loaderID, errText, _, err = page.Navigate(pageURL).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return errors.New(errText)
			}
			return nil
		}),
	); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	if err := watcher.wait(tabCtx, frameID, loaderID); err != nil {
		return "", fmt.Errorf("wait for network idle: %w", err)
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(250*time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("read markup: %w", err)
	}
	return html, nil
}

type idleKey struct {
	frame  cdp.FrameID
	loader cdp.LoaderID
}

// idleWatcher remembers which frame loaders reported networkIdle. Events can
// arrive before the navigation returns its loader id, and the blank start
// page reports its own idle, so waiters match on frame and loader.
type idleWatcher struct {
	mu     sync.Mutex
	seen   map[idleKey]struct{}
	notify chan struct{}
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{
		seen:   make(map[idleKey]struct{}),
		notify: make(chan struct{}, 1),
	}
}

func (w *idleWatcher) observe(ev interface{}) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != "networkIdle" {
		return
	}

	w.mu.Lock()
	w.seen[idleKey{e.FrameID, e.LoaderID}] = struct{}{}
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *idleWatcher) idle(frameID cdp.FrameID, loaderID cdp.LoaderID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[idleKey{frameID, loaderID}]
	return ok
}

func (w *idleWatcher) wait(ctx context.Context, frameID cdp.FrameID, loaderID cdp.LoaderID) error {
	for !w.idle(frameID, loaderID) {
		select {
		case <-w.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.allocCancel != nil {
		r.allocCancel()
		r.allocCtx = nil
		r.allocCancel = nil
	}
	return nil
}
