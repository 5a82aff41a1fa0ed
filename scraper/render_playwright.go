package scraper

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"

	"github.com/playwright-community/playwright-go"

	"autoria_scraper/config"
)

// PlaywrightRenderer renders pages in headless Chromium driven by
// playwright. The browser is launched on first use and reused until Close.
type PlaywrightRenderer struct {
	cfg       *config.ScraperConfig
	userAgent string

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewPlaywrightRenderer(cfg *config.ScraperConfig, userAgent string) *PlaywrightRenderer {
	return &PlaywrightRenderer{cfg: cfg, userAgent: userAgent}
}

func (r *PlaywrightRenderer) ensureBrowser() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(r.cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	}
	if proxy := playwrightProxy(r.cfg.ProxyURL); proxy != nil {
		opts.Proxy = proxy
	}

	browser, err := pw.Chromium.Launch(opts)
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	r.pw = pw
	r.browser = browser
	log.Printf("Chromium launched (headless=%v)", r.cfg.Headless)
	return nil
}

func (r *PlaywrightRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := r.ensureBrowser(); err != nil {
		return "", err
	}

	page, err := r.browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(r.userAgent),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	timeout := playwright.Float(float64(r.cfg.PageTimeout.Milliseconds()))

	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		Timeout:   timeout,
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: timeout,
	}); err != nil {
		return "", fmt.Errorf("wait for network idle: %w", err)
	}

	return page.Content()
}

func (r *PlaywrightRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	if r.browser != nil {
		firstErr = r.browser.Close()
		r.browser = nil
	}
	if r.pw != nil {
		if err := r.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.pw = nil
	}
	return firstErr
}

func playwrightProxy(raw string) *playwright.Proxy {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}

	proxy := &playwright.Proxy{Server: u.Scheme + "://" + u.Host}
	if u.User != nil {
		proxy.Username = playwright.String(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			proxy.Password = playwright.String(pw)
		}
	}
	return proxy
}
