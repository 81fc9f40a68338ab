package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// RenderOptions configures the headless-browser fetch strategy.
type RenderOptions struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	TimezoneID     string
	ProxyServer    string
}

func DefaultRenderOptions() *RenderOptions {
	return &RenderOptions{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         "en-US",
		TimezoneID:     "UTC",
	}
}

// RenderFetcher fetches pages through a headless Chromium so sites that
// assemble their price markup client-side still yield a full document.
// Market cookies are injected into the browser context before navigation.
type RenderFetcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *RenderOptions
	logger  *slog.Logger
}

func NewRenderFetcher(opts *RenderOptions, logger *slog.Logger) (*RenderFetcher, error) {
	if opts == nil {
		opts = DefaultRenderOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &RenderFetcher{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With("component", "render_fetcher"),
	}, nil
}

func (f *RenderFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	bctx, err := f.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:  &f.opts.UserAgent,
		Locale:     &f.opts.Locale,
		TimezoneId: &f.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  f.opts.ViewportWidth,
			Height: f.opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.Headers,
	})
	if err != nil {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("failed to create browser context: %w", err)}
	}
	defer bctx.Close()

	if len(opts.Cookies) > 0 {
		cookies := make([]playwright.OptionalCookie, 0, len(opts.Cookies))
		for _, c := range opts.Cookies {
			path := c.Path
			if path == "" {
				path = "/"
			}
			cookies = append(cookies, playwright.OptionalCookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: playwright.String(c.Domain),
				Path:   playwright.String(path),
			})
		}
		if err := bctx.AddCookies(cookies); err != nil {
			return nil, &Error{URL: rawURL, Err: fmt.Errorf("failed to inject cookies: %w", err)}
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("failed to create page: %w", err)}
	}

	timeout := f.opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	resp, err := page.Goto(rawURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	if resp != nil && (resp.Status() < 200 || resp.Status() >= 300) {
		return nil, &Error{URL: rawURL, StatusCode: resp.Status()}
	}

	content, err := page.Content()
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	status := 200
	if resp != nil {
		status = resp.Status()
	}
	return &Response{Body: content, StatusCode: status}, nil
}

func (f *RenderFetcher) Close() error {
	var errs []error
	if f.browser != nil {
		if err := f.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if f.pw != nil {
		if err := f.pw.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
