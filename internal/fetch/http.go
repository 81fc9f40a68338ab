package fetch

import (
	"context"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"
)

// HTTPOptions configures the plain HTTP fetcher.
type HTTPOptions struct {
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
	UserAgents     []string
	MinDelay       time.Duration
	MaxDelay       time.Duration
}

func DefaultHTTPOptions() *HTTPOptions {
	return &HTTPOptions{
		ConnectTimeout: 10 * time.Second,
		TotalTimeout:   30 * time.Second,
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		MinDelay: 1 * time.Second,
		MaxDelay: 3 * time.Second,
	}
}

// HTTPFetcher is the generic fetch strategy: one GET through a shared
// client with bounded connect and total timeouts.
type HTTPFetcher struct {
	client   *http.Client
	opts     *HTTPOptions
	throttle *Throttle
}

func NewHTTPFetcher(opts *HTTPOptions) *HTTPFetcher {
	if opts == nil {
		opts = DefaultHTTPOptions()
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: opts.ConnectTimeout,
		MaxIdleConnsPerHost: 4,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.TotalTimeout,
		},
		opts:     opts,
		throttle: NewThrottle(opts.MinDelay, opts.MaxDelay),
	}
}

// Client exposes the underlying client so tests can swap its transport.
func (f *HTTPFetcher) Client() *http.Client { return f.client }

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	if err := f.throttle.Wait(ctx, u.Host); err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	for _, c := range opts.Cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path})
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	return &Response{
		Body:       string(body),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}, nil
}

func (f *HTTPFetcher) userAgent() string {
	if len(f.opts.UserAgents) == 0 {
		return "price-engine/1.0"
	}
	return f.opts.UserAgents[rand.Intn(len(f.opts.UserAgents))]
}
