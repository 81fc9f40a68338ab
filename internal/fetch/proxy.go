package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProxyFetcher routes requests through a third-party unblocking proxy's
// HTTP API. The provider fetches the target URL on our behalf and
// returns the rendered body, which sidesteps per-site bot protection.
type ProxyFetcher struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewProxyFetcher(endpoint, token string, timeout time.Duration) *ProxyFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ProxyFetcher{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

type proxyRequest struct {
	URL     string            `json:"url"`
	Render  bool              `json:"render"`
	Cookies map[string]string `json:"cookies,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type proxyResponse struct {
	Body       string `json:"body"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
}

func (f *ProxyFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	preq := proxyRequest{URL: rawURL, Render: true, Headers: opts.Headers}
	if len(opts.Cookies) > 0 {
		preq.Cookies = make(map[string]string, len(opts.Cookies))
		for _, c := range opts.Cookies {
			preq.Cookies[c.Name] = c.Value
		}
	}

	payload, err := json.Marshal(preq)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{URL: rawURL, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	var pres proxyResponse
	if err := json.Unmarshal(raw, &pres); err != nil {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("invalid proxy response: %w", err)}
	}
	if pres.Error != "" {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("proxy error: %s", pres.Error)}
	}
	if pres.StatusCode != 0 && (pres.StatusCode < 200 || pres.StatusCode >= 300) {
		return nil, &Error{URL: rawURL, StatusCode: pres.StatusCode}
	}

	status := pres.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{Body: pres.Body, StatusCode: status}, nil
}
