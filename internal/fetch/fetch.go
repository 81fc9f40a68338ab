package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gearhound/price-engine/internal/models"
)

var (
	ErrNoFetcher = errors.New("no fetcher registered for strategy")
)

// Cookie is attached to a fetch for cookie-injection market localization.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Options carries per-request fetch parameters.
type Options struct {
	Strategy models.FetchStrategy
	Cookies  []Cookie
	Headers  map[string]string
}

// Response is one fetched document.
type Response struct {
	Body       string
	StatusCode int
	Headers    http.Header
}

// Fetcher retrieves one URL. Implementations must honor the context
// deadline; a timeout surfaces as a normal *Error, never a panic.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (*Response, error)
}

// Error is the single failure type for fetches: network errors,
// timeouts, and non-success HTTP statuses all land here.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsFetchError reports whether err is (or wraps) a fetch failure.
func IsFetchError(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}

// Set routes a fetch to the fetcher registered for the requested
// strategy. The zero strategy falls back to plain HTTP.
type Set struct {
	fetchers map[models.FetchStrategy]Fetcher
}

func NewSet() *Set {
	return &Set{fetchers: make(map[models.FetchStrategy]Fetcher)}
}

func (s *Set) Register(strategy models.FetchStrategy, f Fetcher) {
	s.fetchers[strategy] = f
}

func (s *Set) Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = models.FetchHTTP
	}
	f, ok := s.fetchers[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoFetcher, strategy)
	}
	return f.Fetch(ctx, url, opts)
}
