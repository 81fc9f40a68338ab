package fetch

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearhound/price-engine/internal/models"
)

func newTestFetcher() *HTTPFetcher {
	opts := DefaultHTTPOptions()
	opts.MinDelay = 0
	opts.MaxDelay = 0
	return NewHTTPFetcher(opts)
}

func TestHTTPFetcherSuccess(t *testing.T) {
	f := newTestFetcher()
	httpmock.ActivateNonDefault(f.Client())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://shop.example.com/product/1",
		httpmock.NewStringResponder(200, `<html><body>ok</body></html>`))

	resp, err := f.Fetch(context.Background(), "https://shop.example.com/product/1", Options{})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Body, "ok")
}

func TestHTTPFetcherSendsCookiesAndHeaders(t *testing.T) {
	f := newTestFetcher()
	httpmock.ActivateNonDefault(f.Client())
	defer httpmock.DeactivateAndReset()

	var gotCookie, gotHeader string
	httpmock.RegisterResponder("GET", "https://shop.example.com/product/1",
		func(req *http.Request) (*http.Response, error) {
			if c, err := req.Cookie("currency"); err == nil {
				gotCookie = c.Value
			}
			gotHeader = req.Header.Get("X-Market")
			return httpmock.NewStringResponse(200, "ok"), nil
		})

	_, err := f.Fetch(context.Background(), "https://shop.example.com/product/1", Options{
		Cookies: []Cookie{{Name: "currency", Value: "EUR"}},
		Headers: map[string]string{"X-Market": "DE"},
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", gotCookie)
	assert.Equal(t, "DE", gotHeader)
}

func TestHTTPFetcherStatusError(t *testing.T) {
	f := newTestFetcher()
	httpmock.ActivateNonDefault(f.Client())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://shop.example.com/product/1",
		httpmock.NewStringResponder(503, "unavailable"))

	_, err := f.Fetch(context.Background(), "https://shop.example.com/product/1", Options{})
	require.Error(t, err)
	require.True(t, IsFetchError(err))

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 503, fe.StatusCode)
}

func TestHTTPFetcherContextTimeout(t *testing.T) {
	f := newTestFetcher()
	httpmock.ActivateNonDefault(f.Client())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://slow.example.com/",
		func(req *http.Request) (*http.Response, error) {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(2 * time.Second):
				return httpmock.NewStringResponse(200, "late"), nil
			}
		})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, "https://slow.example.com/", Options{})
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
}

func TestSetRoutesByStrategy(t *testing.T) {
	f := newTestFetcher()
	httpmock.ActivateNonDefault(f.Client())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://shop.example.com/",
		httpmock.NewStringResponder(200, "ok"))

	set := NewSet()
	set.Register(models.FetchHTTP, f)

	// Zero strategy falls back to plain HTTP.
	resp, err := set.Fetch(context.Background(), "https://shop.example.com/", Options{})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	_, err = set.Fetch(context.Background(), "https://shop.example.com/", Options{Strategy: models.FetchRender})
	assert.ErrorIs(t, err, ErrNoFetcher)
}
