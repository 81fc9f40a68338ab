package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearhound/price-engine/internal/monitoring"
)

func TestMiddlewareHeaders(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(Limit{Requests: 2, Period: 60 * time.Second}).WithClock(clock.now)

	handler := Middleware(l, "/items", monitoring.NewMetrics())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/items", nil)
		req.RemoteAddr = "10.0.0.7:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	do()
	rec = do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		name     string
		remote   string
		headers  map[string]string
		userID   string
		expected string
	}{
		{
			name:     "raw connection address",
			remote:   "192.0.2.10:443",
			expected: "ip:192.0.2.10",
		},
		{
			name:     "single-hop header beats forwarded chain",
			remote:   "10.0.0.1:80",
			headers:  map[string]string{"CF-Connecting-IP": "203.0.113.5", "X-Forwarded-For": "198.51.100.1, 10.0.0.1"},
			expected: "ip:203.0.113.5",
		},
		{
			name:     "forwarded chain first hop",
			remote:   "10.0.0.1:80",
			headers:  map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"},
			expected: "ip:198.51.100.1",
		},
		{
			name:     "invalid header falls through to remote addr",
			remote:   "192.0.2.10:443",
			headers:  map[string]string{"X-Forwarded-For": "not-an-ip"},
			expected: "ip:192.0.2.10",
		},
		{
			name:     "everything unparseable collapses to unknown",
			remote:   "garbage",
			headers:  map[string]string{"X-Forwarded-For": "also-garbage"},
			expected: "ip:unknown",
		},
		{
			name:     "authenticated user id wins over any IP",
			remote:   "192.0.2.10:443",
			headers:  map[string]string{"CF-Connecting-IP": "203.0.113.5"},
			userID:   "u-42",
			expected: "user:u-42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/items", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.userID != "" {
				req = req.WithContext(WithUserID(req.Context(), tt.userID))
			}
			require.Equal(t, tt.expected, Identify(req))
		})
	}
}
