package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gearhound/price-engine/internal/monitoring"
)

// Middleware guards an endpoint with the limiter, surfacing every
// decision through the standard X-RateLimit-* headers. Denied requests
// get a 429 with Retry-After in whole seconds.
func Middleware(l *Limiter, endpoint string, metrics *monitoring.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := l.Check(endpoint, Identify(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retry := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				metrics.IncDenied(endpoint)
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
