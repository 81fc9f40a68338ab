package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// anonymousID collapses every unparseable client address into one
// neutral identifier instead of erroring.
const anonymousID = "unknown"

type contextKey struct{}

// WithUserID tags a request context with an authenticated user id.
// Auth middleware sets this; the limiter prefers it over any IP.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID reads the authenticated user id off a context, if any.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Identify resolves the limiter identifier for a request: the
// authenticated user id when present, else the client IP through the
// trusted-proxy header chain — most-specific single-hop header first,
// then the forwarded chain's first hop, else the raw connection address.
func Identify(r *http.Request) string {
	if id := UserID(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	for _, header := range []string{"CF-Connecting-IP", "True-Client-IP", "X-Real-IP"} {
		if ip := parseIP(r.Header.Get(header)); ip != "" {
			return ip
		}
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := parseIP(host); ip != "" {
		return ip
	}
	return anonymousID
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
