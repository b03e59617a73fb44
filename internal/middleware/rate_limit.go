package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/payward/payward/pkg/http"
)

// RateLimitConfig holds per-IP request rate limits. This is the outer
// transport guard; the credential throttle in the auth service is separate
// and tracks failures, not requests.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit limits the unauthenticated auth endpoints per IP.
// The ceiling sits well above the credential throttle's thresholds so the
// failure counters, not the transport guard, decide when a caller is blocked.
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
	}
}

// RateLimitByIP rate limits requests by client IP.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteRateLimited(w, "Too many requests. Please slow down.", 1)
		}),
	)
}
