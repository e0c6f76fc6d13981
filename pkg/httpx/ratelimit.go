package httpx

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines a client-side request budget.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Enabled reports whether the config describes an actual limit.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerWindow > 0 && c.Window > 0
}

// Limiter builds the token bucket for this config. Burst defaults to
// RequestsPerWindow when unset.
func (c RateLimitConfig) Limiter() *rate.Limiter {
	if !c.Enabled() {
		return rate.NewLimiter(rate.Inf, 0)
	}

	burst := c.Burst
	if burst <= 0 {
		burst = c.RequestsPerWindow
	}

	ratePerSecond := float64(c.RequestsPerWindow) / c.Window.Seconds()
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

// RateLimit returns a middleware that blocks each request until the shared
// limiter grants a token, or the request context is done. Every retry attempt
// passes through it, so retries spend budget like any other request.
func RateLimit(limiter *rate.Limiter) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := limiter.Wait(req.Context()); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
			return next.RoundTrip(req)
		})
	}
}
