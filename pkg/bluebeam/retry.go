package bluebeam

import (
	"context"
	"math"
	"net/http"
	"time"
)

// maxBackoff keeps base^attempt from overflowing time.Duration.
const maxBackoff = 24 * time.Hour

// Backoff returns BackoffBase^attempt seconds. attempt counts from zero.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	secs := math.Pow(p.BackoffBase, float64(attempt))
	if math.IsNaN(secs) || secs < 0 {
		return 0
	}
	d := secs * float64(time.Second)
	if d >= float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(d)
}

// Delay is the wait before retrying after attempt: the backoff, or the
// server's Retry-After when that is longer.
func (p RetryPolicy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	return max(p.Backoff(attempt), retryAfter)
}

// Attempts is the most HTTP attempts one logical call makes, not counting
// the single retry that follows a token refresh.
func (p RetryPolicy) Attempts() int {
	return p.MaxRetries + 1
}

// IsTransientStatus reports whether status is retried: 429 and all 5xx.
func IsTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status <= 599)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
