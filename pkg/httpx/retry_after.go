package httpx

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxRetryAfter caps the delay ParseRetryAfter reports.
const MaxRetryAfter = 24 * time.Hour

// ParseRetryAfter interprets a Retry-After header value, which is either a
// number of seconds or an HTTP date. Dates in the past yield zero and delays
// beyond MaxRetryAfter are clamped to it.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if d, ok := parseDelaySeconds(value); ok {
		return d, true
	}

	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}

	return min(max(when.Sub(now), 0), MaxRetryAfter), true
}

// parseDelaySeconds accepts plain digits, plus a decimal fraction some
// servers send. Exponents, NaN and Inf are rejected.
func parseDelaySeconds(value string) (time.Duration, bool) {
	whole, frac, hasFrac := strings.Cut(value, ".")
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return 0, false
	}

	secs, err := strconv.ParseFloat(value, 64)
	if err != nil && !isRangeErr(err) {
		return 0, false
	}
	if math.IsInf(secs, 0) || secs*float64(time.Second) >= float64(MaxRetryAfter) {
		return MaxRetryAfter, true
	}
	return time.Duration(secs * float64(time.Second)), true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isRangeErr(err error) bool {
	return errors.Is(err, strconv.ErrRange)
}
