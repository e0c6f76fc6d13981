package slogx

import (
	"log/slog"
	"net/http"
	"time"
)

// Transport logs every outbound request at debug level with its status and
// duration. Headers and bodies are never logged: they carry bearer tokens.
func Transport(next http.RoundTripper, base *slog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, base: base}
}

type loggingTransport struct {
	next http.RoundTripper
	base *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	logger := FromContext(req.Context(), t.base).With(
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		logger.Debug("http_request_failed", "duration_ms", duration, "err", err)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}

var _ http.RoundTripper = (*loggingTransport)(nil)
