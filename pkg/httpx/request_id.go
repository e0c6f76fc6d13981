package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/bluebeam/pkg/idx"
)

// RequestIDHeader carries the correlation ID of an outbound call.
const RequestIDHeader = "X-Request-ID"

// RequestID sets X-Request-ID on requests that do not carry one yet. Callers
// that retry should set the header themselves so all attempts share an ID.
func RequestID(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get(RequestIDHeader) == "" {
			req = req.Clone(req.Context())
			req.Header.Set(RequestIDHeader, idx.New().String())
		}
		return next.RoundTrip(req)
	})
}
