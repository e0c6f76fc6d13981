package httpx

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext injects the caller's trace context (W3C traceparent/tracestate
// by default) into outbound requests so provider calls join the caller's trace.
// A nil propagator uses the global one, which is a no-op unless configured.
func TraceContext(propagator propagation.TextMapPropagator) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			p := propagator
			if p == nil {
				p = otel.GetTextMapPropagator()
			}

			req = req.Clone(req.Context())
			p.Inject(req.Context(), propagation.HeaderCarrier(req.Header))
			return next.RoundTrip(req)
		})
	}
}
