package bluebeam

import (
	"net/http"
)

// Transport sends one fully-formed HTTP request and returns the raw response.
// It is the seam tests use to replace the network. Implementations must not
// retry; the caller owns retry and refresh.
type Transport interface {
	Send(req *http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(req *http.Request) (*http.Response, error)

func (f TransportFunc) Send(req *http.Request) (*http.Response, error) { return f(req) }

// HTTPTransport sends requests with an *http.Client. Redirects follow the
// client's policy.
type HTTPTransport struct {
	Client *http.Client
}

func (t HTTPTransport) Send(req *http.Request) (*http.Response, error) {
	c := t.Client
	if c == nil {
		c = http.DefaultClient
	}
	return c.Do(req)
}

var (
	_ Transport = TransportFunc(nil)
	_ Transport = HTTPTransport{}
)
