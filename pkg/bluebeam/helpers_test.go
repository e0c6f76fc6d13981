package bluebeam

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/bluebeam/pkg/slogx"
)

var testEpoch = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: testEpoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sleepRecorder stands in for the backoff wait and remembers every duration.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// fakeProvider answers token requests and API requests with scripted
// handlers. n is 1 for the first call of each kind.
type fakeProvider struct {
	mu sync.Mutex

	token func(n int, form url.Values) (*http.Response, error)
	api   func(n int, req *http.Request) (*http.Response, error)

	tokenForms  []url.Values
	apiRequests []*http.Request
}

func (p *fakeProvider) Send(req *http.Request) (*http.Response, error) {
	if req.URL.Path == TokenPath {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.tokenForms = append(p.tokenForms, form)
		n := len(p.tokenForms)
		h := p.token
		p.mu.Unlock()

		if h == nil {
			return jsonResponse(http.StatusInternalServerError, `{"error":"no token handler"}`), nil
		}
		return h(n, form)
	}

	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(strings.NewReader(string(body)))
	}

	p.mu.Lock()
	p.apiRequests = append(p.apiRequests, req)
	n := len(p.apiRequests)
	h := p.api
	p.mu.Unlock()

	if h == nil {
		return jsonResponse(http.StatusOK, `{}`), nil
	}
	return h(n, req)
}

func (p *fakeProvider) TokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokenForms)
}

func (p *fakeProvider) TokenForm(i int) url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenForms[i]
}

func (p *fakeProvider) APICalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.apiRequests)
}

func (p *fakeProvider) APIRequest(i int) *http.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apiRequests[i]
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// issueToken answers every token request with access-<n+1>.
func issueToken(expiresIn int) func(int, url.Values) (*http.Response, error) {
	return func(n int, _ url.Values) (*http.Response, error) {
		return jsonResponse(http.StatusOK, fmt.Sprintf(
			`{"access_token":"access-%d","refresh_token":"refresh-%d","token_type":"Bearer","expires_in":%d}`,
			n+1, n+1, expiresIn,
		)), nil
	}
}

// statusSequence answers API calls with the given statuses in order, then
// 200 {"ok":true} forever.
func statusSequence(statuses ...int) func(int, *http.Request) (*http.Response, error) {
	return func(n int, _ *http.Request) (*http.Response, error) {
		if n <= len(statuses) {
			return jsonResponse(statuses[n-1], `{"Message":"scripted failure"}`), nil
		}
		return jsonResponse(http.StatusOK, `{"ok":true}`), nil
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ClientID = "test-client"
	cfg.ClientSecret = "test-secret"
	cfg.RedirectURI = "http://localhost:8765/callback"
	return cfg
}

type testEnv struct {
	client *Client
	clock  *fakeClock
	sleeps *sleepRecorder
}

func newTestClient(t *testing.T, p *fakeProvider, configure func(*Config), opts ...Option) testEnv {
	t.Helper()

	cfg := testConfig()
	if configure != nil {
		configure(&cfg)
	}

	env := testEnv{clock: newFakeClock(), sleeps: &sleepRecorder{}}
	base := []Option{
		WithTransport(p),
		WithLogger(slogx.Discard()),
		withClock(env.clock.Now),
		withSleep(env.sleeps.Sleep),
	}

	c, err := NewClient(cfg, append(base, opts...)...)
	require.NoError(t, err)
	env.client = c
	return env
}
