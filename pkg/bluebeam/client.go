package bluebeam

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/bluebeam/pkg/httpx"
	"github.com/aussiebroadwan/bluebeam/pkg/slogx"
)

// Client talks to the Bluebeam Studio API for one OAuth2 application and one
// user token. It is safe for concurrent use.
type Client struct {
	creds   Credentials
	baseURL string
	policy  RetryPolicy

	tokens     *TokenManager
	transport  Transport
	httpClient *http.Client

	logger *slog.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// Option customises a Client.
type Option func(*options)

type options struct {
	transport  Transport
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	propagator propagation.TextMapPropagator
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
}

// WithTransport replaces the whole HTTP stack, including logging, request
// IDs, tracing and rate limiting.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithHTTPClient sends through hc. The client's RoundTripper is wrapped with
// the usual middleware; its Timeout is left alone, per-attempt timeouts come
// from Config.Timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithBaseURL points the client at a different host than its region's,
// typically an httptest server.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithLogger sets the logger used when a request context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracePropagator sets how trace context is injected into outbound
// requests. The default is the global otel propagator.
func WithTracePropagator(p propagation.TextMapPropagator) Option {
	return func(o *options) { o.propagator = p }
}

func withClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func withSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// NewClient validates cfg and builds a client. No network calls are made.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	region, _ := ParseRegion(string(cfg.Region))

	o := options{
		logger: slog.Default(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}

	baseURL := region.BaseURL()
	if o.baseURL != "" {
		baseURL = o.baseURL
	}

	creds := Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		Region:       region,
		Scopes:       cfg.Scopes,
	}

	c := &Client{
		creds:   creds,
		baseURL: baseURL,
		policy:  cfg.RetryPolicy(),
		logger:  o.logger,
		now:     o.now,
		sleep:   o.sleep,
	}

	if o.transport != nil {
		c.transport = o.transport
	} else {
		c.httpClient = buildHTTPClient(o.httpClient, cfg.RateLimit, o.propagator, o.logger)
		c.transport = HTTPTransport{Client: c.httpClient}
	}

	c.tokens = NewTokenManager(creds, endpointFor(baseURL), c.transport)
	c.tokens.timeout = cfg.Timeout
	c.tokens.skew = cfg.ExpirySkew
	c.tokens.logger = o.logger
	c.tokens.now = o.now

	o.logger.Debug("bluebeam client created",
		"region", string(region),
		"base_url", baseURL,
		"max_retries", cfg.MaxRetries,
	)

	return c, nil
}

// buildHTTPClient wraps the caller's client, or a fresh one, with the
// outbound middleware chain.
func buildHTTPClient(
	hc *http.Client,
	rl httpx.RateLimitConfig,
	propagator propagation.TextMapPropagator,
	logger *slog.Logger,
) *http.Client {
	var out http.Client
	if hc != nil {
		out = *hc
	}

	mws := []httpx.Middleware{
		httpx.TraceContext(propagator),
		httpx.RequestID,
	}
	if rl.Enabled() {
		mws = append(mws, httpx.RateLimit(rl.Limiter()))
	}
	mws = append(mws, func(next http.RoundTripper) http.RoundTripper {
		return slogx.Transport(next, logger)
	})

	out.Transport = httpx.Chain(out.Transport, mws...)
	return &out
}

// Tokens exposes the token manager for callers that drive the OAuth2 flow
// themselves.
func (c *Client) Tokens() *TokenManager { return c.tokens }

// BaseURL is the host every request is sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// AuthorizationURL is shorthand for Tokens().AuthorizationURL.
func (c *Client) AuthorizationURL(state string, opts ...oauth2.AuthCodeOption) (string, error) {
	return c.tokens.AuthorizationURL(state, opts...)
}

// ExchangeCode is shorthand for Tokens().ExchangeCode.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Token, error) {
	return c.tokens.ExchangeCode(ctx, code)
}

// SetToken is shorthand for Tokens().SetToken.
func (c *Client) SetToken(accessToken, refreshToken string, expiresIn time.Duration) Token {
	return c.tokens.SetToken(accessToken, refreshToken, expiresIn)
}

// Close releases idle connections. The client must not be used afterwards.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}
