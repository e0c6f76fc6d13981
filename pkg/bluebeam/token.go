package bluebeam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/bluebeam/pkg/httpx"
	"github.com/aussiebroadwan/bluebeam/pkg/jwtx"
	"github.com/aussiebroadwan/bluebeam/pkg/slogx"
)

// Token is a snapshot of the bearer credential. Callers always receive copies.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	Scope        string
	ExpiresAt    time.Time
}

// expired reports whether now is at or past ExpiresAt - skew.
func (t Token) expired(now time.Time, skew time.Duration) bool {
	return !now.Before(t.ExpiresAt.Add(-skew))
}

// OAuth2 converts t for use with golang.org/x/oauth2 clients.
func (t Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// TokenManager owns the OAuth2 token lifecycle: authorization URLs, code
// exchange, refresh and expiry tracking. It is safe for concurrent use; at
// most one refresh is in flight at any time and concurrent callers share it.
type TokenManager struct {
	creds     Credentials
	endpoint  oauth2.Endpoint
	transport Transport
	timeout   time.Duration
	skew      time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.RWMutex
	token *Token

	flights singleflight.Group
}

// NewTokenManager creates a manager for creds against endpoint. Most callers
// get one from Client.Tokens instead. A nil transport uses http.DefaultClient.
func NewTokenManager(creds Credentials, endpoint oauth2.Endpoint, transport Transport) *TokenManager {
	if transport == nil {
		transport = HTTPTransport{Client: http.DefaultClient}
	}
	return &TokenManager{
		creds:     creds,
		endpoint:  endpoint,
		transport: transport,
		timeout:   DefaultTimeout,
		skew:      DefaultExpirySkew,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// oauth2Config mirrors the credentials for URL building.
func (m *TokenManager) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		RedirectURL:  m.creds.RedirectURI,
		Scopes:       m.creds.Scopes,
		Endpoint:     m.endpoint,
	}
}

// AuthorizationURL builds the URL the user's browser is sent to. state is an
// opaque CSRF value echoed back on the redirect; it is omitted when empty.
// Extra query parameters can be passed with oauth2.SetAuthURLParam. No
// network call is made.
func (m *TokenManager) AuthorizationURL(state string, opts ...oauth2.AuthCodeOption) (string, error) {
	if m.creds.ClientID == "" {
		return "", &Error{Kind: KindConfiguration, Message: "client ID is required"}
	}
	if m.creds.RedirectURI == "" {
		return "", &Error{Kind: KindConfiguration, Message: "redirect URI is required"}
	}

	return m.oauth2Config().AuthCodeURL(state, opts...), nil
}

// ExchangeCode trades an authorization code for a token and stores it.
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) (Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Token{}, &Error{Kind: KindAuthentication, Message: "authorization code is empty"}
	}

	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {m.creds.RedirectURI},
		"client_id":     {m.creds.ClientID},
		"client_secret": {m.creds.ClientSecret},
	}

	tok, err := m.requestToken(ctx, data, nil)
	if err != nil {
		return Token{}, err
	}

	m.store(tok)
	m.logger.InfoContext(ctx, "authorization code exchanged", "expires_at", tok.ExpiresAt)
	return tok, nil
}

// Refresh obtains a new access token with the stored refresh token. Without a
// refresh token, or when the provider rejects it, an authentication error is
// returned and the previous token is kept. Overlapping calls share one
// request.
func (m *TokenManager) Refresh(ctx context.Context) (Token, error) {
	return m.refresh(ctx, func(Token) bool { return true })
}

// SetToken stores an externally obtained token. expiresIn is measured from
// now; zero or negative marks the token as already expired. Pass
// DefaultExpiresIn when the lifetime is unknown.
func (m *TokenManager) SetToken(accessToken, refreshToken string, expiresIn time.Duration) Token {
	tok := Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		ExpiresAt:    m.now().Add(expiresIn),
	}
	m.store(tok)
	return tok
}

// Restore stores a previously saved token as-is, keeping its scope, type and
// absolute expiry.
func (m *TokenManager) Restore(tok Token) {
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	m.store(tok)
}

// IsExpired reports whether now >= expiry - skew. It is true when no token
// has been set.
func (m *TokenManager) IsExpired(skew time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == nil {
		return true
	}
	return m.token.expired(m.now(), skew)
}

// Token returns a copy of the current token.
func (m *TokenManager) Token() (Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == nil {
		return Token{}, false
	}
	return *m.token, true
}

// TokenSource adapts the manager to oauth2.TokenSource. Tokens are refreshed
// the same way the request pipeline does it.
func (m *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, m: m}
}

type tokenSource struct {
	ctx context.Context
	m   *TokenManager
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.m.validToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return tok.OAuth2(), nil
}

func (m *TokenManager) store(tok Token) {
	m.mu.Lock()
	m.token = &tok
	m.mu.Unlock()
}

// validToken returns the current token, refreshing it first when it is within
// the skew window of its expiry.
func (m *TokenManager) validToken(ctx context.Context) (Token, error) {
	cur, ok := m.Token()
	if !ok {
		return Token{}, &Error{
			Kind:    KindAuthentication,
			Message: "no token set; complete the authorization code flow or call SetToken",
		}
	}

	if !cur.expired(m.now(), m.skew) {
		return cur, nil
	}

	slogx.FromContext(ctx, m.logger).InfoContext(ctx, "access token expired, refreshing",
		"expired_at", cur.ExpiresAt,
	)
	return m.refresh(ctx, func(t Token) bool { return t.expired(m.now(), m.skew) })
}

// refreshRejected refreshes after the provider answered 401 to rejected. If
// another caller has already replaced that token, the replacement is returned
// without a second refresh.
func (m *TokenManager) refreshRejected(ctx context.Context, rejected string) (Token, error) {
	slogx.FromContext(ctx, m.logger).InfoContext(ctx, "access token rejected, refreshing")
	return m.refresh(ctx, func(t Token) bool { return t.AccessToken == rejected })
}

// refresh runs the shared refresh flight. needed is evaluated inside the
// flight against the token current at that moment; when it returns false the
// current token is returned as-is. The flight is detached from ctx so that one
// caller giving up does not fail the others, and the swap happens only once
// the whole response has been read.
func (m *TokenManager) refresh(ctx context.Context, needed func(Token) bool) (Token, error) {
	ch := m.flights.DoChan("refresh", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.doRefresh(fctx, needed)
	})

	select {
	case <-ctx.Done():
		return Token{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	}
}

func (m *TokenManager) doRefresh(ctx context.Context, needed func(Token) bool) (Token, error) {
	cur, ok := m.Token()
	if ok && !needed(cur) {
		return cur, nil
	}

	if !ok || cur.RefreshToken == "" {
		return Token{}, &Error{Kind: KindAuthentication, Message: "no refresh token available"}
	}

	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cur.RefreshToken},
		"client_id":     {m.creds.ClientID},
		"client_secret": {m.creds.ClientSecret},
	}

	tok, err := m.requestToken(ctx, data, &cur)
	if err != nil {
		m.logger.WarnContext(ctx, "token refresh failed", "err", err)
		return Token{}, err
	}

	m.store(tok)
	m.logger.InfoContext(ctx, "access token refreshed", "expires_at", tok.ExpiresAt)
	return tok, nil
}

// requestToken posts a form to the token endpoint. prev supplies the refresh
// token and scope when the provider does not repeat them.
func (m *TokenManager) requestToken(ctx context.Context, data url.Values, prev *Token) (Token, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		m.endpoint.TokenURL,
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return Token{}, &Error{Kind: KindConfiguration, Message: "failed to create token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.transport.Send(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Token{}, err
		}
		return Token{}, &Error{Kind: KindNetwork, Message: "token request failed", Err: err}
	}

	body, err := httpx.ReadBody(resp)
	if err != nil {
		return Token{}, &Error{Kind: KindNetwork, Message: "token response interrupted", Err: err}
	}

	if !httpx.IsSuccess(resp.StatusCode) {
		return Token{}, &Error{
			Kind:       KindAuthentication,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, body),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, &Error{
			Kind:       KindAuthentication,
			StatusCode: resp.StatusCode,
			Message:    "failed to decode token response",
			Err:        err,
		}
	}
	if tr.AccessToken == "" {
		return Token{}, &Error{
			Kind:       KindAuthentication,
			StatusCode: resp.StatusCode,
			Message:    "token response has no access_token",
		}
	}

	return m.tokenFrom(tr, prev), nil
}

// tokenFrom turns a token response into a Token, computing the absolute
// expiry at the moment of receipt.
func (m *TokenManager) tokenFrom(tr tokenResponse, prev *Token) Token {
	now := m.now()

	tok := Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
		Scope:        tr.Scope,
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}

	// An explicit expires_in of zero or less means already expired.
	switch {
	case tr.ExpiresIn != nil:
		tok.ExpiresAt = now.Add(time.Duration(max(*tr.ExpiresIn, 0)) * time.Second)
	default:
		if exp, ok := jwtx.UnverifiedExpiry(tr.AccessToken); ok {
			tok.ExpiresAt = exp
		} else {
			tok.ExpiresAt = now.Add(DefaultExpiresIn)
		}
	}

	if prev != nil {
		if tok.RefreshToken == "" {
			tok.RefreshToken = prev.RefreshToken
		}
		if tok.Scope == "" {
			tok.Scope = prev.Scope
		}
	}

	return tok
}

// String hides the secret parts of a token in logs.
func (t Token) String() string {
	return fmt.Sprintf("Token{type=%s expires_at=%s refresh=%t}",
		t.TokenType, t.ExpiresAt.Format(time.RFC3339), t.RefreshToken != "")
}
