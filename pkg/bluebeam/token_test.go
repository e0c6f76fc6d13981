package bluebeam

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestAuthorizationURL(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	env := newTestClient(t, p, nil)

	t.Run("carries the required parameters", func(t *testing.T) {
		raw, err := env.client.AuthorizationURL("state-123")
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, "https://api.bluebeam.com"+AuthorizePath, u.Scheme+"://"+u.Host+u.Path)

		q := u.Query()
		require.Equal(t, "test-client", q.Get("client_id"))
		require.Equal(t, "http://localhost:8765/callback", q.Get("redirect_uri"))
		require.Equal(t, "code", q.Get("response_type"))
		require.Equal(t, "full_user offline_access", q.Get("scope"))
		require.Equal(t, "state-123", q.Get("state"))
	})

	t.Run("omits an empty state", func(t *testing.T) {
		raw, err := env.client.AuthorizationURL("")
		require.NoError(t, err)
		require.NotContains(t, raw, "state=")
	})

	t.Run("passes extra parameters", func(t *testing.T) {
		raw, err := env.client.AuthorizationURL("s", oauth2.SetAuthURLParam("prompt", "login"))
		require.NoError(t, err)
		require.Contains(t, raw, "prompt=login")
	})

	t.Run("makes no network calls", func(t *testing.T) {
		require.Zero(t, p.TokenCalls())
		require.Zero(t, p.APICalls())
	})
}

func TestAuthorizationURLRequiresCredentials(t *testing.T) {
	t.Parallel()

	m := NewTokenManager(Credentials{RedirectURI: "http://localhost/cb"}, RegionUS.Endpoint(), &fakeProvider{})
	_, err := m.AuthorizationURL("s")
	require.ErrorIs(t, err, ErrConfiguration)

	m = NewTokenManager(Credentials{ClientID: "id"}, RegionUS.Endpoint(), &fakeProvider{})
	_, err = m.AuthorizationURL("s")
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestIsExpired(t *testing.T) {
	t.Parallel()

	t.Run("true without a token", func(t *testing.T) {
		env := newTestClient(t, &fakeProvider{}, nil)
		require.True(t, env.client.Tokens().IsExpired(0))
	})

	t.Run("true immediately after SetToken with zero lifetime", func(t *testing.T) {
		env := newTestClient(t, &fakeProvider{}, nil)
		env.client.SetToken("access", "refresh", 0)
		require.True(t, env.client.Tokens().IsExpired(0))
	})

	t.Run("honours skew", func(t *testing.T) {
		env := newTestClient(t, &fakeProvider{}, nil)
		env.client.SetToken("access", "refresh", time.Minute)

		require.False(t, env.client.Tokens().IsExpired(0))
		require.False(t, env.client.Tokens().IsExpired(59*time.Second))
		require.True(t, env.client.Tokens().IsExpired(time.Minute))

		env.clock.Advance(time.Minute)
		require.True(t, env.client.Tokens().IsExpired(0))
	})
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()

	t.Run("stores the token and sends the expected form", func(t *testing.T) {
		p := &fakeProvider{token: issueToken(3600)}
		env := newTestClient(t, p, nil)

		tok, err := env.client.ExchangeCode(context.Background(), "  the-code ")
		require.NoError(t, err)
		require.Equal(t, "access-2", tok.AccessToken)
		require.Equal(t, "refresh-2", tok.RefreshToken)
		require.Equal(t, testEpoch.Add(time.Hour), tok.ExpiresAt)

		form := p.TokenForm(0)
		require.Equal(t, "authorization_code", form.Get("grant_type"))
		require.Equal(t, "the-code", form.Get("code"))
		require.Equal(t, "http://localhost:8765/callback", form.Get("redirect_uri"))
		require.Equal(t, "test-client", form.Get("client_id"))
		require.Equal(t, "test-secret", form.Get("client_secret"))

		stored, ok := env.client.Tokens().Token()
		require.True(t, ok)
		require.Equal(t, tok, stored)
	})

	t.Run("fresh token is used without refreshing", func(t *testing.T) {
		p := &fakeProvider{token: issueToken(3600)}
		env := newTestClient(t, p, nil)

		_, err := env.client.ExchangeCode(context.Background(), "code")
		require.NoError(t, err)

		_, err = env.client.Execute(context.Background(), http.MethodGet, APIRoot+"/sessions", nil, nil)
		require.NoError(t, err)

		require.Equal(t, 1, p.TokenCalls())
		require.Equal(t, "Bearer access-2", p.APIRequest(0).Header.Get("Authorization"))
	})

	t.Run("empty code", func(t *testing.T) {
		p := &fakeProvider{token: issueToken(3600)}
		env := newTestClient(t, p, nil)

		_, err := env.client.ExchangeCode(context.Background(), " ")
		require.ErrorIs(t, err, ErrAuthentication)
		require.Zero(t, p.TokenCalls())
	})

	t.Run("rejected code", func(t *testing.T) {
		p := &fakeProvider{token: func(int, url.Values) (*http.Response, error) {
			return jsonResponse(http.StatusBadRequest,
				`{"error":"invalid_grant","error_description":"code expired"}`), nil
		}}
		env := newTestClient(t, p, nil)

		_, err := env.client.ExchangeCode(context.Background(), "stale")
		require.ErrorIs(t, err, ErrAuthentication)

		var bbErr *Error
		require.ErrorAs(t, err, &bbErr)
		require.Equal(t, http.StatusBadRequest, bbErr.StatusCode)
		require.Equal(t, "invalid_grant: code expired", bbErr.Message)

		_, ok := env.client.Tokens().Token()
		require.False(t, ok)
	})

	t.Run("malformed response", func(t *testing.T) {
		p := &fakeProvider{token: func(int, url.Values) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `not json`), nil
		}}
		env := newTestClient(t, p, nil)

		_, err := env.client.ExchangeCode(context.Background(), "code")
		require.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("connection failure", func(t *testing.T) {
		p := &fakeProvider{token: func(int, url.Values) (*http.Response, error) {
			return nil, errors.New("connection reset by peer")
		}}
		env := newTestClient(t, p, nil)

		_, err := env.client.ExchangeCode(context.Background(), "code")
		require.ErrorIs(t, err, ErrNetwork)
		require.Contains(t, err.Error(), "connection reset by peer")
	})
}

func TestTokenExpiry(t *testing.T) {
	t.Parallel()

	t.Run("defaults to one hour without expires_in", func(t *testing.T) {
		p := &fakeProvider{token: func(int, url.Values) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"access_token":"opaque","token_type":"Bearer"}`), nil
		}}
		env := newTestClient(t, p, nil)

		tok, err := env.client.ExchangeCode(context.Background(), "code")
		require.NoError(t, err)
		require.Equal(t, testEpoch.Add(DefaultExpiresIn), tok.ExpiresAt)
	})

	t.Run("explicit zero expires_in is already expired", func(t *testing.T) {
		p := &fakeProvider{token: func(int, url.Values) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"access_token":"short","expires_in":0}`), nil
		}}
		env := newTestClient(t, p, nil)

		tok, err := env.client.ExchangeCode(context.Background(), "code")
		require.NoError(t, err)
		require.Equal(t, testEpoch, tok.ExpiresAt)
		require.True(t, env.client.Tokens().IsExpired(0))
	})

	t.Run("reads exp from a JWT access token", func(t *testing.T) {
		exp := testEpoch.Add(2 * time.Hour)
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		}).SignedString([]byte("test-key"))
		require.NoError(t, err)

		p := &fakeProvider{token: func(int, url.Values) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"access_token":"`+signed+`"}`), nil
		}}
		env := newTestClient(t, p, nil)

		tok, err := env.client.ExchangeCode(context.Background(), "code")
		require.NoError(t, err)
		require.True(t, tok.ExpiresAt.Equal(exp))
		require.Equal(t, "Bearer", tok.TokenType)
	})
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	t.Run("keeps refresh token and scope when omitted", func(t *testing.T) {
		p := &fakeProvider{token: func(n int, _ url.Values) (*http.Response, error) {
			if n == 1 {
				return jsonResponse(http.StatusOK,
					`{"access_token":"a1","refresh_token":"r1","scope":"full_user offline_access","expires_in":60}`), nil
			}
			return jsonResponse(http.StatusOK, `{"access_token":"a2","expires_in":60}`), nil
		}}
		env := newTestClient(t, p, nil)

		_, err := env.client.ExchangeCode(context.Background(), "code")
		require.NoError(t, err)

		tok, err := env.client.Tokens().Refresh(context.Background())
		require.NoError(t, err)
		require.Equal(t, "a2", tok.AccessToken)
		require.Equal(t, "r1", tok.RefreshToken)
		require.Equal(t, "full_user offline_access", tok.Scope)

		form := p.TokenForm(1)
		require.Equal(t, "refresh_token", form.Get("grant_type"))
		require.Equal(t, "r1", form.Get("refresh_token"))
		require.Equal(t, "test-client", form.Get("client_id"))
		require.Equal(t, "test-secret", form.Get("client_secret"))
	})

	t.Run("restored token keeps scope across refresh", func(t *testing.T) {
		p := &fakeProvider{token: func(int, url.Values) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"access_token":"a2","expires_in":60}`), nil
		}}
		env := newTestClient(t, p, nil)
		env.client.Tokens().Restore(Token{
			AccessToken:  "a1",
			RefreshToken: "r1",
			Scope:        "full_user offline_access",
			ExpiresAt:    testEpoch.Add(-time.Minute),
		})

		cur, ok := env.client.Tokens().Token()
		require.True(t, ok)
		require.Equal(t, "Bearer", cur.TokenType)
		require.Equal(t, testEpoch.Add(-time.Minute), cur.ExpiresAt)

		tok, err := env.client.Tokens().Refresh(context.Background())
		require.NoError(t, err)
		require.Equal(t, "a2", tok.AccessToken)
		require.Equal(t, "r1", tok.RefreshToken)
		require.Equal(t, "full_user offline_access", tok.Scope)
	})

	t.Run("fails without a refresh token", func(t *testing.T) {
		p := &fakeProvider{token: issueToken(3600)}
		env := newTestClient(t, p, nil)
		env.client.SetToken("access", "", 0)

		_, err := env.client.Tokens().Refresh(context.Background())
		require.ErrorIs(t, err, ErrAuthentication)
		require.Zero(t, p.TokenCalls())
	})

	t.Run("failure keeps the previous token", func(t *testing.T) {
		p := &fakeProvider{token: func(int, url.Values) (*http.Response, error) {
			return jsonResponse(http.StatusBadRequest, `{"error":"invalid_grant"}`), nil
		}}
		env := newTestClient(t, p, nil)
		env.client.SetToken("old-access", "old-refresh", 0)

		_, err := env.client.Tokens().Refresh(context.Background())
		require.ErrorIs(t, err, ErrAuthentication)

		tok, ok := env.client.Tokens().Token()
		require.True(t, ok)
		require.Equal(t, "old-access", tok.AccessToken)
		require.Equal(t, "old-refresh", tok.RefreshToken)
	})

	t.Run("waiter can give up while the refresh continues", func(t *testing.T) {
		release := make(chan struct{})
		p := &fakeProvider{token: func(n int, f url.Values) (*http.Response, error) {
			<-release
			return issueToken(3600)(n, f)
		}}
		env := newTestClient(t, p, nil)
		env.client.SetToken("old", "refresh", 0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := env.client.Tokens().Refresh(ctx)
		require.ErrorIs(t, err, context.Canceled)

		close(release)
		require.Eventually(t, func() bool {
			tok, _ := env.client.Tokens().Token()
			return tok.AccessToken == "access-2"
		}, time.Second, 5*time.Millisecond)
	})
}

func TestConcurrentExpiryRefreshesOnce(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	p := &fakeProvider{token: func(n int, f url.Values) (*http.Response, error) {
		once.Do(func() { close(entered) })
		<-release
		return issueToken(3600)(n, f)
	}}
	env := newTestClient(t, p, nil)
	env.client.SetToken("expired", "refresh-1", 0)

	const callers = 10
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.client.Execute(context.Background(), http.MethodGet, APIRoot+"/sessions", nil, nil)
			errs <- err
		}()
	}

	<-entered
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, p.TokenCalls())
	require.Equal(t, callers, p.APICalls())
	for i := range callers {
		require.Equal(t, "Bearer access-2", p.APIRequest(i).Header.Get("Authorization"))
	}
}

func TestTokenSource(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{token: issueToken(3600)}
	env := newTestClient(t, p, nil)
	env.client.SetToken("expired", "refresh-1", 0)

	src := env.client.Tokens().TokenSource(context.Background())
	tok, err := src.Token()
	require.NoError(t, err)
	require.Equal(t, "access-2", tok.AccessToken)
	require.Equal(t, testEpoch.Add(time.Hour), tok.Expiry)
	require.Equal(t, 1, p.TokenCalls())
}

func TestTokenStringHidesSecrets(t *testing.T) {
	t.Parallel()

	tok := Token{AccessToken: "secret-access", RefreshToken: "secret-refresh", TokenType: "Bearer", ExpiresAt: testEpoch}
	s := tok.String()
	require.False(t, strings.Contains(s, "secret"))
	require.Contains(t, s, "refresh=true")
}

func TestParseAuthorizationCallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		state   string
		want    string
		wantErr error
	}{
		{
			name:  "code with matching state",
			url:   "http://localhost:8765/callback?code=abc&state=s1",
			state: "s1",
			want:  "abc",
		},
		{
			name: "state not checked when not expected",
			url:  "http://localhost:8765/callback?code=abc",
			want: "abc",
		},
		{
			name:    "state mismatch",
			url:     "http://localhost:8765/callback?code=abc&state=other",
			state:   "s1",
			wantErr: ErrAuthentication,
		},
		{
			name:    "provider error",
			url:     "http://localhost:8765/callback?error=access_denied&error_description=user+said+no",
			wantErr: ErrAuthentication,
		},
		{
			name:    "missing code",
			url:     "http://localhost:8765/callback?state=s1",
			state:   "s1",
			wantErr: ErrAuthentication,
		},
		{
			name:    "unparseable",
			url:     "://bad",
			wantErr: ErrConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAuthorizationCallback(tt.url, tt.state)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNewState(t *testing.T) {
	t.Parallel()

	a, err := NewState()
	require.NoError(t, err)
	b, err := NewState()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, 43)
}
