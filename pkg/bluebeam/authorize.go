package bluebeam

import (
	"net/url"

	"github.com/aussiebroadwan/bluebeam/pkg/cryptox"
)

// NewState returns a random CSRF state for AuthorizationURL.
func NewState() (string, error) {
	return cryptox.NewState()
}

// ParseAuthorizationCallback extracts the authorization code from the URL the
// provider redirected to. When wantState is non-empty the callback's state
// must match it. A provider-reported error is an authentication error.
func ParseAuthorizationCallback(callbackURL, wantState string) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", &Error{Kind: KindConfiguration, Message: "invalid callback URL", Err: err}
	}
	q := u.Query()

	if e := q.Get("error"); e != "" {
		msg := e
		if desc := q.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		return "", &Error{Kind: KindAuthentication, Message: msg}
	}

	if wantState != "" && !cryptox.EqualState(wantState, q.Get("state")) {
		return "", &Error{Kind: KindAuthentication, Message: "state mismatch"}
	}

	code := q.Get("code")
	if code == "" {
		return "", &Error{Kind: KindAuthentication, Message: "callback has no code"}
	}
	return code, nil
}
