/*
Package bluebeam provides a client for the Bluebeam Studio Sessions API.

# Overview

The bluebeam package implements the OAuth2 authorization-code flow against
Bluebeam's regional identity endpoints and a resilient request pipeline for
the REST resources under /publicapi/v1. It handles bearer token injection,
token refresh, retries with exponential backoff and error classification, so
callers only deal with sessions and typed errors.

# Client vs TokenManager

The package is organized around two main types:

  - Client: Executes API calls and exposes the session operations
  - TokenManager: Owns the token lifecycle (authorization URL, code exchange,
    refresh, expiry tracking)

A Client owns exactly one TokenManager, reachable through Client.Tokens.

	cfg := bluebeam.DefaultConfig()
	cfg.ClientID = "my-client"
	cfg.ClientSecret = "my-secret"
	cfg.RedirectURI = "http://localhost:8765/callback"
	cfg.Region = bluebeam.RegionANZ

	client, err := bluebeam.NewClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

# Authorization Code Flow

	state, _ := bluebeam.NewState()
	authURL, err := client.AuthorizationURL(state)
	// send the user to authURL, then read the redirect
	code, err := bluebeam.ParseAuthorizationCallback(callbackURL, state)
	tok, err := client.ExchangeCode(ctx, code)

Tokens obtained elsewhere can be installed with SetToken. A lifetime of zero
marks the token as already expired, so the next call refreshes it first.

# Automatic Token Refresh

Every call made through Client.Execute:

 1. Refreshes the access token when it is within ExpirySkew of its expiry
 2. Sends the request with the current bearer token
 3. On a 401, refreshes once and retries the same request once

Concurrent callers that find the token expired share a single refresh request.
A failed refresh leaves the previous token in place.

# Retries

429, 5xx and connection failures are retried up to MaxRetries times. Before
retry n (counting from zero) the client waits BackoffBase^n seconds, or the
server's Retry-After when that is longer. Waits honour the context.

Refreshes never count against MaxRetries.

# Error Handling

All errors are *Error values. Match them with errors.Is:

	_, err := client.GetSession(ctx, id)
	switch {
	case errors.Is(err, bluebeam.ErrNotFound):
		// no such session
	case errors.Is(err, bluebeam.ErrAuthentication):
		// re-run the authorization code flow
	case errors.Is(err, bluebeam.ErrRateLimit), errors.Is(err, bluebeam.ErrServer):
		// retries exhausted
	}

Cancelling the context returns context.Canceled or context.DeadlineExceeded
unwrapped.

# Regions

	RegionUS   https://api.bluebeam.com
	RegionEU   https://api.bluebeamstudio.de
	RegionANZ  https://api.bluebeamstudio.com.au
*/
package bluebeam
