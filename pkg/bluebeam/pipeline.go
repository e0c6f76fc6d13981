package bluebeam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/bluebeam/pkg/httpx"
	"github.com/aussiebroadwan/bluebeam/pkg/idx"
	"github.com/aussiebroadwan/bluebeam/pkg/slogx"
)

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// RequestID identifies the logical call. It is the provider's
	// X-Request-ID when echoed, otherwise the one this client sent.
	RequestID string
}

// Empty reports whether the response carried no payload.
func (r *Response) Empty() bool {
	return len(bytes.TrimSpace(r.Body)) == 0
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r.Empty() {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Error{
			Kind:       KindAPI,
			StatusCode: r.StatusCode,
			Message:    "failed to decode response",
			RequestID:  r.RequestID,
			Err:        err,
		}
	}
	return nil
}

// Execute performs one logical API call. path is appended to the region base
// URL as-is, so resource calls include APIRoot. body may be nil, []byte
// (sent verbatim as JSON), url.Values (sent as a form) or any value that
// encodes to JSON.
//
// An expired token is refreshed first. A 401 triggers one refresh and one
// retry. 429, 5xx and connection failures are retried up to MaxRetries times
// with exponential backoff. Every other failure is returned immediately. All
// errors are *Error except caller cancellation, which returns ctx.Err().
func (c *Client) Execute(ctx context.Context, method, path string, params url.Values, body any) (*Response, error) {
	payload, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	target, err := c.resolve(path, params)
	if err != nil {
		return nil, err
	}

	reqID := idx.New().String()
	ctx = slogx.WithContext(ctx, slogx.FromContext(ctx, c.logger).With("req_id", reqID))
	logger := slogx.FromContext(ctx)

	tok, err := c.tokens.validToken(ctx)
	if err != nil {
		return nil, authFailure(ctx, err)
	}

	call := &attempt{
		method:      method,
		url:         target,
		payload:     payload,
		contentType: contentType,
		requestID:   reqID,
	}

	refreshed := false
	retries := 0

	for {
		res, err := c.send(ctx, call, tok.AccessToken)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			var bbErr *Error
			if errors.As(err, &bbErr) {
				return nil, err
			}

			if retries < c.policy.MaxRetries {
				wait := c.policy.Delay(retries, 0)
				logger.WarnContext(ctx, "request failed, retrying",
					"method", method,
					"path", path,
					"attempt", retries+1,
					"wait", wait,
					"err", err,
				)
				if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
				retries++
				continue
			}

			return nil, &Error{
				Kind:      KindServer,
				Message:   fmt.Sprintf("connection failed after %d attempts", retries+1),
				RequestID: reqID,
				Err:       err,
			}
		}

		switch {
		case httpx.IsSuccess(res.StatusCode):
			return res, nil

		case res.StatusCode == http.StatusUnauthorized:
			if refreshed {
				logger.DebugContext(ctx, "token rejected after refresh", "path", path)
				return nil, responseError(KindAuthentication, res)
			}
			refreshed = true

			tok, err = c.tokens.refreshRejected(ctx, tok.AccessToken)
			if err != nil {
				return nil, authFailure(ctx, err)
			}

		case IsTransientStatus(res.StatusCode):
			if retries >= c.policy.MaxRetries {
				logger.DebugContext(ctx, "retries exhausted",
					"path", path,
					"status", res.StatusCode,
					"attempts", retries+1,
				)
				return nil, responseError(kindForStatus(res.StatusCode), res)
			}

			retryAfter, _ := httpx.ParseRetryAfter(res.Header.Get("Retry-After"), c.now())
			wait := c.policy.Delay(retries, retryAfter)
			logger.WarnContext(ctx, "transient response, retrying",
				"method", method,
				"path", path,
				"status", res.StatusCode,
				"attempt", retries+1,
				"wait", wait,
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			retries++

		default:
			return nil, responseError(kindForStatus(res.StatusCode), res)
		}
	}
}

// attempt holds what is needed to rebuild the same request for every retry.
type attempt struct {
	method      string
	url         string
	payload     []byte
	contentType string
	requestID   string
}

// send makes one HTTP attempt bounded by the per-attempt timeout. A returned
// *Error is permanent; any other error is a connection failure.
func (c *Client) send(ctx context.Context, a *attempt, accessToken string) (*Response, error) {
	actx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
	defer cancel()

	var body *bytes.Reader
	if a.payload != nil {
		body = bytes.NewReader(a.payload)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(actx, a.method, a.url, body)
	} else {
		req, err = http.NewRequestWithContext(actx, a.method, a.url, nil)
	}
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Message: "failed to create request", Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("client_id", c.creds.ClientID)
	req.Header.Set(httpx.RequestIDHeader, a.requestID)
	if a.contentType != "" {
		req.Header.Set("Content-Type", a.contentType)
	}

	resp, err := c.transport.Send(req)
	if err != nil {
		return nil, err
	}

	data, err := httpx.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	reqID := resp.Header.Get(httpx.RequestIDHeader)
	if reqID == "" {
		reqID = a.requestID
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		RequestID:  reqID,
	}, nil
}

// resolve joins path and params onto the base URL.
func (c *Client) resolve(path string, params url.Values) (string, error) {
	if path == "" {
		return "", &Error{Kind: KindConfiguration, Message: "request path is empty"}
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", &Error{Kind: KindConfiguration, Message: "invalid request path", Err: err}
	}

	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "application/json", nil
	case json.RawMessage:
		return b, "application/json", nil
	case url.Values:
		return []byte(b.Encode()), "application/x-www-form-urlencoded", nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", &Error{Kind: KindConfiguration, Message: "failed to encode request body", Err: err}
		}
		return data, "application/json", nil
	}
}

// authFailure turns a failed refresh into an authentication error, keeping
// the cause reachable through errors.Is.
func authFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	if errors.Is(err, ErrAuthentication) {
		return err
	}
	return &Error{Kind: KindAuthentication, Message: "token refresh failed", Err: err}
}

// executeJSON runs Execute and decodes a successful response into out.
func (c *Client) executeJSON(ctx context.Context, method, path string, params url.Values, body, out any) error {
	res, err := c.Execute(ctx, method, path, params, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return res.Decode(out)
}
