package bluebeam

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind classifies an Error. The set is closed.
type Kind int

const (
	// KindAPI is an unclassified 4xx response.
	KindAPI Kind = iota
	// KindConfiguration is an invalid or missing parameter, raised before
	// any network activity.
	KindConfiguration
	// KindAuthentication covers failed code/refresh exchanges, a missing
	// token, and a 401 that survives a refresh.
	KindAuthentication
	// KindAuthorization is a 403: the token is valid but lacks permission.
	KindAuthorization
	// KindNotFound is a 404.
	KindNotFound
	// KindRateLimit is a 429 that persisted through every retry.
	KindRateLimit
	// KindServer is a 5xx or connection failure that persisted through every retry.
	KindServer
	// KindNetwork is a connection failure talking to the token endpoint.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindAPI:
		return "api error"
	case KindConfiguration:
		return "configuration error"
	case KindAuthentication:
		return "authentication error"
	case KindAuthorization:
		return "authorization error"
	case KindNotFound:
		return "not found"
	case KindRateLimit:
		return "rate limited"
	case KindServer:
		return "server error"
	case KindNetwork:
		return "network error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the single error type returned by this package. Use errors.Is with
// the Err* sentinels to match a kind, or errors.As to read the status.
type Error struct {
	Kind Kind

	// StatusCode is the HTTP status that caused the error, or 0.
	StatusCode int

	// Message is a human-readable description, usually from the provider.
	Message string

	// RequestID is the X-Request-ID of the failed call, when there was one.
	RequestID string

	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrAPI            = &Error{Kind: KindAPI}
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrRateLimit      = &Error{Kind: KindRateLimit}
	ErrServer         = &Error{Kind: KindServer}
	ErrNetwork        = &Error{Kind: KindNetwork}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("bluebeam: ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// kindForStatus maps a non-2xx status to its terminal Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500 && status <= 599:
		return KindServer
	default:
		return KindAPI
	}
}

// responseError builds the Error for a failed response.
func responseError(kind Kind, res *Response) *Error {
	return &Error{
		Kind:       kind,
		StatusCode: res.StatusCode,
		Message:    errorMessage(res.StatusCode, res.Body),
		RequestID:  res.RequestID,
	}
}

// errorBody covers both the OAuth2 error shape and Bluebeam's own
// {"Message": ...} shape. Field matching is case-insensitive.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"Message"`
}

const maxErrorText = 256

// errorMessage extracts the most useful description from an error body.
func errorMessage(status int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case eb.Error != "" && eb.ErrorDescription != "":
			return eb.Error + ": " + eb.ErrorDescription
		case eb.Message != "":
			return eb.Message
		case eb.Error != "":
			return eb.Error
		}
	}

	text := strings.TrimSpace(string(body))
	if text != "" && !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "<") {
		if len(text) > maxErrorText {
			cut := maxErrorText
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut] + "..."
		}
		return text
	}

	return http.StatusText(status)
}
