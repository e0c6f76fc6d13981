package bluebeam

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/bluebeam/pkg/httpx"
)

// Region selects the Bluebeam Studio data centre a client talks to.
type Region string

const (
	RegionUS  Region = "US"
	RegionEU  Region = "EU"
	RegionANZ Region = "ANZ"
)

// Base URLs must match the provider exactly.
var regionBaseURLs = map[Region]string{
	RegionUS:  "https://api.bluebeam.com",
	RegionEU:  "https://api.bluebeamstudio.de",
	RegionANZ: "https://api.bluebeamstudio.com.au",
}

// ParseRegion accepts a region name in any case. Unknown names are a
// configuration error.
func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := regionBaseURLs[r]; !ok {
		return "", &Error{
			Kind:    KindConfiguration,
			Message: fmt.Sprintf("unknown region %q (expected US, EU or ANZ)", s),
		}
	}
	return r, nil
}

// BaseURL returns the API host for r, or "" for an unknown region.
func (r Region) BaseURL() string {
	return regionBaseURLs[r]
}

// Endpoint returns the OAuth2 endpoints of r.
func (r Region) Endpoint() oauth2.Endpoint {
	return endpointFor(r.BaseURL())
}

func endpointFor(baseURL string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   baseURL + AuthorizePath,
		TokenURL:  baseURL + TokenPath,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

const (
	// APIRoot prefixes every resource path.
	APIRoot = "/publicapi/v1"

	AuthorizePath = "/oauth/authorize"
	TokenPath     = "/oauth/token"

	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 2.0

	// DefaultExpirySkew is how long before the recorded expiry a token is
	// already treated as expired, so it cannot lapse mid-flight.
	DefaultExpirySkew = 30 * time.Second

	// DefaultExpiresIn is assumed when the token endpoint omits expires_in.
	DefaultExpiresIn = time.Hour
)

// DefaultScopes grant full session access. offline_access is what makes the
// provider issue refresh tokens.
var DefaultScopes = []string{"full_user", "offline_access"}

// Credentials identify the registered OAuth2 application.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Region       Region
	Scopes       []string
}

// RetryPolicy bounds how a single logical call is retried on transient
// failures (429, 5xx, connection errors).
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `validate:"gte=0"`

	// BackoffBase is raised to the attempt number to get the wait in seconds.
	BackoffBase float64 `validate:"gt=0"`

	// Timeout applies to each HTTP attempt, not to the whole call.
	Timeout time.Duration `validate:"gt=0"`
}

// Config is everything a Client needs. It is copied at construction and never
// read again.
type Config struct {
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	RedirectURI  string `validate:"required,url"`

	// Region defaults to US when empty.
	Region Region

	// Scopes defaults to DefaultScopes when empty.
	Scopes []string

	// Timeout per HTTP attempt. Zero means DefaultTimeout.
	Timeout time.Duration `validate:"gte=0"`

	// MaxRetries is used as given, so zero disables retries. Start from
	// DefaultConfig to get DefaultMaxRetries.
	MaxRetries int `validate:"gte=0"`

	// RetryBackoffBase of zero means DefaultBackoffBase.
	RetryBackoffBase float64 `validate:"gte=0"`

	// ExpirySkew of zero means DefaultExpirySkew.
	ExpirySkew time.Duration `validate:"gte=0"`

	// RateLimit optionally throttles outbound requests client-side.
	RateLimit httpx.RateLimitConfig
}

// DefaultConfig returns a Config with every tunable set to its default.
func DefaultConfig() Config {
	return Config{
		Region:           RegionUS,
		Scopes:           append([]string(nil), DefaultScopes...),
		Timeout:          DefaultTimeout,
		MaxRetries:       DefaultMaxRetries,
		RetryBackoffBase: DefaultBackoffBase,
		ExpirySkew:       DefaultExpirySkew,
	}
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = RegionUS
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	} else {
		c.Scopes = append([]string(nil), c.Scopes...)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryBackoffBase == 0 {
		c.RetryBackoffBase = DefaultBackoffBase
	}
	if c.ExpirySkew == 0 {
		c.ExpirySkew = DefaultExpirySkew
	}
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first problem with c as a configuration error. Zero
// tunables are checked as their defaults, the same way NewClient sees them.
func (c Config) Validate() error {
	c = c.withDefaults()
	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}
	if _, err := ParseRegion(string(c.Region)); err != nil {
		return err
	}
	return c.RetryPolicy().Validate()
}

// RetryPolicy extracts the retry settings of c.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  c.MaxRetries,
		BackoffBase: c.RetryBackoffBase,
		Timeout:     c.Timeout,
	}
}

// Validate checks p on its own, for callers that build policies by hand.
func (p RetryPolicy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &Error{Kind: KindConfiguration, Message: "invalid configuration", Err: err}
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
		}
	}

	return &Error{
		Kind:    KindConfiguration,
		Message: "invalid configuration: " + strings.Join(msgs, "; "),
		Err:     err,
	}
}
