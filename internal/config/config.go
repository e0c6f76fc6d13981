// Package config loads CLI settings from defaults, an optional TOML file and
// BLUEBEAM_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/aussiebroadwan/bluebeam/pkg/bluebeam"
	"github.com/aussiebroadwan/bluebeam/pkg/httpx"
)

// EnvPrefix namespaces environment overrides. Nested keys use a double
// underscore, e.g. BLUEBEAM_KEYRING__SERVICE.
const EnvPrefix = "BLUEBEAM_"

type Config struct {
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri"`
	Region       string   `koanf:"region"`
	Scopes       []string `koanf:"scopes"`

	// BaseURL overrides the region host, for proxies and local testing.
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`

	Timeout     time.Duration `koanf:"timeout"      validate:"gt=0"`
	MaxRetries  int           `koanf:"max_retries"  validate:"gte=0"`
	BackoffBase float64       `koanf:"backoff_base" validate:"gt=0"`
	ExpirySkew  time.Duration `koanf:"expiry_skew"  validate:"gte=0"`

	RateLimit RateLimit `koanf:"rate_limit"`
	Keyring   Keyring   `koanf:"keyring"`
	Log       Log       `koanf:"log"`
}

type RateLimit struct {
	Requests int           `koanf:"requests" validate:"gte=0"`
	Window   time.Duration `koanf:"window"   validate:"gte=0"`
	Burst    int           `koanf:"burst"    validate:"gte=0"`
}

// Keyring names the OS keyring entry holding the token.
type Keyring struct {
	Service string `koanf:"service" validate:"required"`
	User    string `koanf:"user"    validate:"required"`
}

type Log struct {
	Level  string `koanf:"level"  validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

func defaults() map[string]any {
	return map[string]any{
		"region":          string(bluebeam.RegionUS),
		"redirect_uri":    "http://localhost:8765/callback",
		"scopes":          bluebeam.DefaultScopes,
		"timeout":         bluebeam.DefaultTimeout,
		"max_retries":     bluebeam.DefaultMaxRetries,
		"backoff_base":    bluebeam.DefaultBackoffBase,
		"expiry_skew":     bluebeam.DefaultExpirySkew,
		"keyring.service": "bluebeam",
		"keyring.user":    "default",
		"log.level":       "info",
		"log.format":      "text",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration. path may be empty; a named file that does not
// exist is an error. environ is usually os.Environ.
func Load(path string, environ func() []string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if environ == nil {
		environ = os.Environ
	}
	envProvider := env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
		EnvironFunc:   environ,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// transformEnv maps BLUEBEAM_RATE_LIMIT__WINDOW to rate_limit.window. Scopes
// are space separated like the OAuth2 scope parameter.
func transformEnv(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	if key == "scopes" {
		return key, httpx.ParseSpaceDelimitedFields(value)
	}
	return key, value
}

// Validate checks the CLI-only settings. Client settings are checked again
// by bluebeam.NewClient.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Client converts c into the library configuration.
func (c Config) Client() bluebeam.Config {
	return bluebeam.Config{
		ClientID:         c.ClientID,
		ClientSecret:     c.ClientSecret,
		RedirectURI:      c.RedirectURI,
		Region:           bluebeam.Region(c.Region),
		Scopes:           c.Scopes,
		Timeout:          c.Timeout,
		MaxRetries:       c.MaxRetries,
		RetryBackoffBase: c.BackoffBase,
		ExpirySkew:       c.ExpirySkew,
		RateLimit: httpx.RateLimitConfig{
			RequestsPerWindow: c.RateLimit.Requests,
			Window:            c.RateLimit.Window,
			Burst:             c.RateLimit.Burst,
		},
	}
}
