// Package config loads the standalone server configuration from the
// environment. A .env file is read when present but never required.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/checkout"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the creditsd configuration.
type Config struct {
	Port        int
	StoreDriver string
	DatabaseURL string

	StripeSecretKey        string
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
	Checkout               checkout.Config

	AuthJWTSecret string
	AuthIssuer    string
	AuthAudience  string
	AuthDisabled  bool

	LogFormat      string
	LogLevel       string
	DebitCost      int64
	FailurePolicy  credits.FailurePolicy
	AllowedOrigins []string
}

// Load reads the given env files (default .env) into the process
// environment and builds a validated Config from it. Variables already set
// in the environment win over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a validated Config from the process environment.
func FromEnv() (*Config, error) {
	var errs credits.MultiError

	port, err := envInt("PORT", 8080)
	errs.Add(err)
	debitCost, err := envInt("DEBIT_COST", int(credits.DefaultDebitCost))
	errs.Add(err)
	authDisabled, err := envBool("AUTH_DISABLED", false)
	errs.Add(err)
	tolerance, err := envDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute)
	errs.Add(err)
	policy, err := credits.ParseFailurePolicy(env("FAILURE_POLICY", ""))
	errs.Add(err)

	cfg := &Config{
		Port:                   port,
		StoreDriver:            env("STORE_DRIVER", ""),
		DatabaseURL:            env("DATABASE_URL", ""),
		StripeSecretKey:        env("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:    env("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance: tolerance,
		Checkout: checkout.Config{
			StarterPriceID: env("STRIPE_STARTER_PRICE_ID", ""),
			ProPriceID:     env("STRIPE_PRO_PRICE_ID", ""),
			AppURL:         env("APP_URL", checkout.DefaultAppURL),
		},
		AuthJWTSecret:  env("AUTH_JWT_SECRET", ""),
		AuthIssuer:     env("AUTH_ISSUER", ""),
		AuthAudience:   env("AUTH_AUDIENCE", ""),
		AuthDisabled:   authDisabled,
		LogFormat:      env("LOG_FORMAT", "json"),
		LogLevel:       env("LOG_LEVEL", "info"),
		DebitCost:      int64(debitCost),
		FailurePolicy:  policy,
		AllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverMemory
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = DriverPostgres
		}
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs credits.MultiError

	if c.Port < 1 || c.Port > 65535 {
		errs.Add(invalid("PORT", fmt.Sprintf("must be between 1 and 65535, got %d", c.Port)))
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs.Add(missing("DATABASE_URL"))
		}
	default:
		errs.Add(invalid("STORE_DRIVER", fmt.Sprintf("unknown driver %q", c.StoreDriver)))
	}
	if c.StripeWebhookSecret == "" {
		errs.Add(missing("STRIPE_WEBHOOK_SECRET"))
	}
	if !c.AuthDisabled && c.AuthJWTSecret == "" {
		errs.Add(missing("AUTH_JWT_SECRET"))
	}
	if c.DebitCost <= 0 {
		errs.Add(invalid("DEBIT_COST", fmt.Sprintf("must be positive, got %d", c.DebitCost)))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs.Add(invalid("LOG_FORMAT", fmt.Sprintf("must be json or text, got %q", c.LogFormat)))
	}
	if u, err := url.Parse(c.Checkout.AppURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add(invalid("APP_URL", "must be an absolute http(s) URL"))
	}

	return errs.ErrOrNil()
}

// CheckoutEnabled reports whether hosted checkout can be offered.
func (c *Config) CheckoutEnabled() bool {
	return c.StripeSecretKey != "" && c.Checkout.StarterPriceID != "" && c.Checkout.ProPriceID != ""
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func missing(key string) error {
	return fmt.Errorf("%w: %s", credits.ErrMissingConfiguration, key)
}

func invalid(key, msg string) error {
	return credits.ValidationError{Field: key, Message: msg}
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := env(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid(key, "must be a valid integer")
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := env(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalid(key, "must be a boolean")
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := env(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, invalid(key, "must be a duration like 5m")
	}
	return d, nil
}

func envList(key string, fallback []string) []string {
	v := env(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
