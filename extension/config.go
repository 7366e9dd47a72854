package extension

import (
	"time"

	"github.com/xraph/credits/checkout"
)

// Config holds the credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// DisableRoutes prevents building the HTTP handler.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for credits routes (default: "/").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// DebitCost is what one debit consumes (default: 2).
	DebitCost int64 `json:"debit_cost" mapstructure:"debit_cost" yaml:"debit_cost"`

	// FailurePolicy is log_only or mark_past_due (default: log_only).
	FailurePolicy string `json:"failure_policy" mapstructure:"failure_policy" yaml:"failure_policy"`

	// HookTimeout bounds each plugin hook call (default: 5s).
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// StripeSecretKey enables subscription lookups and hosted checkout.
	StripeSecretKey string `json:"stripe_secret_key" mapstructure:"stripe_secret_key" yaml:"stripe_secret_key"`

	// StripeWebhookSecret enables webhook verification.
	StripeWebhookSecret string `json:"stripe_webhook_secret" mapstructure:"stripe_webhook_secret" yaml:"stripe_webhook_secret"`

	// Checkout holds the price ids and app URL for hosted checkout.
	Checkout checkout.Config `json:"checkout" mapstructure:"checkout" yaml:"checkout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:      "/",
		DebitCost:     2,
		FailurePolicy: "log_only",
		HookTimeout:   5 * time.Second,
	}
}
