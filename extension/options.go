package extension

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/api"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/mongo"
	"github.com/xraph/credits/store/postgres"
	"github.com/xraph/credits/store/sqlite"
)

// Option configures the credits Forge extension.
type Option func(*Extension)

// WithStore sets the store for the credits engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a credits.Option through to the underlying engine.
func WithLedgerOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithAPIOption passes an api.Option through to the HTTP handler.
func WithAPIOption(opt api.Option) Option {
	return func(e *Extension) {
		e.apiOpts = append(e.apiOpts, opt)
	}
}

// WithPlugin registers a credits plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, credits.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents building the HTTP handler.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for credits routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithDebitCost sets what one debit consumes.
func WithDebitCost(cost int64) Option {
	return func(e *Extension) { e.config.DebitCost = cost }
}

// WithFailurePolicy sets what a failed invoice payment does to the ledger.
func WithFailurePolicy(policy string) Option {
	return func(e *Extension) { e.config.FailurePolicy = policy }
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.HookTimeout = d }
}

// WithStripe sets the Stripe API key and webhook signing secret.
func WithStripe(secretKey, webhookSecret string) Option {
	return func(e *Extension) {
		e.config.StripeSecretKey = secretKey
		e.config.StripeWebhookSecret = webhookSecret
	}
}

// WithGroveDatabase backs the engine with a grove database. driver names the
// grove driver db was opened with: "postgres", "sqlite" or "mongo".
func WithGroveDatabase(driver string, db *grove.DB) Option {
	return func(e *Extension) {
		s, err := groveStore(driver, db)
		if err != nil {
			e.optErr = err
			return
		}
		e.store = s
	}
}

func groveStore(driver string, db *grove.DB) (store.Store, error) {
	switch driver {
	case "postgres", "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo", "mongodb":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("%w: unknown grove driver %q", credits.ErrMissingConfiguration, driver)
	}
}
