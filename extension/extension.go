// Package extension provides the Forge extension adapter for credits.
//
// It implements the forge.Extension interface to integrate the credits
// engine into a Forge application with DI registration and lifecycle
// management. The engine and, unless routes are disabled, the HTTP handler
// are provided to the container.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.credits" or "credits" keys.
package extension

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/api"
	"github.com/xraph/credits/checkout"
	"github.com/xraph/credits/provider/stripe"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "credits"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Subscription credits metering and billing-event reconciliation"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the credits engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *credits.Ledger
	handler    *api.Handler
	store      store.Store
	ledgerOpts []credits.Option
	apiOpts    []api.Option
	optErr     error
}

// New creates a new credits Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying credits engine.
// This is nil until Register is called.
func (e *Extension) Engine() *credits.Ledger { return e.engine }

// Handler returns the HTTP handler, or nil when routes are disabled.
func (e *Extension) Handler() *api.Handler { return e.handler }

// HTTPHandler returns a router serving the credits routes under BasePath,
// or nil when routes are disabled.
func (e *Extension) HTTPHandler() http.Handler {
	if e.handler == nil {
		return nil
	}
	router := gin.New()
	router.Use(gin.Recovery())
	base := strings.TrimRight(e.config.BasePath, "/")
	if base == "" {
		e.handler.Register(router)
	} else {
		e.handler.Register(router.Group(base))
	}
	return router
}

// Register implements [forge.Extension]. It loads configuration,
// initializes the credits engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}
	if e.optErr != nil {
		return e.optErr
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, client, err := e.buildLedgerOpts()
	if err != nil {
		return err
	}

	e.engine = credits.New(e.store, opts...)
	if err := vessel.Provide(fapp.Container(), func() (*credits.Ledger, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}

	apiOpts := make([]api.Option, 0, len(e.apiOpts)+1)
	if client != nil {
		apiOpts = append(apiOpts, api.WithCheckout(checkout.NewInitiator(e.config.Checkout, client)))
	}
	apiOpts = append(apiOpts, e.apiOpts...)
	e.handler = api.New(e.engine, apiOpts...)

	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return e.handler, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("credits: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("credits: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs credits.Option values from the resolved config.
// The Stripe client is returned so the checkout initiator can share it.
func (e *Extension) buildLedgerOpts() ([]credits.Option, *stripe.Client, error) {
	policy, err := credits.ParseFailurePolicy(e.config.FailurePolicy)
	if err != nil {
		return nil, nil, err
	}

	opts := make([]credits.Option, 0, len(e.ledgerOpts)+6)
	opts = append(opts,
		credits.WithDebitCost(e.config.DebitCost),
		credits.WithFailurePolicy(policy),
	)
	if e.config.HookTimeout > 0 {
		opts = append(opts, credits.WithHookTimeout(e.config.HookTimeout))
	}
	if e.config.DisableMigrate {
		opts = append(opts, credits.WithoutMigrate())
	}
	if e.config.StripeWebhookSecret != "" {
		opts = append(opts, credits.WithVerifier(stripe.NewVerifier(e.config.StripeWebhookSecret)))
	}

	var client *stripe.Client
	if e.config.StripeSecretKey != "" {
		client = stripe.NewClient(e.config.StripeSecretKey)
		opts = append(opts, credits.WithSubscriptionResolver(client))
	}

	// Append any pass-through options.
	opts = append(opts, e.ledgerOpts...)

	return opts, client, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("credits: configuration is required but not found in config files; " +
				"ensure 'extensions.credits' or 'credits' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("credits: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("debit_cost", e.config.DebitCost),
		forge.F("failure_policy", e.config.FailurePolicy),
		forge.F("hook_timeout", e.config.HookTimeout),
		forge.F("stripe_configured", e.config.StripeWebhookSecret != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.credits", "credits"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("credits: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("credits: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.DebitCost == 0 {
		cfg.DebitCost = defaults.DebitCost
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = defaults.FailurePolicy
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.FailurePolicy == "" {
		yamlConfig.FailurePolicy = programmaticConfig.FailurePolicy
	}
	if yamlConfig.StripeSecretKey == "" {
		yamlConfig.StripeSecretKey = programmaticConfig.StripeSecretKey
	}
	if yamlConfig.StripeWebhookSecret == "" {
		yamlConfig.StripeWebhookSecret = programmaticConfig.StripeWebhookSecret
	}
	if yamlConfig.Checkout == (checkout.Config{}) {
		yamlConfig.Checkout = programmaticConfig.Checkout
	}

	// Numeric fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.DebitCost == 0 {
		yamlConfig.DebitCost = programmaticConfig.DebitCost
	}
	if yamlConfig.HookTimeout == 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
