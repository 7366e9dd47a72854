package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/event"
)

// DefaultHookTimeout bounds a single hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages registered plugins and dispatches hooks to them.
// Hook implementations are cached per interface at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                 []OnInit
	onShutdown             []OnShutdown
	onWebhookReceived      []OnWebhookReceived
	onAccountActivated     []OnAccountActivated
	onCreditsReset         []OnCreditsReset
	onSubscriptionCanceled []OnSubscriptionCanceled
	onPaymentFailed        []OnPaymentFailed
	onEventIgnored         []OnEventIgnored
	onReconcileFailed      []OnReconcileFailed
	onCreditsDebited       []OnCreditsDebited
	onInsufficientCredits  []OnInsufficientCredits
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnWebhookReceived); ok {
		r.onWebhookReceived = append(r.onWebhookReceived, v)
		hooks = append(hooks, "OnWebhookReceived")
	}
	if v, ok := p.(OnAccountActivated); ok {
		r.onAccountActivated = append(r.onAccountActivated, v)
		hooks = append(hooks, "OnAccountActivated")
	}
	if v, ok := p.(OnCreditsReset); ok {
		r.onCreditsReset = append(r.onCreditsReset, v)
		hooks = append(hooks, "OnCreditsReset")
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
		hooks = append(hooks, "OnSubscriptionCanceled")
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
		hooks = append(hooks, "OnPaymentFailed")
	}
	if v, ok := p.(OnEventIgnored); ok {
		r.onEventIgnored = append(r.onEventIgnored, v)
		hooks = append(hooks, "OnEventIgnored")
	}
	if v, ok := p.(OnReconcileFailed); ok {
		r.onReconcileFailed = append(r.onReconcileFailed, v)
		hooks = append(hooks, "OnReconcileFailed")
	}
	if v, ok := p.(OnCreditsDebited); ok {
		r.onCreditsDebited = append(r.onCreditsDebited, v)
		hooks = append(hooks, "OnCreditsDebited")
	}
	if v, ok := p.(OnInsufficientCredits); ok {
		r.onInsufficientCredits = append(r.onInsufficientCredits, v)
		hooks = append(hooks, "OnInsufficientCredits")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitWebhookReceived emits a webhook received event.
func (r *Registry) EmitWebhookReceived(ctx context.Context, meta event.Meta) {
	emit(ctx, r, "OnWebhookReceived", snapshot(r, &r.onWebhookReceived), func(p OnWebhookReceived) error {
		return p.OnWebhookReceived(ctx, meta)
	})
}

// EmitAccountActivated emits an account activated event.
func (r *Registry) EmitAccountActivated(ctx context.Context, a *account.Account) {
	emit(ctx, r, "OnAccountActivated", snapshot(r, &r.onAccountActivated), func(p OnAccountActivated) error {
		return p.OnAccountActivated(ctx, a.Clone())
	})
}

// EmitCreditsReset emits a credits reset event.
func (r *Registry) EmitCreditsReset(ctx context.Context, a *account.Account) {
	emit(ctx, r, "OnCreditsReset", snapshot(r, &r.onCreditsReset), func(p OnCreditsReset) error {
		return p.OnCreditsReset(ctx, a.Clone())
	})
}

// EmitSubscriptionCanceled emits a subscription canceled event.
func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, a *account.Account) {
	emit(ctx, r, "OnSubscriptionCanceled", snapshot(r, &r.onSubscriptionCanceled), func(p OnSubscriptionCanceled) error {
		return p.OnSubscriptionCanceled(ctx, a.Clone())
	})
}

// EmitPaymentFailed emits a payment failed event.
func (r *Registry) EmitPaymentFailed(ctx context.Context, evt event.InvoicePaymentFailed, a *account.Account) {
	emit(ctx, r, "OnPaymentFailed", snapshot(r, &r.onPaymentFailed), func(p OnPaymentFailed) error {
		return p.OnPaymentFailed(ctx, evt, a.Clone())
	})
}

// EmitEventIgnored emits an event ignored notification.
func (r *Registry) EmitEventIgnored(ctx context.Context, meta event.Meta, reason string) {
	emit(ctx, r, "OnEventIgnored", snapshot(r, &r.onEventIgnored), func(p OnEventIgnored) error {
		return p.OnEventIgnored(ctx, meta, reason)
	})
}

// EmitReconcileFailed emits a reconcile failure.
func (r *Registry) EmitReconcileFailed(ctx context.Context, meta event.Meta, err error) {
	emit(ctx, r, "OnReconcileFailed", snapshot(r, &r.onReconcileFailed), func(p OnReconcileFailed) error {
		return p.OnReconcileFailed(ctx, meta, err)
	})
}

// EmitCreditsDebited emits a credits debited event.
func (r *Registry) EmitCreditsDebited(ctx context.Context, userKey string, amount, remaining int64) {
	emit(ctx, r, "OnCreditsDebited", snapshot(r, &r.onCreditsDebited), func(p OnCreditsDebited) error {
		return p.OnCreditsDebited(ctx, userKey, amount, remaining)
	})
}

// EmitInsufficientCredits emits a refused debit.
func (r *Registry) EmitInsufficientCredits(ctx context.Context, userKey string, required, remaining int64) {
	emit(ctx, r, "OnInsufficientCredits", snapshot(r, &r.onInsufficientCredits), func(p OnInsufficientCredits) error {
		return p.OnInsufficientCredits(ctx, userKey, required, remaining)
	})
}

func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// emit calls fn for each plugin, logging failures. Hooks never fail the
// operation that triggered them.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block a webhook acknowledgement or a debit.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
