// Package plugin provides an extensible plugin system for the credits engine.
// Plugins implement any subset of the hook interfaces below and are
// discovered by type assertion at registration.
package plugin

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/event"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived is called for every verified event before it is applied.
type OnWebhookReceived interface {
	Plugin
	OnWebhookReceived(ctx context.Context, meta event.Meta) error
}

// OnAccountActivated is called after a completed checkout grants a plan.
type OnAccountActivated interface {
	Plugin
	OnAccountActivated(ctx context.Context, a *account.Account) error
}

// OnCreditsReset is called after a renewal resets the period's credits.
type OnCreditsReset interface {
	Plugin
	OnCreditsReset(ctx context.Context, a *account.Account) error
}

// OnSubscriptionCanceled is called after a cancellation zeroes the plan.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, a *account.Account) error
}

// OnPaymentFailed is called for every failed invoice payment. a is nil when
// the failure policy left the ledger untouched.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, evt event.InvoicePaymentFailed, a *account.Account) error
}

// OnEventIgnored is called when an event is acknowledged without a mutation.
type OnEventIgnored interface {
	Plugin
	OnEventIgnored(ctx context.Context, meta event.Meta, reason string) error
}

// OnReconcileFailed is called when applying an event to the store failed.
type OnReconcileFailed interface {
	Plugin
	OnReconcileFailed(ctx context.Context, meta event.Meta, err error) error
}

// ──────────────────────────────────────────────────
// Debit hooks
// ──────────────────────────────────────────────────

// OnCreditsDebited is called after a successful debit.
type OnCreditsDebited interface {
	Plugin
	OnCreditsDebited(ctx context.Context, userKey string, amount, remaining int64) error
}

// OnInsufficientCredits is called when a debit is refused for lack of balance.
type OnInsufficientCredits interface {
	Plugin
	OnInsufficientCredits(ctx context.Context, userKey string, required, remaining int64) error
}
