// Package audithook records credits lifecycle events in an audit trail.
//
// It defines a local Recorder interface so the package does not depend on any
// audit backend. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/event"
	"github.com/xraph/credits/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnWebhookReceived      = (*Extension)(nil)
	_ plugin.OnAccountActivated     = (*Extension)(nil)
	_ plugin.OnCreditsReset         = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled = (*Extension)(nil)
	_ plugin.OnPaymentFailed        = (*Extension)(nil)
	_ plugin.OnEventIgnored         = (*Extension)(nil)
	_ plugin.OnReconcileFailed      = (*Extension)(nil)
	_ plugin.OnCreditsDebited       = (*Extension)(nil)
	_ plugin.OnInsufficientCredits  = (*Extension)(nil)
)

// Recorder is the interface audit backends implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension records credits lifecycle events through a Recorder.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (e *Extension) OnWebhookReceived(ctx context.Context, meta event.Meta) error {
	return e.record(ctx, ActionWebhookReceived, SeverityInfo, OutcomeSuccess,
		ResourceWebhook, meta.ID, CategoryIntegration, nil,
		"provider", meta.Provider,
		"type", string(meta.Type),
	)
}

// OnAccountActivated implements plugin.OnAccountActivated.
func (e *Extension) OnAccountActivated(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionAccountActivated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.UserKey, CategorySubscription, nil,
		accountPairs(a)...,
	)
}

// OnCreditsReset implements plugin.OnCreditsReset.
func (e *Extension) OnCreditsReset(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionCreditsReset, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.UserKey, CategoryBilling, nil,
		accountPairs(a)...,
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityWarning, OutcomeSuccess,
		ResourceSubscription, a.SubscriptionID, CategorySubscription, nil,
		"user_key", a.UserKey,
	)
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, evt event.InvoicePaymentFailed, a *account.Account) error {
	pairs := []any{
		"user_key", evt.UserKey,
		"subscription_id", evt.SubscriptionID,
		"attempt_count", evt.AttemptCount,
	}
	if a != nil {
		pairs = append(pairs, "subscription_status", string(a.Status))
	}
	return e.record(ctx, ActionPaymentFailed, SeverityWarning, OutcomeFailure,
		ResourceInvoice, evt.InvoiceID, CategoryPayment, nil,
		pairs...,
	)
}

// OnEventIgnored implements plugin.OnEventIgnored.
func (e *Extension) OnEventIgnored(ctx context.Context, meta event.Meta, reason string) error {
	return e.record(ctx, ActionWebhookIgnored, SeverityInfo, OutcomeSuccess,
		ResourceWebhook, meta.ID, CategoryIntegration, nil,
		"type", string(meta.Type),
		"ignore_reason", reason,
	)
}

// OnReconcileFailed implements plugin.OnReconcileFailed.
func (e *Extension) OnReconcileFailed(ctx context.Context, meta event.Meta, err error) error {
	return e.record(ctx, ActionWebhookFailed, SeverityCritical, OutcomeFailure,
		ResourceWebhook, meta.ID, CategoryIntegration, err,
		"type", string(meta.Type),
	)
}

// ──────────────────────────────────────────────────
// Debit hooks
// ──────────────────────────────────────────────────

// OnCreditsDebited implements plugin.OnCreditsDebited.
func (e *Extension) OnCreditsDebited(ctx context.Context, userKey string, amount, remaining int64) error {
	return e.record(ctx, ActionCreditsDebited, SeverityInfo, OutcomeSuccess,
		ResourceAccount, userKey, CategoryUsage, nil,
		"amount", amount,
		"remaining", remaining,
	)
}

// OnInsufficientCredits implements plugin.OnInsufficientCredits.
func (e *Extension) OnInsufficientCredits(ctx context.Context, userKey string, required, remaining int64) error {
	return e.record(ctx, ActionCreditsInsufficient, SeverityWarning, OutcomeFailure,
		ResourceAccount, userKey, CategoryUsage, nil,
		"required", required,
		"remaining", remaining,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func accountPairs(a *account.Account) []any {
	return []any{
		"plan", string(a.Plan),
		"monthly_credits", a.MonthlyCredits,
		"remaining_credits", a.RemainingCredits,
		"subscription_status", string(a.Status),
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
