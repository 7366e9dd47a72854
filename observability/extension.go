// Package observability provides a metrics plugin for the credits engine that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/event"
	"github.com/xraph/credits/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnWebhookReceived      = (*MetricsExtension)(nil)
	_ plugin.OnAccountActivated     = (*MetricsExtension)(nil)
	_ plugin.OnCreditsReset         = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed        = (*MetricsExtension)(nil)
	_ plugin.OnEventIgnored         = (*MetricsExtension)(nil)
	_ plugin.OnReconcileFailed      = (*MetricsExtension)(nil)
	_ plugin.OnCreditsDebited       = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientCredits  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records credits lifecycle metrics. Register it as a
// plugin to track webhook and debit traffic.
type MetricsExtension struct {
	factory MetricFactory

	// Webhook metrics
	WebhookReceived Counter
	WebhookIgnored  Counter
	WebhookFailed   Counter

	// Account metrics
	AccountActivated     Counter
	CreditsReset         Counter
	SubscriptionCanceled Counter
	PaymentFailed        Counter

	// Debit metrics
	CreditsDebited      Counter
	DebitsRefused       Counter
	RemainingAfterDebit Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		WebhookReceived: factory.Counter("credits.webhook.received"),
		WebhookIgnored:  factory.Counter("credits.webhook.ignored"),
		WebhookFailed:   factory.Counter("credits.webhook.failed"),

		AccountActivated:     factory.Counter("credits.account.activated"),
		CreditsReset:         factory.Counter("credits.account.reset"),
		SubscriptionCanceled: factory.Counter("credits.subscription.canceled"),
		PaymentFailed:        factory.Counter("credits.payment.failed"),

		CreditsDebited:      factory.Counter("credits.debit.amount"),
		DebitsRefused:       factory.Counter("credits.debit.refused"),
		RemainingAfterDebit: factory.Histogram("credits.debit.remaining"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Reconciliation hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (m *MetricsExtension) OnWebhookReceived(_ context.Context, _ event.Meta) error {
	m.WebhookReceived.Inc()
	return nil
}

// OnAccountActivated implements plugin.OnAccountActivated.
func (m *MetricsExtension) OnAccountActivated(_ context.Context, _ *account.Account) error {
	m.AccountActivated.Inc()
	return nil
}

// OnCreditsReset implements plugin.OnCreditsReset.
func (m *MetricsExtension) OnCreditsReset(_ context.Context, _ *account.Account) error {
	m.CreditsReset.Inc()
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *account.Account) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, _ event.InvoicePaymentFailed, _ *account.Account) error {
	m.PaymentFailed.Inc()
	return nil
}

// OnEventIgnored implements plugin.OnEventIgnored.
func (m *MetricsExtension) OnEventIgnored(_ context.Context, _ event.Meta, _ string) error {
	m.WebhookIgnored.Inc()
	return nil
}

// OnReconcileFailed implements plugin.OnReconcileFailed.
func (m *MetricsExtension) OnReconcileFailed(_ context.Context, _ event.Meta, _ error) error {
	m.WebhookFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Debit hooks
// ──────────────────────────────────────────────────

// OnCreditsDebited implements plugin.OnCreditsDebited.
func (m *MetricsExtension) OnCreditsDebited(_ context.Context, _ string, amount, remaining int64) error {
	m.CreditsDebited.Add(float64(amount))
	m.RemainingAfterDebit.Observe(float64(remaining))
	return nil
}

// OnInsufficientCredits implements plugin.OnInsufficientCredits.
func (m *MetricsExtension) OnInsufficientCredits(_ context.Context, _ string, _, _ int64) error {
	m.DebitsRefused.Inc()
	return nil
}
