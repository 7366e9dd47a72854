package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountActivated = "account.activated"
	ActionCreditsReset     = "credits.reset"

	// Subscription actions
	ActionSubscriptionCanceled = "subscription.canceled"
	ActionPaymentFailed        = "payment.failed"

	// Debit actions
	ActionCreditsDebited      = "credits.debited"
	ActionCreditsInsufficient = "credits.insufficient"

	// Webhook actions
	ActionWebhookReceived = "webhook.received"
	ActionWebhookIgnored  = "webhook.ignored"
	ActionWebhookFailed   = "webhook.failed"
)

// Resource constants for audit events.
const (
	ResourceAccount      = "account"
	ResourceSubscription = "subscription"
	ResourceInvoice      = "invoice"
	ResourceWebhook      = "webhook"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryUsage        = "usage"
	CategoryPayment      = "payment"
	CategoryIntegration  = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
