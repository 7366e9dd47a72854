// Package event defines the verified billing events the reconciliation
// engine understands.
//
// Event is a closed union: only the types in this package implement it, and
// every consumer must handle Other for kinds outside the vocabulary.
package event

import (
	"context"
	"time"
)

// Kind is the processor's event type string.
type Kind string

const (
	KindCheckoutCompleted    Kind = "checkout.session.completed"
	KindInvoicePaid          Kind = "invoice.paid"
	KindInvoicePaymentFailed Kind = "invoice.payment_failed"
	KindSubscriptionDeleted  Kind = "customer.subscription.deleted"
)

// Metadata keys written at checkout and echoed back on every event that
// carries the session or subscription.
const (
	MetadataUserKey = "user_key"
	MetadataPlan    = "plan"
)

// Meta is the envelope shared by every event.
type Meta struct {
	Provider string
	ID       string
	Type     Kind
	Created  time.Time
}

// Header returns the envelope.
func (m Meta) Header() Meta { return m }

// Event is a verified billing event.
type Event interface {
	Header() Meta
	sealed()
}

// CheckoutCompleted starts a paid period for UserKey.
type CheckoutCompleted struct {
	Meta
	UserKey        string
	Email          string
	Plan           string
	CustomerID     string
	SubscriptionID string
}

// InvoicePaid marks a renewal. UserKey, Plan and SubscriptionStatus come from
// the subscription's metadata and are usually filled by a SubscriptionResolver.
type InvoicePaid struct {
	Meta
	InvoiceID          string
	SubscriptionID     string
	CustomerID         string
	UserKey            string
	Plan               string
	SubscriptionStatus string
}

// InvoicePaymentFailed reports a failed charge attempt.
type InvoicePaymentFailed struct {
	Meta
	InvoiceID      string
	SubscriptionID string
	CustomerID     string
	UserKey        string
	AttemptCount   int64
}

// SubscriptionCanceled ends the subscription for UserKey.
type SubscriptionCanceled struct {
	Meta
	SubscriptionID string
	CustomerID     string
	UserKey        string
}

// Other is any kind the engine does not act on.
type Other struct {
	Meta
}

func (CheckoutCompleted) sealed()    {}
func (InvoicePaid) sealed()          {}
func (InvoicePaymentFailed) sealed() {}
func (SubscriptionCanceled) sealed() {}
func (Other) sealed()                {}

// Verifier authenticates a raw delivery and decodes it. Implementations must
// check the signature over payload exactly as received.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (Event, error)
}

// Subscription is the processor's current view of a subscription.
type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	UserKey    string
	Plan       string
}

// SubscriptionResolver looks up a subscription and its checkout metadata.
type SubscriptionResolver interface {
	ResolveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
}

// SubscriptionResolverFunc adapts a function to SubscriptionResolver.
type SubscriptionResolverFunc func(ctx context.Context, subscriptionID string) (*Subscription, error)

// ResolveSubscription implements SubscriptionResolver.
func (f SubscriptionResolverFunc) ResolveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return f(ctx, subscriptionID)
}
