// Package stripe connects the credits engine to Stripe: webhook
// verification, subscription lookups and hosted checkout sessions.
package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/event"
)

// Provider is the receipt namespace for Stripe deliveries.
const Provider = "stripe"

// SignatureHeader is the transport header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

// compile-time interface check
var _ event.Verifier = (*Verifier)(nil)

// Verifier authenticates Stripe webhook deliveries and decodes them into
// credits events.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance sets how old a signed timestamp may be.
func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

// NewVerifier creates a verifier for the endpoint's signing secret.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret:    secret,
		tolerance: webhook.DefaultTolerance,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the signature over payload exactly as received and decodes
// the event. Signature problems return credits.ErrInvalidSignature. A
// verified event whose object cannot be decoded returns the envelope as
// event.Other together with credits.ErrMalformedEvent.
func (v *Verifier) Verify(payload []byte, signatureHeader string) (event.Event, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: webhook secret", credits.ErrMissingConfiguration)
	}
	if !wellFormedHeader(signatureHeader) {
		return nil, fmt.Errorf("%w: malformed %s header", credits.ErrInvalidSignature, SignatureHeader)
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %w", credits.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %w", credits.ErrMalformedEvent, err)
	}

	return decode(&evt)
}

func decode(evt *stripelib.Event) (event.Event, error) {
	meta := event.Meta{
		Provider: Provider,
		ID:       evt.ID,
		Type:     event.Kind(evt.Type),
		Created:  time.Unix(evt.Created, 0).UTC(),
	}
	if evt.Data == nil {
		return malformed(meta, errors.New("missing data"))
	}

	switch meta.Type {
	case event.KindCheckoutCompleted:
		var s checkoutSession
		if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
			return malformed(meta, err)
		}
		return s.toEvent(meta), nil

	case event.KindInvoicePaid:
		var in invoice
		if err := json.Unmarshal(evt.Data.Raw, &in); err != nil {
			return malformed(meta, err)
		}
		return event.InvoicePaid{
			Meta:           meta,
			InvoiceID:      in.ID,
			SubscriptionID: in.subscriptionID(),
			CustomerID:     string(in.Customer),
			UserKey:        in.metadata(event.MetadataUserKey),
			Plan:           in.metadata(event.MetadataPlan),
		}, nil

	case event.KindInvoicePaymentFailed:
		var in invoice
		if err := json.Unmarshal(evt.Data.Raw, &in); err != nil {
			return malformed(meta, err)
		}
		return event.InvoicePaymentFailed{
			Meta:           meta,
			InvoiceID:      in.ID,
			SubscriptionID: in.subscriptionID(),
			CustomerID:     string(in.Customer),
			UserKey:        in.metadata(event.MetadataUserKey),
			AttemptCount:   in.AttemptCount,
		}, nil

	case event.KindSubscriptionDeleted:
		var sub subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return malformed(meta, err)
		}
		return event.SubscriptionCanceled{
			Meta:           meta,
			SubscriptionID: sub.ID,
			CustomerID:     string(sub.Customer),
			UserKey:        sub.Metadata[event.MetadataUserKey],
		}, nil

	default:
		return event.Other{Meta: meta}, nil
	}
}

func malformed(meta event.Meta, err error) (event.Event, error) {
	return event.Other{Meta: meta}, fmt.Errorf("%w: decode %s: %w", credits.ErrMalformedEvent, meta.Type, err)
}

// wellFormedHeader reports whether header carries a timestamp and at least
// one v1 signature.
func wellFormedHeader(header string) bool {
	var hasTimestamp, hasSignature bool
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case "t":
			hasTimestamp = true
		case "v1":
			hasSignature = true
		}
	}
	return hasTimestamp && hasSignature
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
