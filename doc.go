// Package credits reconciles subscription billing events into a per-user
// credits ledger and debits credits against it.
//
// Credits is a library, not a service. Import it into your Go application
// and mount the api package on your router, or run cmd/creditsd. It provides:
//
//   - Verified webhook ingestion with duplicate-delivery suppression
//   - A pure reconciliation state machine (Transition) over a closed event union
//   - Atomic conditional debits that never drive a balance negative
//   - Hosted checkout initiation carrying the user identity as metadata
//   - Pluggable stores: memory, database/sql, and grove (PostgreSQL, SQLite, MongoDB)
//   - Lifecycle hooks for audit trails and Prometheus metrics
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/credits"
//	    "github.com/xraph/credits/provider/stripe"
//	    "github.com/xraph/credits/store/memory"
//	)
//
//	l := credits.New(memory.New(),
//	    credits.WithVerifier(stripe.NewVerifier(webhookSecret)),
//	    credits.WithSubscriptionResolver(stripe.NewClient(secretKey)),
//	)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	// In the webhook handler:
//	res, err := l.HandleWebhook(ctx, body, r.Header.Get("Stripe-Signature"))
//
//	// In the metered endpoint:
//	d, err := l.Debit(ctx, userKey)
//
// # Plans
//
// The catalog is fixed: starter grants 10 credits a month, pro grants 30, and
// every other identifier grants 0. Every period start (checkout completion or
// a paid renewal invoice) resets used credits to zero and remaining credits to
// the plan's allotment. Cancellation moves the user to free with nothing left
// to spend and keeps the used count.
//
// # Delivery
//
// Processors deliver at least once and in no particular order. A delivery
// whose event id has a receipt is skipped; the rest are applied
// last-write-wins in arrival order. Only signature failures are reported to
// the processor as errors. Everything else is acknowledged, with failures
// logged and surfaced through the OnReconcileFailed hook.
//
// # TypeID
//
// Receipts, debits and checkout requests use TypeIDs:
//
//	rcpt_01h2xcejqtf2nbrexx3vqjhp41  // Receipt ID
//	dbt_01h2xcejqtf2nbrexx3vqjhp41   // Debit ID
//	chk_01h455vb4pex5vsknk084sn02q   // Checkout ID
package credits
