package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/event"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/receipt"
	"github.com/xraph/credits/store"
)

// DefaultDebitCost is what one Debit call consumes.
const DefaultDebitCost int64 = 2

// Ledger reconciles billing events into the credits ledger and serves debits.
// It holds no per-user state; everything lives in the store.
type Ledger struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	verifier event.Verifier
	resolver event.SubscriptionResolver

	// Configuration
	debitCost     int64
	failurePolicy FailurePolicy
	skipMigrate   bool
	now           func() time.Time
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:         s,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		debitCost:     DefaultDebitCost,
		failurePolicy: FailurePolicyLogOnly,
		now:           func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.plugins.WithTimeout(d)
	}
}

// WithVerifier sets the verifier HandleWebhook authenticates deliveries with.
func WithVerifier(v event.Verifier) Option {
	return func(l *Ledger) {
		l.verifier = v
	}
}

// WithSubscriptionResolver sets the lookup used to recover the user key of
// invoice events from their subscription's metadata.
func WithSubscriptionResolver(r event.SubscriptionResolver) Option {
	return func(l *Ledger) {
		l.resolver = r
	}
}

// WithDebitCost sets the credits one Debit call consumes.
func WithDebitCost(cost int64) Option {
	return func(l *Ledger) {
		if cost > 0 {
			l.debitCost = cost
		}
	}
}

// WithFailurePolicy sets what a failed invoice payment does to the ledger.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(l *Ledger) {
		if p != "" {
			l.failurePolicy = p
		}
	}
}

// WithClock sets the time source for updated_at and receipts.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithoutMigrate makes Start leave the schema alone.
func WithoutMigrate() Option {
	return func(l *Ledger) {
		l.skipMigrate = true
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if !l.skipMigrate {
		if err := l.store.Migrate(ctx); err != nil {
			return err
		}
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("credits ledger started",
		"debit_cost", l.debitCost,
		"failure_policy", l.failurePolicy,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (l *Ledger) Stop() error {
	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// DebitCost returns the configured cost of one Debit.
func (l *Ledger) DebitCost() int64 { return l.debitCost }

// Ping checks the store.
func (l *Ledger) Ping(ctx context.Context) error { return l.store.Ping(ctx) }

// ──────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────

// Outcome is how a delivery was handled.
type Outcome string

const (
	// OutcomeApplied means the event mutated the ledger.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored means the event was understood but required no write.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDuplicate means the delivery was already reconciled.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeDropped means the event could not be attributed to a user.
	OutcomeDropped Outcome = "dropped"
	// OutcomeFailed means the store or a collaborator failed.
	OutcomeFailed Outcome = "failed"
)

// Result describes one reconciled delivery.
type Result struct {
	EventID   string
	EventType event.Kind
	Outcome   Outcome
	UserKey   string
	Account   *account.Account
	Reason    string
}

// HandleWebhook authenticates a raw delivery and reconciles it.
//
// A signature failure returns ErrInvalidSignature before the store is
// touched. Every other error is reported in the Result and should still be
// acknowledged to the processor.
func (l *Ledger) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*Result, error) {
	if l.verifier == nil {
		return nil, fmt.Errorf("%w: webhook verifier", ErrMissingConfiguration)
	}

	evt, err := l.verifier.Verify(payload, signatureHeader)
	switch {
	case errors.Is(err, ErrInvalidSignature):
		l.logger.Warn("webhook signature rejected", "error", err)
		return nil, err
	case err != nil:
		l.logger.Warn("webhook payload rejected", "error", err)
		res := &Result{Outcome: OutcomeDropped, Reason: err.Error()}
		if evt != nil {
			meta := evt.Header()
			res.EventID, res.EventType = meta.ID, meta.Type
			l.plugins.EmitEventIgnored(ctx, meta, res.Reason)
		}
		return res, nil
	}

	return l.Reconcile(ctx, evt)
}

// Reconcile applies a verified event to the ledger.
//
// The returned error is non-nil only for OutcomeFailed. Redelivered events
// are recognized by their receipt and skipped.
func (l *Ledger) Reconcile(ctx context.Context, evt event.Event) (*Result, error) {
	meta := evt.Header()
	res := &Result{EventID: meta.ID, EventType: meta.Type}

	l.plugins.EmitWebhookReceived(ctx, meta)

	if meta.ID != "" {
		seen, err := l.store.HasReceipt(ctx, meta.Provider, meta.ID)
		if err != nil {
			return l.fail(ctx, res, meta, fmt.Errorf("check receipt: %w", err))
		}
		if seen {
			res.Outcome = OutcomeDuplicate
			res.Reason = "already reconciled"
			l.logger.Info("webhook duplicate skipped", "event_id", meta.ID, "type", meta.Type)
			return res, nil
		}
	}

	evt, err := l.resolveIdentity(ctx, evt)
	if err != nil {
		return l.fail(ctx, res, meta, err)
	}
	res.UserKey = userKeyOf(evt)

	var current *account.Account
	if res.UserKey != "" {
		current, err = l.store.GetAccount(ctx, res.UserKey)
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return l.fail(ctx, res, meta, fmt.Errorf("load account: %w", err))
		}
	}

	m, err := Transition(evt, current, l.now(), l.failurePolicy)
	if errors.Is(err, ErrUnresolvedIdentity) {
		res.Outcome = OutcomeDropped
		res.Reason = err.Error()
		l.logger.Warn("webhook dropped", "event_id", meta.ID, "type", meta.Type, "reason", res.Reason)
		l.plugins.EmitEventIgnored(ctx, meta, res.Reason)
		l.recordReceipt(ctx, meta, res)
		return res, nil
	}
	if err != nil {
		return l.fail(ctx, res, meta, err)
	}

	switch m.Kind {
	case MutationUpsert:
		res.Account, err = l.store.UpsertAccount(ctx, m.Row)
	case MutationUpdate:
		res.Account, err = l.store.UpdateAccount(ctx, m.UserKey, m.Patch)
		if errors.Is(err, ErrAccountNotFound) {
			m = Mutation{Kind: MutationNone, UserKey: m.UserKey, Reason: reasonAccountNotFound}
			err = nil
		}
	}
	if err != nil {
		return l.fail(ctx, res, meta, fmt.Errorf("apply %s: %w", m.Kind, err))
	}

	if m.Kind == MutationNone {
		res.Outcome = OutcomeIgnored
		res.Reason = m.Reason
		l.logger.Info("webhook acknowledged without change",
			"event_id", meta.ID,
			"type", meta.Type,
			"user_key", res.UserKey,
			"reason", m.Reason,
		)
	} else {
		res.Outcome = OutcomeApplied
		l.logger.Info("webhook applied",
			"event_id", meta.ID,
			"type", meta.Type,
			"user_key", res.UserKey,
			"mutation", m.Kind.String(),
		)
	}

	l.recordReceipt(ctx, meta, res)
	l.emitOutcome(ctx, evt, res)

	return res, nil
}

// resolveIdentity fills the user key of events that do not carry one.
func (l *Ledger) resolveIdentity(ctx context.Context, evt event.Event) (event.Event, error) {
	switch e := evt.(type) {
	case event.CheckoutCompleted:
		if e.UserKey != "" || e.Email == "" {
			return e, nil
		}
		a, err := l.store.GetAccountByEmail(ctx, e.Email)
		if errors.Is(err, ErrAccountNotFound) {
			return e, nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolve email: %w", err)
		}
		e.UserKey = a.UserKey
		return e, nil

	case event.InvoicePaid:
		if e.SubscriptionID == "" || (e.UserKey != "" && e.SubscriptionStatus != "") {
			return e, nil
		}
		sub, err := l.subscription(ctx, e.SubscriptionID)
		if err != nil || sub == nil {
			return e, err
		}
		e.UserKey = firstNonEmpty(e.UserKey, sub.UserKey)
		e.Plan = firstNonEmpty(e.Plan, sub.Plan)
		e.SubscriptionStatus = firstNonEmpty(e.SubscriptionStatus, sub.Status)
		e.CustomerID = firstNonEmpty(e.CustomerID, sub.CustomerID)
		return e, nil

	case event.InvoicePaymentFailed:
		if e.SubscriptionID == "" || e.UserKey != "" {
			return e, nil
		}
		sub, err := l.subscription(ctx, e.SubscriptionID)
		if err != nil || sub == nil {
			return e, err
		}
		e.UserKey = sub.UserKey
		return e, nil

	case event.SubscriptionCanceled:
		if e.SubscriptionID == "" || e.UserKey != "" {
			return e, nil
		}
		sub, err := l.subscription(ctx, e.SubscriptionID)
		if err != nil || sub == nil {
			return e, err
		}
		e.UserKey = sub.UserKey
		return e, nil
	}
	return evt, nil
}

func (l *Ledger) subscription(ctx context.Context, subscriptionID string) (*event.Subscription, error) {
	if l.resolver == nil {
		return nil, nil
	}
	sub, err := l.resolver.ResolveSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("resolve subscription %s: %w", subscriptionID, err)
	}
	return sub, nil
}

func (l *Ledger) emitOutcome(ctx context.Context, evt event.Event, res *Result) {
	meta := evt.Header()
	if failed, ok := evt.(event.InvoicePaymentFailed); ok {
		l.plugins.EmitPaymentFailed(ctx, failed, res.Account)
		return
	}
	if res.Outcome != OutcomeApplied {
		l.plugins.EmitEventIgnored(ctx, meta, res.Reason)
		return
	}

	switch evt.(type) {
	case event.CheckoutCompleted:
		l.plugins.EmitAccountActivated(ctx, res.Account)
	case event.InvoicePaid:
		l.plugins.EmitCreditsReset(ctx, res.Account)
	case event.SubscriptionCanceled:
		l.plugins.EmitSubscriptionCanceled(ctx, res.Account)
	}
}

func (l *Ledger) fail(ctx context.Context, res *Result, meta event.Meta, err error) (*Result, error) {
	res.Outcome = OutcomeFailed
	res.Reason = err.Error()

	l.logger.Error("webhook reconciliation failed",
		"event_id", meta.ID,
		"type", meta.Type,
		"user_key", res.UserKey,
		"error", err,
	)
	l.plugins.EmitReconcileFailed(ctx, meta, err)

	return res, err
}

func (l *Ledger) recordReceipt(ctx context.Context, meta event.Meta, res *Result) {
	if meta.ID == "" {
		return
	}
	r := &receipt.Receipt{
		ID:          id.NewReceiptID(),
		Provider:    meta.Provider,
		EventID:     meta.ID,
		EventType:   string(meta.Type),
		UserKey:     res.UserKey,
		Outcome:     string(res.Outcome),
		ProcessedAt: l.now(),
	}
	if err := l.store.RecordReceipt(ctx, r); err != nil {
		l.logger.Warn("failed to record webhook receipt",
			"event_id", meta.ID,
			"error", err,
		)
	}
}

func userKeyOf(evt event.Event) string {
	switch e := evt.(type) {
	case event.CheckoutCompleted:
		return e.UserKey
	case event.InvoicePaid:
		return e.UserKey
	case event.InvoicePaymentFailed:
		return e.UserKey
	case event.SubscriptionCanceled:
		return e.UserKey
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
