package credits

import (
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/event"
	"github.com/xraph/credits/plan"
)

// MutationKind says how a Mutation is written to the store.
type MutationKind int

const (
	// MutationNone leaves the ledger untouched.
	MutationNone MutationKind = iota
	// MutationUpsert inserts or replaces the row keyed by UserKey.
	MutationUpsert
	// MutationUpdate patches an existing row by UserKey.
	MutationUpdate
)

func (k MutationKind) String() string {
	switch k {
	case MutationUpsert:
		return "upsert"
	case MutationUpdate:
		return "update"
	default:
		return "none"
	}
}

// Mutation is the ledger write an event produces.
type Mutation struct {
	Kind    MutationKind
	UserKey string

	// Row is set for MutationUpsert.
	Row *account.Account
	// Patch is set for MutationUpdate.
	Patch account.Patch

	// Reason explains a MutationNone.
	Reason string
}

// FailurePolicy decides what a failed invoice payment does to the ledger.
type FailurePolicy string

const (
	// FailurePolicyLogOnly acknowledges the failure without a mutation.
	FailurePolicyLogOnly FailurePolicy = "log_only"
	// FailurePolicyMarkPastDue flags the row past_due and keeps its credits.
	FailurePolicyMarkPastDue FailurePolicy = "mark_past_due"
)

// ParseFailurePolicy accepts the two policy names. "" is LogOnly.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailurePolicyLogOnly:
		return FailurePolicyLogOnly, nil
	case FailurePolicyMarkPastDue:
		return FailurePolicyMarkPastDue, nil
	default:
		return "", ValidationError{Field: "failure_policy", Message: fmt.Sprintf("unknown policy %q", s)}
	}
}

const (
	reasonUnhandledKind   = "unhandled event kind"
	reasonAccountNotFound = "account not found"
	reasonLogOnly         = "payment failure policy is log only"
)

// Transition maps a verified event and the user's current row onto the
// ledger write it implies. current is nil when the user has no row.
//
// Every period start derives remaining credits from the plan catalog and
// never from the current balance. The function is pure: the same inputs
// always produce the same mutation.
func Transition(evt event.Event, current *account.Account, now time.Time, policy FailurePolicy) (Mutation, error) {
	switch e := evt.(type) {
	case event.CheckoutCompleted:
		return checkoutCompleted(e, current, now)
	case event.InvoicePaid:
		return invoicePaid(e, current, now)
	case event.SubscriptionCanceled:
		return subscriptionCanceled(e, current, now)
	case event.InvoicePaymentFailed:
		return paymentFailed(e, current, now, policy)
	case event.Other:
		return Mutation{Kind: MutationNone, Reason: reasonUnhandledKind}, nil
	default:
		return Mutation{Kind: MutationNone, Reason: reasonUnhandledKind}, nil
	}
}

func checkoutCompleted(e event.CheckoutCompleted, current *account.Account, now time.Time) (Mutation, error) {
	if e.UserKey == "" {
		return Mutation{}, ErrUnresolvedIdentity
	}

	p := plan.Normalize(e.Plan)
	monthly := p.Credits()
	row := &account.Account{
		UserKey:          e.UserKey,
		Email:            e.Email,
		Plan:             p,
		MonthlyCredits:   monthly,
		UsedCredits:      0,
		RemainingCredits: monthly,
		Status:           account.StatusActive,
		CustomerID:       e.CustomerID,
		SubscriptionID:   e.SubscriptionID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if current != nil {
		row.CreatedAt = current.CreatedAt
		if row.Email == "" {
			row.Email = current.Email
		}
	}

	return Mutation{Kind: MutationUpsert, UserKey: e.UserKey, Row: row}, nil
}

func invoicePaid(e event.InvoicePaid, current *account.Account, now time.Time) (Mutation, error) {
	if e.UserKey == "" {
		return Mutation{}, ErrUnresolvedIdentity
	}
	if current == nil {
		return Mutation{Kind: MutationNone, UserKey: e.UserKey, Reason: reasonAccountNotFound}, nil
	}

	// The subscription's metadata is authoritative. Fall back to the stored
	// plan when the renewal does not name one.
	p := current.Plan
	if e.Plan != "" {
		p = plan.Normalize(e.Plan)
	}
	monthly := p.Credits()
	status := account.StatusFromProvider(e.SubscriptionStatus)

	patch := account.Patch{
		Plan:             &p,
		MonthlyCredits:   &monthly,
		UsedCredits:      ptr(int64(0)),
		RemainingCredits: &monthly,
		Status:           &status,
		UpdatedAt:        now,
	}
	if e.CustomerID != "" {
		patch.CustomerID = ptr(e.CustomerID)
	}
	if e.SubscriptionID != "" {
		patch.SubscriptionID = ptr(e.SubscriptionID)
	}

	return Mutation{Kind: MutationUpdate, UserKey: e.UserKey, Patch: patch}, nil
}

func subscriptionCanceled(e event.SubscriptionCanceled, current *account.Account, now time.Time) (Mutation, error) {
	if e.UserKey == "" {
		return Mutation{}, ErrUnresolvedIdentity
	}
	if current == nil {
		return Mutation{Kind: MutationNone, UserKey: e.UserKey, Reason: reasonAccountNotFound}, nil
	}

	free := plan.Free
	status := account.StatusCanceled
	return Mutation{
		Kind:    MutationUpdate,
		UserKey: e.UserKey,
		Patch: account.Patch{
			Plan:             &free,
			MonthlyCredits:   ptr(int64(0)),
			RemainingCredits: ptr(int64(0)),
			Status:           &status,
			UpdatedAt:        now,
		},
	}, nil
}

func paymentFailed(e event.InvoicePaymentFailed, current *account.Account, now time.Time, policy FailurePolicy) (Mutation, error) {
	if policy != FailurePolicyMarkPastDue {
		return Mutation{Kind: MutationNone, UserKey: e.UserKey, Reason: reasonLogOnly}, nil
	}
	if e.UserKey == "" {
		return Mutation{}, ErrUnresolvedIdentity
	}
	if current == nil {
		return Mutation{Kind: MutationNone, UserKey: e.UserKey, Reason: reasonAccountNotFound}, nil
	}

	status := account.StatusPastDue
	return Mutation{
		Kind:    MutationUpdate,
		UserKey: e.UserKey,
		Patch:   account.Patch{Status: &status, UpdatedAt: now},
	}, nil
}

func ptr[T any](v T) *T { return &v }
