// Package account defines the per-user credits ledger row.
package account

import (
	"strings"
	"time"

	"github.com/xraph/credits/plan"
)

// Status mirrors the processor's view of the user's subscription.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// StatusFromProvider maps a processor subscription status onto a ledger
// status. An empty status means the caller has no newer information and is
// treated as active.
func StatusFromProvider(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "active", "trialing":
		return StatusActive
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled", "cancelled", "incomplete_expired":
		return StatusCanceled
	default:
		return StatusInactive
	}
}

// Account is the ledger row for one user identity.
type Account struct {
	UserKey          string    `json:"user_key"`
	Email            string    `json:"email,omitempty"`
	Plan             plan.Plan `json:"plan"`
	MonthlyCredits   int64     `json:"monthly_credits"`
	UsedCredits      int64     `json:"used_credits"`
	RemainingCredits int64     `json:"remaining_credits"`
	Status           Status    `json:"subscription_status"`
	CustomerID       string    `json:"processor_customer_id,omitempty"`
	SubscriptionID   string    `json:"processor_subscription_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Implicit is what readers see for a user without a row: the free plan with
// nothing to spend.
func Implicit(userKey string) *Account {
	return &Account{
		UserKey: userKey,
		Plan:    plan.Free,
		Status:  StatusInactive,
	}
}

// Clone returns a copy that can be mutated independently.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// CanAfford reports whether the spendable balance covers cost.
func (a *Account) CanAfford(cost int64) bool {
	return a.RemainingCredits >= cost
}
