package account

import (
	"time"

	"github.com/xraph/credits/plan"
)

// Patch is a partial update applied by user key. Nil fields are left alone.
type Patch struct {
	Email            *string
	Plan             *plan.Plan
	MonthlyCredits   *int64
	UsedCredits      *int64
	RemainingCredits *int64
	Status           *Status
	CustomerID       *string
	SubscriptionID   *string
	UpdatedAt        time.Time
}

// IsEmpty reports whether the patch changes no ledger field.
func (p Patch) IsEmpty() bool {
	return p.Email == nil && p.Plan == nil &&
		p.MonthlyCredits == nil && p.UsedCredits == nil && p.RemainingCredits == nil &&
		p.Status == nil && p.CustomerID == nil && p.SubscriptionID == nil
}

// Apply writes the patch onto a. UpdatedAt is always refreshed when set.
func (p Patch) Apply(a *Account) {
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.Plan != nil {
		a.Plan = *p.Plan
	}
	if p.MonthlyCredits != nil {
		a.MonthlyCredits = *p.MonthlyCredits
	}
	if p.UsedCredits != nil {
		a.UsedCredits = *p.UsedCredits
	}
	if p.RemainingCredits != nil {
		a.RemainingCredits = *p.RemainingCredits
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.CustomerID != nil {
		a.CustomerID = *p.CustomerID
	}
	if p.SubscriptionID != nil {
		a.SubscriptionID = *p.SubscriptionID
	}
	if !p.UpdatedAt.IsZero() {
		a.UpdatedAt = p.UpdatedAt
	}
}

// Fields returns the column names the patch touches, in a stable order.
// updated_at is included whenever UpdatedAt is set.
func (p Patch) Fields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.Email != nil, "email")
	add(p.Plan != nil, "plan")
	add(p.MonthlyCredits != nil, "monthly_credits")
	add(p.UsedCredits != nil, "used_credits")
	add(p.RemainingCredits != nil, "remaining_credits")
	add(p.Status != nil, "subscription_status")
	add(p.CustomerID != nil, "processor_customer_id")
	add(p.SubscriptionID != nil, "processor_subscription_id")
	add(!p.UpdatedAt.IsZero(), "updated_at")
	return out
}

// Values returns the column values in the same order as Fields.
func (p Patch) Values() []any {
	var out []any
	if p.Email != nil {
		out = append(out, *p.Email)
	}
	if p.Plan != nil {
		out = append(out, string(*p.Plan))
	}
	if p.MonthlyCredits != nil {
		out = append(out, *p.MonthlyCredits)
	}
	if p.UsedCredits != nil {
		out = append(out, *p.UsedCredits)
	}
	if p.RemainingCredits != nil {
		out = append(out, *p.RemainingCredits)
	}
	if p.Status != nil {
		out = append(out, string(*p.Status))
	}
	if p.CustomerID != nil {
		out = append(out, *p.CustomerID)
	}
	if p.SubscriptionID != nil {
		out = append(out, *p.SubscriptionID)
	}
	if !p.UpdatedAt.IsZero() {
		out = append(out, p.UpdatedAt)
	}
	return out
}
