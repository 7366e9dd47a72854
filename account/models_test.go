package account_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/plan"
)

func TestStatusFromProvider(t *testing.T) {
	tests := []struct {
		in   string
		want account.Status
	}{
		{"active", account.StatusActive},
		{"trialing", account.StatusActive},
		{"", account.StatusActive},
		{"past_due", account.StatusPastDue},
		{"unpaid", account.StatusPastDue},
		{"canceled", account.StatusCanceled},
		{"incomplete_expired", account.StatusCanceled},
		{"incomplete", account.StatusInactive},
		{"paused", account.StatusInactive},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := account.StatusFromProvider(tt.in); got != tt.want {
				t.Errorf("StatusFromProvider(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []account.Status{account.StatusInactive, account.StatusActive, account.StatusPastDue, account.StatusCanceled} {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if account.Status("trialing").IsValid() {
		t.Error("processor statuses are not ledger statuses")
	}
}

func TestImplicit(t *testing.T) {
	a := account.Implicit("user_1")
	if a.Plan != plan.Free || a.RemainingCredits != 0 || a.MonthlyCredits != 0 {
		t.Errorf("implicit row should be free with zero credits, got %+v", a)
	}
	if a.Status != account.StatusInactive {
		t.Errorf("implicit status = %q", a.Status)
	}
	if a.CanAfford(1) {
		t.Error("implicit row cannot afford anything")
	}
}

func TestClone(t *testing.T) {
	a := &account.Account{UserKey: "u", RemainingCredits: 4}
	c := a.Clone()
	c.RemainingCredits = 0
	if a.RemainingCredits != 4 {
		t.Error("clone aliases original")
	}

	var nilAccount *account.Account
	if nilAccount.Clone() != nil {
		t.Error("clone of nil should be nil")
	}
}

func TestPatchApply(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	free := plan.Free
	zero := int64(0)
	canceled := account.StatusCanceled

	a := &account.Account{
		UserKey:          "u",
		Email:            "u@example.com",
		Plan:             plan.Pro,
		MonthlyCredits:   30,
		UsedCredits:      12,
		RemainingCredits: 18,
		Status:           account.StatusActive,
		SubscriptionID:   "sub_1",
	}

	account.Patch{
		Plan:             &free,
		MonthlyCredits:   &zero,
		RemainingCredits: &zero,
		Status:           &canceled,
		UpdatedAt:        now,
	}.Apply(a)

	if a.Plan != plan.Free || a.MonthlyCredits != 0 || a.RemainingCredits != 0 || a.Status != account.StatusCanceled {
		t.Errorf("patch not applied: %+v", a)
	}
	if a.UsedCredits != 12 {
		t.Errorf("used credits changed to %d", a.UsedCredits)
	}
	if a.Email != "u@example.com" || a.SubscriptionID != "sub_1" {
		t.Errorf("untouched fields changed: %+v", a)
	}
	if !a.UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v", a.UpdatedAt)
	}
}

func TestPatchFieldsAndValues(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	status := account.StatusPastDue
	p := account.Patch{Status: &status, UpdatedAt: now}

	if got, want := p.Fields(), []string{"subscription_status", "updated_at"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
	if got, want := p.Values(), []any{"past_due", now}; !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
	if p.IsEmpty() {
		t.Error("patch with status is not empty")
	}
	if !(account.Patch{UpdatedAt: now}).IsEmpty() {
		t.Error("timestamp-only patch should be empty")
	}
}
