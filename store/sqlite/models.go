package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/receipt"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:credit_accounts"`

	UserKey                 string    `grove:"user_key,pk"`
	Email                   string    `grove:"email"`
	Plan                    string    `grove:"plan"`
	MonthlyCredits          int64     `grove:"monthly_credits"`
	UsedCredits             int64     `grove:"used_credits"`
	RemainingCredits        int64     `grove:"remaining_credits"`
	SubscriptionStatus      string    `grove:"subscription_status"`
	ProcessorCustomerID     string    `grove:"processor_customer_id"`
	ProcessorSubscriptionID string    `grove:"processor_subscription_id"`
	CreatedAt               time.Time `grove:"created_at"`
	UpdatedAt               time.Time `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		UserKey:                 a.UserKey,
		Email:                   a.Email,
		Plan:                    string(a.Plan),
		MonthlyCredits:          a.MonthlyCredits,
		UsedCredits:             a.UsedCredits,
		RemainingCredits:        a.RemainingCredits,
		SubscriptionStatus:      string(a.Status),
		ProcessorCustomerID:     a.CustomerID,
		ProcessorSubscriptionID: a.SubscriptionID,
		CreatedAt:               a.CreatedAt,
		UpdatedAt:               a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		UserKey:          m.UserKey,
		Email:            m.Email,
		Plan:             plan.Plan(m.Plan),
		MonthlyCredits:   m.MonthlyCredits,
		UsedCredits:      m.UsedCredits,
		RemainingCredits: m.RemainingCredits,
		Status:           account.Status(m.SubscriptionStatus),
		CustomerID:       m.ProcessorCustomerID,
		SubscriptionID:   m.ProcessorSubscriptionID,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
}

// ==================== Receipt models ====================

type receiptModel struct {
	grove.BaseModel `grove:"table:credit_receipts"`

	ID          string    `grove:"id,pk"`
	Provider    string    `grove:"provider"`
	EventID     string    `grove:"event_id"`
	EventType   string    `grove:"event_type"`
	UserKey     string    `grove:"user_key"`
	Outcome     string    `grove:"outcome"`
	ProcessedAt time.Time `grove:"processed_at"`
}

func toReceiptModel(r *receipt.Receipt) *receiptModel {
	rid := r.ID
	if rid.IsNil() {
		rid = id.NewReceiptID()
	}
	return &receiptModel{
		ID:          rid.String(),
		Provider:    r.Provider,
		EventID:     r.EventID,
		EventType:   r.EventType,
		UserKey:     r.UserKey,
		Outcome:     r.Outcome,
		ProcessedAt: r.ProcessedAt,
	}
}
