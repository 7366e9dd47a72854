package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
)

// Debit is a completed credit deduction.
type Debit struct {
	ID        id.DebitID `json:"id"`
	UserKey   string     `json:"user_key"`
	Deducted  int64      `json:"deducted"`
	Remaining int64      `json:"remaining"`
	At        time.Time  `json:"at"`
}

// Debit deducts the configured cost from the user's balance.
func (l *Ledger) Debit(ctx context.Context, userKey string) (*Debit, error) {
	return l.DebitAmount(ctx, userKey, l.debitCost)
}

// DebitAmount atomically deducts cost from the user's balance.
//
// It fails with ErrAccountNotFound when the user never checked out, and with
// an *InsufficientCreditsError carrying the current balance when remaining
// credits do not cover cost. Neither failure mutates the row.
func (l *Ledger) DebitAmount(ctx context.Context, userKey string, cost int64) (*Debit, error) {
	if userKey == "" {
		return nil, ValidationError{Field: "user_key", Message: "required"}
	}
	if cost <= 0 {
		return nil, ValidationError{Field: "cost", Message: fmt.Sprintf("must be positive, got %d", cost)}
	}

	remaining, err := l.store.DebitCredits(ctx, userKey, cost)
	if err != nil {
		if ie, ok := Insufficient(err); ok {
			l.logger.Info("debit refused",
				"user_key", userKey,
				"required", cost,
				"remaining", ie.Remaining,
			)
			l.plugins.EmitInsufficientCredits(ctx, userKey, cost, ie.Remaining)
		}
		return nil, err
	}

	d := &Debit{
		ID:        id.NewDebitID(),
		UserKey:   userKey,
		Deducted:  cost,
		Remaining: remaining,
		At:        l.now(),
	}

	l.logger.Debug("credits debited",
		"debit_id", d.ID.String(),
		"user_key", userKey,
		"amount", cost,
		"remaining", remaining,
	)
	l.plugins.EmitCreditsDebited(ctx, userKey, cost, remaining)

	return d, nil
}

// Balance returns the user's ledger row, or the implicit free row when the
// user has none.
func (l *Ledger) Balance(ctx context.Context, userKey string) (*account.Account, error) {
	if userKey == "" {
		return nil, ValidationError{Field: "user_key", Message: "required"}
	}
	a, err := l.store.GetAccount(ctx, userKey)
	if IsNotFound(err) {
		return account.Implicit(userKey), nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}
