package sqldb

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/receipt"
)

var fixedNow = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

var accountCols = []string{
	"user_key", "email", "plan", "monthly_credits", "used_credits", "remaining_credits",
	"subscription_status", "processor_customer_id", "processor_subscription_id", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, WithClock(func() time.Time { return fixedNow })), mock
}

func proRow(remaining int64) *sqlmock.Rows {
	return sqlmock.NewRows(accountCols).AddRow(
		"u1", "u1@example.com", "pro", int64(30), 30-remaining, remaining,
		"active", "cus_1", "sub_1", fixedNow.Add(-time.Hour), fixedNow,
	)
}

func TestGetAccount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM credit_accounts WHERE user_key = \\$1").
		WithArgs("u1").
		WillReturnRows(proRow(18))
	mock.ExpectQuery("FROM credit_accounts WHERE user_key = \\$1").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(accountCols))

	a, err := s.GetAccount(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Plan != plan.Pro || a.RemainingCredits != 18 || a.UsedCredits != 12 || a.Status != account.StatusActive {
		t.Fatalf("unexpected row mapping: %+v", a)
	}

	if _, err := s.GetAccount(context.Background(), "ghost"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpsertAccountReturnsStoredRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO credit_accounts .* ON CONFLICT \\(user_key\\) DO UPDATE").
		WithArgs("u1", "", "pro", int64(30), int64(0), int64(30), "active", "cus_1", "sub_1", fixedNow, fixedNow).
		WillReturnRows(proRow(30))

	a, err := s.UpsertAccount(context.Background(), &account.Account{
		UserKey:          "u1",
		Plan:             plan.Pro,
		MonthlyCredits:   30,
		RemainingCredits: 30,
		Status:           account.StatusActive,
		CustomerID:       "cus_1",
		SubscriptionID:   "sub_1",
		UpdatedAt:        fixedNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Email != "u1@example.com" {
		t.Fatalf("stored email not returned: %q", a.Email)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateAccountBuildsSetClause(t *testing.T) {
	s, mock := newMockStore(t)
	status := account.StatusPastDue

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE credit_accounts SET subscription_status = $1, updated_at = $2 WHERE user_key = $3")).
		WithArgs("past_due", fixedNow, "u1").
		WillReturnRows(proRow(18))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE credit_accounts SET subscription_status = $1, updated_at = $2 WHERE user_key = $3")).
		WithArgs("past_due", fixedNow, "ghost").
		WillReturnRows(sqlmock.NewRows(accountCols))

	if _, err := s.UpdateAccount(context.Background(), "u1", account.Patch{Status: &status}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := s.UpdateAccount(context.Background(), "ghost", account.Patch{Status: &status})
	if !errors.Is(err, credits.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDebitCredits(t *testing.T) {
	const debit = "UPDATE credit_accounts\\s+SET remaining_credits = remaining_credits - \\$1.*WHERE user_key = \\$3 AND remaining_credits >= \\$1"
	const lookup = "SELECT remaining_credits FROM credit_accounts WHERE user_key = \\$1"

	t.Run("success", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(debit).
			WithArgs(int64(2), fixedNow, "u1").
			WillReturnRows(sqlmock.NewRows([]string{"remaining_credits"}).AddRow(int64(0)))

		remaining, err := s.DebitCredits(context.Background(), "u1", 2)
		if err != nil || remaining != 0 {
			t.Fatalf("remaining=%d err=%v", remaining, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("insufficient", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(debit).
			WithArgs(int64(2), fixedNow, "u1").
			WillReturnRows(sqlmock.NewRows([]string{"remaining_credits"}))
		mock.ExpectQuery(lookup).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"remaining_credits"}).AddRow(int64(1)))

		_, err := s.DebitCredits(context.Background(), "u1", 2)
		ie, ok := credits.Insufficient(err)
		if !ok {
			t.Fatalf("expected InsufficientCreditsError, got %v", err)
		}
		if ie.Remaining != 1 || ie.Required != 2 {
			t.Fatalf("unexpected details: %+v", ie)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(debit).
			WithArgs(int64(2), fixedNow, "ghost").
			WillReturnRows(sqlmock.NewRows([]string{"remaining_credits"}))
		mock.ExpectQuery(lookup).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"remaining_credits"}))

		if _, err := s.DebitCredits(context.Background(), "ghost", 2); !errors.Is(err, credits.ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("driver error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(debit).
			WithArgs(int64(2), fixedNow, "u1").
			WillReturnError(errors.New("connection refused"))

		_, err := s.DebitCredits(context.Background(), "u1", 2)
		if err == nil || errors.Is(err, credits.ErrInsufficientCredits) {
			t.Fatalf("expected a store error, got %v", err)
		}
	})
}

func TestReceipts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO credit_receipts .* ON CONFLICT \\(provider, event_id\\) DO NOTHING").
		WithArgs(sqlmock.AnyArg(), "stripe", "evt_1", "invoice.paid", "u1", "applied", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM credit_receipts").
		WithArgs("stripe", "evt_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := s.RecordReceipt(context.Background(), &receipt.Receipt{
		Provider:  "stripe",
		EventID:   "evt_1",
		EventType: "invoice.paid",
		UserKey:   "u1",
		Outcome:   "applied",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen, err := s.HasReceipt(context.Background(), "stripe", "evt_1")
	if err != nil || !seen {
		t.Fatalf("seen=%v err=%v", seen, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}

	s, mock = newMockStore(t)
	mock.ExpectExec("CREATE").WillReturnError(errors.New("permission denied"))
	if err := s.Migrate(context.Background()); !errors.Is(err, credits.ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
}
