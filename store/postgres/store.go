package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the postgres migration executor
	"github.com/xraph/grove/migrate"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/receipt"
	creditstore "github.com/xraph/credits/store"
)

// compile-time interface check
var _ creditstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("credits/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: credits/postgres: %w", credits.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, userKey string) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("user_key = $1", userKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/postgres: get account: %w", err)
	}
	return fromAccountModel(m), nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*account.Account, error) {
	if email == "" {
		return nil, credits.ErrAccountNotFound
	}
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("email = $1", email).
		OrderExpr("updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/postgres: get account by email: %w", err)
	}
	return fromAccountModel(m), nil
}

func (s *Store) UpsertAccount(ctx context.Context, a *account.Account) (*account.Account, error) {
	m := toAccountModel(a)
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}

	_, err := s.pg.NewInsert(m).
		OnConflict("(user_key) DO UPDATE").
		Set("email = COALESCE(NULLIF(EXCLUDED.email, ''), credit_accounts.email)").
		Set("plan = EXCLUDED.plan").
		Set("monthly_credits = EXCLUDED.monthly_credits").
		Set("used_credits = EXCLUDED.used_credits").
		Set("remaining_credits = EXCLUDED.remaining_credits").
		Set("subscription_status = EXCLUDED.subscription_status").
		Set("processor_customer_id = EXCLUDED.processor_customer_id").
		Set("processor_subscription_id = EXCLUDED.processor_subscription_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/postgres: upsert account: %w", err)
	}
	return s.GetAccount(ctx, a.UserKey)
}

func (s *Store) UpdateAccount(ctx context.Context, userKey string, p account.Patch) (*account.Account, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now()
	}

	q := s.pg.NewUpdate((*accountModel)(nil))
	values := p.Values()
	for i, field := range p.Fields() {
		q = q.Set(fmt.Sprintf("%s = $%d", field, i+1), values[i])
	}
	res, err := q.Where(fmt.Sprintf("user_key = $%d", len(values)+1), userKey).Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/postgres: update account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("credits/postgres: update account: %w", err)
	}
	if rows == 0 {
		return nil, credits.ErrAccountNotFound
	}
	return s.GetAccount(ctx, userKey)
}

// DebitCredits runs the sufficiency check and the decrement as one statement.
func (s *Store) DebitCredits(ctx context.Context, userKey string, amount int64) (int64, error) {
	var remaining int64
	err := s.pg.NewRaw(`
		UPDATE credit_accounts
		SET remaining_credits = remaining_credits - $1,
		    used_credits = used_credits + $1,
		    updated_at = $2
		WHERE user_key = $3 AND remaining_credits >= $1
		RETURNING remaining_credits
	`, amount, now(), userKey).Scan(ctx, &remaining)
	if err == nil {
		return remaining, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("credits/postgres: debit credits: %w", err)
	}

	a, err := s.GetAccount(ctx, userKey)
	if err != nil {
		return 0, err
	}
	return 0, &credits.InsufficientCreditsError{Remaining: a.RemainingCredits, Required: amount}
}

// ==================== Receipt Store ====================

func (s *Store) HasReceipt(ctx context.Context, provider, eventID string) (bool, error) {
	var n int64
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM credit_receipts
		WHERE provider = $1 AND event_id = $2
	`, provider, eventID).Scan(ctx, &n)
	if err != nil {
		return false, fmt.Errorf("credits/postgres: has receipt: %w", err)
	}
	return n > 0, nil
}

func (s *Store) RecordReceipt(ctx context.Context, r *receipt.Receipt) error {
	m := toReceiptModel(r)
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = now()
	}
	_, err := s.pg.NewInsert(m).
		OnConflict("(provider, event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/postgres: record receipt: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
