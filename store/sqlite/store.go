package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
	"github.com/xraph/grove/migrate"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/receipt"
	creditstore "github.com/xraph/credits/store"
)

// compile-time interface check
var _ creditstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("credits/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: credits/sqlite: %w", credits.ErrMigrationFailed, err)
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
	err := s.sdb.NewSelect(m).
		Where("user_key = ?", userKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/sqlite: get account: %w", err)
	}
	return fromAccountModel(m), nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*account.Account, error) {
	if email == "" {
		return nil, credits.ErrAccountNotFound
	}
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("email = ?", email).
		OrderExpr("updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/sqlite: get account by email: %w", err)
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

	_, err := s.sdb.NewInsert(m).
		OnConflict("(user_key) DO UPDATE").
		Set("email = COALESCE(NULLIF(excluded.email, ''), credit_accounts.email)").
		Set("plan = excluded.plan").
		Set("monthly_credits = excluded.monthly_credits").
		Set("used_credits = excluded.used_credits").
		Set("remaining_credits = excluded.remaining_credits").
		Set("subscription_status = excluded.subscription_status").
		Set("processor_customer_id = excluded.processor_customer_id").
		Set("processor_subscription_id = excluded.processor_subscription_id").
		Set("updated_at = excluded.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/sqlite: upsert account: %w", err)
	}
	return s.GetAccount(ctx, a.UserKey)
}

func (s *Store) UpdateAccount(ctx context.Context, userKey string, p account.Patch) (*account.Account, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now()
	}

	q := s.sdb.NewUpdate((*accountModel)(nil))
	values := p.Values()
	for i, field := range p.Fields() {
		q = q.Set(field+" = ?", values[i])
	}
	res, err := q.Where("user_key = ?", userKey).Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/sqlite: update account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("credits/sqlite: update account: %w", err)
	}
	if rows == 0 {
		return nil, credits.ErrAccountNotFound
	}
	return s.GetAccount(ctx, userKey)
}

// DebitCredits runs the sufficiency check and the decrement as one statement.
// SQLite serializes writers, so the guarded UPDATE cannot interleave.
func (s *Store) DebitCredits(ctx context.Context, userKey string, amount int64) (int64, error) {
	var remaining int64
	err := s.sdb.NewRaw(`
		UPDATE credit_accounts
		SET remaining_credits = remaining_credits - ?,
		    used_credits = used_credits + ?,
		    updated_at = ?
		WHERE user_key = ? AND remaining_credits >= ?
		RETURNING remaining_credits
	`, amount, amount, now(), userKey, amount).Scan(ctx, &remaining)
	if err == nil {
		return remaining, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("credits/sqlite: debit credits: %w", err)
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
	err := s.sdb.NewRaw(`SELECT COUNT(*) FROM credit_receipts WHERE provider = ? AND event_id = ?`,
		provider, eventID).Scan(ctx, &n)
	if err != nil {
		return false, fmt.Errorf("credits/sqlite: has receipt: %w", err)
	}
	return n > 0, nil
}

func (s *Store) RecordReceipt(ctx context.Context, r *receipt.Receipt) error {
	m := toReceiptModel(r)
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = now()
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(provider, event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/sqlite: record receipt: %w", err)
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
