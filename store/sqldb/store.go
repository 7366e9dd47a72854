// Package sqldb implements store.Store on database/sql against PostgreSQL.
//
// It speaks plain SQL through lib/pq so it can run against any hosted
// Postgres without the grove ORM, and every ledger write is a single
// statement.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // postgres driver

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/receipt"
	creditstore "github.com/xraph/credits/store"
)

// compile-time interface check
var _ creditstore.Store = (*Store)(nil)

const accountColumns = `user_key, email, plan, monthly_credits, used_credits, remaining_credits,
	subscription_status, processor_customer_id, processor_subscription_id, created_at, updated_at`

// Store implements store.Store on a *sql.DB.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for updated_at on debits and defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an open database handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn with the postgres driver and checks the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("credits/sqldb: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: credits/sqldb: %w", credits.ErrStoreNotReady, err)
	}
	return New(db, opts...), nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: credits/sqldb: %w", credits.ErrMigrationFailed, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, userKey string) (*account.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM credit_accounts WHERE user_key = $1`, userKey)
	a, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/sqldb: get account: %w", err)
	}
	return a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*account.Account, error) {
	if email == "" {
		return nil, credits.ErrAccountNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM credit_accounts WHERE email = $1 ORDER BY updated_at DESC LIMIT 1`, email)
	a, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/sqldb: get account by email: %w", err)
	}
	return a, nil
}

func (s *Store) UpsertAccount(ctx context.Context, a *account.Account) (*account.Account, error) {
	updatedAt := a.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO credit_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_key) DO UPDATE SET
			email = COALESCE(NULLIF(EXCLUDED.email, ''), credit_accounts.email),
			plan = EXCLUDED.plan,
			monthly_credits = EXCLUDED.monthly_credits,
			used_credits = EXCLUDED.used_credits,
			remaining_credits = EXCLUDED.remaining_credits,
			subscription_status = EXCLUDED.subscription_status,
			processor_customer_id = EXCLUDED.processor_customer_id,
			processor_subscription_id = EXCLUDED.processor_subscription_id,
			updated_at = EXCLUDED.updated_at
		RETURNING `+accountColumns,
		a.UserKey, a.Email, string(a.Plan), a.MonthlyCredits, a.UsedCredits, a.RemainingCredits,
		string(a.Status), a.CustomerID, a.SubscriptionID, createdAt, updatedAt,
	)
	out, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("credits/sqldb: upsert account: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateAccount(ctx context.Context, userKey string, p account.Patch) (*account.Account, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}

	fields := p.Fields()
	args := p.Values()
	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = fmt.Sprintf("%s = $%d", f, i+1)
	}
	args = append(args, userKey)

	query := fmt.Sprintf(`UPDATE credit_accounts SET %s WHERE user_key = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), accountColumns)

	a, err := scanAccount(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/sqldb: update account: %w", err)
	}
	return a, nil
}

// DebitCredits runs the sufficiency check and the decrement as one statement.
// Zero affected rows means the user is missing or cannot afford amount; a
// follow-up read tells the two apart.
func (s *Store) DebitCredits(ctx context.Context, userKey string, amount int64) (int64, error) {
	var remaining int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE credit_accounts
		SET remaining_credits = remaining_credits - $1,
		    used_credits = used_credits + $1,
		    updated_at = $2
		WHERE user_key = $3 AND remaining_credits >= $1
		RETURNING remaining_credits`,
		amount, s.now(), userKey,
	).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("credits/sqldb: debit credits: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT remaining_credits FROM credit_accounts WHERE user_key = $1`, userKey,
	).Scan(&remaining)
	if err != nil {
		if isNoRows(err) {
			return 0, credits.ErrAccountNotFound
		}
		return 0, fmt.Errorf("credits/sqldb: debit credits: %w", err)
	}
	return 0, &credits.InsufficientCreditsError{Remaining: remaining, Required: amount}
}

// ==================== Receipt Store ====================

func (s *Store) HasReceipt(ctx context.Context, provider, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM credit_receipts WHERE provider = $1 AND event_id = $2)`,
		provider, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("credits/sqldb: has receipt: %w", err)
	}
	return exists, nil
}

func (s *Store) RecordReceipt(ctx context.Context, r *receipt.Receipt) error {
	rid := r.ID
	if rid.IsNil() {
		rid = id.NewReceiptID()
	}
	processedAt := r.ProcessedAt
	if processedAt.IsZero() {
		processedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_receipts (id, provider, event_id, event_type, user_key, outcome, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, event_id) DO NOTHING`,
		rid.String(), r.Provider, r.EventID, r.EventType, r.UserKey, r.Outcome, processedAt,
	)
	if err != nil {
		return fmt.Errorf("credits/sqldb: record receipt: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var (
		a      account.Account
		planID string
		status string
	)
	err := row.Scan(
		&a.UserKey, &a.Email, &planID, &a.MonthlyCredits, &a.UsedCredits, &a.RemainingCredits,
		&status, &a.CustomerID, &a.SubscriptionID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Plan = plan.Plan(planID)
	a.Status = account.Status(status)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
