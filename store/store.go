// Package store declares the persistence contract of the credits ledger.
//
// Backends live in subpackages: memory for tests and single-process use,
// sqldb for database/sql with lib/pq, and postgres, sqlite and mongo on top of
// grove.
package store

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/receipt"
)

// Store is the unified storage interface for the ledger.
type Store interface {
	// GetAccount returns the row for userKey, or credits.ErrAccountNotFound.
	GetAccount(ctx context.Context, userKey string) (*account.Account, error)

	// GetAccountByEmail returns the most recently updated row carrying email,
	// or credits.ErrAccountNotFound.
	GetAccountByEmail(ctx context.Context, email string) (*account.Account, error)

	// UpsertAccount inserts a or replaces the existing row with the same key.
	// An empty Email keeps the stored one and CreatedAt is never overwritten.
	UpsertAccount(ctx context.Context, a *account.Account) (*account.Account, error)

	// UpdateAccount applies p to the row for userKey and returns the result,
	// or credits.ErrAccountNotFound when there is no such row.
	UpdateAccount(ctx context.Context, userKey string, p account.Patch) (*account.Account, error)

	// DebitCredits atomically moves amount from remaining to used credits,
	// only if remaining covers it. It returns the new remaining balance,
	// credits.ErrAccountNotFound, or a *credits.InsufficientCreditsError
	// without touching the row.
	DebitCredits(ctx context.Context, userKey string, amount int64) (int64, error)

	// HasReceipt reports whether the delivery was already reconciled.
	HasReceipt(ctx context.Context, provider, eventID string) (bool, error)

	// RecordReceipt stores r. Recording an existing delivery is a no-op.
	RecordReceipt(ctx context.Context, r *receipt.Receipt) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
