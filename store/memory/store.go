// Package memory is an in-process store.Store guarded by a single mutex.
package memory

import (
	"context"
	"sync"
	"time"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/receipt"
	"github.com/xraph/credits/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps accounts and receipts in maps. Returned rows are copies.
type Store struct {
	mu sync.RWMutex

	accounts map[string]*account.Account
	receipts map[string]*receipt.Receipt
	closed   bool

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for updated_at on debits.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		accounts: make(map[string]*account.Account),
		receipts: make(map[string]*receipt.Receipt),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetAccount(_ context.Context, userKey string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, credits.ErrStoreClosed
	}
	if a, ok := s.accounts[userKey]; ok {
		return a.Clone(), nil
	}
	return nil, credits.ErrAccountNotFound
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, credits.ErrStoreClosed
	}

	var found *account.Account
	for _, a := range s.accounts {
		if email == "" || a.Email != email {
			continue
		}
		if found == nil || a.UpdatedAt.After(found.UpdatedAt) {
			found = a
		}
	}
	if found == nil {
		return nil, credits.ErrAccountNotFound
	}
	return found.Clone(), nil
}

func (s *Store) UpsertAccount(_ context.Context, a *account.Account) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, credits.ErrStoreClosed
	}

	row := a.Clone()
	if existing, ok := s.accounts[a.UserKey]; ok {
		if row.Email == "" {
			row.Email = existing.Email
		}
		row.CreatedAt = existing.CreatedAt
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = row.UpdatedAt
	}
	s.accounts[a.UserKey] = row
	return row.Clone(), nil
}

func (s *Store) UpdateAccount(_ context.Context, userKey string, p account.Patch) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, credits.ErrStoreClosed
	}

	a, ok := s.accounts[userKey]
	if !ok {
		return nil, credits.ErrAccountNotFound
	}
	p.Apply(a)
	return a.Clone(), nil
}

func (s *Store) DebitCredits(_ context.Context, userKey string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, credits.ErrStoreClosed
	}

	a, ok := s.accounts[userKey]
	if !ok {
		return 0, credits.ErrAccountNotFound
	}
	if !a.CanAfford(amount) {
		return 0, &credits.InsufficientCreditsError{Remaining: a.RemainingCredits, Required: amount}
	}
	a.RemainingCredits -= amount
	a.UsedCredits += amount
	a.UpdatedAt = s.now()
	return a.RemainingCredits, nil
}

func (s *Store) HasReceipt(_ context.Context, provider, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, credits.ErrStoreClosed
	}
	_, ok := s.receipts[receipt.Key(provider, eventID)]
	return ok, nil
}

func (s *Store) RecordReceipt(_ context.Context, r *receipt.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return credits.ErrStoreClosed
	}
	key := receipt.Key(r.Provider, r.EventID)
	if _, exists := s.receipts[key]; !exists {
		cp := *r
		s.receipts[key] = &cp
	}
	return nil
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return credits.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Subsequent calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
