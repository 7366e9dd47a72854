package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/receipt"
	creditstore "github.com/xraph/credits/store"
)

// Collection name constants.
const (
	colAccounts = "credit_accounts"
	colReceipts = "credit_receipts"
)

// compile-time interface check
var _ creditstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for the credits collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: credits/mongo: %s indexes: %w", credits.ErrMigrationFailed, col, err)
		}
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
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userKey}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, credits.ErrAccountNotFound
		}
		return nil, fmt.Errorf("credits/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*account.Account, error) {
	if email == "" {
		return nil, credits.ErrAccountNotFound
	}
	var models []accountModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"email": email}).
		Sort(bson.D{{Key: "updated_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: get account by email: %w", err)
	}
	if len(models) == 0 {
		return nil, credits.ErrAccountNotFound
	}
	return fromAccountModel(&models[0]), nil
}

func (s *Store) UpsertAccount(ctx context.Context, a *account.Account) (*account.Account, error) {
	m := toAccountModel(a)
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}

	set := bson.M{
		"plan":                      m.Plan,
		"monthly_credits":           m.MonthlyCredits,
		"used_credits":              m.UsedCredits,
		"remaining_credits":         m.RemainingCredits,
		"subscription_status":       m.SubscriptionStatus,
		"processor_customer_id":     m.ProcessorCustomerID,
		"processor_subscription_id": m.ProcessorSubscriptionID,
		"updated_at":                m.UpdatedAt,
	}
	onInsert := bson.M{"created_at": m.CreatedAt}
	if m.Email != "" {
		set["email"] = m.Email
	} else {
		onInsert["email"] = ""
	}

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.UserKey}).
		SetUpdate(bson.M{"$set": set, "$setOnInsert": onInsert}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: upsert account: %w", err)
	}
	return s.GetAccount(ctx, a.UserKey)
}

func (s *Store) UpdateAccount(ctx context.Context, userKey string, p account.Patch) (*account.Account, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now()
	}

	q := s.mdb.NewUpdate((*accountModel)(nil)).Filter(bson.M{"_id": userKey})
	values := p.Values()
	for i, field := range p.Fields() {
		q = q.Set(field, values[i])
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("credits/mongo: update account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return nil, credits.ErrAccountNotFound
	}
	return s.GetAccount(ctx, userKey)
}

// DebitCredits guards the decrement with a $gte filter so the check and the
// write are one document operation.
func (s *Store) DebitCredits(ctx context.Context, userKey string, amount int64) (int64, error) {
	var m accountModel
	err := s.mdb.Collection(colAccounts).FindOneAndUpdate(ctx,
		bson.M{"_id": userKey, "remaining_credits": bson.M{"$gte": amount}},
		bson.M{
			"$inc": bson.M{"remaining_credits": -amount, "used_credits": amount},
			"$set": bson.M{"updated_at": now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err == nil {
		return m.RemainingCredits, nil
	}
	if !isNoDocuments(err) {
		return 0, fmt.Errorf("credits/mongo: debit credits: %w", err)
	}

	a, err := s.GetAccount(ctx, userKey)
	if err != nil {
		return 0, err
	}
	return 0, &credits.InsufficientCreditsError{Remaining: a.RemainingCredits, Required: amount}
}

// ==================== Receipt Store ====================

func (s *Store) HasReceipt(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := s.mdb.Collection(colReceipts).CountDocuments(ctx, bson.M{"provider": provider, "event_id": eventID})
	if err != nil {
		return false, fmt.Errorf("credits/mongo: has receipt: %w", err)
	}
	return n > 0, nil
}

func (s *Store) RecordReceipt(ctx context.Context, r *receipt.Receipt) error {
	m := toReceiptModel(r)
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = now()
	}

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"provider": m.Provider, "event_id": m.EventID}).
		SetUpdate(bson.M{"$setOnInsert": bson.M{
			"_id":          m.ID,
			"provider":     m.Provider,
			"event_id":     m.EventID,
			"event_type":   m.EventType,
			"user_key":     m.UserKey,
			"outcome":      m.Outcome,
			"processed_at": m.ProcessedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credits/mongo: record receipt: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for the credits collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "email", Value: 1}, {Key: "updated_at", Value: -1}}},
			{Keys: bson.D{{Key: "processor_subscription_id", Value: 1}}},
		},
		colReceipts: {
			{
				Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "event_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_key", Value: 1}, {Key: "processed_at", Value: -1}}},
		},
	}
}
