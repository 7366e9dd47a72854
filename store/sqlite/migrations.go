package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the credits store (SQLite).
var Migrations = migrate.NewGroup("credits")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_credit_accounts",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credit_accounts (
    user_key                  TEXT PRIMARY KEY,
    email                     TEXT NOT NULL DEFAULT '',
    plan                      TEXT NOT NULL DEFAULT 'free',
    monthly_credits           INTEGER NOT NULL DEFAULT 0 CHECK (monthly_credits >= 0),
    used_credits              INTEGER NOT NULL DEFAULT 0 CHECK (used_credits >= 0),
    remaining_credits         INTEGER NOT NULL DEFAULT 0 CHECK (remaining_credits >= 0),
    subscription_status       TEXT NOT NULL DEFAULT 'inactive',
    processor_customer_id     TEXT NOT NULL DEFAULT '',
    processor_subscription_id TEXT NOT NULL DEFAULT '',
    created_at                DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at                DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_credit_accounts_email ON credit_accounts (email, updated_at);
CREATE INDEX IF NOT EXISTS idx_credit_accounts_subscription ON credit_accounts (processor_subscription_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credit_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credit_receipts",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credit_receipts (
    id           TEXT PRIMARY KEY,
    provider     TEXT NOT NULL DEFAULT '',
    event_id     TEXT NOT NULL,
    event_type   TEXT NOT NULL DEFAULT '',
    user_key     TEXT NOT NULL DEFAULT '',
    outcome      TEXT NOT NULL DEFAULT '',
    processed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_receipts_event ON credit_receipts (provider, event_id);
CREATE INDEX IF NOT EXISTS idx_credit_receipts_user ON credit_receipts (user_key, processed_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credit_receipts`)
				return err
			},
		},
	)
}
