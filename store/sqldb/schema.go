package sqldb

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS credit_accounts (
    user_key                  TEXT PRIMARY KEY,
    email                     TEXT NOT NULL DEFAULT '',
    plan                      TEXT NOT NULL DEFAULT 'free',
    monthly_credits           BIGINT NOT NULL DEFAULT 0 CHECK (monthly_credits >= 0),
    used_credits              BIGINT NOT NULL DEFAULT 0 CHECK (used_credits >= 0),
    remaining_credits         BIGINT NOT NULL DEFAULT 0 CHECK (remaining_credits >= 0),
    subscription_status       TEXT NOT NULL DEFAULT 'inactive',
    processor_customer_id     TEXT NOT NULL DEFAULT '',
    processor_subscription_id TEXT NOT NULL DEFAULT '',
    created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_accounts_email ON credit_accounts (email, updated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_accounts_subscription ON credit_accounts (processor_subscription_id)`,
	`CREATE TABLE IF NOT EXISTS credit_receipts (
    id           TEXT PRIMARY KEY,
    provider     TEXT NOT NULL DEFAULT '',
    event_id     TEXT NOT NULL,
    event_type   TEXT NOT NULL DEFAULT '',
    user_key     TEXT NOT NULL DEFAULT '',
    outcome      TEXT NOT NULL DEFAULT '',
    processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_receipts_event ON credit_receipts (provider, event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_receipts_user ON credit_receipts (user_key, processed_at DESC)`,
}
