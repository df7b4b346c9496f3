package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261001-000000",
		Description: "Initial schema: users, subscriptions, usage",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL DEFAULT '',
				first_name TEXT NOT NULL DEFAULT '',
				language_code TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS subscriptions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				tier TEXT NOT NULL,
				status TEXT NOT NULL,
				activated_at TEXT NOT NULL,
				expires_at TEXT,
				is_trial INTEGER NOT NULL DEFAULT 0,
				trial_source TEXT NOT NULL DEFAULT '',
				payment_provider TEXT NOT NULL DEFAULT '',
				charge_id TEXT,
				payment_amount INTEGER NOT NULL DEFAULT 0,
				auto_renewal INTEGER NOT NULL DEFAULT 0,
				original_tier_before_expiry TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_subscriptions_user_status ON subscriptions(user_id, status, activated_at)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_charge_id ON subscriptions(charge_id) WHERE charge_id IS NOT NULL`,
			`CREATE INDEX IF NOT EXISTS idx_subscriptions_status_expires ON subscriptions(status, expires_at)`,

			`CREATE TABLE IF NOT EXISTS user_usage (
				user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
				daily_messages_used INTEGER NOT NULL DEFAULT 0,
				last_message_date TEXT NOT NULL DEFAULT '',
				bonus_messages_total INTEGER NOT NULL DEFAULT 0,
				bonus_messages_remaining INTEGER NOT NULL DEFAULT 0,
				bonus_expires_at TEXT,
				updated_at TEXT NOT NULL,
				CHECK (bonus_messages_remaining <= bonus_messages_total)
			)`,
		},
	})
}
