package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261001-000100",
		Description: "Add action timestamps and temporary blocks for rate limiting and anti-spam",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS user_action_timestamps (
				user_id TEXT NOT NULL,
				action_key TEXT NOT NULL,
				ts_ms INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_action_timestamps_lookup ON user_action_timestamps(user_id, action_key, ts_ms)`,
			`CREATE INDEX IF NOT EXISTS idx_action_timestamps_ts ON user_action_timestamps(ts_ms)`,

			`CREATE TABLE IF NOT EXISTS temporary_blocks (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				block_type TEXT NOT NULL,
				blocked_until TEXT NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_temporary_blocks_user ON temporary_blocks(user_id, block_type, blocked_until)`,
		},
	})
}
