package models

import "time"

// BlockTypeSpam is the block type applied by the anti-spam checks.
const BlockTypeSpam = "spam_activity"

// TemporaryBlock prevents a user from acting until BlockedUntil passes.
type TemporaryBlock struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	BlockType    string    `json:"block_type"`
	BlockedUntil time.Time `json:"blocked_until"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActiveAt reports whether the block is still in force at now.
func (b *TemporaryBlock) ActiveAt(now time.Time) bool {
	return b.BlockedUntil.After(now)
}
