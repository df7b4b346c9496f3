package models

import "time"

// DateLayout is the layout of LastMessageDate (UTC calendar day).
const DateLayout = "2006-01-02"

// UserUsage tracks daily message usage and bonus balances for a user.
type UserUsage struct {
	UserID                 string     `json:"user_id"`
	DailyMessagesUsed      int        `json:"daily_messages_used"`
	LastMessageDate        string     `json:"last_message_date,omitempty"`
	BonusMessagesTotal     int        `json:"bonus_messages_total"`
	BonusMessagesRemaining int        `json:"bonus_messages_remaining"`
	BonusExpiresAt         *time.Time `json:"bonus_expires_at,omitempty"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// BonusExpired reports whether the bonus balance has lapsed.
func (u *UserUsage) BonusExpired(now time.Time) bool {
	return u.BonusExpiresAt != nil && u.BonusExpiresAt.Before(now)
}
