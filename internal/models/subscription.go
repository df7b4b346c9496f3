package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownStatus is returned when a subscription status value is not recognised.
var ErrUnknownStatus = errors.New("unknown subscription status")

// SubscriptionStatus is the lifecycle state of a subscription row.
type SubscriptionStatus string

const (
	StatusActive         SubscriptionStatus = "active"
	StatusExpired        SubscriptionStatus = "expired"
	StatusCancelled      SubscriptionStatus = "cancelled"
	StatusGracePeriod    SubscriptionStatus = "grace_period"
	StatusTrial          SubscriptionStatus = "trial"
	StatusPendingPayment SubscriptionStatus = "pending_payment"
)

// LiveStatuses are the statuses a row may have to be considered current.
var LiveStatuses = []SubscriptionStatus{StatusActive, StatusGracePeriod, StatusTrial}

// ParseSubscriptionStatus decodes a persisted status value.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch st := SubscriptionStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusExpired, StatusCancelled, StatusGracePeriod, StatusTrial, StatusPendingPayment:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// IsLive reports whether a row with this status can be the current subscription.
func (s SubscriptionStatus) IsLive() bool {
	return s == StatusActive || s == StatusGracePeriod || s == StatusTrial
}

func (s SubscriptionStatus) String() string {
	return string(s)
}

// Subscription is one row of a user's subscription history.
// Rows are appended on activation; only status and expiry are corrected in place.
type Subscription struct {
	ID                       string             `json:"id"`
	UserID                   string             `json:"user_id"`
	Tier                     Tier               `json:"tier"`
	Status                   SubscriptionStatus `json:"status"`
	ActivatedAt              time.Time          `json:"activated_at"`
	ExpiresAt                *time.Time         `json:"expires_at,omitempty"` // nil for free or permanent rows
	IsTrial                  bool               `json:"is_trial"`
	TrialSource              string             `json:"trial_source,omitempty"`
	PaymentProvider          string             `json:"payment_provider,omitempty"`
	ChargeID                 string             `json:"charge_id,omitempty"` // external charge id, unique when set
	PaymentAmount            int                `json:"payment_amount"`
	AutoRenewal              bool               `json:"auto_renewal"`
	OriginalTierBeforeExpiry *Tier              `json:"original_tier_before_expiry,omitempty"`
	CreatedAt                time.Time          `json:"created_at"`
	UpdatedAt                time.Time          `json:"updated_at"`
}

// IsExpiredAt reports whether the row has an expiry at or before now.
func (s *Subscription) IsExpiredAt(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}
