package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTier is returned when a tier value is not one of the known tiers.
var ErrUnknownTier = errors.New("unknown tier")

// Tier is a subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// AllTiers lists every tier in hierarchy order.
var AllTiers = []Tier{TierFree, TierBasic, TierPremium, TierVIP}

// ParseTier decodes a persisted or user-supplied tier value.
// Unknown values are an error; they are never mapped to free.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierBasic, TierPremium, TierVIP:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

// IsPaid reports whether the tier requires payment.
func (t Tier) IsPaid() bool {
	return t != TierFree
}

func (t Tier) String() string {
	return string(t)
}
