package plans

import (
	"encoding/json"
	"fmt"

	"github.com/jmylchreest/companion-api/internal/models"
)

// overridesDocument is the JSON document operators publish to override limits.
type overridesDocument struct {
	Tiers map[string]TierOverride `json:"tiers"`
}

// TierOverride holds the fields an operator may override for one tier.
// Nil fields keep the built-in value.
type TierOverride struct {
	DisplayName             *string        `json:"display_name,omitempty"`
	PriceStarsMonthly       *int           `json:"price_stars_monthly,omitempty"`
	PriceStarsYearly        *int           `json:"price_stars_yearly,omitempty"`
	DailyMessages           *int           `json:"daily_messages,omitempty"`
	MemoryType              *MemoryType    `json:"memory_type,omitempty"`
	MaxMemoryEntries        *int           `json:"max_memory_entries,omitempty"`
	MemoryRetentionDays     *int           `json:"memory_retention_days,omitempty"`
	VoiceMessages           *bool          `json:"voice_messages_allowed,omitempty"`
	MaxVoiceDurationSeconds *int           `json:"max_voice_duration_sec,omitempty"`
	CustomFantasies         *bool          `json:"custom_fantasies_allowed,omitempty"`
	MaxFantasyLengthChars   *int           `json:"max_fantasy_length_chars,omitempty"`
	AIInsights              *bool          `json:"ai_insights_access,omitempty"`
	PersonasAccess          []string       `json:"personas_access,omitempty"`
	SextingMaxLevel         *int           `json:"sexting_max_level,omitempty"`
	PrioritySupport         *bool          `json:"priority_support,omitempty"`
	TrialDays               *int           `json:"trial_days_available,omitempty"`
	AdditionalFeatures      map[string]any `json:"additional_features,omitempty"`
}

// Apply returns base with the override's non-nil fields replaced.
func (o TierOverride) Apply(base TierLimits) TierLimits {
	if o.DisplayName != nil {
		base.DisplayName = *o.DisplayName
	}
	if o.PriceStarsMonthly != nil {
		base.PriceStarsMonthly = *o.PriceStarsMonthly
	}
	if o.PriceStarsYearly != nil {
		base.PriceStarsYearly = *o.PriceStarsYearly
	}
	if o.DailyMessages != nil {
		base.DailyMessages = *o.DailyMessages
	}
	if o.MemoryType != nil {
		base.MemoryType = *o.MemoryType
	}
	if o.MaxMemoryEntries != nil {
		base.MaxMemoryEntries = *o.MaxMemoryEntries
	}
	if o.MemoryRetentionDays != nil {
		base.MemoryRetentionDays = *o.MemoryRetentionDays
	}
	if o.VoiceMessages != nil {
		base.VoiceMessages = *o.VoiceMessages
	}
	if o.MaxVoiceDurationSeconds != nil {
		base.MaxVoiceDurationSeconds = *o.MaxVoiceDurationSeconds
	}
	if o.CustomFantasies != nil {
		base.CustomFantasies = *o.CustomFantasies
	}
	if o.MaxFantasyLengthChars != nil {
		base.MaxFantasyLengthChars = *o.MaxFantasyLengthChars
	}
	if o.AIInsights != nil {
		base.AIInsights = *o.AIInsights
	}
	if o.PersonasAccess != nil {
		base.PersonasAccess = o.PersonasAccess
	}
	if o.SextingMaxLevel != nil {
		base.SextingMaxLevel = *o.SextingMaxLevel
	}
	if o.PrioritySupport != nil {
		base.PrioritySupport = *o.PrioritySupport
	}
	if o.TrialDays != nil {
		base.TrialDays = *o.TrialDays
	}
	if o.AdditionalFeatures != nil {
		base.AdditionalFeatures = o.AdditionalFeatures
	}
	return base
}

// ParseOverrides decodes an overrides document. Unknown tier names are rejected.
func ParseOverrides(data []byte) (map[models.Tier]TierOverride, error) {
	var doc overridesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse plan overrides: %w", err)
	}

	out := make(map[models.Tier]TierOverride, len(doc.Tiers))
	for name, o := range doc.Tiers {
		tier, err := models.ParseTier(name)
		if err != nil {
			return nil, err
		}
		out[tier] = o
	}
	return out, nil
}
