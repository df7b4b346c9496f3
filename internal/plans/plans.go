// Package plans defines the subscription tier hierarchy and the limits
// bundle attached to each tier. A Plans value is constructed once at
// startup and passed to the services that need it.
package plans

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/jmylchreest/companion-api/internal/models"
)

// MemoryType is the storage class of a tier's conversation memory.
type MemoryType string

const (
	MemorySession   MemoryType = "session"
	MemoryShortTerm MemoryType = "short_term"
	MemoryLongTerm  MemoryType = "long_term"
	MemoryPermanent MemoryType = "permanent"
)

// Unlimited is the sentinel for numeric limits without a cap.
const Unlimited = -1

// AllPersonas grants access to every persona when present in PersonasAccess.
const AllPersonas = "all"

// TierLimits is the limits bundle of a single tier.
type TierLimits struct {
	DisplayName       string `json:"display_name"`
	PriceStarsMonthly int    `json:"price_stars_monthly"`
	PriceStarsYearly  int    `json:"price_stars_yearly"`
	// DailyMessages is the renewable daily quota (-1 = unlimited)
	DailyMessages int        `json:"daily_messages"`
	MemoryType    MemoryType `json:"memory_type"`
	// MaxMemoryEntries caps stored memories (-1 = unlimited)
	MaxMemoryEntries int `json:"max_memory_entries"`
	// MemoryRetentionDays: -1 = forever, 0 = session only
	MemoryRetentionDays     int            `json:"memory_retention_days"`
	VoiceMessages           bool           `json:"voice_messages_allowed"`
	MaxVoiceDurationSeconds int            `json:"max_voice_duration_sec"`
	CustomFantasies         bool           `json:"custom_fantasies_allowed"`
	MaxFantasyLengthChars   int            `json:"max_fantasy_length_chars"`
	AIInsights              bool           `json:"ai_insights_access"`
	PersonasAccess          []string       `json:"personas_access"`
	SextingMaxLevel         int            `json:"sexting_max_level"`
	PrioritySupport         bool           `json:"priority_support"`
	TrialDays               int            `json:"trial_days_available"`
	AdditionalFeatures      map[string]any `json:"additional_features,omitempty"`
}

// AllowsPersona reports whether the persona is available on this tier.
func (l TierLimits) AllowsPersona(persona string) bool {
	if persona == "" {
		return false
	}
	return slices.Contains(l.PersonasAccess, AllPersonas) || slices.Contains(l.PersonasAccess, persona)
}

// IsUnlimitedMessages reports whether the daily quota is uncapped.
func (l TierLimits) IsUnlimitedMessages() bool {
	return l.DailyMessages == Unlimited
}

// Feature keys that can be looked up on a TierLimits bundle.
const (
	FeaturePersonaAccess    = "persona_access"
	FeatureSextingLevel     = "sexting_level"
	FeatureDailyMessages    = "daily_messages"
	FeatureMaxMemoryEntries = "max_memory_entries"
	FeatureMemoryRetention  = "memory_retention_days"
	FeatureVoiceMessages    = "voice_messages_allowed"
	FeatureVoiceDuration    = "max_voice_duration_sec"
	FeatureCustomFantasies  = "custom_fantasies_allowed"
	FeatureFantasyLength    = "max_fantasy_length_chars"
	FeatureAIInsights       = "ai_insights_access"
	FeaturePrioritySupport  = "priority_support"
	FeatureTrialDays        = "trial_days_available"
)

// FeatureValue returns the raw value of a bool or numeric feature.
// Additional features are looked up last. ok is false for unknown keys.
func (l TierLimits) FeatureValue(key string) (value any, ok bool) {
	switch key {
	case FeatureDailyMessages:
		return l.DailyMessages, true
	case FeatureMaxMemoryEntries:
		return l.MaxMemoryEntries, true
	case FeatureMemoryRetention:
		return l.MemoryRetentionDays, true
	case FeatureVoiceMessages:
		return l.VoiceMessages, true
	case FeatureVoiceDuration:
		return l.MaxVoiceDurationSeconds, true
	case FeatureCustomFantasies:
		return l.CustomFantasies, true
	case FeatureFantasyLength:
		return l.MaxFantasyLengthChars, true
	case FeatureAIInsights:
		return l.AIInsights, true
	case FeaturePrioritySupport:
		return l.PrioritySupport, true
	case FeatureTrialDays:
		return l.TrialDays, true
	case FeatureSextingLevel:
		return l.SextingMaxLevel, true
	}
	v, ok := l.AdditionalFeatures[key]
	return v, ok
}

// hierarchy orders tiers; upgrades move to a higher level.
var hierarchy = map[models.Tier]int{
	models.TierFree:    0,
	models.TierBasic:   1,
	models.TierPremium: 2,
	models.TierVIP:     3,
}

// Defaults returns the built-in limits for every tier.
func Defaults() map[models.Tier]TierLimits {
	return map[models.Tier]TierLimits{
		models.TierFree: {
			DisplayName:         "Free",
			DailyMessages:       20,
			MemoryType:          MemorySession,
			MaxMemoryEntries:    10,
			MemoryRetentionDays: 0,
			PersonasAccess:      []string{"aeris_friend"},
			SextingMaxLevel:     0,
		},
		models.TierBasic: {
			DisplayName:             "Basic",
			PriceStarsMonthly:       100,
			PriceStarsYearly:        1000,
			DailyMessages:           100,
			MemoryType:              MemoryShortTerm,
			MaxMemoryEntries:        50,
			MemoryRetentionDays:     7,
			VoiceMessages:           true,
			MaxVoiceDurationSeconds: 120,
			CustomFantasies:         true,
			MaxFantasyLengthChars:   2000,
			PersonasAccess:          []string{"aeris_friend", "luneth_basic"},
			SextingMaxLevel:         5,
			TrialDays:               3,
		},
		models.TierPremium: {
			DisplayName:             "Premium",
			PriceStarsMonthly:       250,
			PriceStarsYearly:        2500,
			DailyMessages:           500,
			MemoryType:              MemoryLongTerm,
			MaxMemoryEntries:        200,
			MemoryRetentionDays:     30,
			VoiceMessages:           true,
			MaxVoiceDurationSeconds: 300,
			CustomFantasies:         true,
			MaxFantasyLengthChars:   5000,
			AIInsights:              true,
			PersonasAccess:          []string{"aeris_friend", "aeris_companion", "luneth_basic", "luneth_advanced"},
			SextingMaxLevel:         8,
			PrioritySupport:         true,
			TrialDays:               7,
		},
		models.TierVIP: {
			DisplayName:             "VIP",
			PriceStarsMonthly:       500,
			PriceStarsYearly:        5000,
			DailyMessages:           Unlimited,
			MemoryType:              MemoryPermanent,
			MaxMemoryEntries:        Unlimited,
			MemoryRetentionDays:     Unlimited,
			VoiceMessages:           true,
			MaxVoiceDurationSeconds: Unlimited,
			CustomFantasies:         true,
			MaxFantasyLengthChars:   Unlimited,
			AIInsights:              true,
			PersonasAccess:          []string{AllPersonas},
			SextingMaxLevel:         10,
			PrioritySupport:         true,
			AdditionalFeatures: map[string]any{
				"early_access":            true,
				"custom_persona_requests": 1,
			},
		},
	}
}

// Source supplies operator overrides for tier limits.
// Load returns nil overrides when nothing changed since the last call.
type Source interface {
	Load(ctx context.Context) (map[models.Tier]TierOverride, error)
	NeedsRefresh() bool
}

// Plans holds the tier limits in effect. Safe for concurrent use.
type Plans struct {
	mu       sync.RWMutex
	base     map[models.Tier]TierLimits // construction-time bundles; source overrides apply over these
	limits   map[models.Tier]TierLimits
	source   Source
	onReload []func(context.Context)
	logger   *slog.Logger
	fetching sync.Mutex
}

// New builds plans from the defaults with optional static overrides applied.
func New(overrides map[models.Tier]TierLimits, logger *slog.Logger) *Plans {
	if logger == nil {
		logger = slog.Default()
	}
	limits := Defaults()
	for tier, l := range overrides {
		limits[tier] = l
	}
	return &Plans{
		base:   limits,
		limits: copyLimits(limits),
		logger: logger.With("component", "plans"),
	}
}

func copyLimits(in map[models.Tier]TierLimits) map[models.Tier]TierLimits {
	out := make(map[models.Tier]TierLimits, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// OnReload registers fn to run after every reload that swaps the limits,
// including background refreshes.
func (p *Plans) OnReload(fn func(context.Context)) {
	p.mu.Lock()
	p.onReload = append(p.onReload, fn)
	p.mu.Unlock()
}

// WithSource attaches a reloadable override source.
func (p *Plans) WithSource(src Source) *Plans {
	p.source = src
	return p
}

// Level returns the hierarchy level of a tier.
func (p *Plans) Level(tier models.Tier) (int, bool) {
	lvl, ok := hierarchy[tier]
	return lvl, ok
}

// Compare returns -1, 0 or 1 as a is below, equal to or above b.
func (p *Plans) Compare(a, b models.Tier) int {
	la, lb := hierarchy[a], hierarchy[b]
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

// Known reports whether the tier has a limits bundle.
func (p *Plans) Known(tier models.Tier) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.limits[tier]
	return ok
}

// LimitsFor returns the limits of a tier, falling back to free with a
// warning when the bundle is missing.
func (p *Plans) LimitsFor(tier models.Tier) TierLimits {
	p.mu.RLock()
	limits, ok := p.limits[tier]
	free := p.limits[models.TierFree]
	p.mu.RUnlock()

	if !ok {
		p.logger.Warn("no limits configured for tier, using free", "tier", tier)
		return free
	}
	return limits
}

// DisplayName returns the user-facing name of a tier.
func (p *Plans) DisplayName(tier models.Tier) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if l, ok := p.limits[tier]; ok && l.DisplayName != "" {
		return l.DisplayName
	}
	return string(tier)
}

// Tiers returns every tier in hierarchy order.
func (p *Plans) Tiers() []models.Tier {
	return slices.Clone(models.AllTiers)
}

// PaidTiers returns the tiers above free in hierarchy order.
func (p *Plans) PaidTiers() []models.Tier {
	return slices.Clone(models.AllTiers[1:])
}

// Snapshot returns a copy of every tier's limits.
func (p *Plans) Snapshot() map[models.Tier]TierLimits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyLimits(p.limits)
}

// Reload fetches overrides from the source and applies them over the
// bundles the plans were built with.
// A nil result from the source leaves the current limits untouched.
func (p *Plans) Reload(ctx context.Context) error {
	if p.source == nil {
		return nil
	}
	overrides, err := p.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load plan overrides: %w", err)
	}
	if overrides == nil {
		return nil
	}

	next := copyLimits(p.base)
	for tier, o := range overrides {
		base, ok := next[tier]
		if !ok {
			return fmt.Errorf("%w: %q", models.ErrUnknownTier, tier)
		}
		next[tier] = o.Apply(base)
	}

	p.mu.Lock()
	p.limits = next
	hooks := slices.Clone(p.onReload)
	p.mu.Unlock()

	for _, fn := range hooks {
		fn(ctx)
	}
	p.logger.Info("plan limits reloaded", "overridden_tiers", len(overrides))
	return nil
}

// MaybeRefresh reloads in the background when the source reports stale data.
func (p *Plans) MaybeRefresh(ctx context.Context) {
	if p.source == nil || !p.source.NeedsRefresh() {
		return
	}
	if !p.fetching.TryLock() {
		return
	}
	go func() {
		defer p.fetching.Unlock()
		if err := p.Reload(context.WithoutCancel(ctx)); err != nil {
			p.logger.Error("background plan reload failed", "error", err)
		}
	}()
}
