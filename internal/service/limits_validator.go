package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/benbjohnson/clock"

	"github.com/jmylchreest/companion-api/internal/config"
	"github.com/jmylchreest/companion-api/internal/metrics"
	"github.com/jmylchreest/companion-api/internal/models"
	"github.com/jmylchreest/companion-api/internal/plans"
)

// ReasonAllowed is the reason attached to allowed results.
const ReasonAllowed = "ok"

// ValidationResult is a single allow/deny decision. Denials are values, not errors.
type ValidationResult struct {
	Allowed bool           `json:"allowed"`
	Reason  string         `json:"reason"`
	Data    map[string]any `json:"data,omitempty"`
	// UserMessageOverride is user-facing copy to show instead of the default reply.
	UserMessageOverride string `json:"user_message_override,omitempty"`
}

// LimitsValidator combines the anti-spam checks and subscription limits
// into one decision per message or feature use.
type LimitsValidator struct {
	antiSpam      *AntiSpamService
	subscriptions *SubscriptionService
	cfg           config.LimitsConfig
	clock         clock.Clock
	logger        *slog.Logger
}

// NewLimitsValidator creates a limits validator.
func NewLimitsValidator(
	antiSpam *AntiSpamService,
	subscriptions *SubscriptionService,
	cfg config.LimitsConfig,
	clk clock.Clock,
	logger *slog.Logger,
) *LimitsValidator {
	if clk == nil {
		clk = clock.New()
	}
	return &LimitsValidator{
		antiSpam:      antiSpam,
		subscriptions: subscriptions,
		cfg:           cfg,
		clock:         clk,
		logger:        logger.With("component", "limits_validator"),
	}
}

// ValidateMessageSend decides whether the user may send text to persona now.
// An empty persona skips the persona check.
func (v *LimitsValidator) ValidateMessageSend(ctx context.Context, userID, text, persona string) (ValidationResult, error) {
	result, err := v.validateMessageSend(ctx, userID, text, persona)
	if err != nil {
		return result, err
	}
	recordDecision("message", result)
	return result, nil
}

func (v *LimitsValidator) validateMessageSend(ctx context.Context, userID, text, persona string) (ValidationResult, error) {
	spam, err := v.antiSpam.CheckSpam(ctx, userID, text)
	if err != nil {
		return ValidationResult{}, err
	}
	if !spam.Allowed {
		return spam, nil
	}

	view, err := v.subscriptions.GetUserSubscription(ctx, userID)
	if err != nil {
		return ValidationResult{}, err
	}

	if view.Status == models.StatusExpired {
		return expiredResult(view), nil
	}

	var graceWarning string
	if view.Status == models.StatusGracePeriod {
		graceWarning = v.graceWarning(view)
	}

	limit := messageLimitFor(view)
	if !limit.Allowed {
		return ValidationResult{
			Allowed: false,
			Reason:  "Daily message limit reached.",
			Data: map[string]any{
				"upgrade_required": true,
				"limit_type":       plans.FeatureDailyMessages,
				"tier":             view.Tier,
				"used":             limit.Used,
				"limit":            limit.EffectiveLimit,
				"limit_from_plan":  limit.LimitFromPlan,
				"bonus_available":  limit.BonusAvailable,
			},
			UserMessageOverride: fmt.Sprintf(
				"📊 You've used all %d messages for today. Upgrade your plan for more, or come back tomorrow!",
				limit.EffectiveLimit),
		}, nil
	}

	if persona != "" {
		access, err := v.subscriptions.evaluateFeature(view.Tier, view.Limits, plans.FeaturePersonaAccess, FeatureContext{Persona: persona})
		if err != nil {
			return ValidationResult{}, err
		}
		if !access.Allowed {
			required, ok := v.subscriptions.LowestTierOffering(plans.FeaturePersonaAccess, FeatureContext{Persona: persona})
			if !ok {
				required = models.TierBasic
			}
			return ValidationResult{
				Allowed: false,
				Reason:  access.Reason,
				Data: map[string]any{
					"upgrade_required": true,
					"persona":          persona,
					"tier":             view.Tier,
					"required_tier":    required,
				},
				UserMessageOverride: fmt.Sprintf(
					"🔒 This persona is available from the %s plan.",
					v.subscriptions.plans.DisplayName(required)),
			}, nil
		}
	}

	data := map[string]any{
		"tier":            view.Tier,
		"status":          view.Status,
		"used":            limit.Used,
		"limit":           limit.EffectiveLimit,
		"remaining":       limit.Remaining,
		"bonus_available": limit.BonusAvailable,
		"unlimited":       limit.Unlimited,
		"warnings":        v.warnings(view, limit),
	}
	if graceWarning != "" {
		data["warning_message"] = graceWarning
	}
	return ValidationResult{Allowed: true, Reason: ReasonAllowed, Data: data}, nil
}

// ValidateFeatureAccess decides whether the user may use feature now.
func (v *LimitsValidator) ValidateFeatureAccess(ctx context.Context, userID, feature string, fc FeatureContext) (ValidationResult, error) {
	result, err := v.validateFeatureAccess(ctx, userID, feature, fc)
	if err != nil {
		return result, err
	}
	recordDecision("feature", result)
	return result, nil
}

func (v *LimitsValidator) validateFeatureAccess(ctx context.Context, userID, feature string, fc FeatureContext) (ValidationResult, error) {
	view, err := v.subscriptions.GetUserSubscription(ctx, userID)
	if err != nil {
		return ValidationResult{}, err
	}

	tier, limits := view.Tier, view.Limits
	if view.Status == models.StatusExpired {
		free, err := featureAllowed(v.subscriptions.plans.LimitsFor(models.TierFree), feature, fc)
		if err != nil {
			return ValidationResult{}, err
		}
		if !free.Allowed {
			return expiredResult(view), nil
		}
		tier, limits = models.TierFree, v.subscriptions.plans.LimitsFor(models.TierFree)
	}

	access, err := v.subscriptions.evaluateFeature(tier, limits, feature, fc)
	if err != nil {
		return ValidationResult{}, err
	}

	data := map[string]any{
		"feature":      feature,
		"tier":         access.TierChecked,
		"limit_value":  access.LimitValue,
		"tier_checked": access.TierChecked,
	}
	if access.CurrentValue != nil {
		data["current_value"] = access.CurrentValue
	}
	if access.Allowed {
		return ValidationResult{Allowed: true, Reason: ReasonAllowed, Data: data}, nil
	}

	data["upgrade_required"] = len(access.AvailableInTiers) > 0
	data["available_in_tiers"] = access.AvailableInTiers

	var message string
	switch {
	case feature == plans.FeatureSextingLevel && fc.Level != nil:
		message = fmt.Sprintf(
			"🔞 Level %d is not available on your plan. Your plan allows up to level %d.",
			*fc.Level, limits.SextingMaxLevel)
		if len(access.AvailableInTiers) > 0 {
			message += fmt.Sprintf(" Upgrade to %s to unlock it.", v.subscriptions.plans.DisplayName(access.AvailableInTiers[0]))
		}
	case len(access.AvailableInTiers) > 0:
		required := access.AvailableInTiers[0]
		data["required_tier"] = required
		message = fmt.Sprintf("🔒 This feature is available from the %s plan.", v.subscriptions.plans.DisplayName(required))
	default:
		message = "🔒 This feature is not available on your plan."
	}

	return ValidationResult{
		Allowed:             false,
		Reason:              access.Reason,
		Data:                data,
		UserMessageOverride: message,
	}, nil
}

// warnings returns the advisory messages attached to an allowed send.
func (v *LimitsValidator) warnings(view *SubscriptionView, limit *MessageLimit) []string {
	warnings := []string{}

	if !limit.Unlimited && limit.EffectiveLimit > 0 {
		ratio := float64(limit.Used) / float64(limit.EffectiveLimit)
		if ratio >= v.cfg.SoftLimitRatio {
			warnings = append(warnings, fmt.Sprintf(
				"⚠️ You've used %d of %d messages today.", limit.Used, limit.EffectiveLimit))
		}
	}

	if view.Status == models.StatusActive && view.Tier.IsPaid() && view.ExpiresAt != nil {
		daysLeft := int(math.Floor(view.ExpiresAt.Sub(v.clock.Now()).Hours() / 24))
		if daysLeft >= 0 && daysLeft <= v.cfg.RenewalPromptDays {
			warnings = append(warnings, fmt.Sprintf(
				"⏰ Your %s subscription expires in %d day(s). Renew to keep your benefits.",
				view.TierName, daysLeft+1))
		}
	}

	return warnings
}

// graceWarning describes the time left before a lapsed subscription is downgraded.
func (v *LimitsValidator) graceWarning(view *SubscriptionView) string {
	if view.ExpiresAt == nil {
		return ""
	}
	graceEnd := view.ExpiresAt.Add(v.cfg.GracePeriod)
	daysLeft := max(0, int(math.Floor(graceEnd.Sub(v.clock.Now()).Hours()/24)))
	return fmt.Sprintf(
		"⚠️ Your %s subscription has expired. Renew within %d day(s) to keep your benefits.",
		view.TierName, daysLeft)
}

func expiredResult(view *SubscriptionView) ValidationResult {
	return ValidationResult{
		Allowed: false,
		Reason:  "Subscription expired.",
		Data: map[string]any{
			"upgrade_required": true,
			"status":           models.StatusExpired,
			"tier":             view.Tier,
		},
		UserMessageOverride: fmt.Sprintf("⏰ Your %s subscription has expired. Renew it to continue.", view.TierName),
	}
}

func recordDecision(kind string, result ValidationResult) {
	outcome := "allowed"
	if !result.Allowed {
		outcome = "denied"
	}
	metrics.ValidationDecisions.WithLabelValues(kind, outcome).Inc()
}
