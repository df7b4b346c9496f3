package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jmylchreest/companion-api/internal/cache"
	"github.com/jmylchreest/companion-api/internal/config"
	"github.com/jmylchreest/companion-api/internal/metrics"
	"github.com/jmylchreest/companion-api/internal/models"
	"github.com/jmylchreest/companion-api/internal/plans"
	"github.com/jmylchreest/companion-api/internal/repository"
)

// subscriptionCacheNamespace prefixes cached subscription views.
const subscriptionCacheNamespace = "subscription"

// Trial defaults.
const (
	TrialProvider      = "trial"
	TrialSourceWelcome = "welcome_bonus"
)

// SubscriptionView is the resolved subscription of a user with usage and limits.
type SubscriptionView struct {
	UserID                   string                    `json:"user_id"`
	SubscriptionID           string                    `json:"subscription_id"`
	Tier                     models.Tier               `json:"tier"`
	TierName                 string                    `json:"tier_name"`
	Status                   models.SubscriptionStatus `json:"status"`
	ActivatedAt              time.Time                 `json:"activated_at"`
	ExpiresAt                *time.Time                `json:"expires_at,omitempty"`
	IsTrial                  bool                      `json:"is_trial"`
	TrialSource              string                    `json:"trial_source,omitempty"`
	PaymentProvider          string                    `json:"payment_provider,omitempty"`
	ChargeID                 string                    `json:"charge_id,omitempty"`
	PaymentAmount            int                       `json:"payment_amount"`
	AutoRenewal              bool                      `json:"auto_renewal"`
	OriginalTierBeforeExpiry *models.Tier              `json:"original_tier_before_expiry,omitempty"`
	Usage                    models.UserUsage          `json:"usage"`
	Limits                   plans.TierLimits          `json:"limits"`
}

// ActivationRequest describes a paid, manual or trial activation.
type ActivationRequest struct {
	UserID        string
	Tier          models.Tier
	DurationDays  int
	PaymentAmount int
	ChargeID      string
	Provider      string
	IsTrial       bool
	TrialSource   string
}

// ActivationResult is returned by a successful activation.
type ActivationResult struct {
	SubscriptionID string      `json:"subscription_id"`
	Tier           models.Tier `json:"tier"`
	TierName       string      `json:"tier_name"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	Extended       bool        `json:"extended"`
}

// MessageLimit is the daily message allowance of a user.
type MessageLimit struct {
	Allowed        bool `json:"allowed"`
	Used           int  `json:"used"`
	LimitFromPlan  int  `json:"limit_from_plan"`
	BonusAvailable int  `json:"bonus_available"`
	EffectiveLimit int  `json:"effective_limit"`
	Remaining      int  `json:"remaining"` // -1 when unlimited
	Unlimited      bool `json:"unlimited"`
}

// FeatureContext carries the request-specific inputs of a feature check.
type FeatureContext struct {
	Persona string
	Level   *int
}

// FeatureAccess is the outcome of a feature check.
type FeatureAccess struct {
	Allowed          bool          `json:"allowed"`
	Feature          string        `json:"feature"`
	Reason           string        `json:"reason,omitempty"`
	LimitValue       any           `json:"limit_value,omitempty"`
	CurrentValue     any           `json:"current_value,omitempty"`
	TierChecked      models.Tier   `json:"tier_checked"`
	AvailableInTiers []models.Tier `json:"available_in_tiers,omitempty"`
}

// SubscriptionService resolves subscriptions, applies activations and
// tracks message usage. Resolved views are cached per user.
type SubscriptionService struct {
	repos    *repository.Repositories
	plans    *plans.Plans
	cache    cache.Cache
	cacheTTL time.Duration
	limits   config.LimitsConfig
	clock    clock.Clock
	logger   *slog.Logger
}

// NewSubscriptionService creates a subscription service. A nil cache disables caching.
func NewSubscriptionService(
	repos *repository.Repositories,
	p *plans.Plans,
	c cache.Cache,
	cacheTTL time.Duration,
	limits config.LimitsConfig,
	clk clock.Clock,
	logger *slog.Logger,
) *SubscriptionService {
	if clk == nil {
		clk = clock.New()
	}
	return &SubscriptionService{
		repos:    repos,
		plans:    p,
		cache:    c,
		cacheTTL: cacheTTL,
		limits:   limits,
		clock:    clk,
		logger:   logger.With("component", "subscription"),
	}
}

// Plans returns the tier configuration used by the service.
func (s *SubscriptionService) Plans() *plans.Plans {
	return s.plans
}

// GetUserSubscription resolves the current subscription of a user, repairing
// its status and the usage counters as needed.
func (s *SubscriptionService) GetUserSubscription(ctx context.Context, userID string) (*SubscriptionView, error) {
	return s.GetUserSubscriptionWithProfile(ctx, userID, models.UserProfile{})
}

// GetUserSubscriptionWithProfile is GetUserSubscription for a caller that
// knows the user's chat profile. Non-empty fields are stored on the user.
func (s *SubscriptionService) GetUserSubscriptionWithProfile(ctx context.Context, userID string, profile models.UserProfile) (*SubscriptionView, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidArg("user id is required")
	}
	now := s.clock.Now()

	if profile == (models.UserProfile{}) {
		if view, ok := s.cachedView(ctx, userID, now); ok {
			return view, nil
		}
	}

	if _, err := s.repos.User.GetOrCreate(ctx, userID, profile, now); err != nil {
		return nil, storageErr("get or create user", err)
	}

	sub, err := s.resolve(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	usage, err := s.loadUsage(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	view := s.buildView(sub, usage)
	s.storeView(ctx, view)
	return view, nil
}

// resolve returns the current row after status validation, materialising a
// free row when the user has none.
func (s *SubscriptionService) resolve(ctx context.Context, userID string, now time.Time) (*models.Subscription, error) {
	sub, err := s.repos.Subscription.GetCurrent(ctx, userID, now.Add(-s.limits.GracePeriod))
	if err != nil {
		return nil, storageErr("get current subscription", err)
	}

	if sub == nil {
		// Live rows past their grace window still need the downgrade recorded.
		live, err := s.repos.Subscription.ListLive(ctx, userID)
		if err != nil {
			return nil, storageErr("list live subscriptions", err)
		}
		if len(live) > 0 {
			sub = live[0]
		}
	}

	if sub != nil {
		if _, err := s.ApplyLifecycle(ctx, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	return s.ensureFree(ctx, userID, now)
}

// ensureFree reactivates the latest free row or inserts a new one.
func (s *SubscriptionService) ensureFree(ctx context.Context, userID string, now time.Time) (*models.Subscription, error) {
	free, err := s.repos.Subscription.GetLatestFree(ctx, userID)
	if err != nil {
		return nil, storageErr("get latest free subscription", err)
	}

	if free != nil {
		free.Status = models.StatusActive
		free.ExpiresAt = nil
		free.UpdatedAt = now
		if err := s.repos.Subscription.Update(ctx, free); err != nil {
			return nil, storageErr("reactivate free subscription", err)
		}
		s.logger.Info("reactivated free subscription", "user_id", userID, "subscription_id", free.ID)
		return free, nil
	}

	free = &models.Subscription{
		UserID:      userID,
		Tier:        models.TierFree,
		Status:      models.StatusActive,
		ActivatedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repos.Subscription.Create(ctx, free); err != nil {
		return nil, storageErr("create free subscription", err)
	}
	s.logger.Info("created free subscription", "user_id", userID, "subscription_id", free.ID)
	return free, nil
}

// ApplyLifecycle corrects the status of a row against the clock and persists
// any change. It reports whether the row was modified; unchanged rows are not written.
func (s *SubscriptionService) ApplyLifecycle(ctx context.Context, sub *models.Subscription) (bool, error) {
	now := s.clock.Now()

	switch {
	case !sub.Tier.IsPaid():
		if sub.Status == models.StatusActive && sub.ExpiresAt == nil {
			return false, nil
		}
		sub.Status = models.StatusActive
		sub.ExpiresAt = nil
	case sub.ExpiresAt == nil:
		s.logger.Warn("paid subscription without expiry, downgrading",
			"user_id", sub.UserID,
			"subscription_id", sub.ID,
			"tier", sub.Tier,
		)
		downgrade(sub)
	case sub.ExpiresAt.After(now):
		return false, nil
	case now.Before(sub.ExpiresAt.Add(s.limits.GracePeriod)):
		if sub.Status == models.StatusGracePeriod {
			return false, nil
		}
		sub.Status = models.StatusGracePeriod
	default:
		downgrade(sub)
	}

	sub.UpdatedAt = now
	if err := s.repos.Subscription.Update(ctx, sub); err != nil {
		return false, storageErr("update subscription status", err)
	}

	metrics.SubscriptionTransitions.WithLabelValues(string(sub.Status)).Inc()
	s.invalidate(ctx, sub.UserID)
	s.logger.Info("subscription status updated",
		"user_id", sub.UserID,
		"subscription_id", sub.ID,
		"tier", sub.Tier,
		"status", sub.Status,
	)
	return true, nil
}

// downgrade moves a lapsed row to free, recording the tier it had.
func downgrade(sub *models.Subscription) {
	prior := sub.Tier
	sub.OriginalTierBeforeExpiry = &prior
	sub.Tier = models.TierFree
	sub.Status = models.StatusActive
	sub.ExpiresAt = nil
}

// loadUsage returns the usage row with the daily rollover and bonus expiry applied.
func (s *SubscriptionService) loadUsage(ctx context.Context, userID string, now time.Time) (*models.UserUsage, error) {
	today := now.UTC().Format(models.DateLayout)

	usage, err := s.repos.Usage.Ensure(ctx, userID, today, now)
	if err != nil {
		return nil, storageErr("ensure usage", err)
	}

	if usage.LastMessageDate != today {
		if err := s.repos.Usage.ResetDaily(ctx, userID, today, now); err != nil {
			return nil, storageErr("reset daily usage", err)
		}
		usage.DailyMessagesUsed = 0
		usage.LastMessageDate = today
	}

	if usage.BonusExpired(now) {
		if err := s.repos.Usage.ClearBonus(ctx, userID, now); err != nil {
			return nil, storageErr("clear expired bonus", err)
		}
		s.logger.Info("bonus messages expired",
			"user_id", userID,
			"remaining", usage.BonusMessagesRemaining,
		)
		usage.BonusMessagesTotal = 0
		usage.BonusMessagesRemaining = 0
		usage.BonusExpiresAt = nil
	}

	return usage, nil
}

func (s *SubscriptionService) buildView(sub *models.Subscription, usage *models.UserUsage) *SubscriptionView {
	return &SubscriptionView{
		UserID:                   sub.UserID,
		SubscriptionID:           sub.ID,
		Tier:                     sub.Tier,
		TierName:                 s.plans.DisplayName(sub.Tier),
		Status:                   sub.Status,
		ActivatedAt:              sub.ActivatedAt,
		ExpiresAt:                sub.ExpiresAt,
		IsTrial:                  sub.IsTrial,
		TrialSource:              sub.TrialSource,
		PaymentProvider:          sub.PaymentProvider,
		ChargeID:                 sub.ChargeID,
		PaymentAmount:            sub.PaymentAmount,
		AutoRenewal:              sub.AutoRenewal,
		OriginalTierBeforeExpiry: sub.OriginalTierBeforeExpiry,
		Usage:                    *usage,
		Limits:                   s.plans.LimitsFor(sub.Tier),
	}
}

// ActivateSubscription records a new subscription row. Renewing the current
// paid tier extends its expiry; any other activation starts now and closes
// the rows it replaces.
func (s *SubscriptionService) ActivateSubscription(ctx context.Context, req ActivationRequest) (*ActivationResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, invalidArg("user id is required")
	}
	if !s.plans.Known(req.Tier) {
		return nil, unknownTier(string(req.Tier))
	}
	if req.Tier.IsPaid() && req.DurationDays <= 0 {
		return nil, invalidArg("duration must be positive for tier %s", req.Tier)
	}

	if req.ChargeID != "" {
		existing, err := s.repos.Subscription.GetByChargeID(ctx, req.ChargeID)
		if err != nil {
			return nil, storageErr("lookup charge id", err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePayment, req.ChargeID)
		}
	}

	now := s.clock.Now()
	if _, err := s.repos.User.GetOrCreate(ctx, req.UserID, models.UserProfile{}, now); err != nil {
		return nil, storageErr("get or create user", err)
	}

	current, err := s.resolve(ctx, req.UserID, now)
	if err != nil {
		return nil, err
	}

	extend := !req.IsTrial &&
		req.Tier.IsPaid() &&
		current.Tier == req.Tier &&
		current.Status == models.StatusActive &&
		!current.IsTrial &&
		current.ExpiresAt != nil &&
		current.ExpiresAt.After(now)

	var expiresAt *time.Time
	if req.Tier.IsPaid() {
		anchor := now
		if extend {
			anchor = *current.ExpiresAt
		}
		exp := anchor.AddDate(0, 0, req.DurationDays)
		expiresAt = &exp
	}

	live, err := s.repos.Subscription.ListLive(ctx, req.UserID)
	if err != nil {
		return nil, storageErr("list live subscriptions", err)
	}
	closed := make([]*models.Subscription, 0, len(live))
	for _, row := range live {
		row.Status = models.StatusCancelled
		row.UpdatedAt = now
		if !(extend && row.ID == current.ID) && row.ExpiresAt != nil && row.ExpiresAt.After(now) {
			closedAt := now
			row.ExpiresAt = &closedAt
		}
		closed = append(closed, row)
	}

	status := models.StatusActive
	if req.IsTrial {
		status = models.StatusTrial
	}
	next := &models.Subscription{
		UserID:          req.UserID,
		Tier:            req.Tier,
		Status:          status,
		ActivatedAt:     now,
		ExpiresAt:       expiresAt,
		IsTrial:         req.IsTrial,
		TrialSource:     req.TrialSource,
		PaymentProvider: req.Provider,
		ChargeID:        req.ChargeID,
		PaymentAmount:   req.PaymentAmount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repos.Subscription.Replace(ctx, closed, next); err != nil {
		if errors.Is(err, repository.ErrDuplicateChargeID) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePayment, req.ChargeID)
		}
		return nil, storageErr("replace subscription", err)
	}

	today := now.UTC().Format(models.DateLayout)
	if _, err := s.repos.Usage.Ensure(ctx, req.UserID, today, now); err != nil {
		return nil, storageErr("ensure usage", err)
	}
	if err := s.repos.Usage.ResetDaily(ctx, req.UserID, today, now); err != nil {
		return nil, storageErr("reset daily usage", err)
	}

	s.invalidate(ctx, req.UserID)
	metrics.Activations.WithLabelValues(string(req.Tier), req.Provider).Inc()

	s.logger.Info("subscription activated",
		"user_id", req.UserID,
		"subscription_id", next.ID,
		"tier", req.Tier,
		"duration_days", req.DurationDays,
		"provider", req.Provider,
		"trial", req.IsTrial,
		"extended", extend,
		"closed_rows", len(closed),
	)

	return &ActivationResult{
		SubscriptionID: next.ID,
		Tier:           req.Tier,
		TierName:       s.plans.DisplayName(req.Tier),
		ExpiresAt:      expiresAt,
		Extended:       extend,
	}, nil
}

// ActivateTrialSubscription grants a trial when the user is eligible.
// days <= 0 uses the tier's configured trial length.
func (s *SubscriptionService) ActivateTrialSubscription(ctx context.Context, userID string, tier models.Tier, days int, promoCode string) (*ActivationResult, error) {
	eligible, err := s.UserCanReceiveTrial(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, fmt.Errorf("%w: %s", ErrTrialNotEligible, tier)
	}

	if days <= 0 {
		days = s.plans.LimitsFor(tier).TrialDays
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: no trial configured for %s", ErrTrialNotEligible, tier)
	}

	promoCode = strings.TrimSpace(promoCode)
	source, label := TrialSourceWelcome, "WELCOME"
	if promoCode != "" {
		source, label = promoCode, promoCode
	}

	return s.ActivateSubscription(ctx, ActivationRequest{
		UserID:       userID,
		Tier:         tier,
		DurationDays: days,
		ChargeID:     fmt.Sprintf("TRIAL_%s_%d", label, s.clock.Now().Unix()),
		Provider:     TrialProvider,
		IsTrial:      true,
		TrialSource:  source,
	})
}

// UserCanReceiveTrial reports whether a trial of tier may be granted: the
// tier must be paid and strictly above every tier the user has held.
func (s *SubscriptionService) UserCanReceiveTrial(ctx context.Context, userID string, tier models.Tier) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, invalidArg("user id is required")
	}
	requested, ok := s.plans.Level(tier)
	if !ok {
		return false, unknownTier(string(tier))
	}
	if !tier.IsPaid() {
		return false, nil
	}

	view, err := s.GetUserSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	if view.Status == models.StatusActive && !view.IsTrial && view.Tier.IsPaid() {
		if current, _ := s.plans.Level(view.Tier); current >= requested {
			return false, nil
		}
	}

	history, err := s.repos.Subscription.ListByUser(ctx, userID)
	if err != nil {
		return false, storageErr("list subscription history", err)
	}
	highest := 0
	for _, row := range history {
		held := []models.Tier{row.Tier}
		if row.OriginalTierBeforeExpiry != nil {
			held = append(held, *row.OriginalTierBeforeExpiry)
		}
		for _, t := range held {
			if lvl, ok := s.plans.Level(t); ok && lvl > highest {
				highest = lvl
			}
		}
	}
	return requested > highest, nil
}

// CheckMessageLimit reports the daily allowance of a user. Bonus messages
// extend the plan limit.
func (s *SubscriptionService) CheckMessageLimit(ctx context.Context, userID string) (*MessageLimit, error) {
	view, err := s.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return messageLimitFor(view), nil
}

func messageLimitFor(view *SubscriptionView) *MessageLimit {
	used := view.Usage.DailyMessagesUsed
	bonus := view.Usage.BonusMessagesRemaining
	planLimit := view.Limits.DailyMessages

	if view.Limits.IsUnlimitedMessages() {
		return &MessageLimit{
			Allowed:        true,
			Used:           used,
			LimitFromPlan:  planLimit,
			BonusAvailable: bonus,
			EffectiveLimit: plans.Unlimited,
			Remaining:      plans.Unlimited,
			Unlimited:      true,
		}
	}

	effective := planLimit + bonus
	return &MessageLimit{
		Allowed:        used < effective,
		Used:           used,
		LimitFromPlan:  planLimit,
		BonusAvailable: bonus,
		EffectiveLimit: effective,
		Remaining:      max(0, effective-used),
	}
}

// IncrementMessageUsage consumes count messages, bonus first.
func (s *SubscriptionService) IncrementMessageUsage(ctx context.Context, userID string, count int) error {
	if count <= 0 {
		return nil
	}
	if strings.TrimSpace(userID) == "" {
		return invalidArg("user id is required")
	}

	now := s.clock.Now()
	if _, err := s.repos.User.GetOrCreate(ctx, userID, models.UserProfile{}, now); err != nil {
		return storageErr("get or create user", err)
	}

	usage, err := s.repos.Usage.Increment(ctx, userID, count, now.UTC().Format(models.DateLayout), now)
	if err != nil {
		return storageErr("increment usage", err)
	}
	s.invalidate(ctx, userID)

	s.logger.Debug("message usage incremented",
		"user_id", userID,
		"count", count,
		"daily_used", usage.DailyMessagesUsed,
		"bonus_remaining", usage.BonusMessagesRemaining,
	)
	return nil
}

// AddBonusMessages grants bonus messages. expiresInDays > 0 sets an expiry
// that never shortens an existing one; 0 makes the bonus permanent.
func (s *SubscriptionService) AddBonusMessages(ctx context.Context, userID string, amount int, source string, expiresInDays int) (*models.UserUsage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidArg("user id is required")
	}
	if expiresInDays < 0 {
		return nil, invalidArg("expiry days must not be negative")
	}

	now := s.clock.Now()
	if _, err := s.repos.User.GetOrCreate(ctx, userID, models.UserProfile{}, now); err != nil {
		return nil, storageErr("get or create user", err)
	}

	usage, err := s.loadUsage(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return usage, nil
	}

	var expiresAt *time.Time
	if expiresInDays > 0 {
		exp := now.AddDate(0, 0, expiresInDays)
		if usage.BonusExpiresAt != nil && usage.BonusExpiresAt.After(exp) {
			exp = *usage.BonusExpiresAt
		}
		expiresAt = &exp
	}

	updated, err := s.repos.Usage.AddBonus(ctx, userID, amount, expiresAt, now)
	if err != nil {
		return nil, storageErr("add bonus", err)
	}
	s.invalidate(ctx, userID)

	s.logger.Info("bonus messages granted",
		"user_id", userID,
		"amount", amount,
		"source", source,
		"expires_in_days", expiresInDays,
		"remaining", updated.BonusMessagesRemaining,
	)
	return updated, nil
}

// CheckFeatureAccess evaluates a feature against the user's tier. Expired
// subscriptions are checked against the free tier.
func (s *SubscriptionService) CheckFeatureAccess(ctx context.Context, userID, feature string, fc FeatureContext) (*FeatureAccess, error) {
	view, err := s.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	tier, limits := view.Tier, view.Limits
	if view.Status == models.StatusExpired {
		tier, limits = models.TierFree, s.plans.LimitsFor(models.TierFree)
	}
	return s.evaluateFeature(tier, limits, feature, fc)
}

func (s *SubscriptionService) evaluateFeature(tier models.Tier, limits plans.TierLimits, feature string, fc FeatureContext) (*FeatureAccess, error) {
	access, err := featureAllowed(limits, feature, fc)
	if err != nil {
		return nil, err
	}
	access.TierChecked = tier

	if !access.Allowed {
		for _, paid := range s.plans.PaidTiers() {
			other, err := featureAllowed(s.plans.LimitsFor(paid), feature, fc)
			if err == nil && other.Allowed {
				access.AvailableInTiers = append(access.AvailableInTiers, paid)
			}
		}
	}
	return access, nil
}

// featureAllowed checks one feature on a limits bundle.
func featureAllowed(limits plans.TierLimits, feature string, fc FeatureContext) (*FeatureAccess, error) {
	access := &FeatureAccess{Feature: feature}

	switch feature {
	case plans.FeaturePersonaAccess:
		access.LimitValue = limits.PersonasAccess
		if fc.Persona == "" {
			access.Reason = "Persona not specified."
			return access, nil
		}
		access.CurrentValue = fc.Persona
		access.Allowed = limits.AllowsPersona(fc.Persona)
		if !access.Allowed {
			access.Reason = fmt.Sprintf("Persona %q is not available on this tier.", fc.Persona)
		}
		return access, nil

	case plans.FeatureSextingLevel:
		access.LimitValue = limits.SextingMaxLevel
		if fc.Level == nil {
			access.Reason = "Sexting level not specified."
			return access, nil
		}
		access.CurrentValue = *fc.Level
		access.Allowed = *fc.Level <= limits.SextingMaxLevel
		if !access.Allowed {
			access.Reason = fmt.Sprintf("Sexting level %d exceeds the allowed %d.", *fc.Level, limits.SextingMaxLevel)
		}
		return access, nil
	}

	value, ok := limits.FeatureValue(feature)
	if !ok {
		return nil, unknownFeature(feature)
	}
	access.LimitValue = value
	access.Allowed = featureEnabled(value)
	if !access.Allowed {
		access.Reason = fmt.Sprintf("Feature %s is not available on this tier.", feature)
	}
	return access, nil
}

// featureEnabled gates bool flags directly and numeric limits as -1 or > 0.
func featureEnabled(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v == plans.Unlimited || v > 0
	case int64:
		return v == plans.Unlimited || v > 0
	case float64:
		return v == plans.Unlimited || v > 0
	case string:
		return v != ""
	default:
		return value != nil
	}
}

// LowestTierOffering returns the lowest paid tier in which the feature is allowed.
func (s *SubscriptionService) LowestTierOffering(feature string, fc FeatureContext) (models.Tier, bool) {
	for _, tier := range s.plans.PaidTiers() {
		access, err := featureAllowed(s.plans.LimitsFor(tier), feature, fc)
		if err == nil && access.Allowed {
			return tier, true
		}
	}
	return "", false
}

// SubscriptionHistory returns every subscription row of a user, newest first.
func (s *SubscriptionService) SubscriptionHistory(ctx context.Context, userID string) ([]*models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidArg("user id is required")
	}
	history, err := s.repos.Subscription.ListByUser(ctx, userID)
	if err != nil {
		return nil, storageErr("list subscription history", err)
	}
	if history == nil {
		history = []*models.Subscription{}
	}
	return history, nil
}

// TierStats counts live subscriptions per tier. Every tier is present.
func (s *SubscriptionService) TierStats(ctx context.Context) (map[models.Tier]int, error) {
	counts, err := s.repos.Subscription.CountLiveByTier(ctx)
	if err != nil {
		return nil, storageErr("count subscriptions", err)
	}
	stats := make(map[models.Tier]int, len(models.AllTiers))
	for _, tier := range s.plans.Tiers() {
		stats[tier] = counts[tier]
	}
	return stats, nil
}

// cachedView returns a cached view that is still consistent with the clock.
func (s *SubscriptionService) cachedView(ctx context.Context, userID string, now time.Time) (*SubscriptionView, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, ok, err := s.cache.Get(ctx, cache.Key{Namespace: subscriptionCacheNamespace, UserID: userID})
	if err != nil {
		s.logger.Warn("subscription cache read failed", "user_id", userID, "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var view SubscriptionView
	if err := json.Unmarshal(data, &view); err != nil {
		s.logger.Warn("discarding undecodable cached subscription", "user_id", userID, "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}

	// Entries that crossed an expiry or a day boundary are resolved again.
	stale := (view.ExpiresAt != nil && !view.ExpiresAt.After(now)) ||
		view.Usage.LastMessageDate != now.UTC().Format(models.DateLayout) ||
		view.Usage.BonusExpired(now)
	if stale {
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &view, true
}

func (s *SubscriptionService) storeView(ctx context.Context, view *SubscriptionView) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		s.logger.Warn("failed to encode subscription view", "user_id", view.UserID, "error", err)
		return
	}
	key := cache.Key{Namespace: subscriptionCacheNamespace, UserID: view.UserID}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("subscription cache write failed", "user_id", view.UserID, "error", err)
	}
}

// invalidate drops the cached view of a user. Failures are logged only.
func (s *SubscriptionService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.Key{Namespace: subscriptionCacheNamespace, UserID: userID}); err != nil {
		s.logger.Warn("subscription cache invalidation failed", "user_id", userID, "error", err)
	}
}

// InvalidateAll drops every cached view, used after plan limits change.
func (s *SubscriptionService) InvalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePrefix(ctx, subscriptionCacheNamespace+":"); err != nil {
		s.logger.Warn("subscription cache flush failed", "error", err)
	}
}
