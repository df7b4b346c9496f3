package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/companion-api/internal/cache"
	"github.com/jmylchreest/companion-api/internal/config"
	"github.com/jmylchreest/companion-api/internal/models"
	"github.com/jmylchreest/companion-api/internal/plans"
)

// ========================================
// Resolution Tests
// ========================================

func TestGetUserSubscription_FreshUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.subs.GetUserSubscription(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserSubscription() error = %v", err)
	}
	if view.Tier != models.TierFree || view.Status != models.StatusActive || view.ExpiresAt != nil {
		t.Errorf("view = %s/%s/%v, want free/active/nil", view.Tier, view.Status, view.ExpiresAt)
	}
	if view.TierName != "Free" {
		t.Errorf("TierName = %q, want Free", view.TierName)
	}

	limit, err := env.subs.CheckMessageLimit(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckMessageLimit() error = %v", err)
	}
	if limit.EffectiveLimit != plans.Defaults()[models.TierFree].DailyMessages {
		t.Errorf("EffectiveLimit = %d, want free daily limit", limit.EffectiveLimit)
	}
	if !limit.Allowed || limit.Remaining != limit.EffectiveLimit {
		t.Errorf("limit = %+v, want full allowance", limit)
	}

	t.Run("free row is reused", func(t *testing.T) {
		if _, err := env.subs.GetUserSubscription(ctx, "u1"); err != nil {
			t.Fatalf("GetUserSubscription() error = %v", err)
		}
		history, err := env.subs.SubscriptionHistory(ctx, "u1")
		if err != nil {
			t.Fatalf("SubscriptionHistory() error = %v", err)
		}
		if len(history) != 1 {
			t.Errorf("history = %d rows, want 1", len(history))
		}
	})

	t.Run("empty user id", func(t *testing.T) {
		if _, err := env.subs.GetUserSubscription(ctx, " "); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
	})
}

func TestGetUserSubscription_GraceTransition(t *testing.T) {
	tests := []struct {
		name         string
		expiresIn    time.Duration
		wantTier     models.Tier
		wantStatus   models.SubscriptionStatus
		wantOriginal bool
	}{
		{"still active", days(2), models.TierBasic, models.StatusActive, false},
		{"inside grace", -days(1), models.TierBasic, models.StatusGracePeriod, false},
		{"past grace", -days(4), models.TierFree, models.StatusActive, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			sub := env.seedSubscription(t, "u1", models.TierBasic, models.StatusActive,
				testNow.Add(-days(30)), timePtr(testNow.Add(tt.expiresIn)))

			view, err := env.subs.GetUserSubscription(ctx, "u1")
			if err != nil {
				t.Fatalf("GetUserSubscription() error = %v", err)
			}
			if view.Tier != tt.wantTier || view.Status != tt.wantStatus {
				t.Errorf("view = %s/%s, want %s/%s", view.Tier, view.Status, tt.wantTier, tt.wantStatus)
			}
			if tt.wantOriginal {
				if view.OriginalTierBeforeExpiry == nil || *view.OriginalTierBeforeExpiry != models.TierBasic {
					t.Errorf("OriginalTierBeforeExpiry = %v, want basic", view.OriginalTierBeforeExpiry)
				}
				if view.ExpiresAt != nil {
					t.Errorf("ExpiresAt = %v, want nil after downgrade", view.ExpiresAt)
				}
			}

			stored, err := env.repos.Subscription.GetByID(ctx, sub.ID)
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if stored.Tier != tt.wantTier || stored.Status != tt.wantStatus {
				t.Errorf("stored = %s/%s, want the transition persisted", stored.Tier, stored.Status)
			}
		})
	}
}

func TestApplyLifecycle_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.seedSubscription(t, "u1", models.TierPremium, models.StatusActive,
		testNow.Add(-days(31)), timePtr(testNow.Add(-days(1))))

	changed, err := env.subs.ApplyLifecycle(ctx, sub)
	if err != nil {
		t.Fatalf("ApplyLifecycle() error = %v", err)
	}
	if !changed || sub.Status != models.StatusGracePeriod {
		t.Fatalf("first call changed = %v status = %s, want grace", changed, sub.Status)
	}

	changed, err = env.subs.ApplyLifecycle(ctx, sub)
	if err != nil {
		t.Fatalf("ApplyLifecycle() error = %v", err)
	}
	if changed {
		t.Error("second call under unchanged conditions should not write")
	}
}

func TestApplyLifecycle_Repairs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("paid without expiry is downgraded", func(t *testing.T) {
		sub := env.seedSubscription(t, "u1", models.TierVIP, models.StatusActive, testNow.Add(-days(3)), nil)
		changed, err := env.subs.ApplyLifecycle(ctx, sub)
		if err != nil {
			t.Fatalf("ApplyLifecycle() error = %v", err)
		}
		if !changed || sub.Tier != models.TierFree {
			t.Errorf("tier = %s, want free", sub.Tier)
		}
		if sub.OriginalTierBeforeExpiry == nil || *sub.OriginalTierBeforeExpiry != models.TierVIP {
			t.Errorf("OriginalTierBeforeExpiry = %v, want vip", sub.OriginalTierBeforeExpiry)
		}
	})

	t.Run("free drift is repaired", func(t *testing.T) {
		sub := env.seedSubscription(t, "u2", models.TierFree, models.StatusTrial, testNow, timePtr(testNow.Add(days(1))))
		changed, err := env.subs.ApplyLifecycle(ctx, sub)
		if err != nil {
			t.Fatalf("ApplyLifecycle() error = %v", err)
		}
		if !changed || sub.Status != models.StatusActive || sub.ExpiresAt != nil {
			t.Errorf("sub = %s/%v, want active/nil", sub.Status, sub.ExpiresAt)
		}
	})
}

// ========================================
// Activation Tests
// ========================================

func TestActivateSubscription_UpgradeMidCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	basic := env.seedSubscription(t, "u1", models.TierBasic, models.StatusActive,
		testNow.Add(-days(20)), timePtr(testNow.Add(days(10))))

	result, err := env.subs.ActivateSubscription(ctx, ActivationRequest{
		UserID:        "u1",
		Tier:          models.TierPremium,
		DurationDays:  30,
		PaymentAmount: 250,
		ChargeID:      "charge-1",
		Provider:      "telegram_stars",
	})
	if err != nil {
		t.Fatalf("ActivateSubscription() error = %v", err)
	}
	if result.Extended {
		t.Error("upgrade should not extend")
	}
	if result.ExpiresAt == nil || !result.ExpiresAt.Equal(testNow.Add(days(30))) {
		t.Errorf("ExpiresAt = %v, want now+30d", result.ExpiresAt)
	}

	old, err := env.repos.Subscription.GetByID(ctx, basic.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if old.Status != models.StatusCancelled {
		t.Errorf("old status = %s, want cancelled", old.Status)
	}
	if old.ExpiresAt == nil || !old.ExpiresAt.Equal(testNow) {
		t.Errorf("old expiry = %v, want closed at now", old.ExpiresAt)
	}

	view, err := env.subs.GetUserSubscription(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserSubscription() error = %v", err)
	}
	if view.Tier != models.TierPremium || view.ChargeID != "charge-1" || view.PaymentAmount != 250 {
		t.Errorf("view = %+v, want premium from charge-1", view)
	}
}

func TestActivateSubscription_RenewalSameTier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	oldExpiry := testNow.Add(days(5))
	premium := env.seedSubscription(t, "u1", models.TierPremium, models.StatusActive,
		testNow.Add(-days(25)), timePtr(oldExpiry))

	result, err := env.subs.ActivateSubscription(ctx, ActivationRequest{
		UserID:       "u1",
		Tier:         models.TierPremium,
		DurationDays: 30,
		ChargeID:     "charge-2",
		Provider:     "stripe",
	})
	if err != nil {
		t.Fatalf("ActivateSubscription() error = %v", err)
	}
	if !result.Extended {
		t.Error("same-tier renewal should extend")
	}
	want := oldExpiry.Add(days(30))
	if result.ExpiresAt == nil || !result.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", result.ExpiresAt, want)
	}

	old, _ := env.repos.Subscription.GetByID(ctx, premium.ID)
	if old.Status != models.StatusCancelled || !old.ExpiresAt.Equal(oldExpiry) {
		t.Errorf("superseded row = %s/%v, want cancelled with expiry unchanged", old.Status, old.ExpiresAt)
	}

	live, err := env.repos.Subscription.ListLive(ctx, "u1")
	if err != nil {
		t.Fatalf("ListLive() error = %v", err)
	}
	if len(live) != 1 {
		t.Errorf("live rows = %d, want 1", len(live))
	}
}

func TestActivateSubscription_ResetsDailyUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.subs.IncrementMessageUsage(ctx, "u1", 15); err != nil {
		t.Fatalf("IncrementMessageUsage() error = %v", err)
	}
	if _, err := env.subs.ActivateSubscription(ctx, ActivationRequest{
		UserID: "u1", Tier: models.TierBasic, DurationDays: 30, Provider: "manual",
	}); err != nil {
		t.Fatalf("ActivateSubscription() error = %v", err)
	}

	limit, err := env.subs.CheckMessageLimit(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckMessageLimit() error = %v", err)
	}
	if limit.Used != 0 || limit.LimitFromPlan != 100 {
		t.Errorf("limit = %+v, want used 0 of 100", limit)
	}
}

func TestActivateSubscription_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("duplicate payment", func(t *testing.T) {
		req := ActivationRequest{UserID: "u1", Tier: models.TierBasic, DurationDays: 30, ChargeID: "dup", Provider: "stripe"}
		if _, err := env.subs.ActivateSubscription(ctx, req); err != nil {
			t.Fatalf("first ActivateSubscription() error = %v", err)
		}
		_, err := env.subs.ActivateSubscription(ctx, req)
		if !errors.Is(err, ErrDuplicatePayment) {
			t.Errorf("error = %v, want ErrDuplicatePayment", err)
		}
	})

	t.Run("unknown tier", func(t *testing.T) {
		_, err := env.subs.ActivateSubscription(ctx, ActivationRequest{UserID: "u1", Tier: "gold", DurationDays: 30})
		if !errors.Is(err, ErrUnknownTier) {
			t.Errorf("error = %v, want ErrUnknownTier", err)
		}
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) || cfgErr.Value != "gold" {
			t.Errorf("error = %v, want ConfigurationError for gold", err)
		}
	})

	t.Run("paid without duration", func(t *testing.T) {
		_, err := env.subs.ActivateSubscription(ctx, ActivationRequest{UserID: "u1", Tier: models.TierVIP})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("error = %v, want ErrInvalidArgument", err)
		}
	})
}

// ========================================
// Trial Tests
// ========================================

func TestUserCanReceiveTrial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	eligible, err := env.subs.UserCanReceiveTrial(ctx, "u1", models.TierBasic)
	if err != nil {
		t.Fatalf("UserCanReceiveTrial() error = %v", err)
	}
	if !eligible {
		t.Error("fresh user should be eligible for a basic trial")
	}

	if eligible, _ := env.subs.UserCanReceiveTrial(ctx, "u1", models.TierFree); eligible {
		t.Error("free is never a trial tier")
	}

	if _, err := env.subs.ActivateTrialSubscription(ctx, "u1", models.TierPremium, 0, ""); err != nil {
		t.Fatalf("ActivateTrialSubscription() error = %v", err)
	}

	tests := []struct {
		tier models.Tier
		want bool
	}{
		{models.TierBasic, false},
		{models.TierPremium, false},
		{models.TierVIP, true},
	}
	for _, tt := range tests {
		got, err := env.subs.UserCanReceiveTrial(ctx, "u1", tt.tier)
		if err != nil {
			t.Fatalf("UserCanReceiveTrial(%s) error = %v", tt.tier, err)
		}
		if got != tt.want {
			t.Errorf("UserCanReceiveTrial(%s) = %v, want %v", tt.tier, got, tt.want)
		}
	}

	t.Run("downgraded tier still counts as held", func(t *testing.T) {
		env.seedSubscription(t, "u2", models.TierPremium, models.StatusActive,
			testNow.Add(-days(40)), timePtr(testNow.Add(-days(10))))
		if _, err := env.subs.GetUserSubscription(ctx, "u2"); err != nil {
			t.Fatalf("GetUserSubscription() error = %v", err)
		}
		got, err := env.subs.UserCanReceiveTrial(ctx, "u2", models.TierPremium)
		if err != nil {
			t.Fatalf("UserCanReceiveTrial() error = %v", err)
		}
		if got {
			t.Error("a previously held premium tier should not be trialable")
		}
	})

	t.Run("unknown tier", func(t *testing.T) {
		if _, err := env.subs.UserCanReceiveTrial(ctx, "u1", "gold"); !errors.Is(err, ErrUnknownTier) {
			t.Errorf("error = %v, want ErrUnknownTier", err)
		}
	})
}

func TestActivateTrialSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.subs.ActivateTrialSubscription(ctx, "u1", models.TierBasic, 0, "")
	if err != nil {
		t.Fatalf("ActivateTrialSubscription() error = %v", err)
	}
	trialDays := plans.Defaults()[models.TierBasic].TrialDays
	if result.ExpiresAt == nil || !result.ExpiresAt.Equal(testNow.Add(days(trialDays))) {
		t.Errorf("ExpiresAt = %v, want now+%dd", result.ExpiresAt, trialDays)
	}

	view, err := env.subs.GetUserSubscription(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserSubscription() error = %v", err)
	}
	if !view.IsTrial || view.Status != models.StatusTrial || view.PaymentProvider != TrialProvider {
		t.Errorf("view = trial %v status %s provider %s", view.IsTrial, view.Status, view.PaymentProvider)
	}
	if view.TrialSource != TrialSourceWelcome || !strings.HasPrefix(view.ChargeID, "TRIAL_WELCOME_") {
		t.Errorf("trial source %q charge %q, want welcome bonus", view.TrialSource, view.ChargeID)
	}

	t.Run("promo code", func(t *testing.T) {
		env.clock.Add(time.Hour)
		if _, err := env.subs.ActivateTrialSubscription(ctx, "u1", models.TierPremium, 14, "SPRING"); err != nil {
			t.Fatalf("ActivateTrialSubscription() error = %v", err)
		}
		view, _ := env.subs.GetUserSubscription(ctx, "u1")
		if view.TrialSource != "SPRING" || !strings.HasPrefix(view.ChargeID, "TRIAL_SPRING_") {
			t.Errorf("trial source %q charge %q, want SPRING", view.TrialSource, view.ChargeID)
		}
	})

	t.Run("not eligible twice", func(t *testing.T) {
		_, err := env.subs.ActivateTrialSubscription(ctx, "u1", models.TierPremium, 14, "")
		if !errors.Is(err, ErrTrialNotEligible) {
			t.Errorf("error = %v, want ErrTrialNotEligible", err)
		}
	})
}

// ========================================
// Usage Tests
// ========================================

func TestIncrementMessageUsage_BonusPrecedence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.subs.AddBonusMessages(ctx, "u1", 3, "test", 0); err != nil {
		t.Fatalf("AddBonusMessages() error = %v", err)
	}
	if err := env.subs.IncrementMessageUsage(ctx, "u1", 5); err != nil {
		t.Fatalf("IncrementMessageUsage() error = %v", err)
	}

	view, err := env.subs.GetUserSubscription(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserSubscription() error = %v", err)
	}
	if view.Usage.BonusMessagesRemaining != 0 {
		t.Errorf("BonusMessagesRemaining = %d, want 0", view.Usage.BonusMessagesRemaining)
	}
	if view.Usage.DailyMessagesUsed != 2 {
		t.Errorf("DailyMessagesUsed = %d, want 2", view.Usage.DailyMessagesUsed)
	}

	t.Run("non-positive count is a no-op", func(t *testing.T) {
		if err := env.subs.IncrementMessageUsage(ctx, "u1", 0); err != nil {
			t.Fatalf("IncrementMessageUsage() error = %v", err)
		}
		view, _ := env.subs.GetUserSubscription(ctx, "u1")
		if view.Usage.DailyMessagesUsed != 2 {
			t.Errorf("DailyMessagesUsed = %d, want 2", view.Usage.DailyMessagesUsed)
		}
	})
}

func TestDailyRollover_KeepsBonus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.subs.AddBonusMessages(ctx, "u1", 5, "promo", 30); err != nil {
		t.Fatalf("AddBonusMessages() error = %v", err)
	}
	if err := env.subs.IncrementMessageUsage(ctx, "u1", 12); err != nil {
		t.Fatalf("IncrementMessageUsage() error = %v", err)
	}

	env.clock.Add(24 * time.Hour)
	view, err := env.subs.GetUserSubscription(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserSubscription() error = %v", err)
	}
	if view.Usage.DailyMessagesUsed != 0 {
		t.Errorf("DailyMessagesUsed = %d, want 0 after rollover", view.Usage.DailyMessagesUsed)
	}
	if view.Usage.LastMessageDate != "2026-03-15" {
		t.Errorf("LastMessageDate = %q, want 2026-03-15", view.Usage.LastMessageDate)
	}
	if view.Usage.BonusMessagesRemaining != 0 || view.Usage.BonusMessagesTotal != 5 {
		t.Errorf("bonus = %d/%d, want 0/5 untouched by rollover", view.Usage.BonusMessagesRemaining, view.Usage.BonusMessagesTotal)
	}
}

func TestQuotaMonotonicity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	previous := -1
	for i := 0; i < 20; i++ {
		limit, err := env.subs.CheckMessageLimit(ctx, "u1")
		if err != nil {
			t.Fatalf("CheckMessageLimit() error = %v", err)
		}
		if !limit.Allowed {
			t.Fatalf("message %d denied within the free quota", i+1)
		}
		if previous >= 0 && limit.Remaining >= previous {
			t.Fatalf("remaining %d did not decrease from %d", limit.Remaining, previous)
		}
		previous = limit.Remaining
		if err := env.subs.IncrementMessageUsage(ctx, "u1", 1); err != nil {
			t.Fatalf("IncrementMessageUsage() error = %v", err)
		}
	}

	limit, err := env.subs.CheckMessageLimit(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckMessageLimit() error = %v", err)
	}
	if limit.Allowed || limit.Remaining != 0 {
		t.Errorf("limit = %+v, want exhausted", limit)
	}

	if _, err := env.subs.AddBonusMessages(ctx, "u1", 5, "support", 0); err != nil {
		t.Fatalf("AddBonusMessages() error = %v", err)
	}
	limit, _ = env.subs.CheckMessageLimit(ctx, "u1")
	if !limit.Allowed || limit.EffectiveLimit != 25 || limit.Remaining != 5 {
		t.Errorf("limit = %+v, want bonus to extend the allowance", limit)
	}
}

func TestUnlimitedMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedSubscription(t, "u1", models.TierVIP, models.StatusActive, testNow, timePtr(testNow.Add(days(30))))

	if err := env.subs.IncrementMessageUsage(ctx, "u1", 10000); err != nil {
		t.Fatalf("IncrementMessageUsage() error = %v", err)
	}
	limit, err := env.subs.CheckMessageLimit(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckMessageLimit() error = %v", err)
	}
	if !limit.Allowed || !limit.Unlimited || limit.Remaining != plans.Unlimited {
		t.Errorf("limit = %+v, want unlimited", limit)
	}
}

func TestAddBonusMessages_Expiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	usage, err := env.subs.AddBonusMessages(ctx, "u1", 10, "promo", 10)
	if err != nil {
		t.Fatalf("AddBonusMessages() error = %v", err)
	}
	longExpiry := testNow.Add(days(10))
	if usage.BonusExpiresAt == nil || !usage.BonusExpiresAt.Equal(longExpiry) {
		t.Fatalf("BonusExpiresAt = %v, want %v", usage.BonusExpiresAt, longExpiry)
	}

	usage, err = env.subs.AddBonusMessages(ctx, "u1", 5, "referral", 3)
	if err != nil {
		t.Fatalf("AddBonusMessages() error = %v", err)
	}
	if !usage.BonusExpiresAt.Equal(longExpiry) {
		t.Errorf("BonusExpiresAt = %v, a shorter grant must not shorten the expiry", usage.BonusExpiresAt)
	}
	if usage.BonusMessagesRemaining != 15 || usage.BonusMessagesTotal != 15 {
		t.Errorf("bonus = %d/%d, want 15/15", usage.BonusMessagesRemaining, usage.BonusMessagesTotal)
	}

	t.Run("expired bonus is cleared", func(t *testing.T) {
		env.clock.Add(days(11))
		view, err := env.subs.GetUserSubscription(ctx, "u1")
		if err != nil {
			t.Fatalf("GetUserSubscription() error = %v", err)
		}
		if view.Usage.BonusMessagesRemaining != 0 || view.Usage.BonusMessagesTotal != 0 || view.Usage.BonusExpiresAt != nil {
			t.Errorf("usage = %+v, want bonus cleared", view.Usage)
		}
	})

	t.Run("non-positive amount is a no-op", func(t *testing.T) {
		usage, err := env.subs.AddBonusMessages(ctx, "u1", 0, "noop", 0)
		if err != nil {
			t.Fatalf("AddBonusMessages() error = %v", err)
		}
		if usage.BonusMessagesTotal != 0 {
			t.Errorf("BonusMessagesTotal = %d, want 0", usage.BonusMessagesTotal)
		}
	})
}

// ========================================
// Feature Access Tests
// ========================================

func TestCheckFeatureAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedSubscription(t, "basic-user", models.TierBasic, models.StatusActive, testNow, timePtr(testNow.Add(days(30))))
	env.seedSubscription(t, "vip-user", models.TierVIP, models.StatusActive, testNow, timePtr(testNow.Add(days(30))))

	tests := []struct {
		name      string
		userID    string
		feature   string
		fc        FeatureContext
		want      bool
		available []models.Tier
	}{
		{"free voice", "free-user", plans.FeatureVoiceMessages, FeatureContext{}, false, []models.Tier{models.TierBasic, models.TierPremium, models.TierVIP}},
		{"basic voice", "basic-user", plans.FeatureVoiceMessages, FeatureContext{}, true, nil},
		{"free insights", "free-user", plans.FeatureAIInsights, FeatureContext{}, false, []models.Tier{models.TierPremium, models.TierVIP}},
		{"free persona", "free-user", plans.FeaturePersonaAccess, FeatureContext{Persona: "aeris_friend"}, true, nil},
		{"free locked persona", "free-user", plans.FeaturePersonaAccess, FeatureContext{Persona: "luneth_basic"}, false, []models.Tier{models.TierBasic, models.TierPremium, models.TierVIP}},
		{"missing persona", "free-user", plans.FeaturePersonaAccess, FeatureContext{}, false, nil},
		{"vip wildcard persona", "vip-user", plans.FeaturePersonaAccess, FeatureContext{Persona: "anyone"}, true, nil},
		{"basic sexting in range", "basic-user", plans.FeatureSextingLevel, FeatureContext{Level: intPtr(5)}, true, nil},
		{"basic sexting too high", "basic-user", plans.FeatureSextingLevel, FeatureContext{Level: intPtr(7)}, false, []models.Tier{models.TierPremium, models.TierVIP}},
		{"vip additional feature", "vip-user", "early_access", FeatureContext{}, true, nil},
		{"unlimited numeric", "vip-user", plans.FeatureMaxMemoryEntries, FeatureContext{}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			access, err := env.subs.CheckFeatureAccess(ctx, tt.userID, tt.feature, tt.fc)
			if err != nil {
				t.Fatalf("CheckFeatureAccess() error = %v", err)
			}
			if access.Allowed != tt.want {
				t.Errorf("Allowed = %v, want %v (%s)", access.Allowed, tt.want, access.Reason)
			}
			if !slices.Equal(access.AvailableInTiers, tt.available) {
				t.Errorf("AvailableInTiers = %v, want %v", access.AvailableInTiers, tt.available)
			}
		})
	}

	t.Run("unknown feature", func(t *testing.T) {
		_, err := env.subs.CheckFeatureAccess(ctx, "free-user", "teleportation", FeatureContext{})
		if !errors.Is(err, ErrUnknownFeature) {
			t.Errorf("error = %v, want ErrUnknownFeature", err)
		}
	})
}

// ========================================
// Admin Query Tests
// ========================================

func TestTierStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedSubscription(t, "a", models.TierBasic, models.StatusActive, testNow, timePtr(testNow.Add(days(30))))
	env.seedSubscription(t, "b", models.TierBasic, models.StatusTrial, testNow, timePtr(testNow.Add(days(3))))
	env.seedSubscription(t, "c", models.TierPremium, models.StatusCancelled, testNow, timePtr(testNow))

	stats, err := env.subs.TierStats(ctx)
	if err != nil {
		t.Fatalf("TierStats() error = %v", err)
	}
	if stats[models.TierBasic] != 2 || stats[models.TierPremium] != 0 {
		t.Errorf("stats = %v, want basic 2 premium 0", stats)
	}
	if _, ok := stats[models.TierVIP]; !ok {
		t.Error("every tier should be present in stats")
	}
}

// ========================================
// Cache Tests
// ========================================

func TestSubscriptionService_CacheInvalidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mem := cache.NewMemory(env.clock, time.Minute, testLogger())
	t.Cleanup(func() { _ = mem.Close() })
	svc := NewSubscriptionService(env.repos, env.plans, mem, time.Minute, config.DefaultLimitsConfig(), env.clock, testLogger())

	if _, err := svc.GetUserSubscription(ctx, "u1"); err != nil {
		t.Fatalf("GetUserSubscription() error = %v", err)
	}
	if mem.Size() != 1 {
		t.Fatalf("cache size = %d, want 1", mem.Size())
	}

	if err := svc.IncrementMessageUsage(ctx, "u1", 4); err != nil {
		t.Fatalf("IncrementMessageUsage() error = %v", err)
	}
	view, err := svc.GetUserSubscription(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserSubscription() error = %v", err)
	}
	if view.Usage.DailyMessagesUsed != 4 {
		t.Errorf("DailyMessagesUsed = %d, want 4 after invalidation", view.Usage.DailyMessagesUsed)
	}

	if _, err := svc.ActivateSubscription(ctx, ActivationRequest{UserID: "u1", Tier: models.TierPremium, DurationDays: 30}); err != nil {
		t.Fatalf("ActivateSubscription() error = %v", err)
	}
	view, _ = svc.GetUserSubscription(ctx, "u1")
	if view.Tier != models.TierPremium {
		t.Errorf("Tier = %s, want premium after activation", view.Tier)
	}

	svc.InvalidateAll(ctx)
	if mem.Size() != 0 {
		t.Errorf("cache size = %d, want 0 after InvalidateAll", mem.Size())
	}
}

func TestCheckMessageLimit_EnforcedAcrossReads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if err := env.subs.IncrementMessageUsage(ctx, "u1", 1); err != nil {
			t.Fatalf("IncrementMessageUsage() error = %v", err)
		}
	}

	// Reads must not roll the counter over within the same day.
	for i := 0; i < 2; i++ {
		limit, err := env.subs.CheckMessageLimit(ctx, "u1")
		if err != nil {
			t.Fatalf("CheckMessageLimit() error = %v", err)
		}
		if limit.Allowed || limit.Used != 25 || limit.Remaining != 0 {
			t.Fatalf("limit = %+v, want 25 used and denied", limit)
		}
	}
}

// staticSource serves one fixed override document.
type staticSource struct {
	overrides map[models.Tier]plans.TierOverride
}

func (s *staticSource) Load(context.Context) (map[models.Tier]plans.TierOverride, error) {
	return s.overrides, nil
}

func (s *staticSource) NeedsRefresh() bool { return true }

func TestNewServices_PlanReloadFlushesViews(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	mem := cache.NewMemory(env.clock, time.Minute, testLogger())
	t.Cleanup(func() { _ = mem.Close() })

	daily := 7
	p := plans.New(nil, testLogger()).WithSource(&staticSource{overrides: map[models.Tier]plans.TierOverride{
		models.TierFree: {DailyMessages: &daily},
	}})
	cfg := &config.Config{
		CacheTTL: time.Minute,
		Limits:   config.DefaultLimitsConfig(),
		AntiSpam: config.DefaultAntiSpamConfig(),
	}
	svc := NewServices(cfg, env.repos, p, mem, env.clock, testLogger())

	if _, err := svc.Subscription.GetUserSubscription(ctx, "u1"); err != nil {
		t.Fatalf("GetUserSubscription() error = %v", err)
	}
	if mem.Size() != 1 {
		t.Fatalf("cache size = %d, want 1", mem.Size())
	}

	if err := p.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if mem.Size() != 0 {
		t.Errorf("cache size = %d, want 0 after plan reload", mem.Size())
	}
	limit, err := svc.Subscription.CheckMessageLimit(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckMessageLimit() error = %v", err)
	}
	if limit.LimitFromPlan != 7 {
		t.Errorf("LimitFromPlan = %d, want 7 from the reloaded plans", limit.LimitFromPlan)
	}
}
