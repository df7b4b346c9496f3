package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/companion-api/internal/logging"
	"github.com/jmylchreest/companion-api/internal/models"
	"github.com/jmylchreest/companion-api/internal/plans"
	"github.com/jmylchreest/companion-api/internal/service"
)

// ManualProvider is the payment provider recorded for admin activations.
const ManualProvider = "manual"

// AdminHandler handles operator endpoints (admin role only).
type AdminHandler struct {
	subs        *service.SubscriptionService
	maintenance *service.MaintenanceService
	plans       *plans.Plans
	logger      *slog.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(subs *service.SubscriptionService, maintenance *service.MaintenanceService, p *plans.Plans, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		subs:        subs,
		maintenance: maintenance,
		plans:       p,
		logger:      logger,
	}
}

// AdminActivateInput activates a subscription by hand.
type AdminActivateInput struct {
	UserID string `path:"userID" minLength:"1" doc:"Chat platform user id"`
	Body   struct {
		Tier          string `json:"tier" doc:"Tier to activate"`
		DurationDays  int    `json:"duration_days" minimum:"0" doc:"Length in days (ignored for free)"`
		PaymentAmount int    `json:"payment_amount,omitempty" minimum:"0" doc:"Amount paid, in provider units"`
		ChargeID      string `json:"charge_id,omitempty" doc:"External charge id; repeated ids are rejected"`
		Provider      string `json:"provider,omitempty" doc:"Payment provider (default manual)"`
	}
}

// ActivateSubscription applies a manual activation, upgrade or renewal.
func (h *AdminHandler) ActivateSubscription(ctx context.Context, input *AdminActivateInput) (*ActivationOutput, error) {
	provider := input.Body.Provider
	if provider == "" {
		provider = ManualProvider
	}

	result, err := h.subs.ActivateSubscription(ctx, service.ActivationRequest{
		UserID:        input.UserID,
		Tier:          models.Tier(input.Body.Tier),
		DurationDays:  input.Body.DurationDays,
		PaymentAmount: input.Body.PaymentAmount,
		ChargeID:      input.Body.ChargeID,
		Provider:      provider,
	})
	if err != nil {
		return nil, toHTTPError(h.logger, "activate subscription", err)
	}

	logging.FromContext(ctx, h.logger).Info("manual activation",
		"user_id", input.UserID,
		"tier", result.Tier,
		"extended", result.Extended,
	)
	return &ActivationOutput{Body: result}, nil
}

// GrantBonusInput adds bonus messages.
type GrantBonusInput struct {
	UserID string `path:"userID" minLength:"1" doc:"Chat platform user id"`
	Body   struct {
		Amount        int    `json:"amount" minimum:"1" doc:"Bonus messages to add"`
		Source        string `json:"source,omitempty" doc:"Why the bonus was granted"`
		ExpiresInDays int    `json:"expires_in_days,omitempty" minimum:"0" doc:"Days until the bonus lapses (0 = never)"`
	}
}

// UsageOutput represents a user's usage record.
type UsageOutput struct {
	Body *models.UserUsage
}

// GrantBonus adds bonus messages to a user.
func (h *AdminHandler) GrantBonus(ctx context.Context, input *GrantBonusInput) (*UsageOutput, error) {
	usage, err := h.subs.AddBonusMessages(ctx, input.UserID, input.Body.Amount, input.Body.Source, input.Body.ExpiresInDays)
	if err != nil {
		return nil, toHTTPError(h.logger, "grant bonus", err)
	}
	logging.FromContext(ctx, h.logger).Info("bonus granted",
		"user_id", input.UserID,
		"amount", input.Body.Amount,
		"source", input.Body.Source,
	)
	return &UsageOutput{Body: usage}, nil
}

// SubscriptionHistoryOutput lists subscription rows.
type SubscriptionHistoryOutput struct {
	Body struct {
		Subscriptions []*models.Subscription `json:"subscriptions" doc:"Subscription rows, newest first"`
	}
}

// GetSubscriptionHistory returns every subscription row of a user.
func (h *AdminHandler) GetSubscriptionHistory(ctx context.Context, input *UserPathInput) (*SubscriptionHistoryOutput, error) {
	history, err := h.subs.SubscriptionHistory(ctx, input.UserID)
	if err != nil {
		return nil, toHTTPError(h.logger, "subscription history", err)
	}
	out := &SubscriptionHistoryOutput{}
	out.Body.Subscriptions = history
	return out, nil
}

// TierStatsOutput reports live subscriptions per tier.
type TierStatsOutput struct {
	Body struct {
		Tiers map[models.Tier]int `json:"tiers" doc:"Live subscriptions per tier"`
		Total int                 `json:"total" doc:"Live subscriptions across all tiers"`
	}
}

// GetTierStats counts live subscriptions per tier.
func (h *AdminHandler) GetTierStats(ctx context.Context, _ *struct{}) (*TierStatsOutput, error) {
	stats, err := h.subs.TierStats(ctx)
	if err != nil {
		return nil, toHTTPError(h.logger, "tier stats", err)
	}
	out := &TierStatsOutput{}
	out.Body.Tiers = stats
	for _, n := range stats {
		out.Body.Total += n
	}
	return out, nil
}

// ReloadPlansOutput reports the limits after a reload.
type ReloadPlansOutput struct {
	Body struct {
		Reloaded bool `json:"reloaded"`
		Tiers    int  `json:"tiers"`
	}
}

// ReloadPlans fetches plan overrides now. Cached views are dropped by the
// plans reload hook.
func (h *AdminHandler) ReloadPlans(ctx context.Context, _ *struct{}) (*ReloadPlansOutput, error) {
	if err := h.plans.Reload(ctx); err != nil {
		logging.FromContext(ctx, h.logger).Error("plan reload failed", "error", err)
		return nil, huma.Error502BadGateway("failed to reload plan overrides")
	}

	out := &ReloadPlansOutput{}
	out.Body.Reloaded = true
	out.Body.Tiers = len(h.plans.Snapshot())
	return out, nil
}

// MaintenanceOutput reports a maintenance sweep.
type MaintenanceOutput struct {
	Body *service.MaintenanceResult
}

// RunMaintenance runs a maintenance sweep immediately.
func (h *AdminHandler) RunMaintenance(ctx context.Context, _ *struct{}) (*MaintenanceOutput, error) {
	result := h.maintenance.RunOnce(ctx)
	logging.FromContext(ctx, h.logger).Info("maintenance run requested",
		"actions_pruned", result.ActionsPruned,
		"blocks_deleted", result.BlocksDeleted,
		"transitioned", result.SubscriptionsTransition,
		"errors", result.ErrorCount,
	)
	return &MaintenanceOutput{Body: result}, nil
}
