package handlers

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/companion-api/internal/logging"
	"github.com/jmylchreest/companion-api/internal/models"
	"github.com/jmylchreest/companion-api/internal/service"
)

// SubscriptionHandler handles per-user subscription and usage endpoints.
type SubscriptionHandler struct {
	subs   *service.SubscriptionService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a subscription handler.
func NewSubscriptionHandler(subs *service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, logger: logger}
}

// UserPathInput identifies the user of a request.
type UserPathInput struct {
	UserID string `path:"userID" minLength:"1" doc:"Chat platform user id"`
}

// GetSubscriptionInput represents a subscription lookup.
// Profile fields are stored when the user is seen for the first time.
type GetSubscriptionInput struct {
	UserID       string `path:"userID" minLength:"1" doc:"Chat platform user id"`
	Username     string `query:"username" doc:"Username, stored on first contact"`
	FirstName    string `query:"first_name" doc:"First name, stored on first contact"`
	LanguageCode string `query:"language_code" doc:"IETF language tag, stored on first contact"`
}

// GetSubscriptionOutput represents the resolved subscription.
type GetSubscriptionOutput struct {
	Body *service.SubscriptionView
}

// GetSubscription resolves the user's current subscription, creating a free one if needed.
func (h *SubscriptionHandler) GetSubscription(ctx context.Context, input *GetSubscriptionInput) (*GetSubscriptionOutput, error) {
	view, err := h.subs.GetUserSubscriptionWithProfile(ctx, input.UserID, models.UserProfile{
		Username:     input.Username,
		FirstName:    input.FirstName,
		LanguageCode: input.LanguageCode,
	})
	if err != nil {
		return nil, toHTTPError(h.logger, "get subscription", err)
	}
	return &GetSubscriptionOutput{Body: view}, nil
}

// MessageLimitOutput represents the daily message allowance.
type MessageLimitOutput struct {
	Body *service.MessageLimit
}

// GetMessageLimit returns the user's daily message allowance.
func (h *SubscriptionHandler) GetMessageLimit(ctx context.Context, input *UserPathInput) (*MessageLimitOutput, error) {
	limit, err := h.subs.CheckMessageLimit(ctx, input.UserID)
	if err != nil {
		return nil, toHTTPError(h.logger, "check message limit", err)
	}
	return &MessageLimitOutput{Body: limit}, nil
}

// IncrementUsageInput records sent messages.
type IncrementUsageInput struct {
	UserID string `path:"userID" minLength:"1" doc:"Chat platform user id"`
	Body   struct {
		Count int `json:"count" default:"1" minimum:"0" doc:"Number of messages sent"`
	}
}

// IncrementUsage records sent messages and returns the updated allowance.
func (h *SubscriptionHandler) IncrementUsage(ctx context.Context, input *IncrementUsageInput) (*MessageLimitOutput, error) {
	if err := h.subs.IncrementMessageUsage(ctx, input.UserID, input.Body.Count); err != nil {
		return nil, toHTTPError(h.logger, "increment usage", err)
	}
	limit, err := h.subs.CheckMessageLimit(ctx, input.UserID)
	if err != nil {
		return nil, toHTTPError(h.logger, "check message limit", err)
	}
	return &MessageLimitOutput{Body: limit}, nil
}

// TrialEligibilityInput asks whether a trial can be granted.
type TrialEligibilityInput struct {
	UserID string `path:"userID" minLength:"1" doc:"Chat platform user id"`
	Tier   string `query:"tier" required:"true" doc:"Tier of the trial"`
}

// TrialEligibilityOutput reports trial eligibility.
type TrialEligibilityOutput struct {
	Body struct {
		Tier     models.Tier `json:"tier"`
		Eligible bool        `json:"eligible"`
	}
}

// GetTrialEligibility reports whether the user may start a trial of the tier.
func (h *SubscriptionHandler) GetTrialEligibility(ctx context.Context, input *TrialEligibilityInput) (*TrialEligibilityOutput, error) {
	tier := models.Tier(input.Tier)
	eligible, err := h.subs.UserCanReceiveTrial(ctx, input.UserID, tier)
	if err != nil {
		return nil, toHTTPError(h.logger, "check trial eligibility", err)
	}
	out := &TrialEligibilityOutput{}
	out.Body.Tier = tier
	out.Body.Eligible = eligible
	return out, nil
}

// ActivateTrialInput starts a trial.
type ActivateTrialInput struct {
	UserID string `path:"userID" minLength:"1" doc:"Chat platform user id"`
	Body   struct {
		Tier      string `json:"tier" doc:"Tier of the trial"`
		Days      int    `json:"days,omitempty" minimum:"0" doc:"Trial length in days (0 = tier default)"`
		PromoCode string `json:"promo_code,omitempty" doc:"Promo code recorded as the trial source"`
	}
}

// ActivationOutput represents a completed activation.
type ActivationOutput struct {
	Body *service.ActivationResult
}

// ActivateTrial grants a trial subscription.
func (h *SubscriptionHandler) ActivateTrial(ctx context.Context, input *ActivateTrialInput) (*ActivationOutput, error) {
	result, err := h.subs.ActivateTrialSubscription(ctx, input.UserID, models.Tier(input.Body.Tier), input.Body.Days, input.Body.PromoCode)
	if err != nil {
		return nil, toHTTPError(h.logger, "activate trial", err)
	}
	logging.FromContext(ctx, h.logger).Info("trial activated",
		"user_id", input.UserID,
		"tier", result.Tier,
	)
	return &ActivationOutput{Body: result}, nil
}
