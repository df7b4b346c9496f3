package handlers

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/companion-api/internal/service"
)

// ValidationHandler handles pre-flight checks for messages and features.
type ValidationHandler struct {
	validator *service.LimitsValidator
	logger    *slog.Logger
}

// NewValidationHandler creates a validation handler.
func NewValidationHandler(validator *service.LimitsValidator, logger *slog.Logger) *ValidationHandler {
	return &ValidationHandler{validator: validator, logger: logger}
}

// ValidateMessageInput asks whether a message may be sent.
type ValidateMessageInput struct {
	UserID string `path:"userID" minLength:"1" doc:"Chat platform user id"`
	Body   struct {
		Text    string `json:"text" doc:"Message text"`
		Persona string `json:"persona,omitempty" doc:"Target persona; empty skips the persona check"`
	}
}

// ValidationOutput carries an allow/deny decision. Denials are 200 responses.
type ValidationOutput struct {
	Body service.ValidationResult
}

// ValidateMessage runs the anti-spam, quota and persona checks for a message.
func (h *ValidationHandler) ValidateMessage(ctx context.Context, input *ValidateMessageInput) (*ValidationOutput, error) {
	result, err := h.validator.ValidateMessageSend(ctx, input.UserID, input.Body.Text, input.Body.Persona)
	if err != nil {
		return nil, toHTTPError(h.logger, "validate message", err)
	}
	return &ValidationOutput{Body: result}, nil
}

// ValidateFeatureInput asks whether a feature may be used.
type ValidateFeatureInput struct {
	UserID  string `path:"userID" minLength:"1" doc:"Chat platform user id"`
	Feature string `path:"feature" doc:"Feature key, e.g. voice_messages_allowed or sexting_level"`
	Body    struct {
		Persona string `json:"persona,omitempty" doc:"Persona for persona_access checks"`
		Level   *int   `json:"level,omitempty" doc:"Requested level for sexting_level checks"`
	}
}

// ValidateFeature checks a feature against the user's plan.
func (h *ValidationHandler) ValidateFeature(ctx context.Context, input *ValidateFeatureInput) (*ValidationOutput, error) {
	result, err := h.validator.ValidateFeatureAccess(ctx, input.UserID, input.Feature, service.FeatureContext{
		Persona: input.Body.Persona,
		Level:   input.Body.Level,
	})
	if err != nil {
		return nil, toHTTPError(h.logger, "validate feature", err)
	}
	return &ValidationOutput{Body: result}, nil
}
