package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/jmylchreest/companion-api/internal/models"
	"github.com/jmylchreest/companion-api/internal/service"
)

// PaymentWebhookHandler handles signed events from the payment relay
// (chat platform payments such as Telegram Stars).
type PaymentWebhookHandler struct {
	secret    string
	activator Activator
	logger    *slog.Logger
}

// NewPaymentWebhookHandler creates a new payment relay webhook handler.
func NewPaymentWebhookHandler(secret string, activator Activator, logger *slog.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		secret:    secret,
		activator: activator,
		logger:    logger,
	}
}

// PaymentWebhookEvent represents a payment relay event.
type PaymentWebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PaymentSucceededData is the payload of a payment.succeeded event.
type PaymentSucceededData struct {
	UserID       string `json:"user_id"`
	Tier         string `json:"tier"`
	DurationDays int    `json:"duration_days"`
	Amount       int    `json:"amount"`
	ChargeID     string `json:"charge_id"`
	Provider     string `json:"provider"`
}

// BonusGrantedData is the payload of a bonus.granted event.
type BonusGrantedData struct {
	UserID        string `json:"user_id"`
	Amount        int    `json:"amount"`
	Source        string `json:"source"`
	ExpiresInDays int    `json:"expires_in_days"`
}

// HandleWebhook processes incoming payment relay webhooks.
func (h *PaymentWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodySize = 65536 // 64KB

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// Verify webhook signature using Svix
	headers := http.Header{}
	headers.Set("svix-id", r.Header.Get("svix-id"))
	headers.Set("svix-timestamp", r.Header.Get("svix-timestamp"))
	headers.Set("svix-signature", r.Header.Get("svix-signature"))

	wh, err := svix.NewWebhook(h.secret)
	if err != nil {
		h.logger.Error("failed to create webhook verifier", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := wh.Verify(payload, headers); err != nil {
		h.logger.Error("failed to verify webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var event PaymentWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("failed to parse webhook event", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if err := h.handleEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to handle webhook event", "type", event.Type, "error", err)
		if errors.Is(err, service.ErrStorage) {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

// handleEvent routes events to appropriate handlers.
func (h *PaymentWebhookHandler) handleEvent(ctx context.Context, event PaymentWebhookEvent) error {
	h.logger.Info("received payment webhook", "type", event.Type)

	switch event.Type {
	case "payment.succeeded":
		var data PaymentSucceededData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal payment: %w", err)
		}
		return h.handlePaymentSucceeded(ctx, data)

	case "bonus.granted":
		var data BonusGrantedData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return fmt.Errorf("failed to unmarshal bonus: %w", err)
		}
		return h.handleBonusGranted(ctx, data)

	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

// handlePaymentSucceeded activates the tier that was paid for.
func (h *PaymentWebhookHandler) handlePaymentSucceeded(ctx context.Context, data PaymentSucceededData) error {
	tier, err := models.ParseTier(data.Tier)
	if err != nil {
		return fmt.Errorf("invalid tier: %w", err)
	}
	duration := data.DurationDays
	if duration <= 0 {
		duration = defaultDurationDays
	}
	provider := data.Provider
	if provider == "" {
		provider = "telegram_stars"
	}

	result, err := h.activator.ActivateSubscription(ctx, service.ActivationRequest{
		UserID:        data.UserID,
		Tier:          tier,
		DurationDays:  duration,
		PaymentAmount: data.Amount,
		ChargeID:      data.ChargeID,
		Provider:      provider,
	})
	if err != nil {
		if errors.Is(err, service.ErrDuplicatePayment) {
			h.logger.Info("duplicate payment ignored", "charge_id", data.ChargeID)
			return nil
		}
		return fmt.Errorf("failed to activate subscription: %w", err)
	}

	h.logger.Info("activated subscription from payment",
		"user_id", data.UserID,
		"tier", result.Tier,
		"charge_id", data.ChargeID,
		"provider", provider,
	)
	return nil
}

// handleBonusGranted adds bonus messages.
func (h *PaymentWebhookHandler) handleBonusGranted(ctx context.Context, data BonusGrantedData) error {
	if _, err := h.activator.AddBonusMessages(ctx, data.UserID, data.Amount, data.Source, data.ExpiresInDays); err != nil {
		return fmt.Errorf("failed to add bonus: %w", err)
	}
	h.logger.Info("bonus granted from payment relay",
		"user_id", data.UserID,
		"amount", data.Amount,
		"source", data.Source,
	)
	return nil
}
