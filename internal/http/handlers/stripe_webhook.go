package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/jmylchreest/companion-api/internal/models"
	"github.com/jmylchreest/companion-api/internal/service"
)

// StripeProvider is the payment provider recorded for Stripe activations.
const StripeProvider = "stripe"

// defaultDurationDays applies when a payment carries no duration metadata.
const defaultDurationDays = 30

// Activator applies paid activations and bonus grants.
type Activator interface {
	ActivateSubscription(ctx context.Context, req service.ActivationRequest) (*service.ActivationResult, error)
	AddBonusMessages(ctx context.Context, userID string, amount int, source string, expiresInDays int) (*models.UserUsage, error)
}

// StripeWebhookHandler handles Stripe webhook events.
type StripeWebhookHandler struct {
	secret    string
	activator Activator
	logger    *slog.Logger
}

// NewStripeWebhookHandler creates a new Stripe webhook handler.
func NewStripeWebhookHandler(apiKey, webhookSecret string, activator Activator, logger *slog.Logger) *StripeWebhookHandler {
	// Set Stripe API key
	stripe.Key = apiKey

	return &StripeWebhookHandler{
		secret:    webhookSecret,
		activator: activator,
		logger:    logger,
	}
}

// HandleWebhook processes incoming Stripe webhooks.
// This is a raw HTTP handler since huma doesn't handle raw body verification well.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodySize = 65536 // 64KB

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// Verify webhook signature
	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sigHeader, h.secret)
	if err != nil {
		h.logger.Error("failed to verify webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.handleEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to handle webhook event", "type", event.Type, "error", err)
		// Storage failures are retried by Stripe; bad metadata is not.
		if errors.Is(err, service.ErrStorage) {
			http.Error(w, "temporary failure", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
}

// handleEvent routes events to appropriate handlers.
func (h *StripeWebhookHandler) handleEvent(ctx context.Context, event stripe.Event) error {
	h.logger.Info("received Stripe webhook", "type", event.Type, "id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutComplete(ctx, event)

	case "invoice.paid":
		return h.handleInvoicePaid(ctx, event)

	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
		return nil
	}
}

// handleCheckoutComplete activates the tier bought in a checkout session.
func (h *StripeWebhookHandler) handleCheckoutComplete(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	chargeID := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		chargeID = session.PaymentIntent.ID
	}

	return h.activate(ctx, session.Metadata, chargeID, int(session.AmountTotal))
}

// handleInvoicePaid renews a recurring subscription.
func (h *StripeWebhookHandler) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	// Skip if not a subscription invoice
	if invoice.Subscription == nil {
		return nil
	}

	return h.activate(ctx, invoice.Subscription.Metadata, invoice.ID, int(invoice.AmountPaid))
}

// activate applies a payment described by Stripe metadata
// (user_id, tier and optional duration_days).
func (h *StripeWebhookHandler) activate(ctx context.Context, metadata map[string]string, chargeID string, amount int) error {
	userID := metadata["user_id"]
	if userID == "" {
		h.logger.Warn("stripe payment missing user_id", "charge_id", chargeID)
		return nil // Don't error - might be a non-user checkout
	}

	tier, err := models.ParseTier(metadata["tier"])
	if err != nil {
		return fmt.Errorf("invalid tier metadata: %w", err)
	}

	duration := defaultDurationDays
	if raw := metadata["duration_days"]; raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration_days metadata %q", raw)
		}
		duration = d
	}

	result, err := h.activator.ActivateSubscription(ctx, service.ActivationRequest{
		UserID:        userID,
		Tier:          tier,
		DurationDays:  duration,
		PaymentAmount: amount,
		ChargeID:      chargeID,
		Provider:      StripeProvider,
	})
	if err != nil {
		if errors.Is(err, service.ErrDuplicatePayment) {
			h.logger.Info("duplicate stripe payment ignored", "charge_id", chargeID)
			return nil
		}
		return fmt.Errorf("failed to activate subscription: %w", err)
	}

	h.logger.Info("activated subscription from stripe",
		"user_id", userID,
		"tier", result.Tier,
		"charge_id", chargeID,
		"extended", result.Extended,
	)
	return nil
}
