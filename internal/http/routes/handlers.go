// Package routes provides shared route registration for the companion API.
// This allows both the main server and the OpenAPI generator to use
// the same route definitions, keeping the OpenAPI document in sync.
package routes

import (
	"context"

	"github.com/jmylchreest/companion-api/internal/http/handlers"
)

// SubscriptionHandlers defines the interface for per-user subscription operations.
type SubscriptionHandlers interface {
	GetSubscription(ctx context.Context, input *handlers.GetSubscriptionInput) (*handlers.GetSubscriptionOutput, error)
	GetMessageLimit(ctx context.Context, input *handlers.UserPathInput) (*handlers.MessageLimitOutput, error)
	IncrementUsage(ctx context.Context, input *handlers.IncrementUsageInput) (*handlers.MessageLimitOutput, error)
	GetTrialEligibility(ctx context.Context, input *handlers.TrialEligibilityInput) (*handlers.TrialEligibilityOutput, error)
	ActivateTrial(ctx context.Context, input *handlers.ActivateTrialInput) (*handlers.ActivationOutput, error)
}

// ValidationHandlers defines the interface for message and feature checks.
type ValidationHandlers interface {
	ValidateMessage(ctx context.Context, input *handlers.ValidateMessageInput) (*handlers.ValidationOutput, error)
	ValidateFeature(ctx context.Context, input *handlers.ValidateFeatureInput) (*handlers.ValidationOutput, error)
}

// AdminHandlers defines the interface for operator operations.
type AdminHandlers interface {
	ActivateSubscription(ctx context.Context, input *handlers.AdminActivateInput) (*handlers.ActivationOutput, error)
	GrantBonus(ctx context.Context, input *handlers.GrantBonusInput) (*handlers.UsageOutput, error)
	GetSubscriptionHistory(ctx context.Context, input *handlers.UserPathInput) (*handlers.SubscriptionHistoryOutput, error)
	GetTierStats(ctx context.Context, input *struct{}) (*handlers.TierStatsOutput, error)
	ReloadPlans(ctx context.Context, input *struct{}) (*handlers.ReloadPlansOutput, error)
	RunMaintenance(ctx context.Context, input *struct{}) (*handlers.MaintenanceOutput, error)
}

// Handlers aggregates all handler interfaces for route registration.
// For the main server, pass real handler implementations.
// For OpenAPI generation, pass stub implementations.
type Handlers struct {
	// Public endpoints
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)
	ListPlans   func(ctx context.Context, input *struct{}) (*handlers.ListPlansOutput, error)

	// Kubernetes probes (hidden from docs)
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	// Protected endpoint handlers
	Subscription SubscriptionHandlers
	Validation   ValidationHandlers
	Admin        AdminHandlers
}
