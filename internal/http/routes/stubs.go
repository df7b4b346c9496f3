package routes

import (
	"context"

	"github.com/jmylchreest/companion-api/internal/http/handlers"
)

// StubHandlers returns a Handlers instance with stub implementations.
// All handlers return nil responses - these are only used for OpenAPI generation
// where Huma extracts type information from function signatures.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: stubHealthCheck,
		ListPlans:   stubListPlans,

		Livez:  stubLivez,
		Readyz: stubReadyz,

		Subscription: &stubSubscriptionHandlers{},
		Validation:   &stubValidationHandlers{},
		Admin:        &stubAdminHandlers{},
	}
}

// --- Public endpoint stubs ---

func stubHealthCheck(_ context.Context, _ *struct{}) (*handlers.HealthCheckOutput, error) {
	return nil, nil
}

func stubListPlans(_ context.Context, _ *struct{}) (*handlers.ListPlansOutput, error) {
	return nil, nil
}

func stubLivez(_ context.Context, _ *struct{}) (*handlers.LivezOutput, error) {
	return nil, nil
}

func stubReadyz(_ context.Context, _ *struct{}) (*handlers.ReadyzOutput, error) {
	return nil, nil
}

// --- Subscription handlers stub ---

type stubSubscriptionHandlers struct{}

func (s *stubSubscriptionHandlers) GetSubscription(_ context.Context, _ *handlers.GetSubscriptionInput) (*handlers.GetSubscriptionOutput, error) {
	return nil, nil
}

func (s *stubSubscriptionHandlers) GetMessageLimit(_ context.Context, _ *handlers.UserPathInput) (*handlers.MessageLimitOutput, error) {
	return nil, nil
}

func (s *stubSubscriptionHandlers) IncrementUsage(_ context.Context, _ *handlers.IncrementUsageInput) (*handlers.MessageLimitOutput, error) {
	return nil, nil
}

func (s *stubSubscriptionHandlers) GetTrialEligibility(_ context.Context, _ *handlers.TrialEligibilityInput) (*handlers.TrialEligibilityOutput, error) {
	return nil, nil
}

func (s *stubSubscriptionHandlers) ActivateTrial(_ context.Context, _ *handlers.ActivateTrialInput) (*handlers.ActivationOutput, error) {
	return nil, nil
}

// --- Validation handlers stub ---

type stubValidationHandlers struct{}

func (s *stubValidationHandlers) ValidateMessage(_ context.Context, _ *handlers.ValidateMessageInput) (*handlers.ValidationOutput, error) {
	return nil, nil
}

func (s *stubValidationHandlers) ValidateFeature(_ context.Context, _ *handlers.ValidateFeatureInput) (*handlers.ValidationOutput, error) {
	return nil, nil
}

// --- Admin handlers stub ---

type stubAdminHandlers struct{}

func (s *stubAdminHandlers) ActivateSubscription(_ context.Context, _ *handlers.AdminActivateInput) (*handlers.ActivationOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) GrantBonus(_ context.Context, _ *handlers.GrantBonusInput) (*handlers.UsageOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) GetSubscriptionHistory(_ context.Context, _ *handlers.UserPathInput) (*handlers.SubscriptionHistoryOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) GetTierStats(_ context.Context, _ *struct{}) (*handlers.TierStatsOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) ReloadPlans(_ context.Context, _ *struct{}) (*handlers.ReloadPlansOutput, error) {
	return nil, nil
}

func (s *stubAdminHandlers) RunMaintenance(_ context.Context, _ *struct{}) (*handlers.MaintenanceOutput, error) {
	return nil, nil
}
