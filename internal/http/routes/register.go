package routes

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/companion-api/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
// Pass real handler implementations for the main server, or stub implementations
// for OpenAPI generation.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Public Routes (no auth required)
	// =========================================================================

	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	mw.PublicGet(api, "/api/v1/plans", h.ListPlans,
		mw.WithTags("Plans"),
		mw.WithSummary("List subscription plans"),
		mw.WithDescription("Returns every tier with its limits bundle, lowest tier first."),
		mw.WithOperationID("listPlans"))

	// Kubernetes probes (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// =========================================================================
	// Protected Routes (require a bot or admin service token)
	// =========================================================================

	// --- Subscriptions ---
	mw.ProtectedGet(api, "/api/v1/users/{userID}/subscription", h.Subscription.GetSubscription,
		mw.WithTags("Subscriptions"),
		mw.WithSummary("Get current subscription"),
		mw.WithDescription("Resolves the user's current subscription, applying expiry and grace transitions. Unknown users get a free subscription."),
		mw.WithOperationID("getSubscription"))
	mw.ProtectedGet(api, "/api/v1/users/{userID}/limits/messages", h.Subscription.GetMessageLimit,
		mw.WithTags("Usage"),
		mw.WithSummary("Get daily message allowance"),
		mw.WithOperationID("getMessageLimit"))
	mw.ProtectedPost(api, "/api/v1/users/{userID}/messages/usage", h.Subscription.IncrementUsage,
		mw.WithTags("Usage"),
		mw.WithSummary("Record sent messages"),
		mw.WithDescription("Consumes bonus messages first, then the daily quota."),
		mw.WithOperationID("incrementMessageUsage"))
	mw.ProtectedGet(api, "/api/v1/users/{userID}/trial-eligibility", h.Subscription.GetTrialEligibility,
		mw.WithTags("Trials"),
		mw.WithSummary("Check trial eligibility"),
		mw.WithOperationID("getTrialEligibility"))
	mw.ProtectedPost(api, "/api/v1/users/{userID}/trials", h.Subscription.ActivateTrial,
		mw.WithTags("Trials"),
		mw.WithSummary("Start a trial"),
		mw.WithOperationID("activateTrial"),
		mw.WithErrors(http.StatusForbidden))

	// --- Validation ---
	mw.ProtectedPost(api, "/api/v1/users/{userID}/messages/validate", h.Validation.ValidateMessage,
		mw.WithTags("Validation"),
		mw.WithSummary("Validate a message send"),
		mw.WithDescription("Runs anti-spam, quota and persona checks. Denials are returned as allowed=false with user-facing copy."),
		mw.WithOperationID("validateMessage"))
	mw.ProtectedPost(api, "/api/v1/users/{userID}/features/{feature}/validate", h.Validation.ValidateFeature,
		mw.WithTags("Validation"),
		mw.WithSummary("Validate feature access"),
		mw.WithOperationID("validateFeature"))

	// --- Admin Routes (require admin role, hidden from OpenAPI) ---
	mw.AdminPost(api, "/api/v1/admin/users/{userID}/subscriptions", h.Admin.ActivateSubscription,
		mw.WithSummary("Activate a subscription manually"),
		mw.WithOperationID("adminActivateSubscription"),
		mw.WithErrors(http.StatusConflict))
	mw.AdminGet(api, "/api/v1/admin/users/{userID}/subscriptions", h.Admin.GetSubscriptionHistory,
		mw.WithSummary("List subscription history"),
		mw.WithOperationID("adminSubscriptionHistory"))
	mw.AdminPost(api, "/api/v1/admin/users/{userID}/bonus", h.Admin.GrantBonus,
		mw.WithSummary("Grant bonus messages"),
		mw.WithOperationID("adminGrantBonus"))
	mw.AdminGet(api, "/api/v1/admin/stats/tiers", h.Admin.GetTierStats,
		mw.WithSummary("Live subscriptions per tier"),
		mw.WithOperationID("adminTierStats"))
	mw.AdminPost(api, "/api/v1/admin/plans/reload", h.Admin.ReloadPlans,
		mw.WithSummary("Reload plan overrides"),
		mw.WithOperationID("adminReloadPlans"),
		mw.WithErrors(http.StatusBadGateway))
	mw.AdminPost(api, "/api/v1/admin/maintenance/run", h.Admin.RunMaintenance,
		mw.WithSummary("Run a maintenance sweep now"),
		mw.WithOperationID("adminRunMaintenance"))
}
