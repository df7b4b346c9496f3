package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/companion-api/internal/http/mw"
	"github.com/jmylchreest/companion-api/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
// This includes API metadata, security schemes, and tag definitions.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Companion API", version.Get().Short())
	cfg.Info.Description = "Subscription tiers, daily message quotas and anti-spam checks for the companion chat bot."

	// Disable $schema field in responses
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Service token authentication. Mint a token with companion-token and send it as `Bearer <token>`.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Subscriptions", Description: "Current subscription of a user", Extensions: map[string]any{"x-displayName": "Subscriptions"}},
		{Name: "Usage", Description: "Daily message quotas and bonus balances", Extensions: map[string]any{"x-displayName": "Usage"}},
		{Name: "Validation", Description: "Pre-flight checks for messages and features", Extensions: map[string]any{"x-displayName": "Validation"}},
		{Name: "Trials", Description: "Trial eligibility and activation", Extensions: map[string]any{"x-displayName": "Trials"}},
		{Name: "Plans", Description: "Tier catalog and limits", Extensions: map[string]any{"x-displayName": "Plans"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
