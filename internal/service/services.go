// Package service contains the business logic layer.
// User ids are the chat platform's user ids rendered as strings.
package service

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/jmylchreest/companion-api/internal/cache"
	"github.com/jmylchreest/companion-api/internal/config"
	"github.com/jmylchreest/companion-api/internal/plans"
	"github.com/jmylchreest/companion-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	RateLimiter  *RateLimiter
	AntiSpam     *AntiSpamService
	Subscription *SubscriptionService
	Validator    *LimitsValidator
	Maintenance  *MaintenanceService
	Plans        *plans.Plans
}

// NewServices creates all service instances. A nil cache disables view caching.
func NewServices(
	cfg *config.Config,
	repos *repository.Repositories,
	p *plans.Plans,
	c cache.Cache,
	clk clock.Clock,
	logger *slog.Logger,
) *Services {
	if clk == nil {
		clk = clock.New()
	}

	limiter := NewRateLimiter(repos.Action, clk, logger)
	antiSpam := NewAntiSpamService(limiter, repos.Block, cfg.AntiSpam, clk, logger)
	subscriptions := NewSubscriptionService(repos, p, c, cfg.CacheTTL, cfg.Limits, clk, logger)
	// Cached views embed tier limits
	p.OnReload(subscriptions.InvalidateAll)

	return &Services{
		RateLimiter:  limiter,
		AntiSpam:     antiSpam,
		Subscription: subscriptions,
		Validator:    NewLimitsValidator(antiSpam, subscriptions, cfg.Limits, clk, logger),
		Maintenance:  NewMaintenanceService(repos, subscriptions, cfg.MaintenanceActionRetention, clk, logger),
		Plans:        p,
	}
}
