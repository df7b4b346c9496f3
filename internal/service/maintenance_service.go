package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jmylchreest/companion-api/internal/metrics"
	"github.com/jmylchreest/companion-api/internal/repository"
)

// lapsedBatchSize bounds the subscriptions transitioned per sweep.
const lapsedBatchSize = 500

// MaintenanceService prunes rate-limit history and expired blocks and moves
// lapsed subscriptions through their grace and downgrade transitions.
type MaintenanceService struct {
	actions       repository.ActionRepository
	blocks        repository.BlockRepository
	subscriptions repository.SubscriptionRepository
	subSvc        *SubscriptionService
	retention     time.Duration
	clock         clock.Clock
	logger        *slog.Logger
	running       atomic.Int32
}

// NewMaintenanceService creates a maintenance service.
func NewMaintenanceService(
	repos *repository.Repositories,
	subSvc *SubscriptionService,
	retention time.Duration,
	clk clock.Clock,
	logger *slog.Logger,
) *MaintenanceService {
	if clk == nil {
		clk = clock.New()
	}
	return &MaintenanceService{
		actions:       repos.Action,
		blocks:        repos.Block,
		subscriptions: repos.Subscription,
		subSvc:        subSvc,
		retention:     retention,
		clock:         clk,
		logger:        logger.With("component", "maintenance"),
	}
}

// MaintenanceResult contains the results of one sweep.
type MaintenanceResult struct {
	ActionsPruned           int64   `json:"actions_pruned"`
	BlocksDeleted           int64   `json:"blocks_deleted"`
	SubscriptionsChecked    int     `json:"subscriptions_checked"`
	SubscriptionsTransition int     `json:"subscriptions_transitioned"`
	Errors                  []error `json:"-"`
	ErrorCount              int     `json:"errors"`
}

// RunOnce performs a single sweep. Step failures are collected in the
// result and do not stop later steps.
func (s *MaintenanceService) RunOnce(ctx context.Context) *MaintenanceResult {
	s.running.Add(1)
	defer s.running.Add(-1)

	result := &MaintenanceResult{}
	now := s.clock.Now()
	cutoff := now.Add(-s.retention)

	s.logger.Info("starting maintenance sweep",
		"action_retention", s.retention.String(),
		"cutoff", cutoff.Format(time.RFC3339),
	)

	// Step 1: Prune rate-limit history
	pruned, err := s.actions.PruneBefore(ctx, cutoff.UnixMilli())
	if err != nil {
		s.logger.Error("failed to prune action timestamps", "error", err)
		result.Errors = append(result.Errors, storageErr("prune actions", err))
	} else {
		result.ActionsPruned = pruned
		metrics.MaintenanceRemoved.WithLabelValues("action_timestamps").Add(float64(pruned))
	}

	// Step 2: Drop expired temporary blocks
	deleted, err := s.blocks.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("failed to delete expired blocks", "error", err)
		result.Errors = append(result.Errors, storageErr("delete expired blocks", err))
	} else {
		result.BlocksDeleted = deleted
		metrics.MaintenanceRemoved.WithLabelValues("temporary_blocks").Add(float64(deleted))
	}

	// Step 3: Apply grace and downgrade transitions to lapsed rows
	lapsed, err := s.subscriptions.ListLapsed(ctx, now, lapsedBatchSize)
	if err != nil {
		s.logger.Error("failed to list lapsed subscriptions", "error", err)
		result.Errors = append(result.Errors, storageErr("list lapsed subscriptions", err))
	}
	for _, sub := range lapsed {
		result.SubscriptionsChecked++
		changed, err := s.subSvc.ApplyLifecycle(ctx, sub)
		if err != nil {
			s.logger.Error("failed to transition subscription",
				"subscription_id", sub.ID,
				"user_id", sub.UserID,
				"error", err,
			)
			result.Errors = append(result.Errors, err)
			continue
		}
		if changed {
			result.SubscriptionsTransition++
		}
	}
	metrics.MaintenanceRemoved.WithLabelValues("subscription_transitions").Add(float64(result.SubscriptionsTransition))

	result.ErrorCount = len(result.Errors)
	s.logger.Info("maintenance sweep completed",
		"actions_pruned", result.ActionsPruned,
		"blocks_deleted", result.BlocksDeleted,
		"subscriptions_checked", result.SubscriptionsChecked,
		"subscriptions_transitioned", result.SubscriptionsTransition,
		"errors", result.ErrorCount,
	)
	return result
}

// Busy reports whether a sweep is in progress.
func (s *MaintenanceService) Busy() bool {
	return s.running.Load() > 0
}

// RunScheduled runs the sweep immediately and then at the given interval
// until ctx is cancelled.
func (s *MaintenanceService) RunScheduled(ctx context.Context, interval time.Duration) {
	s.logger.Info("starting scheduled maintenance", "interval", interval.String())

	s.RunOnce(ctx)

	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled maintenance stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
