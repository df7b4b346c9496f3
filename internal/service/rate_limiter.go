package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jmylchreest/companion-api/internal/repository"
)

// RateDecision is the outcome of one sliding-window check.
type RateDecision struct {
	Allowed        bool   `json:"allowed"`
	ActionKey      string `json:"action_key"`
	CurrentCount   int    `json:"current_count"`
	Limit          int    `json:"limit"`
	WindowSeconds  int    `json:"window_seconds"`
	Remaining      int    `json:"remaining"`
	ResetInSeconds int    `json:"reset_in_seconds,omitempty"`
}

// Data renders the decision for a ValidationResult payload.
func (d RateDecision) Data() map[string]any {
	data := map[string]any{
		"action_key":     d.ActionKey,
		"current_count":  d.CurrentCount,
		"limit":          d.Limit,
		"window_seconds": d.WindowSeconds,
	}
	if d.Allowed {
		data["remaining"] = d.Remaining
	} else {
		data["reset_in_seconds"] = d.ResetInSeconds
	}
	return data
}

// RateLimiter is a store-backed sliding-window counter keyed by (user, action).
// Old entries are pruned lazily on each check.
type RateLimiter struct {
	actions repository.ActionRepository
	clock   clock.Clock
	logger  *slog.Logger
}

// NewRateLimiter creates a rate limiter over the given action store.
func NewRateLimiter(actions repository.ActionRepository, clk clock.Clock, logger *slog.Logger) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &RateLimiter{
		actions: actions,
		clock:   clk,
		logger:  logger.With("component", "rate_limiter"),
	}
}

// Check counts actions inside the window and records a new one when under
// the limit. A denied check never records.
func (r *RateLimiter) Check(ctx context.Context, userID, actionKey string, limit int, window time.Duration) (RateDecision, error) {
	now := r.clock.Now()
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()
	windowStart := nowMs - windowMs
	windowSeconds := int(window / time.Second)

	decision := RateDecision{
		ActionKey:     actionKey,
		Limit:         limit,
		WindowSeconds: windowSeconds,
	}

	if err := r.actions.DeleteBefore(ctx, userID, actionKey, windowStart-windowMs); err != nil {
		return decision, storageErr("prune action timestamps", err)
	}

	count, err := r.actions.Count(ctx, userID, actionKey, windowStart)
	if err != nil {
		return decision, storageErr("count action timestamps", err)
	}
	decision.CurrentCount = count

	if limit <= 0 || count >= limit {
		reset, err := r.resetIn(ctx, userID, actionKey, count, limit, windowStart, nowMs, window)
		if err != nil {
			return decision, err
		}
		decision.ResetInSeconds = reset
		r.logger.Debug("rate limit exceeded",
			"user_id", userID,
			"action_key", actionKey,
			"count", count,
			"limit", limit,
		)
		return decision, nil
	}

	if err := r.actions.Record(ctx, userID, actionKey, nowMs); err != nil {
		return decision, storageErr("record action timestamp", err)
	}

	decision.Allowed = true
	decision.CurrentCount = count + 1
	decision.Remaining = limit - (count + 1)
	return decision, nil
}

// resetIn estimates when the oldest entry that keeps the count at the limit
// leaves the window.
func (r *RateLimiter) resetIn(ctx context.Context, userID, actionKey string, count, limit int, windowStart, nowMs int64, window time.Duration) (int, error) {
	windowSeconds := int(window / time.Second)

	if limit <= 0 {
		return max(1, windowSeconds), nil
	}

	timestamps, err := r.actions.ListSince(ctx, userID, actionKey, windowStart)
	if err != nil {
		return 0, storageErr("list action timestamps", err)
	}

	if len(timestamps) == 0 {
		if count > 0 {
			return max(1, windowSeconds), nil
		}
		return 1, nil
	}

	idx := count - limit
	if idx < 0 || idx >= len(timestamps) {
		return max(1, windowSeconds), nil
	}

	resetMs := timestamps[idx] + window.Milliseconds() - nowMs
	return max(1, int(math.Round(float64(resetMs)/1000))), nil
}
