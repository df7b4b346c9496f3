package handlers

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/companion-api/internal/models"
	"github.com/jmylchreest/companion-api/internal/plans"
)

// PlanResponse is a single tier with its limits bundle.
type PlanResponse struct {
	Tier   models.Tier      `json:"tier" doc:"Tier identifier (free, basic, premium, vip)"`
	Level  int              `json:"level" doc:"Position in the tier hierarchy (0 = free)"`
	Limits plans.TierLimits `json:"limits" doc:"Limits and features of the tier"`
}

// ListPlansOutput is the response for the plans endpoint.
type ListPlansOutput struct {
	Body struct {
		Plans []PlanResponse `json:"plans" doc:"Every tier in hierarchy order"`
	}
}

// PlansHandler serves the public plan catalog.
type PlansHandler struct {
	plans  *plans.Plans
	logger *slog.Logger
}

// NewPlansHandler creates a plans handler.
func NewPlansHandler(p *plans.Plans, logger *slog.Logger) *PlansHandler {
	return &PlansHandler{plans: p, logger: logger}
}

// ListPlans returns every tier and its limits, lowest tier first.
// A stale override document triggers a background refresh.
func (h *PlansHandler) ListPlans(ctx context.Context, _ *struct{}) (*ListPlansOutput, error) {
	h.plans.MaybeRefresh(ctx)

	snapshot := h.plans.Snapshot()
	out := &ListPlansOutput{}
	out.Body.Plans = make([]PlanResponse, 0, len(snapshot))
	for _, tier := range h.plans.Tiers() {
		limits, ok := snapshot[tier]
		if !ok {
			continue
		}
		level, _ := h.plans.Level(tier)
		out.Body.Plans = append(out.Body.Plans, PlanResponse{
			Tier:   tier,
			Level:  level,
			Limits: limits,
		})
	}
	return out, nil
}
