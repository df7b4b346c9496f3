package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"

	"github.com/jmylchreest/companion-api/internal/config"
	"github.com/jmylchreest/companion-api/internal/metrics"
	"github.com/jmylchreest/companion-api/internal/models"
	"github.com/jmylchreest/companion-api/internal/repository"
)

// Action keys used by the anti-spam checks.
const (
	ActionAnyMessage  = "any_message"
	ActionLongMessage = "long_message"
	actionHashPrefix  = "msg_hash_"
)

// AntiSpamService applies layered rate checks and durable temporary blocks.
type AntiSpamService struct {
	limiter *RateLimiter
	blocks  repository.BlockRepository
	cfg     config.AntiSpamConfig
	clock   clock.Clock
	logger  *slog.Logger
}

// NewAntiSpamService creates an anti-spam service.
func NewAntiSpamService(
	limiter *RateLimiter,
	blocks repository.BlockRepository,
	cfg config.AntiSpamConfig,
	clk clock.Clock,
	logger *slog.Logger,
) *AntiSpamService {
	if clk == nil {
		clk = clock.New()
	}
	return &AntiSpamService{
		limiter: limiter,
		blocks:  blocks,
		cfg:     cfg,
		clock:   clk,
		logger:  logger.With("component", "antispam"),
	}
}

// MessageHashKey returns the duplicate-detection action key for a message.
// Case and surrounding whitespace are ignored.
func MessageHashKey(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return actionHashPrefix + hex.EncodeToString(sum[:])[:16]
}

// CheckSpam runs the block check, then throughput, duplicate and long-message
// limits. The first denial wins and applies a temporary block.
func (s *AntiSpamService) CheckSpam(ctx context.Context, userID, text string) (ValidationResult, error) {
	now := s.clock.Now()

	block, err := s.blocks.GetActive(ctx, userID, models.BlockTypeSpam, now)
	if err != nil {
		return ValidationResult{}, storageErr("get active block", err)
	}
	if block != nil && block.ActiveAt(now) {
		remaining := block.BlockedUntil.Sub(now)
		minutes := max(1, int(remaining/time.Minute))
		metrics.AntiSpamDenials.WithLabelValues("temporary_block").Inc()
		return ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("Temporary block active until %s.", block.BlockedUntil.UTC().Format(time.RFC3339)),
			Data: map[string]any{
				"block_type":              models.BlockTypeSpam,
				"block_remaining_seconds": int(remaining.Round(time.Second) / time.Second),
			},
			UserMessageOverride: fmt.Sprintf("⏳ You are temporarily blocked for suspicious activity. Please wait %d min.", minutes),
		}, nil
	}

	general, err := s.limiter.Check(ctx, userID, ActionAnyMessage, s.cfg.MessagesPerMinute, time.Minute)
	if err != nil {
		return ValidationResult{}, err
	}
	if !general.Allowed {
		return s.deny(ctx, userID, "rate_limit", "Too many messages per minute.", general,
			"Too many messages per minute (anti-spam).",
			"⚡ Too many messages! Please slow down."), nil
	}

	duplicate, err := s.limiter.Check(ctx, userID, MessageHashKey(text), s.cfg.DuplicateMessageLimit, s.cfg.DuplicateWindow)
	if err != nil {
		return ValidationResult{}, err
	}
	if !duplicate.Allowed {
		return s.deny(ctx, userID, "duplicate", "Too many duplicate messages.", duplicate,
			"Too many duplicate messages (anti-spam).",
			"🤔 Looks like you keep sending the same message. Try something different!"), nil
	}

	if utf8.RuneCountInString(text) > s.cfg.LongMessageThreshold {
		long, err := s.limiter.Check(ctx, userID, ActionLongMessage, s.cfg.LongMessagesPer10Min, 10*time.Minute)
		if err != nil {
			return ValidationResult{}, err
		}
		if !long.Allowed {
			return s.deny(ctx, userID, "long_message", "Too many long messages.", long,
				"Too many long messages (anti-spam).",
				fmt.Sprintf("📏 Your messages are very long (limit: %d chars). Please send them less often.", s.cfg.LongMessageThreshold)), nil
		}
	}

	return ValidationResult{Allowed: true, Reason: ReasonAllowed}, nil
}

func (s *AntiSpamService) deny(ctx context.Context, userID, metricReason, blockReason string, decision RateDecision, reason, userMessage string) ValidationResult {
	metrics.AntiSpamDenials.WithLabelValues(metricReason).Inc()
	s.applyBlock(ctx, userID, blockReason)
	return ValidationResult{
		Allowed:             false,
		Reason:              reason,
		Data:                decision.Data(),
		UserMessageOverride: userMessage,
	}
}

// applyBlock stores a temporary block. Failures are logged only; the denial stands.
func (s *AntiSpamService) applyBlock(ctx context.Context, userID, reason string) {
	now := s.clock.Now()
	block := &models.TemporaryBlock{
		UserID:       userID,
		BlockType:    models.BlockTypeSpam,
		BlockedUntil: now.Add(s.cfg.TempBlockDuration),
		Reason:       reason,
		CreatedAt:    now,
	}
	if err := s.blocks.Create(ctx, block); err != nil {
		s.logger.Error("failed to store temporary block",
			"user_id", userID,
			"reason", reason,
			"error", err,
		)
		return
	}
	s.logger.Warn("user temporarily blocked",
		"user_id", userID,
		"duration", s.cfg.TempBlockDuration.String(),
		"reason", reason,
	)
}
