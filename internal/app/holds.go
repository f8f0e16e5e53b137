package app

import (
	"context"
	"time"

	"github.com/herodrop/rewards-service/internal/store"
	"go.uber.org/zap"
)

// DefaultHoldTTL bounds how long a staged redemption may hold tokens.
const DefaultHoldTTL = 15 * time.Minute

// HoldSweeper releases staged redemptions that were never finalized or
// discarded, such as those left by a crash mid-confirm.
type HoldSweeper struct {
	repo   store.Repository
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewHoldSweeper(repo store.Repository, ttl time.Duration, logger *zap.Logger) *HoldSweeper {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	return &HoldSweeper{
		repo:   repo,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "scheduler")),
		now:    time.Now,
	}
}

// Sweep deletes staged holds older than the TTL.
func (h *HoldSweeper) Sweep(ctx context.Context) (int64, error) {
	return h.repo.ReleaseStaleRedemptions(ctx, h.now().Add(-h.ttl))
}

// Run is the cron entry point.
func (h *HoldSweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	released, err := h.Sweep(ctx)
	if err != nil {
		h.logger.Error("staged hold sweep failed", zap.Error(err))
		return
	}
	if released > 0 {
		h.logger.Warn("released stale redemption holds", zap.Int64("released", released), zap.Duration("ttl", h.ttl))
	}
}
