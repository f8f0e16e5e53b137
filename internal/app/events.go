package app

import (
	"context"
	"time"

	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/pkg/rabbitmq"
	"go.uber.org/zap"
)

// events publishes domain events best-effort. A nil publisher disables it.
type events struct {
	publisher rabbitmq.Publisher
	logger    *zap.Logger
}

func (e events) publish(ctx context.Context, routingKey string, body any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, routingKey, body); err != nil {
		e.logger.Warn("event publish failed",
			zap.String("routing_key", routingKey),
			zap.String("outcome", "dropped"),
			zap.Error(err),
		)
	}
}

func (e events) ledger(ctx context.Context, entry domain.LedgerEntry) {
	key := domain.EventLedgerCredited
	if entry.Type == domain.TxDebit {
		key = domain.EventLedgerDebited
	}
	e.publish(ctx, key, domain.LedgerEvent{
		DonorID:     entry.DonorID,
		EntryID:     entry.ID,
		Amount:      entry.Amount,
		Description: entry.Description,
		Timestamp:   entry.CreatedAt,
	})
}

func (e events) pledge(ctx context.Context, routingKey string, p *domain.Pledge) {
	e.publish(ctx, routingKey, domain.PledgeEvent{
		PledgeID:  p.ID,
		DonorID:   p.DonorID,
		Status:    p.Status,
		Timestamp: time.Now().UTC(),
	})
}
