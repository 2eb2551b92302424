package application

import (
	"context"
	"time"

	"github.com/draftea/order-saga/inventory-service/domain"
	"github.com/draftea/order-saga/shared/events"
	"github.com/draftea/order-saga/shared/gateway"
	"github.com/draftea/order-saga/shared/models"
	"github.com/draftea/order-saga/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ReleaseStock is the compensating step run when the payment of a reserved order failed
type ReleaseStock struct {
	inventoryRepository domain.InventoryRepository
	inventorySystem     gateway.Gateway
	eventPublisher      events.Publisher
	logger              *zap.Logger
}

// NewReleaseStock creates a new ReleaseStock use case
func NewReleaseStock(
	inventoryRepository domain.InventoryRepository,
	inventorySystem gateway.Gateway,
	eventPublisher events.Publisher,
	logger *zap.Logger,
) *ReleaseStock {
	return &ReleaseStock{
		inventoryRepository: inventoryRepository,
		inventorySystem:     inventorySystem,
		eventPublisher:      eventPublisher,
		logger:              logger,
	}
}

// Execute returns nil once the release is stored. INVENTORY_REFUNDED is announced only when
// stock was actually returned; nothing consumes it, so a failed announcement is logged and
// does not hold back the acknowledgment.
func (uc *ReleaseStock) Execute(ctx context.Context, order models.OrderSnapshot) error {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "release_stock",
		trace.WithAttributes(
			attribute.String("order_id", order.ID.String()),
			attribute.String("sku", order.Item),
		),
	)
	defer span.End()

	status := "error"
	defer func() {
		recordOperation(ctx, "release_stock", status, start)
	}()

	logger := uc.logger.With(zap.String("order_id", order.ID.String()), zap.String("sku", order.Item))

	var effect domain.StockEffect
	err := uc.inventorySystem.Call(ctx, "release", func(ctx context.Context) error {
		var err error
		effect, err = uc.inventoryRepository.Release(ctx, order.ID, domain.NormalizeSKU(order.Item), domain.ReservationQuantity)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to release stock")
	}

	if !effect.Applied {
		if effect.Previous == "" {
			status = "no_reservation"
			logger.Info("nothing reserved for order, release recorded without stock change")
		} else {
			status = "duplicate"
			logger.Info("release already applied for order", zap.String("reservation", string(effect.Previous)))
		}
		return nil
	}

	status = "success"
	logger.Info("stock released", zap.Int("available", effect.Available))

	if err := uc.eventPublisher.Publish(ctx, events.NewOrderEvent(events.InventoryRefunded, order)); err != nil {
		logger.Warn("failed to announce inventory refunded",
			zap.String("topic", events.InventoryRefunded.String()),
			zap.Error(err))
	}
	return nil
}
