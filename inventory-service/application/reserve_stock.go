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

// ReserveStock is the forward step: reserve the order's item and pass the order on to payment
type ReserveStock struct {
	inventoryRepository domain.InventoryRepository
	inventorySystem     gateway.Gateway
	eventPublisher      events.Publisher
	logger              *zap.Logger
}

// NewReserveStock creates a new ReserveStock use case
func NewReserveStock(
	inventoryRepository domain.InventoryRepository,
	inventorySystem gateway.Gateway,
	eventPublisher events.Publisher,
	logger *zap.Logger,
) *ReserveStock {
	return &ReserveStock{
		inventoryRepository: inventoryRepository,
		inventorySystem:     inventorySystem,
		eventPublisher:      eventPublisher,
		logger:              logger,
	}
}

// Execute returns nil only once INVENTORY_RESERVED has been published, so the ORDER_CREATED
// message is acknowledged after the forward publish. Redelivery finds the recorded reservation
// and publishes again without taking more stock.
func (uc *ReserveStock) Execute(ctx context.Context, order models.OrderSnapshot) error {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "reserve_stock",
		trace.WithAttributes(
			attribute.String("order_id", order.ID.String()),
			attribute.String("sku", order.Item),
		),
	)
	defer span.End()

	status := "error"
	defer func() {
		recordOperation(ctx, "reserve_stock", status, start)
	}()

	logger := uc.logger.With(zap.String("order_id", order.ID.String()), zap.String("sku", order.Item))

	var effect domain.StockEffect
	err := uc.inventorySystem.Call(ctx, "reserve", func(ctx context.Context) error {
		var err error
		effect, err = uc.inventoryRepository.Reserve(ctx, order.ID, domain.NormalizeSKU(order.Item), domain.ReservationQuantity)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to reserve stock")
	}

	switch {
	case !effect.Applied:
		status = "duplicate"
		logger.Debug("reservation already recorded")
	case effect.Available < 0:
		status = "success"
		logger.Warn("stock oversold", zap.Int("available", effect.Available))
	default:
		status = "success"
		logger.Info("stock reserved", zap.Int("available", effect.Available))
	}

	if err := uc.eventPublisher.Publish(ctx, events.NewOrderEvent(events.InventoryReserved, order)); err != nil {
		status = "error"
		span.RecordError(err)
		logger.Error("failed to publish inventory reserved",
			zap.String("topic", events.InventoryReserved.String()),
			zap.Error(err))
		return errors.Wrap(err, "failed to publish inventory reserved")
	}

	return nil
}

func recordOperation(ctx context.Context, operation, status string, start time.Time) {
	telemetry.RecordCounter(ctx, "inventory_operations_total", "Total inventory operations", 1,
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	telemetry.RecordHistogram(ctx, "inventory_operation_duration_seconds", "Inventory operation duration", time.Since(start).Seconds(),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}
