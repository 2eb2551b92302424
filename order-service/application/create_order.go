package application

import (
	"context"
	"time"

	"github.com/draftea/order-saga/order-service/domain"
	"github.com/draftea/order-saga/shared/events"
	"github.com/draftea/order-saga/shared/gateway"
	"github.com/draftea/order-saga/shared/models"
	"github.com/draftea/order-saga/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CreateOrderCommand represents the intake request
type CreateOrderCommand struct {
	UserID string  `json:"userId"`
	Item   string  `json:"item"`
	Price  float64 `json:"price"`
}

// CreateOrder stores a pending order and starts the saga by publishing ORDER_CREATED
type CreateOrder struct {
	orderRepository domain.OrderRepository
	eventPublisher  events.Publisher
	publishRetry    gateway.Gateway
	logger          *zap.Logger
}

// NewCreateOrder creates a new CreateOrder use case. publishRetry bounds the attempts made
// to hand ORDER_CREATED to the broker.
func NewCreateOrder(
	orderRepository domain.OrderRepository,
	eventPublisher events.Publisher,
	publishRetry gateway.Gateway,
	logger *zap.Logger,
) *CreateOrder {
	return &CreateOrder{
		orderRepository: orderRepository,
		eventPublisher:  eventPublisher,
		publishRetry:    publishRetry,
		logger:          logger,
	}
}

// Execute stores the order and hands ORDER_CREATED to the broker; it never waits for the saga.
// Broker failures are logged and never reach the caller, who always gets the stored PENDING order.
func (uc *CreateOrder) Execute(ctx context.Context, cmd *CreateOrderCommand) (models.OrderSnapshot, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "create_order",
		trace.WithAttributes(
			attribute.String("user_id", cmd.UserID),
			attribute.String("item", cmd.Item),
			attribute.Float64("price", cmd.Price),
		),
	)
	defer span.End()

	status := "error"
	defer func() {
		telemetry.RecordCounter(ctx, "order_operations_total", "Total order operations", 1,
			attribute.String("operation", "create_order"),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "order_operation_duration_seconds", "Order operation duration", time.Since(start).Seconds(),
			attribute.String("operation", "create_order"),
			attribute.String("status", status),
		)
	}()

	order, err := domain.CreateOrder(cmd.UserID, cmd.Item, cmd.Price)
	if err != nil {
		span.RecordError(err)
		return models.OrderSnapshot{}, err
	}
	span.SetAttributes(attribute.String("order_id", order.ID.String()))

	if err := uc.orderRepository.Save(ctx, order); err != nil {
		span.RecordError(err)
		return models.OrderSnapshot{}, errors.Wrap(err, "failed to save order")
	}

	snapshot := order.Snapshot()
	// one event for every attempt, so a broker that deduplicates by message id sees one message
	event := events.NewOrderEvent(events.OrderCreated, snapshot)
	err = uc.publishRetry.Call(ctx, "publish_order_created", func(ctx context.Context) error {
		return uc.eventPublisher.Publish(ctx, event)
	})
	if err != nil {
		span.RecordError(err)
		uc.logger.Error("order stored but ORDER_CREATED was not published",
			zap.String("order_id", order.ID.String()),
			zap.String("topic", events.OrderCreated.String()),
			zap.Error(err))
		status = "unpublished"
		return snapshot, nil
	}

	uc.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("item", order.Item),
		zap.Float64("price", order.Price))

	status = "success"
	return snapshot, nil
}
