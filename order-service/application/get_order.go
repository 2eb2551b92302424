package application

import (
	"context"
	"time"

	"github.com/draftea/order-saga/order-service/domain"
	"github.com/draftea/order-saga/shared/models"
	"github.com/draftea/order-saga/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GetOrder returns the locally stored order; it may lag the distributed saga state
type GetOrder struct {
	orderRepository domain.OrderRepository
}

// NewGetOrder creates a new GetOrder use case
func NewGetOrder(orderRepository domain.OrderRepository) *GetOrder {
	return &GetOrder{orderRepository: orderRepository}
}

// Execute looks the order up. Malformed and unknown ids both yield ErrOrderNotFound.
func (uc *GetOrder) Execute(ctx context.Context, orderID string) (models.OrderSnapshot, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "get_order",
		trace.WithAttributes(attribute.String("order_id", orderID)),
	)
	defer span.End()

	status := "error"
	defer func() {
		telemetry.RecordCounter(ctx, "order_operations_total", "Total order operations", 1,
			attribute.String("operation", "get_order"),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "order_operation_duration_seconds", "Order operation duration", time.Since(start).Seconds(),
			attribute.String("operation", "get_order"),
			attribute.String("status", status),
		)
	}()

	id, err := models.NewID(orderID)
	if err != nil {
		status = "not_found"
		return models.OrderSnapshot{}, errors.Wrapf(domain.ErrOrderNotFound, "malformed id %q", orderID)
	}

	order, err := uc.orderRepository.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			status = "not_found"
			return models.OrderSnapshot{}, err
		}
		span.RecordError(err)
		return models.OrderSnapshot{}, errors.Wrap(err, "failed to find order")
	}

	span.SetAttributes(attribute.String("order_status", string(order.Status)))
	status = "success"
	return order.Snapshot(), nil
}
