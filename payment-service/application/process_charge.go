package application

import (
	"context"
	"time"

	"github.com/draftea/order-saga/payment-service/domain"
	"github.com/draftea/order-saga/shared/events"
	"github.com/draftea/order-saga/shared/gateway"
	"github.com/draftea/order-saga/shared/models"
	"github.com/draftea/order-saga/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProcessCharge charges a reserved order and publishes the terminal outcome
type ProcessCharge struct {
	chargeRepository domain.ChargeRepository
	paymentGateway   gateway.Gateway
	eventPublisher   events.Publisher
	policy           domain.ChargePolicy
	logger           *zap.Logger
}

// NewProcessCharge creates a new ProcessCharge use case
func NewProcessCharge(
	chargeRepository domain.ChargeRepository,
	paymentGateway gateway.Gateway,
	eventPublisher events.Publisher,
	policy domain.ChargePolicy,
	logger *zap.Logger,
) *ProcessCharge {
	return &ProcessCharge{
		chargeRepository: chargeRepository,
		paymentGateway:   paymentGateway,
		eventPublisher:   eventPublisher,
		policy:           policy,
		logger:           logger,
	}
}

// Execute returns nil once PAYMENT_SUCCESS or PAYMENT_FAILED is published. A redelivered
// INVENTORY_RESERVED republishes the recorded outcome without charging again.
func (uc *ProcessCharge) Execute(ctx context.Context, order models.OrderSnapshot) error {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "process_charge",
		trace.WithAttributes(
			attribute.String("order_id", order.ID.String()),
			attribute.Float64("amount", order.Price),
		),
	)
	defer span.End()

	status := "error"
	defer func() {
		telemetry.RecordCounter(ctx, "payment_operations_total", "Total payment operations", 1,
			attribute.String("operation", "process_charge"),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "payment_operation_duration_seconds", "Payment operation duration", time.Since(start).Seconds(),
			attribute.String("operation", "process_charge"),
			attribute.String("status", status),
		)
	}()

	logger := uc.logger.With(zap.String("order_id", order.ID.String()))

	charge, err := uc.chargeRepository.FindByOrderID(ctx, order.ID)
	switch {
	case err == nil:
		logger.Debug("charge already recorded", zap.String("outcome", string(charge.Outcome)))
	case errors.Is(err, domain.ErrChargeNotFound):
		charge, err = uc.charge(ctx, order)
		if err != nil {
			span.RecordError(err)
			return err
		}
	default:
		span.RecordError(err)
		return errors.Wrap(err, "failed to find charge")
	}

	topic := charge.Topic()
	span.SetAttributes(attribute.String("outcome", string(charge.Outcome)))

	if err := uc.eventPublisher.Publish(ctx, events.NewOrderEvent(topic, order)); err != nil {
		span.RecordError(err)
		logger.Error("failed to publish payment outcome",
			zap.String("topic", topic.String()),
			zap.Error(err))
		return errors.Wrapf(err, "failed to publish %s", topic)
	}

	logger.Info("payment outcome published",
		zap.String("topic", topic.String()),
		zap.Float64("amount", charge.Amount),
		zap.String("reason", charge.Reason))

	status = string(charge.Outcome)
	return nil
}

func (uc *ProcessCharge) charge(ctx context.Context, order models.OrderSnapshot) (*domain.Charge, error) {
	var recorded *domain.Charge
	err := uc.paymentGateway.Call(ctx, "charge", func(ctx context.Context) error {
		var err error
		recorded, err = uc.chargeRepository.Save(ctx, domain.NewCharge(order, uc.policy))
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to charge order")
	}
	return recorded, nil
}
