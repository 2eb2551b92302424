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
	"go.uber.org/zap"
)

// ProcessPaymentResultCommand carries the terminal outcome of the saga for one order
type ProcessPaymentResultCommand struct {
	Order     models.OrderSnapshot
	Succeeded bool
}

// ProcessPaymentResult applies PAYMENT_SUCCESS / PAYMENT_FAILED to the stored order
type ProcessPaymentResult struct {
	orderRepository domain.OrderRepository
	logger          *zap.Logger
}

// NewProcessPaymentResult creates a new ProcessPaymentResult use case
func NewProcessPaymentResult(orderRepository domain.OrderRepository, logger *zap.Logger) *ProcessPaymentResult {
	return &ProcessPaymentResult{
		orderRepository: orderRepository,
		logger:          logger,
	}
}

// Execute returns nil when the message can be acknowledged. Unknown orders and orders already
// in a terminal state are no-ops; storage errors are returned so the message is redelivered.
func (uc *ProcessPaymentResult) Execute(ctx context.Context, cmd *ProcessPaymentResultCommand) error {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "process_payment_result",
		trace.WithAttributes(
			attribute.String("order_id", cmd.Order.ID.String()),
			attribute.Bool("succeeded", cmd.Succeeded),
		),
	)
	defer span.End()

	status := "error"
	defer func() {
		telemetry.RecordCounter(ctx, "order_operations_total", "Total order operations", 1,
			attribute.String("operation", "process_payment_result"),
			attribute.String("status", status),
		)
		telemetry.RecordHistogram(ctx, "order_operation_duration_seconds", "Order operation duration", time.Since(start).Seconds(),
			attribute.String("operation", "process_payment_result"),
			attribute.String("status", status),
		)
	}()

	logger := uc.logger.With(zap.String("order_id", cmd.Order.ID.String()))

	order, err := uc.orderRepository.FindByID(ctx, cmd.Order.ID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			status = "ignored"
			logger.Warn("payment result for unknown order, acknowledging")
			return nil
		}
		span.RecordError(err)
		return errors.Wrap(err, "failed to find order")
	}

	if cmd.Succeeded {
		err = order.Confirm()
	} else {
		err = order.Cancel()
	}
	if err != nil {
		if errors.Is(err, domain.ErrOrderFinalized) {
			status = "duplicate"
			logger.Debug("order already finalized, ignoring payment result",
				zap.String("status", string(order.Status)))
			return nil
		}
		span.RecordError(err)
		return err
	}

	if err := uc.orderRepository.Save(ctx, order); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to save order")
	}

	logger.Info("order finalized", zap.String("status", string(order.Status)))
	status = "success"
	return nil
}
