package handlers

import (
	"context"

	"github.com/draftea/order-saga/order-service/application"
	"github.com/draftea/order-saga/shared/events"
	"github.com/draftea/order-saga/shared/saga"
	"go.uber.org/zap"
)

// OrderEventHandlers consumes the terminal saga outcomes
type OrderEventHandlers struct {
	processPaymentResult *application.ProcessPaymentResult
	logger               *zap.Logger
}

// NewOrderEventHandlers creates new order event handlers
func NewOrderEventHandlers(processPaymentResult *application.ProcessPaymentResult, logger *zap.Logger) *OrderEventHandlers {
	return &OrderEventHandlers{
		processPaymentResult: processPaymentResult,
		logger:               logger,
	}
}

// Router routes PAYMENT_SUCCESS and PAYMENT_FAILED to their handlers
func (h *OrderEventHandlers) Router() *saga.Router {
	router := saga.NewRouter(h.logger)
	router.RegisterHandler(events.PaymentSuccess, events.EventHandlerFunc(h.HandlePaymentSuccess))
	router.RegisterHandler(events.PaymentFailed, events.EventHandlerFunc(h.HandlePaymentFailed))
	return router
}

// HandlePaymentSuccess confirms the order
func (h *OrderEventHandlers) HandlePaymentSuccess(ctx context.Context, event *events.Event) error {
	return h.handleOutcome(ctx, event, true)
}

// HandlePaymentFailed cancels the order
func (h *OrderEventHandlers) HandlePaymentFailed(ctx context.Context, event *events.Event) error {
	return h.handleOutcome(ctx, event, false)
}

func (h *OrderEventHandlers) handleOutcome(ctx context.Context, event *events.Event, succeeded bool) error {
	order, err := event.DecodeOrder()
	if err != nil {
		h.logger.Error("malformed payment outcome",
			zap.String("topic", event.Topic.String()),
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
		return err
	}

	return h.processPaymentResult.Execute(ctx, &application.ProcessPaymentResultCommand{
		Order:     order,
		Succeeded: succeeded,
	})
}
