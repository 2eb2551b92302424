package handlers

import (
	"context"

	"github.com/draftea/order-saga/payment-service/application"
	"github.com/draftea/order-saga/shared/events"
	"github.com/draftea/order-saga/shared/saga"
	"go.uber.org/zap"
)

// PaymentEventHandlers consumes reserved orders
type PaymentEventHandlers struct {
	processCharge *application.ProcessCharge
	logger        *zap.Logger
}

// NewPaymentEventHandlers creates new payment event handlers
func NewPaymentEventHandlers(processCharge *application.ProcessCharge, logger *zap.Logger) *PaymentEventHandlers {
	return &PaymentEventHandlers{
		processCharge: processCharge,
		logger:        logger,
	}
}

// Router routes INVENTORY_RESERVED to the charge
func (h *PaymentEventHandlers) Router() *saga.Router {
	router := saga.NewRouter(h.logger)
	router.RegisterHandler(events.InventoryReserved, events.EventHandlerFunc(h.HandleInventoryReserved))
	return router
}

// HandleInventoryReserved charges the order
func (h *PaymentEventHandlers) HandleInventoryReserved(ctx context.Context, event *events.Event) error {
	order, err := event.DecodeOrder()
	if err != nil {
		h.logger.Error("malformed reserved order",
			zap.String("topic", event.Topic.String()),
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
		return err
	}

	return h.processCharge.Execute(ctx, order)
}
