package handlers

import (
	"context"

	"github.com/draftea/order-saga/inventory-service/application"
	"github.com/draftea/order-saga/shared/events"
	"github.com/draftea/order-saga/shared/models"
	"github.com/draftea/order-saga/shared/saga"
	"go.uber.org/zap"
)

// InventoryEventHandlers consumes the forward and compensating inventory triggers
type InventoryEventHandlers struct {
	reserveStock *application.ReserveStock
	releaseStock *application.ReleaseStock
	logger       *zap.Logger
}

// NewInventoryEventHandlers creates new inventory event handlers
func NewInventoryEventHandlers(reserveStock *application.ReserveStock, releaseStock *application.ReleaseStock, logger *zap.Logger) *InventoryEventHandlers {
	return &InventoryEventHandlers{
		reserveStock: reserveStock,
		releaseStock: releaseStock,
		logger:       logger,
	}
}

// Router routes ORDER_CREATED to the reservation and PAYMENT_FAILED to the release
func (h *InventoryEventHandlers) Router() *saga.Router {
	router := saga.NewRouter(h.logger)
	router.RegisterHandler(events.OrderCreated, events.EventHandlerFunc(h.HandleOrderCreated))
	router.RegisterHandler(events.PaymentFailed, events.EventHandlerFunc(h.HandlePaymentFailed))
	return router
}

// HandleOrderCreated reserves stock for a new order
func (h *InventoryEventHandlers) HandleOrderCreated(ctx context.Context, event *events.Event) error {
	return h.withOrder(event, func(order models.OrderSnapshot) error {
		return h.reserveStock.Execute(ctx, order)
	})
}

// HandlePaymentFailed releases the stock of an order whose payment failed
func (h *InventoryEventHandlers) HandlePaymentFailed(ctx context.Context, event *events.Event) error {
	return h.withOrder(event, func(order models.OrderSnapshot) error {
		return h.releaseStock.Execute(ctx, order)
	})
}

func (h *InventoryEventHandlers) withOrder(event *events.Event, fn func(order models.OrderSnapshot) error) error {
	order, err := event.DecodeOrder()
	if err != nil {
		h.logger.Error("malformed inventory trigger",
			zap.String("topic", event.Topic.String()),
			zap.String("event_id", event.ID.String()),
			zap.Error(err))
		return err
	}
	return fn(order)
}
