package domain

import (
	"context"
	"math"
	"strings"

	"github.com/draftea/order-saga/shared/models"
	"github.com/draftea/order-saga/shared/saga"
	"github.com/pkg/errors"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderFinalized   = errors.New("order already finalized")
	ErrConcurrentUpdate = errors.New("order was modified concurrently")
	ErrInvalidOrder     = errors.New("invalid order")
)

// Order aggregate root. Only the order participant creates and mutates it.
type Order struct {
	ID         models.ID
	UserID     string
	Item       string
	Price      float64
	Status     models.OrderStatus
	Timestamps models.Timestamps
	Version    models.Version
}

// OrderRepository persists orders. Save inserts version 1 and otherwise updates only when the
// stored version is the one the order was loaded with (ErrConcurrentUpdate otherwise).
type OrderRepository interface {
	Save(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id models.ID) (*Order, error)
}

// CreateOrder factory method
func CreateOrder(userID, item string, price float64) (*Order, error) {
	userID = strings.TrimSpace(userID)
	item = strings.TrimSpace(item)

	if userID == "" {
		return nil, errors.Wrap(ErrInvalidOrder, "userId is required")
	}
	if item == "" {
		return nil, errors.Wrap(ErrInvalidOrder, "item is required")
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return nil, errors.Wrap(ErrInvalidOrder, "price must be a non-negative number")
	}

	return &Order{
		ID:         models.GenerateUUID(),
		UserID:     userID,
		Item:       item,
		Price:      price,
		Status:     models.OrderStatusPending,
		Timestamps: models.NewTimestamps(),
		Version:    models.NewVersion(),
	}, nil
}

// Confirm marks a paid order as confirmed
func (o *Order) Confirm() error {
	return o.settle(saga.StatusConfirmed)
}

// Cancel marks an order whose payment failed as cancelled
func (o *Order) Cancel() error {
	return o.settle(saga.StatusCancelled)
}

// settle applies a payment outcome. A payment outcome is only ever published after the stock
// was reserved, so the saga is known to be RESERVED while the order is still pending.
func (o *Order) settle(to saga.Status) error {
	if o.Status.IsTerminal() {
		return errors.Wrapf(ErrOrderFinalized, "order %s is %s", o.ID, o.Status)
	}
	if !saga.CanTransition(saga.StatusReserved, to) {
		return errors.Errorf("illegal saga transition to %s", to)
	}

	o.Status = models.OrderStatus(to)
	o.Timestamps = o.Timestamps.Update()
	o.Version = o.Version.Update()
	return nil
}

// IsNew reports whether the order has never been saved
func (o *Order) IsNew() bool {
	return o.Version.Value == 1
}

// Snapshot returns the wire representation of the order
func (o *Order) Snapshot() models.OrderSnapshot {
	return models.OrderSnapshot{
		ID:     o.ID,
		UserID: o.UserID,
		Item:   o.Item,
		Price:  o.Price,
		Status: o.Status,
	}
}
