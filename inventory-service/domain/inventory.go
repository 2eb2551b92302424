package domain

import (
	"context"
	"strings"

	"github.com/draftea/order-saga/shared/models"
	"github.com/pkg/errors"
)

var (
	ErrStockNotFound      = errors.New("stock item not found")
	ErrInvalidReservation = errors.New("invalid reservation")
)

// ReservationQuantity is the stock taken by one order; an order always carries a single item
const ReservationQuantity = 1

// ReservationStatus tracks the stock effect recorded for an order
type ReservationStatus string

const (
	ReservationStatusReserved ReservationStatus = "RESERVED"
	// ReservationStatusReleased is final; a release that arrives with no reservation recorded
	// stores it as a tombstone so a late redelivered reserve is ignored
	ReservationStatusReleased ReservationStatus = "RELEASED"
)

// StockItem is the available quantity of one SKU. Available may go negative since the
// saga has no path for a failed reservation.
type StockItem struct {
	SKU        string
	Available  int
	Timestamps models.Timestamps
}

// Reservation is the stock effect of one order, keyed by the order id
type Reservation struct {
	OrderID    models.ID
	SKU        string
	Quantity   int
	Status     ReservationStatus
	Timestamps models.Timestamps
}

// StockEffect reports the outcome of Reserve/Release
type StockEffect struct {
	// Applied is false when the call was absorbed by the order's recorded reservation
	Applied   bool
	Available int
	// Previous is the order's reservation status before the call, empty if none was recorded
	Previous ReservationStatus
}

// NewStockEffect describes a call made against existing, the reservation recorded before it
func NewStockEffect(existing *Reservation, applied bool, available int) StockEffect {
	effect := StockEffect{Applied: applied, Available: available}
	if existing != nil {
		effect.Previous = existing.Status
	}
	return effect
}

// InventoryRepository owns the stock store. Reserve and Release are atomic and idempotent per
// order id; unknown SKUs are created with the configured initial stock.
type InventoryRepository interface {
	Reserve(ctx context.Context, orderID models.ID, sku string, quantity int) (StockEffect, error)
	Release(ctx context.Context, orderID models.ID, sku string, quantity int) (StockEffect, error)
	FindStock(ctx context.Context, sku string) (*StockItem, error)
}

// NewStockItem creates a stock item holding the initial quantity
func NewStockItem(sku string, initial int) *StockItem {
	return &StockItem{
		SKU:        sku,
		Available:  initial,
		Timestamps: models.NewTimestamps(),
	}
}

// NormalizeSKU maps an order item to the SKU it is stocked under
func NormalizeSKU(item string) string {
	return strings.TrimSpace(item)
}

// Reserve takes quantity from the item for orderID. existing is the reservation already
// recorded for the order, nil if none; when present the call has no effect.
func (s *StockItem) Reserve(existing *Reservation, orderID models.ID, quantity int) (*Reservation, bool, error) {
	if err := s.check(existing, orderID, quantity); err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	s.Available -= quantity
	s.Timestamps = s.Timestamps.Update()

	return &Reservation{
		OrderID:    orderID,
		SKU:        s.SKU,
		Quantity:   quantity,
		Status:     ReservationStatusReserved,
		Timestamps: models.NewTimestamps(),
	}, true, nil
}

// Release returns the stock reserved for orderID. Without a recorded reservation nothing is
// returned and a RELEASED tombstone is produced instead.
func (s *StockItem) Release(existing *Reservation, orderID models.ID, quantity int) (*Reservation, bool, error) {
	if err := s.check(existing, orderID, quantity); err != nil {
		return nil, false, err
	}

	if existing == nil {
		return &Reservation{
			OrderID:    orderID,
			SKU:        s.SKU,
			Status:     ReservationStatusReleased,
			Timestamps: models.NewTimestamps(),
		}, false, nil
	}
	if existing.Status == ReservationStatusReleased {
		return existing, false, nil
	}

	released := *existing
	released.Status = ReservationStatusReleased
	released.Timestamps = released.Timestamps.Update()

	s.Available += existing.Quantity
	s.Timestamps = s.Timestamps.Update()
	return &released, true, nil
}

func (s *StockItem) check(existing *Reservation, orderID models.ID, quantity int) error {
	if s.SKU == "" {
		return errors.Wrap(ErrInvalidReservation, "sku is required")
	}
	if quantity <= 0 {
		return errors.Wrapf(ErrInvalidReservation, "quantity must be positive, got %d", quantity)
	}
	if existing != nil && existing.SKU != s.SKU {
		return errors.Wrapf(ErrInvalidReservation, "order %s is recorded on sku %q, not %q", orderID, existing.SKU, s.SKU)
	}
	return nil
}
