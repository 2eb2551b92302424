package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/order-saga/inventory-service/domain"
	"github.com/draftea/order-saga/shared/models"
	"github.com/pkg/errors"
)

// MemoryInventoryRepository keeps stock and reservations in process memory
type MemoryInventoryRepository struct {
	mu           sync.Mutex
	initialStock int
	stock        map[string]domain.StockItem
	reservations map[models.ID]domain.Reservation
}

var _ domain.InventoryRepository = (*MemoryInventoryRepository)(nil)

// NewMemoryInventoryRepository creates a repository where unknown SKUs start at initialStock
func NewMemoryInventoryRepository(initialStock int) *MemoryInventoryRepository {
	return &MemoryInventoryRepository{
		initialStock: initialStock,
		stock:        make(map[string]domain.StockItem),
		reservations: make(map[models.ID]domain.Reservation),
	}
}

// Reserve takes stock for the order unless a reservation is already recorded
func (r *MemoryInventoryRepository) Reserve(ctx context.Context, orderID models.ID, sku string, quantity int) (domain.StockEffect, error) {
	return r.apply(orderID, sku, func(item *domain.StockItem, existing *domain.Reservation) (*domain.Reservation, bool, error) {
		return item.Reserve(existing, orderID, quantity)
	})
}

// Release returns the order's stock, recording a tombstone if nothing was reserved
func (r *MemoryInventoryRepository) Release(ctx context.Context, orderID models.ID, sku string, quantity int) (domain.StockEffect, error) {
	return r.apply(orderID, sku, func(item *domain.StockItem, existing *domain.Reservation) (*domain.Reservation, bool, error) {
		return item.Release(existing, orderID, quantity)
	})
}

func (r *MemoryInventoryRepository) apply(
	orderID models.ID,
	sku string,
	fn func(item *domain.StockItem, existing *domain.Reservation) (*domain.Reservation, bool, error),
) (domain.StockEffect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.stock[sku]
	if !ok {
		item = *domain.NewStockItem(sku, r.initialStock)
	}

	var existing *domain.Reservation
	if reservation, ok := r.reservations[orderID]; ok {
		existing = &reservation
	}

	reservation, applied, err := fn(&item, existing)
	if err != nil {
		return domain.StockEffect{}, err
	}

	r.stock[sku] = item
	r.reservations[orderID] = *reservation
	return domain.NewStockEffect(existing, applied, item.Available), nil
}

// FindStock returns a copy of the stock item
func (r *MemoryInventoryRepository) FindStock(ctx context.Context, sku string) (*domain.StockItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.stock[sku]
	if !ok {
		return nil, errors.Wrapf(domain.ErrStockNotFound, "sku %q", sku)
	}
	return &item, nil
}

// FindReservation returns the reservation recorded for an order, if any
func (r *MemoryInventoryRepository) FindReservation(ctx context.Context, orderID models.ID) (*domain.Reservation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reservation, ok := r.reservations[orderID]
	return &reservation, ok
}
