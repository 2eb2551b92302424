package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/order-saga/order-service/domain"
	"github.com/draftea/order-saga/shared/models"
	"github.com/pkg/errors"
)

// MemoryOrderRepository keeps orders in process memory; it is the default store
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[models.ID]domain.Order
}

var _ domain.OrderRepository = (*MemoryOrderRepository)(nil)

// NewMemoryOrderRepository creates an empty repository
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[models.ID]domain.Order)}
}

// Save stores a copy of the order
func (r *MemoryOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.orders[order.ID]
	switch {
	case order.IsNew() && exists:
		return errors.Errorf("order %s already exists", order.ID)
	case !order.IsNew() && !exists:
		return errors.Wrapf(domain.ErrOrderNotFound, "order %s", order.ID)
	case !order.IsNew() && stored.Version.Value != order.Version.Value-1:
		return errors.Wrapf(domain.ErrConcurrentUpdate, "order %s at version %d", order.ID, stored.Version.Value)
	}

	r.orders[order.ID] = *order
	return nil
}

// FindByID returns a copy of the stored order
func (r *MemoryOrderRepository) FindByID(ctx context.Context, id models.ID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
	}
	return &order, nil
}
