package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/order-saga/payment-service/domain"
	"github.com/draftea/order-saga/shared/models"
	"github.com/pkg/errors"
)

// MemoryChargeRepository keeps charges in process memory
type MemoryChargeRepository struct {
	mu      sync.Mutex
	charges map[models.ID]domain.Charge
}

var _ domain.ChargeRepository = (*MemoryChargeRepository)(nil)

// NewMemoryChargeRepository creates an empty repository
func NewMemoryChargeRepository() *MemoryChargeRepository {
	return &MemoryChargeRepository{charges: make(map[models.ID]domain.Charge)}
}

// FindByOrderID returns a copy of the recorded charge
func (r *MemoryChargeRepository) FindByOrderID(ctx context.Context, orderID models.ID) (*domain.Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	charge, ok := r.charges[orderID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrChargeNotFound, "order %s", orderID)
	}
	return &charge, nil
}

// Save records the charge if the order has none yet
func (r *MemoryChargeRepository) Save(ctx context.Context, charge *domain.Charge) (*domain.Charge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.charges[charge.OrderID]
	if !ok {
		stored = *charge
		r.charges[charge.OrderID] = stored
	}
	return &stored, nil
}
