package application

import (
	"context"
	"strings"

	"github.com/draftea/order-saga/inventory-service/domain"
	"github.com/pkg/errors"
)

// StockResponse is the operational view of one SKU
type StockResponse struct {
	SKU       string `json:"sku"`
	Available int    `json:"available"`
}

// GetStock reads the local stock store
type GetStock struct {
	inventoryRepository domain.InventoryRepository
}

// NewGetStock creates a new GetStock use case
func NewGetStock(inventoryRepository domain.InventoryRepository) *GetStock {
	return &GetStock{inventoryRepository: inventoryRepository}
}

// Execute returns ErrStockNotFound for a SKU no order has touched yet
func (uc *GetStock) Execute(ctx context.Context, sku string) (*StockResponse, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, errors.Wrap(domain.ErrStockNotFound, "empty sku")
	}

	item, err := uc.inventoryRepository.FindStock(ctx, sku)
	if err != nil {
		return nil, err
	}
	return &StockResponse{SKU: item.SKU, Available: item.Available}, nil
}
