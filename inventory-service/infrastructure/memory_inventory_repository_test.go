package infrastructure

import (
	"context"
	"sync"
	"testing"

	"github.com/draftea/order-saga/inventory-service/domain"
	"github.com/draftea/order-saga/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInventoryRepository_ReserveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryInventoryRepository(10)
	orderID := models.GenerateUUID()

	effect, err := repo.Reserve(ctx, orderID, "Widget", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StockEffect{Applied: true, Available: 9}, effect)

	effect, err = repo.Reserve(ctx, orderID, "Widget", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StockEffect{Applied: false, Available: 9, Previous: domain.ReservationStatusReserved}, effect)

	item, err := repo.FindStock(ctx, "Widget")
	require.NoError(t, err)
	assert.Equal(t, 9, item.Available)
}

func TestMemoryInventoryRepository_ReleaseBeforeReserve(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryInventoryRepository(10)
	orderID := models.GenerateUUID()

	effect, err := repo.Release(ctx, orderID, "Widget", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StockEffect{Applied: false, Available: 10}, effect)

	// the late reserve is absorbed by the tombstone
	effect, err = repo.Reserve(ctx, orderID, "Widget", 1)
	require.NoError(t, err)
	assert.False(t, effect.Applied)
	assert.Equal(t, 10, effect.Available)

	reservation, ok := repo.FindReservation(ctx, orderID)
	require.True(t, ok)
	assert.Equal(t, domain.ReservationStatusReleased, reservation.Status)
}

func TestMemoryInventoryRepository_RepeatedReleaseReportsPreviousStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryInventoryRepository(10)
	orderID := models.GenerateUUID()

	_, err := repo.Reserve(ctx, orderID, "Widget", 1)
	require.NoError(t, err)

	effect, err := repo.Release(ctx, orderID, "Widget", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StockEffect{Applied: true, Available: 10, Previous: domain.ReservationStatusReserved}, effect)

	effect, err = repo.Release(ctx, orderID, "Widget", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StockEffect{Applied: false, Available: 10, Previous: domain.ReservationStatusReleased}, effect)
}

func TestMemoryInventoryRepository_ConcurrentOrders(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryInventoryRepository(100)

	released := make([]models.ID, 0, 20)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < 40; i++ {
		orderID := models.GenerateUUID()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Reserve(ctx, orderID, "Widget", 1)
			assert.NoError(t, err)
			if i%2 == 0 {
				_, err := repo.Release(ctx, orderID, "Widget", 1)
				assert.NoError(t, err)
				mu.Lock()
				released = append(released, orderID)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	item, err := repo.FindStock(ctx, "Widget")
	require.NoError(t, err)
	assert.Equal(t, 80, item.Available)
	assert.Len(t, released, 20)
}

func TestMemoryInventoryRepository_FindStockUnknown(t *testing.T) {
	_, err := NewMemoryInventoryRepository(10).FindStock(context.Background(), "Nothing")
	assert.ErrorIs(t, err, domain.ErrStockNotFound)
}
