package infrastructure

import (
	"context"
	"testing"

	"github.com/draftea/order-saga/order-service/domain"
	"github.com/draftea/order-saga/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOrderRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()

	order, err := domain.CreateOrder("u1", "Widget", 50)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, order))

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Snapshot(), found.Snapshot())

	// the stored copy is not shared with the caller
	found.Item = "Changed"
	again, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", again.Item)

	assert.Error(t, repo.Save(ctx, order), "inserting the same order twice must fail")
}

func TestMemoryOrderRepository_NotFound(t *testing.T) {
	_, err := NewMemoryOrderRepository().FindByID(context.Background(), models.GenerateUUID())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestMemoryOrderRepository_OptimisticLocking(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOrderRepository()

	order, err := domain.CreateOrder("u1", "Widget", 50)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, order))

	first, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)

	require.NoError(t, first.Confirm())
	require.NoError(t, repo.Save(ctx, first))

	require.NoError(t, second.Cancel())
	assert.ErrorIs(t, repo.Save(ctx, second), domain.ErrConcurrentUpdate)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, stored.Status)
}
