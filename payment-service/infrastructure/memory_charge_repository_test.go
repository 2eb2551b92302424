package infrastructure

import (
	"context"
	"testing"

	"github.com/draftea/order-saga/payment-service/domain"
	"github.com/draftea/order-saga/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChargeRepository_FirstChargeWins(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryChargeRepository()
	orderID := models.GenerateUUID()

	_, err := repo.FindByOrderID(ctx, orderID)
	assert.ErrorIs(t, err, domain.ErrChargeNotFound)

	first := &domain.Charge{OrderID: orderID, Amount: 150, Outcome: domain.ChargeOutcomeFailed}
	stored, err := repo.Save(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeOutcomeFailed, stored.Outcome)

	// a later decision under another policy does not replace the recorded outcome
	stored, err = repo.Save(ctx, &domain.Charge{OrderID: orderID, Amount: 150, Outcome: domain.ChargeOutcomeSucceeded})
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeOutcomeFailed, stored.Outcome)

	found, err := repo.FindByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, *first, *found)
}
