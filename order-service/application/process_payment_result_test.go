package application

import (
	"context"
	"testing"

	"github.com/draftea/order-saga/order-service/domain"
	"github.com/draftea/order-saga/order-service/mocks"
	"github.com/draftea/order-saga/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pendingOrder(t *testing.T) *domain.Order {
	t.Helper()
	order, err := domain.CreateOrder("u1", "Widget", 50)
	require.NoError(t, err)
	return order
}

func TestProcessPaymentResult_Execute(t *testing.T) {
	tests := []struct {
		name           string
		succeeded      bool
		order          func(t *testing.T) *domain.Order
		setupMocks     func(*mocks.MockOrderRepository, *domain.Order)
		expectedError  string
		expectedStatus models.OrderStatus
	}{
		{
			name:      "payment success confirms a pending order",
			succeeded: true,
			order:     pendingOrder,
			setupMocks: func(repo *mocks.MockOrderRepository, order *domain.Order) {
				repo.EXPECT().FindByID(mock.Anything, order.ID).Return(order, nil).Once()
				repo.EXPECT().Save(mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
					return o.Status == models.OrderStatusConfirmed && o.Version.Value == 2
				})).Return(nil).Once()
			},
			expectedStatus: models.OrderStatusConfirmed,
		},
		{
			name:      "payment failure cancels a pending order",
			succeeded: false,
			order:     pendingOrder,
			setupMocks: func(repo *mocks.MockOrderRepository, order *domain.Order) {
				repo.EXPECT().FindByID(mock.Anything, order.ID).Return(order, nil).Once()
				repo.EXPECT().Save(mock.Anything, mock.Anything).Return(nil).Once()
			},
			expectedStatus: models.OrderStatusCancelled,
		},
		{
			name:      "redelivered outcome is a no-op",
			succeeded: false,
			order: func(t *testing.T) *domain.Order {
				order := pendingOrder(t)
				require.NoError(t, order.Confirm())
				return order
			},
			setupMocks: func(repo *mocks.MockOrderRepository, order *domain.Order) {
				repo.EXPECT().FindByID(mock.Anything, order.ID).Return(order, nil).Once()
			},
			expectedStatus: models.OrderStatusConfirmed,
		},
		{
			name:      "unknown order is acknowledged",
			succeeded: true,
			order:     pendingOrder,
			setupMocks: func(repo *mocks.MockOrderRepository, order *domain.Order) {
				repo.EXPECT().FindByID(mock.Anything, order.ID).Return(nil, domain.ErrOrderNotFound).Once()
			},
			expectedStatus: models.OrderStatusPending,
		},
		{
			name:      "storage failure is returned for redelivery",
			succeeded: true,
			order:     pendingOrder,
			setupMocks: func(repo *mocks.MockOrderRepository, order *domain.Order) {
				repo.EXPECT().FindByID(mock.Anything, order.ID).Return(nil, errors.New("connection reset")).Once()
			},
			expectedError:  "failed to find order",
			expectedStatus: models.OrderStatusPending,
		},
		{
			name:      "concurrent update is returned for redelivery",
			succeeded: true,
			order:     pendingOrder,
			setupMocks: func(repo *mocks.MockOrderRepository, order *domain.Order) {
				repo.EXPECT().FindByID(mock.Anything, order.ID).Return(order, nil).Once()
				repo.EXPECT().Save(mock.Anything, mock.Anything).Return(domain.ErrConcurrentUpdate).Once()
			},
			expectedError:  "failed to save order",
			expectedStatus: models.OrderStatusConfirmed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := tt.order(t)
			mockRepo := mocks.NewMockOrderRepository(t)
			tt.setupMocks(mockRepo, order)

			useCase := NewProcessPaymentResult(mockRepo, zap.NewNop())
			err := useCase.Execute(context.Background(), &ProcessPaymentResultCommand{
				Order:     order.Snapshot(),
				Succeeded: tt.succeeded,
			})

			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedStatus, order.Status)
		})
	}
}
