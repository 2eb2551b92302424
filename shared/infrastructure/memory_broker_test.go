package infrastructure

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/draftea/order-saga/shared/events"
	"github.com/draftea/order-saga/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestOrder() models.OrderSnapshot {
	return models.OrderSnapshot{
		ID:     models.GenerateUUID(),
		UserID: "u1",
		Item:   "Widget",
		Price:  50,
		Status: models.OrderStatusPending,
	}
}

func TestMemoryBroker_FanOutDeliversToEveryGroup(t *testing.T) {
	broker := NewMemoryBroker(zap.NewNop(), 3)
	require.NoError(t, broker.DeclareTopology(context.Background()))

	orderGroup := broker.ForGroup(events.GroupOrder)
	inventoryGroup := broker.ForGroup(events.GroupInventory)
	defer orderGroup.Close()
	defer inventoryGroup.Close()

	var orderSeen, inventorySeen atomic.Int32
	require.NoError(t, orderGroup.Subscribe(context.Background(), events.PaymentFailed,
		events.EventHandlerFunc(func(ctx context.Context, event *events.Event) error {
			orderSeen.Add(1)
			return nil
		})))
	require.NoError(t, inventoryGroup.Subscribe(context.Background(), events.PaymentFailed,
		events.EventHandlerFunc(func(ctx context.Context, event *events.Event) error {
			inventorySeen.Add(1)
			return nil
		})))

	for i := 0; i < 10; i++ {
		require.NoError(t, broker.Publish(context.Background(), events.NewOrderEvent(events.PaymentFailed, newTestOrder())))
	}

	assert.Eventually(t, func() bool {
		return orderSeen.Load() == 10 && inventorySeen.Load() == 10
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryBroker_RedeliversUntilAcknowledged(t *testing.T) {
	broker := NewMemoryBroker(zap.NewNop(), 5)
	require.NoError(t, broker.DeclareTopology(context.Background()))
	group := broker.ForGroup(events.GroupInventory).WithWorkers(1)
	defer group.Close()

	var mu sync.Mutex
	var attempts []string
	require.NoError(t, group.Subscribe(context.Background(), events.OrderCreated,
		events.EventHandlerFunc(func(ctx context.Context, event *events.Event) error {
			mu.Lock()
			defer mu.Unlock()
			attempt, _ := event.Metadata.Get(events.MetadataAttempt)
			attempts = append(attempts, attempt)
			if len(attempts) < 3 {
				return errors.New("transient")
			}
			return nil
		})))

	require.NoError(t, broker.Publish(context.Background(), events.NewOrderEvent(events.OrderCreated, newTestOrder())))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) == 3
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"1", "2", "3"}, attempts)
	mu.Unlock()
	assert.Empty(t, broker.DeadLetters())
}

func TestMemoryBroker_PoisonMessageIsDeadLetteredOnce(t *testing.T) {
	broker := NewMemoryBroker(zap.NewNop(), 5)
	require.NoError(t, broker.DeclareTopology(context.Background()))
	group := broker.ForGroup(events.GroupPayment)
	defer group.Close()

	var calls atomic.Int32
	require.NoError(t, group.Subscribe(context.Background(), events.InventoryReserved,
		events.EventHandlerFunc(func(ctx context.Context, event *events.Event) error {
			calls.Add(1)
			_, err := event.DecodeOrder()
			return err
		})))

	poison := events.NewEventWithTopic(models.GenerateUUID(), events.InventoryReserved, []byte("not json"))
	require.NoError(t, broker.Publish(context.Background(), poison))

	assert.Eventually(t, func() bool { return len(broker.DeadLetters()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())
	letter := broker.DeadLetters()[0]
	assert.Equal(t, "INVENTORY_RESERVED-payment", letter.Queue)
	assert.Equal(t, []byte("not json"), letter.Body)
}

func TestMemoryBroker_RetryLimitDeadLetters(t *testing.T) {
	broker := NewMemoryBroker(zap.NewNop(), 2)
	require.NoError(t, broker.DeclareTopology(context.Background()))
	group := broker.ForGroup(events.GroupOrder)
	defer group.Close()

	var calls atomic.Int32
	require.NoError(t, group.Subscribe(context.Background(), events.PaymentSuccess,
		events.EventHandlerFunc(func(ctx context.Context, event *events.Event) error {
			calls.Add(1)
			return errors.New("always failing")
		})))

	require.NoError(t, broker.Publish(context.Background(), events.NewOrderEvent(events.PaymentSuccess, newTestOrder())))

	assert.Eventually(t, func() bool { return len(broker.DeadLetters()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoryBroker_UnboundTopicIsDropped(t *testing.T) {
	broker := NewMemoryBroker(zap.NewNop(), 2)
	require.NoError(t, broker.DeclareTopology(context.Background()))

	require.NoError(t, broker.Publish(context.Background(), events.NewOrderEvent(events.InventoryRefunded, newTestOrder())))

	err := broker.ForGroup(events.GroupOrder).Subscribe(context.Background(), events.InventoryRefunded,
		events.EventHandlerFunc(func(ctx context.Context, event *events.Event) error { return nil }))
	assert.Error(t, err)
}

func TestMemoryBroker_DeclareTopologyIsIdempotent(t *testing.T) {
	broker := NewMemoryBroker(zap.NewNop(), 2)
	require.NoError(t, broker.DeclareTopology(context.Background()))
	require.NoError(t, broker.Publish(context.Background(), events.NewOrderEvent(events.OrderCreated, newTestOrder())))
	require.NoError(t, broker.DeclareTopology(context.Background()))

	assert.Equal(t, 1, broker.Pending(events.Binding{Topic: events.OrderCreated, Group: events.GroupInventory}))
}
