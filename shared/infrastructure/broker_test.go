package infrastructure

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/draftea/order-saga/shared/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func deadLetterFor(event *events.Event) func() *events.DeadLetter {
	return func() *events.DeadLetter {
		for _, letter := range SharedMemoryBroker().DeadLetters() {
			if id, _ := letter.Metadata.Get(events.MetadataEventID); id == event.ID.String() {
				return letter
			}
		}
		return nil
	}
}

func TestNewBroker_MemoryDriverUsesBrokerSettings(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := context.Background()

	broker, err := NewBroker(ctx, BrokerConfig{
		Driver:          DriverMemory,
		Group:           events.GroupPayment,
		Workers:         1,
		MaxReceiveCount: 2,
	}, zap.New(core))
	require.NoError(t, err)
	defer broker.Close()

	var attempts atomic.Int32
	require.NoError(t, broker.Subscribe(ctx, events.InventoryReserved,
		events.EventHandlerFunc(func(ctx context.Context, event *events.Event) error {
			attempts.Add(1)
			return errors.New("payment provider down")
		})))

	event := events.NewOrderEvent(events.InventoryReserved, newTestOrder())
	require.NoError(t, broker.Publish(ctx, event))

	findLetter := deadLetterFor(event)
	require.Eventually(t, func() bool { return findLetter() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, "INVENTORY_RESERVED-payment", findLetter().Queue)

	assert.Equal(t, 1, logs.FilterMessage("dead-lettering message").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("memory broker only reaches participants running in this process").
		FilterField(zap.String("group", events.GroupPayment)).Len())
}

func TestNewBroker_UnknownDriverFailsWithoutRetry(t *testing.T) {
	_, err := NewBroker(context.Background(), BrokerConfig{
		Driver:             "carrier-pigeon",
		Group:              events.GroupOrder,
		ConnectMaxAttempts: 3,
		ConnectBackoff:     time.Millisecond,
	}, zap.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown broker driver")
	assert.Contains(t, err.Error(), "after 1 attempts")
}
