package events

import (
	"encoding/json"
	"testing"

	"github.com/draftea/order-saga/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic_Matches(t *testing.T) {
	tests := []struct {
		topic   Topic
		pattern Topic
		want    bool
	}{
		{PaymentFailed, PaymentFailed, true},
		{PaymentFailed, PaymentSuccess, false},
		{PaymentFailed, "PAYMENT_#", true},
		{OrderCreated, "PAYMENT_#", false},
		{PaymentFailed, "#_FAILED", true},
		{InventoryReserved, "#RESERV#", true},
		{InventoryRefunded, "#", true},
	}

	for _, tt := range tests {
		t.Run(tt.topic.String()+"~"+tt.pattern.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.topic.Matches(tt.pattern))
		})
	}
}

func TestBindings_FanOutPaymentFailed(t *testing.T) {
	groups := map[string]bool{}
	queues := map[string]bool{}
	for _, b := range Bindings {
		assert.False(t, queues[b.QueueName()], "queue %s declared twice", b.QueueName())
		queues[b.QueueName()] = true
		if b.Topic == PaymentFailed {
			groups[b.Group] = true
		}
	}

	assert.True(t, groups[GroupOrder])
	assert.True(t, groups[GroupInventory])
	assert.Equal(t, "PAYMENT_FAILED-inventory", Binding{Topic: PaymentFailed, Group: GroupInventory}.QueueName())
}

func TestNewOrderEvent_RoundTrip(t *testing.T) {
	order := models.OrderSnapshot{
		ID:     models.GenerateUUID(),
		UserID: "u1",
		Item:   "Widget",
		Price:  50,
		Status: models.OrderStatusPending,
	}

	event := NewOrderEvent(OrderCreated, order)
	body, err := event.MarshalPayload()
	require.NoError(t, err)

	var decodedBody map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decodedBody))
	assert.Equal(t, "u1", decodedBody["userId"])
	assert.Equal(t, "PENDING", decodedBody["status"])

	delivered := FromDelivery(OrderCreated, body, event.Attributes())
	assert.Equal(t, event.ID, delivered.ID)
	assert.Equal(t, order.ID, delivered.CorrelationID)

	decoded, err := delivered.DecodeOrder()
	require.NoError(t, err)
	assert.Equal(t, order, decoded)
}

func TestEvent_DecodeOrder_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{{{"},
		{name: "missing id", body: `{"item":"Widget","price":1}`},
		{name: "negative price", body: `{"id":"550e8400-e29b-41d4-a716-446655440000","item":"Widget","price":-4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromDelivery(OrderCreated, []byte(tt.body), nil).DecodeOrder()
			require.Error(t, err)
			assert.True(t, IsPoison(err))
		})
	}
}

func TestIsPoison(t *testing.T) {
	assert.True(t, IsPoison(errors.Wrap(ErrInvalidPayload, "bad")))
	assert.False(t, IsPoison(errors.New("database down")))
	assert.False(t, IsPoison(nil))
}

func TestUnmarshalPayload_RequiresPointer(t *testing.T) {
	event := NewEventWithTopic(models.GenerateUUID(), OrderCreated, map[string]string{"a": "b"})
	var out map[string]string
	assert.ErrorIs(t, event.UnmarshalPayload(out), ErrInvalidReceiver)
	require.NoError(t, event.UnmarshalPayload(&out))
	assert.Equal(t, "b", out["a"])
}
