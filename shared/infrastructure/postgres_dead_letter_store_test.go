package infrastructure

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/draftea/order-saga/shared/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPostgresDeadLetter(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		letter      *events.DeadLetter
		wantEventID *string
		wantBody    []byte
	}{
		{
			name: "keeps event id from metadata",
			letter: &events.DeadLetter{
				Queue:     "PAYMENT_FAILED-inventory",
				Topic:     events.PaymentFailed,
				Body:      []byte(`{"id":"x"}`),
				Reason:    "invalid payload",
				Metadata:  events.Metadata{events.MetadataEventID: "evt-1"},
				Timestamp: at,
			},
			wantEventID: strPtr("evt-1"),
			wantBody:    []byte(`{"id":"x"}`),
		},
		{
			name: "empty body and no metadata",
			letter: &events.DeadLetter{
				Queue:     "ORDER_CREATED-inventory",
				Topic:     events.OrderCreated,
				Reason:    "invalid payload",
				Timestamp: at,
			},
			wantBody: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := toPostgresDeadLetter(tt.letter)
			require.NoError(t, err)

			assert.Equal(t, tt.wantEventID, row.EventID)
			assert.Equal(t, tt.wantBody, row.Body)
			assert.Equal(t, tt.letter.Topic.String(), row.Topic)
			assert.Equal(t, at, row.CreatedAt)

			var metadata map[string]string
			require.NoError(t, json.Unmarshal(row.Metadata, &metadata))
			assert.Len(t, metadata, len(tt.letter.Metadata))
		})
	}
}

func TestToPostgresDeadLetter_DefaultsTimestamp(t *testing.T) {
	row, err := toPostgresDeadLetter(&events.DeadLetter{Queue: "q", Topic: events.OrderCreated})
	require.NoError(t, err)
	assert.False(t, row.CreatedAt.IsZero())
}

func strPtr(s string) *string {
	return &s
}
