package domain

import (
	"math"
	"testing"

	"github.com/draftea/order-saga/shared/events"
	"github.com/draftea/order-saga/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargePolicy_Decide(t *testing.T) {
	policy, err := NewChargePolicy(DefaultInsufficiencyThreshold)
	require.NoError(t, err)

	tests := []struct {
		name          string
		price         float64
		expected      ChargeOutcome
		expectedTopic events.Topic
	}{
		{name: "below threshold", price: 50, expected: ChargeOutcomeSucceeded, expectedTopic: events.PaymentSuccess},
		{name: "at threshold", price: 100, expected: ChargeOutcomeSucceeded, expectedTopic: events.PaymentSuccess},
		{name: "free", price: 0, expected: ChargeOutcomeSucceeded, expectedTopic: events.PaymentSuccess},
		{name: "above threshold", price: 150, expected: ChargeOutcomeFailed, expectedTopic: events.PaymentFailed},
		{name: "just above threshold", price: 100.01, expected: ChargeOutcomeFailed, expectedTopic: events.PaymentFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.Decide(tt.price))

			charge := NewCharge(models.OrderSnapshot{ID: models.GenerateUUID(), Price: tt.price}, policy)
			assert.Equal(t, tt.expected, charge.Outcome)
			assert.Equal(t, tt.expectedTopic, charge.Topic())
		})
	}
}

func TestNewChargePolicy(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		wantErr   bool
	}{
		{name: "default", threshold: DefaultInsufficiencyThreshold},
		{name: "zero fails every paid order", threshold: 0},
		{name: "negative", threshold: -1, wantErr: true},
		{name: "NaN", threshold: math.NaN(), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChargePolicy(tt.threshold)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPolicy)
				return
			}
			assert.NoError(t, err)
		})
	}
}
