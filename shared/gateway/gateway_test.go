package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSimulatedGateway_Call(t *testing.T) {
	tests := []struct {
		name          string
		config        Config
		failures      int
		expectedCalls int
		expectError   bool
	}{
		{
			name:          "succeeds first time",
			config:        Config{MaxRetries: 2, RetryInterval: time.Millisecond},
			failures:      0,
			expectedCalls: 1,
		},
		{
			name:          "succeeds after retries",
			config:        Config{MaxRetries: 3, RetryInterval: time.Millisecond},
			failures:      2,
			expectedCalls: 3,
		},
		{
			name:          "gives up when retries are exhausted",
			config:        Config{MaxRetries: 1, RetryInterval: time.Millisecond},
			failures:      5,
			expectedCalls: 2,
			expectError:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewSimulatedGateway("inventory-db", tt.config, zap.NewNop())

			calls := 0
			err := gw.Call(context.Background(), "reserve", func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return errors.New("connection reset")
				}
				return nil
			})

			assert.Equal(t, tt.expectedCalls, calls)
			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "inventory-db reserve failed")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSimulatedGateway_TimeoutBoundsLatency(t *testing.T) {
	gw := NewSimulatedGateway("payment-provider", Config{
		Latency:       time.Second,
		Timeout:       5 * time.Millisecond,
		RetryInterval: time.Millisecond,
	}, zap.NewNop())

	called := false
	start := time.Now()
	err := gw.Call(context.Background(), "charge", func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSimulatedGateway_AppliesLatency(t *testing.T) {
	gw := NewSimulatedGateway("inventory-db", Config{Latency: 20 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	err := gw.Call(context.Background(), "reserve", func(ctx context.Context) error { return nil })

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
