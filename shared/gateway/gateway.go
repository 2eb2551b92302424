package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Gateway performs a call to an external system (inventory database, payment provider)
type Gateway interface {
	Call(ctx context.Context, operation string, fn func(ctx context.Context) error) error
}

// Config controls latency, per-attempt timeout and retries of an external call
type Config struct {
	Latency       time.Duration
	Timeout       time.Duration
	MaxRetries    uint
	RetryInterval time.Duration
}

// SimulatedGateway stands in for a remote dependency: every attempt takes Latency,
// is bounded by Timeout and failed attempts are retried with exponential backoff.
type SimulatedGateway struct {
	name   string
	config Config
	logger *zap.Logger
}

var _ Gateway = (*SimulatedGateway)(nil)

// NewSimulatedGateway creates a gateway for the named dependency
func NewSimulatedGateway(name string, config Config, logger *zap.Logger) *SimulatedGateway {
	if config.RetryInterval <= 0 {
		config.RetryInterval = 200 * time.Millisecond
	}
	return &SimulatedGateway{
		name:   name,
		config: config,
		logger: logger,
	}
}

// Call runs fn under the gateway policy and returns the last error
func (g *SimulatedGateway) Call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.config.RetryInterval
	policy.MaxInterval = 20 * g.config.RetryInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, g.attempt(ctx, fn)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(g.config.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.logger.Warn("external call failed, retrying",
				zap.String("gateway", g.name),
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed after %d attempts", g.name, operation, attempt)
	}
	return nil
}

func (g *SimulatedGateway) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	if g.config.Latency > 0 {
		timer := time.NewTimer(g.config.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fn(ctx)
}
