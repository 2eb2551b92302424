package infrastructure

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/draftea/order-saga/shared/events"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Broker drivers
const (
	DriverSNSSQS = "sns_sqs"
	DriverNATS   = "nats"
	DriverMemory = "memory"
)

// Broker is the Message Channel seen by one participant (consumer group)
type Broker interface {
	events.Publisher
	events.Subscriber
	// DeclareTopology creates every channel, queue and binding; safe to repeat
	DeclareTopology(ctx context.Context) error
	Close() error
}

// BrokerConfig selects and tunes the Message Channel implementation
type BrokerConfig struct {
	Driver             string
	URL                string
	Group              string
	Workers            int
	MaxReceiveCount    int
	ConnectMaxAttempts uint
	ConnectBackoff     time.Duration
	AWS                AWSConfig
	// Archive, when set, also receives every dead-lettered message
	Archive events.DeadLetterSink
}

// AWSConfig configures the SNS/SQS driver
type AWSConfig struct {
	Region      string
	EndpointSNS string
	EndpointSQS string
}

// NewBroker connects to the configured broker and declares the saga topology. Connection
// and declaration are retried with exponential backoff; the error returned after the last
// attempt is meant to be fatal.
func NewBroker(ctx context.Context, cfg BrokerConfig, logger *zap.Logger) (Broker, error) {
	if cfg.Group == "" {
		return nil, errors.New("broker consumer group is required")
	}
	if cfg.ConnectMaxAttempts == 0 {
		cfg.ConnectMaxAttempts = 10
	}
	if cfg.ConnectBackoff <= 0 {
		cfg.ConnectBackoff = time.Second
	}

	logger = logger.With(zap.String("broker", cfg.Driver), zap.String("group", cfg.Group))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.ConnectBackoff
	policy.MaxInterval = 30 * time.Second

	attempt := 0
	broker, err := backoff.Retry(ctx, func() (Broker, error) {
		attempt++
		broker, err := connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if err := broker.DeclareTopology(ctx); err != nil {
			broker.Close()
			return nil, errors.Wrap(err, "failed to declare topology")
		}
		return broker, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(cfg.ConnectMaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("broker not ready, retrying",
				zap.Int("attempt", attempt),
				zap.Uint("max_attempts", cfg.ConnectMaxAttempts),
				zap.Duration("retry_in", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "broker unreachable after %d attempts", attempt)
	}

	logger.Info("broker connected and topology declared", zap.Int("attempts", attempt))
	return broker, nil
}

func connect(ctx context.Context, cfg BrokerConfig, logger *zap.Logger) (Broker, error) {
	switch cfg.Driver {
	case DriverSNSSQS, "":
		return NewSNSSQSBroker(ctx, cfg, logger)
	case DriverNATS:
		return NewNATSBroker(cfg, logger)
	case DriverMemory:
		logger.Warn("memory broker only reaches participants running in this process; " +
			"separate participant processes never see each other's messages")
		return SharedMemoryBroker().ForGroup(cfg.Group).
			WithWorkers(cfg.Workers).
			WithMaxDeliveries(cfg.MaxReceiveCount).
			WithLogger(logger).
			WithArchive(cfg.Archive), nil
	default:
		return nil, backoff.Permanent(errors.Errorf("unknown broker driver %q", cfg.Driver))
	}
}
