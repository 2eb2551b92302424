package config

import (
	"context"

	"github.com/draftea/order-saga/payment-service/application"
	"github.com/draftea/order-saga/payment-service/domain"
	"github.com/draftea/order-saga/payment-service/handlers"
	"github.com/draftea/order-saga/payment-service/infrastructure"
	"github.com/draftea/order-saga/shared/events"
	"github.com/draftea/order-saga/shared/gateway"
	sharedinfra "github.com/draftea/order-saga/shared/infrastructure"
	"github.com/draftea/order-saga/shared/logging"
	"github.com/draftea/order-saga/shared/telemetry"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Dependencies struct {
	Logger *zap.Logger

	// Database, nil when running on the in-memory store
	DB *sqlx.DB

	// Repositories
	ChargeRepository domain.ChargeRepository

	// Use Cases
	ProcessCharge *application.ProcessCharge

	// Event Handlers
	PaymentEventHandlers *handlers.PaymentEventHandlers

	// Infrastructure
	Broker sharedinfra.Broker

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

func BuildDependencies(ctx context.Context, config *Config) (*Dependencies, error) {
	policy, err := config.ChargePolicy()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(config.ServiceName, config.Logging.Level)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{Logger: logger}

	// Initialize telemetry first
	telConfig := telemetry.PaymentServiceConfig
	if config.Telemetry.Enabled {
		telConfig = telConfig.WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
	}
	tel, telemetryShutdown, err := telemetry.InitTelemetry(ctx, telConfig)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		tel = telemetry.NewTelemetry(telConfig)
	} else {
		deps.TelemetryShutdown = telemetryShutdown
	}
	deps.Telemetry = tel

	brokerConfig := config.BrokerConfig(events.GroupPayment)

	// Initialize repositories
	if config.Database.URL != "" {
		db, err := sharedinfra.OpenPostgres(ctx, config.Database.URL)
		if err != nil {
			return nil, err
		}
		deps.DB = db

		if err := infrastructure.Migrate(db, logger); err != nil {
			deps.Close()
			return nil, err
		}
		if err := sharedinfra.MigrateDeadLetters(db, logger); err != nil {
			deps.Close()
			return nil, err
		}
		deps.ChargeRepository = infrastructure.NewPostgresChargeRepository(db)
		brokerConfig.Archive = sharedinfra.NewPostgresDeadLetterStore(db)
	} else {
		logger.Info("database.url not set, charges are kept in memory")
		deps.ChargeRepository = infrastructure.NewMemoryChargeRepository()
	}

	broker, err := sharedinfra.NewBroker(ctx, brokerConfig, logger)
	if err != nil {
		deps.Close()
		return nil, errors.Wrap(err, "failed to connect to broker")
	}
	deps.Broker = broker

	paymentGateway := gateway.NewSimulatedGateway("payment", config.GatewayConfig(), logger)

	// Initialize use cases
	deps.ProcessCharge = application.NewProcessCharge(deps.ChargeRepository, paymentGateway, broker, policy, logger)

	// Initialize handlers
	deps.PaymentEventHandlers = handlers.NewPaymentEventHandlers(deps.ProcessCharge, logger)

	logger.Info("charge policy", zap.Float64("insufficiency_threshold", policy.InsufficiencyThreshold))
	return deps, nil
}

// Subscribe starts consuming INVENTORY_RESERVED
func (d *Dependencies) Subscribe(ctx context.Context) error {
	return d.PaymentEventHandlers.Router().SubscribeAll(ctx, d.Broker, func(h events.EventHandler) events.EventHandler {
		return telemetry.EventMiddleware(d.Telemetry, h)
	})
}

// Close closes all dependencies
func (d *Dependencies) Close() error {
	var err error

	if d.Broker != nil {
		err = multierr.Append(err, errors.Wrap(d.Broker.Close(), "failed to close broker"))
	}

	if d.DB != nil {
		err = multierr.Append(err, errors.Wrap(d.DB.Close(), "failed to close database"))
	}

	if d.TelemetryShutdown != nil {
		d.TelemetryShutdown()
	}

	_ = d.Logger.Sync()
	return err
}
