package config

import (
	"context"

	"github.com/draftea/order-saga/order-service/application"
	"github.com/draftea/order-saga/order-service/domain"
	"github.com/draftea/order-saga/order-service/handlers"
	"github.com/draftea/order-saga/order-service/infrastructure"
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
	OrderRepository domain.OrderRepository

	// Use Cases
	CreateOrder          *application.CreateOrder
	GetOrder             *application.GetOrder
	ProcessPaymentResult *application.ProcessPaymentResult

	// HTTP Handlers
	OrderHandlers *handlers.OrderHandlers

	// Event Handlers
	OrderEventHandlers *handlers.OrderEventHandlers

	// Infrastructure
	Broker sharedinfra.Broker

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

// BuildDependencies wires the order participant. A broker that stays unreachable after the
// configured attempts is returned as an error and must abort startup.
func BuildDependencies(ctx context.Context, config *Config) (*Dependencies, error) {
	logger, err := logging.NewLogger(config.ServiceName, config.Logging.Level)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{Logger: logger}

	// Initialize telemetry first
	telConfig := telemetry.OrderServiceConfig
	if config.Telemetry.Enabled {
		telConfig = telConfig.WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
	}
	tel, telemetryShutdown, err := telemetry.InitTelemetry(ctx, telConfig)
	if err != nil {
		// continue without exporters rather than failing
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		tel = telemetry.NewTelemetry(telConfig)
	} else {
		deps.TelemetryShutdown = telemetryShutdown
	}
	deps.Telemetry = tel

	brokerConfig := config.BrokerConfig(events.GroupOrder)

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
		deps.OrderRepository = infrastructure.NewPostgresOrderRepository(db)
		brokerConfig.Archive = sharedinfra.NewPostgresDeadLetterStore(db)
	} else {
		logger.Info("database.url not set, orders are kept in memory")
		deps.OrderRepository = infrastructure.NewMemoryOrderRepository()
	}

	broker, err := sharedinfra.NewBroker(ctx, brokerConfig, logger)
	if err != nil {
		deps.Close()
		return nil, errors.Wrap(err, "failed to connect to broker")
	}
	deps.Broker = broker

	// Initialize use cases
	publishRetry := gateway.NewSimulatedGateway("broker", config.GatewayConfig(), logger)
	deps.CreateOrder = application.NewCreateOrder(deps.OrderRepository, broker, publishRetry, logger)
	deps.GetOrder = application.NewGetOrder(deps.OrderRepository)
	deps.ProcessPaymentResult = application.NewProcessPaymentResult(deps.OrderRepository, logger)

	// Initialize handlers
	deps.OrderHandlers = handlers.NewOrderHandlers(deps.CreateOrder, deps.GetOrder, logger)
	deps.OrderEventHandlers = handlers.NewOrderEventHandlers(deps.ProcessPaymentResult, logger)

	return deps, nil
}

// Subscribe starts consuming the terminal saga outcomes
func (d *Dependencies) Subscribe(ctx context.Context) error {
	return d.OrderEventHandlers.Router().SubscribeAll(ctx, d.Broker, func(h events.EventHandler) events.EventHandler {
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
