package config

import (
	"context"

	"github.com/draftea/order-saga/inventory-service/application"
	"github.com/draftea/order-saga/inventory-service/domain"
	"github.com/draftea/order-saga/inventory-service/handlers"
	"github.com/draftea/order-saga/inventory-service/infrastructure"
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
	InventoryRepository domain.InventoryRepository

	// Use Cases
	ReserveStock *application.ReserveStock
	ReleaseStock *application.ReleaseStock
	GetStock     *application.GetStock

	// HTTP Handlers
	InventoryHandlers *handlers.InventoryHandlers

	// Event Handlers
	InventoryEventHandlers *handlers.InventoryEventHandlers

	// Infrastructure
	Broker sharedinfra.Broker

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

func BuildDependencies(ctx context.Context, config *Config) (*Dependencies, error) {
	logger, err := logging.NewLogger(config.ServiceName, config.Logging.Level)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{Logger: logger}

	// Initialize telemetry first
	telConfig := telemetry.InventoryServiceConfig
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

	brokerConfig := config.BrokerConfig(events.GroupInventory)

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
		deps.InventoryRepository = infrastructure.NewPostgresInventoryRepository(db, config.Inventory.InitialStock)
		brokerConfig.Archive = sharedinfra.NewPostgresDeadLetterStore(db)
	} else {
		logger.Info("database.url not set, stock is kept in memory")
		deps.InventoryRepository = infrastructure.NewMemoryInventoryRepository(config.Inventory.InitialStock)
	}

	broker, err := sharedinfra.NewBroker(ctx, brokerConfig, logger)
	if err != nil {
		deps.Close()
		return nil, errors.Wrap(err, "failed to connect to broker")
	}
	deps.Broker = broker

	inventorySystem := gateway.NewSimulatedGateway("inventory", config.GatewayConfig(), logger)

	// Initialize use cases
	deps.ReserveStock = application.NewReserveStock(deps.InventoryRepository, inventorySystem, broker, logger)
	deps.ReleaseStock = application.NewReleaseStock(deps.InventoryRepository, inventorySystem, broker, logger)
	deps.GetStock = application.NewGetStock(deps.InventoryRepository)

	// Initialize handlers
	deps.InventoryHandlers = handlers.NewInventoryHandlers(deps.GetStock, logger)
	deps.InventoryEventHandlers = handlers.NewInventoryEventHandlers(deps.ReserveStock, deps.ReleaseStock, logger)

	return deps, nil
}

// Subscribe starts consuming ORDER_CREATED and this participant's PAYMENT_FAILED copy
func (d *Dependencies) Subscribe(ctx context.Context) error {
	return d.InventoryEventHandlers.Router().SubscribeAll(ctx, d.Broker, func(h events.EventHandler) events.EventHandler {
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
