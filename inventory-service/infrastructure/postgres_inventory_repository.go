package infrastructure

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/draftea/order-saga/inventory-service/domain"
	sharedinfra "github.com/draftea/order-saga/shared/infrastructure"
	"github.com/draftea/order-saga/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates the stock and reservation tables
func Migrate(db *sqlx.DB, logger *zap.Logger) error {
	return sharedinfra.Migrate(db, migrations, "migrations", "inventory_schema_migrations", logger)
}

// PostgresInventoryRepository implements InventoryRepository using PostgreSQL. Each call runs
// in one transaction holding the SKU row lock, which serializes effects on the same SKU.
type PostgresInventoryRepository struct {
	db           *sqlx.DB
	initialStock int
}

var _ domain.InventoryRepository = (*PostgresInventoryRepository)(nil)

// NewPostgresInventoryRepository creates a new PostgresInventoryRepository
func NewPostgresInventoryRepository(db *sqlx.DB, initialStock int) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{db: db, initialStock: initialStock}
}

type postgresStockItem struct {
	SKU       string    `db:"sku"`
	Available int       `db:"available"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type postgresReservation struct {
	OrderID   string    `db:"order_id"`
	SKU       string    `db:"sku"`
	Quantity  int       `db:"quantity"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Reserve takes stock for the order unless a reservation is already recorded
func (r *PostgresInventoryRepository) Reserve(ctx context.Context, orderID models.ID, sku string, quantity int) (domain.StockEffect, error) {
	return r.apply(ctx, orderID, sku, func(item *domain.StockItem, existing *domain.Reservation) (*domain.Reservation, bool, error) {
		return item.Reserve(existing, orderID, quantity)
	})
}

// Release returns the order's stock, recording a tombstone if nothing was reserved
func (r *PostgresInventoryRepository) Release(ctx context.Context, orderID models.ID, sku string, quantity int) (domain.StockEffect, error) {
	return r.apply(ctx, orderID, sku, func(item *domain.StockItem, existing *domain.Reservation) (*domain.Reservation, bool, error) {
		return item.Release(existing, orderID, quantity)
	})
}

func (r *PostgresInventoryRepository) apply(
	ctx context.Context,
	orderID models.ID,
	sku string,
	fn func(item *domain.StockItem, existing *domain.Reservation) (*domain.Reservation, bool, error),
) (domain.StockEffect, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.StockEffect{}, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	item, err := r.lockStock(ctx, tx, sku)
	if err != nil {
		return domain.StockEffect{}, err
	}

	existing, err := r.findReservation(ctx, tx, orderID)
	if err != nil {
		return domain.StockEffect{}, err
	}

	reservation, applied, err := fn(item, existing)
	if err != nil {
		return domain.StockEffect{}, err
	}

	if applied || existing == nil {
		if err := r.saveReservation(ctx, tx, reservation); err != nil {
			return domain.StockEffect{}, err
		}
	}
	if applied {
		if _, err := tx.ExecContext(ctx,
			`UPDATE stock_items SET available = $2, updated_at = $3 WHERE sku = $1`,
			item.SKU, item.Available, item.Timestamps.UpdatedAt,
		); err != nil {
			return domain.StockEffect{}, errors.Wrap(err, "failed to update stock")
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.StockEffect{}, errors.Wrap(err, "failed to commit stock effect")
	}
	return domain.NewStockEffect(existing, applied, item.Available), nil
}

// lockStock creates the SKU with the initial stock if needed and locks its row
func (r *PostgresInventoryRepository) lockStock(ctx context.Context, tx *sqlx.Tx, sku string) (*domain.StockItem, error) {
	seed := domain.NewStockItem(sku, r.initialStock)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_items (sku, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sku) DO NOTHING`,
		seed.SKU, seed.Available, seed.Timestamps.CreatedAt, seed.Timestamps.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "failed to seed stock item")
	}

	var row postgresStockItem
	if err := tx.GetContext(ctx, &row, `
		SELECT sku, available, created_at, updated_at
		FROM stock_items
		WHERE sku = $1
		FOR UPDATE`, sku); err != nil {
		return nil, errors.Wrap(err, "failed to lock stock item")
	}
	return toStockItem(&row), nil
}

func (r *PostgresInventoryRepository) findReservation(ctx context.Context, tx *sqlx.Tx, orderID models.ID) (*domain.Reservation, error) {
	var row postgresReservation
	err := tx.GetContext(ctx, &row, `
		SELECT order_id, sku, quantity, status, created_at, updated_at
		FROM reservations
		WHERE order_id = $1
		FOR UPDATE`, orderID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find reservation")
	}

	return &domain.Reservation{
		OrderID:  models.ID(row.OrderID),
		SKU:      row.SKU,
		Quantity: row.Quantity,
		Status:   domain.ReservationStatus(row.Status),
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
	}, nil
}

func (r *PostgresInventoryRepository) saveReservation(ctx context.Context, tx *sqlx.Tx, reservation *domain.Reservation) error {
	query := `
		INSERT INTO reservations (order_id, sku, quantity, status, created_at, updated_at)
		VALUES (:order_id, :sku, :quantity, :status, :created_at, :updated_at)
		ON CONFLICT (order_id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`

	_, err := tx.NamedExecContext(ctx, query, &postgresReservation{
		OrderID:   reservation.OrderID.String(),
		SKU:       reservation.SKU,
		Quantity:  reservation.Quantity,
		Status:    string(reservation.Status),
		CreatedAt: reservation.Timestamps.CreatedAt,
		UpdatedAt: reservation.Timestamps.UpdatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to save reservation")
	}
	return nil
}

// FindStock returns the stock item for a SKU
func (r *PostgresInventoryRepository) FindStock(ctx context.Context, sku string) (*domain.StockItem, error) {
	var row postgresStockItem
	err := r.db.GetContext(ctx, &row, `
		SELECT sku, available, created_at, updated_at
		FROM stock_items
		WHERE sku = $1`, sku)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrStockNotFound, "sku %q", sku)
		}
		return nil, errors.Wrap(err, "failed to find stock item")
	}
	return toStockItem(&row), nil
}

func toStockItem(row *postgresStockItem) *domain.StockItem {
	return &domain.StockItem{
		SKU:       row.SKU,
		Available: row.Available,
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
	}
}
