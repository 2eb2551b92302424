package infrastructure

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/draftea/order-saga/order-service/domain"
	sharedinfra "github.com/draftea/order-saga/shared/infrastructure"
	"github.com/draftea/order-saga/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates the orders schema
func Migrate(db *sqlx.DB, logger *zap.Logger) error {
	return sharedinfra.Migrate(db, migrations, "migrations", "order_schema_migrations", logger)
}

// PostgresOrderRepository implements OrderRepository using PostgreSQL
type PostgresOrderRepository struct {
	db *sqlx.DB
}

var _ domain.OrderRepository = (*PostgresOrderRepository)(nil)

// NewPostgresOrderRepository creates a new PostgresOrderRepository
func NewPostgresOrderRepository(db *sqlx.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

// postgresOrder represents order in database
type postgresOrder struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Item      string    `db:"item"`
	Price     float64   `db:"price"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	Version   int       `db:"version"`
}

// Save inserts a new order or updates an existing one guarded by its version
func (r *PostgresOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	if order.IsNew() {
		return r.insertOrder(ctx, order)
	}
	return r.updateOrder(ctx, order)
}

func (r *PostgresOrderRepository) insertOrder(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (
			id, user_id, item, price, status,
			created_at, updated_at, version
		) VALUES (
			:id, :user_id, :item, :price, :status,
			:created_at, :updated_at, :version
		)`

	_, err := r.db.NamedExecContext(ctx, query, r.toPostgres(order))
	if err != nil {
		return errors.Wrap(err, "failed to insert order")
	}
	return nil
}

func (r *PostgresOrderRepository) updateOrder(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET status = :status, updated_at = :updated_at, version = :version
		WHERE id = :id AND version = :old_version`

	res, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          order.ID.String(),
		"status":      string(order.Status),
		"updated_at":  order.Timestamps.UpdatedAt,
		"version":     order.Version.Value,
		"old_version": order.Version.Value - 1,
	})
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if rows == 0 {
		return errors.Wrapf(domain.ErrConcurrentUpdate, "order %s", order.ID)
	}
	return nil
}

// FindByID finds an order by ID
func (r *PostgresOrderRepository) FindByID(ctx context.Context, id models.ID) (*domain.Order, error) {
	query := `
		SELECT id, user_id, item, price, status, created_at, updated_at, version
		FROM orders
		WHERE id = $1`

	var row postgresOrder
	if err := r.db.GetContext(ctx, &row, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrOrderNotFound, "order %s", id)
		}
		return nil, errors.Wrap(err, "failed to find order")
	}

	return r.toDomain(&row), nil
}

func (r *PostgresOrderRepository) toPostgres(order *domain.Order) *postgresOrder {
	return &postgresOrder{
		ID:        order.ID.String(),
		UserID:    order.UserID,
		Item:      order.Item,
		Price:     order.Price,
		Status:    string(order.Status),
		CreatedAt: order.Timestamps.CreatedAt,
		UpdatedAt: order.Timestamps.UpdatedAt,
		Version:   order.Version.Value,
	}
}

func (r *PostgresOrderRepository) toDomain(row *postgresOrder) *domain.Order {
	return &domain.Order{
		ID:     models.ID(row.ID),
		UserID: row.UserID,
		Item:   row.Item,
		Price:  row.Price,
		Status: models.OrderStatus(row.Status),
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
		Version: models.Version{Value: row.Version},
	}
}
