package infrastructure

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/draftea/order-saga/payment-service/domain"
	sharedinfra "github.com/draftea/order-saga/shared/infrastructure"
	"github.com/draftea/order-saga/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates the charges table
func Migrate(db *sqlx.DB, logger *zap.Logger) error {
	return sharedinfra.Migrate(db, migrations, "migrations", "payment_schema_migrations", logger)
}

// PostgresChargeRepository implements ChargeRepository using PostgreSQL
type PostgresChargeRepository struct {
	db *sqlx.DB
}

var _ domain.ChargeRepository = (*PostgresChargeRepository)(nil)

// NewPostgresChargeRepository creates a new PostgresChargeRepository
func NewPostgresChargeRepository(db *sqlx.DB) *PostgresChargeRepository {
	return &PostgresChargeRepository{db: db}
}

type postgresCharge struct {
	OrderID   string    `db:"order_id"`
	Amount    float64   `db:"amount"`
	Outcome   string    `db:"outcome"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FindByOrderID finds the charge recorded for an order
func (r *PostgresChargeRepository) FindByOrderID(ctx context.Context, orderID models.ID) (*domain.Charge, error) {
	query := `
		SELECT order_id, amount, outcome, reason, created_at, updated_at
		FROM charges
		WHERE order_id = $1`

	var row postgresCharge
	if err := r.db.GetContext(ctx, &row, query, orderID.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrChargeNotFound, "order %s", orderID)
		}
		return nil, errors.Wrap(err, "failed to find charge")
	}

	return &domain.Charge{
		OrderID: models.ID(row.OrderID),
		Amount:  row.Amount,
		Outcome: domain.ChargeOutcome(row.Outcome),
		Reason:  row.Reason,
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
	}, nil
}

// Save inserts the charge if absent and returns whichever charge is recorded
func (r *PostgresChargeRepository) Save(ctx context.Context, charge *domain.Charge) (*domain.Charge, error) {
	query := `
		INSERT INTO charges (order_id, amount, outcome, reason, created_at, updated_at)
		VALUES (:order_id, :amount, :outcome, :reason, :created_at, :updated_at)
		ON CONFLICT (order_id) DO NOTHING`

	_, err := r.db.NamedExecContext(ctx, query, &postgresCharge{
		OrderID:   charge.OrderID.String(),
		Amount:    charge.Amount,
		Outcome:   string(charge.Outcome),
		Reason:    charge.Reason,
		CreatedAt: charge.Timestamps.CreatedAt,
		UpdatedAt: charge.Timestamps.UpdatedAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert charge")
	}

	return r.FindByOrderID(ctx, charge.OrderID)
}
