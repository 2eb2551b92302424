package infrastructure

import (
	"context"
	"embed"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var sharedMigrations embed.FS

// OpenPostgres connects to the database and verifies the connection
func OpenPostgres(ctx context.Context, url string) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate applies the migrations found under dir in fsys. Every service keeps its own
// migrations table so they can share one database.
func Migrate(db *sqlx.DB, fsys fs.FS, dir, table string, logger *zap.Logger) error {
	source, err := iofs.New(fsys, dir)
	if err != nil {
		return errors.Wrap(err, "failed to open migrations")
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{MigrationsTable: table})
	if err != nil {
		return errors.Wrap(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create migrate instance")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrapf(err, "failed to apply migrations from %s", table)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, "failed to read migration version")
	}
	logger.Info("migrations applied",
		zap.String("table", table),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}

// MigrateDeadLetters creates the dead-letter archive table
func MigrateDeadLetters(db *sqlx.DB, logger *zap.Logger) error {
	return Migrate(db, sharedMigrations, "migrations", "dead_letter_schema_migrations", logger)
}
