package database

import (
	"context"
	"embed"
	"fmt"

	"login-server/pkg/migration"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ApplyMigrations brings the schema up to date from the embedded SQL
// files.
func ApplyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: "migrations",
		MigrationsFS:   migrationsFS,
	}, pool)

	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RunStartupMaintenance vacuums the hot tables once at boot, the same
// housekeeping the old server ran with OPTIMIZE TABLE. Failures are
// logged and ignored; maintenance must never block startup.
func RunStartupMaintenance(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) {
	log := logger.Named("DBMaintenance")
	for _, table := range []string{"accounts", "auction_house"} {
		if _, err := pool.Exec(ctx, "VACUUM ANALYZE "+table); err != nil {
			log.Warn("Startup maintenance failed", zap.String("table", table), zap.Error(err))
			continue
		}
		log.Info("Startup maintenance finished", zap.String("table", table))
	}
}
