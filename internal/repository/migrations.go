package repository

import (
	"context"
	"embed"

	"go.uber.org/zap"

	"github.com/garyjia/supplier-ingest/pkg/database"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate brings the catalog schema up to date
func Migrate(ctx context.Context, db *database.DB, logger *zap.Logger) (int, error) {
	return database.NewMigrator(db, logger).Run(ctx, migrationFS, "migrations")
}
