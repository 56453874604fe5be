package data

import (
	"context"
	"database/sql"

	"github.com/lci/lci-lookup/internal/migrate"
)

// RunMigrations creates the record list tables by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}
