package data

import (
	"context"
	"database/sql"

	"github.com/target/storefront/internal/migrate"
)

// RunMigrations brings the users and user_roles schema up to date.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}
