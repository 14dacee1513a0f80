package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX
// (either the pooled *sql.DB or an open transaction) and exposes the schema
// migration hook.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
