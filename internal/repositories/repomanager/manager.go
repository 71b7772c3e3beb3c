package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/calsync/internal/dbx"
	"github.com/dmitrijs2005/calsync/internal/repositories/conflicts"
	"github.com/dmitrijs2005/calsync/internal/repositories/credentials"
	"github.com/dmitrijs2005/calsync/internal/repositories/integrations"
)

// RepositoryManager vends repositories bound to a connection or a
// transaction, so callers can compose several writes in one dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Integrations(db dbx.DBTX) integrations.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	Conflicts(db dbx.DBTX) conflicts.Repository
}
