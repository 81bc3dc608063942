package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/mailkeeper/internal/dbx"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/regkeys"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/roles"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/settings"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/verifyrecords"
)

// RepositoryManager vends repositories bound to a DBTX, so a service can use
// the same constructors with a *sql.DB or inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Accounts(db dbx.DBTX) accounts.Repository
	RegKeys(db dbx.DBTX) regkeys.Repository
	Roles(db dbx.DBTX) roles.Repository
	VerifyRecords(db dbx.DBTX) verifyrecords.Repository
	Settings(db dbx.DBTX) settings.Repository
}
