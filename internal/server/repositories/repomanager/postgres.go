// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/mailkeeper/internal/dbx"
	"github.com/dmitrijs2005/mailkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/regkeys"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/roles"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/settings"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/verifyrecords"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RegKeys(db dbx.DBTX) regkeys.Repository {
	return regkeys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Roles(db dbx.DBTX) roles.Repository {
	return roles.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) VerifyRecords(db dbx.DBTX) verifyrecords.Repository {
	return verifyrecords.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Settings(db dbx.DBTX) settings.Repository {
	return settings.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded goose migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
