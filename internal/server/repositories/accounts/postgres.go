package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/dbx"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (user_id, email, name)
		 VALUES ($1, $2, $3)
		 RETURNING account_id`

	err := r.db.QueryRowContext(ctx, query, account.UserID, account.Email, account.Name).Scan(&account.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("db error: %w: %w", common.ErrorConflict, err)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string, includeDeleted bool) (*models.Account, error) {
	query :=
		`SELECT account_id, user_id, email, name, is_deleted FROM accounts
		 WHERE lower(email) = lower($1) AND NOT is_deleted`
	if includeDeleted {
		query =
			`SELECT account_id, user_id, email, name, is_deleted FROM accounts
			 WHERE lower(email) = lower($1)
			 ORDER BY is_deleted, account_id DESC LIMIT 1`
	}

	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(&a.ID, &a.UserID, &a.Email, &a.Name, &a.IsDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

// UpdateEmail renames the user's account holding oldEmail. A missing account
// is not an error: users created before accounts existed have none.
func (r *PostgresRepository) UpdateEmail(ctx context.Context, userID int64, oldEmail, newEmail string) error {
	query :=
		`UPDATE accounts SET email = $3
		 WHERE user_id = $1 AND lower(email) = lower($2)`

	if _, err := r.db.ExecContext(ctx, query, userID, oldEmail, newEmail); err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("db error: %w: %w", common.ErrorConflict, err)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Restore(ctx context.Context, userID int64, email string) error {
	query :=
		`UPDATE accounts SET is_deleted = FALSE
		 WHERE user_id = $1 AND lower(email) = lower($2)`

	if _, err := r.db.ExecContext(ctx, query, userID, email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SoftDeleteByUser(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE accounts SET is_deleted = TRUE WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
