package regkeys

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

func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*models.RegKey, error) {
	query :=
		`SELECT reg_key_id, code, role_id, count, expire_date, created_at FROM reg_keys
		 WHERE code = $1`

	k := &models.RegKey{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(&k.ID, &k.Code, &k.RoleID, &k.Count, &k.ExpireDate, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return k, nil
}

// Decrement is a single conditional UPDATE, so concurrent redemptions can
// never drive the count below zero.
func (r *PostgresRepository) Decrement(ctx context.Context, code string) (bool, error) {
	query :=
		`UPDATE reg_keys SET count = count - 1
		 WHERE code = $1 AND count > 0`

	res, err := r.db.ExecContext(ctx, query, code)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n == 1, nil
}
