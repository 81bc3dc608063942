package verifyrecords

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/mailkeeper/internal/dbx"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Count(ctx context.Context, ip string, kind models.VerifyKind) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count FROM verify_records WHERE ip = $1 AND type = $2`, ip, kind).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Increment(ctx context.Context, ip string, kind models.VerifyKind) (int, error) {
	query :=
		`INSERT INTO verify_records (ip, type, count) VALUES ($1, $2, 1)
		 ON CONFLICT (ip, type) DO UPDATE
		 SET count = verify_records.count + 1, updated_at = now()
		 RETURNING count`

	var n int
	if err := r.db.QueryRowContext(ctx, query, ip, kind).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
