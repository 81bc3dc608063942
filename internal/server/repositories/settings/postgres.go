package settings

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

func (r *PostgresRepository) Get(ctx context.Context) (*models.Settings, error) {
	query :=
		`SELECT register, reg_key, register_verify, reg_verify_count, add_verify_count,
		 trust_level0_enabled, trust_level1_enabled, trust_level2_enabled,
		 trust_level3_enabled, trust_level4_enabled, external_max_users
		 FROM settings WHERE id = 1`

	s := &models.Settings{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.Register, &s.RegKey, &s.RegisterVerify, &s.RegVerifyCount, &s.AddVerifyCount,
		&s.TrustLevelEnabled[0], &s.TrustLevelEnabled[1], &s.TrustLevelEnabled[2],
		&s.TrustLevelEnabled[3], &s.TrustLevelEnabled[4], &s.ExternalMaxUsers,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return s, nil
}

func (r *PostgresRepository) UpdateExternalPolicy(ctx context.Context, p models.ExternalPolicy) error {
	query :=
		`UPDATE settings SET
		 trust_level0_enabled = $1, trust_level1_enabled = $2, trust_level2_enabled = $3,
		 trust_level3_enabled = $4, trust_level4_enabled = $5, external_max_users = $6
		 WHERE id = 1`

	_, err := r.db.ExecContext(ctx, query,
		p.TrustLevelEnabled[0], p.TrustLevelEnabled[1], p.TrustLevelEnabled[2],
		p.TrustLevelEnabled[3], p.TrustLevelEnabled[4], p.MaxUsers)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
