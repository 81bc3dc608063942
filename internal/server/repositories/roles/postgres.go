package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/dbx"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

const roleColumns = `role_id, name, available_domains, is_default, send_type, send_count`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	return r.getOne(ctx, `SELECT `+roleColumns+` FROM roles WHERE role_id = $1`, id)
}

func (r *PostgresRepository) GetDefault(ctx context.Context) (*models.Role, error) {
	return r.getOne(ctx, `SELECT `+roleColumns+` FROM roles WHERE is_default LIMIT 1`)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Role, error) {
	role := &models.Role{}
	var domains string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&role.ID, &role.Name, &domains, &role.IsDefault, &role.SendType, &role.SendCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	role.AvailableDomains = splitDomains(domains)

	return role, nil
}

// splitDomains parses the comma separated available_domains column.
func splitDomains(s string) []string {
	var out []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}
