package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/dbx"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

const userColumns = `user_id, email, password_hash, password_salt, status, is_deleted, role_id,
		 COALESCE(oauth_provider, ''), COALESCE(oauth_id, ''), COALESCE(oauth_username, ''),
		 trust_level, COALESCE(avatar_ref, ''), COALESCE(reg_key_id, 0), user_number, send_count,
		 create_ip, active_ip, active_time, user_agent, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts user and assigns the next user number in the same statement.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, password_hash, password_salt, status, role_id,
		 oauth_provider, oauth_id, oauth_username, trust_level, avatar_ref, reg_key_id,
		 create_ip, active_ip, active_time, user_agent, user_number)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9,
		 NULLIF($10, ''), NULLIF($11, 0), $12, $12, $13, $14,
		 (SELECT COALESCE(MAX(user_number), 0) + 1 FROM users))
		 RETURNING user_id, user_number, created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.PasswordSalt, user.Status, user.RoleID,
		user.OAuthProvider, user.OAuthID, user.OAuthUsername, user.TrustLevel,
		user.AvatarRef, user.RegKeyID, user.CreateIP, user.ActiveTime, user.UserAgent,
	).Scan(&user.ID, &user.UserNumber, &user.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("db error: %w: %w", common.ErrorConflict, err)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.ActiveIP = user.CreateIP

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string, includeDeleted bool) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND NOT is_deleted`
	if includeDeleted {
		query = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)
		 ORDER BY is_deleted, user_id DESC LIMIT 1`
	}
	return r.getOne(ctx, query, email)
}

func (r *PostgresRepository) GetByOAuth(ctx context.Context, provider, externalID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE oauth_provider = $1 AND oauth_id = $2 AND NOT is_deleted`
	return r.getOne(ctx, query, provider, externalID)
}

func (r *PostgresRepository) UpdateEmail(ctx context.Context, id int64, email string) error {
	return r.exec(ctx, `UPDATE users SET email = $2 WHERE user_id = $1`, id, email)
}

func (r *PostgresRepository) LinkOAuth(ctx context.Context, id int64, link OAuthLink) error {
	query :=
		`UPDATE users SET oauth_provider = $2, oauth_id = $3, oauth_username = $4,
		 trust_level = $5, avatar_ref = NULLIF($6, '')
		 WHERE user_id = $1`
	return r.exec(ctx, query, id, link.Provider, link.ExternalID, link.Username, link.TrustLevel, link.AvatarRef)
}

func (r *PostgresRepository) Reactivate(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE users SET is_deleted = FALSE, status = 0 WHERE user_id = $1`, id)
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id int64, status models.UserStatus) error {
	return r.exec(ctx, `UPDATE users SET status = $2 WHERE user_id = $1 AND NOT is_deleted`, id, status)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE users SET is_deleted = TRUE WHERE user_id = $1 AND NOT is_deleted`, id)
}

func (r *PostgresRepository) UpdateLoginInfo(ctx context.Context, id int64, meta models.LoginMeta, at time.Time, recordCreateIP bool) error {
	query :=
		`UPDATE users SET active_ip = $2, active_time = $3, user_agent = $4,
		 create_ip = CASE WHEN $5 THEN $2 ELSE create_ip END
		 WHERE user_id = $1`
	return r.exec(ctx, query, id, meta.IP, at, meta.UserAgent, recordCreateIP)
}

func (r *PostgresRepository) ExternalStats(ctx context.Context, provider string) (*models.ExternalStats, error) {
	query :=
		`SELECT trust_level, COUNT(*) FROM users
		 WHERE oauth_provider = $1 AND NOT is_deleted
		 GROUP BY trust_level`

	rows, err := r.db.QueryContext(ctx, query, provider)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	stats := &models.ExternalStats{}
	for rows.Next() {
		var level, n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if level >= 0 && level < models.TrustLevels {
			stats.ByTrustLevel[level] = n
		}
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return stats, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u := &models.User{}
	var activeTime sql.NullTime

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.PasswordSalt, &u.Status, &u.IsDeleted, &u.RoleID,
		&u.OAuthProvider, &u.OAuthID, &u.OAuthUsername,
		&u.TrustLevel, &u.AvatarRef, &u.RegKeyID, &u.UserNumber, &u.SendCount,
		&u.CreateIP, &u.ActiveIP, &activeTime, &u.UserAgent, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if activeTime.Valid {
		u.ActiveTime = activeTime.Time
	}

	return u, nil
}

// exec runs a single-row update and reports common.ErrorNotFound when no row matched.
func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("db error: %w: %w", common.ErrorConflict, err)
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
