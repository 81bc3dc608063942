package regkeys

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresRepository(db), mock
}

func TestGetByCode(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	expire := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)FROM reg_keys\s+WHERE code = \$1`).
		WithArgs("INVITE").
		WillReturnRows(sqlmock.NewRows([]string{"reg_key_id", "code", "role_id", "count", "expire_date", "created_at"}).
			AddRow(int64(1), "INVITE", int64(2), 3, expire, time.Now()))

	k, err := repo.GetByCode(context.Background(), "INVITE")
	require.NoError(t, err)
	assert.Equal(t, int64(2), k.RoleID)
	assert.Equal(t, 3, k.Count)
	assert.Equal(t, expire, k.ExpireDate)
}

func TestGetByCode_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM reg_keys`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByCode(context.Background(), "NOPE")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDecrement(t *testing.T) {
	const q = `(?s)UPDATE reg_keys SET count = count - 1\s+WHERE code = \$1 AND count > 0`

	t.Run("consumed", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("INVITE").WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.Decrement(context.Background(), "INVITE")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("exhausted", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("INVITE").WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.Decrement(context.Background(), "INVITE")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("INVITE").WillReturnError(errors.New("down"))

		_, err := repo.Decrement(context.Background(), "INVITE")
		assert.ErrorContains(t, err, "db error")
	})
}
