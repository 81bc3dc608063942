package accounts

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
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

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)INSERT INTO accounts \(user_id, email, name\)\s+VALUES \(\$1, \$2, \$3\)\s+RETURNING account_id`).
		WithArgs(int64(1), "a@example.com", "a").
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow(int64(10)))

	got, err := repo.Create(context.Background(), &models.Account{UserID: 1, Email: "a@example.com", Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.ID)
}

func TestCreate_Conflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`INSERT INTO accounts`).WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.Account{UserID: 1, Email: "a@example.com"})
	assert.ErrorIs(t, err, common.ErrorConflict)
}

func TestGetByEmail(t *testing.T) {
	cols := []string{"account_id", "user_id", "email", "name", "is_deleted"}

	t.Run("include deleted", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`(?s)WHERE lower\(email\) = lower\(\$1\)\s+ORDER BY is_deleted`).
			WithArgs("a@example.com").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), int64(2), "a@example.com", "a", true))

		a, err := repo.GetByEmail(context.Background(), "a@example.com", true)
		require.NoError(t, err)
		assert.True(t, a.IsDeleted)
		assert.Equal(t, int64(2), a.UserID)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`AND NOT is_deleted`).WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByEmail(context.Background(), "x@example.com", false)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`FROM accounts`).WillReturnError(errors.New("boom"))

		_, err := repo.GetByEmail(context.Background(), "x@example.com", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db error")
	})
}

func TestUpdateEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`(?s)UPDATE accounts SET email = \$3\s+WHERE user_id = \$1 AND lower\(email\) = lower\(\$2\)`).
		WithArgs(int64(4), "old@example.com", "new@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateEmail(context.Background(), 4, "old@example.com", "new@example.com"))
}

func TestRestoreAndDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE accounts SET is_deleted = FALSE`).
		WithArgs(int64(4), "a@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE accounts SET is_deleted = TRUE WHERE user_id = \$1`).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Restore(context.Background(), 4, "a@example.com"))
	require.NoError(t, repo.SoftDeleteByUser(context.Background(), 4))
}
