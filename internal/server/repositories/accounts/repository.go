// Package accounts stores mailbox addresses bound to users.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByEmail(ctx context.Context, email string, includeDeleted bool) (*models.Account, error)
	UpdateEmail(ctx context.Context, userID int64, oldEmail, newEmail string) error
	Restore(ctx context.Context, userID int64, email string) error
	SoftDeleteByUser(ctx context.Context, userID int64) error
}
