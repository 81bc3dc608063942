// Package roles reads authorization roles. Roles are managed elsewhere; this
// package only looks them up.
package roles

import (
	"context"

	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*models.Role, error)
	GetDefault(ctx context.Context) (*models.Role, error)
}
