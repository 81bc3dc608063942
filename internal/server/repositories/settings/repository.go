// Package settings reads and updates the single administrative settings row.
package settings

import (
	"context"

	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context) (*models.Settings, error)
	UpdateExternalPolicy(ctx context.Context, policy models.ExternalPolicy) error
}
