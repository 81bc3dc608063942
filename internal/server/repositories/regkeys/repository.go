// Package regkeys stores registration (invite) keys.
package regkeys

import (
	"context"

	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

type Repository interface {
	GetByCode(ctx context.Context, code string) (*models.RegKey, error)
	// Decrement consumes one use of the key. It reports false, without
	// error, when the key is missing or already exhausted.
	Decrement(ctx context.Context, code string) (bool, error)
}
