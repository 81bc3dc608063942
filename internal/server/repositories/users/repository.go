package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

// OAuthLink is the external identity attached to a user.
type OAuthLink struct {
	Provider   string
	ExternalID string
	Username   string
	TrustLevel int
	AvatarRef  string
}

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// GetByEmail matches case-insensitively. With includeDeleted a live row
	// is preferred over a soft-deleted one.
	GetByEmail(ctx context.Context, email string, includeDeleted bool) (*models.User, error)
	GetByOAuth(ctx context.Context, provider, externalID string) (*models.User, error)
	UpdateEmail(ctx context.Context, id int64, email string) error
	LinkOAuth(ctx context.Context, id int64, link OAuthLink) error
	Reactivate(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, status models.UserStatus) error
	SoftDelete(ctx context.Context, id int64) error
	UpdateLoginInfo(ctx context.Context, id int64, meta models.LoginMeta, at time.Time, recordCreateIP bool) error
	ExternalStats(ctx context.Context, provider string) (*models.ExternalStats, error)
}
