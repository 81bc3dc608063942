// Package api holds what both transports share: the service contracts they
// call and the JSON shapes of requests and responses.
package api

import (
	"context"

	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"github.com/dmitrijs2005/mailkeeper/internal/server/services"
)

type Registrar interface {
	Register(ctx context.Context, req services.RegisterRequest) (*services.RegisterResult, error)
}

type Users interface {
	Login(ctx context.Context, email, password string, meta models.LoginMeta) (*services.LoginResult, error)
	Logout(ctx context.Context, userID int64, tokenID string) error
	Authenticate(ctx context.Context, token string) (*services.Principal, error)
	RequireAdmin(p *services.Principal) error
	OAuthConfig() services.OAuthClientConfig
	OAuthAuthorizeURL(redirectURI string) (string, error)
	OAuthCallback(ctx context.Context, code, redirectURI string, meta models.LoginMeta) (*services.OAuthLoginResult, error)
	SetStatus(ctx context.Context, userID int64, status models.UserStatus) error
	Delete(ctx context.Context, userID int64) error
	CanRegisterExternal(ctx context.Context, trustLevel int) (bool, error)
	ExternalStats(ctx context.Context) (*models.ExternalStats, error)
	ExternalPolicy(ctx context.Context) (*models.ExternalPolicy, error)
	UpdateExternalPolicy(ctx context.Context, p models.ExternalPolicy) error
	RefreshSettings(ctx context.Context) error
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Code is the registration key.
	Code string `json:"code,omitempty"`
	// Token is the solved CAPTCHA.
	Token string `json:"token,omitempty"`
}

func (r RegisterRequest) ToService(meta models.LoginMeta) services.RegisterRequest {
	return services.RegisterRequest{
		Email:        r.Email,
		Password:     r.Password,
		RegKeyCode:   r.Code,
		CaptchaToken: r.Token,
		ClientIP:     meta.IP,
		UserAgent:    meta.UserAgent,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthorizeURLRequest struct {
	RedirectURI string `json:"redirectUri"`
}

type AuthorizeURLResponse struct {
	URL string `json:"url"`
}

type OAuthCallbackRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

type RegisterPermissionRequest struct {
	TrustLevel *int `json:"trustLevel"`
}

type RegisterPermissionResponse struct {
	CanRegister bool `json:"canRegister"`
}

type SetStatusRequest struct {
	UserID int64              `json:"userId"`
	Status *models.UserStatus `json:"status"`
}

type UserIDRequest struct {
	UserID int64 `json:"userId"`
}

// Empty is returned by operations without a payload.
type Empty struct{}
