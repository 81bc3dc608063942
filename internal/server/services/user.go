// Package services contains the business logic of the identity core:
// registration, external identity resolution, login and administration.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/dbx"
	"github.com/dmitrijs2005/mailkeeper/internal/logging"
	"github.com/dmitrijs2005/mailkeeper/internal/server/auth"
	"github.com/dmitrijs2005/mailkeeper/internal/server/config"
	"github.com/dmitrijs2005/mailkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"github.com/dmitrijs2005/mailkeeper/internal/server/policy"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/mailkeeper/internal/server/sessions"
	"github.com/dmitrijs2005/mailkeeper/internal/timex"
)

// ExternalProvider is the OAuth identity provider used for external login.
type ExternalProvider interface {
	Name() string
	AuthorizeURL(redirectURI string) (string, error)
	ClientConfig() (clientID, authURL string)
	Exchange(ctx context.Context, code, redirectURI string) (*models.ExternalProfile, error)
}

// PolicyRefresher is a policy.Source that can be reloaded after an
// administrative update.
type PolicyRefresher interface {
	policy.Source
	Refresh(ctx context.Context) (policy.Config, error)
}

// LoginResult is handed to the client after a successful login.
type LoginResult struct {
	Token   string          `json:"token"`
	User    models.UserView `json:"user"`
	TokenID string          `json:"-"`
}

// OAuthLoginResult extends LoginResult with the external profile and how it
// was linked.
type OAuthLoginResult struct {
	LoginResult
	Profile models.ExternalProfile `json:"profile"`
	Outcome LinkOutcome            `json:"-"`
}

// OAuthClientConfig tells the front end whether external login is offered
// and where to send the user.
type OAuthClientConfig struct {
	ClientID string `json:"clientId,omitempty"`
	AuthURL  string `json:"authUrl,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// Principal is the caller identity established by Authenticate.
type Principal struct {
	UserID  int64
	TokenID string
	User    models.UserView
}

// UserService provides login, logout, request authentication and user
// administration.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sessions    *sessions.Manager
	identity    *IdentityService
	provider    ExternalProvider
	policy      PolicyRefresher
	jwtSecret   []byte
	sessionTTL  time.Duration
	adminEmail  string
	now         timex.Clock
	signToken   func(userID int64, tokenID string, secret []byte, ttl time.Duration) (string, error)
	log         logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, sm *sessions.Manager, identity *IdentityService,
	provider ExternalProvider, pol PolicyRefresher, cfg *config.Config, log logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		sessions:    sm,
		identity:    identity,
		provider:    provider,
		policy:      pol,
		jwtSecret:   []byte(cfg.SecretKey),
		sessionTTL:  cfg.SessionTTL,
		adminEmail:  strings.TrimSpace(cfg.AdminEmail),
		now:         time.Now,
		signToken:   auth.GenerateToken,
		log:         log.With("module", "users"),
	}
}

// Login checks the password of a local user and starts a session.
func (s *UserService) Login(ctx context.Context, email, password string, meta models.LoginMeta) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, common.ErrEmailAndPasswordRequired
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, email, true)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		s.log.Error(ctx, "load user failed", "error", err)
		return nil, common.ErrorInternal
	}

	if user.IsDeleted {
		return nil, common.ErrUserDeleted
	}
	if user.Status == models.UserStatusBanned {
		return nil, common.ErrUserBanned
	}
	if !credentials.VerifyPassword(password, user.PasswordSalt, user.PasswordHash) {
		return nil, common.ErrIncorrectPassword
	}

	res, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := repo.UpdateLoginInfo(ctx, user.ID, meta, s.now().UTC(), false); err != nil {
		s.log.Error(ctx, "update login info failed", "user_id", user.ID, "error", err)
		s.dropSession(ctx, user.ID, res.TokenID)
		return nil, common.ErrorInternal
	}
	return res, nil
}

// Logout revokes one session. Unknown sessions are ignored.
func (s *UserService) Logout(ctx context.Context, userID int64, tokenID string) error {
	if err := s.sessions.Revoke(ctx, userID, tokenID); err != nil {
		s.log.Error(ctx, "revoke session failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}
	return nil
}

// Authenticate verifies the carrier JWT and checks that the session it names
// is still live.
func (s *UserService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}

	view, err := s.sessions.Lookup(ctx, claims.UserID, claims.TokenID)
	if err != nil {
		s.log.Error(ctx, "load session failed", "user_id", claims.UserID, "error", err)
		return nil, common.ErrorInternal
	}
	if view == nil {
		return nil, common.ErrSessionRevoked
	}

	return &Principal{UserID: claims.UserID, TokenID: claims.TokenID, User: *view}, nil
}

// RequireAdmin fails unless p is the configured administrator.
func (s *UserService) RequireAdmin(p *Principal) error {
	if p == nil || s.adminEmail == "" || !strings.EqualFold(p.User.Email, s.adminEmail) {
		return common.ErrPermissionDenied
	}
	return nil
}

func (s *UserService) OAuthAuthorizeURL(redirectURI string) (string, error) {
	if redirectURI == "" {
		return "", common.ErrRedirectURIRequired
	}
	return s.provider.AuthorizeURL(redirectURI)
}

// OAuthConfig describes the configured provider. Without a client id the
// provider is reported disabled.
func (s *UserService) OAuthConfig() OAuthClientConfig {
	clientID, authURL := s.provider.ClientConfig()
	if clientID == "" {
		return OAuthClientConfig{}
	}
	return OAuthClientConfig{ClientID: clientID, AuthURL: authURL, Enabled: true}
}

// CanRegisterExternal reports whether external sign-up is open for level.
func (s *UserService) CanRegisterExternal(ctx context.Context, level int) (bool, error) {
	return s.identity.CanRegister(ctx, level)
}

// OAuthCallback completes the provider flow and starts a session for the
// resolved user.
func (s *UserService) OAuthCallback(ctx context.Context, code, redirectURI string, meta models.LoginMeta) (*OAuthLoginResult, error) {
	if code == "" || redirectURI == "" {
		return nil, common.ErrOAuthCallbackParamsMissing
	}

	prof, err := s.provider.Exchange(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}

	user, outcome, err := s.identity.ResolveExternal(ctx, *prof, meta)
	if err != nil {
		return nil, err
	}

	res, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	return &OAuthLoginResult{LoginResult: *res, Profile: *prof, Outcome: outcome}, nil
}

// SetStatus bans or unbans a user. A ban drops every session of the user.
func (s *UserService) SetStatus(ctx context.Context, userID int64, status models.UserStatus) error {
	if !status.Valid() {
		return common.ErrInvalidStatus
	}

	if err := s.repomanager.Users(s.db).SetStatus(ctx, userID, status); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUserNotFound
		}
		s.log.Error(ctx, "set status failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	if status == models.UserStatusBanned {
		return s.revokeAll(ctx, userID)
	}
	return nil
}

// Delete soft-deletes a user with its accounts and drops its sessions.
func (s *UserService) Delete(ctx context.Context, userID int64) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).SoftDelete(ctx, userID); err != nil {
			return err
		}
		return s.repomanager.Accounts(tx).SoftDeleteByUser(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUserNotFound
		}
		s.log.Error(ctx, "delete user failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	return s.revokeAll(ctx, userID)
}

func (s *UserService) ExternalStats(ctx context.Context) (*models.ExternalStats, error) {
	stats, err := s.repomanager.Users(s.db).ExternalStats(ctx, s.provider.Name())
	if err != nil {
		s.log.Error(ctx, "load external stats failed", "error", err)
		return nil, common.ErrorInternal
	}
	return stats, nil
}

// ExternalPolicy returns the external sign-up policy currently in force.
func (s *UserService) ExternalPolicy(ctx context.Context) (*models.ExternalPolicy, error) {
	cfg, err := s.policy.Current(ctx)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &models.ExternalPolicy{TrustLevelEnabled: cfg.TrustLevelEnabled, MaxUsers: cfg.ExternalMaxUsers}, nil
}

// UpdateExternalPolicy persists p and reloads the cached policy.
func (s *UserService) UpdateExternalPolicy(ctx context.Context, p models.ExternalPolicy) error {
	if p.MaxUsers < 0 {
		return common.ErrInvalidMaxUsers
	}

	if err := s.repomanager.Settings(s.db).UpdateExternalPolicy(ctx, p); err != nil {
		s.log.Error(ctx, "update external policy failed", "error", err)
		return common.ErrorInternal
	}

	return s.RefreshSettings(ctx)
}

// RefreshSettings reloads the cached policy from the settings row.
func (s *UserService) RefreshSettings(ctx context.Context) error {
	if _, err := s.policy.Refresh(ctx); err != nil {
		return common.ErrorInternal
	}
	return nil
}

func (s *UserService) startSession(ctx context.Context, user *models.User) (*LoginResult, error) {
	view := user.View()

	tokenID, err := s.sessions.Issue(ctx, view)
	if err != nil {
		s.log.Error(ctx, "issue session failed", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}

	jwt, err := s.signToken(user.ID, tokenID, s.jwtSecret, s.sessionTTL)
	if err != nil {
		s.log.Error(ctx, "sign token failed", "user_id", user.ID, "error", err)
		s.dropSession(ctx, user.ID, tokenID)
		return nil, common.ErrorInternal
	}

	return &LoginResult{Token: jwt, User: view, TokenID: tokenID}, nil
}

// dropSession revokes a session issued for a login that did not complete.
func (s *UserService) dropSession(ctx context.Context, userID int64, tokenID string) {
	if err := s.sessions.Revoke(ctx, userID, tokenID); err != nil {
		s.log.Error(ctx, "revoke unfinished session failed", "user_id", userID, "error", err)
	}
}

func (s *UserService) revokeAll(ctx context.Context, userID int64) error {
	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return common.ErrorInternal
	}
	return nil
}
