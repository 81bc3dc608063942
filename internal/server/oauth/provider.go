// Package oauth talks to the configured external identity provider: it
// builds authorization URLs, exchanges codes and fetches the user profile.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/logging"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"golang.org/x/oauth2"
)

const avatarSize = "120"

type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	// AvatarBase prefixes relative avatar templates.
	AvatarBase string
}

type Provider struct {
	name        string
	oauth       oauth2.Config
	userInfoURL string
	avatarBase  string
	client      *http.Client
	log         logging.Logger
}

func NewProvider(cfg Config, client *http.Client, log logging.Logger) *Provider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Provider{
		name: cfg.Name,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"user"},
		},
		userInfoURL: cfg.UserInfoURL,
		avatarBase:  strings.TrimRight(cfg.AvatarBase, "/"),
		client:      client,
		log:         log.With("module", "oauth", "provider", cfg.Name),
	}
}

func (p *Provider) Name() string { return p.name }

// ClientConfig returns the public client id and consent endpoint.
func (p *Provider) ClientConfig() (clientID, authURL string) {
	return p.oauth.ClientID, p.oauth.Endpoint.AuthURL
}

// AuthorizeURL returns the provider consent URL redirecting back to redirectURI.
func (p *Provider) AuthorizeURL(redirectURI string) (string, error) {
	if p.oauth.ClientID == "" {
		return "", common.ErrOAuthNotConfigured
	}
	cfg := p.oauth
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(""), nil
}

// Exchange trades an authorization code for the user's external profile.
func (p *Provider) Exchange(ctx context.Context, code, redirectURI string) (*models.ExternalProfile, error) {
	if p.oauth.ClientID == "" || p.oauth.ClientSecret == "" {
		return nil, common.ErrOAuthNotConfigured
	}

	cfg := p.oauth
	cfg.RedirectURL = redirectURI
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			p.log.Error(ctx, "token exchange rejected", "status", re.Response.StatusCode, "body", string(re.Body))
		} else {
			p.log.Error(ctx, "token exchange failed", "error", err)
		}
		return nil, common.ErrOAuthExchangeFailed
	}

	return p.fetchProfile(ctx, cfg.Client(ctx, tok))
}

type userInfo struct {
	ID             any    `json:"id"`
	UserID         any    `json:"user_id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `json:"avatar_url"`
	AvatarTemplate string `json:"avatar_template"`
	TrustLevel     int    `json:"trust_level"`
}

func (p *Provider) fetchProfile(ctx context.Context, client *http.Client) (*models.ExternalProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		p.log.Error(ctx, "userinfo request failed", "error", err)
		return nil, common.ErrOAuthProfileIncomplete
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.log.Error(ctx, "userinfo returned error status", "status", resp.StatusCode, "body", string(body))
		return nil, common.ErrOAuthProfileIncomplete
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		p.log.Error(ctx, "userinfo payload malformed", "error", err)
		return nil, common.ErrOAuthProfileIncomplete
	}

	return p.toProfile(ctx, &info)
}

func (p *Provider) toProfile(ctx context.Context, info *userInfo) (*models.ExternalProfile, error) {
	id := idString(info.ID)
	if id == "" {
		id = idString(info.UserID)
	}
	username := firstNonEmpty(info.Username, info.Name)
	if id == "" || username == "" {
		p.log.Warn(ctx, "userinfo lacks id or username")
		return nil, common.ErrOAuthProfileIncomplete
	}

	// The provider's email is ignored so that every external user gets an
	// address in the configured mail domain.
	return &models.ExternalProfile{
		ExternalID:  id,
		Username:    username,
		DisplayName: firstNonEmpty(info.Name, info.DisplayName, username),
		TrustLevel:  info.TrustLevel,
		AvatarRef:   p.avatar(info),
	}, nil
}

func (p *Provider) avatar(info *userInfo) string {
	if info.AvatarURL != "" {
		return info.AvatarURL
	}
	tpl := info.AvatarTemplate
	if tpl == "" {
		return ""
	}
	if strings.HasPrefix(tpl, "/") {
		tpl = p.avatarBase + tpl
	}
	return strings.ReplaceAll(tpl, "{size}", avatarSize)
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
