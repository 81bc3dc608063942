// Package policy materializes the administrative settings and the static
// domain configuration into an explicit Config value.
package policy

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/dmitrijs2005/mailkeeper/internal/logging"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

// Config is an immutable snapshot of the registration and external sign-up
// policy.
type Config struct {
	Register          models.RegisterMode
	RegKey            models.RegKeyMode
	RegisterVerify    models.VerifyMode
	RegVerifyCount    int
	AddVerifyCount    int
	TrustLevelEnabled [models.TrustLevels]bool
	ExternalMaxUsers  int
	// Domains is the lower-cased mail domain allow-list; Domains[0] is primary.
	Domains []string
}

func (c Config) DomainAllowed(domain string) bool {
	return slices.Contains(c.Domains, strings.ToLower(domain))
}

func (c Config) PrimaryDomain() string {
	if len(c.Domains) == 0 {
		return ""
	}
	return c.Domains[0]
}

// TrustLevelAllowed reports whether external sign-up is open for level.
// Levels outside 0..4 are never allowed.
func (c Config) TrustLevelAllowed(level int) bool {
	return level >= 0 && level < models.TrustLevels && c.TrustLevelEnabled[level]
}

// ExternalCapReached reports whether total external users fill the cap.
// A cap of zero means unlimited.
func (c Config) ExternalCapReached(total int) bool {
	return c.ExternalMaxUsers > 0 && total >= c.ExternalMaxUsers
}

// Source hands out the current policy.
type Source interface {
	Current(ctx context.Context) (Config, error)
}

// SettingsLoader reads the settings row.
type SettingsLoader interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// Provider caches the policy built from the settings row until Refresh is
// called after an administrative update.
type Provider struct {
	loader  SettingsLoader
	domains []string
	log     logging.Logger
	cur     atomic.Pointer[Config]
}

func NewProvider(loader SettingsLoader, domains []string, log logging.Logger) *Provider {
	return &Provider{loader: loader, domains: slices.Clone(domains), log: log.With("module", "policy")}
}

func (p *Provider) Current(ctx context.Context) (Config, error) {
	if c := p.cur.Load(); c != nil {
		return *c, nil
	}
	return p.Refresh(ctx)
}

// Refresh reloads the settings row and replaces the cached policy.
func (p *Provider) Refresh(ctx context.Context) (Config, error) {
	s, err := p.loader.Get(ctx)
	if err != nil {
		p.log.Error(ctx, "load settings failed", "error", err)
		return Config{}, fmt.Errorf("load settings: %w", err)
	}

	c := FromSettings(s, p.domains)
	p.cur.Store(&c)
	p.log.Info(ctx, "policy refreshed", "register", c.Register, "reg_key", c.RegKey, "verify", c.RegisterVerify)
	return c, nil
}

func FromSettings(s *models.Settings, domains []string) Config {
	return Config{
		Register:          s.Register,
		RegKey:            s.RegKey,
		RegisterVerify:    s.RegisterVerify,
		RegVerifyCount:    s.RegVerifyCount,
		AddVerifyCount:    s.AddVerifyCount,
		TrustLevelEnabled: s.TrustLevelEnabled,
		ExternalMaxUsers:  s.ExternalMaxUsers,
		Domains:           slices.Clone(domains),
	}
}

// Static is a Source that always returns the same Config.
type Static Config

func (s Static) Current(context.Context) (Config, error) { return Config(s), nil }
