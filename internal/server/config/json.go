package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/mailkeeper/internal/flagx"
	"github.com/dmitrijs2005/mailkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "720h" and integer nanoseconds are accepted.
// Fields left out of the file keep their current values.
type JsonConfig struct {
	EndpointAddrGRPC   string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP   string         `json:"endpoint_addr_http"`
	DatabaseDSN        string         `json:"database_dsn"`
	LogLevel           string         `json:"log_level"`
	RedisAddr          string         `json:"redis_addr"`
	RedisPassword      string         `json:"redis_password"`
	RedisDB            *int           `json:"redis_db"`
	SecretKey          string         `json:"secret_key"`
	SessionTTL         timex.Duration `json:"session_ttl"`
	Domains            []string       `json:"domains"`
	BusinessTimeZone   string         `json:"business_time_zone"`
	AdminEmail         string         `json:"admin_email"`
	CORSOrigins        []string       `json:"cors_origins"`
	TrustedProxies     []string       `json:"trusted_proxies"`
	OAuthProvider      string         `json:"oauth_provider"`
	OAuthClientID      string         `json:"oauth_client_id"`
	OAuthClientSecret  string         `json:"oauth_client_secret"`
	OAuthAuthURL       string         `json:"oauth_auth_url"`
	OAuthTokenURL      string         `json:"oauth_token_url"`
	OAuthUserInfoURL   string         `json:"oauth_userinfo_url"`
	OAuthEmailPrefix   string         `json:"oauth_email_prefix"`
	OAuthAvatarBase    string         `json:"oauth_avatar_base"`
	TurnstileSecret    string         `json:"turnstile_secret"`
	TurnstileVerifyURL string         `json:"turnstile_verify_url"`
}

// parseJson loads the file named by -c/-config into config. Without the flag
// nothing happens. An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	setString(&config.SecretKey, c.SecretKey)
	if c.SessionTTL.Duration > 0 {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if len(c.Domains) > 0 {
		config.Domains = c.Domains
	}
	setString(&config.BusinessTimeZone, c.BusinessTimeZone)
	setString(&config.AdminEmail, c.AdminEmail)
	if len(c.CORSOrigins) > 0 {
		config.CORSOrigins = c.CORSOrigins
	}
	if len(c.TrustedProxies) > 0 {
		config.TrustedProxies = c.TrustedProxies
	}
	setString(&config.OAuthProvider, c.OAuthProvider)
	setString(&config.OAuthClientID, c.OAuthClientID)
	setString(&config.OAuthClientSecret, c.OAuthClientSecret)
	setString(&config.OAuthAuthURL, c.OAuthAuthURL)
	setString(&config.OAuthTokenURL, c.OAuthTokenURL)
	setString(&config.OAuthUserInfoURL, c.OAuthUserInfoURL)
	setString(&config.OAuthEmailPrefix, c.OAuthEmailPrefix)
	setString(&config.OAuthAvatarBase, c.OAuthAvatarBase)
	setString(&config.TurnstileSecret, c.TurnstileSecret)
	setString(&config.TurnstileVerifyURL, c.TurnstileVerifyURL)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
