package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/logging"
	"github.com/dmitrijs2005/mailkeeper/internal/server/clientip"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"github.com/dmitrijs2005/mailkeeper/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	got services.RegisterRequest
	res *services.RegisterResult
	err error
}

func (f *fakeRegistrar) Register(_ context.Context, req services.RegisterRequest) (*services.RegisterResult, error) {
	f.got = req
	return f.res, f.err
}

// fakeUsers accepts "user-token" for user 1 and "admin-token" for user 2,
// the administrator.
type fakeUsers struct {
	loginErr   error
	loginMeta  models.LoginMeta
	loggedOut  string
	status     models.UserStatus
	statusUser int64
	deleted    int64
	policy     models.ExternalPolicy
	refreshed  bool
	clientID   string
	permLevel  int
}

var principals = map[string]*services.Principal{
	"user-token":  {UserID: 1, TokenID: "t1", User: models.UserView{ID: 1, Email: "u@example.com"}},
	"admin-token": {UserID: 2, TokenID: "t2", User: models.UserView{ID: 2, Email: "admin@example.com"}},
}

func (f *fakeUsers) Login(_ context.Context, email, _ string, meta models.LoginMeta) (*services.LoginResult, error) {
	f.loginMeta = meta
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.LoginResult{Token: "jwt", User: models.UserView{ID: 1, Email: email}}, nil
}

func (f *fakeUsers) Logout(_ context.Context, _ int64, tokenID string) error {
	f.loggedOut = tokenID
	return nil
}

func (f *fakeUsers) Authenticate(_ context.Context, token string) (*services.Principal, error) {
	if p, ok := principals[token]; ok {
		return p, nil
	}
	return nil, common.ErrSessionRevoked
}

func (f *fakeUsers) RequireAdmin(p *services.Principal) error {
	if p.UserID != 2 {
		return common.ErrPermissionDenied
	}
	return nil
}

func (f *fakeUsers) OAuthConfig() services.OAuthClientConfig {
	if f.clientID == "" {
		return services.OAuthClientConfig{}
	}
	return services.OAuthClientConfig{ClientID: f.clientID, AuthURL: "https://idp.example/authorize", Enabled: true}
}

func (f *fakeUsers) CanRegisterExternal(_ context.Context, level int) (bool, error) {
	f.permLevel = level
	return level <= 2, nil
}

func (f *fakeUsers) OAuthAuthorizeURL(redirectURI string) (string, error) {
	if redirectURI == "" {
		return "", common.ErrRedirectURIRequired
	}
	return "https://idp.example/authorize", nil
}

func (f *fakeUsers) OAuthCallback(_ context.Context, code, _ string, _ models.LoginMeta) (*services.OAuthLoginResult, error) {
	if code == "" {
		return nil, common.ErrOAuthCallbackParamsMissing
	}
	return nil, common.ErrOAuthExchangeFailed
}

func (f *fakeUsers) SetStatus(_ context.Context, userID int64, status models.UserStatus) error {
	f.statusUser, f.status = userID, status
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, userID int64) error {
	if userID == 404 {
		return common.ErrUserNotFound
	}
	f.deleted = userID
	return nil
}

func (f *fakeUsers) ExternalStats(context.Context) (*models.ExternalStats, error) {
	return &models.ExternalStats{ByTrustLevel: [models.TrustLevels]int{1, 2, 0, 0, 0}, Total: 3}, nil
}

func (f *fakeUsers) ExternalPolicy(context.Context) (*models.ExternalPolicy, error) {
	return &f.policy, nil
}

func (f *fakeUsers) UpdateExternalPolicy(_ context.Context, p models.ExternalPolicy) error {
	if p.MaxUsers < 0 {
		return common.ErrInvalidMaxUsers
	}
	f.policy = p
	return nil
}

func (f *fakeUsers) RefreshSettings(context.Context) error {
	f.refreshed = true
	return nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(reg *fakeRegistrar, us *fakeUsers) http.Handler {
	return NewRouter(NewHandler(reg, us, nil, logging.Nop()), []string{"https://mail.example.com"})
}

func newProxiedRouter(t *testing.T, reg *fakeRegistrar, us *fakeUsers, proxies ...string) http.Handler {
	t.Helper()
	ips, err := clientip.NewResolver(proxies)
	require.NoError(t, err)
	return NewRouter(NewHandler(reg, us, ips, logging.Nop()), []string{"https://mail.example.com"})
}

func do(t *testing.T, h http.Handler, method, path, token, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestRegister(t *testing.T) {
	reg := &fakeRegistrar{res: &services.RegisterResult{VerificationNowRequired: true}}
	h := newTestRouter(reg, &fakeUsers{})

	req := httptest.NewRequest(http.MethodPost, "/api/register",
		strings.NewReader(`{"email":"a@example.com","password":"secret1","code":"K1","token":"cap"}`))
	req.Header.Set("X-Real-IP", "203.0.113.9")
	req.Header.Set("User-Agent", "browser")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","data":{"verificationNowRequired":true}}`, rec.Body.String())
	assert.Equal(t, services.RegisterRequest{
		Email:        "a@example.com",
		Password:     "secret1",
		RegKeyCode:   "K1",
		CaptchaToken: "cap",
		ClientIP:     "192.0.2.1",
		UserAgent:    "browser",
	}, reg.got)
}

func TestClientIP_SpoofedHeadersIgnoredByDefault(t *testing.T) {
	reg := &fakeRegistrar{res: &services.RegisterResult{}}
	h := newTestRouter(reg, &fakeUsers{})

	for _, spoof := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/register",
			strings.NewReader(`{"email":"a@example.com","password":"secret1","code":"K1","token":"cap"}`))
		req.RemoteAddr = "198.51.100.7:40000"
		req.Header.Set("X-Real-IP", spoof)
		req.Header.Set("X-Forwarded-For", spoof)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "198.51.100.7", reg.got.ClientIP, spoof)
	}
}

func TestClientIP_TrustedProxy(t *testing.T) {
	reg := &fakeRegistrar{res: &services.RegisterResult{}}
	h := newProxiedRouter(t, reg, &fakeUsers{}, "10.0.0.0/8")

	send := func(remote, forwarded string) string {
		req := httptest.NewRequest(http.MethodPost, "/api/register",
			strings.NewReader(`{"email":"a@example.com","password":"secret1","code":"K1","token":"cap"}`))
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return reg.got.ClientIP
	}

	assert.Equal(t, "203.0.113.9", send("10.0.0.1:5000", "203.0.113.9"))
	assert.Equal(t, "203.0.113.9", send("10.0.0.1:5000", "1.1.1.1, 203.0.113.9, 10.0.0.2"))
	assert.Equal(t, "198.51.100.7", send("198.51.100.7:5000", "203.0.113.9"))
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		body    string
		status  int
		message string
	}{
		{"validation", common.ErrInvalidEmail, `{}`, http.StatusBadRequest, "notEmail"},
		{"policy", common.ErrRegistrationDisabled, `{}`, http.StatusForbidden, "regDisabled"},
		{"forbidden", common.ErrNoDomainPermissionDefault, `{}`, http.StatusForbidden, "noDomainPermReg"},
		{"conflict", common.ErrAlreadyRegistered, `{}`, http.StatusConflict, "isRegAccount"},
		{"not found", common.ErrRegKeyInvalid, `{}`, http.StatusNotFound, "notExistRegKey"},
		{"external", common.ErrCaptchaUnavailable, `{}`, http.StatusBadGateway, "botVerifyUnavailable"},
		{"configuration", common.ErrCaptchaNotConfigured, `{}`, http.StatusInternalServerError, "botVerifyNotConfigured"},
		{"unclassified", context.DeadlineExceeded, `{}`, http.StatusInternalServerError, "internal error"},
		{"malformed body", nil, `{"email":`, http.StatusBadRequest, "malformedRequest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&fakeRegistrar{err: tt.err, res: &services.RegisterResult{}}, &fakeUsers{})
			code, env := do(t, h, http.MethodPost, "/api/register", "", tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, "error", env.Status)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}

func TestLogin(t *testing.T) {
	us := &fakeUsers{}
	h := newTestRouter(&fakeRegistrar{}, us)

	code, env := do(t, h, http.MethodPost, "/api/login", "", `{"email":"u@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, code)

	var res services.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "jwt", res.Token)
	assert.Equal(t, "u@example.com", res.User.Email)
	assert.Equal(t, "test-agent", us.loginMeta.UserAgent)
	assert.Equal(t, "192.0.2.1", us.loginMeta.IP)

	us.loginErr = common.ErrIncorrectPassword
	code, env = do(t, h, http.MethodPost, "/api/login", "", `{"email":"u@example.com","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "IncorrectPwd", env.Message)
}

func TestSessionRoutes(t *testing.T) {
	us := &fakeUsers{}
	h := newTestRouter(&fakeRegistrar{}, us)

	code, env := do(t, h, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", env.Message)

	code, env = do(t, h, http.MethodGet, "/api/me", "stale", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "sessionExpired", env.Message)

	code, env = do(t, h, http.MethodGet, "/api/me", "user-token", "")
	require.Equal(t, http.StatusOK, code)
	var me models.UserView
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, int64(1), me.ID)

	code, _ = do(t, h, http.MethodDelete, "/api/logout", "user-token", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "t1", us.loggedOut)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", tt.header)
		assert.Equal(t, tt.want, bearerToken(r), tt.header)
	}
}

func TestAdminRoutes(t *testing.T) {
	us := &fakeUsers{}
	h := newTestRouter(&fakeRegistrar{}, us)

	code, env := do(t, h, http.MethodDelete, "/api/admin/users/5", "user-token", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "permDenied", env.Message)
	assert.Zero(t, us.deleted)

	code, _ = do(t, h, http.MethodDelete, "/api/admin/users/5", "admin-token", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(5), us.deleted)

	code, env = do(t, h, http.MethodDelete, "/api/admin/users/404", "admin-token", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "notExistUser", env.Message)

	code, env = do(t, h, http.MethodDelete, "/api/admin/users/abc", "admin-token", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "malformedRequest", env.Message)

	code, _ = do(t, h, http.MethodPut, "/api/admin/users/7/status", "admin-token", `{"status":1}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(7), us.statusUser)
	assert.Equal(t, models.UserStatusBanned, us.status)

	code, env = do(t, h, http.MethodPut, "/api/admin/users/7/status", "admin-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalidStatus", env.Message)

	code, env = do(t, h, http.MethodGet, "/api/admin/external/stats", "admin-token", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"byTrustLevel":[1,2,0,0,0],"total":3}`, string(env.Data))

	code, _ = do(t, h, http.MethodPut, "/api/admin/external/settings", "admin-token",
		`{"trustLevelEnabled":[false,true,true,true,true],"maxUsers":50}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 50, us.policy.MaxUsers)

	code, env = do(t, h, http.MethodPut, "/api/admin/external/settings", "admin-token", `{"maxUsers":-1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalidMaxUsers", env.Message)

	code, env = do(t, h, http.MethodGet, "/api/admin/external/settings", "admin-token", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"trustLevelEnabled":[false,true,true,true,true],"maxUsers":50}`, string(env.Data))

	code, _ = do(t, h, http.MethodPost, "/api/admin/settings/refresh", "admin-token", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, us.refreshed)
}

func TestOAuthRoutes(t *testing.T) {
	h := newTestRouter(&fakeRegistrar{}, &fakeUsers{})

	code, env := do(t, h, http.MethodPost, "/api/oauth/authorize-url", "", `{"redirectUri":"https://mail.example.com/cb"}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"url":"https://idp.example/authorize"}`, string(env.Data))

	code, env = do(t, h, http.MethodPost, "/api/oauth/authorize-url", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "redirectUriRequired", env.Message)

	code, env = do(t, h, http.MethodPost, "/api/oauth/callback", "", `{"code":"c","redirectUri":"https://mail.example.com/cb"}`)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "oauthTokenFailed", env.Message)
}

func TestOAuthConfigRoute(t *testing.T) {
	code, env := do(t, newTestRouter(&fakeRegistrar{}, &fakeUsers{}), http.MethodGet, "/api/oauth/config", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"enabled":false}`, string(env.Data))

	code, env = do(t, newTestRouter(&fakeRegistrar{}, &fakeUsers{clientID: "cid"}), http.MethodGet, "/api/oauth/config", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"clientId":"cid","authUrl":"https://idp.example/authorize","enabled":true}`, string(env.Data))
}

func TestCheckRegisterPermissionRoute(t *testing.T) {
	us := &fakeUsers{}
	h := newTestRouter(&fakeRegistrar{}, us)

	code, env := do(t, h, http.MethodPost, "/api/external/check-register-permission", "", `{"trustLevel":2}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"canRegister":true}`, string(env.Data))
	assert.Equal(t, 2, us.permLevel)

	code, env = do(t, h, http.MethodPost, "/api/external/check-register-permission", "", `{"trustLevel":3}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"canRegister":false}`, string(env.Data))

	code, env = do(t, h, http.MethodPost, "/api/linuxdo/check-register-permission", "", `{"trustLevel":1}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"canRegister":true}`, string(env.Data))

	code, env = do(t, h, http.MethodPost, "/api/external/check-register-permission", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "malformedRequest", env.Message)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(&fakeRegistrar{}, &fakeUsers{})

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://mail.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://mail.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
