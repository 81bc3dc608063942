package httpapi

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/logging"
	"github.com/dmitrijs2005/mailkeeper/internal/server/api"
	"github.com/dmitrijs2005/mailkeeper/internal/server/clientip"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	registrar api.Registrar
	users     api.Users
	clientIPs *clientip.Resolver
	log       logging.Logger
}

func NewHandler(reg api.Registrar, us api.Users, ips *clientip.Resolver, log logging.Logger) *Handler {
	return &Handler{registrar: reg, users: us, clientIPs: ips, log: log.With("module", "http_api")}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.registrar.Register(r.Context(), req.ToService(h.loginMeta(r)))
	if err != nil {
		h.log.Info(r.Context(), "registration refused", "email", req.Email, "reason", err.Error())
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.users.Login(r.Context(), req.Email, req.Password, h.loginMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := h.users.Logout(r.Context(), p.UserID, p.TokenID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principalFrom(r.Context()).User)
}

func (h *Handler) OAuthAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	var req api.AuthorizeURLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.users.OAuthAuthorizeURL(req.RedirectURI)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.AuthorizeURLResponse{URL: u})
}

func (h *Handler) OAuthConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.users.OAuthConfig())
}

func (h *Handler) CheckRegisterPermission(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TrustLevel == nil {
		writeError(w, common.ErrMalformedRequest)
		return
	}

	ok, err := h.users.CanRegisterExternal(r.Context(), *req.TrustLevel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.RegisterPermissionResponse{CanRegister: ok})
}

func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	var req api.OAuthCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.users.OAuthCallback(r.Context(), req.Code, req.RedirectURI, h.loginMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req api.SetStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Status == nil {
		writeError(w, common.ErrInvalidStatus)
		return
	}

	if err := h.users.SetStatus(r.Context(), id, *req.Status); err != nil {
		writeError(w, err)
		return
	}
	h.log.Info(r.Context(), "user status changed", "user_id", id, "status", int(*req.Status), "by", principalFrom(r.Context()).UserID)
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.log.Info(r.Context(), "user deleted", "user_id", id, "by", principalFrom(r.Context()).UserID)
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) ExternalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.ExternalStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ExternalPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.users.ExternalPolicy(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdateExternalPolicy(w http.ResponseWriter, r *http.Request) {
	var req models.ExternalPolicy
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.UpdateExternalPolicy(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) RefreshSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.users.RefreshSettings(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, common.ErrMalformedRequest)
		return 0, false
	}
	return id, true
}
