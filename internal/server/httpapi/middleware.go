package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"github.com/dmitrijs2005/mailkeeper/internal/server/services"
)

type ctxKey string

const principalKey ctxKey = "principal"

// bearerToken reads the carrier JWT from the Authorization header, with or
// without the Bearer scheme.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}

// requireSession rejects requests without a live session and stores the
// principal in the request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, common.ErrorUnauthorized)
			return
		}

		p, err := h.users.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		if err := h.users.RequireAdmin(p); err != nil {
			h.log.Warn(r.Context(), "admin call refused", "path", r.URL.Path, "user_id", p.UserID)
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalFrom(ctx context.Context) *services.Principal {
	p, _ := ctx.Value(principalKey).(*services.Principal)
	if p == nil {
		return &services.Principal{}
	}
	return p
}

// loginMeta reads the client address and user agent of r. Forwarding
// headers count only when the peer is a trusted proxy.
func (h *Handler) loginMeta(r *http.Request) models.LoginMeta {
	ip := h.clientIPs.Resolve(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"))
	return models.LoginMeta{IP: ip, UserAgent: r.UserAgent()}
}
