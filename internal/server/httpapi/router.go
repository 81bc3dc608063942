// Package httpapi exposes the identity core over HTTP/JSON.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(h *Handler, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Get("/oauth/config", h.OAuthConfig)
		r.Post("/oauth/authorize-url", h.OAuthAuthorizeURL)
		r.Post("/oauth/callback", h.OAuthCallback)
		r.Post("/external/check-register-permission", h.CheckRegisterPermission)
		r.Post("/linuxdo/check-register-permission", h.CheckRegisterPermission)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)
			r.Delete("/logout", h.Logout)
			r.Get("/me", h.Me)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Put("/users/{id}/status", h.SetUserStatus)
				r.Delete("/users/{id}", h.DeleteUser)
				r.Get("/external/stats", h.ExternalStats)
				r.Get("/external/settings", h.ExternalPolicy)
				r.Put("/external/settings", h.UpdateExternalPolicy)
				r.Post("/settings/refresh", h.RefreshSettings)
			})
		})
	})

	return r
}
