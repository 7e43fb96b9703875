package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"bq-viewsync/internal/middleware"
)

// RouterDeps holds what NewRouter wires together.
type RouterDeps struct {
	Handler   *Handler
	Auth      *middleware.Authenticator // nil disables auth
	RateLimit middleware.RateLimitConfig
}

// NewRouter builds the HTTP routes. /healthz is public; /main and /runs go
// through auth, and /main is additionally rate limited.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", deps.Handler.Health)

	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Middleware())
		}
		r.With(middleware.RateLimiter(deps.RateLimit)).Post("/main", deps.Handler.TriggerSync)
		r.Get("/runs", deps.Handler.ListRuns)
	})
	return r
}
