package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"bq-viewsync/internal/domain"
)

// Authenticator checks the bearer token on incoming requests and stores the
// resulting domain.Caller in the request context.
type Authenticator struct {
	validator JWTValidator
	audience  string
	logger    *slog.Logger
}

// NewAuthenticator creates an Authenticator. A nil validator lets every
// request through anonymously. When audience is non-empty, tokens must list
// it in their aud claim.
func NewAuthenticator(validator JWTValidator, audience string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{validator: validator, audience: audience, logger: logger.With("component", "auth")}
}

// Middleware returns the HTTP middleware.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.validator == nil {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := a.validator.Validate(r.Context(), token)
			if err != nil {
				a.logger.Info("rejected token", "error", err, "request_id", RequestIDFromContext(r.Context()))
				writeUnauthorized(w, "invalid token")
				return
			}
			if claims.Subject == "" {
				writeUnauthorized(w, "token has no subject")
				return
			}
			if a.audience != "" && !slices.Contains(claims.Audience, a.audience) {
				writeUnauthorized(w, "token audience mismatch")
				return
			}

			caller := domain.Caller{Subject: claims.Subject}
			if claims.Email != nil {
				caller.Email = *claims.Email
			}
			ctx := domain.WithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusUnauthorized,
		"message": "unauthorized: " + msg,
	})
}
