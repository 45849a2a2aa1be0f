package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/inkwell/inkwell-api/internal/models"
	"github.com/inkwell/inkwell-api/internal/request"
	"github.com/inkwell/inkwell-api/internal/services/auth"
)

// UserResolver turns request credentials into a user.
type UserResolver interface {
	Resolve(ctx context.Context, r *http.Request) (*models.User, error)
}

// OptionalAuth attaches the caller's user to the context when valid credentials are present.
// Requests without credentials, or with invalid ones, continue anonymously.
func OptionalAuth(resolver UserResolver, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				if !errors.Is(err, auth.ErrNoCredentials) {
					log.Debug("session_resolution_failed", zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(request.WithUser(r.Context(), user)))
		})
	}
}

// RequireUser rejects requests OptionalAuth could not attach a user to.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if request.UserFromContext(r) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "Authentication required",
				"code":  "UNAUTHORIZED",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
