package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"marketplace-be/internal/apperror"
	"marketplace-be/internal/auth"
	"marketplace-be/internal/logger"

	"go.uber.org/zap"
)

var errUnauthorized = apperror.New(apperror.KindAuth, "unauthorized", "invalid or expired token")

// AuthMiddleware attaches the caller to the context when an access token is present.
// Requests without one continue anonymously; a bad Bearer token is rejected.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	verifier := auth.NewVerifier(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := auth.ExtractAccessToken(r)
			if source == auth.SourceNone {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Parse(raw)
			if err != nil {
				log := logger.FromCtx(r.Context())
				// A stale browser cookie must not lock the caller out of public routes.
				if source == auth.SourceCookie {
					log.Debug("ignoring invalid access token cookie", zap.Error(err))
					next.ServeHTTP(w, r)
					return
				}
				log.Info("rejected access token", zap.Error(err))
				apperror.WriteJSON(w, errUnauthorized)
				return
			}

			ctx := WithUser(r.Context(), User{ID: claims.Subject, Role: claims.Role})
			ctx = logger.WithUserID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFrom(r.Context()); !ok {
			apperror.WriteJSON(w, apperror.New(apperror.KindAuth, "unauthorized", "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCronSecret guards scheduler-triggered routes. The secret may arrive as ?secret=
// or as a Bearer token.
func RequireCronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("secret")
			if got == "" {
				got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}

			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				apperror.WriteJSON(w, apperror.New(apperror.KindAuth, "unauthorized", "invalid cron secret"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
