package middleware

import (
	"context"
	"net/http"
	"strings"

	"tapachat/internal/model"
	"tapachat/internal/util"

	"github.com/rs/zerolog"
)

// Injected key type to avoid context collisions
type contextKey string

const SessionContextKey = contextKey("session")

// SessionMiddleware resolves the caller's identity for every request. A valid
// bearer token yields an authenticated session; a missing, malformed or
// expired token degrades to the guest pseudo-identity instead of rejecting
// the request. The stale token is simply dropped, so a corrupt credential can
// never stick to a session.
func SessionMiddleware(jwtSecret string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := model.GuestSession()

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && parts[0] == "Bearer" {
					claims, err := util.ValidateJWT(parts[1], jwtSecret)
					if err != nil {
						logger.Warn().Err(err).Msg("Invalid access token, resolving as guest")
					} else {
						sess = model.AuthenticatedSession(model.Account{
							ID:    claims.Subject,
							Email: claims.Email,
							Name:  claims.UserMetadata.FullName,
						})
					}
				} else {
					logger.Warn().Msg("Malformed authorization header, resolving as guest")
				}
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the resolved session, falling back to guest if
// the middleware did not run.
func SessionFromContext(ctx context.Context) model.Session {
	if sess, ok := ctx.Value(SessionContextKey).(model.Session); ok {
		return sess
	}
	return model.GuestSession()
}

// RequireAuth rejects guest sessions. It must be mounted behind
// SessionMiddleware.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if sess.IsGuest() {
			http.Error(w, "Unauthorized: sign in required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
