package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/respond"
)

// AccessTokenCookie names the cookie carrying the access token.
const AccessTokenCookie = "accessToken"

// Authenticator resolves an access token to its principal.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (models.Principal, error)
}

// RequireAuth admits requests bearing a valid access token and attaches the
// principal to the request context. The cookie wins over the Authorization
// header when both are present.
func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := AccessToken(r)
			if raw == "" {
				respond.Error(ctx, w, apperr.Unauthenticated("unauthorized request"))
				return
			}

			principal, err := authn.Authenticate(ctx, raw)
			if err != nil {
				respond.Error(ctx, w, err)
				return
			}

			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("principal_id", principal.ID))
			ctx = auth.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessToken extracts the presented access token, or "".
func AccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
