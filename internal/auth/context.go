package auth

import (
	"context"

	"github.com/vidtube/backend/internal/models"
)

type ctxKey struct{}

// WithPrincipal attaches the authenticated principal to ctx.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	p.PasswordHash = ""
	p.RefreshTokenHash = ""
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext returns the principal attached by the auth gate.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	if ctx == nil {
		return models.Principal{}, false
	}
	p, ok := ctx.Value(ctxKey{}).(models.Principal)
	return p, ok
}
