package handlers

import (
	"net/http"
	"time"

	"github.com/vidtube/backend/internal/middleware"
)

// MediaPrefix is the path local uploads are served under.
const MediaPrefix = "/media/"

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Sessions  SessionFlows
	Accounts  AccountManager
	Channels  ChannelViews
	Cookies   CookieSettings
	UploadDir string

	// RateLimiter guards register, login and refresh per client IP. Nil
	// disables limiting.
	RateLimiter middleware.RateLimiter
	RetryAfter  time.Duration
	// TrustedProxies may report the client IP via X-Forwarded-For.
	TrustedProxies middleware.TrustedProxies

	HealthChecks map[string]Pinger

	// MediaDir is served under MediaPrefix when set.
	MediaDir string
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Checks: deps.HealthChecks}
	users := UserHandler{
		Sessions:  deps.Sessions,
		Accounts:  deps.Accounts,
		Channels:  deps.Channels,
		Cookies:   deps.Cookies,
		UploadDir: deps.UploadDir,
	}
	subs := SubscriptionHandler{Channels: deps.Channels}

	gate := middleware.RequireAuth(deps.Sessions)
	limit := func(scope string, h http.HandlerFunc) http.Handler {
		return middleware.RateLimit(deps.RateLimiter, scope, deps.RetryAfter, deps.TrustedProxies)(h)
	}
	gated := func(h http.HandlerFunc) http.Handler { return gate(h) }

	mux.HandleFunc("GET /healthz", health.Handle)

	mux.Handle("POST /api/v1/users/register", limit("register", users.Register))
	mux.Handle("POST /api/v1/users/login", limit("login", users.Login))
	mux.Handle("POST /api/v1/users/refresh-token", limit("refresh", users.RefreshToken))
	mux.Handle("POST /api/v1/users/logout", gated(users.Logout))
	mux.Handle("POST /api/v1/users/change-password", gated(users.ChangePassword))
	mux.Handle("GET /api/v1/users/current-user", gated(users.CurrentUser))
	mux.Handle("PATCH /api/v1/users/update-account", gated(users.UpdateAccount))
	mux.Handle("PATCH /api/v1/users/avatar", gated(users.UpdateAvatar))
	mux.Handle("PATCH /api/v1/users/cover-image", gated(users.UpdateCoverImage))
	mux.Handle("GET /api/v1/users/c/{handle}", gated(users.ChannelProfile))
	mux.Handle("GET /api/v1/users/history", gated(users.WatchHistory))

	mux.Handle("POST /api/v1/subscriptions/c/{channelID}", gated(subs.Subscribe))
	mux.Handle("DELETE /api/v1/subscriptions/c/{channelID}", gated(subs.Unsubscribe))

	if deps.MediaDir != "" {
		mux.Handle("GET "+MediaPrefix, http.StripPrefix(MediaPrefix, http.FileServer(http.Dir(deps.MediaDir))))
	}
}
