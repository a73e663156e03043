package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/vidtube/backend/internal/accounts"
	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/respond"
)

// UserHandler implements the /api/v1/users endpoints.
type UserHandler struct {
	Sessions  SessionFlows
	Accounts  AccountManager
	Channels  ChannelViews
	Cookies   CookieSettings
	UploadDir string
	NowFunc   func() time.Time
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User         models.PublicPrincipal `json:"user"`
	AccessToken  string                 `json:"accessToken"`
	RefreshToken string                 `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// Register handles POST /api/v1/users/register.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	files := &spooler{dir: h.UploadDir}
	defer files.cleanup(r)

	if err := files.parse(w, r); err != nil {
		respond.Error(ctx, w, err)
		return
	}

	reg := accounts.Registration{
		FullName: r.FormValue("fullName"),
		Email:    r.FormValue("email"),
		Handle:   r.FormValue("username"),
		Password: r.FormValue("password"),
	}

	var err error
	if reg.AvatarPath, err = files.spool(r, "avatar"); err != nil {
		respond.Error(ctx, w, err)
		return
	}
	if reg.CoverImagePath, err = files.spool(r, "coverImage"); err != nil {
		respond.Error(ctx, w, err)
		return
	}

	principal, err := h.Accounts.Register(ctx, reg)
	if err != nil {
		respond.Error(ctx, w, err)
		return
	}

	respond.OK(ctx, w, http.StatusCreated, principal.Public(), "user registered successfully")
}

// Login handles POST /api/v1/users/login.
func (h UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respond.Error(ctx, w, err)
		return
	}

	session, err := h.Sessions.Login(ctx, auth.Credentials{
		Handle:   req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respond.Error(ctx, w, err)
		return
	}

	h.Cookies.setSession(w, session.Tokens, h.now())
	respond.OK(ctx, w, http.StatusOK, loginResponse{
		User:         session.Principal.Public(),
		AccessToken:  session.Tokens.AccessToken,
		RefreshToken: session.Tokens.RefreshToken,
	}, "user logged in successfully")
}

// Logout handles POST /api/v1/users/logout.
func (h UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if err := h.Sessions.Logout(ctx, principal.ID); err != nil {
		respond.Error(ctx, w, err)
		return
	}

	h.Cookies.clearSession(w)
	respond.OK(ctx, w, http.StatusOK, struct{}{}, "user logged out")
}

// RefreshToken handles POST /api/v1/users/refresh-token. The token is read
// from the refresh cookie, else from the JSON body.
func (h UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var raw string
	if cookie, err := r.Cookie(RefreshTokenCookie); err == nil {
		raw = cookie.Value
	}
	if strings.TrimSpace(raw) == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req, true); err != nil {
			respond.Error(ctx, w, err)
			return
		}
		raw = req.RefreshToken
	}

	session, err := h.Sessions.Refresh(ctx, raw)
	if err != nil {
		respond.Error(ctx, w, err)
		return
	}

	h.Cookies.setSession(w, session.Tokens, h.now())
	respond.OK(ctx, w, http.StatusOK, refreshResponse{
		AccessToken:  session.Tokens.AccessToken,
		RefreshToken: session.Tokens.RefreshToken,
	}, "access token refreshed")
}

// ChangePassword handles POST /api/v1/users/change-password.
func (h UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respond.Error(ctx, w, err)
		return
	}

	if err := h.Accounts.ChangePassword(ctx, principal.ID, req.OldPassword, req.NewPassword); err != nil {
		respond.Error(ctx, w, err)
		return
	}
	respond.OK(ctx, w, http.StatusOK, struct{}{}, "password changed successfully")
}

// CurrentUser handles GET /api/v1/users/current-user.
func (h UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	respond.OK(r.Context(), w, http.StatusOK, principal.Public(), "current user fetched successfully")
}

// UpdateAccount handles PATCH /api/v1/users/update-account.
func (h UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req updateAccountRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respond.Error(ctx, w, err)
		return
	}

	updated, err := h.Accounts.UpdateAccount(ctx, principal.ID, req.FullName, req.Email)
	if err != nil {
		respond.Error(ctx, w, err)
		return
	}
	respond.OK(ctx, w, http.StatusOK, updated.Public(), "account details updated successfully")
}

// UpdateAvatar handles PATCH /api/v1/users/avatar.
func (h UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "avatar", h.Accounts.UpdateAvatar, "avatar updated successfully")
}

// UpdateCoverImage handles PATCH /api/v1/users/cover-image.
func (h UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "coverImage", h.Accounts.UpdateCoverImage, "cover image updated successfully")
}

func (h UserHandler) replaceImage(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	update func(ctx context.Context, principalID, localPath string) (models.Principal, error),
	message string,
) {
	ctx := r.Context()
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	files := &spooler{dir: h.UploadDir}
	defer files.cleanup(r)

	if err := files.parse(w, r); err != nil {
		respond.Error(ctx, w, err)
		return
	}
	path, err := files.spool(r, field)
	if err != nil {
		respond.Error(ctx, w, err)
		return
	}
	if path == "" {
		respond.Error(ctx, w, apperr.Validation(field+" file is missing"))
		return
	}

	updated, err := update(ctx, principal.ID, path)
	if err != nil {
		respond.Error(ctx, w, err)
		return
	}
	respond.OK(ctx, w, http.StatusOK, updated.Public(), message)
}

// ChannelProfile handles GET /api/v1/users/c/{handle}.
func (h UserHandler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	profile, err := h.Channels.ChannelProfile(ctx, r.PathValue("handle"), viewer.ID)
	if err != nil {
		respond.Error(ctx, w, err)
		return
	}
	respond.OK(ctx, w, http.StatusOK, profile, "user channel fetched successfully")
}

// WatchHistory handles GET /api/v1/users/history.
func (h UserHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	history, err := h.Channels.WatchHistory(ctx, principal.ID)
	if err != nil {
		respond.Error(ctx, w, err)
		return
	}
	respond.OK(ctx, w, http.StatusOK, history, "watch history fetched successfully")
}

// requirePrincipal returns the principal attached by the auth gate. Handlers
// mounted without the gate answer 401.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || principal.ID == "" {
		logging.FromContext(r.Context()).Error("handler reached without an authenticated principal")
		respond.Error(r.Context(), w, apperr.Unauthenticated("unauthorized request"))
		return models.Principal{}, false
	}
	return principal, true
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now()
}
