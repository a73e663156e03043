package handlers

import (
	"net/http"
	"time"

	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/models"
)

// RefreshTokenCookie names the cookie carrying the refresh token.
const RefreshTokenCookie = "refreshToken"

// CookieSettings controls the attributes shared by both session cookies.
type CookieSettings struct {
	Secure bool
	Domain string
}

func (c CookieSettings) cookie(name, value string, expires time.Time, now time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		return cookie
	}
	cookie.Expires = expires
	if maxAge := int(expires.Sub(now).Seconds()); maxAge > 0 {
		cookie.MaxAge = maxAge
	}
	return cookie
}

func (c CookieSettings) setSession(w http.ResponseWriter, tokens models.SessionTokens, now time.Time) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, tokens.AccessToken, tokens.AccessExpiresAt, now))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, tokens.RefreshToken, tokens.RefreshExpiresAt, now))
}

func (c CookieSettings) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, "", time.Time{}, time.Time{}))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, "", time.Time{}, time.Time{}))
}
