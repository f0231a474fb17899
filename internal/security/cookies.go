package security

import (
	"net/http"
	"strings"
	"time"

	"vidtube/api/internal/config"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookieTransport maps issued tokens to and from cookies. Both cookies are
// HttpOnly; Secure and SameSite come from configuration so local development
// over plain http stays possible.
type CookieTransport struct {
	domain     string
	path       string
	secure     bool
	sameSite   http.SameSite
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCookieTransport(cookie config.CookieConfig, sec config.SecurityConfig) *CookieTransport {
	return &CookieTransport{
		domain:     cookie.Domain,
		path:       cookie.Path,
		secure:     cookie.Secure,
		sameSite:   parseSameSite(cookie.SameSite),
		accessTTL:  sec.AccessTokenTTL,
		refreshTTL: sec.RefreshTokenTTL,
	}
}

func (t *CookieTransport) SetSessionCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	t.setCookie(w, AccessTokenCookie, accessToken, t.accessTTL)
	t.setCookie(w, RefreshTokenCookie, refreshToken, t.refreshTTL)
}

// ClearSessionCookies expires both cookies with the same flags they were set
// with, otherwise browsers ignore the removal.
func (t *CookieTransport) ClearSessionCookies(w http.ResponseWriter) {
	t.expireCookie(w, AccessTokenCookie)
	t.expireCookie(w, RefreshTokenCookie)
}

// AccessTokenFromRequest reads the access token from the cookie, falling back
// to an Authorization bearer header for non-browser clients.
func (t *CookieTransport) AccessTokenFromRequest(r *http.Request) (string, bool) {
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, true
		}
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		if v := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")); v != "" {
			return v, true
		}
	}
	return "", false
}

// RefreshTokenFromRequest reads the refresh cookie. Callers that accept a
// body fallback check the request payload when this reports false.
func (t *CookieTransport) RefreshTokenFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshTokenCookie)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

func (t *CookieTransport) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     t.path,
		Domain:   t.domain,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: t.sameSite,
	})
}

func (t *CookieTransport) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     t.path,
		Domain:   t.domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: t.sameSite,
	})
}

func parseSameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
