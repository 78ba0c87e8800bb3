package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	authmw "github.com/Skotchmaster/lookaly/internal/middleware/auth"
	"github.com/Skotchmaster/lookaly/internal/service"
)

const (
	refreshCookiePath = "/api/auth/refresh"
	stateCookie       = "oauth_state"
	stateCookiePath   = "/api/auth/google/callback"
	stateCookieTTL    = 10 * time.Minute
)

func (h *AuthHTTP) createCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		MaxAge:   int(time.Until(exp).Seconds()),
		HttpOnly: true,
		Secure:   !h.Debug,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHTTP) deleteCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.Debug,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHTTP) setAuthCookies(c echo.Context, res *service.LoginResult) {
	c.SetCookie(h.createCookie(authmw.AccessCookie, res.AccessToken, "/", res.AccessExp))
	c.SetCookie(h.createCookie(authmw.RefreshCookie, res.RefreshToken, refreshCookiePath, res.RefreshExp))
}

func (h *AuthHTTP) clearAuthCookies(c echo.Context) {
	c.SetCookie(h.deleteCookie(authmw.AccessCookie, "/"))
	c.SetCookie(h.deleteCookie(authmw.RefreshCookie, refreshCookiePath))
}

func useCookies(c echo.Context) bool {
	ok, _ := strconv.ParseBool(c.QueryParam("use_cookies"))
	return ok
}
