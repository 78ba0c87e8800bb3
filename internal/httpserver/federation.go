package httpserver

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/federation"
	"github.com/Skotchmaster/lookaly/internal/logging"
	authmw "github.com/Skotchmaster/lookaly/internal/middleware/auth"
	"github.com/Skotchmaster/lookaly/internal/transport"
)

// GoogleURL hands out the provider's consent URL and binds a fresh state
// value to the browser through a short-lived cookie.
func (h *AuthHTTP) GoogleURL(c echo.Context) error {
	if h.Svc.Federation == nil {
		return domain.ErrFederationDisabled
	}
	state, err := federation.NewState()
	if err != nil {
		return err
	}
	c.SetCookie(h.createCookie(stateCookie, state, stateCookiePath, time.Now().Add(stateCookieTTL)))
	return c.JSON(http.StatusOK, transport.AuthorizationURL{URL: h.Svc.Federation.AuthorizationURL(state)})
}

// GoogleCallback finishes the provider round trip and sends the browser back
// to the frontend. The token travels in the fragment so it never reaches a
// server log.
func (h *AuthHTTP) GoogleCallback(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "google_callback")

	if h.Svc.Federation == nil {
		return domain.ErrFederationDisabled
	}

	ck, err := c.Cookie(stateCookie)
	c.SetCookie(h.deleteCookie(stateCookie, stateCookiePath))
	state := c.QueryParam("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(ck.Value), []byte(state)) != 1 {
		l.Warn("google_callback_failed", "status", 400, "reason", "state mismatch")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid oauth state")
	}
	if e := c.QueryParam("error"); e != "" {
		l.Warn("google_callback_failed", "status", 400, "reason", "provider error", "provider_error", e)
		return echo.NewHTTPError(http.StatusBadRequest, "sign-in with provider was cancelled")
	}
	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing authorization code")
	}

	res, err := h.Svc.FederatedLogin(ctx, code)
	if err != nil {
		return err
	}

	c.SetCookie(h.createCookie(authmw.AccessCookie, res.Access.Token, "/", res.Access.ExpiresAt))
	frag := url.Values{"token": {res.Access.Token}}.Encode()
	return c.Redirect(http.StatusFound, strings.TrimRight(h.FrontendURL, "/")+"/auth-callback#"+frag)
}
