package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/logging"
	authmw "github.com/Skotchmaster/lookaly/internal/middleware/auth"
	"github.com/Skotchmaster/lookaly/internal/service"
	"github.com/Skotchmaster/lookaly/internal/transport"
)

type AuthHTTP struct {
	Svc         *service.AuthService
	Debug       bool
	FrontendURL string
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	acct, err := h.Svc.Register(ctx, req.Email, req.Name, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, transport.AccountFrom(acct))
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" {
		req.Email = req.Username
	}
	if req.TOTPCode == "" {
		req.TOTPCode = c.QueryParam("totp_code")
	}

	res, err := h.Svc.Login(ctx, service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		TOTPCode: req.TOTPCode,
	})
	if err != nil {
		return err
	}
	return h.respondTokens(c, res)
}

// Refresh takes the refresh token from the body, the query string or the
// path-scoped cookie, in that order.
func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req transport.RefreshRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refresh_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	raw := req.RefreshToken
	if raw == "" {
		raw = c.QueryParam("refresh_token")
	}
	if raw == "" {
		if ck, err := c.Cookie(authmw.RefreshCookie); err == nil {
			raw = ck.Value
		}
	}
	if raw == "" {
		return domain.ErrInvalidCredentials
	}

	res, err := h.Svc.Refresh(ctx, raw)
	if err != nil {
		if errors.Is(err, service.ErrRotationIncomplete) {
			h.clearAuthCookies(c)
		}
		return err
	}
	return h.respondTokens(c, res)
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()

	var req transport.RefreshRequest
	_ = c.Bind(&req)
	if req.RefreshToken == "" {
		if ck, err := c.Cookie(authmw.RefreshCookie); err == nil {
			req.RefreshToken = ck.Value
		}
	}

	if err := h.Svc.Logout(ctx, authmw.Session(c), req.RefreshToken); err != nil {
		return err
	}
	h.clearAuthCookies(c)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, transport.AccountFrom(authmw.Account(c)))
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_change_password")

	var req transport.ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("change_password_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.ChangePassword(ctx, authmw.Session(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		return err
	}
	return h.respondTokens(c, res)
}

func (h *AuthHTTP) respondTokens(c echo.Context, res *service.LoginResult) error {
	if useCookies(c) {
		h.setAuthCookies(c, res)
		return c.JSON(http.StatusOK, transport.Token{TokenType: "cookie"})
	}
	return c.JSON(http.StatusOK, transport.Token{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(res.AccessExp).Seconds()),
	})
}
