package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	authmw "github.com/Skotchmaster/lookaly/internal/middleware/auth"
	"github.com/Skotchmaster/lookaly/internal/transport"
)

func (h *AuthHTTP) TwoFactorSetup(c echo.Context) error {
	p, err := h.Svc.ProvisionTwoFactor(c.Request().Context(), authmw.Account(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.TwoFactorSetup{Secret: p.Secret, URI: p.URI, QRCode: p.QRCode})
}

func (h *AuthHTTP) TwoFactorConfirm(c echo.Context) error {
	var req transport.CodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.Svc.ConfirmTwoFactor(c.Request().Context(), authmw.Account(c), req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.Detail{Detail: "two-factor authentication enabled"})
}

func (h *AuthHTTP) TwoFactorDisable(c echo.Context) error {
	var req transport.CodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.Svc.DisableTwoFactor(c.Request().Context(), authmw.Account(c), req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, transport.Detail{Detail: "two-factor authentication disabled"})
}

func (h *AuthHTTP) TwoFactorStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, transport.TwoFactorStatus{Enabled: authmw.Account(c).TOTPEnabled})
}
