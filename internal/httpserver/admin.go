package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lookaly/internal/domain"
	authmw "github.com/Skotchmaster/lookaly/internal/middleware/auth"
	"github.com/Skotchmaster/lookaly/internal/transport"
	"github.com/Skotchmaster/lookaly/internal/util"
)

func (h *AuthHTTP) ListAccounts(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Calculate(page, size)

	accounts, err := h.Svc.ListAccounts(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	out := make([]transport.Account, 0, len(accounts))
	for i := range accounts {
		out = append(out, transport.AccountFrom(&accounts[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuthHTTP) SetRole(c echo.Context) error {
	var req transport.RoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	err := h.Svc.SetRole(c.Request().Context(), authmw.Account(c), c.Param("id"), domain.Role(req.Role))
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) SetAdmin(c echo.Context) error {
	v, err := bindFlag(c, "is_admin")
	if err != nil {
		return err
	}
	if err := h.Svc.SetAdmin(c.Request().Context(), authmw.Account(c), c.Param("id"), v); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) SetActive(c echo.Context) error {
	v, err := bindFlag(c, "is_active")
	if err != nil {
		return err
	}
	if err := h.Svc.SetActive(c.Request().Context(), authmw.Account(c), c.Param("id"), v); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func bindFlag(c echo.Context, field string) (bool, error) {
	var req transport.FlagRequest
	if err := c.Bind(&req); err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Value == nil {
		return false, domain.Invalid(field, "value is required")
	}
	return *req.Value, nil
}
