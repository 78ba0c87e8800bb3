package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/logging"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// Order matters: the more specific errors come before the generic classes
// they might also match.
var errorMappings = []errorMapping{
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, domain.ErrInvalidCredentials.Error()},
	{domain.ErrSecondFactorRequired, http.StatusPreconditionRequired, "2fa_required"},
	{domain.ErrSecondFactorInvalid, http.StatusUnauthorized, "invalid second factor code"},
	{domain.ErrSecondFactorAlreadyEnabled, http.StatusConflict, "two-factor authentication is already enabled"},
	{domain.ErrSecondFactorNotEnabled, http.StatusBadRequest, "two-factor authentication is not enabled"},
	{domain.ErrSecondFactorNotProvisioned, http.StatusBadRequest, "call 2fa setup first"},
	{domain.ErrPasswordExpired, http.StatusForbidden, "password expired, please change it"},
	{domain.ErrForbidden, http.StatusForbidden, "insufficient privileges"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "too many requests"},
	{domain.ErrFederationDisabled, http.StatusServiceUnavailable, "federated sign-in is not configured"},
	{domain.ErrFederation, http.StatusBadGateway, "could not complete sign-in with provider"},
	{domain.ErrConflict, http.StatusConflict, "already exists"},
	{domain.ErrNotFound, http.StatusNotFound, "not found"},
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "service temporarily unavailable"},
}

// toHTTPError turns a service error into the response the client sees. Only
// validation messages are passed through; everything else gets a fixed text.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, echo.Map{"field": ve.Field, "detail": ve.Message})
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return echo.NewHTTPError(m.status, m.message)
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

// ErrorHandler replaces echo's default so domain errors never leak their
// wrapped causes into the response body.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he := toHTTPError(err)
	if he.Code == http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("unhandled_error", "error", err)
	}
	if he.Code == http.StatusUnauthorized {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	}

	body := he.Message
	if msg, ok := body.(string); ok {
		body = echo.Map{"detail": msg}
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(he.Code)
	} else {
		werr = c.JSON(he.Code, body)
	}
	if werr != nil {
		logging.FromContext(c.Request().Context()).Error("error_response_failed", "error", werr)
	}
}
