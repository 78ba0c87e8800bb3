package ratelimit

import (
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/logging"
	"github.com/Skotchmaster/lookaly/internal/metrics"
	"github.com/Skotchmaster/lookaly/internal/throttle"
)

// PerIP limits each client address separately on endpoint. A throttle that
// cannot answer lets the request through.
func PerIP(t throttle.Throttle, endpoint string, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ip := c.RealIP()

			ok, err := t.Allow(ctx, endpoint+":"+ip)
			if err != nil {
				logging.FromContext(ctx).Warn("throttle_unavailable", "endpoint", endpoint, "error", err)
				return next(c)
			}
			if !ok {
				m.RateLimited(endpoint)
				logging.FromContext(ctx).Warn("rate_limited", "endpoint", endpoint, "remote_ip", ip)
				return domain.ErrRateLimited
			}
			return next(c)
		}
	}
}
