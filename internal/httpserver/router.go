package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	authmw "github.com/Skotchmaster/lookaly/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/lookaly/internal/middleware/logging"
)

type Deps struct {
	AuthHandler   *AuthHTTP
	Guard         *authmw.Middleware
	RegisterLimit echo.MiddlewareFunc
	LoginLimit    echo.MiddlewareFunc
	Metrics       http.Handler
	Ready         func(ctx context.Context) error
}

// New builds the echo instance with the service-wide middleware stack.
func New(log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.Recover(),
		middleware.RequestID(),
		loggingmw.RequestLogger(log),
		middleware.SecureWithConfig(middleware.SecureConfig{
			XSSProtection:         "0",
			ContentTypeNosniff:    "nosniff",
			XFrameOptions:         "DENY",
			HSTSMaxAge:            31536000,
			ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
			ReferrerPolicy:        "no-referrer",
		}),
		middleware.BodyLimit("64K"),
	)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	h := d.AuthHandler
	auth := e.Group("/api/auth")

	auth.POST("/register", h.Register, limit(d.RegisterLimit))
	auth.POST("/login", h.Login, limit(d.LoginLimit))
	auth.POST("/refresh", h.Refresh)
	auth.GET("/google/url", h.GoogleURL)
	auth.GET("/google/callback", h.GoogleCallback)

	private := auth.Group("", d.Guard.RequireAuth)
	private.POST("/logout", h.LogOut)
	// Under the refresh cookie's path so a browser sends both cookies.
	private.POST("/refresh/logout", h.LogOut)
	private.GET("/me", h.Me)
	private.POST("/password", h.ChangePassword)
	private.POST("/2fa/setup", h.TwoFactorSetup)
	private.POST("/2fa/confirm", h.TwoFactorConfirm)
	private.POST("/2fa/disable", h.TwoFactorDisable)
	private.GET("/2fa/status", h.TwoFactorStatus)

	admin := e.Group("/api/users", d.Guard.RequireAdmin)
	admin.GET("", h.ListAccounts)
	admin.PATCH("/:id/role", h.SetRole)
	admin.PATCH("/:id/admin", h.SetAdmin)
	admin.PATCH("/:id/active", h.SetActive)
}

func limit(mw echo.MiddlewareFunc) echo.MiddlewareFunc {
	if mw == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return mw
}
