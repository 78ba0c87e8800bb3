// Package auth guards echo routes with the session authenticator.
package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/models"
	"github.com/Skotchmaster/lookaly/internal/session"
	"github.com/Skotchmaster/lookaly/internal/tokens"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	accountKey = "account"
	sessionKey = "session"
)

type Verifier interface {
	Verify(ctx context.Context, raw string, want tokens.Type) (*session.Session, error)
}

type Middleware struct {
	Sessions Verifier
}

func New(sessions Verifier) *Middleware {
	return &Middleware{Sessions: sessions}
}

// RequireAuth accepts the access token from the Authorization header or,
// failing that, from the access cookie.
func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.require(next, nil)
}

func (m *Middleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return m.require(next, func(acct *models.Account) error {
		_, err := session.RequireAdmin(acct)
		return err
	})
}

func (m *Middleware) RequireRole(allowed ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return m.require(next, func(acct *models.Account) error {
			_, err := session.RequireRole(acct, allowed...)
			return err
		})
	}
}

func (m *Middleware) require(next echo.HandlerFunc, check func(*models.Account) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := AccessToken(c)
		if raw == "" {
			return domain.ErrInvalidCredentials
		}
		sess, err := m.Sessions.Verify(c.Request().Context(), raw, tokens.TypeAccess)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(sess.Account); err != nil {
				return err
			}
		}
		c.Set(accountKey, sess.Account)
		c.Set(sessionKey, sess)
		return next(c)
	}
}

func AccessToken(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		return bearer(h)
	}
	if ck, err := c.Cookie(AccessCookie); err == nil {
		return bearer(ck.Value)
	}
	return ""
}

func bearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}

// Account is only set behind RequireAuth and its variants.
func Account(c echo.Context) *models.Account {
	acct, _ := c.Get(accountKey).(*models.Account)
	return acct
}

func Session(c echo.Context) *session.Session {
	sess, _ := c.Get(sessionKey).(*session.Session)
	return sess
}
