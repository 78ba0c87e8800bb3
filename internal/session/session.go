// Package session turns a bearer token into a live account.
package session

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/logging"
	"github.com/Skotchmaster/lookaly/internal/models"
	"github.com/Skotchmaster/lookaly/internal/revocation"
	"github.com/Skotchmaster/lookaly/internal/tokens"
)

type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
}

type Session struct {
	Account *models.Account
	Claims  *tokens.Claims
	Token   string
}

type Authenticator struct {
	issuer   *tokens.Issuer
	registry revocation.Registry
	accounts AccountFinder
}

func NewAuthenticator(issuer *tokens.Issuer, registry revocation.Registry, accounts AccountFinder) *Authenticator {
	return &Authenticator{issuer: issuer, registry: registry, accounts: accounts}
}

func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*models.Account, error) {
	s, err := a.Verify(ctx, raw, tokens.TypeAccess)
	if err != nil {
		return nil, err
	}
	return s.Account, nil
}

func (a *Authenticator) AuthenticateRefresh(ctx context.Context, raw string) (*models.Account, error) {
	s, err := a.Verify(ctx, raw, tokens.TypeRefresh)
	if err != nil {
		return nil, err
	}
	return s.Account, nil
}

// Verify runs the checks in order and stops at the first failure. Callers
// only ever see ErrInvalidCredentials, or ErrUnavailable when a backing store
// could not be asked; the reason goes to the log.
func (a *Authenticator) Verify(ctx context.Context, raw string, want tokens.Type) (*Session, error) {
	l := logging.FromContext(ctx).With("component", "session", "token_type", string(want))
	reject := func(reason string, attrs ...any) error {
		l.Warn("authentication_failed", append([]any{"reason", reason}, attrs...)...)
		return domain.ErrInvalidCredentials
	}

	if raw == "" {
		return nil, reject("missing_token")
	}

	claims, err := a.issuer.Parse(raw)
	if err != nil {
		return nil, reject("bad_token", "error", err)
	}
	if claims.Type != want {
		return nil, reject("wrong_type", "got", string(claims.Type))
	}

	revoked, err := a.registry.IsRevoked(ctx, claims.ID)
	if err != nil {
		l.Error("revocation_lookup_failed", "error", err)
		return nil, domain.ErrUnavailable
	}
	if revoked {
		return nil, reject("revoked", "jti", claims.ID)
	}

	acct, err := a.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, reject("unknown_subject", "sub", claims.Subject)
		}
		l.Error("account_lookup_failed", "sub", claims.Subject, "error", err)
		return nil, domain.ErrUnavailable
	}
	if !acct.IsActive {
		return nil, reject("inactive", "sub", claims.Subject)
	}
	if IssuedBeforePasswordChange(claims, acct.PasswordChangedAt) {
		return nil, reject("stale_token", "sub", claims.Subject)
	}

	return &Session{Account: acct, Claims: claims, Token: raw}, nil
}

// IssuedBeforePasswordChange compares at second precision, the resolution of
// the iat claim.
func IssuedBeforePasswordChange(claims *tokens.Claims, changedAt *time.Time) bool {
	if changedAt == nil || claims.IssuedAt == nil {
		return false
	}
	return claims.IssuedAt.Time.Before(changedAt.Truncate(time.Second))
}

// RequireRole admits the account when its role is one of allowed.
func RequireRole(acct *models.Account, allowed ...domain.Role) (*models.Account, error) {
	if acct == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !slices.Contains(allowed, acct.Role) {
		return nil, domain.ErrForbidden
	}
	return acct, nil
}

// RequireAdmin checks the is_admin flag, which is independent of Role.
func RequireAdmin(acct *models.Account) (*models.Account, error) {
	if acct == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !acct.IsAdmin {
		return nil, domain.ErrForbidden
	}
	return acct, nil
}

// IsPasswordExpired reports whether a password changed at changedAt is past
// a policy of policyDays. Zero days disables expiry; a missing timestamp
// counts as expired once a policy is on.
func IsPasswordExpired(changedAt *time.Time, policyDays int, now time.Time) bool {
	if policyDays <= 0 {
		return false
	}
	if changedAt == nil {
		return true
	}
	return now.Sub(*changedAt) >= time.Duration(policyDays)*24*time.Hour
}
