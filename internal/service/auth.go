package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/events"
	"github.com/Skotchmaster/lookaly/internal/federation"
	"github.com/Skotchmaster/lookaly/internal/hash"
	"github.com/Skotchmaster/lookaly/internal/logging"
	"github.com/Skotchmaster/lookaly/internal/metrics"
	"github.com/Skotchmaster/lookaly/internal/models"
	"github.com/Skotchmaster/lookaly/internal/repo"
	"github.com/Skotchmaster/lookaly/internal/revocation"
	"github.com/Skotchmaster/lookaly/internal/session"
	"github.com/Skotchmaster/lookaly/internal/tokens"
	"github.com/Skotchmaster/lookaly/internal/twofactor"
)

type AccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, acct *models.Account) error
	List(ctx context.Context, limit, offset int) ([]models.Account, error)
	UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error
	SetRole(ctx context.Context, id string, role domain.Role) error
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
	SetActive(ctx context.Context, id string, active bool) error
}

// ErrRotationIncomplete means the presented refresh token was spent but no
// replacement could be issued.
var ErrRotationIncomplete = errors.New("rotation incomplete")

type AuthService struct {
	Accounts   AccountStore
	Hasher     *hash.Hasher
	Issuer     *tokens.Issuer
	Registry   revocation.Registry
	Sessions   *session.Authenticator
	TwoFactor  *twofactor.Validator
	Federation *federation.Reconciler
	Events     events.Publisher
	Metrics    *metrics.Metrics
	Policy     PasswordPolicy
	Roles      domain.RoleSet
	Now        func() time.Time
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	Account      *models.Account
}

type LoginInput struct {
	Email    string
	Password string
	TOTPCode string
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) Register(ctx context.Context, email, name, password string) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	email, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	name, err = validateName(name)
	if err != nil {
		return nil, err
	}
	if err := s.Policy.Check(password); err != nil {
		return nil, err
	}

	pwHash, err := s.Hasher.Hash(ctx, password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}
	now := s.now()
	acct := &models.Account{
		Email:             email,
		Name:              name,
		PasswordHash:      pwHash,
		IsActive:          true,
		Role:              domain.RoleCustomer,
		PasswordChangedAt: &now,
	}
	if err := s.Accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			l.Warn("register_error", "status", 409, "reason", "email already registered")
			return nil, err
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, err
	}

	s.publish(ctx, events.UserRegistered, acct.ID, nil)
	l.Info("register_successful", "account_id", acct.ID)
	return acct, nil
}

// Login checks the password before anything else, so the second-factor
// prompt and the expiry notice are only ever shown to someone who knows it.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (res *LoginResult, err error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")
	defer func() { s.record("login", err) }()

	deny := func(reason string, attrs ...any) error {
		l.Warn("login_failed", append([]any{"status", 401, "reason", reason}, attrs...)...)
		return domain.ErrInvalidCredentials
	}

	email := repo.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, deny("empty_credentials")
	}

	acct, err := s.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.Hasher.Burn(ctx, in.Password)
			return nil, deny("unknown_email")
		}
		l.Error("login_failed", "status", 503, "error", err)
		return nil, domain.ErrUnavailable
	}
	if !s.Hasher.Verify(ctx, in.Password, acct.PasswordHash) {
		return nil, deny("bad_password", "account_id", acct.ID)
	}
	if !acct.IsActive {
		return nil, deny("inactive", "account_id", acct.ID)
	}

	if acct.TOTPEnabled {
		if in.TOTPCode == "" {
			l.Info("login_second_factor_required", "account_id", acct.ID)
			return nil, domain.ErrSecondFactorRequired
		}
		if !s.TwoFactor.Verify(acct, in.TOTPCode) {
			l.Warn("login_failed", "status", 401, "reason", "bad_totp", "account_id", acct.ID)
			return nil, domain.ErrSecondFactorInvalid
		}
	}

	if session.IsPasswordExpired(acct.PasswordChangedAt, s.Policy.ExpireDays, s.now()) {
		l.Warn("login_failed", "status", 403, "reason", "password_expired", "account_id", acct.ID)
		return nil, domain.ErrPasswordExpired
	}

	res, err = s.issue(acct)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot issue tokens", "error", err)
		return nil, err
	}
	s.publish(ctx, events.UserLoggedIn, acct.ID, nil)
	l.Info("login_successful", "account_id", acct.ID)
	return res, nil
}

// Refresh spends raw and returns a new pair. Only one of several concurrent
// calls with the same token can win the revoke; the rest are refused.
func (s *AuthService) Refresh(ctx context.Context, raw string) (res *LoginResult, err error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")
	defer func() { s.record("refresh", err) }()

	sess, err := s.Sessions.Verify(ctx, raw, tokens.TypeRefresh)
	if err != nil {
		return nil, err
	}

	first, err := s.Registry.Revoke(ctx, sess.Claims.ID, sess.Claims.ExpiresAt.Time)
	if err != nil {
		l.Error("refresh_failed", "status", 503, "reason", "cannot revoke refresh token", "error", err)
		return nil, domain.ErrUnavailable
	}
	if !first {
		l.Warn("refresh_failed", "status", 401, "reason", "refresh token already spent", "account_id", sess.Account.ID)
		return nil, domain.ErrInvalidCredentials
	}
	s.Metrics.Revoked()

	res, err = s.issue(sess.Account)
	if err != nil {
		// The old token is gone already; the client must sign in again.
		l.Error("refresh_failed", "status", 500, "reason", "refresh token spent but reissue failed", "account_id", sess.Account.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRotationIncomplete, err)
	}
	return res, nil
}

// Logout revokes the access token of sess and, when given, a refresh token
// that belongs to the same account.
func (s *AuthService) Logout(ctx context.Context, sess *session.Session, refreshRaw string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "account_id", sess.Account.ID)

	if _, err := s.Registry.Revoke(ctx, sess.Claims.ID, sess.Claims.ExpiresAt.Time); err != nil {
		l.Error("logout_failed", "status", 503, "reason", "cannot revoke access token", "error", err)
		return domain.ErrUnavailable
	}
	s.Metrics.Revoked()

	if refreshRaw != "" {
		claims, err := s.Issuer.Parse(refreshRaw)
		switch {
		case err != nil:
			l.Info("logout_refresh_ignored", "reason", "unparseable")
		case claims.Type != tokens.TypeRefresh || claims.Subject != sess.Account.ID:
			l.Warn("logout_refresh_ignored", "reason", "not this account's refresh token")
		default:
			if _, err := s.Registry.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
				l.Error("logout_failed", "status", 503, "reason", "cannot revoke refresh token", "error", err)
				return domain.ErrUnavailable
			}
			s.Metrics.Revoked()
		}
	}

	s.publish(ctx, events.UserLoggedOut, sess.Account.ID, nil)
	l.Info("successful_logout")
	return nil
}

// ChangePassword replaces the password and returns a fresh pair, since tokens
// issued before the change stop authenticating.
func (s *AuthService) ChangePassword(ctx context.Context, sess *session.Session, current, next string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.change_password", "account_id", sess.Account.ID)
	acct := sess.Account

	if !s.Hasher.Verify(ctx, current, acct.PasswordHash) {
		return nil, domain.Invalid("current_password", "current password is incorrect")
	}
	if err := s.Policy.Check(next); err != nil {
		return nil, err
	}
	if s.Hasher.Verify(ctx, next, acct.PasswordHash) {
		return nil, domain.Invalid("new_password", "new password must differ from the current one")
	}

	pwHash, err := s.Hasher.Hash(ctx, next)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.Accounts.UpdatePassword(ctx, acct.ID, pwHash, now); err != nil {
		l.Error("change_password_failed", "error", err)
		return nil, err
	}
	acct.PasswordHash = pwHash
	acct.PasswordChangedAt = &now

	if _, err := s.Registry.Revoke(ctx, sess.Claims.ID, sess.Claims.ExpiresAt.Time); err != nil {
		l.Warn("change_password_revoke_failed", "error", err)
	}

	res, err := s.issue(acct)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.PasswordChanged, acct.ID, nil)
	l.Info("password_changed")
	return res, nil
}

func (s *AuthService) issue(acct *models.Account) (*LoginResult, error) {
	pair, err := s.Issuer.IssuePair(acct.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:  pair.Access.Token,
		RefreshToken: pair.Refresh.Token,
		AccessExp:    pair.Access.ExpiresAt,
		RefreshExp:   pair.Refresh.ExpiresAt,
		Account:      acct,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, typ events.Type, accountID string, data map[string]any) {
	if s.Events == nil {
		return
	}
	ev := events.Event{Type: typ, AccountID: accountID, At: s.now(), Data: data}
	if err := s.Events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", string(typ), "error", err)
	}
}

func (s *AuthService) record(op string, err error) {
	s.Metrics.Attempt(op, outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrSecondFactorRequired):
		return "second_factor_required"
	case errors.Is(err, domain.ErrSecondFactorInvalid):
		return "second_factor_invalid"
	case errors.Is(err, domain.ErrPasswordExpired):
		return "password_expired"
	case errors.Is(err, domain.ErrFederation):
		return "federation_error"
	default:
		return "error"
	}
}
