package service

import (
	"context"
	"errors"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/events"
	"github.com/Skotchmaster/lookaly/internal/logging"
	"github.com/Skotchmaster/lookaly/internal/models"
	"github.com/Skotchmaster/lookaly/internal/tokens"
	"github.com/Skotchmaster/lookaly/internal/twofactor"
)

const maxPageSize = 100

func (s *AuthService) ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.Accounts.List(ctx, limit, offset)
}

func (s *AuthService) SetRole(ctx context.Context, actor *models.Account, targetID string, role domain.Role) error {
	if !s.Roles.Contains(role) {
		return domain.Invalid("role", "unknown role")
	}
	if err := s.Accounts.SetRole(ctx, targetID, role); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("role_changed", "actor_id", actor.ID, "account_id", targetID, "role", string(role))
	s.publish(ctx, events.RoleChanged, targetID, map[string]any{"role": role, "actor_id": actor.ID})
	return nil
}

func (s *AuthService) SetAdmin(ctx context.Context, actor *models.Account, targetID string, isAdmin bool) error {
	if actor.ID == targetID && !isAdmin {
		return domain.Invalid("is_admin", "administrators cannot revoke their own flag")
	}
	if err := s.Accounts.SetAdmin(ctx, targetID, isAdmin); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("admin_flag_changed", "actor_id", actor.ID, "account_id", targetID, "is_admin", isAdmin)
	s.publish(ctx, events.AccountUpdated, targetID, map[string]any{"is_admin": isAdmin, "actor_id": actor.ID})
	return nil
}

// SetActive toggles the soft-deactivation flag. Deactivated accounts fail
// authentication on their next request; existing tokens need no revoking.
func (s *AuthService) SetActive(ctx context.Context, actor *models.Account, targetID string, active bool) error {
	if actor.ID == targetID && !active {
		return domain.Invalid("is_active", "administrators cannot deactivate themselves")
	}
	if err := s.Accounts.SetActive(ctx, targetID, active); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("active_flag_changed", "actor_id", actor.ID, "account_id", targetID, "is_active", active)
	s.publish(ctx, events.AccountUpdated, targetID, map[string]any{"is_active": active, "actor_id": actor.ID})
	return nil
}

func (s *AuthService) ProvisionTwoFactor(ctx context.Context, acct *models.Account) (*twofactor.Provisioning, error) {
	p, err := s.TwoFactor.Provision(ctx, acct)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("totp_provisioned", "account_id", acct.ID)
	return p, nil
}

func (s *AuthService) ConfirmTwoFactor(ctx context.Context, acct *models.Account, code string) error {
	ok, err := s.TwoFactor.Confirm(ctx, acct, code)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrSecondFactorInvalid
	}
	s.publish(ctx, events.TOTPEnabled, acct.ID, nil)
	return nil
}

func (s *AuthService) DisableTwoFactor(ctx context.Context, acct *models.Account, code string) error {
	ok, err := s.TwoFactor.Disable(ctx, acct, code)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrSecondFactorInvalid
	}
	s.publish(ctx, events.TOTPDisabled, acct.ID, nil)
	return nil
}

type FederatedResult struct {
	Account *models.Account
	Access  tokens.Issued
}

// FederatedLogin skips the password and second-factor checks: the provider
// has authenticated the user already.
func (s *AuthService) FederatedLogin(ctx context.Context, code string) (res *FederatedResult, err error) {
	l := logging.FromContext(ctx).With("svc", "auth.federated_login")
	defer func() { s.record("federated_login", err) }()

	if s.Federation == nil {
		return nil, domain.ErrFederationDisabled
	}
	acct, err := s.Federation.CompleteLogin(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrFederation) {
			l.Warn("federated_login_failed", "status", 502, "error", err)
		} else {
			l.Error("federated_login_failed", "error", err)
		}
		return nil, err
	}
	if !acct.IsActive {
		l.Warn("federated_login_failed", "status", 401, "reason", "inactive", "account_id", acct.ID)
		return nil, domain.ErrInvalidCredentials
	}

	access, err := s.Issuer.IssueAccess(acct.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.UserFederatedLogin, acct.ID, nil)
	l.Info("federated_login_successful", "account_id", acct.ID)
	return &FederatedResult{Account: acct, Access: access}, nil
}
