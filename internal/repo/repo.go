package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *GormRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormRepo) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.first(ctx, "email = ?", NormalizeEmail(email))
}

func (r *GormRepo) FindByFederatedID(ctx context.Context, sub string) (*models.Account, error) {
	return r.first(ctx, "federated_id = ?", sub)
}

func (r *GormRepo) first(ctx context.Context, query string, arg any) (*models.Account, error) {
	var acct models.Account
	if err := r.DB.WithContext(ctx).Where(query, arg).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acct, nil
}

func (r *GormRepo) Create(ctx context.Context, acct *models.Account) error {
	acct.Email = NormalizeEmail(acct.Email)
	if _, err := r.FindByEmail(ctx, acct.Email); err == nil {
		return domain.ErrConflict
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err := r.DB.WithContext(ctx).Create(acct).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *GormRepo) List(ctx context.Context, limit, offset int) ([]models.Account, error) {
	var out []models.Account
	err := r.DB.WithContext(ctx).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

func (r *GormRepo) UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	return r.update(ctx, map[string]any{
		"password_hash":       hash,
		"password_changed_at": changedAt.UTC(),
	}, "id = ?", id)
}

func (r *GormRepo) SetRole(ctx context.Context, id string, role domain.Role) error {
	return r.update(ctx, map[string]any{"role": role}, "id = ?", id)
}

func (r *GormRepo) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	return r.update(ctx, map[string]any{"is_admin": isAdmin}, "id = ?", id)
}

func (r *GormRepo) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, map[string]any{"is_active": active}, "id = ?", id)
}

// SetPendingTOTP stores a fresh secret unless 2FA is already on.
func (r *GormRepo) SetPendingTOTP(ctx context.Context, id, secret string) error {
	return r.update(ctx, map[string]any{
		"totp_secret": secret,
	}, "id = ? AND totp_enabled = ?", id, false)
}

func (r *GormRepo) EnableTOTP(ctx context.Context, id string) error {
	return r.update(ctx, map[string]any{
		"totp_enabled": true,
	}, "id = ? AND totp_secret IS NOT NULL AND totp_secret <> ''", id)
}

func (r *GormRepo) DisableTOTP(ctx context.Context, id string) error {
	return r.update(ctx, map[string]any{
		"totp_enabled": false,
		"totp_secret":  nil,
	}, "id = ?", id)
}

// LinkFederated binds sub to the account unless it already carries another.
func (r *GormRepo) LinkFederated(ctx context.Context, id, sub string) error {
	if owner, err := r.FindByFederatedID(ctx, sub); err == nil && owner.ID != id {
		return domain.ErrConflict
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	err := r.update(ctx, map[string]any{
		"federated_id": sub,
	}, "id = ? AND (federated_id IS NULL OR federated_id = ?)", id, sub)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	return err
}

func (r *GormRepo) update(ctx context.Context, fields map[string]any, query string, args ...any) error {
	res := r.DB.WithContext(ctx).Model(&models.Account{}).Where(query, args...).Updates(fields)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return res.Error
		}
		return fmt.Errorf("update account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
