package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/lookaly/internal/domain"
)

type Account struct {
	ID                string      `gorm:"type:varchar(36);primaryKey"           json:"id"`
	Email             string      `gorm:"size:254;uniqueIndex;not null"         json:"email"`
	Name              string      `gorm:"size:100;not null"                     json:"name"`
	PasswordHash      string      `gorm:"size:255"                              json:"-"`
	IsActive          bool        `gorm:"not null"                              json:"is_active"`
	IsAdmin           bool        `gorm:"not null"                              json:"is_admin"`
	Role              domain.Role `gorm:"size:32;not null"                      json:"role"`
	PasswordChangedAt *time.Time  `                                             json:"password_changed_at,omitempty"`
	FederatedID       *string     `gorm:"column:federated_id;size:255;uniqueIndex" json:"-"`
	TOTPSecret        *string     `gorm:"column:totp_secret;size:64"            json:"-"`
	TOTPEnabled       bool        `gorm:"column:totp_enabled;not null"          json:"totp_enabled"`
	CreatedAt         time.Time   `                                             json:"created_at"`
	UpdatedAt         time.Time   `                                             json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Role == "" {
		a.Role = domain.RoleCustomer
	}
	return nil
}

func (a *Account) BeforeSave(tx *gorm.DB) error {
	if a.TOTPEnabled && (a.TOTPSecret == nil || *a.TOTPSecret == "") {
		return fmt.Errorf("account %s: totp enabled without a secret", a.ID)
	}
	return nil
}

// HasPendingTOTP reports a provisioned secret that is not enabled yet.
func (a *Account) HasPendingTOTP() bool {
	return !a.TOTPEnabled && a.TOTPSecret != nil && *a.TOTPSecret != ""
}

// RevokedToken backs the database revocation registry, keyed by jti.
type RevokedToken struct {
	TokenID   string    `gorm:"primaryKey;size:64"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func All() []any {
	return []any{&Account{}, &RevokedToken{}}
}
