package transport

import (
	"time"

	"github.com/Skotchmaster/lookaly/internal/models"
)

type RegisterRequest struct {
	Email    string `json:"email" form:"email"`
	Name     string `json:"name" form:"name"`
	Password string `json:"password" form:"password"`
}

// LoginRequest also binds the OAuth2 password-grant form, where the email
// arrives as "username".
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"-" form:"username"`
	Password string `json:"password" form:"password"`
	TOTPCode string `json:"totp_code" form:"totp_code"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

type RoleRequest struct {
	Role string `json:"role"`
}

type FlagRequest struct {
	Value *bool `json:"value"`
}

type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

type Account struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	IsAdmin     bool      `json:"is_admin"`
	Role        string    `json:"role"`
	TOTPEnabled bool      `json:"totp_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func AccountFrom(a *models.Account) Account {
	return Account{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		IsActive:    a.IsActive,
		IsAdmin:     a.IsAdmin,
		Role:        string(a.Role),
		TOTPEnabled: a.TOTPEnabled,
		CreatedAt:   a.CreatedAt,
	}
}

type TwoFactorSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_uri"`
	QRCode string `json:"qr_code"`
}

type TwoFactorStatus struct {
	Enabled bool `json:"totp_enabled"`
}

type AuthorizationURL struct {
	URL string `json:"url"`
}

type Detail struct {
	Detail string `json:"detail"`
}
