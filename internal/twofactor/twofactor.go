// Package twofactor provisions and checks RFC 6238 time-based codes.
package twofactor

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/models"
)

const (
	period     = 30
	secretSize = 20
	qrSize     = 256
)

type SecretStore interface {
	SetPendingTOTP(ctx context.Context, accountID, secret string) error
	EnableTOTP(ctx context.Context, accountID string) error
	DisableTOTP(ctx context.Context, accountID string) error
}

type Provisioning struct {
	Secret string
	URI    string
	QRCode string
}

type Validator struct {
	store  SecretStore
	issuer string
	now    func() time.Time
}

func NewValidator(store SecretStore, issuer string) *Validator {
	return &Validator{store: store, issuer: issuer, now: time.Now}
}

// validateOpts allows one step of drift either way. No other check in the
// service tolerates clock skew.
func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    period,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Provision stores a new pending secret on acct. It refuses accounts that
// already have 2FA on; those must disable first.
func (v *Validator) Provision(ctx context.Context, acct *models.Account) (*Provisioning, error) {
	if acct.TOTPEnabled {
		return nil, domain.ErrSecondFactorAlreadyEnabled
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: acct.Email,
		Period:      period,
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	if err := v.store.SetPendingTOTP(ctx, acct.ID, key.Secret()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSecondFactorAlreadyEnabled
		}
		return nil, fmt.Errorf("store pending secret: %w", err)
	}
	secret := key.Secret()
	acct.TOTPSecret = &secret

	qr, err := qrDataURI(key)
	if err != nil {
		return nil, err
	}
	return &Provisioning{Secret: secret, URI: key.URL(), QRCode: qr}, nil
}

func qrDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Confirm enables 2FA when code matches the pending secret. A wrong code
// leaves the pending secret in place for another try.
func (v *Validator) Confirm(ctx context.Context, acct *models.Account, code string) (bool, error) {
	if acct.TOTPEnabled {
		return false, domain.ErrSecondFactorAlreadyEnabled
	}
	if !acct.HasPendingTOTP() {
		return false, domain.ErrSecondFactorNotProvisioned
	}
	if !v.check(*acct.TOTPSecret, code) {
		return false, nil
	}
	if err := v.store.EnableTOTP(ctx, acct.ID); err != nil {
		return false, fmt.Errorf("enable totp: %w", err)
	}
	acct.TOTPEnabled = true
	return true, nil
}

// Verify checks code against an enabled secret.
func (v *Validator) Verify(acct *models.Account, code string) bool {
	if !acct.TOTPEnabled || acct.TOTPSecret == nil {
		return false
	}
	return v.check(*acct.TOTPSecret, code)
}

// Disable needs a live code, not just a session.
func (v *Validator) Disable(ctx context.Context, acct *models.Account, code string) (bool, error) {
	if !acct.TOTPEnabled {
		return false, domain.ErrSecondFactorNotEnabled
	}
	if !v.Verify(acct, code) {
		return false, nil
	}
	if err := v.store.DisableTOTP(ctx, acct.ID); err != nil {
		return false, fmt.Errorf("disable totp: %w", err)
	}
	acct.TOTPEnabled = false
	acct.TOTPSecret = nil
	return true, nil
}

func (v *Validator) check(secret, code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != otp.DigitsSix.Length() {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, v.now().UTC(), validateOpts())
	return err == nil && ok
}
