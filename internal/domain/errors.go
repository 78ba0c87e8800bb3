package domain

import (
	"errors"
	"fmt"
)

// Authentication errors. The messages are what callers may see, so none of
// them say why a credential was refused.
var (
	ErrInvalidCredentials   = errors.New("could not validate credentials")
	ErrSecondFactorRequired = errors.New("2fa_required")
	ErrSecondFactorInvalid  = errors.New("invalid second factor code")
	ErrForbidden            = errors.New("insufficient privileges")
	ErrRateLimited          = errors.New("too many requests")
	ErrFederation           = errors.New("could not complete sign-in with provider")
	ErrConfiguration        = errors.New("configuration error")
)

var (
	ErrValidation                 = errors.New("validation error")
	ErrConflict                   = errors.New("already exists")
	ErrNotFound                   = errors.New("not found")
	ErrUnavailable                = errors.New("service unavailable")
	ErrPasswordExpired            = errors.New("password expired")
	ErrFederationDisabled         = errors.New("federated sign-in is not configured")
	ErrSecondFactorAlreadyEnabled = errors.New("2fa already enabled")
	ErrSecondFactorNotEnabled     = errors.New("2fa is not enabled")
	ErrSecondFactorNotProvisioned = errors.New("2fa setup has not been started")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
