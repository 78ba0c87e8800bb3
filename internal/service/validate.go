package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/repo"
)

const maxEmailLength = 254

var nameRe = regexp.MustCompile(`^[\p{L}\p{M}\p{N}_\s'\-]{2,100}$`)

type PasswordPolicy struct {
	MinLength  int
	MaxLength  int
	ExpireDays int
}

func validateEmail(email string) (string, error) {
	email = repo.NormalizeEmail(email)
	if email == "" || len(email) > maxEmailLength || !govalidator.IsEmail(email) {
		return "", domain.Invalid("email", "invalid email address")
	}
	return email, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !nameRe.MatchString(name) {
		return "", domain.Invalid("name", "name must be 2 to 100 letters, digits, spaces, apostrophes or hyphens")
	}
	return name, nil
}

// Check enforces length and composition. The maximum is counted in bytes,
// the unit bcrypt truncates in.
func (p PasswordPolicy) Check(pw string) error {
	if !utf8.ValidString(pw) {
		return domain.Invalid("password", "password must be valid UTF-8")
	}
	if utf8.RuneCountInString(pw) < p.MinLength {
		return domain.Invalid("password", "password is too short")
	}
	if len(pw) > p.MaxLength {
		return domain.Invalid("password", "password is too long")
	}
	var upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsSpace(r) && r != '_':
			symbol = true
		}
	}
	if !upper || !digit || !symbol {
		return domain.Invalid("password", "password needs an upper-case letter, a digit and a symbol")
	}
	return nil
}
