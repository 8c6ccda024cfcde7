// Package validation provides input validation for accounts and request payloads.
package validation

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

const (
	minPasswordLen = 12
	maxPasswordLen = 128
	minUsernameLen = 3
	maxUsernameLen = 30
	maxEmailLen    = 254
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidatePassword checks length and character-class requirements.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return errors.New("password must be at least 12 characters long")
	}
	if len(password) > maxPasswordLen {
		return errors.New("password must not exceed 128 characters")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	switch {
	case !upper:
		return errors.New("password must contain at least one uppercase letter")
	case !lower:
		return errors.New("password must contain at least one lowercase letter")
	case !digit:
		return errors.New("password must contain at least one digit")
	case !special:
		return errors.New("password must contain at least one special character")
	}
	return nil
}

// ValidateUsername allows 3-30 letters, digits, underscores and hyphens, not
// starting or ending with a separator.
func ValidateUsername(username string) error {
	if len(username) < minUsernameLen {
		return errors.New("username must be at least 3 characters long")
	}
	if len(username) > maxUsernameLen {
		return errors.New("username must not exceed 30 characters")
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("username can only contain letters, numbers, underscores, and hyphens")
	}
	if strings.ContainsAny(username[:1], "_-") || strings.ContainsAny(username[len(username)-1:], "_-") {
		return errors.New("username cannot start or end with underscore or hyphen")
	}
	return nil
}

// ValidateEmail checks the address is a bare addr-spec with a dotted domain.
func ValidateEmail(email string) error {
	if len(email) > maxEmailLen {
		return errors.New("email must not exceed 254 characters")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("invalid email format")
	}
	at := strings.LastIndexByte(email, '@')
	if !strings.Contains(email[at+1:], ".") {
		return errors.New("invalid email format")
	}
	return nil
}
