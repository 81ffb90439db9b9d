package validation

import (
	"errors"
)

const (
	PasswordMinLength = 6
	PasswordMaxLength = 50
)

// ValidatePassword enforces the password length policy applied at
// registration, reset and change.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLength {
		return errors.New("password must be at least 6 characters")
	}

	if len(password) > PasswordMaxLength {
		return errors.New("password must not exceed 50 characters")
	}

	return nil
}
