package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAccountNotVerified   = errors.New("email is not verified")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrInvalidSocialToken   = errors.New("invalid social token")
	ErrUnknownProvider      = errors.New("unknown social provider")
	ErrPasswordMismatch     = errors.New("password does not match")
	ErrPasswordConfirmation = errors.New("password confirmation does not match")
	ErrNotFound             = errors.New("user not found")
	ErrEmailAlreadyExists   = errors.New("email already exists")
	ErrInvalidEmail         = errors.New("invalid email address")
)

// ValidationError is a field-level rejection: which field, and the
// human-readable reason.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// PersistenceError wraps a storage failure so callers can tell a
// domain rejection from a broken collaborator.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
