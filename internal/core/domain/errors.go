package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrUnauthorizedAccess      = errors.New("unauthorized account access")
	ErrUnauthorizedTransaction = errors.New("unauthorized transaction")
	ErrInvalidCredentials      = errors.New("invalid account credentials")
	ErrSameAccountTransfer     = errors.New("transfer to the same account")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrDataIntegrity           = errors.New("data integrity violation")
	ErrEmailTaken              = errors.New("email already registered")
	ErrAuthentication          = errors.New("authentication failed")
	ErrUserNotFound            = errors.New("user not found")
)

// IntegrityError is a store-level constraint failure. It matches ErrDataIntegrity.
type IntegrityError struct {
	Constraint string
	Detail     string
}

func (e *IntegrityError) Error() string {
	if e.Constraint == "" {
		return fmt.Sprintf("%s: %s", ErrDataIntegrity, e.Detail)
	}
	return fmt.Sprintf("%s: %s (%s)", ErrDataIntegrity, e.Detail, e.Constraint)
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrDataIntegrity
}
