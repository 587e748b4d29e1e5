package repo

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEmail  = errors.New("invalid email")
	ErrBadUsername   = errors.New("invalid username")
	ErrWeakPassword  = errors.New("password too weak")
	ErrEmailExists   = errors.New("email already exists")
	ErrUserNotFound  = errors.New("user not found")
	ErrRoleNotFound  = errors.New("role not found")
	ErrTokenNotFound = errors.New("refresh token not found")
)

// storeErr marks an underlying persistence fault. Anything wrapped here maps
// to a 500 at the HTTP boundary.
func storeErr(err error) error {
	return fmt.Errorf("db error: %w", err)
}
