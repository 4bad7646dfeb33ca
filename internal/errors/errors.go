package errors

import (
	"errors"
	"fmt"
)

// Common error types for the token server
var (
	// Credential errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserDisabled       = errors.New("user is disabled")

	// Token errors
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrAssertionReplayed   = errors.New("client assertion replayed")
	ErrInvalidResource     = errors.New("invalid resource indicator")

	// Client errors
	ErrClientDisabled = errors.New("client is disabled")

	// Signing errors
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	ErrNoSigningKey         = errors.New("no signing key for algorithm")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("already registered")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
