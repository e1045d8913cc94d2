package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the session, provider and resilience packages
var (
	// Connectivity and server errors
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrServerUnavailable  = errors.New("server unavailable")
	ErrRateLimited        = errors.New("rate limited")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrNoRefreshToken     = errors.New("no refresh token")
	ErrNotAuthenticated   = errors.New("not authenticated")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Request errors
	ErrValidationFailed = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrUnknown          = errors.New("unknown error")

	// Credential store errors
	ErrMalformedRecord = errors.New("malformed session record")
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
