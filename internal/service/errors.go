package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidationFailed   = errors.New("validation failed")
	ErrUserAlreadyExists  = errors.New("an account with this email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyEnabled = errors.New("account is already verified")
	ErrUserNotEnabled     = errors.New("account email is not verified")
	ErrTokenNotFound      = errors.New("token not found")
	ErrTokenExpired       = errors.New("token has expired")
	ErrRateLimited        = errors.New("too many requests")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// RateLimitError matches ErrRateLimited and carries the wait time.
type RateLimitError struct {
	SecondsRemaining int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting another verification email", e.SecondsRemaining)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

func validationError(err error) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, err.Error())
}
